package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/illinois-impact/puma-compiler/src/compiler"
)

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report MODEL",
		Short: "Pretty-print an existing <model>-report.json produced by pumac compile",
		Args:  cobra.ExactArgs(1),
		RunE:  runReport,
	}

	cmd.Flags().String("dir", ".", "directory containing <model>-report.json")
	cmd.Flags().Bool("json", false, "print the raw report.json instead of a formatted summary")

	return cmd
}

func runReport(cmd *cobra.Command, args []string) error {
	model := args[0]
	dir, _ := cmd.Flags().GetString("dir")
	raw, _ := cmd.Flags().GetBool("json")

	jsonPath := filepath.Join(dir, model+"-report.json")
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", jsonPath, err)
	}

	if raw {
		fmt.Println(string(data))
		return nil
	}

	var report compiler.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return fmt.Errorf("parse %s: %w", jsonPath, err)
	}

	fmt.Printf("model:              %s\n", report.Model)
	fmt.Printf("graph partitioning: %s\n", report.GraphPartitioning)
	fmt.Printf("virtual mvmus:      %d\n", report.NumVirtualMVMUs)
	fmt.Printf("virtual cores:      %d\n", report.NumVirtualCores)
	fmt.Printf("virtual tiles:      %d\n", report.NumVirtualTiles)
	fmt.Printf("loads/stores:       %d/%d\n", report.NumLoads, report.NumStores)
	fmt.Printf("sends/receives:     %d/%d\n", report.NumSends, report.NumReceives)
	fmt.Printf("copies inserted:    %d\n", report.NumCopiesInserted)
	fmt.Printf("bytes moved:        %d\n", report.BytesMoved)
	fmt.Printf("spilled values:     %d (%.2f%% of value-producing ops)\n", report.NumSpilled, report.SpilledPercent)
	fmt.Printf("spill traffic:      %d bytes stored, %d bytes reloaded\n", report.StoreBytesSpilled, report.LoadBytesReloaded)

	return nil
}
