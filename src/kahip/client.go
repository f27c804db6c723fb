// Package kahip is a subprocess client for the external KaHIP graph
// partitioner (kaffpaE), used by src/partitioner's KaHIP rollup mode. The
// client shape (mutex-guarded, exec.CommandContext, path resolution,
// timeout handling) is grounded on
// src/simulator/host/ramulator/client.go; the wire protocol is KaHIP's own
// file-based graph format rather than that client's JSON stdin/stdout.
package kahip

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/illinois-impact/puma-compiler/src/partitioner"
)

const (
	defaultBinary  = "kaffpaE"
	binaryEnvOverride = "PUMA_KAHIP_BINARY"
	requestTimeout = 60 * time.Second
	graphFileName  = "kahip_input.graph"
	resultFileName = "kahip_partition_result"
)

// Client runs kaffpaE once per Partition call in a scratch directory, over
// files rather than a long-lived pipe: each invocation is a self-contained
// blocking call treated as a pure function of its input graph.
type Client struct {
	mu      sync.Mutex
	binary  string
	workDir string
}

// NewClient locates the kaffpaE binary (via PUMA_KAHIP_BINARY or PATH) and
// prepares a scratch directory for the graph/result files.
func NewClient(workDir string) (*Client, error) {
	binary, err := locateBinary()
	if err != nil {
		return nil, err
	}
	return newClient(workDir, binary)
}

// NewClientWithBinary is NewClient but resolves an explicit binary
// name/path instead of consulting PUMA_KAHIP_BINARY, for callers threading
// through misc.CompilerOptions.KaHIPBinary.
func NewClientWithBinary(workDir, binary string) (*Client, error) {
	resolved, err := exec.LookPath(binary)
	if err != nil {
		return nil, errors.Errorf("kahip: binary not found: %s", binary)
	}
	return newClient(workDir, resolved)
}

func newClient(workDir, binary string) (*Client, error) {
	if workDir == "" {
		workDir = "."
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "kahip: create work dir")
	}
	return &Client{binary: binary, workDir: workDir}, nil
}

// Partition writes g in KaHIP's graph format, invokes kaffpaE for a k-way
// partition at the requested imbalance, and returns one partition id per
// node in [0, k). It satisfies partitioner.KaHIPRunner.
func (c *Client) Partition(g partitioner.Graph, k int, imbalance float64) ([]int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if k <= 0 {
		return nil, errors.Errorf("kahip: invalid k=%d", k)
	}
	if g.NumNodes == 0 {
		return nil, nil
	}
	if k == 1 {
		out := make([]int, g.NumNodes)
		return out, nil
	}

	graphPath := filepath.Join(c.workDir, graphFileName)
	resultPath := filepath.Join(c.workDir, resultFileName)
	os.Remove(resultPath)

	if err := writeGraphFile(graphPath, g); err != nil {
		return nil, errors.Wrap(err, "kahip: write graph file")
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	args := []string{
		graphPath,
		fmt.Sprintf("--k=%d", k),
		fmt.Sprintf("--imbalance=%g", imbalance),
		"--preconfiguration=strong",
		fmt.Sprintf("--output_filename=%s", resultPath),
	}
	cmd := exec.CommandContext(ctx, c.binary, args...)
	cmd.Dir = c.workDir
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.New("kahip: kaffpaE timed out")
		}
		return nil, errors.Wrapf(err, "kahip: kaffpaE failed: %s", stderr.String())
	}

	return readPartitionFile(resultPath, g.NumNodes)
}

// writeGraphFile emits the classic METIS-derived format KaHIP reads: a
// header line "nNodes nEdges 11" (format 11: vertex and edge weights both
// present), then one line per node listing its own vertex weight (always 1
// here, PUMA nodes are uniform) followed by (neighbor+1, weight) pairs for
// every incident edge -- KaHIP node ids are 1-based.
func writeGraphFile(path string, g partitioner.Graph) error {
	adj := make([][]partitioner.Edge, g.NumNodes)
	for _, e := range g.Edges {
		adj[e.U] = append(adj[e.U], partitioner.Edge{U: e.U, V: e.V, Weight: e.Weight})
		adj[e.V] = append(adj[e.V], partitioner.Edge{U: e.V, V: e.U, Weight: e.Weight})
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	fmt.Fprintf(w, "%d %d 11\n", g.NumNodes, len(g.Edges))
	for i := 0; i < g.NumNodes; i++ {
		w.WriteString("1")
		for _, e := range adj[i] {
			fmt.Fprintf(w, " %d %d", e.V+1, e.Weight)
		}
		w.WriteString("\n")
	}
	return w.Flush()
}

// readPartitionFile reads one integer partition id per line, one line per
// node in node-index order, as kaffpaE's --output_filename writes it.
func readPartitionFile(path string, numNodes int) ([]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "kahip: open partition result")
	}
	defer f.Close()

	result := make([]int, 0, numNodes)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		id, err := strconv.Atoi(line)
		if err != nil {
			return nil, errors.Wrapf(err, "kahip: malformed partition line %q", line)
		}
		result = append(result, id)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(result) != numNodes {
		return nil, errors.Errorf("kahip: expected %d partition ids, got %d", numNodes, len(result))
	}
	return result, nil
}

func locateBinary() (string, error) {
	if override := strings.TrimSpace(os.Getenv(binaryEnvOverride)); override != "" {
		if path, err := exec.LookPath(override); err == nil {
			return path, nil
		}
		return "", errors.Errorf("kahip: binary override not found: %s", override)
	}
	path, err := exec.LookPath(defaultBinary)
	if err != nil {
		return "", errors.Errorf("kahip: %s not found on PATH; set %s to override", defaultBinary, binaryEnvOverride)
	}
	return path, nil
}
