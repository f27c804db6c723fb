package misc

import (
	"errors"
	"fmt"
)

// CommandLineValidator panics on the first invalid flag combination, the
// same flat-guard idiom the teacher uses for its DPU/chiplet flags.
type CommandLineValidator struct {
	command_line_parser *CommandLineParser
}

func (this *CommandLineValidator) Init(command_line_parser *CommandLineParser) {
	this.command_line_parser = command_line_parser
}

func (this *CommandLineValidator) Validate() {
	if this.command_line_parser.IsArgSet("graph_partitioning") {
		scheme := this.command_line_parser.StringParameter("graph_partitioning")
		if _, ok := GraphPartitioningFromString(scheme); !ok {
			panic(fmt.Errorf("graph_partitioning %s is not supported", scheme))
		}
	}

	if this.command_line_parser.IsArgSet("kahip_imbalance") {
		if this.command_line_parser.FloatParameter("kahip_imbalance") < 0 {
			panic(errors.New("kahip_imbalance < 0"))
		}
	}

	if this.command_line_parser.IsArgSet("kahip_binary") {
		if this.command_line_parser.StringParameter("kahip_binary") == "" {
			panic(errors.New("kahip_binary is empty"))
		}
	}

	if this.command_line_parser.StringParameter("program") == "" {
		panic(errors.New("program is empty"))
	}

	if this.command_line_parser.StringParameter("bin_dirpath") == "" {
		panic(errors.New("bin_dirpath is empty"))
	}
}
