package misc

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// OptionType tags the parsed representation of a CommandLineParser option,
// mirroring the teacher's misc.INT/misc.STRING option kinds.
type OptionType int

const (
	INT OptionType = iota
	FLOAT
	STRING
	BOOL
)

type option struct {
	typ          OptionType
	value        string
	defaultValue string
	help         string
	isSet        bool
}

// CommandLineParser is a small flag registry that a CLI front end (cobra
// commands in cmd/pumac) populates via Set before handing the parser to
// CommandLineValidator and LoadCompilerOptions. It plays the same role as
// the teacher's misc.CommandLineParser, whose concrete type was not present
// in the retrieved source but whose call sites (AddOption/IntParameter/
// StringParameter/IsArgSet) pin down this shape.
type CommandLineParser struct {
	options map[string]*option
	order   []string
}

func (this *CommandLineParser) Init() {
	this.options = make(map[string]*option)
	this.order = nil
}

func (this *CommandLineParser) AddOption(typ OptionType, name string, defaultValue string, help string) {
	if _, exists := this.options[name]; exists {
		panic(fmt.Errorf("option %s already registered", name))
	}
	this.options[name] = &option{typ: typ, value: defaultValue, defaultValue: defaultValue, help: help}
	this.order = append(this.order, name)
}

// Set records an explicitly-provided value for name, distinguishing it from
// an option left at its default (see IsArgSet).
func (this *CommandLineParser) Set(name string, value string) {
	opt, ok := this.options[name]
	if !ok {
		panic(fmt.Errorf("option %s is not registered", name))
	}
	opt.value = value
	opt.isSet = true
}

func (this *CommandLineParser) IsArgSet(name string) bool {
	opt, ok := this.options[name]
	return ok && opt.isSet
}

func (this *CommandLineParser) mustGet(name string) *option {
	opt, ok := this.options[name]
	if !ok {
		panic(fmt.Errorf("option %s is not registered", name))
	}
	return opt
}

func (this *CommandLineParser) StringParameter(name string) string {
	return this.mustGet(name).value
}

func (this *CommandLineParser) IntParameter(name string) int64 {
	opt := this.mustGet(name)
	v, err := strconv.ParseInt(opt.value, 10, 64)
	if err != nil {
		panic(fmt.Errorf("option %s: %s is not an int", name, opt.value))
	}
	return v
}

func (this *CommandLineParser) FloatParameter(name string) float64 {
	opt := this.mustGet(name)
	v, err := strconv.ParseFloat(opt.value, 64)
	if err != nil {
		panic(fmt.Errorf("option %s: %s is not a float", name, opt.value))
	}
	return v
}

func (this *CommandLineParser) BoolParameter(name string) bool {
	opt := this.mustGet(name)
	v, err := strconv.ParseBool(opt.value)
	if err != nil {
		panic(fmt.Errorf("option %s: %s is not a bool", name, opt.value))
	}
	return v
}

// StringifyArgs renders every explicitly-set option, one per line, for the
// args.txt-style provenance dump.
func (this *CommandLineParser) StringifyArgs() string {
	names := make([]string, 0, len(this.order))
	for _, name := range this.order {
		if this.options[name].isSet {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "%s=%s\n", name, this.options[name].value)
	}
	return b.String()
}

// StringifyOptions renders every registered option (set or default), for
// the options.txt-style full snapshot.
func (this *CommandLineParser) StringifyOptions() string {
	var b strings.Builder
	for _, name := range this.order {
		fmt.Fprintf(&b, "%s=%s\n", name, this.options[name].value)
	}
	return b.String()
}

func (this *CommandLineParser) StringifyHelpMsgs() string {
	var b strings.Builder
	for _, name := range this.order {
		opt := this.options[name]
		fmt.Fprintf(&b, "  --%s (default %q): %s\n", name, opt.defaultValue, opt.help)
	}
	return b.String()
}
