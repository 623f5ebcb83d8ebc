// Package flag parses psci-sim's command line, mirroring the
// subcommand-per-file style gokvm's own flag package uses for "boot"
// and "probe".
package flag

import (
	"errors"
	"flag"
)

// ErrInvalidSubcommand is returned when args names anything but the one
// "scenario" subcommand this harness supports.
var ErrInvalidSubcommand = errors.New(`expected "scenario" subcommand`)

// ScenarioArgs configures one run of the canned end-to-end scenarios.
type ScenarioArgs struct {
	Name    string
	Backend string
}

func parseScenarioArgs(args []string) (*ScenarioArgs, error) {
	cmd := flag.NewFlagSet("scenario subcommand", flag.ExitOnError)
	c := &ScenarioArgs{}

	cmd.StringVar(&c.Name, "name", "s1", "scenario to run: s1..s6, or all")
	cmd.StringVar(&c.Backend, "backend", "direct", "platform backend: direct or scmi")

	if err := cmd.Parse(args); err != nil {
		return nil, err
	}

	return c, nil
}

// ParseArgs parses os.Args-shaped input (args[0] is the program name,
// args[1] the subcommand).
func ParseArgs(args []string) (*ScenarioArgs, error) {
	if len(args) < 2 {
		return nil, ErrInvalidSubcommand
	}

	switch args[1] {
	case "scenario":
		return parseScenarioArgs(args[2:])
	default:
		return nil, ErrInvalidSubcommand
	}
}
