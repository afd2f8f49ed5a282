package main

import (
	"flag"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/Mindburn-Labs/trustengine/pkg/sim"
)

func runScenariosCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("scenarios", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var jsonOutput bool
	cmd.BoolVar(&jsonOutput, "json", false, "Print full scenario definitions as JSON")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	catalog := sim.Catalog()
	if jsonOutput {
		if err := writeJSON(stdout, catalog); err != nil {
			return fail(stderr, err)
		}
		return 0
	}

	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "NAME\tAGENTS\tROUNDS\tDESCRIPTION")
	for _, s := range catalog {
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", s.Name, s.Agents(), s.Rounds, s.Description)
	}
	if err := tw.Flush(); err != nil {
		return fail(stderr, err)
	}
	return 0
}
