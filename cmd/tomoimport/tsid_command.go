package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tomoimport/pkg/mdoc"
)

func newTsIDCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "tsid <name>...",
		Short:       "Print the tilt series id derived from file names",
		Args:        cobra.MinimumNArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, name := range args {
				fmt.Fprintf(out, "%s\t%s\n", name, mdoc.NormalizeTSID(name))
			}
			return nil
		},
	}
}
