package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"tomoimport/pkg/mdoc"
)

func newAnglesCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "angles <mdoc>",
		Short:       "Print the tilt angles of an mdoc file in file order",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			angles, err := mdoc.Angles(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, a := range angles {
				fmt.Fprintln(out, strconv.FormatFloat(a, 'f', -1, 64))
			}
			return nil
		},
	}
}
