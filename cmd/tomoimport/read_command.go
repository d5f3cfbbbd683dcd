package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"tomoimport/pkg/batch"
	"tomoimport/pkg/report"
)

type readFlags struct {
	stacked         bool
	ignoreFiles     bool
	allowIncomplete bool
	workers         int
	stackFile       string
	output          string
	voltage         float64
	magnification   float64
	pixelSize       float64
	dosePerImage    float64
	tiltAxisAngle   float64
}

func newReadCommand(ctx *commandContext) *cobra.Command {
	var flags readFlags

	cmd := &cobra.Command{
		Use:   "read <mdoc>...",
		Short: "Parse and validate mdoc files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			params := &batch.Params{
				Overrides:            cfg.Overrides(),
				Movies:               cfg.Import.Movies,
				IgnoreFileValidation: cfg.Import.IgnoreFileValidation,
				AllowIncomplete:      cfg.Import.AllowIncomplete,
				NumWorkers:           cfg.Import.NumWorkers,
				StackFile:            cfg.Import.StackFile,
				Logger:               logger,
			}
			applyReadFlags(cmd, &flags, params)

			output := cfg.Output.Format
			if cmd.Flags().Changed("output") {
				output = flags.output
			}

			result, err := batch.NewImporter(params).Import(cmd.Context(), args)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch strings.ToLower(output) {
			case "json":
				if err := report.WriteBatchJSON(out, result); err != nil {
					return err
				}
			case "", "table":
				for _, doc := range result.Imported() {
					fmt.Fprintln(out, report.DocumentTable(doc))
				}
				if len(args) > 1 {
					fmt.Fprintln(out, report.BatchTable(result))
				}
				if summary := result.Summary(); summary != "" {
					fmt.Fprint(out, summary)
				}
			default:
				return fmt.Errorf("unsupported output format %q", output)
			}

			if len(result.Imported()) == 0 {
				return fmt.Errorf("all %d mdocs were skipped", len(args))
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.BoolVar(&flags.stacked, "stacked", false, "Tilts are already stacked (default: per-tilt movies)")
	f.BoolVar(&flags.ignoreFiles, "ignore-files", false, "Do not check that per-tilt movies exist")
	f.BoolVar(&flags.allowIncomplete, "allow-incomplete", false, "Keep mdoc files with validation deficiencies")
	f.IntVarP(&flags.workers, "workers", "j", 0, "Number of mdoc files read in parallel")
	f.StringVar(&flags.stackFile, "stack", "", "Tilt-series stack used by every slice of a stacked import")
	f.StringVarP(&flags.output, "output", "o", "table", "Output format (table, json)")
	f.Float64Var(&flags.voltage, "voltage", 0, "Voltage override in kV")
	f.Float64Var(&flags.magnification, "magnification", 0, "Magnification override")
	f.Float64Var(&flags.pixelSize, "pixel-size", 0, "Pixel size override in Å/px")
	f.Float64Var(&flags.dosePerImage, "dose-per-image", 0, "Dose per tilt image override in e-/Å²")
	f.Float64Var(&flags.tiltAxisAngle, "tilt-axis", 0, "Tilt axis angle override in degrees")

	return cmd
}

// applyReadFlags lets explicitly set flags win over the configuration.
func applyReadFlags(cmd *cobra.Command, flags *readFlags, params *batch.Params) {
	changed := cmd.Flags().Changed
	if changed("stacked") {
		params.Movies = !flags.stacked
	}
	if changed("ignore-files") {
		params.IgnoreFileValidation = flags.ignoreFiles
	}
	if changed("allow-incomplete") {
		params.AllowIncomplete = flags.allowIncomplete
	}
	if changed("workers") && flags.workers > 0 {
		params.NumWorkers = flags.workers
	}
	if changed("stack") {
		params.StackFile = flags.stackFile
	}
	for name, target := range map[string]struct {
		value *float64
		dest  **float64
	}{
		"voltage":        {&flags.voltage, &params.Overrides.Voltage},
		"magnification":  {&flags.magnification, &params.Overrides.Magnification},
		"pixel-size":     {&flags.pixelSize, &params.Overrides.SamplingRate},
		"dose-per-image": {&flags.dosePerImage, &params.Overrides.DosePerImage},
		"tilt-axis":      {&flags.tiltAxisAngle, &params.Overrides.TiltAxisAngle},
	} {
		if changed(name) {
			v := *target.value
			*target.dest = &v
		}
	}
}
