package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/chazu/voxbrep/pkg/config"
	"github.com/spf13/cobra"
)

type optionJSON struct {
	Name        string  `json:"name"`
	Default     float64 `json:"default"`
	Range       string  `json:"range"`
	Integer     bool    `json:"integer"`
	Description string  `json:"description"`
}

func newConfigCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration options",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "defaults",
		Short: "Print every numeric option with its default and valid range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigDefaults(cmd, g)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "check FILE",
		Short: "Validate a configuration file and print its effective values",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return wrapError(ExitConfiguration, "invalid configuration", err)
			}
			data, err := cfg.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	})

	return cmd
}

func runConfigDefaults(cmd *cobra.Command, g *globals) error {
	opts := config.Options()
	if g.jsonOutput {
		out := make([]optionJSON, 0, len(opts))
		for _, o := range opts {
			out = append(out, optionJSON{
				Name:        o.Name,
				Default:     o.Default,
				Range:       o.Range(),
				Integer:     o.Integer,
				Description: o.Description,
			})
		}
		return writeJSON(cmd, out)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "OPTION\tDEFAULT\tRANGE\tDESCRIPTION")
	for _, o := range opts {
		fmt.Fprintf(tw, "%s\t%g\t%s\t%s\n", o.Name, o.Default, o.Range(), o.Description)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	data, err := (&config.Config{}).YAML()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout())
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
