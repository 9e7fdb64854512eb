package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/szaher/contractbot/internal/flow"
	"github.com/szaher/contractbot/internal/store"
	"github.com/szaher/contractbot/internal/validation"
)

func newFlowsCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "flows",
		Short: "Print the flow definitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			flows, err := flow.Defaults(validation.New(), store.NewMemory())
			if err != nil {
				return err
			}
			descs := flows.Describe()

			out := cmd.OutOrStdout()
			switch format {
			case "yaml":
				data, err := yaml.Marshal(descs)
				if err != nil {
					return fmt.Errorf("encoding yaml: %w", err)
				}
				_, err = out.Write(data)
				return err
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(descs)
			default:
				return fmt.Errorf("unknown format %q (want yaml or json)", format)
			}
		},
	}

	cmd.Flags().StringVar(&format, "format", "yaml", "Output format: yaml or json")

	return cmd
}
