package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/AgentsPilot/neuronforge-sub017/internal/handlers"
	"github.com/AgentsPilot/neuronforge-sub017/pkg/schema"
)

type intentsOptions struct {
	jsonOutput bool
}

type intentInfo struct {
	Intent string          `json:"intent"`
	Policy handlers.Policy `json:"policy"`
}

func newIntentsCmd(root *rootFlags) *cobra.Command {
	opts := &intentsOptions{}

	cmd := &cobra.Command{
		Use:   "intents",
		Short: "List the supported intents and their generation policy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.config()
			if err != nil {
				return err
			}
			policies, err := cfg.policies()
			if err != nil {
				return err
			}

			infos := make([]intentInfo, 0, len(schema.AllIntents()))
			for _, intent := range schema.AllIntents() {
				infos = append(infos, intentInfo{Intent: string(intent), Policy: policies.For(intent)})
			}

			if opts.jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(infos)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "INTENT\tTEMPERATURE\tMAX TOKENS\tOUTPUT ALLOWANCE")
			for _, info := range infos {
				fmt.Fprintf(w, "%s\t%.2f\t%d\t%d\n", info.Intent, info.Policy.Temperature, info.Policy.MaxTokens, info.Policy.OutputAllowance)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")

	return cmd
}
