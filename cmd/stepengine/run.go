package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AgentsPilot/neuronforge-sub017/internal/handlers"
)

type runOptions struct {
	stepPaths   []string
	outputsPath string
	responses   []string
	concurrency int
	pretty      bool
}

func newRunCmd(root *rootFlags) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one step document and print its result",
		Long: `Execute one step document and print the handler result as JSON.

The document carries step_id, intent, input, routing and budget, plus the
optional memory, expected_output and outputs of earlier steps. Use --step -
to read it from stdin. Repeat --step to run independent steps concurrently;
their results are printed as a JSON array in the same order. The command
exits non-zero when a step fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStep(cmd, root, opts)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.stepPaths, "step", "s", nil, "Step document (JSON file, or - for stdin); repeatable")
	cmd.Flags().StringVarP(&opts.outputsPath, "outputs", "o", "", "JSON object of prior step outputs keyed by step id")
	cmd.Flags().StringArrayVarP(&opts.responses, "response", "r", nil, "Canned model reply; repeat for several calls (no backend is contacted)")
	cmd.Flags().IntVarP(&opts.concurrency, "concurrency", "c", 4, "Steps executed at once when several are given")
	cmd.Flags().BoolVar(&opts.pretty, "pretty", false, "Indent the result")
	_ = cmd.MarkFlagRequired("step")

	return cmd
}

func runStep(cmd *cobra.Command, root *rootFlags, opts *runOptions) error {
	var outputs []byte
	if opts.outputsPath != "" {
		var err error
		if outputs, err = os.ReadFile(opts.outputsPath); err != nil {
			return fmt.Errorf("read outputs: %w", err)
		}
	}

	docs := make([][]byte, 0, len(opts.stepPaths))
	for _, path := range opts.stepPaths {
		raw, err := readInput(path, cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read step %s: %w", path, err)
		}
		if outputs != nil {
			if raw, err = mergeOutputs(raw, outputs); err != nil {
				return err
			}
		}
		docs = append(docs, raw)
	}

	cfg, err := root.config()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, cmd.ErrOrStderr(), opts.responses)
	if err != nil {
		return err
	}

	steps := make([]*handlers.StepContext, 0, len(docs))
	for i, raw := range docs {
		sc, err := handlers.DecodeStep(raw, a.deps.Schemas)
		if err != nil {
			return fmt.Errorf("%s: %w", opts.stepPaths[i], err)
		}
		steps = append(steps, sc)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	enc := json.NewEncoder(cmd.OutOrStdout())
	if opts.pretty {
		enc.SetIndent("", "  ")
	}

	if len(steps) == 1 {
		res := a.registry.Execute(ctx, steps[0])
		if err := enc.Encode(res); err != nil {
			return fmt.Errorf("write result: %w", err)
		}
		if !res.Success {
			return fmt.Errorf("step %s failed: %s", steps[0].StepID, res.ErrorCode)
		}
		return nil
	}

	results, stats := a.registry.ExecuteBatch(ctx, steps, opts.concurrency)
	a.logger.Info("batch finished", "succeeded", stats.Succeeded, "failed", stats.Failed, "not_started", stats.NotStarted)
	if err := enc.Encode(results); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	if stats.Failed > 0 {
		return fmt.Errorf("%d of %d steps failed", stats.Failed, len(steps))
	}
	return nil
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

// mergeOutputs adds the entries of an outputs file to the document's
// outputs. File entries win over ones already in the document.
func mergeOutputs(doc, outputs []byte) ([]byte, error) {
	var step map[string]any
	if err := json.Unmarshal(doc, &step); err != nil {
		return nil, fmt.Errorf("step document: %w", err)
	}
	var extra map[string]any
	if err := json.Unmarshal(outputs, &extra); err != nil {
		return nil, fmt.Errorf("outputs file: %w", err)
	}

	merged, _ := step["outputs"].(map[string]any)
	if merged == nil {
		merged = make(map[string]any, len(extra))
	}
	for id, v := range extra {
		merged[id] = v
	}
	step["outputs"] = merged
	return json.Marshal(step)
}
