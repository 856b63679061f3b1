package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pagewise-ai/pagewise/internal/eval"
	"github.com/pagewise-ai/pagewise/internal/output"
)

// newEvalCmd creates the eval command.
func newEvalCmd() *cobra.Command {
	var threshold float64
	var rerank bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "eval <cases.yaml>",
		Short: "Run the evaluation harness against the indexed corpus",
		Long: `Eval runs a fixed set of labeled query cases, measures retrieval accuracy
and latency percentiles, and renders a pass/fail decision gate. The run is
advisory: it never modifies the index.

The command exits non-zero when accuracy falls below the gate threshold.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cases, err := eval.LoadCases(args[0])
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			report, err := eval.Run(cmd.Context(), a.engine, cases, eval.Options{
				Threshold:   threshold,
				UseReranker: rerank,
			})
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return err
				}
			} else {
				output.NewRenderer(cmd.OutOrStdout()).RenderReport(report)
			}

			if !report.Pass {
				return fmt.Errorf("accuracy %.2f below gate threshold %.2f",
					report.Accuracy, report.Threshold)
			}
			return nil
		},
	}

	cmd.Flags().Float64Var(&threshold, "threshold", eval.DefaultThreshold,
		"Accuracy gate threshold (pass when accuracy >= threshold)")
	cmd.Flags().BoolVar(&rerank, "rerank", false, "Rerank every evaluation query")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the report as JSON")

	return cmd
}
