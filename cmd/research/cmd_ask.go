package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Harshitk-cp/smartsearch/internal/domain"
	"github.com/Harshitk-cp/smartsearch/internal/engine"
	"github.com/spf13/cobra"
)

var askFlags struct {
	deadline   time.Duration
	backends   []string
	floor      float64
	maxResults int
	trace      bool
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Research a question and print the cited answer",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	f := askCmd.Flags()
	f.DurationVar(&askFlags.deadline, "deadline", 0, "Overall time budget (default from RESEARCH_DEADLINE_MS)")
	f.StringSliceVar(&askFlags.backends, "backend", nil, "Backend to query instead of routing (repeatable)")
	f.Float64Var(&askFlags.floor, "floor", -1, "Confidence floor override in [0,1]")
	f.IntVar(&askFlags.maxResults, "max-results", 0, "Evidence items per backend")
	f.BoolVar(&askFlags.trace, "trace", false, "Include the decision trace and backend invocations")
}

type askOutput struct {
	QueryID     string                   `json:"query_id,omitempty"`
	Answer      string                   `json:"answer,omitempty"`
	Confidence  float64                  `json:"confidence,omitempty"`
	Intents     []domain.Intent          `json:"intents,omitempty"`
	Citations   []domain.Citation        `json:"citations,omitempty"`
	Error       string                   `json:"error,omitempty"`
	Trace       []domain.TraceEntry      `json:"trace,omitempty"`
	Invocations []*domain.ToolInvocation `json:"invocations,omitempty"`
}

func runAsk(cmd *cobra.Command, args []string) error {
	opts := engine.Options{
		Backends:             askFlags.backends,
		MaxResultsPerBackend: askFlags.maxResults,
	}
	if askFlags.deadline > 0 {
		opts.DeadlineMs = int(askFlags.deadline.Milliseconds())
	}
	if cmd.Flags().Changed("floor") {
		if askFlags.floor < 0 || askFlags.floor > 1 {
			return fmt.Errorf("--floor must be between 0 and 1, got %v", askFlags.floor)
		}
		floor := askFlags.floor
		opts.ConfidenceFloor = &floor
	}

	r, err := newResearcher(cliLogger())
	if err != nil {
		return fmt.Errorf("build research engine: %w", err)
	}

	ans, err := r.Research(cmd.Context(), strings.Join(args, " "), opts)
	out := askOutput{}
	if err != nil {
		out.Error = err.Error()
		var re *domain.ResearchError
		if errors.As(err, &re) {
			out.QueryID = re.QueryID
			if askFlags.trace {
				out.Trace = re.Trace
				out.Invocations = re.Invocations
			}
		}
		var sfe *domain.SynthesisFailedError
		if errors.As(err, &sfe) {
			out.Citations = sfe.Citations
		}
	} else {
		out.QueryID = ans.QueryID
		out.Answer = ans.Text
		out.Confidence = ans.Confidence
		out.Intents = ans.Intents
		out.Citations = ans.Citations
		if askFlags.trace {
			out.Trace = ans.Trace
			out.Invocations = ans.Invocations
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(out); encErr != nil {
		return encErr
	}
	return err
}
