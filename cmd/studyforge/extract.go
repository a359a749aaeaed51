package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/studyforge/internal/defect"
	"github.com/jonathan/studyforge/internal/extraction"
	"github.com/jonathan/studyforge/internal/observability"
	"github.com/jonathan/studyforge/internal/reconcile"
	"github.com/jonathan/studyforge/internal/types"
	"github.com/jonathan/studyforge/internal/validation"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Run extraction over a saved model completion",
	Long: `Parses a completion file the way the named pipeline would and prints the
accepted payload with its defects as JSON. Nothing is stored and no model is called.

Kinds: suggestions, study_plan, topics, difficulty, questions.
topics and difficulty reconcile against --questions, a JSON array of {"id", "question"}.`,
	RunE: runExtract,
}

type extractOptions struct {
	Kind          string
	InputFile     string
	QuestionsFile string
	Weeks         int
	Verbose       bool
}

var extractOpts extractOptions

func init() {
	extractCmd.Flags().StringVarP(&extractOpts.Kind, "kind", "k", "", "Pipeline to extract for (required)")
	extractCmd.Flags().StringVarP(&extractOpts.InputFile, "in", "i", "", "Path to the completion text (required)")
	extractCmd.Flags().StringVarP(&extractOpts.QuestionsFile, "questions", "q", "", "Path to the known questions JSON (topics, difficulty)")
	extractCmd.Flags().IntVar(&extractOpts.Weeks, "weeks", 1, "Number of plan weeks (study_plan)")
	extractCmd.Flags().BoolVarP(&extractOpts.Verbose, "verbose", "v", false, "Print a defect summary to stderr")

	if err := extractCmd.MarkFlagRequired("kind"); err != nil {
		panic(fmt.Sprintf("failed to mark kind flag as required: %v", err))
	}
	if err := extractCmd.MarkFlagRequired("in"); err != nil {
		panic(fmt.Sprintf("failed to mark in flag as required: %v", err))
	}
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, _ []string) error {
	return extract(cmd.OutOrStdout(), cmd.ErrOrStderr(), extractOpts)
}

// extractResult is what every kind reduces to for printing.
type extractResult struct {
	payload   any
	accepted  int
	defects   []defect.Defect
	unmatched []defect.Defect
}

func extract(out, verboseOut io.Writer, opts extractOptions) error {
	text, err := os.ReadFile(opts.InputFile)
	if err != nil {
		return fmt.Errorf("failed to read completion file: %w", err)
	}

	res, pipeline, err := extractKind(string(text), opts)
	if err != nil {
		return err
	}

	if opts.Verbose {
		observability.NewPrinter(verboseOut).PrintSummary(observability.Summary{
			Pipeline:  pipeline,
			Accepted:  res.accepted,
			Defects:   res.defects,
			Unmatched: res.unmatched,
		})
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(res.payload)
}

func extractKind(text string, opts extractOptions) (extractResult, string, error) {
	v := validation.New()
	switch strings.ToLower(opts.Kind) {
	case "suggestions":
		o, err := extraction.ExtractSuggestions(text, v)
		if err != nil {
			return extractResult{}, "", err
		}
		return extractResult{o, len(o.Accepted.Suggestions), o.Defects, o.Unmatched}, extraction.PipelineSuggestions, nil

	case "study_plan", "plan":
		if opts.Weeks < 1 {
			return extractResult{}, "", fmt.Errorf("--weeks must be at least 1")
		}
		o, err := extraction.ExtractStudyPlan(text, v, opts.Weeks)
		if err != nil {
			return extractResult{}, "", err
		}
		return extractResult{o, len(o.Accepted.Schedule), o.Defects, o.Unmatched}, extraction.PipelineStudyPlan, nil

	case "topics":
		lookup, err := loadQuestionIndex(opts.QuestionsFile)
		if err != nil {
			return extractResult{}, "", err
		}
		o, err := extraction.ExtractTopics(text, v, lookup)
		if err != nil {
			return extractResult{}, "", err
		}
		return extractResult{o, len(o.Accepted.Assignments), o.Defects, o.Unmatched}, extraction.PipelineTopics, nil

	case "difficulty":
		lookup, err := loadQuestionIndex(opts.QuestionsFile)
		if err != nil {
			return extractResult{}, "", err
		}
		o, err := extraction.ExtractDifficulty(text, v, lookup)
		if err != nil {
			return extractResult{}, "", err
		}
		return extractResult{o, len(o.Accepted), o.Defects, o.Unmatched}, extraction.PipelineDifficulty, nil

	case "questions", "question_set":
		o, err := extraction.ExtractQuestions(text, v)
		if err != nil {
			return extractResult{}, "", err
		}
		return extractResult{o, len(o.Accepted), o.Defects, o.Unmatched}, extraction.PipelineQuestionSet, nil

	default:
		return extractResult{}, "", fmt.Errorf("unknown kind %q", opts.Kind)
	}
}

// loadQuestionIndex reads known questions for reconciliation. Questions
// without an id get a random one so matches are still reported.
func loadQuestionIndex(path string) (reconcile.Index, error) {
	if path == "" {
		return nil, fmt.Errorf("--questions is required for this kind")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read questions file: %w", err)
	}
	var questions []types.Question
	if err := json.Unmarshal(data, &questions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal questions JSON: %w", err)
	}
	for i := range questions {
		if questions[i].ID == uuid.Nil {
			questions[i].ID = uuid.New()
		}
	}
	return reconcile.NewIndex(questions,
		func(q types.Question) string { return q.Text },
		func(q types.Question) uuid.UUID { return q.ID },
	), nil
}
