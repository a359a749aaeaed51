package extraction

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jonathan/studyforge/internal/defect"
	"github.com/jonathan/studyforge/internal/idempotency"
	"github.com/jonathan/studyforge/internal/llm"
	"github.com/jonathan/studyforge/internal/normalize"
	"github.com/jonathan/studyforge/internal/prompts"
	"github.com/jonathan/studyforge/internal/reconcile"
	"github.com/jonathan/studyforge/internal/types"
	"github.com/jonathan/studyforge/internal/validation"
)

// TopicPipeline groups the questions of a course into topics and records each
// question's topic.
type TopicPipeline struct {
	deps  Deps
	guard *idempotency.Guard[types.TopicResult]
}

// NewTopicPipeline creates the pipeline.
func NewTopicPipeline(d Deps) *TopicPipeline {
	d = d.withDefaults()
	return &TopicPipeline{
		deps:  d,
		guard: idempotency.NewGuard(d.Store, TopicsComplete, guardOptions(d, PipelineTopics)...),
	}
}

// TopicsComplete reports whether a stored result can be served as is.
func TopicsComplete(r types.TopicResult) bool {
	return len(r.Assignments) > 0
}

// Run clusters the questions of req.CourseID.
func (p *TopicPipeline) Run(ctx context.Context, model llm.Completer, req types.CourseRequest) (env *Envelope[types.TopicResult], err error) {
	ctx, span := startRun(ctx, PipelineTopics, req.CourseID)
	defer func() { finishRun(span, env, err) }()

	log := p.deps.Log.With("pipeline", PipelineTopics, "entity_id", req.CourseID.String())
	key := idempotency.Key{EntityID: req.CourseID, Kind: idempotency.KindTopics}

	compute := func(ctx context.Context) (idempotency.Outcome[types.TopicResult], error) {
		var zero idempotency.Outcome[types.TopicResult]
		questions, err := listQuestions(ctx, p.deps, PipelineTopics, req.CourseID)
		if err != nil {
			return zero, err
		}
		prompt, err := questionListPrompt(prompts.KeyTopicClustering, questions)
		if err != nil {
			return zero, fail(PipelineTopics, StagePrompt, err)
		}
		text, err := complete(ctx, p.deps, log, PipelineTopics, model, prompt, p.deps.ClusterMaxTokens)
		if err != nil {
			return zero, err
		}
		return ExtractTopics(text, p.deps.Validator, questionIndex(questions))
	}

	commit := func(ctx context.Context, out *idempotency.Outcome[types.TopicResult]) (bool, error) {
		if len(out.Accepted.Assignments) == 0 {
			return false, nil
		}
		if err := p.deps.Questions.SetTopics(ctx, out.Accepted.Assignments); err != nil {
			return false, fail(PipelineTopics, StageCommit, err)
		}
		return false, nil
	}

	out, err := p.guard.Run(ctx, key, compute, commit)
	if err != nil {
		log.Error("topic clustering failed", "error", err)
		return nil, fail(PipelineTopics, StageGuard, err)
	}
	log.Info("topics ready", "topics", len(out.Accepted.Clusters), "assigned", len(out.Accepted.Assignments),
		"unmatched", len(out.Unmatched), "defects", len(out.Defects), "cached", out.AlreadyCompleted)
	return envelope(out), nil
}

// ExtractTopics parses, normalizes, validates and reconciles a clustering
// completion. Member texts are joined to questions through lookup.
func ExtractTopics(text string, v *validation.Validator, lookup reconcile.Lookup) (idempotency.Outcome[types.TopicResult], error) {
	var out idempotency.Outcome[types.TopicResult]
	root, err := parse(PipelineTopics, text)
	if err != nil {
		return out, err
	}

	blocks := root.FindAll("topic")
	if len(blocks) == 0 {
		return out, missing(PipelineTopics, "topic")
	}

	var report defect.Report
	clusters, ds := normalize.Topics(blocks)
	report.Add(ds...)
	clusters, ds = v.Topics(clusters)
	report.Add(ds...)

	var candidates []reconcile.Candidate[string]
	for _, c := range clusters {
		for _, member := range c.Members {
			candidates = append(candidates, reconcile.Candidate[string]{Key: member, Value: c.Name})
		}
	}
	res := reconcile.Reconcile(candidates, lookup)

	assignments := make([]types.TopicAssignment, 0, len(res.Order))
	for _, id := range res.Order {
		assignments = append(assignments, types.TopicAssignment{QuestionID: id, Topic: res.Accepted[id]})
	}
	out.Accepted = types.TopicResult{Clusters: nonNil(clusters), Assignments: assignments}
	out.Unmatched = unmatchedDefects(res.Unmatched)
	out.Defects = report.Defects
	return out, nil
}

func listQuestions(ctx context.Context, d Deps, pipeline string, courseID uuid.UUID) ([]types.Question, error) {
	questions, err := d.Questions.ListQuestions(ctx, courseID)
	if err != nil {
		return nil, fail(pipeline, StageLoad, err)
	}
	if len(questions) == 0 {
		return nil, fail(pipeline, StageLoad, fmt.Errorf("%w: %s", ErrNoQuestions, courseID))
	}
	return questions, nil
}

// questionIndex resolves canonical question text to question ids.
func questionIndex(questions []types.Question) reconcile.Index {
	return reconcile.NewIndex(questions,
		func(q types.Question) string { return q.Text },
		func(q types.Question) uuid.UUID { return q.ID },
	)
}

type promptQuestion struct {
	Question string   `json:"question"`
	Options  []string `json:"options,omitempty"`
}

func questionListPrompt(key string, questions []types.Question) (string, error) {
	list := make([]promptQuestion, 0, len(questions))
	for _, q := range questions {
		list = append(list, promptQuestion{Question: q.Text, Options: q.Options})
	}
	data, err := promptJSON(list)
	if err != nil {
		return "", fmt.Errorf("failed to encode questions: %w", err)
	}
	return prompts.Render(prompts.Extraction, key, map[string]string{"Questions": data})
}
