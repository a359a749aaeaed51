package extraction

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jonathan/studyforge/internal/defect"
	"github.com/jonathan/studyforge/internal/idempotency"
	"github.com/jonathan/studyforge/internal/llm"
	"github.com/jonathan/studyforge/internal/normalize"
	"github.com/jonathan/studyforge/internal/prompts"
	"github.com/jonathan/studyforge/internal/reconcile"
	"github.com/jonathan/studyforge/internal/types"
	"github.com/jonathan/studyforge/internal/validation"
)

// DifficultyPipeline rates every question of a course from 1 to 5.
type DifficultyPipeline struct {
	deps  Deps
	guard *idempotency.Guard[[]types.DifficultyAssignment]
}

// NewDifficultyPipeline creates the pipeline.
func NewDifficultyPipeline(d Deps) *DifficultyPipeline {
	d = d.withDefaults()
	return &DifficultyPipeline{
		deps:  d,
		guard: idempotency.NewGuard(d.Store, DifficultyComplete, guardOptions(d, PipelineDifficulty)...),
	}
}

// DifficultyComplete reports whether stored assignments can be served as is.
func DifficultyComplete(a []types.DifficultyAssignment) bool {
	return len(a) > 0
}

// Run rates the questions of req.CourseID. Row updates run concurrently; a
// failed update is reported as a COMMIT_FAILED defect and leaves the outcome
// partial so the next request retries.
func (p *DifficultyPipeline) Run(ctx context.Context, model llm.Completer, req types.CourseRequest) (env *Envelope[[]types.DifficultyAssignment], err error) {
	ctx, span := startRun(ctx, PipelineDifficulty, req.CourseID)
	defer func() { finishRun(span, env, err) }()

	log := p.deps.Log.With("pipeline", PipelineDifficulty, "entity_id", req.CourseID.String())
	key := idempotency.Key{EntityID: req.CourseID, Kind: idempotency.KindDifficulty}

	compute := func(ctx context.Context) (idempotency.Outcome[[]types.DifficultyAssignment], error) {
		var zero idempotency.Outcome[[]types.DifficultyAssignment]
		questions, err := listQuestions(ctx, p.deps, PipelineDifficulty, req.CourseID)
		if err != nil {
			return zero, err
		}
		prompt, err := questionListPrompt(prompts.KeyDifficulty, questions)
		if err != nil {
			return zero, fail(PipelineDifficulty, StagePrompt, err)
		}
		text, err := complete(ctx, p.deps, log, PipelineDifficulty, model, prompt, p.deps.ClusterMaxTokens)
		if err != nil {
			return zero, err
		}
		return ExtractDifficulty(text, p.deps.Validator, questionIndex(questions))
	}

	out, err := p.guard.Run(ctx, key, compute, p.commit)
	if err != nil {
		log.Error("difficulty assignment failed", "error", err)
		return nil, fail(PipelineDifficulty, StageGuard, err)
	}
	log.Info("difficulty ready", "rated", len(out.Accepted), "unmatched", len(out.Unmatched),
		"defects", len(out.Defects), "cached", out.AlreadyCompleted)
	return envelope(out), nil
}

// commit writes every accepted level. Every update is attempted; failures are
// removed from Accepted and reported as defects.
func (p *DifficultyPipeline) commit(ctx context.Context, out *idempotency.Outcome[[]types.DifficultyAssignment]) (bool, error) {
	var (
		g      errgroup.Group
		mu     sync.Mutex
		failed = make(map[int]error)
	)
	g.SetLimit(p.deps.CommitConcurrency)
	for i, a := range out.Accepted {
		g.Go(func() error {
			if err := p.deps.Questions.SetDifficulty(ctx, a.QuestionID, a.Level); err != nil {
				mu.Lock()
				failed[i] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return false, fail(PipelineDifficulty, StageCommit, err)
	}
	if len(failed) == 0 {
		return false, nil
	}

	kept := make([]types.DifficultyAssignment, 0, len(out.Accepted)-len(failed))
	for i, a := range out.Accepted {
		if err, ok := failed[i]; ok {
			out.Defects = append(out.Defects, defect.At(defect.KindCommit, defect.CodeCommitFailed, i,
				a.QuestionID.String(), fmt.Sprintf("failed to store level %d: %v", a.Level, err)))
			continue
		}
		kept = append(kept, a)
	}
	out.Accepted = kept
	return true, nil
}

// ExtractDifficulty parses, normalizes, validates and reconciles a difficulty
// completion. Levels outside 1..5 are rejected, never clamped.
func ExtractDifficulty(text string, v *validation.Validator, lookup reconcile.Lookup) (idempotency.Outcome[[]types.DifficultyAssignment], error) {
	var out idempotency.Outcome[[]types.DifficultyAssignment]
	root, err := parse(PipelineDifficulty, text)
	if err != nil {
		return out, err
	}

	block, ok := root.Find("difficulty_levels")
	if !ok {
		return out, missing(PipelineDifficulty, "difficulty_levels")
	}

	var report defect.Report
	entries, ds := normalize.Difficulty(block)
	report.Add(ds...)
	entries, ds = v.Difficulty(entries)
	report.Add(ds...)

	candidates := make([]reconcile.Candidate[int], 0, len(entries))
	for _, e := range entries {
		candidates = append(candidates, reconcile.Candidate[int]{Key: e.QuestionText, Value: e.Level})
	}
	res := reconcile.Reconcile(candidates, lookup)

	accepted := make([]types.DifficultyAssignment, 0, len(res.Order))
	for _, id := range res.Order {
		accepted = append(accepted, types.DifficultyAssignment{QuestionID: id, Level: res.Accepted[id]})
	}
	out.Accepted = accepted
	out.Unmatched = unmatchedDefects(res.Unmatched)
	out.Defects = report.Defects
	return out, nil
}
