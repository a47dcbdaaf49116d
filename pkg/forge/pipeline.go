// Package forge runs the refine, generate and evaluate pipeline and exposes
// the entry points used by the CLI and the HTTP API.
package forge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/perbu/promptforge/pkg/corpus"
	"github.com/perbu/promptforge/pkg/judge"
	"github.com/perbu/promptforge/pkg/llm"
	"github.com/perbu/promptforge/pkg/metrics"
	"github.com/perbu/promptforge/pkg/refiner"
	"github.com/perbu/promptforge/pkg/retriever"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	ErrEmptyPrompt     = errors.New("prompt is empty")
	ErrInvalidStrategy = errors.New("invalid strategy")
)

var tracer = otel.GetTracerProvider().Tracer("promptforge/forge")

// Retriever returns formatted examples relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]string, error)
}

// Refiner rewrites a prompt, returning the original prompt and an error
// when it cannot.
type Refiner interface {
	RefineOrOriginal(ctx context.Context, userPrompt, instruction, examples string) (string, error)
}

// Judge scores a pair of answers.
type Judge interface {
	Evaluate(ctx context.Context, original, refined, userPrompt string) (judge.Scores, error)
}

// Options tune a Pipeline.
type Options struct {
	// K is the number of examples to retrieve. Zero means 3.
	K int
	// Parallel generates both answers concurrently.
	Parallel bool
	// Observer, if set, is told about every state the run enters.
	Observer Observer
}

// Input is what the user submits.
type Input struct {
	Prompt   string
	Strategy corpus.Strategy
}

// Pipeline sequences retrieval, refinement, both generations and the
// evaluation. It never aborts after validation: a failing stage records a
// Degradation and the run continues with that stage's fallback value.
type Pipeline struct {
	retriever Retriever
	refiner   Refiner
	gen       llm.Generator
	judge     Judge
	opts      Options
	logger    *zap.Logger
}

// NewPipeline wires the stages. Nil stages are treated as unavailable.
func NewPipeline(r Retriever, ref Refiner, gen llm.Generator, j Judge, opts Options, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gen == nil {
		gen = llm.Unconfigured{}
	}
	if ref == nil {
		ref = refiner.New(gen, logger)
	}
	if j == nil {
		j = judge.New(gen, logger)
	}
	if opts.K <= 0 {
		opts.K = 3
	}
	return &Pipeline{retriever: r, refiner: ref, gen: gen, judge: j, opts: opts, logger: logger}
}

// Run executes one pipeline run and appends the result to history when
// history is non-nil. Only validation errors are returned; in that case no
// run is produced.
func (p *Pipeline) Run(ctx context.Context, in Input, history *History) (*Run, error) {
	if strings.TrimSpace(in.Prompt) == "" {
		return nil, ErrEmptyPrompt
	}
	instruction, err := refiner.Instruction(in.Strategy)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStrategy, err)
	}

	ctx, span := tracer.Start(ctx, "forge.run", trace.WithAttributes(
		attribute.String("forge.strategy", in.Strategy.String()),
		attribute.Int("forge.prompt_length", len(in.Prompt)),
	))
	defer span.End()

	run := &Run{
		ID:         uuid.NewString(),
		UserPrompt: in.Prompt,
		Strategy:   in.Strategy,
	}
	p.logger.Info("pipeline started", zap.String("run_id", run.ID), zap.String("strategy", in.Strategy.String()))

	run.Examples = p.retrieve(ctx, run)
	run.RefinedPrompt = p.refine(ctx, run, instruction)
	run.OriginalOutput, run.RefinedOutput = p.generateBoth(ctx, run)

	p.stage(ctx, Evaluating, func(ctx context.Context) error {
		scores, err := p.judge.Evaluate(ctx, run.OriginalOutput, run.RefinedOutput, run.UserPrompt)
		run.OriginalScore, run.RefinedScore = scores.Original, scores.Refined
		return err
	}, run)

	p.enter(Complete)
	run.CreatedAt = time.Now()
	if history != nil {
		history.Append(run)
	}

	metrics.PipelineRunsTotal.WithLabelValues(in.Strategy.String()).Inc()
	span.SetAttributes(
		attribute.Int("forge.score_original", run.OriginalScore),
		attribute.Int("forge.score_refined", run.RefinedScore),
		attribute.Int("forge.degradations", len(run.Degradations)),
	)
	p.logger.Info("pipeline complete",
		zap.String("run_id", run.ID),
		zap.Int("examples", len(run.Examples)),
		zap.Int("score_original", run.OriginalScore),
		zap.Int("score_refined", run.RefinedScore),
		zap.Int("degradations", len(run.Degradations)))
	return run, nil
}

func (p *Pipeline) retrieve(ctx context.Context, run *Run) []string {
	examples := []string{}
	p.stage(ctx, Retrieving, func(ctx context.Context) error {
		if p.retriever == nil {
			return retriever.ErrUnavailable
		}
		got, err := p.retriever.Retrieve(ctx, run.UserPrompt, p.opts.K)
		if err != nil {
			return err
		}
		if got != nil {
			examples = got
		}
		return nil
	}, run)
	return examples
}

func (p *Pipeline) refine(ctx context.Context, run *Run, instruction string) string {
	refined := run.UserPrompt
	p.stage(ctx, Refining, func(ctx context.Context) error {
		var err error
		refined, err = p.refiner.RefineOrOriginal(ctx, run.UserPrompt, instruction, refiner.JoinExamples(run.Examples))
		return err
	}, run)
	return refined
}

func (p *Pipeline) generateBoth(ctx context.Context, run *Run) (original, refined string) {
	genOriginal := func(ctx context.Context) error {
		var err error
		original, err = generate(ctx, p.gen, run.UserPrompt)
		return err
	}
	genRefined := func(ctx context.Context) error {
		var err error
		refined, err = generate(ctx, p.gen, run.RefinedPrompt)
		return err
	}

	if !p.opts.Parallel {
		p.stage(ctx, GeneratingOriginal, genOriginal, run)
		p.stage(ctx, GeneratingRefined, genRefined, run)
		return original, refined
	}

	p.enter(GeneratingOriginal)
	p.enter(GeneratingRefined)
	// Each failure degrades its own stage, so both errors are kept.
	var errOriginal, errRefined error
	var wg sync.WaitGroup
	wg.Go(func() { errOriginal = p.traced(ctx, GeneratingOriginal, genOriginal) })
	wg.Go(func() { errRefined = p.traced(ctx, GeneratingRefined, genRefined) })
	wg.Wait()
	p.degrade(run, GeneratingOriginal, errOriginal)
	p.degrade(run, GeneratingRefined, errRefined)
	return original, refined
}

// stage enters s, runs fn inside a span and records a degradation if fn
// fails.
func (p *Pipeline) stage(ctx context.Context, s State, fn func(context.Context) error, run *Run) {
	p.enter(s)
	p.degrade(run, s, p.traced(ctx, s, fn))
}

func (p *Pipeline) traced(ctx context.Context, s State, fn func(context.Context) error) error {
	ctx, span := tracer.Start(ctx, "forge."+s.String())
	defer span.End()
	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (p *Pipeline) enter(s State) {
	p.logger.Debug("pipeline state", zap.String("state", s.String()))
	if p.opts.Observer != nil {
		p.opts.Observer(s)
	}
}

func (p *Pipeline) degrade(run *Run, s State, err error) {
	if err == nil {
		return
	}
	run.Degradations = append(run.Degradations, Degradation{Stage: s, Err: err})
	metrics.DegradationsTotal.WithLabelValues(s.String()).Inc()
	p.logger.Warn("pipeline stage degraded", zap.String("run_id", run.ID), zap.String("stage", s.String()), zap.Error(err))
}
