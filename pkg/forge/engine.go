package forge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/perbu/promptforge/pkg/config"
	"github.com/perbu/promptforge/pkg/corpus"
	"github.com/perbu/promptforge/pkg/embedder"
	"github.com/perbu/promptforge/pkg/index"
	"github.com/perbu/promptforge/pkg/judge"
	"github.com/perbu/promptforge/pkg/llm"
	"github.com/perbu/promptforge/pkg/refiner"
	"github.com/perbu/promptforge/pkg/retriever"
	"go.uber.org/zap"
)

// Engine holds the process-wide handles. Capabilities that failed to
// initialize are replaced by unavailable stand-ins so every call still
// returns its fallback value.
type Engine struct {
	Records   []corpus.Record
	Retriever *retriever.Retriever
	Generator llm.Generator
	Refiner   *refiner.Refiner
	Judge     *judge.Judge
	Pipeline  *Pipeline

	embedder embedder.Embedder
	logger   *zap.Logger
}

// Init builds the engine from cfg. Only an invalid configuration or an
// unreadable corpus is an error; an unreachable embedder, a missing index
// or missing credentials are logged once and degrade the affected stages.
func Init(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	records, err := LoadCorpus(cfg.Index.Corpus)
	if err != nil {
		return nil, err
	}
	e := &Engine{Records: records, logger: logger}

	e.embedder, err = embedder.New(ctx, cfg.Embedding)
	if err != nil {
		logger.Warn("embedder unavailable, retrieval disabled", zap.String("provider", cfg.Embedding.Provider), zap.Error(err))
	} else if idx, err := index.Load(cfg.Index.Path); err != nil {
		logger.Warn("index unavailable, retrieval disabled", zap.String("path", cfg.Index.Path), zap.Error(err))
	} else if e.Retriever, err = retriever.New(e.embedder, idx, records, logger); err != nil {
		logger.Warn("index does not match corpus or embedder, rebuild it with build-index", zap.String("path", cfg.Index.Path), zap.Error(err))
	} else {
		logger.Info("retrieval ready", zap.Int("entries", idx.Size()), zap.String("model", idx.ModelInfo()))
	}

	e.Generator, err = llm.New(ctx, cfg.GeneratorConfig(), logger)
	if err != nil {
		logger.Warn("llm unavailable, generation will degrade", zap.String("provider", cfg.LLM.Provider), zap.Error(err))
		e.Generator = llm.Unconfigured{}
	}

	e.Refiner = refiner.New(e.Generator, logger)
	e.Judge = judge.New(e.Generator, logger)
	e.Pipeline = NewPipeline(e.Retriever, e.Refiner, e.Generator, e.Judge, Options{
		K:        cfg.Retrieval.K,
		Parallel: cfg.Pipeline.Parallel,
	}, logger)
	return e, nil
}

// LoadCorpus returns the built-in corpus, or the corpus file at path when
// path is set.
func LoadCorpus(path string) ([]corpus.Record, error) {
	if path == "" {
		return corpus.Default()
	}
	return corpus.Load(os.DirFS(filepath.Dir(path)), filepath.Base(path))
}

// Close releases the engine's handles.
func (e *Engine) Close() error {
	var errs []error
	if c, ok := e.embedder.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// WithObserver returns a pipeline sharing the engine's stages that reports
// state changes to obs.
func (e *Engine) WithObserver(obs Observer) *Pipeline {
	p := *e.Pipeline
	p.opts.Observer = obs
	return &p
}

// RetrieveRelevantExamples returns up to k formatted examples, or an empty
// slice when retrieval is unavailable.
func (e *Engine) RetrieveRelevantExamples(ctx context.Context, query string, k int) []string {
	examples, err := e.Retriever.Retrieve(ctx, query, k)
	if err != nil {
		e.logger.Warn("retrieval failed", zap.Error(err))
		return []string{}
	}
	return examples
}

// RefinePrompt rewrites userPrompt. It returns userPrompt unchanged when
// refinement fails.
func (e *Engine) RefinePrompt(ctx context.Context, userPrompt, strategyInstruction, examples string) string {
	refined, _ := e.RefineOrOriginal(ctx, userPrompt, strategyInstruction, examples)
	return refined
}

// RefineOrOriginal is RefinePrompt that also reports why it fell back. The
// error is nil whenever the returned text came from the model, even if it
// equals userPrompt.
func (e *Engine) RefineOrOriginal(ctx context.Context, userPrompt, strategyInstruction, examples string) (string, error) {
	return e.Refiner.RefineOrOriginal(ctx, userPrompt, strategyInstruction, examples)
}

// LLMResponse generates an answer for prompt, or an error message in its
// place.
func (e *Engine) LLMResponse(ctx context.Context, prompt string) string {
	return Respond(ctx, e.Generator, prompt)
}

// EvaluateOutputs scores both answers, or returns zero scores on failure.
func (e *Engine) EvaluateOutputs(ctx context.Context, original, refined, userPrompt string) judge.Scores {
	scores, _ := e.Judge.Evaluate(ctx, original, refined, userPrompt)
	return scores
}
