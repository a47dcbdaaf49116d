// Package refiner rewrites a user prompt into a stronger one, guided by a
// strategy persona and retrieved example prompts.
package refiner

import (
	"context"
	"fmt"
	"strings"

	"github.com/perbu/promptforge/pkg/llm"
	"go.uber.org/zap"
)

// NoExamples stands in for the example block when retrieval found nothing.
const NoExamples = "No relevant examples found in knowledge base."

// JoinExamples joins formatted examples with a blank line between them. An
// empty list yields NoExamples.
func JoinExamples(examples []string) string {
	if len(examples) == 0 {
		return NoExamples
	}
	return strings.Join(examples, "\n\n")
}

// BuildMessage is the user-level message sent alongside the strategy
// instruction. The prompt and examples are embedded verbatim.
func BuildMessage(userPrompt, examples string) string {
	if strings.TrimSpace(examples) == "" {
		examples = NoExamples
	}
	var b strings.Builder
	b.WriteString("**User's Basic Prompt:**\n")
	b.WriteString("\"" + userPrompt + "\"\n\n")
	b.WriteString("**Examples of High-Quality Prompts to Learn From:**\n")
	b.WriteString(examples)
	b.WriteString("\n")
	return b.String()
}

// Refiner asks a Generator to rewrite prompts.
type Refiner struct {
	gen    llm.Generator
	logger *zap.Logger
}

// New returns a Refiner using gen. A nil gen behaves as llm.Unconfigured.
func New(gen llm.Generator, logger *zap.Logger) *Refiner {
	if gen == nil {
		gen = llm.Unconfigured{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Refiner{gen: gen, logger: logger}
}

// Refine makes one generation call with instruction as the system prompt
// and returns the trimmed rewrite.
func (r *Refiner) Refine(ctx context.Context, userPrompt, instruction, examples string) (string, error) {
	text, err := r.gen.Generate(ctx, llm.Request{
		Prompt: BuildMessage(userPrompt, examples),
		System: instruction,
	})
	if err != nil {
		return "", fmt.Errorf("refine: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("refine: %w", llm.ErrEmptyResponse)
	}
	return text, nil
}

// RefineOrOriginal is Refine with the fallback applied: on any failure it
// returns userPrompt unchanged together with the error.
func (r *Refiner) RefineOrOriginal(ctx context.Context, userPrompt, instruction, examples string) (string, error) {
	text, err := r.Refine(ctx, userPrompt, instruction, examples)
	if err != nil {
		r.logger.Warn("refinement failed, using original prompt", zap.Error(err))
		return userPrompt, err
	}
	return text, nil
}
