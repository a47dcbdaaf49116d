package forge

import (
	"context"
	"errors"
	"fmt"

	"github.com/perbu/promptforge/pkg/llm"
)

// NotConfigured is the answer text used when no generation backend exists.
const NotConfigured = "Error: LLM API not configured."

// Respond generates an answer for prompt. Failures are returned as an
// error message in place of the answer, which downstream stages treat as
// an ordinary low-quality output.
func Respond(ctx context.Context, gen llm.Generator, prompt string) string {
	text, _ := generate(ctx, gen, prompt)
	return text
}

func generate(ctx context.Context, gen llm.Generator, prompt string) (string, error) {
	if gen == nil {
		gen = llm.Unconfigured{}
	}
	text, err := gen.Generate(ctx, llm.Request{Prompt: prompt})
	if err != nil {
		if errors.Is(err, llm.ErrNotConfigured) {
			return NotConfigured, err
		}
		return fmt.Sprintf("Error generating response: %v", err), err
	}
	return text, nil
}
