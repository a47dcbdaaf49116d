// Package judge scores the answer to an original prompt against the answer
// to its refined version using an LLM as the evaluator.
package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/perbu/promptforge/pkg/llm"
	"go.uber.org/zap"
)

const (
	MinScore = 1
	MaxScore = 10
)

// ErrMalformedVerdict is returned when the evaluator's answer is not a JSON
// object with exactly two integer scores in range.
var ErrMalformedVerdict = errors.New("malformed verdict")

// Scores holds the evaluator's verdict. Response A is the answer to the
// original prompt, response B the answer to the refined prompt. The zero
// value is the failure sentinel.
type Scores struct {
	Original int `json:"score_A"`
	Refined  int `json:"score_B"`
}

// Schema constrains the evaluator's output.
var Schema = &llm.Schema{
	Name: "judge_output",
	Fields: []llm.Field{
		{Name: "score_A", Type: llm.Integer, Description: "Score for Response A, 1 to 10"},
		{Name: "score_B", Type: llm.Integer, Description: "Score for Response B, 1 to 10"},
	},
}

// BuildPrompt returns the evaluation instruction for one comparison.
func BuildPrompt(original, refined, userPrompt string) string {
	var b strings.Builder
	b.WriteString("You are an impartial and meticulous AI Quality Analyst. ")
	b.WriteString("Your task is to evaluate two AI-generated responses based on a user's request. ")
	b.WriteString("You must compare them on the following criteria:\n")
	b.WriteString("1. **Relevance**: How well does the response address the user's core request?\n")
	b.WriteString("2. **Clarity**: Is the response clear, well-structured, and easy to understand?\n")
	b.WriteString("3. **Detail & Completeness**: Does the response provide an appropriate level of detail to be useful?\n\n")
	fmt.Fprintf(&b, "You will score each response on a scale of %d to %d, where %d is poor and %d is excellent. ", MinScore, MaxScore, MinScore, MaxScore)
	b.WriteString("Your response MUST be a valid JSON object and nothing else.\n\n")
	b.WriteString("---\n**User's Request:**\n\"" + userPrompt + "\"\n\n")
	b.WriteString("---\n**Response A (from original prompt):**\n\"" + original + "\"\n\n")
	b.WriteString("---\n**Response B (from refined prompt):**\n\"" + refined + "\"\n---\n\n")
	b.WriteString(`Now, provide your evaluation. Respond ONLY with a JSON object containing two keys: "score_A" and "score_B".`)
	return b.String()
}

// Decode parses a verdict strictly. Unknown or missing fields, non-integer
// values and scores outside MinScore..MaxScore are rejected.
func Decode(text string) (Scores, error) {
	var raw struct {
		A *int `json:"score_A"`
		B *int `json:"score_B"`
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(strings.TrimSpace(text))))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return Scores{}, fmt.Errorf("%w: %v", ErrMalformedVerdict, err)
	}
	if dec.More() {
		return Scores{}, fmt.Errorf("%w: trailing data", ErrMalformedVerdict)
	}
	// A half-filled verdict fails whole rather than defaulting the absent
	// score to zero, so the pair is never compared on one real score.
	if raw.A == nil || raw.B == nil {
		return Scores{}, fmt.Errorf("%w: missing score", ErrMalformedVerdict)
	}
	s := Scores{Original: *raw.A, Refined: *raw.B}
	for _, v := range []int{s.Original, s.Refined} {
		if v < MinScore || v > MaxScore {
			return Scores{}, fmt.Errorf("%w: score %d out of range", ErrMalformedVerdict, v)
		}
	}
	return s, nil
}

// Judge evaluates answer pairs.
type Judge struct {
	gen    llm.Generator
	logger *zap.Logger
}

// New returns a Judge using gen. A nil gen behaves as llm.Unconfigured.
func New(gen llm.Generator, logger *zap.Logger) *Judge {
	if gen == nil {
		gen = llm.Unconfigured{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Judge{gen: gen, logger: logger}
}

// Evaluate scores original and refined against userPrompt. On any failure
// it returns the zero Scores together with the error.
func (j *Judge) Evaluate(ctx context.Context, original, refined, userPrompt string) (Scores, error) {
	text, err := j.gen.Generate(ctx, llm.Request{
		Prompt: BuildPrompt(original, refined, userPrompt),
		Schema: Schema,
	})
	if err != nil {
		j.logger.Warn("evaluation failed", zap.Error(err))
		return Scores{}, fmt.Errorf("evaluate: %w", err)
	}
	s, err := Decode(text)
	if err != nil {
		j.logger.Warn("evaluation returned an unusable verdict", zap.String("response", text), zap.Error(err))
		return Scores{}, err
	}
	j.logger.Info("evaluation done", zap.Int("score_a", s.Original), zap.Int("score_b", s.Refined))
	return s, nil
}
