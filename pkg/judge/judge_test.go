package judge

import (
	"context"
	"errors"
	"testing"

	"github.com/perbu/promptforge/pkg/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	text string
	err  error
	last llm.Request
}

func (f *fakeGenerator) Generate(_ context.Context, req llm.Request) (string, error) {
	f.last = req
	return f.text, f.err
}

func TestDecode(t *testing.T) {
	s, err := Decode(` {"score_A": 4, "score_B": 9} `)
	require.NoError(t, err)
	assert.Equal(t, Scores{Original: 4, Refined: 9}, s)

	bad := []string{
		``,
		`not json`,
		`{"score_A": 4}`,
		`{"score_A": 4, "score_B": "9"}`,
		`{"score_A": 4.5, "score_B": 9}`,
		`{"score_A": 4, "score_B": 9, "reason": "b is longer"}`,
		`{"score_A": 0, "score_B": 9}`,
		`{"score_A": 4, "score_B": 11}`,
		`{"score_A": 4, "score_B": 9} {}`,
		`[4, 9]`,
	}
	for _, text := range bad {
		s, err := Decode(text)
		assert.ErrorIs(t, err, ErrMalformedVerdict, text)
		assert.Equal(t, Scores{}, s, text)
	}
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt("plain answer", "rich answer", "Write a story about a brave knight.")
	assert.Contains(t, p, "**Relevance**")
	assert.Contains(t, p, "**Clarity**")
	assert.Contains(t, p, "**Detail & Completeness**")
	assert.Contains(t, p, "scale of 1 to 10")
	assert.Contains(t, p, "Response A (from original prompt):**\n\"plain answer\"")
	assert.Contains(t, p, "Response B (from refined prompt):**\n\"rich answer\"")
	assert.Contains(t, p, "\"Write a story about a brave knight.\"")
}

func TestEvaluate(t *testing.T) {
	gen := &fakeGenerator{text: `{"score_A":5,"score_B":8}`}
	s, err := New(gen, nil).Evaluate(context.Background(), "a", "b", "q")
	require.NoError(t, err)
	assert.Equal(t, Scores{Original: 5, Refined: 8}, s)
	assert.Same(t, Schema, gen.last.Schema)
	assert.Empty(t, gen.last.System)
}

func TestEvaluate_Failures(t *testing.T) {
	cases := []struct {
		name string
		gen  llm.Generator
		kind error
	}{
		{"unavailable", nil, llm.ErrUnavailable},
		{"backend error", &fakeGenerator{err: errors.New("deadline exceeded")}, nil},
		{"malformed", &fakeGenerator{text: "Response B is better."}, ErrMalformedVerdict},
		{"out of range", &fakeGenerator{text: `{"score_A":-1,"score_B":100}`}, ErrMalformedVerdict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := New(tc.gen, nil).Evaluate(context.Background(), "a", "b", "q")
			require.Error(t, err)
			assert.Equal(t, Scores{}, s)
			if tc.kind != nil {
				assert.ErrorIs(t, err, tc.kind)
			}
		})
	}
}
