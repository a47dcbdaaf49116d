package corpus

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	records, err := Default()
	require.NoError(t, err)
	require.Len(t, records, 24)

	first := records[0]
	assert.Equal(t, "FIN-CW-01", first.ID)
	assert.Equal(t, "Finance", first.Domain)
	assert.Equal(t, CreativeWriting, first.Strategy)
	assert.Contains(t, first.PromptText, "FinTech product innovator")

	// Every strategy is represented.
	counts := map[Strategy]int{}
	for _, r := range records {
		counts[r.Strategy]++
		assert.NotEmpty(t, r.Explanation, r.ID)
	}
	for _, st := range Strategies() {
		assert.Positive(t, counts[st], st)
	}
}

func TestLoad(t *testing.T) {
	fsys := fstest.MapFS{
		"kb.yaml": {Data: []byte(`records:
  - id: A
    domain: Legal
    strategy: Concise Answer
    prompt_text: Define res judicata.
    explanation: Short.
`)},
	}

	records, err := Load(fsys, "kb.yaml")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, ConciseAnswer, records[0].Strategy)

	_, err = Load(fsys, "missing.yaml")
	assert.Error(t, err)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty", "records: []\n"},
		{"unknown strategy", "records:\n  - id: A\n    strategy: Poetry\n    prompt_text: x\n"},
		{"empty prompt", "records:\n  - id: A\n    domain: Legal\n    strategy: Concise Answer\n    prompt_text: '  '\n"},
		{"missing domain", "records:\n  - id: A\n    strategy: Concise Answer\n    prompt_text: x\n"},
		{"blank domain", "records:\n  - id: A\n    domain: ' '\n    strategy: Concise Answer\n    prompt_text: x\n"},
		{"missing strategy", "records:\n  - id: A\n    domain: Legal\n    prompt_text: x\n"},
		{"duplicate id", "records:\n  - id: A\n    domain: Legal\n    strategy: Concise Answer\n    prompt_text: x\n  - id: A\n    domain: Legal\n    strategy: Concise Answer\n    prompt_text: y\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}

	_, err := Parse([]byte("records: []\n"))
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = Parse([]byte("records:\n  - id: A\n    domain: Legal\n    prompt_text: x\n"))
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestFingerprint(t *testing.T) {
	records, err := Default()
	require.NoError(t, err)

	fp := Fingerprint(records)
	assert.Equal(t, fp, Fingerprint(records))

	swapped := append([]Record(nil), records...)
	swapped[0], swapped[1] = swapped[1], swapped[0]
	assert.NotEqual(t, fp, Fingerprint(swapped), "reordering must change the fingerprint")

	edited := append([]Record(nil), records...)
	edited[3].Explanation += "!"
	assert.NotEqual(t, fp, Fingerprint(edited))
}

func TestParseStrategy(t *testing.T) {
	st, err := ParseStrategy("Chain-of-Thought")
	require.NoError(t, err)
	assert.Equal(t, ChainOfThought, st)
	assert.True(t, st.Valid())

	_, err = ParseStrategy("chain-of-thought")
	assert.ErrorIs(t, err, ErrUnknownStrategy)
	assert.False(t, Strategy("").Valid())
}

func TestPromptTexts(t *testing.T) {
	records := []Record{{PromptText: "a"}, {PromptText: "b"}}
	assert.Equal(t, []string{"a", "b"}, PromptTexts(records))
}
