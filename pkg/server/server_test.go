package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/perbu/promptforge/pkg/config"
	"github.com/perbu/promptforge/pkg/forge"
	"github.com/perbu/promptforge/pkg/judge"
	"github.com/perbu/promptforge/pkg/llm"
	"github.com/perbu/promptforge/pkg/refiner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	gotK           int
	gotInstruction string
	gotExamples    string
	// refine overrides the canned rewrite when set.
	refine func(userPrompt string) (string, error)
}

func (f *fakeEngine) RetrieveRelevantExamples(_ context.Context, query string, k int) []string {
	f.gotK = k
	return []string{"Example (from x/y):\nPrompt: " + query + "\nExplanation: e\n"}
}

func (f *fakeEngine) RefineOrOriginal(_ context.Context, userPrompt, instruction, examples string) (string, error) {
	f.gotInstruction, f.gotExamples = instruction, examples
	if f.refine != nil {
		return f.refine(userPrompt)
	}
	return "refined: " + userPrompt, nil
}

func (f *fakeEngine) LLMResponse(_ context.Context, prompt string) string {
	return "answer: " + prompt
}

func (f *fakeEngine) EvaluateOutputs(context.Context, string, string, string) judge.Scores {
	return judge.Scores{Original: 3, Refined: 7}
}

type scripted struct{}

func (scripted) Generate(_ context.Context, req llm.Request) (string, error) {
	switch {
	case req.Schema != nil:
		return `{"score_A":5,"score_B":9}`, nil
	case req.System != "":
		return "A richer prompt.", nil
	default:
		return "answer: " + req.Prompt, nil
	}
}

type noExamples struct{}

func (noExamples) Retrieve(context.Context, string, int) ([]string, error) { return []string{}, nil }

func newTestServer(t *testing.T) (*Server, *fakeEngine) {
	t.Helper()
	eng := &fakeEngine{}
	gen := scripted{}
	p := forge.NewPipeline(noExamples{}, refiner.New(gen, nil), gen, judge.New(gen, nil), forge.Options{}, nil)
	return NewServer(eng, p, config.DefaultConfig().Server, 3, nil), eng
}

func do(t *testing.T, s *Server, method, path, session string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if session != "" {
		req.Header.Set(SessionHeader, session)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

func TestHealthAndStrategies(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/strategies", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Strategies []strategyResponse `json:"strategies"`
	}
	decodeBody(t, rec, &got)
	require.Len(t, got.Strategies, 4)
	assert.Equal(t, "Creative Writing", got.Strategies[0].Name)
	assert.Contains(t, got.Strategies[3].Instruction, "step by step")
}

func TestMetrics(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRetrieve(t *testing.T) {
	s, eng := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/retrieve", "", map[string]any{"query": "knights"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(SessionHeader))
	assert.Equal(t, 3, eng.gotK)

	var got struct {
		Examples []string `json:"examples"`
	}
	decodeBody(t, rec, &got)
	require.Len(t, got.Examples, 1)
	assert.Contains(t, got.Examples[0], "Prompt: knights")

	rec = do(t, s, http.MethodPost, "/retrieve", "", map[string]any{"query": " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefine(t *testing.T) {
	s, eng := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/refine", "", map[string]any{"prompt": "Explain TCP.", "strategy": "Technical Explanation"})
	require.Equal(t, http.StatusOK, rec.Code)
	var got map[string]any
	decodeBody(t, rec, &got)
	assert.Equal(t, "refined: Explain TCP.", got["refined_prompt"])
	assert.Equal(t, false, got["fallback"])
	assert.Equal(t, refiner.NoExamples, eng.gotExamples)
	assert.Contains(t, eng.gotInstruction, "technical expert")

	rec = do(t, s, http.MethodPost, "/refine", "", map[string]any{"prompt": "Explain TCP.", "strategy": "Poetry"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/refine", "", map[string]any{"prompt": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefine_FallbackFollowsError(t *testing.T) {
	s, eng := newTestServer(t)
	body := map[string]any{"prompt": "Explain TCP.", "strategy": "Technical Explanation"}

	// The model may legitimately return the prompt unchanged.
	eng.refine = func(p string) (string, error) { return p, nil }
	rec := do(t, s, http.MethodPost, "/refine", "", body)
	require.Equal(t, http.StatusOK, rec.Code)
	var got map[string]any
	decodeBody(t, rec, &got)
	assert.Equal(t, "Explain TCP.", got["refined_prompt"])
	assert.Equal(t, false, got["fallback"])

	eng.refine = func(p string) (string, error) { return p, llm.ErrUnavailable }
	rec = do(t, s, http.MethodPost, "/refine", "", body)
	require.Equal(t, http.StatusOK, rec.Code)
	got = nil
	decodeBody(t, rec, &got)
	assert.Equal(t, "Explain TCP.", got["refined_prompt"])
	assert.Equal(t, true, got["fallback"])
}

func TestGenerateAndEvaluate(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/generate", "", map[string]any{"prompt": "hi"})
	require.Equal(t, http.StatusOK, rec.Code)
	var gen map[string]string
	decodeBody(t, rec, &gen)
	assert.Equal(t, "answer: hi", gen["output"])

	rec = do(t, s, http.MethodPost, "/evaluate", "", map[string]any{"original": "a", "refined": "b", "prompt": "q"})
	require.Equal(t, http.StatusOK, rec.Code)
	var scores map[string]int
	decodeBody(t, rec, &scores)
	assert.Equal(t, map[string]int{"score_A": 3, "score_B": 7, "uplift": 4}, scores)
}

func TestForgeAndHistory(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/forge", "alice", map[string]any{"prompt": "Write a story about a brave knight.", "strategy": "Creative Writing"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", rec.Header().Get(SessionHeader))

	var run runResponse
	decodeBody(t, rec, &run)
	assert.Equal(t, "A richer prompt.", run.RefinedPrompt)
	assert.Equal(t, "answer: Write a story about a brave knight.", run.OriginalOutput)
	assert.Equal(t, 5, run.OriginalScore)
	assert.Equal(t, 9, run.RefinedScore)
	assert.Equal(t, 4, run.Uplift)
	assert.Empty(t, run.Degradations)
	assert.Equal(t, []string{}, run.Examples)

	// Validation failures add nothing to history.
	rec = do(t, s, http.MethodPost, "/forge", "alice", map[string]any{"prompt": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, s, http.MethodPost, "/forge", "alice", map[string]any{"prompt": "x", "strategy": "Poetry"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodGet, "/history", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var hist struct {
		Runs []runResponse `json:"runs"`
	}
	decodeBody(t, rec, &hist)
	require.Len(t, hist.Runs, 1)
	assert.Equal(t, run.ID, hist.Runs[0].ID)

	// Other sessions do not see alice's runs.
	rec = do(t, s, http.MethodGet, "/history", "bob", nil)
	decodeBody(t, rec, &hist)
	assert.Empty(t, hist.Runs)
}

func TestBadRequests(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/generate", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodGet, "/history", strings.Repeat("x", 200), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodGet, "/forge", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSessions(t *testing.T) {
	s := NewSessions(0, 0, nil)
	_, ok := s.Lookup("a")
	assert.False(t, ok)
	h := s.Get("a")
	assert.Same(t, h, s.Get("a"))
	assert.Equal(t, 1, s.Len())
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestSessions_IdleExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	s := NewSessions(time.Minute, 0, nil)
	s.now = clock.now

	s.Get("idle")
	s.Get("busy")
	clock.advance(40 * time.Second)
	s.Get("busy")
	clock.advance(40 * time.Second)

	_, ok := s.Lookup("idle")
	assert.False(t, ok, "idle session should have ended")
	_, ok = s.Lookup("busy")
	assert.True(t, ok)

	clock.advance(2 * time.Minute)
	assert.Equal(t, 1, s.Sweep())
	assert.Equal(t, 0, s.Len())

	// A new request with an expired id starts from an empty history.
	s.Get("idle").Append(&forge.Run{UserPrompt: "p"})
	clock.advance(2 * time.Minute)
	assert.Equal(t, 0, s.Get("idle").Len())
}

func TestSessions_CapEvictsLeastRecentlyUsed(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	s := NewSessions(0, 2, nil)
	s.now = clock.now

	s.Get("a")
	clock.advance(time.Second)
	s.Get("b")
	clock.advance(time.Second)
	s.Get("a")
	clock.advance(time.Second)
	s.Get("c")

	assert.Equal(t, 2, s.Len())
	_, ok := s.Lookup("b")
	assert.False(t, ok)
	_, ok = s.Lookup("a")
	assert.True(t, ok)
}

func TestForge_HeaderlessRequestsStayBounded(t *testing.T) {
	cfg := config.DefaultConfig().Server
	cfg.MaxSessions = 10
	gen := scripted{}
	p := forge.NewPipeline(noExamples{}, refiner.New(gen, nil), gen, judge.New(gen, nil), forge.Options{}, nil)
	s := NewServer(&fakeEngine{}, p, cfg, 3, nil)

	for range 100 {
		rec := do(t, s, http.MethodPost, "/forge", "", map[string]any{"prompt": "q", "strategy": "Concise Answer"})
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, 10, s.sessions.Len())
}
