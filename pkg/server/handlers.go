package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/perbu/promptforge/pkg/corpus"
	"github.com/perbu/promptforge/pkg/forge"
	"github.com/perbu/promptforge/pkg/refiner"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

type handlers struct {
	eng      Engine
	runner   Runner
	sessions *Sessions
	defaultK int
	logger   *zap.Logger
}

func (h *handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

type strategyResponse struct {
	Name        string `json:"name"`
	Instruction string `json:"instruction"`
}

func (h *handlers) Strategies(w http.ResponseWriter, r *http.Request) {
	out := make([]strategyResponse, 0, len(corpus.Strategies()))
	for _, s := range corpus.Strategies() {
		instruction, _ := refiner.Instruction(s)
		out = append(out, strategyResponse{Name: s.String(), Instruction: instruction})
	}
	respondJSON(w, map[string]any{"strategies": out}, http.StatusOK)
}

func (h *handlers) Retrieve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
		K     int    `json:"k"`
	}
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		respondError(w, "query is required", http.StatusBadRequest)
		return
	}
	k := req.K
	if k <= 0 {
		k = h.defaultK
	}
	examples := h.eng.RetrieveRelevantExamples(r.Context(), req.Query, k)
	respondJSON(w, map[string]any{"examples": examples}, http.StatusOK)
}

func (h *handlers) Refine(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt   string   `json:"prompt"`
		Strategy string   `json:"strategy"`
		Examples []string `json:"examples"`
	}
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		respondError(w, forge.ErrEmptyPrompt.Error(), http.StatusBadRequest)
		return
	}
	strategy, ok := parseStrategy(w, req.Strategy)
	if !ok {
		return
	}
	instruction, _ := refiner.Instruction(strategy)
	refined, err := h.eng.RefineOrOriginal(r.Context(), req.Prompt, instruction, refiner.JoinExamples(req.Examples))
	respondJSON(w, map[string]any{
		"refined_prompt": refined,
		"strategy":       strategy,
		"fallback":       err != nil,
	}, http.StatusOK)
}

func (h *handlers) Generate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt string `json:"prompt"`
	}
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		respondError(w, forge.ErrEmptyPrompt.Error(), http.StatusBadRequest)
		return
	}
	respondJSON(w, map[string]string{"output": h.eng.LLMResponse(r.Context(), req.Prompt)}, http.StatusOK)
}

func (h *handlers) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Original string `json:"original"`
		Refined  string `json:"refined"`
		Prompt   string `json:"prompt"`
	}
	if !decode(w, r, &req) {
		return
	}
	scores := h.eng.EvaluateOutputs(r.Context(), req.Original, req.Refined, req.Prompt)
	respondJSON(w, map[string]int{
		"score_A": scores.Original,
		"score_B": scores.Refined,
		"uplift":  scores.Refined - scores.Original,
	}, http.StatusOK)
}

func (h *handlers) Forge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt   string `json:"prompt"`
		Strategy string `json:"strategy"`
	}
	if !decode(w, r, &req) {
		return
	}
	strategy := corpus.Strategy(req.Strategy)
	if req.Strategy == "" {
		strategy = corpus.Strategies()[0]
	}

	history := h.sessions.Get(sessionFromContext(r.Context()))
	run, err := h.runner.Run(r.Context(), forge.Input{Prompt: req.Prompt, Strategy: strategy}, history)
	switch {
	case errors.Is(err, forge.ErrEmptyPrompt), errors.Is(err, forge.ErrInvalidStrategy):
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		h.logger.Error("pipeline run failed", zap.Error(err))
		respondError(w, "pipeline run failed", http.StatusInternalServerError)
		return
	}
	respondJSON(w, newRunResponse(run), http.StatusOK)
}

func (h *handlers) History(w http.ResponseWriter, r *http.Request) {
	runs := []runResponse{}
	if history, ok := h.sessions.Lookup(sessionFromContext(r.Context())); ok {
		for _, run := range history.List() {
			runs = append(runs, newRunResponse(run))
		}
	}
	respondJSON(w, map[string]any{"runs": runs}, http.StatusOK)
}

type degradationResponse struct {
	Stage string `json:"stage"`
	Error string `json:"error"`
}

type runResponse struct {
	ID             string                `json:"id"`
	CreatedAt      time.Time             `json:"created_at"`
	UserPrompt     string                `json:"user_prompt"`
	Strategy       string                `json:"strategy"`
	RefinedPrompt  string                `json:"refined_prompt"`
	Examples       []string              `json:"examples"`
	OriginalOutput string                `json:"original_output"`
	RefinedOutput  string                `json:"refined_output"`
	OriginalScore  int                   `json:"original_score"`
	RefinedScore   int                   `json:"refined_score"`
	Uplift         int                   `json:"uplift"`
	Degradations   []degradationResponse `json:"degradations"`
}

func newRunResponse(run *forge.Run) runResponse {
	out := runResponse{
		ID:             run.ID,
		CreatedAt:      run.CreatedAt,
		UserPrompt:     run.UserPrompt,
		Strategy:       run.Strategy.String(),
		RefinedPrompt:  run.RefinedPrompt,
		Examples:       run.Examples,
		OriginalOutput: run.OriginalOutput,
		RefinedOutput:  run.RefinedOutput,
		OriginalScore:  run.OriginalScore,
		RefinedScore:   run.RefinedScore,
		Uplift:         run.Uplift(),
		Degradations:   []degradationResponse{},
	}
	if out.Examples == nil {
		out.Examples = []string{}
	}
	for _, d := range run.Degradations {
		out.Degradations = append(out.Degradations, degradationResponse{Stage: d.Stage.String(), Error: d.Err.Error()})
	}
	return out
}

func parseStrategy(w http.ResponseWriter, label string) (corpus.Strategy, bool) {
	if label == "" {
		return corpus.Strategies()[0], true
	}
	s, err := corpus.ParseStrategy(label)
	if err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return "", false
	}
	return s, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, map[string]string{"error": message}, status)
}
