package forge

import (
	"fmt"
	"sync"
	"time"

	"github.com/perbu/promptforge/pkg/corpus"
)

// Degradation records a stage that fell back to its default output.
type Degradation struct {
	Stage State
	Err   error
}

func (d Degradation) String() string {
	return fmt.Sprintf("%s: %v", d.Stage, d.Err)
}

// Run is the record of one completed pipeline execution. Scores are 1..10
// when the judge succeeded and 0 when it did not.
type Run struct {
	ID             string
	CreatedAt      time.Time
	UserPrompt     string
	Strategy       corpus.Strategy
	RefinedPrompt  string
	Examples       []string
	OriginalOutput string
	RefinedOutput  string
	OriginalScore  int
	RefinedScore   int
	Degradations   []Degradation
}

// Uplift is the refined score minus the original score.
func (r *Run) Uplift() int { return r.RefinedScore - r.OriginalScore }

// Degraded reports whether stage fell back during this run.
func (r *Run) Degraded(stage State) bool {
	for _, d := range r.Degradations {
		if d.Stage == stage {
			return true
		}
	}
	return false
}

// History is an append-only list of runs, safe for concurrent use.
type History struct {
	mu   sync.Mutex
	runs []*Run
}

func (h *History) Append(r *Run) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs = append(h.runs, r)
}

// List returns the runs oldest first. The slice is a copy.
func (h *History) List() []*Run {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Run, len(h.runs))
	copy(out, h.runs)
	return out
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.runs)
}
