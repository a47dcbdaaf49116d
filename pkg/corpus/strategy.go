package corpus

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ErrUnknownStrategy is returned for a label that is not one of Strategies.
var ErrUnknownStrategy = errors.New("unknown strategy")

// Strategy is a refinement strategy label.
type Strategy string

const (
	CreativeWriting      Strategy = "Creative Writing"
	TechnicalExplanation Strategy = "Technical Explanation"
	ConciseAnswer        Strategy = "Concise Answer"
	ChainOfThought       Strategy = "Chain-of-Thought"
)

// Strategies lists every strategy in display order. The first one is the default.
func Strategies() []Strategy {
	return []Strategy{CreativeWriting, TechnicalExplanation, ConciseAnswer, ChainOfThought}
}

// ParseStrategy returns the strategy named s, or an error if s is not one of Strategies.
func ParseStrategy(s string) (Strategy, error) {
	for _, st := range Strategies() {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w %q", ErrUnknownStrategy, s)
}

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	_, err := ParseStrategy(string(s))
	return err == nil
}

func (s Strategy) String() string { return string(s) }

// UnmarshalYAML rejects labels outside the closed set.
func (s *Strategy) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	st, err := ParseStrategy(raw)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*s = st
	return nil
}
