// Package corpus holds the exemplar prompts used for retrieval and the
// closed set of refinement strategies they are labelled with.
package corpus

import (
	_ "embed"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/cespare/xxhash/v2"
	"gopkg.in/yaml.v3"
)

//go:embed corpus.yaml
var defaultCorpus []byte

// ErrEmpty is returned when a corpus document contains no records.
var ErrEmpty = errors.New("corpus has no records")

// Record is one labelled exemplar prompt. Its position in the corpus is
// also its row id in the vector index.
type Record struct {
	ID          string   `yaml:"id"`
	Domain      string   `yaml:"domain"`
	Strategy    Strategy `yaml:"strategy"`
	PromptText  string   `yaml:"prompt_text"`
	Explanation string   `yaml:"explanation"`
}

type document struct {
	Records []Record `yaml:"records"`
}

// Default returns the corpus compiled into the binary.
func Default() ([]Record, error) {
	return Parse(defaultCorpus)
}

// Load reads a corpus document from fsys.
func Load(fsys fs.FS, path string) ([]Record, error) {
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	records, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return records, nil
}

// Parse decodes a YAML corpus document and validates every record.
func Parse(data []byte) ([]Record, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.Records) == 0 {
		return nil, ErrEmpty
	}

	seen := make(map[string]int, len(doc.Records))
	for i, r := range doc.Records {
		if strings.TrimSpace(r.PromptText) == "" {
			return nil, fmt.Errorf("record %d (%s): empty prompt_text", i, r.ID)
		}
		if strings.TrimSpace(r.Domain) == "" {
			return nil, fmt.Errorf("record %d (%s): empty domain", i, r.ID)
		}
		// UnmarshalYAML never runs for an absent strategy key.
		if !r.Strategy.Valid() {
			return nil, fmt.Errorf("record %d (%s): %w %q", i, r.ID, ErrUnknownStrategy, string(r.Strategy))
		}
		if r.ID != "" {
			if prev, ok := seen[r.ID]; ok {
				return nil, fmt.Errorf("record %d: duplicate id %q (first at %d)", i, r.ID, prev)
			}
			seen[r.ID] = i
		}
	}
	return doc.Records, nil
}

// PromptTexts returns the text of every record, in corpus order.
func PromptTexts(records []Record) []string {
	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = r.PromptText
	}
	return texts
}

// Fingerprint hashes the ordered records. The index stores it so that a
// reordered or edited corpus is detected at load time.
func Fingerprint(records []Record) uint64 {
	h := xxhash.New()
	var n [8]byte
	write := func(s string) {
		binary.LittleEndian.PutUint64(n[:], uint64(len(s)))
		_, _ = h.Write(n[:])
		_, _ = h.WriteString(s)
	}
	for _, r := range records {
		write(r.ID)
		write(r.Domain)
		write(string(r.Strategy))
		write(r.PromptText)
		write(r.Explanation)
	}
	return h.Sum64()
}
