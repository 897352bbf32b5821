// Package skills holds the skill vocabulary and the document-frequency
// aggregator that counts, per skill, how many ads mention it.
package skills

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/WessleyAI/skillscan/engine/domain"
)

//go:embed taxonomy.yaml
var defaultTaxonomy []byte

// ErrInvalidTaxonomy is wrapped by every taxonomy validation failure.
var ErrInvalidTaxonomy = errors.New("invalid taxonomy")

// Skill is one counted skill. Tokens are lowercase aliases; an alias with
// spaces matches when all of its words appear in the ad.
type Skill struct {
	Label    string   `yaml:"label"`
	Category string   `yaml:"-"`
	Tokens   []string `yaml:"tokens"`

	aliases [][]string
}

// Category groups skills for display.
type Category struct {
	Name   string  `yaml:"name"`
	Skills []Skill `yaml:"skills"`
}

// Taxonomy is the read-only skill vocabulary.
type Taxonomy struct {
	Categories []Category `yaml:"categories"`

	skills []Skill
}

// Matches reports whether the ad mentions the skill.
func (s Skill) Matches(doc domain.AdDocument) bool {
	for _, words := range s.aliases {
		all := true
		for _, w := range words {
			if !doc.Has(w) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

// Skills returns the flattened skill list in file order.
func (t *Taxonomy) Skills() []Skill { return t.skills }

// Len is the number of skills.
func (t *Taxonomy) Len() int { return len(t.skills) }

// LoadTaxonomy decodes and validates a YAML taxonomy.
func LoadTaxonomy(r io.Reader) (*Taxonomy, error) {
	var t Taxonomy
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidTaxonomy)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidTaxonomy, err)
	}
	if err := t.compile(); err != nil {
		return nil, err
	}
	return &t, nil
}

// LoadTaxonomyFile reads a taxonomy from disk.
func LoadTaxonomyFile(path string) (*Taxonomy, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open taxonomy: %w", err)
	}
	defer f.Close()
	return LoadTaxonomy(f)
}

// DefaultTaxonomy returns the built-in data-science vocabulary.
func DefaultTaxonomy() *Taxonomy {
	t, err := LoadTaxonomy(bytes.NewReader(defaultTaxonomy))
	if err != nil {
		panic("skills: embedded taxonomy: " + err.Error())
	}
	return t
}

func (t *Taxonomy) compile() error {
	seen := make(map[string]bool)
	t.skills = t.skills[:0]
	for ci := range t.Categories {
		c := &t.Categories[ci]
		if c.Name == "" {
			return fmt.Errorf("%w: category %d has no name", ErrInvalidTaxonomy, ci)
		}
		for si := range c.Skills {
			s := &c.Skills[si]
			if s.Label == "" {
				return fmt.Errorf("%w: category %s: skill %d has no label", ErrInvalidTaxonomy, c.Name, si)
			}
			key := strings.ToLower(s.Label)
			if seen[key] {
				return fmt.Errorf("%w: duplicate skill %q", ErrInvalidTaxonomy, s.Label)
			}
			seen[key] = true
			if len(s.Tokens) == 0 {
				return fmt.Errorf("%w: skill %q has no tokens", ErrInvalidTaxonomy, s.Label)
			}
			s.Category = c.Name
			s.aliases = s.aliases[:0]
			for _, tok := range s.Tokens {
				words := strings.Fields(tok)
				if len(words) == 0 || tok != strings.ToLower(tok) {
					return fmt.Errorf("%w: skill %q: token %q must be non-empty lowercase", ErrInvalidTaxonomy, s.Label, tok)
				}
				s.aliases = append(s.aliases, words)
			}
			t.skills = append(t.skills, *s)
		}
	}
	if len(t.skills) == 0 {
		return fmt.Errorf("%w: no skills", ErrInvalidTaxonomy)
	}
	return nil
}
