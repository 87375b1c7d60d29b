package vocabulary

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var seedYAML []byte

// Manifest is the reference data written by the seeder.
type Manifest struct {
	LanguageConceptID int64              `yaml:"language_concept_id"`
	Vocabularies      []ManifestEntry    `yaml:"vocabularies"`
	Domains           []ManifestEntry    `yaml:"domains"`
	ConceptClasses    []ManifestEntry    `yaml:"concept_classes"`
	Concepts          []ManifestConcept  `yaml:"concepts"`
	InterestAreas     []InterestTemplate `yaml:"interest_areas"`
}

// ManifestEntry describes a vocabulary, domain or concept class row.
type ManifestEntry struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	ConceptID *int64 `yaml:"concept_id"`
}

type ManifestConcept struct {
	ID         int64  `yaml:"id"`
	Name       string `yaml:"name"`
	Class      string `yaml:"class"`
	Code       string `yaml:"code"`
	Domain     string `yaml:"domain"`
	Vocabulary string `yaml:"vocabulary"`
	// PT is the Portuguese synonym.
	PT string `yaml:"pt"`
}

// InterestTemplate is a catalogue entry offered to persons when they create
// interest areas.
type InterestTemplate struct {
	Name     string   `yaml:"name" json:"name"`
	Triggers []string `yaml:"triggers" json:"triggers"`
}

// DefaultManifest parses the embedded seed.yaml.
func DefaultManifest() (*Manifest, error) {
	return ParseManifest(seedYAML)
}

func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks referential integrity inside the manifest: unique concept
// ids and codes, and domain/vocabulary/class references that resolve.
func (m *Manifest) Validate() error {
	vocabs := make(map[string]bool, len(m.Vocabularies))
	for _, v := range m.Vocabularies {
		vocabs[v.ID] = true
	}
	domains := make(map[string]bool, len(m.Domains))
	for _, d := range m.Domains {
		domains[d.ID] = true
	}
	classes := make(map[string]bool, len(m.ConceptClasses))
	for _, c := range m.ConceptClasses {
		classes[c.ID] = true
	}

	ids := make(map[int64]bool, len(m.Concepts))
	codes := make(map[string]int64, len(m.Concepts))
	for _, c := range m.Concepts {
		if c.ID == 0 || c.Code == "" || c.Name == "" {
			return fmt.Errorf("manifest: concept %d %q is missing id, code or name", c.ID, c.Code)
		}
		if ids[c.ID] {
			return fmt.Errorf("manifest: duplicate concept id %d", c.ID)
		}
		ids[c.ID] = true
		if prev, ok := codes[c.Code]; ok {
			return fmt.Errorf("manifest: concept code %q used by %d and %d", c.Code, prev, c.ID)
		}
		codes[c.Code] = c.ID
		if c.Domain != "" && !domains[c.Domain] {
			return fmt.Errorf("manifest: concept %d references unknown domain %q", c.ID, c.Domain)
		}
		if c.Vocabulary != "" && !vocabs[c.Vocabulary] {
			return fmt.Errorf("manifest: concept %d references unknown vocabulary %q", c.ID, c.Vocabulary)
		}
		if c.Class != "" && !classes[c.Class] {
			return fmt.Errorf("manifest: concept %d references unknown class %q", c.ID, c.Class)
		}
	}
	for _, code := range RequiredCodes {
		if _, ok := codes[code]; !ok {
			return fmt.Errorf("manifest: required code %q is not seeded", code)
		}
	}
	if m.LanguageConceptID != 0 && !ids[m.LanguageConceptID] {
		return fmt.Errorf("manifest: language concept %d is not seeded", m.LanguageConceptID)
	}
	return nil
}

// SeedResult counts the rows written by Seed.
type SeedResult struct {
	Vocabularies   int `json:"vocabularies"`
	Domains        int `json:"domains"`
	ConceptClasses int `json:"concept_classes"`
	Concepts       int `json:"concepts"`
	Synonyms       int `json:"synonyms"`
}

var (
	seedValidStart = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	seedValidEnd   = time.Date(2099, 12, 31, 0, 0, 0, 0, time.UTC)
)

// Seed writes the manifest through s. It never overwrites existing rows, so
// running it twice is a no-op the second time.
func Seed(ctx context.Context, s Seeder, m *Manifest) (*SeedResult, error) {
	var res SeedResult
	count := func(n *int, wrote bool, err error) error {
		if wrote {
			*n++
		}
		return err
	}

	for _, v := range m.Vocabularies {
		wrote, err := s.EnsureVocabulary(ctx, &Vocabulary{ID: v.ID, Name: v.Name, ConceptID: v.ConceptID})
		if err := count(&res.Vocabularies, wrote, err); err != nil {
			return nil, fmt.Errorf("seed vocabulary %s: %w", v.ID, err)
		}
	}
	for _, d := range m.Domains {
		wrote, err := s.EnsureDomain(ctx, &Domain{ID: d.ID, Name: d.Name, ConceptID: d.ConceptID})
		if err := count(&res.Domains, wrote, err); err != nil {
			return nil, fmt.Errorf("seed domain %s: %w", d.ID, err)
		}
	}
	for _, cc := range m.ConceptClasses {
		wrote, err := s.EnsureConceptClass(ctx, &ConceptClass{ID: cc.ID, Name: cc.Name, ConceptID: cc.ConceptID})
		if err := count(&res.ConceptClasses, wrote, err); err != nil {
			return nil, fmt.Errorf("seed concept class %s: %w", cc.ID, err)
		}
	}
	for _, mc := range m.Concepts {
		c := &Concept{
			ID:             mc.ID,
			Name:           mc.Name,
			DomainID:       optional(mc.Domain),
			VocabularyID:   optional(mc.Vocabulary),
			ConceptClassID: optional(mc.Class),
			Code:           mc.Code,
			ValidStartDate: seedValidStart,
			ValidEndDate:   seedValidEnd,
		}
		wrote, err := s.EnsureConcept(ctx, c)
		if err := count(&res.Concepts, wrote, err); err != nil {
			return nil, fmt.Errorf("seed concept %d: %w", mc.ID, err)
		}
	}
	if m.LanguageConceptID != 0 {
		for _, mc := range m.Concepts {
			if mc.PT == "" {
				continue
			}
			wrote, err := s.EnsureSynonym(ctx, &ConceptSynonym{ConceptID: mc.ID, Name: mc.PT, LanguageConceptID: m.LanguageConceptID})
			if err := count(&res.Synonyms, wrote, err); err != nil {
				return nil, fmt.Errorf("seed synonym %d: %w", mc.ID, err)
			}
		}
	}
	return &res, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
