package screening

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrUnknownPreset is returned by ApplyPreset for an unregistered key
var ErrUnknownPreset = errors.New("unknown preset")

//go:embed presets.yaml
var defaultPresetsYAML []byte

// SortSpec is a preset's default ordering
type SortSpec struct {
	Field string `json:"field" yaml:"field"`
	Order string `json:"order" yaml:"order"`
}

// Preset is a named, fixed bundle of predicates and sort order
type Preset struct {
	Key         string      `json:"key" yaml:"key"`
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description" yaml:"description"`
	Filters     []Predicate `json:"filters" yaml:"filters"`
	Sort        SortSpec    `json:"sort" yaml:"sort"`
}

// Spec returns the FilterSpec the preset expands to
func (p Preset) Spec(limit int) FilterSpec {
	filters := make([]Predicate, len(p.Filters))
	copy(filters, p.Filters)
	return FilterSpec{
		Filters:   filters,
		Logic:     "AND",
		SortBy:    p.Sort.Field,
		SortOrder: p.Sort.Order,
		Limit:     limit,
	}
}

// PresetBook is the loaded preset catalogue
// ⭐ SSOT: 프리셋 정의는 presets.yaml 하나뿐
type PresetBook struct {
	Version string   `json:"version" yaml:"version"`
	Presets []Preset `json:"presets" yaml:"presets"`

	hash  string
	byKey map[string]Preset
}

// DefaultPresets parses the embedded catalogue
func DefaultPresets() (*PresetBook, error) {
	return ParsePresets(defaultPresetsYAML)
}

// LoadPresets reads a catalogue from disk
func LoadPresets(path string) (*PresetBook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParsePresets(data)
}

// ParsePresets decodes a YAML catalogue. Unknown keys fail the load, and every
// preset is compiled once so a typo in a field name is caught at startup.
func ParsePresets(data []byte) (*PresetBook, error) {
	var book PresetBook
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // 오타 필드는 즉시 실패
	if err := dec.Decode(&book); err != nil {
		return nil, fmt.Errorf("decode presets: %w", err)
	}

	book.byKey = make(map[string]Preset, len(book.Presets))
	v := newValidator()
	for _, p := range book.Presets {
		if p.Key == "" {
			return nil, fmt.Errorf("preset %q has no key", p.Name)
		}
		if _, dup := book.byKey[p.Key]; dup {
			return nil, fmt.Errorf("duplicate preset key %q", p.Key)
		}
		if _, err := compile(v, p.Spec(0)); err != nil {
			return nil, fmt.Errorf("preset %s: %w", p.Key, err)
		}
		book.byKey[p.Key] = p
	}

	hash, err := hashPresets(&book)
	if err != nil {
		return nil, err
	}
	book.hash = hash
	return &book, nil
}

// hashPresets is sha256 over the canonical JSON of the catalogue
func hashPresets(book *PresetBook) (string, error) {
	b, err := json.Marshal(book)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Hash identifies the catalogue content
func (b *PresetBook) Hash() string {
	return b.hash
}

// Get returns the preset registered under key
func (b *PresetBook) Get(key string) (Preset, bool) {
	p, ok := b.byKey[key]
	return p, ok
}

// Keys returns preset keys in catalogue order
func (b *PresetBook) Keys() []string {
	keys := make([]string, 0, len(b.Presets))
	for _, p := range b.Presets {
		keys = append(keys, p.Key)
	}
	return keys
}
