package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/buger/jsonparser"
	"github.com/danielgtaylor/huma/v2"
	"gopkg.in/yaml.v3"
)

// Metadata is an opaque DataCite attribute object. It is kept as raw JSON so
// keys and values pass through in the order the caller sent them.
type Metadata []byte

var errMetadataNotObject = errors.New("metadata must be a JSON object")

// EmptyMetadata returns an empty object.
func EmptyMetadata() Metadata { return Metadata("{}") }

// NewMetadata encodes m. Key order follows encoding/json (sorted).
func NewMetadata(m map[string]any) (Metadata, error) {
	if m == nil {
		return EmptyMetadata(), nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return Metadata(b), nil
}

// ParseMetadata validates that b holds a JSON object.
func ParseMetadata(b []byte) (Metadata, error) {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return nil, errMetadataNotObject
	}
	out := make(Metadata, len(trimmed))
	copy(out, trimmed)
	return out, nil
}

func (m Metadata) raw() []byte {
	if len(m) == 0 {
		return []byte("{}")
	}
	return m
}

// Has reports whether the top-level key is present.
func (m Metadata) Has(key string) bool {
	_, _, _, err := jsonparser.Get(m.raw(), key)
	return err == nil
}

// Without returns a copy of m with every top-level occurrence of key
// removed, duplicates included. m is not modified.
func (m Metadata) Without(key string) Metadata {
	if !m.Has(key) {
		return m
	}
	out := make([]byte, len(m))
	copy(out, m)
	for Metadata(out).Has(key) {
		next := jsonparser.Delete(out, key)
		if len(next) >= len(out) {
			break
		}
		out = next
	}
	return Metadata(out)
}

// With returns a copy of m with the top-level key set to value. Earlier
// occurrences of key, duplicates included, are dropped first.
func (m Metadata) With(key string, value any) (Metadata, error) {
	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode metadata %s: %w", key, err)
	}
	src := m.Without(key).raw()
	cp := make([]byte, len(src))
	copy(cp, src)
	out, err := jsonparser.Set(cp, encoded, key)
	if err != nil {
		return nil, fmt.Errorf("set metadata %s: %w", key, err)
	}
	return Metadata(out), nil
}

// Map decodes m into a generic map.
func (m Metadata) Map() (map[string]any, error) {
	out := map[string]any{}
	if err := json.Unmarshal(m.raw(), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (m Metadata) MarshalJSON() ([]byte, error) {
	return m.raw(), nil
}

func (m *Metadata) UnmarshalJSON(b []byte) error {
	parsed, err := ParseMetadata(b)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// MarshalYAML keeps the original key order by decoding through a yaml.Node.
func (m Metadata) MarshalYAML() (any, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(m.raw(), &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 {
		return map[string]any{}, nil
	}
	root := doc.Content[0]
	blockStyle(root)
	return root, nil
}

// blockStyle drops the flow style JSON input carries so YAML output reads naturally.
func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}

// Schema describes Metadata as a free-form object in the OpenAPI document.
func (m Metadata) Schema(r huma.Registry) *huma.Schema {
	return &huma.Schema{
		Type:                 huma.TypeObject,
		Description:          "DataCite DOI attributes; passed through unchanged except for the reserved event key",
		AdditionalProperties: true,
	}
}
