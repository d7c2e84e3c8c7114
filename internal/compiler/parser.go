package compiler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/vinculobrasil/flowbot/pkg/domain"
	"gopkg.in/yaml.v3"
)

// Format is the serialization of a flow document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, true
	case ".yaml", ".yml":
		return FormatYAML, true
	}
	return "", false
}

// Parser converts raw flow documents into graphs.
type Parser struct{}

// NewParser creates a new parser instance.
func NewParser() *Parser {
	return &Parser{}
}

// Parse decodes a flow document. Editor exports may wrap the graph in a
// "flow" object; both shapes are accepted. Structural checks are left to
// graph.Build.
func (p *Parser) Parse(data []byte, format Format) (*domain.Graph, error) {
	var doc struct {
		domain.Graph `yaml:",inline"`
		Flow         *domain.Graph `json:"flow" yaml:"flow"`
	}

	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse yaml flow: %w", err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to parse json flow: %w", err)
		}
	}

	g := doc.Graph
	if doc.Flow != nil {
		g = *doc.Flow
	}
	if len(g.Nodes) == 0 {
		return nil, fmt.Errorf("flow has no nodes")
	}
	for i := range g.Nodes {
		normalize(g.Nodes[i].Data)
	}
	return &g, nil
}

// normalize turns json.Number values into int64 or float64 so node
// configs decode without knowing the number's origin.
func normalize(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		f, _ := val.Float64()
		return f
	case map[string]any:
		for k, item := range val {
			val[k] = normalize(item)
		}
	case []any:
		for i, item := range val {
			val[i] = normalize(item)
		}
	}
	return v
}
