package codec

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"conflux/internal/nffg"
)

// YAMLCodec handles YAML import/export
type YAMLCodec struct{}

// NewYAMLCodec creates a new YAML codec
func NewYAMLCodec() *YAMLCodec {
	return &YAMLCodec{}
}

// Format returns the codec format identifier
func (c *YAMLCodec) Format() string {
	return "yaml"
}

// Parse imports a graph from YAML.
func (c *YAMLCodec) Parse(r io.Reader) (*nffg.NFFG, error) {
	g := &nffg.NFFG{}
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(g); err != nil {
		var perr *nffg.ParseError
		if errors.As(err, &perr) {
			return nil, perr
		}
		return nil, &nffg.ParseError{Reason: err.Error()}
	}
	return g, nil
}

// Export writes the graph as YAML.
func (c *YAMLCodec) Export(g *nffg.NFFG, w io.Writer) error {
	encoder := yaml.NewEncoder(w)
	defer encoder.Close()

	if err := encoder.Encode(g); err != nil {
		return fmt.Errorf("encode YAML: %w", err)
	}

	return nil
}
