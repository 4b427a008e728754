package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"conflux/internal/nffg"
)

// JSONCodec handles JSON import/export
type JSONCodec struct{}

// NewJSONCodec creates a new JSON codec
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

// Format returns the codec format identifier
func (c *JSONCodec) Format() string {
	return "json"
}

// Parse imports a graph from JSON. Malformed documents and referential
// integrity violations surface as *nffg.ParseError.
func (c *JSONCodec) Parse(r io.Reader) (*nffg.NFFG, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	g := &nffg.NFFG{}
	if err := json.Unmarshal(data, g); err != nil {
		var perr *nffg.ParseError
		if errors.As(err, &perr) {
			return nil, perr
		}
		return nil, &nffg.ParseError{Reason: err.Error()}
	}
	return g, nil
}

// Export writes the graph as indented JSON.
func (c *JSONCodec) Export(g *nffg.NFFG, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(g); err != nil {
		return fmt.Errorf("encode JSON: %w", err)
	}

	return nil
}
