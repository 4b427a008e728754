// Package codec serializes NFFG graphs to and from their external
// representations. Both codecs are lossless: export-parse-export of a
// valid graph is byte-identical.
package codec

import (
	"io"

	"conflux/internal/nffg"
)

// Importer parses a serialized graph into the canonical model.
type Importer interface {
	Parse(r io.Reader) (*nffg.NFFG, error)
	Format() string
}

// Exporter writes a graph in one external format.
type Exporter interface {
	Export(g *nffg.NFFG, w io.Writer) error
	Format() string
}

// Codec combines both directions for one format.
type Codec interface {
	Importer
	Exporter
}

// ForFormat returns the codec for the given format name, or nil.
func ForFormat(format string) Codec {
	switch format {
	case "json":
		return NewJSONCodec()
	case "yaml", "yml":
		return NewYAMLCodec()
	}
	return nil
}
