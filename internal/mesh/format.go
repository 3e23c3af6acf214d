// Package mesh holds the scene-graph types shared by the viewer and the
// server: decoded geometry, materials, bounding boxes and the OBJ exporter.
// Decoding itself is delegated to third-party STL and OBJ readers.
package mesh

import "strings"

// Format selects the decoder used for a model reference.
type Format string

const (
	FormatSTL Format = "stl"
	FormatOBJ Format = "obj"
)

// ResolveFormat derives the decoder format from a model reference.
// The token is the lowercase text after the last '.'. Only "stl" is
// recognised; every other token, including a missing extension, is
// handed to the OBJ decoder.
func ResolveFormat(ref string) Format {
	if Token(ref) == string(FormatSTL) {
		return FormatSTL
	}
	return FormatOBJ
}

// Token returns the lowercase text after the last '.' in ref, or the whole
// reference lowercased when it has no '.'.
func Token(ref string) string {
	i := strings.LastIndex(ref, ".")
	return strings.ToLower(ref[i+1:])
}
