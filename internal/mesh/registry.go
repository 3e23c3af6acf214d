package mesh

import "fmt"

// Decoder turns raw file bytes into a scene-graph node.
type Decoder interface {
	Format() Format
	Decode(data []byte) (*Node, error)
}

// Registry maps formats to decoders.
type Registry struct {
	decoders map[Format]Decoder
}

var defaultRegistry = NewRegistry()

// NewRegistry returns a registry with the STL and OBJ decoders.
func NewRegistry() *Registry {
	r := &Registry{decoders: make(map[Format]Decoder)}
	r.Register(STLDecoder{})
	r.Register(OBJDecoder{})
	return r
}

// DefaultRegistry returns the shared registry.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// Register adds or replaces the decoder for its format.
func (r *Registry) Register(d Decoder) {
	r.decoders[d.Format()] = d
}

// Decoder returns the decoder for f.
func (r *Registry) Decoder(f Format) (Decoder, error) {
	d, ok := r.decoders[f]
	if !ok {
		return nil, fmt.Errorf("no decoder registered for format %q", f)
	}
	return d, nil
}

// Decode resolves the decoder for f and runs it.
func (r *Registry) Decode(f Format, data []byte) (*Node, error) {
	d, err := r.Decoder(f)
	if err != nil {
		return nil, err
	}
	return d.Decode(data)
}
