package templates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// Export writes every active template as a JSON array
func Export(ctx context.Context, store Store, w io.Writer) (int, error) {
	all, err := store.List(ctx, "")
	if err != nil {
		return 0, err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(all); err != nil {
		return 0, fmt.Errorf("encode templates: %w", err)
	}
	return len(all), nil
}

// Import reads a JSON array of templates and puts each one. It stops at the
// first invalid template and returns how many were stored before it.
func Import(ctx context.Context, store Store, r io.Reader) (int, error) {
	var incoming []Template
	if err := json.NewDecoder(r).Decode(&incoming); err != nil {
		return 0, fmt.Errorf("decode templates: %w", err)
	}
	for i, t := range incoming {
		if err := store.Put(ctx, t); err != nil {
			return i, fmt.Errorf("import template %d: %w", i, err)
		}
	}
	return len(incoming), nil
}
