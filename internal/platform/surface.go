// Package platform adapts desktop facilities to the capture collaborators:
// content trees delivered as JSON and screenshots taken by an external
// command.
package platform

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/hpungsan/autoledger/internal/errors"
	"github.com/hpungsan/autoledger/internal/extract"
)

// DecodeTree reads one JSON content tree from r.
func DecodeTree(r io.Reader) (*extract.Node, error) {
	var root extract.Node
	if err := json.NewDecoder(r).Decode(&root); err != nil {
		return nil, errors.NewInvalidRequest("invalid content tree JSON: " + err.Error())
	}
	return &root, nil
}

// LoadTree reads a JSON content tree from a file; "-" reads stdin.
func LoadTree(path string) (*extract.Node, error) {
	if path == "-" {
		return DecodeTree(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound("tree", path)
		}
		return nil, errors.NewInternal(err)
	}
	defer f.Close()
	return DecodeTree(f)
}

// TreeSurface serves the most recently published content tree.
//
// Thread-safety: All methods are safe for concurrent use.
type TreeSurface struct {
	mu        sync.RWMutex
	root      *extract.Node
	available bool
}

// NewTreeSurface returns a surface reporting available, holding root (which
// may be nil until the first Publish).
func NewTreeSurface(root *extract.Node, available bool) *TreeSurface {
	return &TreeSurface{root: root, available: available}
}

// Publish replaces the foreground tree.
func (s *TreeSurface) Publish(root *extract.Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.root = root
}

// SetAvailable toggles the extraction capability.
func (s *TreeSurface) SetAvailable(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.available = v
}

// Available implements capture.Surface.
func (s *TreeSurface) Available() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.available
}

// Foreground implements capture.Surface.
func (s *TreeSurface) Foreground(ctx context.Context) (*extract.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.root, nil
}
