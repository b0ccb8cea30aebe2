// Package extract flattens a content-tree snapshot of the foreground surface
// into plain text.
package extract

import (
	"encoding/json"
	"strings"
)

// MaxLines caps the number of lines a single extraction emits.
const MaxLines = 2000

// Node is one element of a content-tree snapshot.
type Node struct {
	SurfaceID   string  `json:"surface,omitempty"`
	Label       string  `json:"label,omitempty"`
	Description string  `json:"description,omitempty"`
	Children    []*Node `json:"children,omitempty"`
}

// UnmarshalJSON accepts "text" as an alias for "label" and
// "content_description" as an alias for "description".
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw struct {
		SurfaceID          string  `json:"surface"`
		Package            string  `json:"package"`
		Label              string  `json:"label"`
		Text               string  `json:"text"`
		Description        string  `json:"description"`
		ContentDescription string  `json:"content_description"`
		Children           []*Node `json:"children"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	n.SurfaceID = firstNonEmpty(raw.SurfaceID, raw.Package)
	n.Label = firstNonEmpty(raw.Label, raw.Text)
	n.Description = firstNonEmpty(raw.Description, raw.ContentDescription)
	n.Children = raw.Children
	return nil
}

// Extract walks root depth-first, left to right, and returns the non-blank
// labels and descriptions joined by newlines. A description equal to its
// node's label is emitted once. After MaxLines lines the walk continues but
// emits nothing. A nil root yields "".
func Extract(root *Node) string {
	if root == nil {
		return ""
	}
	w := walker{lines: make([]string, 0, 64)}
	w.visit(root)
	return strings.TrimSpace(strings.Join(w.lines, "\n"))
}

type walker struct {
	lines []string
}

func (w *walker) emit(s string) {
	if len(w.lines) >= MaxLines {
		return
	}
	w.lines = append(w.lines, s)
}

func (w *walker) visit(n *Node) {
	if n == nil {
		return
	}
	label := strings.TrimSpace(n.Label)
	if label != "" {
		w.emit(label)
	}
	desc := strings.TrimSpace(n.Description)
	if desc != "" && desc != label {
		w.emit(desc)
	}
	for _, child := range n.Children {
		w.visit(child)
	}
}

// SurfaceFilter decides which surfaces must never be extracted.
type SurfaceFilter struct {
	// Patterns are matched case-insensitively as substrings.
	Patterns []string
	// Self is the capturing application's own surface id, matched exactly.
	Self string
}

// Excluded reports whether id belongs to the system shell, a launcher, or
// this application.
func (f SurfaceFilter) Excluded(id string) bool {
	if id == "" {
		return false
	}
	if f.Self != "" && id == f.Self {
		return true
	}
	lower := strings.ToLower(id)
	for _, p := range f.Patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" && strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// ExtractSurface applies the filter before extracting: an excluded root
// yields "".
func (f SurfaceFilter) ExtractSurface(root *Node) string {
	if root == nil || f.Excluded(root.SurfaceID) {
		return ""
	}
	return Extract(root)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
