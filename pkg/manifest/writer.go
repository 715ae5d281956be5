package manifest

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultRoot is where generated projects are written.
const DefaultRoot = "./agentic_code"

// WriteResult lists what Write did.
type WriteResult struct {
	Folder  string   // <root>/<folder>
	Created []string // written paths, each once, in first-seen order
	Skipped []string // manifest paths rejected as absolute or escaping the folder
}

// Writer materialises manifests under Root.
type Writer struct {
	Root string
}

// NewWriter returns a Writer for root, or DefaultRoot when root is empty.
func NewWriter(root string) *Writer {
	if root == "" {
		root = DefaultRoot
	}
	return &Writer{Root: root}
}

// Write creates <root>/<folder> and every file in m, overwriting existing files.
// Later duplicates of a path win. On a filesystem error it stops and returns the
// files written so far with the error; nothing is rolled back.
func (w *Writer) Write(m *Manifest) (WriteResult, error) {
	root := w.Root
	if root == "" {
		root = DefaultRoot
	}
	folder := m.FolderName
	if !filepath.IsLocal(folder) {
		folder = DefaultFolder
	}

	result := WriteResult{Folder: filepath.Join(root, folder)}
	if err := os.MkdirAll(result.Folder, 0755); err != nil {
		return result, fmt.Errorf("failed to create %s: %w", result.Folder, err)
	}

	seen := make(map[string]bool, len(m.Files))
	for _, f := range m.Files {
		if !filepath.IsLocal(f.Path) {
			result.Skipped = append(result.Skipped, f.Path)
			continue
		}

		target := filepath.Join(result.Folder, f.Path)
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return result, fmt.Errorf("failed to create directory for %s: %w", target, err)
		}
		if err := os.WriteFile(target, []byte(f.Content), 0644); err != nil {
			return result, fmt.Errorf("failed to write %s: %w", target, err)
		}

		if !seen[target] {
			seen[target] = true
			result.Created = append(result.Created, target)
		}
	}
	return result, nil
}
