// Package loader reads catalog and rule documents from disk and watches
// them for changes. The evaluation core accepts only already-decoded
// documents; all file I/O lives here.
//
// Documents are YAML; JSON files load unchanged since JSON is a YAML
// subset.
package loader

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/audumla/signalrules/internal/catalog"
)

// LoadCatalog reads, decodes, and validates a catalog document. A failure
// at any stage returns an error and no catalog: reload callers keep their
// previous snapshot.
func LoadCatalog(path string) (*catalog.Catalog, error) {
	doc, err := loadDocument(path)
	if err != nil {
		return nil, err
	}
	m, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("catalog %s: top level must be a mapping, got %T", path, doc)
	}
	cat, err := catalog.FromSource(m)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return cat, nil
}

// LoadRules reads and decodes a rule document without validating it; rule
// validation happens during engine construction where invalid rules drop
// individually.
func LoadRules(path string) (any, error) {
	doc, err := loadDocument(path)
	if err != nil {
		return nil, fmt.Errorf("rules %s: %w", path, err)
	}
	return doc, nil
}

// loadDocument reads a YAML or JSON file into untyped document form.
func loadDocument(path string) (any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return doc, nil
}
