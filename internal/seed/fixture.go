// Package seed builds trees from YAML fixtures through the tree service.
//
// A fixture is one nested document:
//
//	name: root
//	children:
//	  - name: a
//	    children:
//	      - name: c
//	  - name: b
//
// Names are optional labels used to report the generated IDs; they are not
// stored.
package seed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"nodetree/internal/config"
	"nodetree/internal/domain/services"
)

// Fixture is one node of a seed document
type Fixture struct {
	Name     string     `yaml:"name"`
	Children []*Fixture `yaml:"children"`
}

// Count returns the number of nodes in the fixture, itself included
func (f *Fixture) Count() int {
	n := 1
	for _, c := range f.Children {
		n += c.Count()
	}
	return n
}

// Load parses a fixture and rejects documents that are empty, too large,
// or reuse a name.
func Load(r io.Reader) (*Fixture, error) {
	var f Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("fixture is empty")
		}
		return nil, fmt.Errorf("parse fixture: %w", err)
	}

	names := make(map[string]bool)
	if err := checkNames(&f, names); err != nil {
		return nil, err
	}

	if n := f.Count(); n > config.MaxSeedNodes {
		return nil, fmt.Errorf("fixture has %d nodes, limit is %d", n, config.MaxSeedNodes)
	}
	return &f, nil
}

// LoadFile parses the fixture at path
func LoadFile(path string) (*Fixture, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fixture: %w", err)
	}
	defer func() { _ = file.Close() }()
	return Load(file)
}

func checkNames(f *Fixture, names map[string]bool) error {
	if f == nil {
		return fmt.Errorf("fixture contains an empty child entry")
	}
	if f.Name != "" {
		if names[f.Name] {
			return fmt.Errorf("fixture name %q is used twice", f.Name)
		}
		names[f.Name] = true
	}
	for _, c := range f.Children {
		if err := checkNames(c, names); err != nil {
			return err
		}
	}
	return nil
}

// Result reports what Apply created
type Result struct {
	RootID string            `json:"root_id"`
	IDs    map[string]string `json:"ids"` // fixture name -> node ID
	Count  int               `json:"count"`
}

// Seeder applies fixtures through a TreeService, so every invariant check
// that guards API calls also guards seeding
type Seeder struct {
	treeService services.TreeService
	logger      *slog.Logger
}

// NewSeeder creates a new seeder
func NewSeeder(treeService services.TreeService, logger *slog.Logger) *Seeder {
	return &Seeder{
		treeService: treeService,
		logger:      logger,
	}
}

// Apply creates the fixture's nodes level by level. With a nil parentID
// the fixture's top node becomes the root, which fails on a non-empty tree.
// Otherwise the fixture is attached below parentID.
// Nodes created before a failure are left in place.
func (s *Seeder) Apply(ctx context.Context, f *Fixture, parentID *string) (*Result, error) {
	type pending struct {
		fixture  *Fixture
		parentID *string
	}

	result := &Result{IDs: make(map[string]string)}
	queue := []pending{{fixture: f, parentID: parentID}}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		info, err := s.treeService.AddNode(ctx, item.parentID)
		if err != nil {
			return result, fmt.Errorf("seed %s: %w", label(item.fixture), err)
		}
		if result.RootID == "" {
			result.RootID = info.ID
		}
		if item.fixture.Name != "" {
			result.IDs[item.fixture.Name] = info.ID
		}
		result.Count++

		id := info.ID
		for _, child := range item.fixture.Children {
			queue = append(queue, pending{fixture: child, parentID: &id})
		}
	}

	s.logger.Info("fixture applied",
		"root_id", result.RootID,
		"nodes", result.Count,
	)

	return result, nil
}

func label(f *Fixture) string {
	if f.Name != "" {
		return fmt.Sprintf("node %q", f.Name)
	}
	return "unnamed node"
}
