// Package jsonfile stores the whole tree as one JSON document on disk.
// Several processes (server, treectl) may share the file; access is
// guarded by an advisory file lock next to it.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"nodetree/internal/domain"
	"nodetree/internal/domain/models"
	"nodetree/internal/domain/repositories"
)

const (
	lockTimeout    = 3 * time.Second
	lockRetryDelay = 50 * time.Millisecond
	formatVersion  = "1.0"
)

// storeData is the on-disk document
type storeData struct {
	Metadata metadata       `json:"metadata"`
	RootID   string         `json:"root_id,omitempty"`
	Nodes    []*models.Node `json:"nodes"`

	index map[string]*models.Node
}

type metadata struct {
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (d *storeData) buildIndex() {
	d.index = make(map[string]*models.Node, len(d.Nodes))
	for _, n := range d.Nodes {
		if n.Children == nil {
			n.Children = []string{}
		}
		d.index[n.ID] = n
	}
}

func (d *storeData) lookup(id string) (*models.Node, error) {
	n, ok := d.index[id]
	if !ok {
		return nil, domain.NodeNotFound(id)
	}
	return n, nil
}

// NodeRepository implements NodeRepository on a JSON file.
// Outside a transaction every call re-reads the file under the lock, so
// writes made by other processes are always visible. Inside ExecTx or ReadTx
// the document is loaded once and the lock is held until the end.
type NodeRepository struct {
	path     string
	mu       sync.Mutex
	fileLock *flock.Flock
	timeFunc func() time.Time
}

// NewNodeRepository opens (or prepares to create) the store at path
func NewNodeRepository(path string) (*NodeRepository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &NodeRepository{
		path:     path,
		fileLock: flock.New(path + ".lock"),
		timeFunc: time.Now,
	}, nil
}

var _ repositories.NodeRepository = (*NodeRepository)(nil)

// AddNode creates a node and links it into its parent's children
func (r *NodeRepository) AddNode(ctx context.Context, parentID *string) (*models.Node, error) {
	var created *models.Node
	err := r.write(ctx, func(data *storeData) error {
		node := &models.Node{
			ID:        uuid.New().String(),
			Children:  []string{},
			CreatedAt: r.timeFunc().UTC(),
		}
		if parentID != nil {
			parent, err := data.lookup(*parentID)
			if err != nil {
				return err
			}
			pid := parent.ID
			node.ParentID = &pid
			parent.Children = append(parent.Children, node.ID)
		} else if data.RootID == "" {
			data.RootID = node.ID
		}
		data.Nodes = append(data.Nodes, node)
		created = node.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// GetNode retrieves a node by ID
func (r *NodeRepository) GetNode(ctx context.Context, id string) (*models.Node, error) {
	var node *models.Node
	err := r.read(ctx, func(data *storeData) error {
		n, err := data.lookup(id)
		if err != nil {
			return err
		}
		node = n.Clone()
		return nil
	})
	return node, err
}

// GetNodeCount returns the number of stored nodes
func (r *NodeRepository) GetNodeCount(ctx context.Context) (int, error) {
	var count int
	err := r.read(ctx, func(data *storeData) error {
		count = len(data.Nodes)
		return nil
	})
	return count, err
}

// GetRoot returns the first parentless node
func (r *NodeRepository) GetRoot(ctx context.Context) (*models.Node, error) {
	var node *models.Node
	err := r.read(ctx, func(data *storeData) error {
		if data.RootID == "" {
			return &domain.NotFoundError{Message: "tree has no root"}
		}
		n, err := data.lookup(data.RootID)
		if err != nil {
			return err
		}
		node = n.Clone()
		return nil
	})
	return node, err
}

// SetParent moves nodeID under parentID; the document is rewritten once
func (r *NodeRepository) SetParent(ctx context.Context, nodeID, parentID string) (*models.Node, error) {
	var moved *models.Node
	err := r.write(ctx, func(data *storeData) error {
		node, err := data.lookup(nodeID)
		if err != nil {
			return err
		}
		newParent, err := data.lookup(parentID)
		if err != nil {
			return err
		}
		if node.IsRoot() {
			return domain.InvalidStructure("node %s is the root and cannot be moved", nodeID)
		}
		if *node.ParentID != parentID {
			if oldParent, err := data.lookup(*node.ParentID); err == nil {
				oldParent.RemoveChild(nodeID)
			}
			newParent.Children = append(newParent.Children, nodeID)
			pid := newParent.ID
			node.ParentID = &pid
		}
		moved = node.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return moved, nil
}

// read runs fn on the document. Inside a transaction it reuses the loaded
// document; otherwise the file is loaded under a shared file lock.
func (r *NodeRepository) read(ctx context.Context, fn func(*storeData) error) error {
	if s := r.session(ctx); s != nil {
		return fn(s.data)
	}
	return r.withLock(ctx, false, func() error {
		data, err := r.load()
		if err != nil {
			return err
		}
		return fn(data)
	})
}

// write loads, mutates and saves the document under an exclusive file lock.
// Nothing is written when fn fails. Inside ExecTx the mutation is applied to
// the transaction's document and saved when the transaction ends.
func (r *NodeRepository) write(ctx context.Context, fn func(*storeData) error) error {
	if s := r.session(ctx); s != nil {
		if !s.write {
			return ErrWriteInReadTx
		}
		if err := fn(s.data); err != nil {
			return err
		}
		s.dirty = true
		return nil
	}
	return r.withLock(ctx, true, func() error {
		data, err := r.load()
		if err != nil {
			return err
		}
		if err := fn(data); err != nil {
			return err
		}
		return r.save(data)
	})
}

// withLock runs fn holding the in-process mutex and the file lock
func (r *NodeRepository) withLock(ctx context.Context, exclusive bool, fn func() error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	kind := "read"
	tryLock := r.fileLock.TryRLockContext
	if exclusive {
		kind = "write"
		tryLock = r.fileLock.TryLockContext
	}

	locked, err := tryLock(lockCtx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("acquire %s lock: %w", kind, err)
	}
	if !locked {
		return fmt.Errorf("acquire %s lock: timed out after %s", kind, lockTimeout)
	}
	defer func() { _ = r.fileLock.Unlock() }()

	return fn()
}

// load reads the JSON file; a missing or empty file is an empty tree
func (r *NodeRepository) load() (*storeData, error) {
	now := r.timeFunc().UTC()
	data := &storeData{
		Metadata: metadata{Version: formatVersion, CreatedAt: now, UpdatedAt: now},
		Nodes:    []*models.Node{},
	}

	raw, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		data.buildIndex()
		return data, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read store file: %w", err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, data); err != nil {
			return nil, fmt.Errorf("parse store file: %w", err)
		}
	}

	data.buildIndex()
	return data, nil
}

// save writes to a temp file and renames it over the store
func (r *NodeRepository) save(data *storeData) error {
	data.Metadata.UpdatedAt = r.timeFunc().UTC()

	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal store: %w", err)
	}

	tmpFile := r.path + ".tmp"
	if err := os.WriteFile(tmpFile, raw, 0644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmpFile, r.path); err != nil {
		_ = os.Remove(tmpFile)
		return fmt.Errorf("rename store file: %w", err)
	}
	return nil
}
