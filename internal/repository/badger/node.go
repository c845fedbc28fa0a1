package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"nodetree/internal/domain"
	"nodetree/internal/domain/models"
	"nodetree/internal/domain/repositories"
)

// Key layout:
//
//	node/<id>   JSON-encoded models.Node (children materialized)
//	meta/count  decimal node count
//	meta/root   ID of the first parentless node
const nodePrefix = "node/"

var (
	countKey = []byte("meta/count")
	rootKey  = []byte("meta/root")
)

func nodeKey(id string) []byte {
	return []byte(nodePrefix + id)
}

// NodeRepository implements NodeRepository on BadgerDB. Each method runs in
// one badger transaction, so multi-record writes commit or vanish together.
type NodeRepository struct {
	db *DB
}

// NewNodeRepository creates a repository over an open database
func NewNodeRepository(db *DB) *NodeRepository {
	return &NodeRepository{db: db}
}

var _ repositories.NodeRepository = (*NodeRepository)(nil)

// AddNode creates a node and links it into its parent's children
func (r *NodeRepository) AddNode(ctx context.Context, parentID *string) (*models.Node, error) {
	node := &models.Node{
		ID:        uuid.New().String(),
		Children:  []string{},
		CreatedAt: time.Now().UTC(),
	}

	err := r.db.Update(func(txn *badger.Txn) error {
		if parentID != nil {
			parent, err := getNode(txn, *parentID)
			if err != nil {
				return err
			}
			pid := parent.ID
			node.ParentID = &pid
			parent.Children = append(parent.Children, node.ID)
			if err := putNode(txn, parent); err != nil {
				return err
			}
		} else {
			_, err := txn.Get(rootKey)
			switch {
			case errors.Is(err, badger.ErrKeyNotFound):
				if err := txn.Set(rootKey, []byte(node.ID)); err != nil {
					return err
				}
			case err != nil:
				return err
			}
		}

		if err := putNode(txn, node); err != nil {
			return err
		}
		count, err := getCount(txn)
		if err != nil {
			return err
		}
		return txn.Set(countKey, []byte(strconv.Itoa(count+1)))
	})
	if err != nil {
		return nil, wrapErr("add node", err)
	}

	return node, nil
}

// GetNode retrieves a node by ID
func (r *NodeRepository) GetNode(ctx context.Context, id string) (*models.Node, error) {
	var node *models.Node
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		node, err = getNode(txn, id)
		return err
	})
	if err != nil {
		return nil, wrapErr("get node", err)
	}
	return node, nil
}

// GetNodeCount returns the stored node count
func (r *NodeRepository) GetNodeCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		count, err = getCount(txn)
		return err
	})
	if err != nil {
		return 0, wrapErr("count nodes", err)
	}
	return count, nil
}

// GetRoot returns the first parentless node
func (r *NodeRepository) GetRoot(ctx context.Context) (*models.Node, error) {
	var node *models.Node
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(rootKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return &domain.NotFoundError{Message: "tree has no root"}
		}
		if err != nil {
			return err
		}
		rootID, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		node, err = getNode(txn, string(rootID))
		return err
	})
	if err != nil {
		return nil, wrapErr("get root", err)
	}
	return node, nil
}

// SetParent moves nodeID under parentID, rewriting up to three documents in one transaction
func (r *NodeRepository) SetParent(ctx context.Context, nodeID, parentID string) (*models.Node, error) {
	var node *models.Node
	err := r.db.Update(func(txn *badger.Txn) error {
		var err error
		node, err = getNode(txn, nodeID)
		if err != nil {
			return err
		}
		newParent, err := getNode(txn, parentID)
		if err != nil {
			return err
		}
		if node.IsRoot() {
			return domain.InvalidStructure("node %s is the root and cannot be moved", nodeID)
		}
		if *node.ParentID == parentID {
			return nil
		}

		oldParent, err := getNode(txn, *node.ParentID)
		if err != nil {
			return err
		}
		oldParent.RemoveChild(nodeID)
		if err := putNode(txn, oldParent); err != nil {
			return err
		}

		newParent.Children = append(newParent.Children, nodeID)
		if err := putNode(txn, newParent); err != nil {
			return err
		}

		pid := newParent.ID
		node.ParentID = &pid
		return putNode(txn, node)
	})
	if err != nil {
		return nil, wrapErr("set parent", err)
	}
	return node, nil
}

func getNode(txn *badger.Txn, id string) (*models.Node, error) {
	item, err := txn.Get(nodeKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, domain.NodeNotFound(id)
	}
	if err != nil {
		return nil, err
	}

	var node models.Node
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &node)
	})
	if err != nil {
		return nil, fmt.Errorf("decode node %s: %w", id, err)
	}
	if node.Children == nil {
		node.Children = []string{}
	}
	return &node, nil
}

func putNode(txn *badger.Txn, node *models.Node) error {
	data, err := json.Marshal(node)
	if err != nil {
		return fmt.Errorf("encode node %s: %w", node.ID, err)
	}
	return txn.Set(nodeKey(node.ID), data)
}

func getCount(txn *badger.Txn) (int, error) {
	item, err := txn.Get(countKey)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(string(raw))
}

// wrapErr passes domain errors through untouched and adds context to storage errors
func wrapErr(op string, err error) error {
	var httpErr domain.HTTPError
	if errors.As(err, &httpErr) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
