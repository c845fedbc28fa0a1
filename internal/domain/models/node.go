package models

import "time"

// Node is a persisted tree node.
// Children is insertion ordered and mirrors the set of nodes whose ParentID is ID.
type Node struct {
	ID        string    `json:"id" db:"id"`
	ParentID  *string   `json:"parent_id" db:"parent_id"` // NULL = root
	Children  []string  `json:"children"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// IsRoot reports whether the node has no parent
func (n *Node) IsRoot() bool {
	return n.ParentID == nil
}

// Clone returns a deep copy so callers never alias a store's internal slices
func (n *Node) Clone() *Node {
	c := *n
	if n.ParentID != nil {
		p := *n.ParentID
		c.ParentID = &p
	}
	c.Children = append([]string{}, n.Children...)
	return &c
}

// RemoveChild drops id from Children, preserving the order of the rest.
// Returns false when id was not a child.
func (n *Node) RemoveChild(id string) bool {
	for i, child := range n.Children {
		if child == id {
			n.Children = append(n.Children[:i], n.Children[i+1:]...)
			return true
		}
	}
	return false
}

// NodeInfo is the derived view of a node returned to callers. Never persisted.
type NodeInfo struct {
	ID       string  `json:"id"`
	ParentID *string `json:"parent"`
	Depth    int     `json:"depth"`
	Root     string  `json:"root"`
}

// TreeReport summarizes a full invariant check of the tree
type TreeReport struct {
	NodeCount int      `json:"node_count"`
	Reachable int      `json:"reachable"`
	Root      string   `json:"root,omitempty"`
	Height    int      `json:"height"`
	Problems  []string `json:"problems"`
}

// Healthy reports whether the check found no problems
func (r *TreeReport) Healthy() bool {
	return len(r.Problems) == 0
}
