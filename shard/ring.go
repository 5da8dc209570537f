// Package shard partitions large records across storage nodes and issues
// signed integrity proofs over the resulting shards.
package shard

import (
	"errors"

	"github.com/stathat/consistent"
)

var ErrNoNodes = errors.New("no storage nodes in ring")

// Ring is a consistent-hash ring of storage node addresses.
type Ring struct {
	c *consistent.Consistent
}

func NewRing(nodes ...string) *Ring {
	r := &Ring{c: consistent.New()}
	for _, n := range nodes {
		r.AddNode(n)
	}
	return r
}

func (r *Ring) AddNode(node string) {
	if node != "" {
		r.c.Add(node)
	}
}

func (r *Ring) RemoveNode(node string) {
	r.c.Remove(node)
}

func (r *Ring) Nodes() []string {
	return r.c.Members()
}

// Owner returns the primary node for key.
func (r *Ring) Owner(key string) (string, error) {
	node, err := r.c.Get(key)
	if errors.Is(err, consistent.ErrEmptyCircle) {
		return "", ErrNoNodes
	}
	return node, err
}

// Replicas returns up to count distinct nodes for key, primary first.
func (r *Ring) Replicas(key string, count int) ([]string, error) {
	if members := len(r.c.Members()); count > members {
		count = members
	}
	if count < 1 {
		return nil, ErrNoNodes
	}
	nodes, err := r.c.GetN(key, count)
	if errors.Is(err, consistent.ErrEmptyCircle) {
		return nil, ErrNoNodes
	}
	return nodes, err
}
