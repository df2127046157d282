// Package tech holds the technology prerequisite graph and its effect parser.
package tech

import (
	"errors"
	"fmt"
	"sort"
)

// Era tags used by the tech dataset, in chronological order
var eraOrder = map[string]int{
	"interwar":    0,
	"coldwar":     1,
	"information": 2,
	"digital":     3,
	"future":      4,
}

// Node is one researchable technology
type Node struct {
	ID            string   `yaml:"id" json:"id"`
	Name          string   `yaml:"name" json:"name"`
	Era           string   `yaml:"era" json:"era"`
	Effects       []string `yaml:"effects" json:"effects"`
	Prerequisites []string `yaml:"prerequisites" json:"prerequisites"`
	Unlocks       []string `yaml:"unlocks" json:"unlocks"`

	parsed []Effect
}

// ParsedEffects returns the effects that name a known stat keyword
func (n Node) ParsedEffects() []Effect {
	return n.parsed
}

// ErrCycle is returned when prerequisites loop back on themselves
var ErrCycle = errors.New("tech prerequisites contain a cycle")

// Graph indexes technologies by id
type Graph struct {
	nodes map[string]*Node
	order []string
}

// NewGraph builds a graph, filling unlock edges and rejecting malformed data
func NewGraph(nodes []Node) (*Graph, error) {
	g := &Graph{nodes: make(map[string]*Node, len(nodes))}

	for i := range nodes {
		n := nodes[i]
		if n.ID == "" {
			return nil, errors.New("tech id is required")
		}
		if _, exists := g.nodes[n.ID]; exists {
			return nil, fmt.Errorf("duplicate tech id: %s", n.ID)
		}
		n.Unlocks = nil
		n.parsed = nil
		for _, raw := range n.Effects {
			if effect, ok := ParseEffect(raw); ok {
				n.parsed = append(n.parsed, effect)
			}
		}
		g.nodes[n.ID] = &n
		g.order = append(g.order, n.ID)
	}

	// Reverse edges
	for _, id := range g.order {
		n := g.nodes[id]
		for _, pre := range n.Prerequisites {
			parent, ok := g.nodes[pre]
			if !ok {
				return nil, fmt.Errorf("tech %s: unknown prerequisite %s", id, pre)
			}
			parent.Unlocks = append(parent.Unlocks, id)
		}
	}

	if err := g.checkAcyclic(); err != nil {
		return nil, err
	}

	sort.Slice(g.order, func(i, j int) bool {
		a, b := g.nodes[g.order[i]], g.nodes[g.order[j]]
		if eraOrder[a.Era] != eraOrder[b.Era] {
			return eraOrder[a.Era] < eraOrder[b.Era]
		}
		return a.ID < b.ID
	})

	return g, nil
}

func (g *Graph) checkAcyclic() error {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(g.nodes))

	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case visiting:
			return fmt.Errorf("%w at %s", ErrCycle, id)
		case done:
			return nil
		}
		state[id] = visiting
		for _, pre := range g.nodes[id].Prerequisites {
			if err := visit(pre); err != nil {
				return err
			}
		}
		state[id] = done
		return nil
	}

	for _, id := range g.order {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}

// FindTech looks up a technology by id
func (g *Graph) FindTech(id string) (Node, bool) {
	n, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// IsAvailable reports whether every prerequisite of id is in unlocked.
// Unknown ids are never available.
func (g *Graph) IsAvailable(id string, unlocked map[string]bool) bool {
	n, ok := g.nodes[id]
	if !ok {
		return false
	}
	for _, pre := range n.Prerequisites {
		if !unlocked[pre] {
			return false
		}
	}
	return true
}

// Available lists the technologies that can be researched next
func (g *Graph) Available(unlocked map[string]bool) []Node {
	var out []Node
	for _, id := range g.order {
		if unlocked[id] {
			continue
		}
		if g.IsAvailable(id, unlocked) {
			out = append(out, *g.nodes[id])
		}
	}
	return out
}

// Nodes returns every technology sorted by era then id
func (g *Graph) Nodes() []Node {
	out := make([]Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, *g.nodes[id])
	}
	return out
}

// ByEra returns the technologies tagged with era
func (g *Graph) ByEra(era string) []Node {
	var out []Node
	for _, id := range g.order {
		if g.nodes[id].Era == era {
			out = append(out, *g.nodes[id])
		}
	}
	return out
}

// Len returns the number of technologies
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Set converts a list of unlocked ids to a membership set
func Set(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
