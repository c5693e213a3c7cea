// Package graph runs a state machine of named nodes over a typed state,
// checkpointing after every step.
//
// A Graph is declared with AddNode, AddEdge and AddConditionalEdge and
// compiled into a Runner bound to a checkpoint.Saver. Nodes listed in
// InterruptBefore pause the run: the Runner persists the state and returns
// with status interrupted, and a later Resume continues from that node.
package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// End is the terminal pseudo-node.
const End = "__end__"

// NodeFunc transforms the state. Returning an error fails the run at this node.
type NodeFunc[S any] func(ctx context.Context, state S) (S, error)

// RouteFunc picks the next node from the state after a node has run.
type RouteFunc[S any] func(state S) string

type conditional[S any] struct {
	route   RouteFunc[S]
	targets map[string]bool
}

// Graph is the declarative form of a workflow.
type Graph[S any] struct {
	nodes      map[string]NodeFunc[S]
	edges      map[string]string
	routes     map[string]conditional[S]
	entry      string
	interrupts map[string]bool
	errs       []error
}

// New returns an empty graph.
func New[S any]() *Graph[S] {
	return &Graph[S]{
		nodes:      make(map[string]NodeFunc[S]),
		edges:      make(map[string]string),
		routes:     make(map[string]conditional[S]),
		interrupts: make(map[string]bool),
	}
}

// AddNode registers a node. The first node added becomes the entry unless SetEntry is called.
func (g *Graph[S]) AddNode(name string, fn NodeFunc[S]) *Graph[S] {
	switch {
	case name == "" || name == End:
		g.errs = append(g.errs, fmt.Errorf("graph: invalid node name %q", name))
	case fn == nil:
		g.errs = append(g.errs, fmt.Errorf("graph: node %q has nil func", name))
	case g.nodes[name] != nil:
		g.errs = append(g.errs, fmt.Errorf("graph: duplicate node %q", name))
	default:
		g.nodes[name] = fn
		if g.entry == "" {
			g.entry = name
		}
	}
	return g
}

func (g *Graph[S]) hasOutgoing(from string) bool {
	_, edge := g.edges[from]
	_, route := g.routes[from]
	return edge || route
}

// AddEdge connects from to to unconditionally.
func (g *Graph[S]) AddEdge(from, to string) *Graph[S] {
	if g.hasOutgoing(from) {
		g.errs = append(g.errs, fmt.Errorf("graph: node %q already has an outgoing edge", from))
		return g
	}
	g.edges[from] = to
	return g
}

// AddConditionalEdge routes from via route, which must return one of targets.
func (g *Graph[S]) AddConditionalEdge(from string, route RouteFunc[S], targets ...string) *Graph[S] {
	if g.hasOutgoing(from) {
		g.errs = append(g.errs, fmt.Errorf("graph: node %q already has an outgoing edge", from))
		return g
	}
	if route == nil || len(targets) == 0 {
		g.errs = append(g.errs, fmt.Errorf("graph: conditional edge from %q needs a route and targets", from))
		return g
	}
	set := make(map[string]bool, len(targets))
	for _, t := range targets {
		set[t] = true
	}
	g.routes[from] = conditional[S]{route: route, targets: set}
	return g
}

// SetEntry sets the first node to run.
func (g *Graph[S]) SetEntry(name string) *Graph[S] {
	g.entry = name
	return g
}

// InterruptBefore pauses the run before each named node executes.
func (g *Graph[S]) InterruptBefore(names ...string) *Graph[S] {
	for _, n := range names {
		g.interrupts[n] = true
	}
	return g
}

// Nodes returns the node names, sorted.
func (g *Graph[S]) Nodes() []string {
	names := make([]string, 0, len(g.nodes))
	for n := range g.nodes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (g *Graph[S]) known(name string) bool {
	return name == End || g.nodes[name] != nil
}

func (g *Graph[S]) validate() error {
	errs := append([]error(nil), g.errs...)

	if g.entry == "" {
		errs = append(errs, errors.New("graph: no entry node"))
	} else if g.nodes[g.entry] == nil {
		errs = append(errs, fmt.Errorf("graph: entry node %q not found", g.entry))
	}

	for _, name := range g.Nodes() {
		if !g.hasOutgoing(name) {
			errs = append(errs, fmt.Errorf("graph: node %q has no outgoing edge", name))
		}
	}
	for from, to := range g.edges {
		if g.nodes[from] == nil {
			errs = append(errs, fmt.Errorf("graph: edge from unknown node %q", from))
		}
		if !g.known(to) {
			errs = append(errs, fmt.Errorf("graph: edge to unknown node %q", to))
		}
	}
	for from, c := range g.routes {
		if g.nodes[from] == nil {
			errs = append(errs, fmt.Errorf("graph: conditional edge from unknown node %q", from))
		}
		for to := range c.targets {
			if !g.known(to) {
				errs = append(errs, fmt.Errorf("graph: conditional edge to unknown node %q", to))
			}
		}
	}
	for name := range g.interrupts {
		if g.nodes[name] == nil {
			errs = append(errs, fmt.Errorf("graph: interrupt on unknown node %q", name))
		}
	}
	return errors.Join(errs...)
}

// successor resolves the node after from for the given state.
func (g *Graph[S]) successor(from string, state S) (string, error) {
	if to, ok := g.edges[from]; ok {
		return to, nil
	}
	c := g.routes[from]
	to := c.route(state)
	if !c.targets[to] {
		return "", fmt.Errorf("%w: %q from %q", ErrUnknownRoute, to, from)
	}
	return to, nil
}
