package godi

import (
	"reflect"
	"slices"
)

// dependencyGraph is the static service graph built from descriptor
// dependencies. Nodes are service types; a node's edges are the
// dependencies of the registration GetService would pick for it.
type dependencyGraph struct {
	nodes []reflect.Type
	edges map[reflect.Type][]reflect.Type
}

func newDependencyGraph() *dependencyGraph {
	return &dependencyGraph{edges: make(map[reflect.Type][]reflect.Type)}
}

// add sets the edges of serviceType, replacing earlier ones.
func (g *dependencyGraph) add(serviceType reflect.Type, deps []reflect.Type) {
	if _, ok := g.edges[serviceType]; !ok {
		g.nodes = append(g.nodes, serviceType)
	}
	g.edges[serviceType] = deps
}

// detectCycles walks the graph depth-first from every node in insertion
// order and returns the first cycle found.
func (g *dependencyGraph) detectCycles() error {
	visited := make(map[reflect.Type]bool, len(g.nodes))
	visiting := make(map[reflect.Type]bool)

	var path []reflect.Type
	var visit func(t reflect.Type) error
	visit = func(t reflect.Type) error {
		if visiting[t] {
			chain := slices.Clone(path[slices.Index(path, t):])
			return CircularDependencyError{Chain: append(chain, t)}
		}
		if visited[t] {
			return nil
		}

		visiting[t] = true
		path = append(path, t)

		for _, dep := range g.edges[t] {
			if err := visit(dep); err != nil {
				return err
			}
		}

		path = path[:len(path)-1]
		visiting[t] = false
		visited[t] = true
		return nil
	}

	for _, t := range g.nodes {
		if err := visit(t); err != nil {
			return err
		}
	}

	return nil
}
