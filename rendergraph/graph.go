package rendergraph

import (
	"fmt"

	"github.com/gogpu/wgpu/hal"
)

// Node names in the "draw" subgraph
const (
	MainPassNode  = "MAIN_PASS"
	DebugPassNode = "DEBUG_PASS"
	CopyPassNode  = "COPY_PASS"
)

// RunFunc records a node's commands against a fresh render pass encoder.
// ctx carries whatever per-frame state (globals bind group, phases,
// pipelines) the node needs; Graph does not interpret it.
type RunFunc func(rp hal.RenderPassEncoder, ctx any) error

// Node is one stage of the draw subgraph: a name, the names of nodes it
// depends on (must run first), and the work it performs.
type Node struct {
	Name   string
	Inputs []string
	Run    RunFunc
}

// Graph is the ordered GPU pass pipeline: MAIN_PASS -> (optional)
// DEBUG_PASS -> (optional, headless) COPY_PASS, run in topological order
// over declared Inputs.
type Graph struct {
	nodes map[string]Node
	order []string // insertion order, used to break topo-sort ties deterministically
}

// New creates an empty Graph.
func New() *Graph {
	return &Graph{nodes: make(map[string]Node)}
}

// AddNode registers a node. Re-adding a name replaces its definition but
// keeps its original position for tie-breaking.
func (g *Graph) AddNode(n Node) {
	if _, exists := g.nodes[n.Name]; !exists {
		g.order = append(g.order, n.Name)
	}
	g.nodes[n.Name] = n
}

// HasNode reports whether a node with the given name is registered.
func (g *Graph) HasNode(name string) bool {
	_, ok := g.nodes[name]
	return ok
}

// TopoOrder returns the registered node names in dependency order: every
// node appears after all of its Inputs. Ties are broken by registration
// order. Returns an error on a missing input or a cycle.
func (g *Graph) TopoOrder() ([]string, error) {
	visited := make(map[string]int) // 0=unvisited 1=visiting 2=done
	var out []string

	var visit func(name string) error
	visit = func(name string) error {
		switch visited[name] {
		case 2:
			return nil
		case 1:
			return fmt.Errorf("rendergraph: cycle detected at node %q", name)
		}
		node, ok := g.nodes[name]
		if !ok {
			return fmt.Errorf("rendergraph: unknown node %q referenced as input", name)
		}
		visited[name] = 1
		for _, dep := range node.Inputs {
			if err := visit(dep); err != nil {
				return err
			}
		}
		visited[name] = 2
		out = append(out, name)
		return nil
	}

	for _, name := range g.order {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// RunGraph executes every node in topological order, opening one render
// pass per node via newPass and handing it to the node's Run function.
// This is the graph_runner system of Render stage.
func (g *Graph) RunGraph(ctx any, newPass func(nodeName string) (hal.RenderPassEncoder, func() error, error)) error {
	order, err := g.TopoOrder()
	if err != nil {
		return err
	}
	for _, name := range order {
		node := g.nodes[name]
		rp, end, err := newPass(name)
		if err != nil {
			return fmt.Errorf("rendergraph: begin pass %q: %w", name, err)
		}
		if err := node.Run(rp, ctx); err != nil {
			return fmt.Errorf("rendergraph: run node %q: %w", name, err)
		}
		if err := end(); err != nil {
			return fmt.Errorf("rendergraph: end pass %q: %w", name, err)
		}
	}
	return nil
}
