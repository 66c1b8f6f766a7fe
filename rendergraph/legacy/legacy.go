// Package legacy is the named-node, explicit-DependencyCallback style of
// render graph (original_source's Crisp/Crisp/Renderer/RenderGraph.hpp),
// kept as a thin adapter over the canonical graph in rendergraph rather
// than as an independent engine (SPEC_FULL.md §10.1). Prefer
// rendergraph.Graph directly for new passes; this package exists for
// call sites still organized around named nodes and manual dependency
// callbacks between them.
package legacy

import (
	"fmt"
	"sort"

	vk "github.com/vulkan-go/vulkan"

	"github.com/crispgfx/crisp/rendergraph"
)

// DependencyCallback mirrors the original's std::function<void(const
// VulkanRenderPass&, VkCommandBuffer, uint32_t)>, minus the RenderPass
// reference (callers reach the physical pass through Graph instead).
type DependencyCallback func(cmd vk.CommandBuffer, virtualFrameIndex uint32)

// Node is one named entry of the legacy graph: a name, whether it is a
// compute pass, and the set of named dependencies that must run before
// it executes.
type Node struct {
	Name         string
	IsCompute    bool
	Handle       rendergraph.ResourceHandle
	dependencies map[string]DependencyCallback
	enabled      bool
}

// SetEnabled toggles whether this node's dependency callbacks run
// during ExecuteCommandLists, matching Node::isEnabled.
func (n *Node) SetEnabled(enabled bool) { n.enabled = enabled }

// Graph is the legacy adapter: named nodes with explicit cross-node
// dependencies, sequenced by ExecuteCommandLists. Nodes are not registered
// as passes on the wrapped rendergraph.Graph; callers add those through
// Inner.
type Graph struct {
	inner *rendergraph.Graph
	nodes map[string]*Node
	order []string
	deps  map[[2]string]DependencyCallback
}

// New wraps an already-constructed canonical graph.
func New(inner *rendergraph.Graph) *Graph {
	return &Graph{
		inner: inner,
		nodes: make(map[string]*Node),
		deps:  make(map[[2]string]DependencyCallback),
	}
}

// AddRenderPass registers a named rasterizer node, matching
// RenderGraph::addRenderPass.
func (g *Graph) AddRenderPass(name string) *Node {
	n := &Node{Name: name, enabled: true}
	g.nodes[name] = n
	g.order = append(g.order, name)
	return n
}

// AddComputePass registers a named compute node, matching
// RenderGraph::addComputePass.
func (g *Graph) AddComputePass(name string) *Node {
	n := &Node{Name: name, IsCompute: true, enabled: true}
	g.nodes[name] = n
	g.order = append(g.order, name)
	return n
}

// AddDependency records that destination must execute after source,
// running callback at the transition point, matching
// RenderGraph::addDependency.
func (g *Graph) AddDependency(source, destination string, callback DependencyCallback) error {
	if _, ok := g.nodes[source]; !ok {
		return fmt.Errorf("legacy: unknown source pass %q", source)
	}
	if _, ok := g.nodes[destination]; !ok {
		return fmt.Errorf("legacy: unknown destination pass %q", destination)
	}
	g.deps[[2]string{source, destination}] = callback
	return nil
}

// GetNode returns a previously registered node by name.
func (g *Graph) GetNode(name string) (*Node, bool) {
	n, ok := g.nodes[name]
	return n, ok
}

// sortExecutionOrder is a stable topological sort over the declared
// dependency edges, matching RenderGraph::sortRenderPasses. Nodes with
// no edges keep their declaration order.
func (g *Graph) sortExecutionOrder() ([]string, error) {
	indegree := make(map[string]int, len(g.order))
	adj := make(map[string][]string, len(g.order))
	for _, name := range g.order {
		indegree[name] = 0
	}
	for edge := range g.deps {
		src, dst := edge[0], edge[1]
		adj[src] = append(adj[src], dst)
		indegree[dst]++
	}
	for _, outs := range adj {
		sort.Strings(outs)
	}

	pos := make(map[string]int, len(g.order))
	for i, name := range g.order {
		pos[name] = i
	}
	var queue []string
	for _, name := range g.order {
		if indegree[name] == 0 {
			queue = append(queue, name)
		}
	}

	var sorted []string
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		sorted = append(sorted, name)
		for _, next := range adj[name] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
		sort.Slice(queue, func(a, b int) bool { return pos[queue[a]] < pos[queue[b]] })
	}

	if len(sorted) != len(g.order) {
		return nil, fmt.Errorf("legacy: dependency cycle detected among render passes")
	}
	return sorted, nil
}

// ExecuteCommandLists runs every enabled node's registered dependency
// callbacks in topological order, matching
// RenderGraph::executeCommandLists. The underlying canonical graph must
// already be compiled; this only sequences the legacy callbacks, it does
// not itself call Graph.Compile/Execute.
func (g *Graph) ExecuteCommandLists(cmd vk.CommandBuffer, virtualFrameIndex uint32) error {
	order, err := g.sortExecutionOrder()
	if err != nil {
		return err
	}
	for i, name := range order {
		node := g.nodes[name]
		if !node.enabled {
			continue
		}
		for j := 0; j < i; j++ {
			if cb, ok := g.deps[[2]string{order[j], name}]; ok && cb != nil {
				cb(cmd, virtualFrameIndex)
			}
		}
	}
	return nil
}

// Inner returns the canonical graph this adapter sequences callbacks
// over, for callers that need to register passes on it directly.
func (g *Graph) Inner() *rendergraph.Graph { return g.inner }
