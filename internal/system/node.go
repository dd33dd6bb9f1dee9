package system

import (
	"sort"

	"github.com/adaptyst/adaptyst/internal/module"
	"github.com/adaptyst/adaptyst/internal/output"
)

// Node is a named group of modules sharing an entity's context.
type Node struct {
	name    string
	entity  *Entity
	modules []*module.Module
	dir     *output.Path

	inTags  map[string]struct{}
	outTags map[string]struct{}
}

// NodeConnection is a directed edge between two nodes of an entity. It only
// feeds tag reachability.
type NodeConnection struct {
	Name string
	From *Node
	To   *Node
}

func newNode(name string, entity *Entity) *Node {
	return &Node{
		name:    name,
		entity:  entity,
		inTags:  map[string]struct{}{},
		outTags: map[string]struct{}{},
	}
}

func (n *Node) Name() string              { return n.name }
func (n *Node) Entity() *Entity           { return n.entity }
func (n *Node) Modules() []*module.Module { return append([]*module.Module(nil), n.modules...) }

// Dir returns the node's output directory.
func (n *Node) Dir() *output.Path { return n.dir }

// Tags returns the union of the tags of the node's modules.
func (n *Node) Tags() []string {
	set := map[string]struct{}{}
	for _, m := range n.modules {
		for _, tag := range m.Tags() {
			set[tag] = struct{}{}
		}
	}
	return sortedKeys(set)
}

// ProfilingModules counts the modules that will profile the workflow.
func (n *Node) ProfilingModules() int {
	count := 0
	for _, m := range n.modules {
		if m.WillProfile() {
			count++
		}
	}
	return count
}

func (n *Node) HasInTag(tag string) bool {
	_, ok := n.inTags[tag]
	return ok
}

func (n *Node) HasOutTag(tag string) bool {
	_, ok := n.outTags[tag]
	return ok
}

func (n *Node) InTags() []string  { return sortedKeys(n.inTags) }
func (n *Node) OutTags() []string { return sortedKeys(n.outTags) }

// connect records that data flows from c.From to c.To: the arrival node
// gains the departure node's tags as in-tags and the other way round.
func (c NodeConnection) connect() {
	for _, tag := range c.From.Tags() {
		c.To.inTags[tag] = struct{}{}
	}
	for _, tag := range c.To.Tags() {
		c.From.outTags[tag] = struct{}{}
	}
}

func (n *Node) remove(m *module.Module) {
	for i, existing := range n.modules {
		if existing == m {
			n.modules = append(n.modules[:i], n.modules[i+1:]...)
			return
		}
	}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
