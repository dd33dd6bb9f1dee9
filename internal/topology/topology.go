package topology

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/adaptyst/adaptyst/internal/module"
	"github.com/goccy/go-yaml"
)

// AccessMode says how the coordinator reaches an entity.
type AccessMode int

const (
	// InPlace runs the workflow on this machine.
	InPlace AccessMode = iota
	// Custom leaves running the workflow to the modules.
	Custom
)

func (m AccessMode) String() string {
	if m == Custom {
		return "custom"
	}
	return "in_place"
}

// Definition is a parsed system definition.
type Definition struct {
	Entities []Entity
}

// Entity is one entity of the definition.
type Entity struct {
	Name              string
	AccessMode        AccessMode
	ProcessingThreads uint
	WorkflowTTY       bool
	// DirectingNode defaults to the first node.
	DirectingNode string
	Nodes         []Node
	Edges         []Edge
}

// Node is a named group of modules. The backend is its first module and
// receives the node-level options.
type Node struct {
	Name    string
	Backend string
	Options module.UserOptions
	Modules []ModuleSpec
}

// ModuleSpec names a module and its options.
type ModuleSpec struct {
	Name    string
	Options module.UserOptions
}

// Edge connects two nodes of the same entity.
type Edge struct {
	Name string
	From string
	To   string
}

// AllModules returns the backend followed by the extra modules.
func (n Node) AllModules() []ModuleSpec {
	return append([]ModuleSpec{{Name: n.Backend, Options: n.Options}}, n.Modules...)
}

// Node returns the node called name.
func (e Entity) Node(name string) (Node, bool) {
	for _, n := range e.Nodes {
		if n.Name == name {
			return n, true
		}
	}
	return Node{}, false
}

// ParseFile reads and parses a definition file.
func ParseFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse parses a definition document.
func Parse(data []byte) (*Definition, error) {
	var root any
	if err := yaml.UnmarshalWithOptions(data, &root, yaml.UseOrderedMap()); err != nil {
		return nil, fmt.Errorf("the system YAML file could not be parsed: %w", err)
	}

	rootMap, ok := root.(yaml.MapSlice)
	if !ok {
		return nil, errors.New("the system YAML file is not a map")
	}
	entities, ok := get(rootMap, "entities")
	if !ok {
		return nil, errors.New(`the system YAML file does not have "entities" in its root`)
	}
	entitiesMap, ok := entities.(yaml.MapSlice)
	if !ok {
		return nil, errors.New(`"entities" in the system YAML file is not a map`)
	}

	def := &Definition{}
	seen := map[string]bool{}
	for _, item := range entitiesMap {
		name := fmt.Sprint(item.Key)
		if seen[name] {
			return nil, fmt.Errorf("entity %q is defined more than once", name)
		}
		seen[name] = true

		e, err := parseEntity(name, item.Value)
		if err != nil {
			return nil, err
		}
		def.Entities = append(def.Entities, e)
	}
	return def, nil
}

func parseEntity(name string, v any) (Entity, error) {
	e := Entity{Name: name, ProcessingThreads: 1}
	where := fmt.Sprintf("entity %q", name)

	body, ok := v.(yaml.MapSlice)
	if !ok {
		return e, fmt.Errorf("%s is not a map", where)
	}

	opts, ok := get(body, "options")
	if !ok {
		return e, fmt.Errorf(`%s does not have "options"`, where)
	}
	optsMap, ok := opts.(yaml.MapSlice)
	if !ok {
		return e, fmt.Errorf(`"options" in %s is not a map`, where)
	}
	if err := parseEntityOptions(&e, optsMap, where); err != nil {
		return e, err
	}

	nodes, ok := get(body, "nodes")
	if !ok {
		return e, fmt.Errorf(`%s does not have "nodes"`, where)
	}
	nodesMap, ok := nodes.(yaml.MapSlice)
	if !ok {
		return e, fmt.Errorf(`"nodes" in %s is not a map`, where)
	}
	for _, item := range nodesMap {
		nodeName := fmt.Sprint(item.Key)
		if _, dup := e.Node(nodeName); dup {
			return e, fmt.Errorf("node %q in %s is defined more than once", nodeName, where)
		}
		n, err := parseNode(nodeName, item.Value, where)
		if err != nil {
			return e, err
		}
		e.Nodes = append(e.Nodes, n)
	}
	if len(e.Nodes) == 0 {
		return e, fmt.Errorf("%s has no nodes", where)
	}

	if e.DirectingNode == "" {
		e.DirectingNode = e.Nodes[0].Name
	} else if _, ok := e.Node(e.DirectingNode); !ok {
		return e, fmt.Errorf("node %q does not exist (directing node of %s)", e.DirectingNode, where)
	}

	if edges, ok := get(body, "edges"); ok {
		edgesMap, ok := edges.(yaml.MapSlice)
		if !ok {
			return e, fmt.Errorf(`"edges" in %s is not a map`, where)
		}
		names := map[string]bool{}
		for _, item := range edgesMap {
			edgeName := fmt.Sprint(item.Key)
			if names[edgeName] {
				return e, fmt.Errorf("a connection with ID %q already exists in %s", edgeName, where)
			}
			names[edgeName] = true

			edge, err := parseEdge(e, edgeName, item.Value, where)
			if err != nil {
				return e, err
			}
			e.Edges = append(e.Edges, edge)
		}
	}
	return e, nil
}

func parseEntityOptions(e *Entity, opts yaml.MapSlice, where string) error {
	mode, ok := get(opts, "access_mode")
	if !ok {
		return fmt.Errorf(`"options" in %s does not have "access_mode"`, where)
	}
	modeStr, ok := scalar(mode)
	if !ok {
		return fmt.Errorf(`"access_mode" in %s is not a simple value`, where)
	}
	switch modeStr {
	case "in_place":
		e.AccessMode = InPlace
	case "custom":
		e.AccessMode = Custom
	case "remote", "custom_remote":
		return fmt.Errorf("remote access to entities is not yet supported (%s)", where)
	default:
		return fmt.Errorf(`"access_mode" in %s has an invalid value: %s`, where, modeStr)
	}

	if threads, ok := get(opts, "processing_threads"); ok {
		s, ok := scalar(threads)
		n, err := strconv.ParseUint(s, 10, 32)
		if !ok || err != nil {
			return fmt.Errorf(`"processing_threads" in %s is not a valid unsigned integer`, where)
		}
		e.ProcessingThreads = uint(n)
	}

	if tty, ok := get(opts, "workflow_tty"); ok {
		s, _ := scalar(tty)
		b, err := strconv.ParseBool(s)
		if err != nil {
			return fmt.Errorf(`"workflow_tty" in %s is not a boolean`, where)
		}
		e.WorkflowTTY = b
	}

	if dir, ok := get(opts, "directing_node"); ok {
		s, ok := scalar(dir)
		if !ok {
			return fmt.Errorf(`"directing_node" in %s is not a simple value`, where)
		}
		e.DirectingNode = s
	}
	return nil
}

func parseNode(name string, v any, entity string) (Node, error) {
	n := Node{Name: name}
	where := fmt.Sprintf("node %q in %s", name, entity)

	body, ok := v.(yaml.MapSlice)
	if !ok {
		return n, fmt.Errorf("%s is not a map", where)
	}

	backend, ok := get(body, "backend")
	if !ok {
		return n, fmt.Errorf(`%s does not have "backend"`, where)
	}
	if n.Backend, ok = scalar(backend); !ok || n.Backend == "" {
		return n, fmt.Errorf(`"backend" in %s is not a simple value`, where)
	}

	var err error
	if opts, ok := get(body, "options"); ok {
		if n.Options, err = parseOptions(opts, where); err != nil {
			return n, err
		}
	}

	if mods, ok := get(body, "modules"); ok {
		list, ok := mods.([]any)
		if !ok {
			return n, fmt.Errorf(`"modules" in %s is not an array`, where)
		}
		for i, m := range list {
			spec, err := parseModuleSpec(m, fmt.Sprintf("module %d of %s", i, where))
			if err != nil {
				return n, err
			}
			n.Modules = append(n.Modules, spec)
		}
	}
	return n, nil
}

func parseModuleSpec(v any, where string) (ModuleSpec, error) {
	if name, ok := scalar(v); ok && name != "" {
		return ModuleSpec{Name: name}, nil
	}

	body, ok := v.(yaml.MapSlice)
	if !ok {
		return ModuleSpec{}, fmt.Errorf("%s is neither a name nor a map", where)
	}
	nameVal, ok := get(body, "name")
	if !ok {
		return ModuleSpec{}, fmt.Errorf(`%s does not have "name"`, where)
	}
	name, ok := scalar(nameVal)
	if !ok || name == "" {
		return ModuleSpec{}, fmt.Errorf(`"name" in %s is not a simple value`, where)
	}

	spec := ModuleSpec{Name: name}
	if opts, ok := get(body, "options"); ok {
		var err error
		if spec.Options, err = parseOptions(opts, where); err != nil {
			return spec, err
		}
	}
	return spec, nil
}

func parseOptions(v any, where string) (module.UserOptions, error) {
	out := module.UserOptions{Scalars: map[string]string{}, Arrays: map[string][]string{}}

	body, ok := v.(yaml.MapSlice)
	if !ok {
		return out, fmt.Errorf(`"options" in %s is not a map`, where)
	}
	for _, item := range body {
		key := fmt.Sprint(item.Key)
		if s, ok := scalar(item.Value); ok {
			out.Scalars[key] = s
			continue
		}
		seq, ok := item.Value.([]any)
		if !ok {
			return out, fmt.Errorf("option %q in %s is neither a simple value nor an array", key, where)
		}
		elems := make([]string, 0, len(seq))
		for i, el := range seq {
			s, ok := scalar(el)
			if !ok {
				return out, fmt.Errorf("element with index %d in option %q in %s is not a simple value", i, key, where)
			}
			elems = append(elems, s)
		}
		out.Arrays[key] = elems
	}
	return out, nil
}

func parseEdge(e Entity, name string, v any, entity string) (Edge, error) {
	where := fmt.Sprintf("edge %q in %s", name, entity)

	body, ok := v.(yaml.MapSlice)
	if !ok {
		return Edge{}, fmt.Errorf("%s is not a map", where)
	}
	path, ok := get(body, "path")
	if !ok {
		return Edge{}, fmt.Errorf(`%s does not have "path"`, where)
	}
	seq, ok := path.([]any)
	if !ok {
		return Edge{}, fmt.Errorf(`"path" in %s is not an array`, where)
	}
	if len(seq) != 2 {
		return Edge{}, fmt.Errorf(`"path" in %s does not have exactly 2 elements`, where)
	}

	from, ok1 := scalar(seq[0])
	to, ok2 := scalar(seq[1])
	if !ok1 || !ok2 {
		return Edge{}, fmt.Errorf(`elements of "path" in %s are not simple values`, where)
	}
	for _, n := range []string{from, to} {
		if _, ok := e.Node(n); !ok {
			return Edge{}, fmt.Errorf("node %q does not exist (%s)", n, where)
		}
	}
	return Edge{Name: name, From: from, To: to}, nil
}

func get(m yaml.MapSlice, key string) (any, bool) {
	for _, item := range m {
		if fmt.Sprint(item.Key) == key {
			return item.Value, true
		}
	}
	return nil, false
}

func scalar(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case bool, int, int64, uint64, float64:
		return fmt.Sprint(s), true
	case nil:
		return "", true
	}
	return "", false
}
