// Package graphfile reads association graphs declared in YAML.
//
// A file lists vertices in load order. Each edge names its owner entity and
// a kind (has_many, has_one or belongs_to); keys and relationship names that
// are left out follow the usual conventions:
//
//	has_many / has_one: owner.id = target.<owner>_id
//	belongs_to:         owner.<target>_id = target.id
//
// A through edge names the intermediate entity as its owner and describes
// the hop from the real owner to the intermediate entity in "through".
package graphfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"fastpreload/internal/graph"
	"fastpreload/internal/naming"
)

// Edge kinds.
const (
	KindHasMany   = "has_many"
	KindHasOne    = "has_one"
	KindBelongsTo = "belongs_to"
)

// File is the YAML document.
type File struct {
	Naming   naming.Config `yaml:"naming"`
	Root     RootSpec      `yaml:"root"`
	Vertices []VertexSpec  `yaml:"vertices"`
}

// RootSpec names the entity whose records seed a pass.
type RootSpec struct {
	Entity  string   `yaml:"entity"`
	Table   string   `yaml:"table"`
	Columns []string `yaml:"columns"`
}

// VertexSpec declares one vertex.
type VertexSpec struct {
	Entity  string     `yaml:"entity"`
	Table   string     `yaml:"table"`
	Columns []string   `yaml:"columns"`
	Edges   []EdgeSpec `yaml:"edges"`
}

// EdgeSpec declares one edge into the enclosing vertex.
type EdgeSpec struct {
	Name          string     `yaml:"name"`
	Kind          string     `yaml:"kind"`
	Owner         string     `yaml:"owner"`
	JoinKey       string     `yaml:"join_key"`
	PrimaryKey    string     `yaml:"primary_key"`
	Scope         *ScopeSpec `yaml:"scope"`
	Disambiguator string     `yaml:"disambiguator"`
	Skip          bool       `yaml:"skip"`
	Through       *EdgeSpec  `yaml:"through"`
}

// ScopeSpec declares an edge scope.
type ScopeSpec struct {
	Where   map[string]any `yaml:"where"`
	Expr    string         `yaml:"expr"`
	Args    []any          `yaml:"args"`
	OrderBy []string       `yaml:"order_by"`
}

// Definition is a loaded graph plus its root description.
type Definition struct {
	Graph *graph.Graph
	Root  RootSpec
}

// RootEntity returns the root entity as a graph entity type.
func (d *Definition) RootEntity() graph.EntityType {
	return graph.EntityType(d.Root.Entity)
}

// Load reads and builds the graph file at path.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read graph file: %w", err)
	}
	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("graph file %s: %w", path, err)
	}
	return def, nil
}

// Parse decodes YAML strictly and builds the graph.
func Parse(data []byte) (*Definition, error) {
	var file File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("graph file is empty")
		}
		return nil, fmt.Errorf("decode: %w", err)
	}
	return file.Build()
}

// Build applies naming defaults and validates the graph.
func (f *File) Build() (*Definition, error) {
	namer := naming.New(f.Naming)

	vertices := make([]*graph.Vertex, 0, len(f.Vertices))
	for i, vs := range f.Vertices {
		entity := strings.TrimSpace(vs.Entity)
		if entity == "" {
			return nil, fmt.Errorf("vertices[%d]: entity is required", i)
		}
		edges := make([]*graph.Edge, 0, len(vs.Edges))
		for j, es := range vs.Edges {
			e, err := buildEdge(namer, entity, es)
			if err != nil {
				return nil, fmt.Errorf("vertices[%d] (%s) edges[%d]: %w", i, entity, j, err)
			}
			edges = append(edges, e)
		}
		table := vs.Table
		if table == "" {
			table = namer.TableName(entity)
		}
		vertices = append(vertices, graph.NewVertex(graph.EntityType(entity), table, vs.Columns, edges...))
	}

	g, err := graph.New(vertices...)
	if err != nil {
		return nil, err
	}

	root := f.Root
	if root.Entity == "" {
		root.Entity = string(defaultRoot(vertices))
	}
	if root.Entity != "" && root.Table == "" {
		root.Table = namer.TableName(root.Entity)
	}
	return &Definition{Graph: g, Root: root}, nil
}

// defaultRoot is the owner of the first edge in the file.
func defaultRoot(vertices []*graph.Vertex) graph.EntityType {
	for _, v := range vertices {
		for e := range v.Edges() {
			return e.OwnerEntity()
		}
	}
	return ""
}

func buildEdge(namer *naming.Namer, target string, es EdgeSpec) (*graph.Edge, error) {
	owner := strings.TrimSpace(es.Owner)
	if owner == "" {
		return nil, errors.New("owner is required")
	}
	kind := es.Kind
	if kind == "" {
		kind = KindHasMany
	}

	e := &graph.Edge{
		Name:          es.Name,
		JoinEntity:    graph.EntityType(owner),
		JoinKey:       es.JoinKey,
		PrimaryKey:    es.PrimaryKey,
		Disambiguator: es.Disambiguator,
		SkipLoading:   es.Skip,
	}

	switch kind {
	case KindHasMany, KindHasOne:
		e.Collection = kind == KindHasMany
		if e.JoinKey == "" {
			e.JoinKey = "id"
		}
		if e.PrimaryKey == "" {
			e.PrimaryKey = namer.ForeignKey(owner)
		}
		if e.Name == "" {
			e.Name = namer.RelationName(target, e.Collection)
		}
	case KindBelongsTo:
		if e.JoinKey == "" {
			e.JoinKey = namer.ForeignKey(target)
		}
		if e.PrimaryKey == "" {
			e.PrimaryKey = "id"
		}
		if e.Name == "" {
			e.Name = namer.BelongsToName(e.JoinKey)
		}
	default:
		return nil, fmt.Errorf("unknown kind %q (want %s, %s or %s)", kind, KindHasMany, KindHasOne, KindBelongsTo)
	}

	if es.Scope != nil {
		scope, err := buildScope(*es.Scope)
		if err != nil {
			return nil, err
		}
		e.Scope = scope
	}
	// A scoped edge gets its own group unless it names one, so it never
	// collides with an unscoped edge on the same key.
	if e.Disambiguator == "" && !e.Scope.IsZero() {
		e.Disambiguator = e.Name
	}

	if es.Through != nil {
		hop, err := buildEdge(namer, owner, *es.Through)
		if err != nil {
			return nil, fmt.Errorf("through: %w", err)
		}
		e.Through = hop
	}
	return e, nil
}

func buildScope(ss ScopeSpec) (graph.Scope, error) {
	scope := graph.Scope{
		Where: ss.Where,
		Expr:  ss.Expr,
		Args:  ss.Args,
	}
	for _, term := range ss.OrderBy {
		o, err := graph.ParseOrder(term)
		if err != nil {
			return graph.Scope{}, fmt.Errorf("scope: %w", err)
		}
		scope.OrderBy = append(scope.OrderBy, o)
	}
	return scope, nil
}
