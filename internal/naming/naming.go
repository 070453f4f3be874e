package naming

import (
	"strings"
)

// Namer turns entity names into the default names used when a graph file
// leaves them out.
type Namer struct {
	config Config
}

// New creates a Namer with the given configuration
func New(cfg Config) *Namer {
	if cfg.PluralOverrides == nil {
		cfg.PluralOverrides = map[string]string{}
	}
	if cfg.SingularOverrides == nil {
		cfg.SingularOverrides = map[string]string{}
	}
	return &Namer{config: cfg}
}

// Default returns a Namer with default configuration
func Default() *Namer {
	return New(DefaultConfig())
}

// TableName returns the conventional table for an entity.
// Example: "OrderItem" -> "order_items", "person" -> "people"
func (n *Namer) TableName(entity string) string {
	return n.Pluralize(ToSnakeCase(entity))
}

// RelationName returns the default relationship name for an edge into
// entity: plural for collections, singular otherwise.
// Example: ("Comment", true) -> "comments", ("Author", false) -> "author"
func (n *Namer) RelationName(entity string, collection bool) string {
	base := n.Singularize(ToSnakeCase(entity))
	if collection {
		return n.Pluralize(base)
	}
	return base
}

// ForeignKey returns the conventional foreign key column referencing entity.
// Example: "BlogPost" -> "blog_post_id", "people" -> "person_id"
func (n *Namer) ForeignKey(entity string) string {
	return n.Singularize(ToSnakeCase(entity)) + "_id"
}

// BelongsToName derives a relationship name from a foreign key column.
// Example: "author_id" -> "author", "created_by_user_fk" -> "created_by_user"
func (n *Namer) BelongsToName(fkColumn string) string {
	name := fkColumn
	for _, suffix := range []string{"_id", "_fk"} {
		if strings.HasSuffix(strings.ToLower(name), suffix) && len(name) > len(suffix) {
			name = name[:len(name)-len(suffix)]
			break
		}
	}
	return ToSnakeCase(name)
}

// ToSnakeCase converts PascalCase or camelCase to snake_case. Names that
// are already snake_case are lowercased.
// Example: "OrderItem" -> "order_item", "HTTPRequest" -> "http_request"
func ToSnakeCase(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		upper := r >= 'A' && r <= 'Z'
		if upper && i > 0 && runes[i-1] != '_' {
			prevLower := runes[i-1] >= 'a' && runes[i-1] <= 'z' || runes[i-1] >= '0' && runes[i-1] <= '9'
			nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
			prevUpper := runes[i-1] >= 'A' && runes[i-1] <= 'Z'
			if prevLower || (prevUpper && nextLower) {
				b.WriteByte('_')
			}
		}
		if upper {
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
