package naming

import (
	"strings"

	"github.com/jinzhu/inflection"
)

// Pluralize converts a singular word to its plural form. For snake_case
// names only the last token is inflected. Custom overrides win over the
// inflection library.
func (n *Namer) Pluralize(word string) string {
	if override, ok := n.config.PluralOverrides[word]; ok {
		return override
	}
	head, last := splitLast(word)
	if override, ok := n.config.PluralOverrides[last]; ok {
		return head + override
	}
	return head + inflection.Plural(last)
}

// Singularize converts a plural word to its singular form. For snake_case
// names only the last token is inflected. Custom overrides win over the
// inflection library.
func (n *Namer) Singularize(word string) string {
	if override, ok := n.config.SingularOverrides[word]; ok {
		return override
	}
	head, last := splitLast(word)
	if override, ok := n.config.SingularOverrides[last]; ok {
		return head + override
	}
	return head + inflection.Singular(last)
}

// splitLast splits "order_line_items" into "order_line_" and "items".
func splitLast(word string) (string, string) {
	i := strings.LastIndex(word, "_")
	if i < 0 || i == len(word)-1 {
		return "", word
	}
	return word[:i+1], word[i+1:]
}
