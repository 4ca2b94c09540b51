package odata

import (
	"net/url"
	"strings"
)

// Param is one system query option, e.g. {"$select", "id,name"}. Order is kept
// as given so generated URLs are stable.
type Param struct {
	Key   string
	Value string
}

// Resource joins an entity path and query options into a relative URL. Values
// are percent-encoded with %20 for spaces; keys are written as-is so "$filter"
// stays readable in logs.
func Resource(path string, params ...Param) string {
	if len(params) == 0 {
		return path
	}
	var b strings.Builder
	b.WriteString(path)
	for i, p := range params {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(p.Key)
		b.WriteByte('=')
		b.WriteString(escapeValue(p.Value))
	}
	return b.String()
}

// Literal renders s as an OData string literal: wrapped in single quotes with
// embedded quotes doubled.
func Literal(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Key renders an entity-by-key path such as User('ABC'). Quotes stay literal;
// anything else unsafe in a path segment is percent-encoded.
func Key(entity, id string) string {
	return entity + "(" + strings.ReplaceAll(url.PathEscape(Literal(id)), "%27", "'") + ")"
}

func escapeValue(v string) string {
	return strings.ReplaceAll(url.QueryEscape(v), "+", "%20")
}
