package defra

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// IDPattern matches DefraDB document IDs (bae-<uuid>) and simple identifiers.
// IDs are validated before interpolation to prevent GraphQL injection.
var IDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateID checks if a string is safe to use as a document ID in GraphQL queries.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("empty ID")
	}
	if len(id) > 500 {
		return fmt.Errorf("ID too long: %d characters", len(id))
	}
	if !IDPattern.MatchString(id) {
		return fmt.Errorf("invalid ID format: contains unsafe characters")
	}
	return nil
}

// QueryBuilder constructs read queries with values passed as GraphQL
// variables. Several operators on the same field are merged into one
// operator object (page_number: {_gte: $v0, _lte: $v1}).
type QueryBuilder struct {
	collection string
	filters    map[string][]filterDef
	fieldOrder []string
	fields     []string
	order      string
	limit      int
	varIndex   int
}

type filterDef struct {
	op      string
	varName string
	varType string
	value   any
}

// NewQuery creates a new QueryBuilder for the given collection.
func NewQuery(collection string) *QueryBuilder {
	return &QueryBuilder{
		collection: collection,
		filters:    make(map[string][]filterDef),
		fields:     []string{"_docID"},
	}
}

func (q *QueryBuilder) add(field, op, varType string, value any) *QueryBuilder {
	if _, ok := q.filters[field]; !ok {
		q.fieldOrder = append(q.fieldOrder, field)
	}
	q.filters[field] = append(q.filters[field], filterDef{
		op:      op,
		varName: fmt.Sprintf("v%d", q.varIndex),
		varType: varType,
		value:   value,
	})
	q.varIndex++
	return q
}

// Filter adds an equality filter.
func (q *QueryBuilder) Filter(field string, value any) *QueryBuilder {
	return q.add(field, "_eq", inferGraphQLType(value), value)
}

// FilterIn matches any of the values.
func (q *QueryBuilder) FilterIn(field string, values []string) *QueryBuilder {
	return q.add(field, "_in", "[String!]", values)
}

// FilterGTE adds a greater-than-or-equal filter.
func (q *QueryBuilder) FilterGTE(field string, value any) *QueryBuilder {
	return q.add(field, "_geq", inferGraphQLType(value), value)
}

// FilterLTE adds a less-than-or-equal filter.
func (q *QueryBuilder) FilterLTE(field string, value any) *QueryBuilder {
	return q.add(field, "_leq", inferGraphQLType(value), value)
}

// Fields sets the fields to return (replaces the default of just _docID).
func (q *QueryBuilder) Fields(fields ...string) *QueryBuilder {
	q.fields = fields
	return q
}

// OrderBy sets the ordering; direction is ASC or DESC.
func (q *QueryBuilder) OrderBy(field, direction string) *QueryBuilder {
	q.order = fmt.Sprintf("{%s: %s}", field, direction)
	return q
}

// Limit sets the maximum number of results.
func (q *QueryBuilder) Limit(n int) *QueryBuilder {
	q.limit = n
	return q
}

// Build returns the query string and variables map.
func (q *QueryBuilder) Build() (string, map[string]any) {
	var varDefs []string
	vars := make(map[string]any)
	var filterParts []string

	for _, field := range q.fieldOrder {
		defs := q.filters[field]
		ops := make([]string, 0, len(defs))
		for _, f := range defs {
			varDefs = append(varDefs, fmt.Sprintf("$%s: %s", f.varName, f.varType))
			vars[f.varName] = f.value
			ops = append(ops, fmt.Sprintf("%s: $%s", f.op, f.varName))
		}
		sort.Strings(ops)
		filterParts = append(filterParts, fmt.Sprintf("%s: {%s}", field, strings.Join(ops, ", ")))
	}

	var b strings.Builder
	if len(varDefs) > 0 {
		fmt.Fprintf(&b, "query(%s) ", strings.Join(varDefs, ", "))
	}
	b.WriteString("{ ")
	b.WriteString(q.collection)

	var args []string
	if len(filterParts) > 0 {
		args = append(args, fmt.Sprintf("filter: {%s}", strings.Join(filterParts, ", ")))
	}
	if q.order != "" {
		args = append(args, "order: "+q.order)
	}
	if q.limit > 0 {
		args = append(args, fmt.Sprintf("limit: %d", q.limit))
	}
	if len(args) > 0 {
		fmt.Fprintf(&b, "(%s)", strings.Join(args, ", "))
	}

	b.WriteString(" { ")
	b.WriteString(strings.Join(q.fields, " "))
	b.WriteString(" } }")

	return b.String(), vars
}

// Execute builds the query, runs it and returns the documents.
func (q *QueryBuilder) Execute(ctx context.Context, client *Client) ([]map[string]any, error) {
	query, vars := q.Build()
	resp, err := client.Query(ctx, query, vars)
	if err != nil {
		return nil, err
	}
	return resp.Docs(q.collection), nil
}

// inferGraphQLType infers the GraphQL type from a Go value.
func inferGraphQLType(v any) string {
	switch v.(type) {
	case string:
		return "String"
	case int, int32, int64:
		return "Int"
	case float32, float64:
		return "Float"
	case bool:
		return "Boolean"
	default:
		return "String"
	}
}
