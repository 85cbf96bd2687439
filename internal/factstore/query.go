package factstore

import "fmt"

// Query is a parametrized query over the fact store: a conjunction of
// conditions, the property whose value is selected, and which end of the
// matching range an aggregate execution returns.
//
// Conditions may reference named parameters (see Param). A query with
// unbound parameters is a template; Bind produces an executable copy.
// Modeling parameters explicitly instead of splicing values into a string
// keeps injection impossible and makes templates comparable in tests.
type Query struct {
	Conds []Cond
	Pick  string
	Agg   Agg
}

// Params returns the names of every parameter referenced by the query,
// in condition order, without duplicates.
func (q Query) Params() []string {
	var names []string
	seen := map[string]bool{}
	for _, c := range q.Conds {
		if name, ok := c.Value.IsParam(); ok && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// Bind substitutes every parameter reference with its value from params.
// It fails if a referenced parameter is missing, so a half-bound query can
// never reach the backend.
func (q Query) Bind(params map[string]int64) (Query, error) {
	bound := Query{Pick: q.Pick, Agg: q.Agg, Conds: make([]Cond, len(q.Conds))}
	for i, c := range q.Conds {
		if name, ok := c.Value.IsParam(); ok {
			v, present := params[name]
			if !present {
				return Query{}, fmt.Errorf("query parameter $%s is not bound", name)
			}
			c.Value = Int(v)
		}
		bound.Conds[i] = c
	}
	return bound, nil
}

// Validate reports whether the query is well-formed as a template: it must
// select a property and have at least one condition.
func (q Query) Validate() error {
	if q.Pick == "" {
		return fmt.Errorf("query selects no property")
	}
	if len(q.Conds) == 0 {
		return fmt.Errorf("query has no conditions")
	}
	return nil
}
