// Package factstore provides the durable fact store that judge jobs fold
// observations into. A fact is a bag of named properties; integer properties
// may be multi-valued. The store exposes a small structured query surface
// (conjunctive conditions plus a min/max aggregate over one property) which
// is the slice the iteration engine consumes.
package factstore

import "context"

// Op is a comparison operator usable in a query condition.
type Op int

const (
	// OpEq matches facts whose property equals the operand.
	OpEq Op = iota
	// OpGt matches facts whose integer property is strictly greater than the operand.
	OpGt
)

// Agg selects which end of the matching value range an aggregate query returns.
type Agg int

const (
	// AggMin returns the smallest matching value.
	AggMin Agg = iota
	// AggMax returns the largest matching value.
	AggMax
)

// Operand is one side of a condition: an integer literal, a text literal,
// or a named parameter bound later via Query.Bind.
type Operand struct {
	param  string
	text   string
	num    int64
	isText bool
}

// Int returns an integer literal operand.
func Int(v int64) Operand {
	return Operand{num: v}
}

// Text returns a text literal operand.
func Text(s string) Operand {
	return Operand{text: s, isText: true}
}

// Param returns a named parameter operand. The query cannot execute until
// the parameter is bound to an integer.
func Param(name string) Operand {
	return Operand{param: name}
}

// IsParam reports whether the operand is an unbound parameter, and its name.
func (o Operand) IsParam() (string, bool) {
	return o.param, o.param != ""
}

// Cond is a single condition: property <op> operand.
type Cond struct {
	Property string
	Op       Op
	Value    Operand
}

// Eq builds an equality condition.
func Eq(property string, v Operand) Cond {
	return Cond{Property: property, Op: OpEq, Value: v}
}

// Gt builds a strictly-greater-than condition.
func Gt(property string, v Operand) Cond {
	return Cond{Property: property, Op: OpGt, Value: v}
}

// Property is one stored property of a fact, as returned by Store.Properties.
type Property struct {
	Name   string
	IsText bool
	Text   string
	Int    int64
}

// Store is the interface judge jobs use to persist and query facts.
//
// All methods take a context and return errors from the underlying backend
// unmodified; the store performs no retries of its own.
type Store interface {
	// Insert creates a new empty fact and returns its id.
	Insert(ctx context.Context) (int64, error)

	// InsertWith creates a fact carrying all the given properties in one
	// transaction. On failure no fact is created.
	InsertWith(ctx context.Context, props ...Property) (int64, error)

	// SetInt appends an integer value to a property (multi-valued).
	SetInt(ctx context.Context, factID int64, property string, value int64) error

	// ReplaceInt sets a property to exactly one integer value, discarding
	// any previous values. Other properties on the fact are untouched.
	ReplaceInt(ctx context.Context, factID int64, property string, value int64) error

	// SetText appends a text value to a property.
	SetText(ctx context.Context, factID int64, property string, value string) error

	// GetInt returns the first integer value of a property, or ok=false if
	// the property is absent.
	GetInt(ctx context.Context, factID int64, property string) (int64, bool, error)

	// GetText returns the first text value of a property, or ok=false.
	GetText(ctx context.Context, factID int64, property string) (string, bool, error)

	// Properties returns every property value stored on a fact.
	Properties(ctx context.Context, factID int64) ([]Property, error)

	// First returns the id of the lowest-id fact matching every condition,
	// or ok=false when none matches. Conditions must be fully bound.
	First(ctx context.Context, conds ...Cond) (int64, bool, error)

	// Facts returns the ids of all facts matching every condition, in
	// ascending id order.
	Facts(ctx context.Context, conds ...Cond) ([]int64, error)

	// SelectOne executes a bound aggregate query and returns the single
	// aggregated value of q.Pick, or ok=false when nothing matches.
	SelectOne(ctx context.Context, q Query) (int64, bool, error)

	// SelectAll executes a bound query and returns every matching value of
	// q.Pick, unordered and possibly with duplicates.
	SelectAll(ctx context.Context, q Query) ([]int64, error)

	// Count returns the total number of facts.
	Count(ctx context.Context) (int, error)

	// Close releases the backend.
	Close() error
}
