package docstore

import (
	"context"
	"fmt"
	"strings"
)

// Query accumulates predicates and modifiers, then executes exactly one
// tagged command. The command kind is decided by the terminal method called,
// never inferred from call order.
type Query struct {
	store   *Store
	table   string
	filters []filter
	orderBy string
	asc     bool
	ordered bool
	limit   int
	expands []expansion
}

type filter struct {
	describe string
	match    func(Document) bool
}

type expansion struct {
	as      string
	table   string
	fkField string
}

// Eq keeps rows whose field equals value.
func (q *Query) Eq(field string, value any) *Query {
	q.filters = append(q.filters, filter{
		describe: fmt.Sprintf("%s=eq.%v", field, value),
		match:    func(doc Document) bool { return looseEqual(doc[field], value) },
	})
	return q
}

// Neq keeps rows whose field does not equal value.
func (q *Query) Neq(field string, value any) *Query {
	q.filters = append(q.filters, filter{
		describe: fmt.Sprintf("%s=neq.%v", field, value),
		match:    func(doc Document) bool { return !looseEqual(doc[field], value) },
	})
	return q
}

// IsNull keeps rows whose field is absent or null.
func (q *Query) IsNull(field string) *Query {
	q.filters = append(q.filters, filter{
		describe: field + "=is.null",
		match:    func(doc Document) bool { return doc.IsNull(field) },
	})
	return q
}

// In keeps rows whose field equals any of the provided values.
func (q *Query) In(field string, values ...any) *Query {
	q.filters = append(q.filters, filter{
		describe: fmt.Sprintf("%s=in.%v", field, values),
		match: func(doc Document) bool {
			for _, v := range values {
				if looseEqual(doc[field], v) {
					return true
				}
			}
			return false
		},
	})
	return q
}

// Or keeps rows matching any clause of a "field.eq.value,field.eq.value"
// disjunction string, the wire format the hosted backend uses.
func (q *Query) Or(disjunction string) *Query {
	clauses := strings.Split(disjunction, ",")
	q.filters = append(q.filters, filter{
		describe: "or=(" + disjunction + ")",
		match: func(doc Document) bool {
			for _, clause := range clauses {
				parts := strings.SplitN(clause, ".eq.", 2)
				if len(parts) != 2 {
					continue
				}
				if fmt.Sprintf("%v", doc[parts[0]]) == parts[1] {
					return true
				}
			}
			return false
		},
	})
	return q
}

// OrderBy sorts results on the named field.
func (q *Query) OrderBy(field string, ascending bool) *Query {
	q.orderBy = field
	q.asc = ascending
	q.ordered = true
	return q
}

// Limit caps the number of returned rows.
func (q *Query) Limit(n int) *Query {
	q.limit = n
	return q
}

// Expand embeds the document from table referenced by fkField under the key
// as. Resolution is a direct id lookup; an unresolved reference yields nil
// rather than an error.
func (q *Query) Expand(as, table, fkField string) *Query {
	q.expands = append(q.expands, expansion{as: as, table: table, fkField: fkField})
	return q
}

// All executes a select and returns every matching row.
func (q *Query) All(ctx context.Context) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return q.store.execSelect(q)
}

// One executes a single-row select. Zero matches return ErrNotFound.
func (q *Query) One(ctx context.Context) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := q.store.execSelect(q)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

// Insert stores a new row, minting an id and stamping created_at/updated_at
// when absent, and returns the stored copy.
func (q *Query) Insert(ctx context.Context, doc Document) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return q.store.execInsert(q, doc)
}

// Upsert inserts or merges by the conflict key (default "id"). At most one
// row ever exists per conflict-key value.
func (q *Query) Upsert(ctx context.Context, doc Document, onConflict string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if onConflict == "" {
		onConflict = "id"
	}
	return q.store.execUpsert(q, doc, onConflict)
}

// Update merges the partial document into every row matching the predicate
// chain and returns the updated rows. A zero-length result means no
// precondition held; callers decide whether that is a conflict.
func (q *Query) Update(ctx context.Context, partial Document) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return q.store.execUpdate(q, partial)
}

// UpdateOne is the conditional-update form used for guarded transitions: it
// expects the predicate chain to pin exactly one row. Zero matches return
// ErrNoMatch, meaning the compare-and-set failed.
func (q *Query) UpdateOne(ctx context.Context, partial Document) (Document, error) {
	rows, err := q.Update(ctx, partial)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNoMatch
	}
	if len(rows) > 1 {
		return nil, fmt.Errorf("docstore: update matched %d rows, expected one", len(rows))
	}
	return rows[0], nil
}

// Delete removes every row matching the predicate chain and returns the
// number removed.
func (q *Query) Delete(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return q.store.execDelete(q)
}

func (q *Query) matches(doc Document) bool {
	for _, f := range q.filters {
		if !f.match(doc) {
			return false
		}
	}
	return true
}

// looseEqual compares scalar values with numeric normalization, matching the
// loosely-typed comparisons of the document protocol.
func looseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
		return false
	}
	if as, ok := a.(fmt.Stringer); ok {
		a = as.String()
	}
	if bs, ok := b.(fmt.Stringer); ok {
		b = bs.String()
	}
	return a == b
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
