package docstore

import (
	"sort"
	"time"
)

// Fixed-width fraction: RFC3339Nano trims trailing zeros, which breaks
// lexicographic ordering when one fraction is a prefix of another.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func (s *Store) timestamp() string {
	return s.now().UTC().Format(timestampLayout)
}

func (s *Store) execSelect(q *Query) ([]Document, error) {
	s.mu.Lock()
	tbl := s.tables[q.table]
	var rows []Document
	for _, doc := range tbl {
		if q.matches(doc) {
			rows = append(rows, clone(doc))
		}
	}
	if len(q.expands) > 0 {
		for _, row := range rows {
			s.resolveExpansionsLocked(row, q.expands)
		}
	}
	s.mu.Unlock()

	if q.ordered {
		field, asc := q.orderBy, q.asc
		sort.SliceStable(rows, func(i, j int) bool {
			less := lessValue(rows[i][field], rows[j][field])
			if asc {
				return less
			}
			return lessValue(rows[j][field], rows[i][field])
		})
	}
	if q.limit > 0 && len(rows) > q.limit {
		rows = rows[:q.limit]
	}
	return rows, nil
}

func (s *Store) execInsert(q *Query, doc Document) (Document, error) {
	record := clone(doc)

	s.mu.Lock()
	tbl := s.tableLocked(q.table)
	if record.ID() == "" {
		record["id"] = s.newID()
	}
	now := s.timestamp()
	if record.IsNull("created_at") {
		record["created_at"] = now
	}
	record["updated_at"] = now
	tbl[record.ID()] = record
	stored := clone(record)
	s.mu.Unlock()

	s.rec.Mutation(q.table, "insert")
	s.bus.publish(Event{Type: EventInsert, Table: q.table, New: clone(stored), Old: clone(stored)})
	return stored, nil
}

func (s *Store) execUpsert(q *Query, doc Document, onConflict string) (Document, error) {
	incoming := clone(doc)

	s.mu.Lock()
	tbl := s.tableLocked(q.table)

	var existing Document
	for _, candidate := range tbl {
		if looseEqual(candidate[onConflict], incoming[onConflict]) {
			existing = candidate
			break
		}
	}

	if existing != nil {
		for k, v := range incoming {
			existing[k] = v
		}
		existing["updated_at"] = s.timestamp()
		stored := clone(existing)
		s.mu.Unlock()

		s.rec.Mutation(q.table, "upsert")
		s.bus.publish(Event{Type: EventUpdate, Table: q.table, New: clone(stored), Old: clone(stored)})
		return stored, nil
	}

	if incoming.ID() == "" {
		incoming["id"] = s.newID()
	}
	now := s.timestamp()
	if incoming.IsNull("created_at") {
		incoming["created_at"] = now
	}
	incoming["updated_at"] = now
	tbl[incoming.ID()] = incoming
	stored := clone(incoming)
	s.mu.Unlock()

	s.rec.Mutation(q.table, "upsert")
	s.bus.publish(Event{Type: EventInsert, Table: q.table, New: clone(stored), Old: clone(stored)})
	return stored, nil
}

func (s *Store) execUpdate(q *Query, partial Document) ([]Document, error) {
	s.mu.Lock()
	tbl := s.tables[q.table]
	var updated []Document
	for _, doc := range tbl {
		if !q.matches(doc) {
			continue
		}
		for k, v := range clone(partial) {
			doc[k] = v
		}
		doc["updated_at"] = s.timestamp()
		updated = append(updated, clone(doc))
	}
	s.mu.Unlock()

	for _, row := range updated {
		s.rec.Mutation(q.table, "update")
		s.bus.publish(Event{Type: EventUpdate, Table: q.table, New: clone(row), Old: clone(row)})
	}
	return updated, nil
}

func (s *Store) execDelete(q *Query) (int, error) {
	s.mu.Lock()
	tbl := s.tables[q.table]
	var removed []Document
	for id, doc := range tbl {
		if q.matches(doc) {
			removed = append(removed, clone(doc))
			delete(tbl, id)
		}
	}
	s.mu.Unlock()

	for _, row := range removed {
		s.rec.Mutation(q.table, "delete")
		s.bus.publish(Event{Type: EventDelete, Table: q.table, New: clone(row), Old: clone(row)})
	}
	return len(removed), nil
}

// resolveExpansionsLocked embeds referenced documents by direct id lookup.
// Unresolved references become nil, never errors.
func (s *Store) resolveExpansionsLocked(row Document, expands []expansion) {
	for _, exp := range expands {
		fk, _ := row[exp.fkField].(string)
		if fk == "" {
			row[exp.as] = nil
			continue
		}
		ref, ok := s.tables[exp.table][fk]
		if !ok {
			row[exp.as] = nil
			continue
		}
		row[exp.as] = clone(ref)
	}
}

// lessValue orders mixed-type field values: numbers numerically, RFC 3339
// timestamps as instants, everything else by string form. Timestamps must be
// parsed because variable-width fractions do not sort lexicographically.
func lessValue(a, b any) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af < bf
		}
	}
	as, bs := stringForm(a), stringForm(b)
	if at, err := time.Parse(time.RFC3339Nano, as); err == nil {
		if bt, err := time.Parse(time.RFC3339Nano, bs); err == nil {
			return at.Before(bt)
		}
	}
	return as < bs
}

func stringForm(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(timestampLayout)
	}
	return ""
}
