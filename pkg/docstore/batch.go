package docstore

import "context"

// BatchStep is one single-row update inside a BatchUpdate. Match holds
// equality predicates; Set is merged into the matched row.
type BatchStep struct {
	Table string
	Match Document
	Set   Document
}

// BatchUpdate applies every step under one lock acquisition, all or nothing:
// each step must match exactly one row or the whole batch is abandoned with
// ErrNoMatch and no row is touched. Callers use it when two tables must
// change together, such as flipping a flag alongside the row that justifies
// it. Events for all steps publish after the lock is released.
func (s *Store) BatchUpdate(ctx context.Context, steps ...BatchStep) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	targets := make([]Document, 0, len(steps))
	for _, step := range steps {
		var found Document
		for _, doc := range s.tables[step.Table] {
			if matchesAll(doc, step.Match) {
				if found != nil {
					s.mu.Unlock()
					return nil, ErrNoMatch
				}
				found = doc
			}
		}
		if found == nil {
			s.mu.Unlock()
			return nil, ErrNoMatch
		}
		targets = append(targets, found)
	}

	now := s.timestamp()
	results := make([]Document, 0, len(steps))
	for i, step := range steps {
		for k, v := range clone(step.Set) {
			targets[i][k] = v
		}
		targets[i]["updated_at"] = now
		results = append(results, clone(targets[i]))
	}
	s.mu.Unlock()

	for i, step := range steps {
		s.rec.Mutation(step.Table, "update")
		s.bus.publish(Event{Type: EventUpdate, Table: step.Table, New: clone(results[i]), Old: clone(results[i])})
	}
	return results, nil
}

func matchesAll(doc Document, match Document) bool {
	for field, want := range match {
		if want == nil {
			if !doc.IsNull(field) {
				return false
			}
			continue
		}
		if !looseEqual(doc[field], want) {
			return false
		}
	}
	return true
}
