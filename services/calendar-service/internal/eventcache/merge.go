package eventcache

import "log"

// Dedupe drops repeated ids from one batch. The first occurrence wins.
func Dedupe(batch []*CalendarEvent) []*CalendarEvent {
	seen := make(map[string]struct{}, len(batch))
	out := make([]*CalendarEvent, 0, len(batch))
	for _, ev := range batch {
		if ev == nil {
			continue
		}
		if _, dup := seen[ev.ID]; dup {
			log.Printf("[eventcache] dropping duplicate id=%s in incoming batch", ev.ID)
			continue
		}
		seen[ev.ID] = struct{}{}
		out = append(out, ev)
	}
	return out
}

// Merge appends incoming events whose ids are not in existing. Existing
// entries win, so an optimistic local change survives a stale fetch. Neither
// argument is modified.
func Merge(existing, incoming []*CalendarEvent) []*CalendarEvent {
	have := make(map[string]struct{}, len(existing))
	for _, ev := range existing {
		have[ev.ID] = struct{}{}
	}
	out := make([]*CalendarEvent, len(existing), len(existing)+len(incoming))
	copy(out, existing)
	for _, ev := range Dedupe(incoming) {
		if _, ok := have[ev.ID]; ok {
			continue
		}
		out = append(out, ev)
	}
	return out
}
