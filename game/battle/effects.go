package battle

// MaxEffects is the capacity of an effect list.
const MaxEffects = 10

// StatDelta is the stat change an entry made when it was applied. Undo
// subtracts exactly what Apply added.
type StatDelta struct {
	Stat   Stat    `json:"stat"`
	Amount float64 `json:"amount"`
}

// Apply adds the delta to s.
func (d StatDelta) Apply(s *Stats) {
	if f := s.Field(d.Stat); f != nil {
		*f += d.Amount
	}
}

// Undo removes the delta from s.
func (d StatDelta) Undo(s *Stats) {
	if f := s.Field(d.Stat); f != nil {
		*f -= d.Amount
	}
}

// EffectEntry is one active effect with its remaining duration in turns.
// For SkillNull the duration counts remaining charges.
type EffectEntry struct {
	Effect   Effect    `json:"effect"`
	Duration int       `json:"duration"`
	Delta    StatDelta `json:"delta"`
}

// Effects is an ordered, bounded list of active effects. The zero value is
// an empty list.
type Effects struct {
	entries []EffectEntry
}

// Len returns the number of entries.
func (e *Effects) Len() int { return len(e.entries) }

// Entries returns a copy of the entries in list order.
func (e *Effects) Entries() []EffectEntry {
	return append([]EffectEntry(nil), e.entries...)
}

// Has reports whether any entry has kind id.
func (e *Effects) Has(id EffectID) bool {
	return e.index(id) >= 0
}

// Count returns the number of entries of kind id.
func (e *Effects) Count(id EffectID) int {
	n := 0
	for _, en := range e.entries {
		if en.Effect.ID == id {
			n++
		}
	}
	return n
}

func (e *Effects) index(id EffectID) int {
	for i, en := range e.entries {
		if en.Effect.ID == id {
			return i
		}
	}
	return -1
}

// Apply inserts entry. A non-stacking effect first looks for an entry its
// priority rule overwrites; the replacement keeps the longer duration and
// the displaced entry is returned so its delta can be undone. A rejected
// effect, or one that finds the list full, leaves the list untouched.
func (e *Effects) Apply(entry EffectEntry) (ok bool, displaced *EffectEntry) {
	if !entry.Effect.ID.CanStack() {
		for i := range e.entries {
			switch ComparePriority(entry.Effect.ID, e.entries[i].Effect.ID) {
			case PriorityOverwrite:
				old := e.entries[i]
				if old.Duration > entry.Duration {
					entry.Duration = old.Duration
				}
				e.entries[i] = entry
				return true, &old
			case PriorityReject:
				return false, nil
			}
		}
	}
	if len(e.entries) >= MaxEffects {
		return false, nil
	}
	e.entries = append(e.entries, entry)
	return true, nil
}

// Consume subtracts fn(entry) turns from every entry and removes those whose
// duration drops below 1. Removed entries are returned in list order.
func (e *Effects) Consume(fn func(entry *EffectEntry) int) []EffectEntry {
	var removed []EffectEntry
	kept := e.entries[:0]
	for i := range e.entries {
		en := e.entries[i]
		en.Duration -= fn(&en)
		if en.Duration < 1 {
			removed = append(removed, en)
			continue
		}
		kept = append(kept, en)
	}
	clear(e.entries[len(kept):])
	e.entries = kept
	return removed
}

// Dispel removes up to count dispellable entries in list order.
func (e *Effects) Dispel(count int) []EffectEntry {
	return e.DispelMatching(count, nil)
}

// DispelMatching is Dispel restricted to kinds accepted by match. A nil
// match accepts every dispellable kind.
func (e *Effects) DispelMatching(count int, match func(EffectID) bool) []EffectEntry {
	var removed []EffectEntry
	kept := e.entries[:0]
	for _, en := range e.entries {
		if len(removed) < count && en.Effect.ID.Dispellable() && (match == nil || match(en.Effect.ID)) {
			removed = append(removed, en)
			continue
		}
		kept = append(kept, en)
	}
	clear(e.entries[len(kept):])
	e.entries = kept
	return removed
}

// Clone returns an independent copy.
func (e Effects) Clone() Effects {
	if e.entries == nil {
		return Effects{}
	}
	return Effects{entries: append(make([]EffectEntry, 0, len(e.entries)), e.entries...)}
}
