package battle

// HeroID indexes Snapshot.Heroes.
type HeroID int

// Team groups heroes fighting on the same side.
type Team int

// Hero is one combatant.
type Hero struct {
	Name      string
	Team      Team
	Stats     Stats
	Alive     bool
	Readiness float64
	Effects   Effects
	// Skills are shared between clones and never mutated.
	Skills []*Skill
}

// ApplyEffect applies e for duration turns. Stat-modifying kinds store a
// delta computed from base, the hero's pristine stats, so removal restores
// the stat exactly. Immunity blocks debuffs and CannotBuff blocks buffs.
func (h *Hero) ApplyEffect(base *Stats, e Effect, duration int) bool {
	if e.ID.IsDebuff() && h.Effects.Has(Immunity) {
		return false
	}
	if e.ID.IsBuff() && h.Effects.Has(CannotBuff) {
		return false
	}

	entry := EffectEntry{Effect: e, Duration: duration}
	if m, ok := e.ID.Modifier(); ok && base != nil {
		entry.Delta = StatDelta{Stat: m.Stat, Amount: base.Get(m.Stat) * m.Rate}
	}

	ok, displaced := h.Effects.Apply(entry)
	if displaced != nil {
		displaced.Delta.Undo(&h.Stats)
	}
	if ok {
		entry.Delta.Apply(&h.Stats)
	}
	return ok
}

// ConsumeEffects runs Effects.Consume and undoes the deltas of removed
// entries.
func (h *Hero) ConsumeEffects(fn func(entry *EffectEntry) int) []EffectEntry {
	removed := h.Effects.Consume(fn)
	h.undo(removed)
	return removed
}

// DispelEffects removes up to count dispellable entries accepted by match.
func (h *Hero) DispelEffects(count int, match func(EffectID) bool) []EffectEntry {
	removed := h.Effects.DispelMatching(count, match)
	h.undo(removed)
	return removed
}

func (h *Hero) undo(entries []EffectEntry) {
	for _, en := range entries {
		en.Delta.Undo(&h.Stats)
	}
}

func (h Hero) clone() Hero {
	h.Effects = h.Effects.Clone()
	return h
}
