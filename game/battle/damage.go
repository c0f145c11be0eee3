package battle

import (
	"github.com/kasuganosora/battlesim/plugin/hook"
)

// DamageInstance is an unmitigated hit: raw damage and the fraction of the
// target's defence it ignores.
type DamageInstance struct {
	Raw    float64
	DefPen float64
}

// SourceKind tells hero damage from effect damage.
type SourceKind uint8

const (
	SourceEffect SourceKind = iota
	SourceHero
)

// DamageSource is the origin of damage.
type DamageSource struct {
	Kind SourceKind
	Hero HeroID
}

// FromHero is damage dealt by hero id.
func FromHero(id HeroID) DamageSource { return DamageSource{Kind: SourceHero, Hero: id} }

// FromEffect is damage dealt by a damage-over-time effect.
var FromEffect = DamageSource{Kind: SourceEffect, Hero: -1}

// DamagePolicy converts a hit into HP loss. attacker is nil for effect
// damage. Implementations are shared across workers.
type DamagePolicy interface {
	DamageTaken(attacker, target *Stats, dmg DamageInstance) float64
}

// NoDamage is the placeholder policy: every hit deals 0.
type NoDamage struct{}

func (NoDamage) DamageTaken(*Stats, *Stats, DamageInstance) float64 { return 0 }

// RawDamage ignores defence and deals the raw amount.
type RawDamage struct{}

func (RawDamage) DamageTaken(_ *Stats, _ *Stats, dmg DamageInstance) float64 { return dmg.Raw }

// PolicyFunc adapts a function to DamagePolicy.
type PolicyFunc func(attacker, target *Stats, dmg DamageInstance) float64

func (f PolicyFunc) DamageTaken(attacker, target *Stats, dmg DamageInstance) float64 {
	return f(attacker, target, dmg)
}

// damageTaken evaluates the policy, never returning a negative amount.
func (ss *Snapshot) damageTaken(src DamageSource, target HeroID, dmg DamageInstance) float64 {
	var attacker *Stats
	if src.Kind == SourceHero {
		attacker = &ss.Heroes[src.Hero].Stats
	}
	v := ss.Rules.damage().DamageTaken(attacker, &ss.Heroes[target].Stats, dmg)
	if v < 0 || v != v {
		return 0
	}
	return v
}

// DealDamage applies dmg to target. Invincible blocks all damage; a hero
// source spends one SkillNull charge, if the target holds one, and is
// blocked by it. Returns false when blocked or the target is already dead.
func (ss *Snapshot) DealDamage(src DamageSource, target HeroID, dmg DamageInstance) bool {
	h := ss.Hero(target)
	if !h.Alive || h.Effects.Has(Invincible) {
		return false
	}
	if src.Kind == SourceHero && ss.spendSkillNull(target) {
		return false
	}
	ss.loseHP(src, target, ss.damageTaken(src, target, dmg))
	return true
}

// spendSkillNull consumes one charge of the first SkillNull entry.
func (ss *Snapshot) spendSkillNull(target HeroID) bool {
	h := ss.Hero(target)
	if !h.Effects.Has(SkillNull) {
		return false
	}
	spent := false
	removed := h.ConsumeEffects(func(en *EffectEntry) int {
		if !spent && en.Effect.ID == SkillNull {
			spent = true
			return 1
		}
		return 0
	})
	ss.expired(target, removed)
	return true
}

func (ss *Snapshot) loseHP(src DamageSource, target HeroID, amount float64) {
	h := ss.Hero(target)
	h.Stats.HP -= amount
	ss.trigger(hook.AfterDamage, &Event{Hero: target, Source: src, Amount: amount})
	if h.Stats.HP < 0 {
		h.Stats.HP = 0
		h.Alive = false
		ss.trigger(hook.OnHeroDeath, &Event{Hero: target, Source: src})
	}
}

// Heal restores amount HP to target, up to its max. Unhealable blocks it.
func (ss *Snapshot) Heal(target HeroID, amount float64) bool {
	h := ss.Hero(target)
	if !h.Alive || h.Effects.Has(Unhealable) {
		return false
	}
	h.Stats.HP += amount
	if h.Stats.HP > h.Stats.MaxHP {
		h.Stats.HP = h.Stats.MaxHP
	}
	ss.trigger(hook.AfterHeal, &Event{Hero: target, Amount: amount})
	return true
}

// Damage-over-time constants.
const (
	dotDefPen       = 0.7
	poisonRate      = 0.05
	poisonDefPen    = 1.0
	healingTickRate = 0.15
)

// TurnStart ticks the hero's damage and healing effects. Each entry spends
// one turn; the mitigated damage and the healing are netted and applied
// once. Returns the net HP change.
func (ss *Snapshot) TurnStart(id HeroID) float64 {
	h := ss.Hero(id)
	maxHP := h.Stats.MaxHP

	var hits []DamageInstance
	heal := 0.0
	removed := h.ConsumeEffects(func(en *EffectEntry) int {
		switch en.Effect.ID {
		case Burn, Bleed:
			hits = append(hits, DamageInstance{Raw: en.Effect.Magnitude, DefPen: dotDefPen})
		case Poison:
			hits = append(hits, DamageInstance{Raw: maxHP * poisonRate, DefPen: poisonDefPen})
		case ContinuousHealing:
			heal += maxHP * healingTickRate
		default:
			return 0
		}
		return 1
	})
	ss.expired(id, removed)

	if len(hits) == 0 && heal == 0 {
		return 0
	}
	total := 0.0
	for _, d := range hits {
		total += ss.damageTaken(FromEffect, id, d)
	}

	before := h.Stats.HP
	if total > heal {
		if h.Alive && !h.Effects.Has(Invincible) {
			ss.loseHP(FromEffect, id, total-heal)
		}
	} else {
		ss.Heal(id, heal-total)
	}
	return h.Stats.HP - before
}

// TurnEnd decays the hero's effects by one turn. Damage and healing
// effects already spent their turn at TurnStart; SkillNull counts charges
// rather than turns.
func (ss *Snapshot) TurnEnd(id HeroID) []EffectEntry {
	removed := ss.Hero(id).ConsumeEffects(func(en *EffectEntry) int {
		if en.Effect.ID.isTick() || en.Effect.ID == SkillNull {
			return 0
		}
		return 1
	})
	ss.expired(id, removed)
	return removed
}

func (ss *Snapshot) expired(id HeroID, removed []EffectEntry) {
	if len(removed) == 0 {
		return
	}
	ids := make([]EffectID, len(removed))
	for i, en := range removed {
		ids[i] = en.Effect.ID
	}
	ss.trigger(hook.OnEffectExpired, &Event{Hero: id, Effects: ids})
}
