package battle

import (
	"fmt"
	"math"
	"strings"

	"github.com/kasuganosora/battlesim/plugin/hook"
	"github.com/kasuganosora/battlesim/rng"
)

// MaxProcChance caps the chance of landing an effect on an enemy.
const MaxProcChance = 0.85

// ProcChance is the chance that an effect with base chance lands on target
// when cast by an enemy: min(0.85, chance * max(0, 1 + eff - effres)).
func ProcChance(chance float64, caster, target *Stats) float64 {
	return math.Min(MaxProcChance, chance*math.Max(0, 1+caster.Eff-target.EffRes))
}

// DamageAction is an attack that may miss or crit. Raw damage is
// Atk * AtkRate * Pow, multiplied by CDmg on a crit.
type DamageAction struct {
	Pow     float64
	AtkRate float64
	DefPen  float64
}

// BasicAttack is the attack used for dual attacks.
var BasicAttack = DamageAction{Pow: 1, AtkRate: 1}

func (d DamageAction) Node(actor, target HeroID) *Node {
	return rng.AlwaysFunc(func(ss *Snapshot) *Node {
		a, t := ss.Hero(actor), ss.Hero(target)
		if !a.Alive || !t.Alive {
			return nil
		}
		critChance := a.Stats.CC - t.Stats.CritResist
		onHit := rng.ActionFunc[Snapshot](func(*Snapshot) *Node {
			return rng.Chance[Snapshot](critChance, d.deal(actor, target, true), d.deal(actor, target, false))
		})
		onMiss := rng.ActionFunc[Snapshot](func(*Snapshot) *Node {
			return rng.Labeled[Snapshot]("miss", nil)
		})
		return rng.Chance[Snapshot](a.Stats.HitChance, onHit, onMiss)
	})
}

func (d DamageAction) deal(actor, target HeroID, crit bool) rng.Action[Snapshot] {
	return rng.ActionFunc[Snapshot](func(ss *Snapshot) *Node {
		a := &ss.Hero(actor).Stats
		raw := a.Atk * d.AtkRate * d.Pow
		if crit && a.CDmg > 0 {
			raw *= a.CDmg
		}
		ss.DealDamage(FromHero(actor), target, DamageInstance{Raw: raw, DefPen: d.DefPen})
		if crit {
			return rng.Labeled[Snapshot]("crit", nil)
		}
		return nil
	})
}

// SplashAction deals Atk * AtkRate to the target without hit or crit rolls.
type SplashAction struct {
	AtkRate float64
	DefPen  float64
}

func (s SplashAction) Node(actor, target HeroID) *Node {
	return rng.AlwaysFunc(func(ss *Snapshot) *Node {
		if !ss.Hero(actor).Alive {
			return nil
		}
		raw := ss.Hero(actor).Stats.Atk * s.AtkRate
		ss.DealDamage(FromHero(actor), target, DamageInstance{Raw: raw, DefPen: s.DefPen})
		return nil
	})
}

// EffectAction applies an effect. On allies it always lands; on enemies it
// lands with ProcChance.
type EffectAction struct {
	Chance   float64
	Effect   Effect
	Duration int
}

func (e EffectAction) Node(actor, target HeroID) *Node {
	return rng.AlwaysFunc(func(ss *Snapshot) *Node {
		a, t := ss.Hero(actor), ss.Hero(target)
		if !t.Alive {
			return nil
		}
		apply := rng.ActionFunc[Snapshot](func(ss *Snapshot) *Node {
			ss.ApplyEffect(target, e.Effect, e.Duration)
			return nil
		})
		if a.Team == t.Team {
			return rng.Always[Snapshot](apply)
		}
		return rng.Chance[Snapshot](ProcChance(e.Chance, &a.Stats, &t.Stats), apply, nil)
	})
}

// HealAction heals Rate of the target's max HP.
type HealAction struct {
	Rate float64
}

func (h HealAction) Node(_, target HeroID) *Node {
	return rng.AlwaysFunc(func(ss *Snapshot) *Node {
		ss.Heal(target, ss.Hero(target).Stats.MaxHP*h.Rate)
		return nil
	})
}

// DispelKind restricts which effects a dispel removes.
type DispelKind uint8

const (
	DispelAny DispelKind = iota
	DispelBuffs
	DispelDebuffs
)

// ParseDispelKind accepts "any", "buffs" and "debuffs". Empty means any.
func ParseDispelKind(name string) (DispelKind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "any":
		return DispelAny, nil
	case "buffs":
		return DispelBuffs, nil
	case "debuffs":
		return DispelDebuffs, nil
	}
	return DispelAny, fmt.Errorf("battle: unknown dispel kind %q", name)
}

func (k DispelKind) match() func(EffectID) bool {
	switch k {
	case DispelBuffs:
		return EffectID.IsBuff
	case DispelDebuffs:
		return EffectID.IsDebuff
	}
	return nil
}

// DispelAction removes up to Count dispellable effects from the target and
// raises the on_dispel hook with what was removed.
type DispelAction struct {
	Count int
	Kind  DispelKind
}

func (d DispelAction) Node(_, target HeroID) *Node {
	return rng.AlwaysFunc(func(ss *Snapshot) *Node {
		removed := ss.Hero(target).DispelEffects(d.Count, d.Kind.match())
		if len(removed) == 0 {
			return nil
		}
		ids := make([]EffectID, len(removed))
		for i, en := range removed {
			ids[i] = en.Effect.ID
		}
		ss.trigger(hook.OnDispel, &Event{Hero: target, Effects: ids})
		return nil
	})
}
