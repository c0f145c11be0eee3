package battle

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kasuganosora/battlesim/rng"
)

// Node is the node type of battle computations.
type Node = rng.Node[Snapshot]

// SkillAction is a command object producing the computation for one target.
// It carries only owned data; the actor and target are resolved against
// the state when the node runs.
type SkillAction interface {
	Node(actor, target HeroID) *Node
}

// Activation decides whether a component fires on target.
type Activation func(ss *Snapshot, actor, target HeroID) bool

// Component is one part of a skill.
type Component struct {
	Targeting TargetPolicy
	Activate  Activation
	Action    SkillAction
}

// DualAttackTarget selects the ally joining a dual attack.
type DualAttackTarget uint8

const (
	NoDualAttack DualAttackTarget = iota
	DualRandom
	DualHighestAtk
)

var dualNames = [...]string{
	NoDualAttack:   "none",
	DualRandom:     "random",
	DualHighestAtk: "highest_atk",
}

func (d DualAttackTarget) String() string {
	if int(d) < len(dualNames) {
		return dualNames[d]
	}
	return fmt.Sprintf("dual(%d)", d)
}

// ParseDualAttackTarget is the inverse of DualAttackTarget.String.
func ParseDualAttackTarget(name string) (DualAttackTarget, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return NoDualAttack, nil
	}
	for i, n := range dualNames {
		if n == name {
			return DualAttackTarget(i), nil
		}
	}
	return NoDualAttack, fmt.Errorf("battle: unknown dual attack target %q", name)
}

// DualAttack is the chance that an ally follows up with a basic attack.
type DualAttack struct {
	Chance float64
	Target DualAttackTarget
}

// Skill is an ordered list of components.
type Skill struct {
	Name       string
	DualAttack DualAttack
	Components []Component
}

// SkillPicker chooses the skill a hero uses this turn.
type SkillPicker interface {
	PickSkill(ss *Snapshot, actor HeroID) *Skill
}

// FirstSkill always picks the hero's first skill.
type FirstSkill struct{}

func (FirstSkill) PickSkill(ss *Snapshot, actor HeroID) *Skill {
	if skills := ss.Hero(actor).Skills; len(skills) > 0 {
		return skills[0]
	}
	return nil
}

// PickerFunc adapts a function to SkillPicker.
type PickerFunc func(ss *Snapshot, actor HeroID) *Skill

func (f PickerFunc) PickSkill(ss *Snapshot, actor HeroID) *Skill { return f(ss, actor) }

var activations = map[string]Activation{
	"always": func(*Snapshot, HeroID, HeroID) bool { return true },
	"target_below_half_hp": func(ss *Snapshot, _, target HeroID) bool {
		h := ss.Hero(target)
		return h.Stats.HP < h.Stats.MaxHP/2
	},
	"target_has_debuff": func(ss *Snapshot, _, target HeroID) bool {
		for _, en := range ss.Hero(target).Effects.entries {
			if en.Effect.ID.IsDebuff() {
				return true
			}
		}
		return false
	},
	"target_has_buff": func(ss *Snapshot, _, target HeroID) bool {
		for _, en := range ss.Hero(target).Effects.entries {
			if en.Effect.ID.IsBuff() {
				return true
			}
		}
		return false
	},
	"actor_full_hp": func(ss *Snapshot, actor, _ HeroID) bool {
		h := ss.Hero(actor)
		return h.Stats.HP >= h.Stats.MaxHP
	},
	"target_faster": func(ss *Snapshot, actor, target HeroID) bool {
		return ss.Hero(target).Stats.Spd > ss.Hero(actor).Stats.Spd
	},
}

// LookupActivation returns a named activation predicate.
func LookupActivation(name string) (Activation, error) {
	if a, ok := activations[name]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("battle: unknown activation %q (known: %s)", name, strings.Join(ActivationNames(), ", "))
}

// ActivationNames lists the registered activation predicates.
func ActivationNames() []string {
	names := make([]string, 0, len(activations))
	for n := range activations {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
