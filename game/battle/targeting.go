package battle

import (
	"fmt"
	"strings"
)

// TargetPolicy chooses the targets of a skill component. It runs when the
// component executes, against that path's state.
type TargetPolicy interface {
	Targets(ss *Snapshot, actor HeroID) []HeroID
}

// Targeting is the built-in set of target policies.
type Targeting uint8

const (
	EnemySingle Targeting = iota
	SelfSingle
	SelfAOE
	EnemyAOE
	HighestAtk
	HighestCR
)

var targetingNames = [...]string{
	EnemySingle: "enemy_single",
	SelfSingle:  "self_single",
	SelfAOE:     "self_aoe",
	EnemyAOE:    "enemy_aoe",
	HighestAtk:  "highest_atk",
	HighestCR:   "highest_cr",
}

func (t Targeting) String() string {
	if int(t) < len(targetingNames) {
		return targetingNames[t]
	}
	return fmt.Sprintf("targeting(%d)", t)
}

// ParseTargeting is the inverse of Targeting.String. Empty means EnemySingle.
func ParseTargeting(name string) (Targeting, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return EnemySingle, nil
	}
	for i, n := range targetingNames {
		if n == name {
			return Targeting(i), nil
		}
	}
	return EnemySingle, fmt.Errorf("battle: unknown targeting %q", name)
}

// Targets implements TargetPolicy.
//
//   - EnemySingle: the living enemy with the lowest HP.
//   - SelfSingle: the actor.
//   - SelfAOE: every living ally, actor included.
//   - EnemyAOE: every living enemy.
//   - HighestAtk: the living enemy with the highest attack.
//   - HighestCR: the living enemy with the highest readiness.
//
// Ties go to the lowest index.
func (t Targeting) Targets(ss *Snapshot, actor HeroID) []HeroID {
	switch t {
	case SelfSingle:
		if ss.Heroes[actor].Alive {
			return []HeroID{actor}
		}
		return nil
	case SelfAOE:
		return ss.Allies(actor)
	case EnemyAOE:
		return ss.Enemies(actor)
	case EnemySingle:
		return pick(ss, ss.Enemies(actor), func(h *Hero) float64 { return -h.Stats.HP })
	case HighestAtk:
		return pick(ss, ss.Enemies(actor), func(h *Hero) float64 { return h.Stats.Atk })
	case HighestCR:
		return pick(ss, ss.Enemies(actor), func(h *Hero) float64 { return h.Readiness })
	}
	return nil
}

// pick returns the candidate maximising score, or nil if there is none.
func pick(ss *Snapshot, ids []HeroID, score func(*Hero) float64) []HeroID {
	if len(ids) == 0 {
		return nil
	}
	best := ids[0]
	for _, id := range ids[1:] {
		if score(ss.Hero(id)) > score(ss.Hero(best)) {
			best = id
		}
	}
	return []HeroID{best}
}
