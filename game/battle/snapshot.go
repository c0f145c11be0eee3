package battle

import (
	"context"
	"fmt"

	"github.com/kasuganosora/battlesim/plugin/hook"
)

// Rules are the pluggable policies of a battle. They are shared by every
// clone of a snapshot and must be safe for concurrent use.
type Rules struct {
	Damage DamagePolicy
	Picker SkillPicker
	Hooks  *hook.Center
}

func (r *Rules) damage() DamagePolicy {
	if r == nil || r.Damage == nil {
		return NoDamage{}
	}
	return r.Damage
}

func (r *Rules) picker() SkillPicker {
	if r == nil || r.Picker == nil {
		return FirstSkill{}
	}
	return r.Picker
}

func (r *Rules) hooks() *hook.Center {
	if r == nil {
		return nil
	}
	return r.Hooks
}

// Snapshot is the complete battle state at one instant.
type Snapshot struct {
	Heroes []Hero
	// Base holds each hero's pristine stats. It is shared by clones and
	// never written after NewSnapshot.
	Base  []Stats
	Rules *Rules
	Turn  int
}

// NewSnapshot records the heroes' current stats as their base stats. Heroes
// with HP above zero start alive.
func NewSnapshot(heroes []Hero, rules *Rules) Snapshot {
	ss := Snapshot{
		Heroes: make([]Hero, len(heroes)),
		Base:   make([]Stats, len(heroes)),
		Rules:  rules,
	}
	for i, h := range heroes {
		h = h.clone()
		if h.Stats.HP > 0 {
			h.Alive = true
		}
		ss.Heroes[i] = h
		ss.Base[i] = h.Stats
	}
	return ss
}

// Clone deep-copies the heroes; Base and Rules are shared.
func (ss Snapshot) Clone() Snapshot {
	heroes := make([]Hero, len(ss.Heroes))
	for i := range ss.Heroes {
		heroes[i] = ss.Heroes[i].clone()
	}
	ss.Heroes = heroes
	return ss
}

// Hero returns the hero with id.
func (ss *Snapshot) Hero(id HeroID) *Hero { return &ss.Heroes[id] }

// BaseStats returns the pristine stats of id.
func (ss *Snapshot) BaseStats(id HeroID) *Stats {
	if int(id) < len(ss.Base) {
		return &ss.Base[id]
	}
	return nil
}

// ApplyEffect applies e to target using the target's base stats.
func (ss *Snapshot) ApplyEffect(target HeroID, e Effect, duration int) bool {
	ok := ss.Hero(target).ApplyEffect(ss.BaseStats(target), e, duration)
	if ok {
		ss.trigger(hook.OnEffectApplied, &Event{Hero: target, Effects: []EffectID{e.ID}})
	}
	return ok
}

// Living returns the living heroes of team in index order.
func (ss *Snapshot) Living(team Team) []HeroID {
	var out []HeroID
	for i := range ss.Heroes {
		if ss.Heroes[i].Alive && ss.Heroes[i].Team == team {
			out = append(out, HeroID(i))
		}
	}
	return out
}

// Enemies returns the living heroes not on id's team.
func (ss *Snapshot) Enemies(id HeroID) []HeroID {
	team := ss.Heroes[id].Team
	var out []HeroID
	for i := range ss.Heroes {
		if ss.Heroes[i].Alive && ss.Heroes[i].Team != team {
			out = append(out, HeroID(i))
		}
	}
	return out
}

// Allies returns the living heroes on id's team, id included.
func (ss *Snapshot) Allies(id HeroID) []HeroID {
	return ss.Living(ss.Heroes[id].Team)
}

// NextActor returns the living hero with the highest readiness. Ties go to
// the lowest index.
func (ss *Snapshot) NextActor() (HeroID, bool) {
	best := HeroID(-1)
	for i := range ss.Heroes {
		h := &ss.Heroes[i]
		if !h.Alive {
			continue
		}
		if best < 0 || h.Readiness > ss.Heroes[best].Readiness {
			best = HeroID(i)
		}
	}
	return best, best >= 0
}

// advanceReadiness resets the actor and lets every living hero gain its
// speed.
func (ss *Snapshot) advanceReadiness(actor HeroID) {
	ss.Heroes[actor].Readiness = 0
	for i := range ss.Heroes {
		if ss.Heroes[i].Alive {
			ss.Heroes[i].Readiness += ss.Heroes[i].Stats.Spd
		}
	}
}

// Teams returns the distinct teams in order of first appearance.
func (ss *Snapshot) Teams() []Team {
	var teams []Team
	seen := make(map[Team]bool)
	for i := range ss.Heroes {
		t := ss.Heroes[i].Team
		if !seen[t] {
			seen[t] = true
			teams = append(teams, t)
		}
	}
	return teams
}

// Winner returns the only team with living heroes. over is true when at
// most one team is left standing; a wipe of every team is over without a
// winner.
func (ss *Snapshot) Winner() (team Team, over bool) {
	var alive []Team
	for _, t := range ss.Teams() {
		if len(ss.Living(t)) > 0 {
			alive = append(alive, t)
		}
	}
	switch len(alive) {
	case 0:
		return 0, true
	case 1:
		return alive[0], true
	}
	return 0, false
}

// Outcome names the result: "team-N", "draw" or "undecided".
func Outcome(ss Snapshot) string {
	team, over := ss.Winner()
	if !over {
		return "undecided"
	}
	if len(ss.Living(team)) == 0 {
		return "draw"
	}
	return fmt.Sprintf("team-%d", team)
}

// Event is the payload of battle hooks. Handlers may mutate Snapshot; it is
// the state of the path that raised the event.
type Event struct {
	Snapshot *Snapshot
	Hero     HeroID
	Source   DamageSource
	Effects  []EffectID
	Amount   float64
}

func (ss *Snapshot) trigger(event string, ev *Event) {
	hooks := ss.Rules.hooks()
	if !hooks.Has(event) {
		return
	}
	ev.Snapshot = ss
	_, _ = hooks.Trigger(context.Background(), event, ev)
}
