package battle

import (
	"github.com/kasuganosora/battlesim/plugin/hook"
	"github.com/kasuganosora/battlesim/rng"
)

// UseSkill runs every component of skill in order. Targets are resolved
// when each component starts, so earlier components (a kill, a speed
// debuff) change who later ones hit.
func UseSkill(actor HeroID, skill *Skill) *Node {
	if skill == nil {
		return rng.End[Snapshot]()
	}
	return rng.ForEach(skill.Components, func(c Component, ss *Snapshot) *Node {
		if c.Action == nil || !ss.Hero(actor).Alive {
			return nil
		}
		tp := c.Targeting
		if tp == nil {
			tp = EnemySingle
		}
		return rng.ForEach(tp.Targets(ss, actor), func(target HeroID, ss *Snapshot) *Node {
			if c.Activate != nil && !c.Activate(ss, actor, target) {
				return nil
			}
			return c.Action.Node(actor, target)
		})
	})
}

// DualAttackNode rolls the actor's dual attack: with d.Chance an ally makes
// a basic attack on the actor's current single target.
func DualAttackNode(actor HeroID, d DualAttack) *Node {
	if d.Target == NoDualAttack || d.Chance <= 0 {
		return rng.End[Snapshot]()
	}
	return rng.AlwaysFunc(func(ss *Snapshot) *Node {
		if !ss.Hero(actor).Alive {
			return nil
		}
		targets := EnemySingle.Targets(ss, actor)
		if len(targets) == 0 {
			return nil
		}
		target := targets[0]

		var allies []HeroID
		for _, id := range ss.Allies(actor) {
			if id != actor {
				allies = append(allies, id)
			}
		}
		if len(allies) == 0 {
			return nil
		}
		if d.Target == DualHighestAtk {
			allies = pick(ss, allies, func(h *Hero) float64 { return h.Stats.Atk })
		}

		attacks := make([]rng.Action[Snapshot], len(allies))
		for i, ally := range allies {
			attacks[i] = rng.ActionFunc[Snapshot](func(*Snapshot) *Node {
				return BasicAttack.Node(ally, target)
			})
		}
		follow := rng.ActionFunc[Snapshot](func(*Snapshot) *Node {
			return rng.Uniform(attacks...).Label("dual_attack")
		})
		return rng.Chance[Snapshot](d.Chance, follow, nil)
	})
}

// TurnNode is one turn of actor: turn-start ticks, the picked skill and its
// dual attack, then turn-end decay and the readiness update.
func TurnNode(actor HeroID) *Node {
	return rng.AlwaysFunc(func(ss *Snapshot) *Node {
		ss.Turn++
		ss.trigger(hook.BeforeTurn, &Event{Hero: actor})
		ss.TurnStart(actor)
		if !ss.Hero(actor).Alive {
			return nil
		}
		skill := ss.Rules.picker().PickSkill(ss, actor)
		if skill == nil {
			return nil
		}
		return UseSkill(actor, skill).ThenFunc(func(*Snapshot) *Node {
			return DualAttackNode(actor, skill.DualAttack)
		})
	}).ThenFunc(func(ss *Snapshot) *Node {
		if ss.Hero(actor).Alive {
			ss.TurnEnd(actor)
		}
		ss.advanceReadiness(actor)
		return nil
	})
}

// BattleNode plays turns until one team is left or maxTurns turns were
// played. Each turn is labelled "turn:<hero name>".
func BattleNode(maxTurns int) *Node {
	return rng.AlwaysFunc(func(ss *Snapshot) *Node {
		return battleStep(ss, maxTurns)
	})
}

func battleStep(ss *Snapshot, remaining int) *Node {
	if remaining <= 0 {
		return nil
	}
	if _, over := ss.Winner(); over {
		return nil
	}
	actor, ok := ss.NextActor()
	if !ok {
		return nil
	}
	return TurnNode(actor).Label("turn:" + ss.Hero(actor).Name).ThenFunc(func(ss *Snapshot) *Node {
		return battleStep(ss, remaining-1)
	})
}
