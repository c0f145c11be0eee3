package sim

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/kasuganosora/battlesim/game/battle"
	"github.com/spf13/viper"
)

// ErrInvalidScenario wraps every validation failure of a Scenario.
var ErrInvalidScenario = errors.New("sim: invalid scenario")

// Scenario is a battle to evaluate, as read from JSON or YAML.
type Scenario struct {
	Name     string     `json:"name" mapstructure:"name"`
	Heroes   []HeroSpec `json:"heroes" mapstructure:"heroes"`
	MaxTurns int        `json:"max_turns,omitempty" mapstructure:"max_turns"`
	MaxDepth int        `json:"max_depth,omitempty" mapstructure:"max_depth"`
	// DamageFormula overrides the service's damage policy; see
	// battle.NewFormulaPolicy. "raw" deals raw damage, "none" deals none.
	DamageFormula string `json:"damage_formula,omitempty" mapstructure:"damage_formula"`
}

// HeroSpec describes one hero. HP 0 starts at full health and hit chance 0
// means every attack connects. A hero without skills uses a basic attack.
type HeroSpec struct {
	Name      string       `json:"name" mapstructure:"name"`
	Team      int          `json:"team" mapstructure:"team"`
	Stats     battle.Stats `json:"stats" mapstructure:"stats"`
	Readiness float64      `json:"readiness,omitempty" mapstructure:"readiness"`
	Effects   []EffectSpec `json:"effects,omitempty" mapstructure:"effects"`
	Skills    []SkillSpec  `json:"skills,omitempty" mapstructure:"skills"`
}

// EffectSpec is an effect a hero starts the battle with.
type EffectSpec struct {
	Effect    string  `json:"effect" mapstructure:"effect"`
	Magnitude float64 `json:"magnitude,omitempty" mapstructure:"magnitude"`
	Duration  int     `json:"duration" mapstructure:"duration"`
}

type SkillSpec struct {
	Name       string          `json:"name" mapstructure:"name"`
	DualAttack DualAttackSpec  `json:"dual_attack,omitempty" mapstructure:"dual_attack"`
	Components []ComponentSpec `json:"components" mapstructure:"components"`
}

type DualAttackSpec struct {
	Chance float64 `json:"chance,omitempty" mapstructure:"chance"`
	Target string  `json:"target,omitempty" mapstructure:"target"`
}

// ComponentSpec is one skill component. Kind selects which of the remaining
// fields apply:
//
//	damage: pow, atk_rate, def_pen
//	splash: atk_rate, def_pen
//	effect: effect, magnitude, chance, duration
//	heal:   rate
//	dispel: count, dispel (any|buffs|debuffs)
type ComponentSpec struct {
	Kind       string  `json:"kind" mapstructure:"kind"`
	Targeting  string  `json:"targeting,omitempty" mapstructure:"targeting"`
	Activation string  `json:"activation,omitempty" mapstructure:"activation"`
	Pow        float64 `json:"pow,omitempty" mapstructure:"pow"`
	AtkRate    float64 `json:"atk_rate,omitempty" mapstructure:"atk_rate"`
	DefPen     float64 `json:"def_pen,omitempty" mapstructure:"def_pen"`
	Effect     string  `json:"effect,omitempty" mapstructure:"effect"`
	Magnitude  float64 `json:"magnitude,omitempty" mapstructure:"magnitude"`
	Chance     float64 `json:"chance,omitempty" mapstructure:"chance"`
	Duration   int     `json:"duration,omitempty" mapstructure:"duration"`
	Rate       float64 `json:"rate,omitempty" mapstructure:"rate"`
	Count      int     `json:"count,omitempty" mapstructure:"count"`
	Dispel     string  `json:"dispel,omitempty" mapstructure:"dispel"`
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidScenario, fmt.Sprintf(format, args...))
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

// Validate checks the scenario without building it.
func (sc *Scenario) Validate() error {
	if len(sc.Heroes) == 0 {
		return invalid("no heroes")
	}
	names := make(map[string]bool, len(sc.Heroes))
	teams := make(map[int]bool)
	for i, h := range sc.Heroes {
		if h.Name == "" {
			return invalid("hero %d has no name", i)
		}
		if names[h.Name] {
			return invalid("duplicate hero name %q", h.Name)
		}
		names[h.Name] = true
		teams[h.Team] = true
		if h.Stats.MaxHP <= 0 {
			return invalid("hero %q: max_hp must be positive", h.Name)
		}
		if h.Stats.HP < 0 || h.Stats.HP > h.Stats.MaxHP {
			return invalid("hero %q: hp out of range", h.Name)
		}
	}
	if len(teams) < 2 {
		return invalid("need at least two teams")
	}
	if sc.MaxTurns < 0 || sc.MaxDepth < 0 {
		return invalid("negative limits")
	}
	return nil
}

// Hash identifies the scenario's content. Equal scenarios hash equally.
func (sc *Scenario) Hash() (string, error) {
	b, err := json.Marshal(sc)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Build converts the scenario into the initial battle state.
func (sc *Scenario) Build(rules *battle.Rules) (battle.Snapshot, error) {
	if err := sc.Validate(); err != nil {
		return battle.Snapshot{}, err
	}
	heroes := make([]battle.Hero, len(sc.Heroes))
	for i, hs := range sc.Heroes {
		h, err := hs.build()
		if err != nil {
			return battle.Snapshot{}, err
		}
		heroes[i] = h
	}
	ss := battle.NewSnapshot(heroes, rules)
	for i, hs := range sc.Heroes {
		for _, es := range hs.Effects {
			id, err := battle.ParseEffectID(es.Effect)
			if err != nil {
				return battle.Snapshot{}, invalid("hero %q: %v", hs.Name, err)
			}
			ss.ApplyEffect(battle.HeroID(i), battle.Effect{ID: id, Magnitude: es.Magnitude}, max(es.Duration, 1))
		}
	}
	return ss, nil
}

func (hs HeroSpec) build() (battle.Hero, error) {
	st := hs.Stats
	if st.HP == 0 {
		st.HP = st.MaxHP
	}
	st.HitChance = orDefault(st.HitChance, 1)
	h := battle.Hero{
		Name:      hs.Name,
		Team:      battle.Team(hs.Team),
		Stats:     st,
		Readiness: hs.Readiness,
	}
	for _, sk := range hs.Skills {
		skill, err := sk.build()
		if err != nil {
			return battle.Hero{}, invalid("hero %q: %v", hs.Name, err)
		}
		h.Skills = append(h.Skills, skill)
	}
	if len(h.Skills) == 0 {
		h.Skills = []*battle.Skill{{
			Name:       "attack",
			Components: []battle.Component{{Action: battle.BasicAttack}},
		}}
	}
	return h, nil
}

func (sk SkillSpec) build() (*battle.Skill, error) {
	target, err := battle.ParseDualAttackTarget(sk.DualAttack.Target)
	if err != nil {
		return nil, err
	}
	skill := &battle.Skill{
		Name:       sk.Name,
		DualAttack: battle.DualAttack{Chance: sk.DualAttack.Chance, Target: target},
	}
	for i, cs := range sk.Components {
		c, err := cs.build()
		if err != nil {
			return nil, fmt.Errorf("skill %q component %d: %w", sk.Name, i, err)
		}
		skill.Components = append(skill.Components, c)
	}
	return skill, nil
}

func (cs ComponentSpec) build() (battle.Component, error) {
	var c battle.Component
	targeting, err := battle.ParseTargeting(cs.Targeting)
	if err != nil {
		return c, err
	}
	c.Targeting = targeting
	if cs.Activation != "" {
		if c.Activate, err = battle.LookupActivation(cs.Activation); err != nil {
			return c, err
		}
	}

	switch strings.ToLower(cs.Kind) {
	case "", "damage":
		c.Action = battle.DamageAction{Pow: orDefault(cs.Pow, 1), AtkRate: orDefault(cs.AtkRate, 1), DefPen: cs.DefPen}
	case "splash":
		c.Action = battle.SplashAction{AtkRate: orDefault(cs.AtkRate, 1), DefPen: cs.DefPen}
	case "effect":
		id, err := battle.ParseEffectID(cs.Effect)
		if err != nil {
			return c, err
		}
		c.Action = battle.EffectAction{
			Chance:   orDefault(cs.Chance, 1),
			Effect:   battle.Effect{ID: id, Magnitude: cs.Magnitude},
			Duration: max(cs.Duration, 1),
		}
	case "heal":
		c.Action = battle.HealAction{Rate: cs.Rate}
	case "dispel":
		kind, err := battle.ParseDispelKind(cs.Dispel)
		if err != nil {
			return c, err
		}
		c.Action = battle.DispelAction{Count: max(cs.Count, 1), Kind: kind}
	default:
		return c, fmt.Errorf("unknown component kind %q", cs.Kind)
	}
	return c, nil
}

// LoadScenarios reads scenarios from a YAML or JSON file. The file holds
// either a "scenarios" list or a single scenario at the top level.
func LoadScenarios(path string) ([]Scenario, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("sim: read %s: %w", path, err)
	}
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
	))

	if v.IsSet("scenarios") {
		var out []Scenario
		if err := v.UnmarshalKey("scenarios", &out, hook); err != nil {
			return nil, fmt.Errorf("sim: decode %s: %w", path, err)
		}
		return out, nil
	}
	var sc Scenario
	if err := v.Unmarshal(&sc, hook); err != nil {
		return nil, fmt.Errorf("sim: decode %s: %w", path, err)
	}
	return []Scenario{sc}, nil
}
