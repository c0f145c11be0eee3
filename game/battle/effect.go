package battle

import (
	"fmt"
	"strings"
)

// EffectID identifies a status effect kind.
type EffectID uint8

const (
	EffectNone EffectID = iota
	AtkBuff
	AtkDown
	GreaterAtk
	DefBreak
	DefBuff
	SpdBuff
	SpdDown
	CritResist
	CannotBuff
	Immunity
	Unhealable
	ContinuousHealing
	Bleed
	Burn
	Poison
	Rage
	Daydream
	Invincible
	SkillNull
)

var effectNames = map[EffectID]string{
	AtkBuff:           "atk_buff",
	AtkDown:           "atk_down",
	GreaterAtk:        "greater_atk",
	DefBreak:          "def_break",
	DefBuff:           "def_buff",
	SpdBuff:           "spd_buff",
	SpdDown:           "spd_down",
	CritResist:        "crit_resist",
	CannotBuff:        "cannot_buff",
	Immunity:          "immunity",
	Unhealable:        "unhealable",
	ContinuousHealing: "continuous_healing",
	Bleed:             "bleed",
	Burn:              "burn",
	Poison:            "poison",
	Rage:              "rage",
	Daydream:          "daydream",
	Invincible:        "invincible",
	SkillNull:         "skill_null",
}

func (id EffectID) String() string {
	if n, ok := effectNames[id]; ok {
		return n
	}
	return fmt.Sprintf("effect(%d)", id)
}

// ParseEffectID is the inverse of EffectID.String.
func ParseEffectID(name string) (EffectID, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for id, n := range effectNames {
		if n == name {
			return id, nil
		}
	}
	return EffectNone, fmt.Errorf("battle: unknown effect %q", name)
}

// Effect is an effect kind plus its magnitude. Only Bleed and Burn use the
// magnitude (raw damage per tick).
type Effect struct {
	ID        EffectID `json:"id"`
	Magnitude float64  `json:"magnitude,omitempty"`
}

func (e Effect) String() string {
	if e.Magnitude != 0 {
		return fmt.Sprintf("%s(%g)", e.ID, e.Magnitude)
	}
	return e.ID.String()
}

// Modifier scales a base stat while the effect is active.
type Modifier struct {
	Stat Stat
	Rate float64
}

var modifiers = map[EffectID]Modifier{
	GreaterAtk: {StatAtk, 0.75},
	AtkBuff:    {StatAtk, 0.5},
	AtkDown:    {StatAtk, -0.5},
	DefBuff:    {StatDef, 0.6},
	DefBreak:   {StatDef, -0.7},
	SpdBuff:    {StatSpd, 0.3},
	SpdDown:    {StatSpd, -0.3},
	CritResist: {StatCritResist, 0.5},
}

// Modifier returns the stat modifier of id, if it has one.
func (id EffectID) Modifier() (Modifier, bool) {
	m, ok := modifiers[id]
	return m, ok
}

// CanStack reports whether several entries of id may coexist.
func (id EffectID) CanStack() bool {
	switch id {
	case Burn, Bleed, Poison, ContinuousHealing:
		return true
	}
	return false
}

// Dispellable reports whether dispel may remove id.
func (id EffectID) Dispellable() bool {
	switch id {
	case Rage, Daydream:
		return false
	}
	return true
}

// IsBuff reports whether id benefits its holder.
func (id EffectID) IsBuff() bool {
	switch id {
	case AtkBuff, GreaterAtk, DefBuff, SpdBuff, CritResist, Immunity,
		ContinuousHealing, Invincible, SkillNull:
		return true
	}
	return false
}

// IsDebuff reports whether id harms its holder.
func (id EffectID) IsDebuff() bool {
	switch id {
	case AtkDown, DefBreak, SpdDown, CannotBuff, Unhealable, Bleed, Burn,
		Poison, Daydream:
		return true
	}
	return false
}

// isTick reports whether id is processed at turn start rather than decayed
// at turn end.
func (id EffectID) isTick() bool {
	switch id {
	case Burn, Bleed, Poison, ContinuousHealing:
		return true
	}
	return false
}

// Priority is the outcome of comparing an incoming effect with an
// existing entry.
type Priority uint8

const (
	// PriorityNone: the two are unrelated.
	PriorityNone Priority = iota
	// PriorityOverwrite: the incoming effect replaces the existing entry.
	PriorityOverwrite
	// PriorityReject: the incoming effect is refused.
	PriorityReject
)

// ComparePriority decides how a non-stacking incoming effect interacts
// with an existing one. Re-applying the same kind refreshes it; GreaterAtk
// replaces AtkBuff and blocks it while active.
func ComparePriority(incoming, existing EffectID) Priority {
	switch {
	case incoming == existing:
		return PriorityOverwrite
	case incoming == GreaterAtk && existing == AtkBuff:
		return PriorityOverwrite
	case incoming == AtkBuff && existing == GreaterAtk:
		return PriorityReject
	}
	return PriorityNone
}
