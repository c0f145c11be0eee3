// Package battle models heroes, status effects and turn rules, and builds
// rng node trees that enumerate every probabilistic outcome of a fight.
package battle

import (
	"fmt"
	"strings"
)

// Stat names one numeric field of Stats.
type Stat uint8

const (
	StatNone Stat = iota
	StatMaxHP
	StatHP
	StatAtk
	StatSpd
	StatDef
	StatCC
	StatCDmg
	StatEff
	StatEffRes
	StatHitChance
	StatCritResist
)

var statNames = [...]string{
	StatNone:       "none",
	StatMaxHP:      "max_hp",
	StatHP:         "hp",
	StatAtk:        "atk",
	StatSpd:        "spd",
	StatDef:        "def",
	StatCC:         "cc",
	StatCDmg:       "cdmg",
	StatEff:        "eff",
	StatEffRes:     "effres",
	StatHitChance:  "hit_chance",
	StatCritResist: "crit_resist",
}

func (s Stat) String() string {
	if int(s) < len(statNames) {
		return statNames[s]
	}
	return fmt.Sprintf("stat(%d)", s)
}

// ParseStat is the inverse of Stat.String.
func ParseStat(name string) (Stat, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range statNames {
		if n == name && i != int(StatNone) {
			return Stat(i), nil
		}
	}
	return StatNone, fmt.Errorf("battle: unknown stat %q", name)
}

// Element is a hero's affinity.
type Element uint8

const (
	Fire Element = iota
	Ice
	Earth
	Light
	Dark
)

var elementNames = [...]string{"fire", "ice", "earth", "light", "dark"}

func (e Element) String() string {
	if int(e) < len(elementNames) {
		return elementNames[e]
	}
	return fmt.Sprintf("element(%d)", e)
}

// ParseElement accepts the names produced by Element.String. Empty means Fire.
func ParseElement(name string) (Element, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return Fire, nil
	}
	for i, n := range elementNames {
		if n == name {
			return Element(i), nil
		}
	}
	return Fire, fmt.Errorf("battle: unknown element %q", name)
}

// MarshalText encodes e by name.
func (e Element) MarshalText() ([]byte, error) { return []byte(e.String()), nil }

// UnmarshalText decodes a name accepted by ParseElement.
func (e *Element) UnmarshalText(b []byte) error {
	v, err := ParseElement(string(b))
	if err != nil {
		return err
	}
	*e = v
	return nil
}

// Stats is a hero's stat block. Chances and rates are fractions: CC 0.15
// is a 15% crit chance, CDmg 1.5 multiplies critical damage by 1.5.
type Stats struct {
	MaxHP      float64 `json:"max_hp" mapstructure:"max_hp"`
	HP         float64 `json:"hp" mapstructure:"hp"`
	Atk        float64 `json:"atk" mapstructure:"atk"`
	Spd        float64 `json:"spd" mapstructure:"spd"`
	Def        float64 `json:"def" mapstructure:"def"`
	CC         float64 `json:"cc" mapstructure:"cc"`
	CDmg       float64 `json:"cdmg" mapstructure:"cdmg"`
	Eff        float64 `json:"eff" mapstructure:"eff"`
	EffRes     float64 `json:"effres" mapstructure:"effres"`
	Element    Element `json:"element" mapstructure:"element"`
	HitChance  float64 `json:"hit_chance" mapstructure:"hit_chance"`
	CritResist float64 `json:"crit_resist" mapstructure:"crit_resist"`
}

// Field returns a pointer to the field for stat, or nil for StatNone.
func (s *Stats) Field(stat Stat) *float64 {
	switch stat {
	case StatMaxHP:
		return &s.MaxHP
	case StatHP:
		return &s.HP
	case StatAtk:
		return &s.Atk
	case StatSpd:
		return &s.Spd
	case StatDef:
		return &s.Def
	case StatCC:
		return &s.CC
	case StatCDmg:
		return &s.CDmg
	case StatEff:
		return &s.Eff
	case StatEffRes:
		return &s.EffRes
	case StatHitChance:
		return &s.HitChance
	case StatCritResist:
		return &s.CritResist
	}
	return nil
}

// Get reads one stat; StatNone reads as 0.
func (s *Stats) Get(stat Stat) float64 {
	if f := s.Field(stat); f != nil {
		return *f
	}
	return 0
}

// vars flattens the numeric stats for formula evaluation. A nil block
// reads as all zeros.
func (s *Stats) vars() map[string]float64 {
	if s == nil {
		s = &Stats{}
	}
	m := make(map[string]float64, len(statNames)+1)
	for i := StatMaxHP; i <= StatCritResist; i++ {
		m[i.String()] = s.Get(i)
	}
	m["maxhp"] = s.MaxHP
	return m
}
