package battle

import (
	"context"
	"sync"
	"testing"

	"github.com/kasuganosora/battlesim/plugin/hook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func duel(rules *Rules, a, b Stats) Snapshot {
	return NewSnapshot([]Hero{
		{Name: "a", Team: 0, Stats: a},
		{Name: "b", Team: 1, Stats: b},
	}, rules)
}

func fullHP(hp float64) Stats {
	return Stats{MaxHP: hp, HP: hp, Atk: 100, Spd: 100, HitChance: 1}
}

func TestDealDamage_NoDamageByDefault(t *testing.T) {
	ss := duel(nil, fullHP(100), fullHP(100))

	assert.True(t, ss.DealDamage(FromHero(0), 1, DamageInstance{Raw: 50}))
	assert.Equal(t, 100.0, ss.Hero(1).Stats.HP)
}

func TestDealDamage_Death(t *testing.T) {
	var deaths []HeroID
	hooks := hook.NewCenter()
	hooks.Register(hook.OnHeroDeath, 0, "t", func(_ context.Context, _ string, data interface{}) (interface{}, error) {
		deaths = append(deaths, data.(*Event).Hero)
		return data, nil
	})
	ss := duel(&Rules{Damage: RawDamage{}, Hooks: hooks}, fullHP(100), fullHP(30))

	require.True(t, ss.DealDamage(FromHero(0), 1, DamageInstance{Raw: 30}))
	assert.True(t, ss.Hero(1).Alive, "HP exactly 0 is still alive")

	require.True(t, ss.DealDamage(FromHero(0), 1, DamageInstance{Raw: 5}))
	assert.False(t, ss.Hero(1).Alive)
	assert.Equal(t, 0.0, ss.Hero(1).Stats.HP)
	assert.Equal(t, []HeroID{1}, deaths)

	assert.False(t, ss.DealDamage(FromHero(0), 1, DamageInstance{Raw: 5}), "dead heroes take no damage")
	assert.False(t, ss.Heal(1, 10))
}

func TestDealDamage_SkillNullBlocksOnce(t *testing.T) {
	ss := duel(&Rules{Damage: RawDamage{}}, fullHP(100), fullHP(100))
	require.True(t, ss.ApplyEffect(1, Effect{ID: SkillNull}, 1))

	assert.False(t, ss.DealDamage(FromHero(0), 1, DamageInstance{Raw: 40}))
	assert.Equal(t, 100.0, ss.Hero(1).Stats.HP)
	assert.False(t, ss.Hero(1).Effects.Has(SkillNull))

	assert.True(t, ss.DealDamage(FromHero(0), 1, DamageInstance{Raw: 40}))
	assert.Equal(t, 60.0, ss.Hero(1).Stats.HP)
}

func TestDealDamage_SkillNullCharges(t *testing.T) {
	ss := duel(&Rules{Damage: RawDamage{}}, fullHP(100), fullHP(100))
	require.True(t, ss.ApplyEffect(1, Effect{ID: SkillNull}, 2))

	assert.False(t, ss.DealDamage(FromHero(0), 1, DamageInstance{Raw: 10}))
	assert.False(t, ss.DealDamage(FromHero(0), 1, DamageInstance{Raw: 10}))
	assert.True(t, ss.DealDamage(FromHero(0), 1, DamageInstance{Raw: 10}))
	assert.Equal(t, 90.0, ss.Hero(1).Stats.HP)
}

func TestDealDamage_EffectDamageIgnoresSkillNull(t *testing.T) {
	ss := duel(&Rules{Damage: RawDamage{}}, fullHP(100), fullHP(100))
	require.True(t, ss.ApplyEffect(1, Effect{ID: SkillNull}, 1))

	assert.True(t, ss.DealDamage(FromEffect, 1, DamageInstance{Raw: 10}))
	assert.True(t, ss.Hero(1).Effects.Has(SkillNull))
}

func TestDealDamage_Invincible(t *testing.T) {
	ss := duel(&Rules{Damage: RawDamage{}}, fullHP(100), fullHP(100))
	require.True(t, ss.ApplyEffect(1, Effect{ID: Invincible}, 1))

	assert.False(t, ss.DealDamage(FromHero(0), 1, DamageInstance{Raw: 10}))
	assert.False(t, ss.DealDamage(FromEffect, 1, DamageInstance{Raw: 10}))
	assert.Equal(t, 100.0, ss.Hero(1).Stats.HP)
}

func TestDealDamage_NegativePolicyClamped(t *testing.T) {
	neg := PolicyFunc(func(*Stats, *Stats, DamageInstance) float64 { return -50 })
	ss := duel(&Rules{Damage: neg}, fullHP(100), fullHP(100))
	ss.Hero(1).Stats.HP = 20

	ss.DealDamage(FromHero(0), 1, DamageInstance{Raw: 10})
	assert.Equal(t, 20.0, ss.Hero(1).Stats.HP)
}

func TestHeal(t *testing.T) {
	ss := duel(nil, fullHP(100), fullHP(100))
	ss.Hero(1).Stats.HP = 50

	assert.True(t, ss.Heal(1, 80))
	assert.Equal(t, 100.0, ss.Hero(1).Stats.HP, "healing caps at max HP")

	ss.Hero(1).Stats.HP = 50
	require.True(t, ss.ApplyEffect(1, Effect{ID: Unhealable}, 1))
	assert.False(t, ss.Heal(1, 10))
	assert.Equal(t, 50.0, ss.Hero(1).Stats.HP)
}

func TestTurnStart_NetsDamageAndHealing(t *testing.T) {
	ss := duel(&Rules{Damage: RawDamage{}}, fullHP(100), fullHP(1000))
	ss.Hero(1).Stats.HP = 500
	ss.ApplyEffect(1, Effect{ID: Poison}, 1)
	ss.ApplyEffect(1, Effect{ID: ContinuousHealing}, 2)

	delta := ss.TurnStart(1)
	assert.InDelta(t, 100.0, delta, 1e-9, "150 healing minus 50 poison")
	assert.InDelta(t, 600.0, ss.Hero(1).Stats.HP, 1e-9)
	assert.False(t, ss.Hero(1).Effects.Has(Poison))
	require.True(t, ss.Hero(1).Effects.Has(ContinuousHealing))
	assert.Equal(t, 1, ss.Hero(1).Effects.Entries()[0].Duration)
}

func TestTurnStart_DamageOverTimeUsesPenetration(t *testing.T) {
	var mu sync.Mutex
	var pens []float64
	policy := PolicyFunc(func(attacker, _ *Stats, dmg DamageInstance) float64 {
		mu.Lock()
		defer mu.Unlock()
		assert.Nil(t, attacker)
		pens = append(pens, dmg.DefPen)
		return dmg.Raw
	})
	ss := duel(&Rules{Damage: policy}, fullHP(100), fullHP(1000))
	ss.ApplyEffect(1, Effect{ID: Burn, Magnitude: 120}, 2)
	ss.ApplyEffect(1, Effect{ID: Poison}, 2)

	delta := ss.TurnStart(1)
	assert.InDelta(t, -170.0, delta, 1e-9)
	assert.Equal(t, []float64{0.7, 1.0}, pens)
}

func TestTurnStart_NoTickEffects(t *testing.T) {
	ss := duel(&Rules{Damage: RawDamage{}}, fullHP(100), fullHP(100))
	ss.ApplyEffect(1, Effect{ID: AtkBuff}, 1)

	assert.Equal(t, 0.0, ss.TurnStart(1))
	assert.True(t, ss.Hero(1).Effects.Has(AtkBuff))
}

func TestTurnEnd_Decay(t *testing.T) {
	ss := duel(&Rules{Damage: RawDamage{}}, fullHP(100), fullHP(100))
	ss.ApplyEffect(1, Effect{ID: AtkBuff}, 1)
	ss.ApplyEffect(1, Effect{ID: DefBuff}, 2)
	ss.ApplyEffect(1, Effect{ID: Burn, Magnitude: 5}, 1)
	ss.ApplyEffect(1, Effect{ID: SkillNull}, 1)

	removed := ss.TurnEnd(1)
	require.Len(t, removed, 1)
	assert.Equal(t, AtkBuff, removed[0].Effect.ID)
	assert.Equal(t, 100.0, ss.Hero(1).Stats.Atk)
	assert.True(t, ss.Hero(1).Effects.Has(Burn))
	assert.True(t, ss.Hero(1).Effects.Has(SkillNull))
	assert.True(t, ss.Hero(1).Effects.Has(DefBuff))
}
