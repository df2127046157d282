package conflict

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/user/nation-builder/internal/types"
)

func TestSettleTrade(t *testing.T) {
	// Setup: A offers 50 wood for 30 food
	offer := types.TradeOffer{
		From:      "A",
		To:        "B",
		Offered:   types.NaturalResources{Wood: 50},
		Requested: types.NaturalResources{Food: 30},
	}

	fromDelta, toDelta := SettleTrade(offer)

	assert.Equal(t, int64(-50), fromDelta.NaturalResources.Wood)
	assert.Equal(t, int64(30), fromDelta.NaturalResources.Food)
	assert.Equal(t, int64(50), toDelta.NaturalResources.Wood)
	assert.Equal(t, int64(-30), toDelta.NaturalResources.Food)
	assert.Zero(t, fromDelta.NaturalResources.Land)
	assert.Zero(t, fromDelta.Soldiers)
}

func TestCanAcceptAndOffer(t *testing.T) {
	offer := types.TradeOffer{
		Offered:   types.NaturalResources{Wood: 50},
		Requested: types.NaturalResources{Food: 30},
	}

	assert.True(t, CanAccept(offer, types.NaturalResources{Food: 30}))
	assert.False(t, CanAccept(offer, types.NaturalResources{Food: 29, Wood: 1000}))
	assert.True(t, CanOffer(offer, types.NaturalResources{Wood: 50}))
	assert.False(t, CanOffer(offer, types.NaturalResources{Wood: 49}))
}

func TestValidateOffer(t *testing.T) {
	valid := types.TradeOffer{From: "A", To: "B", Offered: types.NaturalResources{Wood: 1}}
	assert.NoError(t, ValidateOffer(valid))

	self := valid
	self.To = "A"
	assert.ErrorIs(t, ValidateOffer(self), ErrSelfTrade)

	negative := valid
	negative.Requested = types.NaturalResources{Food: -5}
	assert.ErrorIs(t, ValidateOffer(negative), ErrNegativeAmount)

	empty := types.TradeOffer{From: "A", To: "B"}
	assert.ErrorIs(t, ValidateOffer(empty), ErrEmptyOffer)
}

func TestResolveBattleWin(t *testing.T) {
	// Setup
	attacker := Combatant{Military: 80, Soldiers: 100}
	defender := Combatant{
		Military: 100,
		Soldiers: 55,
		Natural:  types.NaturalResources{Wood: 505, Minerals: 300, Food: 999, Water: 80, Land: 200},
	}

	result := ResolveBattle(150, attacker, defender)

	assert.Equal(t, types.BattleWin, result.Outcome)

	// Plunder is 10 percent of each stockpile floored, land excluded
	assert.Equal(t, types.NaturalResources{Wood: 50, Minerals: 30, Food: 99, Water: 8}, result.AttackerDelta.NaturalResources)
	assert.Equal(t, types.NaturalResources{Wood: -50, Minerals: -30, Food: -99, Water: -8}, result.DefenderDelta.NaturalResources)

	// Casualties
	assert.Equal(t, -2, result.AttackerDelta.Soldiers)
	assert.Equal(t, -5, result.DefenderDelta.Soldiers)

	// Stability swing
	assert.Equal(t, 5.0, result.AttackerDelta.Resources[types.StatStability])
	assert.Equal(t, -5.0, result.DefenderDelta.Resources[types.StatStability])
}

func TestResolveBattleLossAndDraw(t *testing.T) {
	attacker := Combatant{Military: 50, Soldiers: 100}
	defender := Combatant{Military: 100, Soldiers: 100, Natural: types.NaturalResources{Wood: 500}}

	// Test case 1: Below 80 percent is a loss
	result := ResolveBattle(79, attacker, defender)
	assert.Equal(t, types.BattleLoss, result.Outcome)
	assert.Equal(t, -10, result.AttackerDelta.Soldiers)
	assert.Equal(t, -2, result.DefenderDelta.Soldiers)
	assert.Equal(t, -5.0, result.AttackerDelta.Resources[types.StatStability])
	assert.Equal(t, 5.0, result.DefenderDelta.Resources[types.StatStability])
	assert.True(t, result.AttackerDelta.NaturalResources.IsZero())

	// Test case 2: Both thresholds are exclusive
	for _, strength := range []float64{80, 100, 120} {
		result = ResolveBattle(strength, attacker, defender)
		assert.Equal(t, types.BattleDraw, result.Outcome, strength)
		assert.Equal(t, -5, result.AttackerDelta.Soldiers)
		assert.Equal(t, -5, result.DefenderDelta.Soldiers)
		assert.Empty(t, result.AttackerDelta.Resources)
		assert.True(t, result.DefenderDelta.NaturalResources.IsZero())
	}
}

func TestCombatantOf(t *testing.T) {
	snap := types.NationSnapshot{
		Resources:        types.Resources{Military: 42},
		Population:       types.Population{Soldiers: 10},
		NaturalResources: types.NaturalResources{Food: 7},
	}

	c := CombatantOf(snap)
	assert.Equal(t, 42.0, c.Military)
	assert.Equal(t, 10, c.Soldiers)
	assert.Equal(t, int64(7), c.Natural.Food)
	assert.Equal(t, 47.0, SuggestedStrength(c))
}
