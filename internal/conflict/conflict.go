// Package conflict computes the cross-nation effects of trades and battles.
// Results are deltas for each side; applying them is up to the caller.
package conflict

import (
	"errors"

	"github.com/user/nation-builder/internal/types"
)

var (
	ErrSelfTrade      = errors.New("cannot trade with yourself")
	ErrEmptyOffer     = errors.New("trade offer is empty")
	ErrNegativeAmount = errors.New("trade amounts must not be negative")
)

// Battle thresholds and casualty rates in whole percent
const (
	winThreshold  = 1.2
	lossThreshold = 0.8

	plunderPct      = 10
	heavyLossPct    = 10
	lightLossPct    = 2
	drawLossPct     = 5
	stabilitySwing  = 5.0
	soldierStrength = 0.5
)

// ValidateOffer checks the shape of a trade offer before it is sent
func ValidateOffer(offer types.TradeOffer) error {
	if offer.From == offer.To {
		return ErrSelfTrade
	}
	if !offer.Offered.NonNegative() || !offer.Requested.NonNegative() {
		return ErrNegativeAmount
	}
	if offer.Offered.IsZero() && offer.Requested.IsZero() {
		return ErrEmptyOffer
	}
	return nil
}

// CanOffer reports whether the sender currently holds what it offers
func CanOffer(offer types.TradeOffer, senderNatural types.NaturalResources) bool {
	return senderNatural.Covers(offer.Offered)
}

// CanAccept reports whether the receiver currently holds what is requested
func CanAccept(offer types.TradeOffer, receiverNatural types.NaturalResources) bool {
	return receiverNatural.Covers(offer.Requested)
}

// SettleTrade returns the resource changes for both sides of an accepted offer.
// Offered resources flow from sender to receiver and requested resources the
// other way. Nothing is reserved between offer and acceptance, so the sender
// may have spent the offered resources in the meantime.
func SettleTrade(offer types.TradeOffer) (fromDelta, toDelta types.NationDelta) {
	flow := offer.Requested.Add(offer.Offered.Negate())
	fromDelta = types.NationDelta{NaturalResources: flow}
	toDelta = types.NationDelta{NaturalResources: flow.Negate()}
	return fromDelta, toDelta
}

// Combatant is the part of a nation a battle reads
type Combatant struct {
	Military float64
	Soldiers int
	Natural  types.NaturalResources
}

// CombatantOf extracts the combat view of a nation snapshot
func CombatantOf(s types.NationSnapshot) Combatant {
	return Combatant{
		Military: s.Resources.Military,
		Soldiers: s.Population.Soldiers,
		Natural:  s.NaturalResources,
	}
}

// SuggestedStrength is the attack strength a nation can field by default
func SuggestedStrength(c Combatant) float64 {
	return c.Military + float64(c.Soldiers)*soldierStrength
}

// BattleResult is the outcome of an attack and the delta for each side
type BattleResult struct {
	Outcome       types.BattleOutcome
	AttackerDelta types.NationDelta
	DefenderDelta types.NationDelta
}

// ResolveBattle compares attackStrength against the defender's military.
// The attacker wins above 120% of it, loses below 80% and draws otherwise.
func ResolveBattle(attackStrength float64, attacker, defender Combatant) BattleResult {
	switch {
	case attackStrength > defender.Military*winThreshold:
		plunder := types.NaturalResources{
			Wood:     defender.Natural.Wood * plunderPct / 100,
			Minerals: defender.Natural.Minerals * plunderPct / 100,
			Food:     defender.Natural.Food * plunderPct / 100,
			Water:    defender.Natural.Water * plunderPct / 100,
		}
		return BattleResult{
			Outcome: types.BattleWin,
			AttackerDelta: types.NationDelta{
				Resources:        map[types.Stat]float64{types.StatStability: stabilitySwing},
				NaturalResources: plunder,
				Soldiers:         -(attacker.Soldiers * lightLossPct / 100),
			},
			DefenderDelta: types.NationDelta{
				Resources:        map[types.Stat]float64{types.StatStability: -stabilitySwing},
				NaturalResources: plunder.Negate(),
				Soldiers:         -(defender.Soldiers * heavyLossPct / 100),
			},
		}

	case attackStrength < defender.Military*lossThreshold:
		return BattleResult{
			Outcome: types.BattleLoss,
			AttackerDelta: types.NationDelta{
				Resources: map[types.Stat]float64{types.StatStability: -stabilitySwing},
				Soldiers:  -(attacker.Soldiers * heavyLossPct / 100),
			},
			DefenderDelta: types.NationDelta{
				Resources: map[types.Stat]float64{types.StatStability: stabilitySwing},
				Soldiers:  -(defender.Soldiers * lightLossPct / 100),
			},
		}

	default:
		return BattleResult{
			Outcome:       types.BattleDraw,
			AttackerDelta: types.NationDelta{Soldiers: -(attacker.Soldiers * drawLossPct / 100)},
			DefenderDelta: types.NationDelta{Soldiers: -(defender.Soldiers * drawLossPct / 100)},
		}
	}
}
