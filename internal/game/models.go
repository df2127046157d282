package game

import (
	"time"

	"github.com/user/nation-builder/config"
	"github.com/user/nation-builder/internal/sim"
	"github.com/user/nation-builder/internal/types"
)

// NewNationState builds a fresh nation from the configured starting values.
// Objectives are left empty for the caller to generate.
func NewNationState(cfg config.GameConfig, playerID string) *types.NationState {
	year := cfg.StartYear
	if year < sim.FirstEraStart {
		year = sim.FirstEraStart
	}

	stat := cfg.StartingStat
	return &types.NationState{
		PlayerID: playerID,
		Resources: sim.ClampResources(types.Resources{
			Stability: stat,
			Economy:   stat,
			Military:  stat,
			Diplomacy: stat,
			Culture:   stat,
		}),
		NaturalResources: types.NaturalResources{
			Wood:     cfg.StartingWood,
			Minerals: cfg.StartingMinerals,
			Food:     cfg.StartingFood,
			Water:    cfg.StartingWater,
			Land:     cfg.StartingLand,
		},
		Population: types.Population{
			Men:      cfg.StartingMen,
			Women:    cfg.StartingWomen,
			Children: cfg.StartingChildren,
			Mood:     cfg.StartingMood,
		},
		CurrentEra:       sim.EraForYear(year).ID,
		Year:             year,
		Month:            1,
		UnlockedTechs:    make([]string, 0),
		YearlyObjectives: make([]types.YearlyObjective, 0),
		UpdatedAt:        time.Now(),
	}
}

// normalizeState repairs a loaded or remote state so every invariant holds
func normalizeState(state *types.NationState) {
	if state.UnlockedTechs == nil {
		state.UnlockedTechs = make([]string, 0)
	}
	if state.YearlyObjectives == nil {
		state.YearlyObjectives = make([]types.YearlyObjective, 0)
	}
	if state.Month < 1 {
		state.Month = 1
	}
	if state.Month > 12 {
		state.Month = 12
	}
	if state.Year < sim.FirstEraStart {
		state.Year = sim.FirstEraStart
	}
	state.CurrentEra = sim.EraForYear(state.Year).ID
	state.Resources = sim.ClampResources(state.Resources)
}
