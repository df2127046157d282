// Package objective generates and evaluates the yearly objectives that
// gate year rollover.
package objective

import (
	"fmt"
	"math"
	"strings"

	"github.com/user/nation-builder/internal/interfaces"
	"github.com/user/nation-builder/internal/sim"
	"github.com/user/nation-builder/internal/types"
)

const (
	resourceGrowth   = 1.3
	populationGrowth = 1.25
	stockpileGrowth  = 1.2
	moodTarget       = 70

	// Population and tech objectives unlock a few years into the game
	populationAfterYears = 2
	techAfterYears       = 5
)

// Generator samples a new batch of objectives
type Generator struct {
	Rand interfaces.Randomizer
}

// NewGenerator creates a generator drawing from rng
func NewGenerator(rng interfaces.Randomizer) *Generator {
	return &Generator{Rand: rng}
}

// Generate builds the objective batch for year from the current state.
// The batch always holds one stat and one stockpile objective; population,
// tech and mood objectives are added depending on year and mood.
func (g *Generator) Generate(state *types.NationState, year int) []types.YearlyObjective {
	objectives := make([]types.YearlyObjective, 0, 5)

	// Resources
	stat := types.Stats[g.Rand.Intn(len(types.Stats))]
	current, _ := state.Resources.Get(stat)
	target := math.Min(100, math.Round(current*resourceGrowth))
	objectives = append(objectives, types.YearlyObjective{
		Type:        types.ObjectiveResources,
		Target:      string(stat),
		Amount:      target,
		Description: fmt.Sprintf("Raise %s to %.0f", stat, target),
	})

	// Population
	if year > sim.FirstEraStart+populationAfterYears {
		target := math.Round(float64(state.Population.Total()) * populationGrowth)
		objectives = append(objectives, types.YearlyObjective{
			Type:        types.ObjectivePopulation,
			Target:      types.TargetPopulationTotal,
			Amount:      target,
			Description: fmt.Sprintf("Grow the population to %.0f", target),
		})
	}

	// Natural resources
	kind := types.NaturalResourceKinds[g.Rand.Intn(len(types.NaturalResourceKinds))]
	stock, _ := state.NaturalResources.Get(kind)
	stockTarget := math.Round(float64(stock) * stockpileGrowth)
	objectives = append(objectives, types.YearlyObjective{
		Type:        types.ObjectiveNaturalResources,
		Target:      string(kind),
		Amount:      stockTarget,
		Description: fmt.Sprintf("Stockpile %.0f %s", stockTarget, kind),
	})

	// Tech
	if year > sim.FirstEraStart+techAfterYears {
		count := len(state.UnlockedTechs) + 1
		objectives = append(objectives, types.YearlyObjective{
			Type:        types.ObjectiveTech,
			Target:      types.TargetTechCount,
			Amount:      float64(count),
			Description: fmt.Sprintf("Research %d technologies", count),
		})
	}

	// Mood
	if state.Population.Mood < moodTarget {
		objectives = append(objectives, types.YearlyObjective{
			Type:        types.ObjectivePopulation,
			Target:      types.TargetPopulationMood,
			Amount:      moodTarget,
			Description: fmt.Sprintf("Lift national mood to %d", moodTarget),
		})
	}

	return Evaluate(objectives, state)
}

// Evaluate returns a copy of objectives with every completed flag recomputed against state
func Evaluate(objectives []types.YearlyObjective, state *types.NationState) []types.YearlyObjective {
	out := make([]types.YearlyObjective, len(objectives))
	for i, o := range objectives {
		o.Completed = Current(o, state) >= o.Amount
		out[i] = o
	}
	return out
}

// Current reads the state value an objective measures, 0 when the target is unknown
func Current(o types.YearlyObjective, state *types.NationState) float64 {
	switch o.Type {
	case types.ObjectiveResources:
		v, _ := state.Resources.Get(types.Stat(strings.ToLower(o.Target)))
		return v
	case types.ObjectiveNaturalResources:
		v, _ := state.NaturalResources.Get(types.NaturalResource(strings.ToLower(o.Target)))
		return float64(v)
	case types.ObjectivePopulation:
		switch o.Target {
		case types.TargetPopulationTotal:
			return float64(state.Population.Total())
		case types.TargetPopulationMood:
			return state.Population.Mood
		}
	case types.ObjectiveTech:
		return float64(len(state.UnlockedTechs))
	}
	return 0
}

// AllCompleted reports whether every objective is completed, true for an empty batch
func AllCompleted(objectives []types.YearlyObjective) bool {
	for _, o := range objectives {
		if !o.Completed {
			return false
		}
	}
	return true
}

// Progress returns how many objectives are completed out of the batch
func Progress(objectives []types.YearlyObjective) (done, total int) {
	for _, o := range objectives {
		if o.Completed {
			done++
		}
	}
	return done, len(objectives)
}
