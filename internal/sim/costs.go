package sim

import (
	"strings"

	"github.com/user/nation-builder/internal/types"
)

// StatCost is a deduction from one national stat
type StatCost struct {
	Stat   types.Stat
	Amount float64
}

// researchCost is the base cost pair charged for a tech prefix
type researchCost struct {
	prefix string
	costs  [2]StatCost
}

var researchCosts = []researchCost{
	{"gov_", [2]StatCost{{types.StatEconomy, 4}, {types.StatCulture, 2}}},
	{"econ_", [2]StatCost{{types.StatEconomy, 3}, {types.StatStability, 2}}},
	{"mil_", [2]StatCost{{types.StatEconomy, 5}, {types.StatDiplomacy, 2}}},
	{"cul_", [2]StatCost{{types.StatEconomy, 2}, {types.StatStability, 2}}},
}

var defaultResearchCost = [2]StatCost{{types.StatEconomy, 3}, {types.StatCulture, 1}}

// ResearchCost returns the stat deductions for researching techID in era
func ResearchCost(techID, era string) [2]StatCost {
	base := defaultResearchCost
	for _, rc := range researchCosts {
		if strings.HasPrefix(techID, rc.prefix) {
			base = rc.costs
			break
		}
	}
	mult := EraMultiplier(era)
	for i := range base {
		base[i].Amount *= mult
	}
	return base
}

// investmentCosts is the natural resource price of investing in each stat
var investmentCosts = map[types.Stat]types.NaturalResources{
	types.StatStability: {Food: 20, Water: 10},
	types.StatEconomy:   {Wood: 15, Minerals: 10, Land: 5},
	types.StatMilitary:  {Minerals: 20, Wood: 10},
	types.StatDiplomacy: {Food: 10, Water: 5, Land: 2},
	types.StatCulture:   {Wood: 10, Water: 10},
}

// InvestmentCost returns the natural resource cost of investing in stat
func InvestmentCost(stat types.Stat) (types.NaturalResources, bool) {
	cost, ok := investmentCosts[stat]
	return cost, ok
}

// Per-head monthly yields
const (
	workerFood     = 3
	workerWood     = 2
	workerMinerals = 1
	workerWater    = 2

	scientistStability = 0.2
	scientistCulture   = 0.3
	soldierMilitary    = 0.3
	soldierStability   = 0.1
)

// Growth and mood tuning
const (
	baseGrowthRate    = 0.05
	maxGrowthRate     = 0.10
	minGrowthModifier = 0.1
	investMoodBonus   = 2
	fedMoodBonus      = 1
	statCap           = 100
	moodCap           = 100
)

// Population dynamics in whole percent
const (
	birthRatePct     = 10
	comingOfAgePct   = 2
	annualSurvivePct = 95
	foodPerHead      = 2
	starvationGate   = 5
)
