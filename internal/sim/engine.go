// Package sim implements the pure state transitions of a nation:
// research, investment, labor distribution and the monthly tick.
package sim

import (
	"math"

	"github.com/user/nation-builder/internal/tech"
	"github.com/user/nation-builder/internal/types"
)

// Snapshot is the state tuple every transition reads and returns
type Snapshot struct {
	Resources  types.Resources
	Natural    types.NaturalResources
	Population types.Population
	Techs      []string
	Year       int
	Month      int
}

// FromState copies the simulation fields out of a nation
func FromState(s *types.NationState) Snapshot {
	return Snapshot{
		Resources:  s.Resources,
		Natural:    s.NaturalResources,
		Population: s.Population,
		Techs:      append([]string(nil), s.UnlockedTechs...),
		Year:       s.Year,
		Month:      s.Month,
	}
}

// ApplyTo writes the snapshot back into a nation, including the derived era
func (s Snapshot) ApplyTo(state *types.NationState) {
	state.Resources = s.Resources
	state.NaturalResources = s.Natural
	state.Population = s.Population
	state.UnlockedTechs = append([]string(nil), s.Techs...)
	state.Year = s.Year
	state.Month = s.Month
	state.CurrentEra = EraForYear(s.Year).ID
}

func (s Snapshot) clone() Snapshot {
	s.Techs = append([]string(nil), s.Techs...)
	return s
}

func (s Snapshot) hasTech(id string) bool {
	for _, t := range s.Techs {
		if t == id {
			return true
		}
	}
	return false
}

// Engine runs transitions against a tech graph
type Engine struct {
	Graph *tech.Graph
}

// NewEngine creates an engine over graph
func NewEngine(graph *tech.Graph) *Engine {
	return &Engine{Graph: graph}
}

// Research unlocks techID, applying its effects and research cost.
// ok is false when the tech is unknown, already unlocked or its prerequisites are missing.
func (e *Engine) Research(s Snapshot, techID string) (Snapshot, bool) {
	if s.hasTech(techID) {
		return s, false
	}
	node, exists := e.Graph.FindTech(techID)
	if !exists || !e.Graph.IsAvailable(techID, tech.Set(s.Techs)) {
		return s, false
	}

	next := s.clone()

	// Apply effects
	for _, effect := range node.ParsedEffects() {
		current, _ := next.Resources.Get(effect.Stat)
		next.Resources.Set(effect.Stat, current+effect.StatDelta())
	}

	// Charge research cost
	for _, cost := range ResearchCost(techID, EraForYear(s.Year).ID) {
		current, _ := next.Resources.Get(cost.Stat)
		next.Resources.Set(cost.Stat, current-cost.Amount)
	}

	next.Resources = ClampResources(next.Resources)
	next.Techs = append(next.Techs, techID)
	return next, true
}

// GrowthModifier returns the investment multiplier the unlocked techs give stat
func (e *Engine) GrowthModifier(techs []string, stat types.Stat) float64 {
	modifier := 1.0
	for _, id := range techs {
		node, ok := e.Graph.FindTech(id)
		if !ok {
			continue
		}
		for _, effect := range node.ParsedEffects() {
			if effect.Stat == stat {
				modifier += effect.Value * 0.5
			}
		}
	}
	return math.Max(modifier, minGrowthModifier)
}

// GrowthRate returns the fraction of the current value an investment in stat adds
func (e *Engine) GrowthRate(techs []string, stat types.Stat) float64 {
	return math.Min(baseGrowthRate*e.GrowthModifier(techs, stat), maxGrowthRate)
}

// Invest grows stat in exchange for natural resources.
// ok is false when the stat is unknown or any stockpile cannot cover the cost.
func (e *Engine) Invest(s Snapshot, stat types.Stat) (Snapshot, bool) {
	cost, known := InvestmentCost(stat)
	if !known || !s.Natural.Covers(cost) {
		return s, false
	}

	next := s.clone()
	current, _ := next.Resources.Get(stat)
	growth := current * e.GrowthRate(s.Techs, stat)
	next.Resources.Set(stat, math.Min(current+growth, statCap))
	next.Natural = next.Natural.Add(cost.Negate())
	next.Population.Mood = math.Min(next.Population.Mood+investMoodBonus, moodCap)
	return next, true
}

// DistributeLabor moves delta adults into (positive) or out of (negative) role.
func (e *Engine) DistributeLabor(s Snapshot, role types.Role, delta int) (Snapshot, bool) {
	count, known := s.Population.RoleCount(role)
	if !known || delta == 0 {
		return s, false
	}
	if delta > 0 && delta > s.Population.Unassigned() {
		return s, false
	}
	if delta < 0 && -delta > count {
		return s, false
	}

	next := s.clone()
	next.Population.SetRoleCount(role, count+delta)
	return next, true
}

// AdvanceMonth runs one month of population, food and labor.
// December only rolls into a new year when canAdvanceYear is true.
func (e *Engine) AdvanceMonth(s Snapshot, canAdvanceYear bool) (Snapshot, types.MonthReport) {
	next := s.clone()
	var report types.MonthReport
	wasDecember := s.Month >= 12

	// Calendar
	if s.Month+1 > 12 {
		if canAdvanceYear {
			next.Month = 1
			next.Year = s.Year + 1
			report.RolledOver = true
		} else {
			next.Month = 12
		}
	} else {
		next.Month = s.Month + 1
	}

	p := &next.Population
	p.MonthsPassed++

	// Births and coming of age
	report.Births = p.Women * birthRatePct / 100
	p.Children += report.Births
	report.CameOfAge = p.Children * comingOfAgePct / 100
	p.Children -= report.CameOfAge
	p.Men += report.CameOfAge / 2
	p.Women += report.CameOfAge - report.CameOfAge/2

	// Annual attrition
	if wasDecember {
		before := p.Total()
		p.Men = p.Men * annualSurvivePct / 100
		p.Women = p.Women * annualSurvivePct / 100
		p.Children = p.Children * annualSurvivePct / 100
		report.AttritionLosses = before - p.Total()
		rebalanceRoles(p)
	}

	// Food
	consumption := int64(p.Total() * foodPerHead)
	report.FoodConsumed = consumption
	if next.Natural.Food >= consumption {
		next.Natural.Food -= consumption
		p.Mood = math.Min(p.Mood+fedMoodBonus, moodCap)
	} else {
		shortage := consumption - next.Natural.Food
		report.FoodShortage = shortage
		report.FoodConsumed = next.Natural.Food
		next.Natural.Food = 0

		penalty := math.Floor(float64(shortage) / float64(consumption) * 10)
		report.MoodPenalty = penalty
		p.Mood = math.Max(p.Mood-penalty, 0)

		if penalty > starvationGate {
			rate := int(penalty)
			before := p.Total()
			p.Children -= p.Children * rate / 100
			p.Men -= p.Men * rate / 200
			p.Women -= p.Women * rate / 200
			report.StarvationDeaths = before - p.Total()
			rebalanceRoles(p)
		}
	}

	// Labor output
	next.Natural.Food += int64(p.Workers * workerFood)
	next.Natural.Wood += int64(p.Workers * workerWood)
	next.Natural.Minerals += int64(p.Workers * workerMinerals)
	next.Natural.Water += int64(p.Workers * workerWater)

	r := &next.Resources
	r.Stability = math.Min(r.Stability+float64(p.Scientists)*scientistStability+float64(p.Soldiers)*soldierStability, statCap)
	r.Culture = math.Min(r.Culture+float64(p.Scientists)*scientistCulture, statCap)
	r.Military = math.Min(r.Military+float64(p.Soldiers)*soldierMilitary, statCap)

	return next, report
}

// rebalanceRoles scales role counts down proportionally when they exceed the adults left
func rebalanceRoles(p *types.Population) {
	assigned := p.Assigned()
	adults := p.Adults()
	if assigned <= adults || assigned == 0 {
		return
	}
	p.Workers = p.Workers * adults / assigned
	p.Soldiers = p.Soldiers * adults / assigned
	p.Scientists = p.Scientists * adults / assigned
}

func clampStat(v float64) float64 {
	return math.Max(0, math.Min(v, statCap))
}

// ClampResources bounds every stat to [0,100]
func ClampResources(r types.Resources) types.Resources {
	return types.Resources{
		Stability: clampStat(r.Stability),
		Economy:   clampStat(r.Economy),
		Military:  clampStat(r.Military),
		Diplomacy: clampStat(r.Diplomacy),
		Culture:   clampStat(r.Culture),
	}
}
