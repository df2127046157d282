package types

import "time"

// Stat names one of the five national capability scores
type Stat string

const (
	StatStability Stat = "stability"
	StatEconomy   Stat = "economy"
	StatMilitary  Stat = "military"
	StatDiplomacy Stat = "diplomacy"
	StatCulture   Stat = "culture"
)

// Stats lists every national stat in display order
var Stats = []Stat{StatStability, StatEconomy, StatMilitary, StatDiplomacy, StatCulture}

// NaturalResource names one of the raw stockpiles
type NaturalResource string

const (
	ResourceWood     NaturalResource = "wood"
	ResourceMinerals NaturalResource = "minerals"
	ResourceFood     NaturalResource = "food"
	ResourceWater    NaturalResource = "water"
	ResourceLand     NaturalResource = "land"
)

// NaturalResourceKinds lists every stockpile in display order
var NaturalResourceKinds = []NaturalResource{ResourceWood, ResourceMinerals, ResourceFood, ResourceWater, ResourceLand}

// Role names a labor assignment for adults
type Role string

const (
	RoleWorkers    Role = "workers"
	RoleSoldiers   Role = "soldiers"
	RoleScientists Role = "scientists"
)

// Roles lists every labor role
var Roles = []Role{RoleWorkers, RoleSoldiers, RoleScientists}

// Resources holds the normalized national capability scores, each in [0,100]
type Resources struct {
	Stability float64 `json:"stability"`
	Economy   float64 `json:"economy"`
	Military  float64 `json:"military"`
	Diplomacy float64 `json:"diplomacy"`
	Culture   float64 `json:"culture"`
}

// Get returns the value of a stat, ok is false for unknown stats
func (r Resources) Get(stat Stat) (float64, bool) {
	switch stat {
	case StatStability:
		return r.Stability, true
	case StatEconomy:
		return r.Economy, true
	case StatMilitary:
		return r.Military, true
	case StatDiplomacy:
		return r.Diplomacy, true
	case StatCulture:
		return r.Culture, true
	}
	return 0, false
}

// Set assigns a stat value, unknown stats are ignored
func (r *Resources) Set(stat Stat, value float64) {
	switch stat {
	case StatStability:
		r.Stability = value
	case StatEconomy:
		r.Economy = value
	case StatMilitary:
		r.Military = value
	case StatDiplomacy:
		r.Diplomacy = value
	case StatCulture:
		r.Culture = value
	}
}

// NaturalResources holds the unbounded, non-negative stockpiles
type NaturalResources struct {
	Wood     int64 `json:"wood"`
	Minerals int64 `json:"minerals"`
	Food     int64 `json:"food"`
	Water    int64 `json:"water"`
	Land     int64 `json:"land"`
}

// Get returns a stockpile value, ok is false for unknown kinds
func (n NaturalResources) Get(kind NaturalResource) (int64, bool) {
	switch kind {
	case ResourceWood:
		return n.Wood, true
	case ResourceMinerals:
		return n.Minerals, true
	case ResourceFood:
		return n.Food, true
	case ResourceWater:
		return n.Water, true
	case ResourceLand:
		return n.Land, true
	}
	return 0, false
}

// Set assigns a stockpile value, unknown kinds are ignored
func (n *NaturalResources) Set(kind NaturalResource, value int64) {
	switch kind {
	case ResourceWood:
		n.Wood = value
	case ResourceMinerals:
		n.Minerals = value
	case ResourceFood:
		n.Food = value
	case ResourceWater:
		n.Water = value
	case ResourceLand:
		n.Land = value
	}
}

// Add returns the element-wise sum of two stockpile sets
func (n NaturalResources) Add(other NaturalResources) NaturalResources {
	return NaturalResources{
		Wood:     n.Wood + other.Wood,
		Minerals: n.Minerals + other.Minerals,
		Food:     n.Food + other.Food,
		Water:    n.Water + other.Water,
		Land:     n.Land + other.Land,
	}
}

// Negate returns the element-wise negation
func (n NaturalResources) Negate() NaturalResources {
	return NaturalResources{
		Wood:     -n.Wood,
		Minerals: -n.Minerals,
		Food:     -n.Food,
		Water:    -n.Water,
		Land:     -n.Land,
	}
}

// Covers reports whether every field of n is at least the matching field of cost
func (n NaturalResources) Covers(cost NaturalResources) bool {
	return n.Wood >= cost.Wood &&
		n.Minerals >= cost.Minerals &&
		n.Food >= cost.Food &&
		n.Water >= cost.Water &&
		n.Land >= cost.Land
}

// NonNegative reports whether no stockpile is below zero
func (n NaturalResources) NonNegative() bool {
	return n.Covers(NaturalResources{})
}

// IsZero reports whether every stockpile is zero
func (n NaturalResources) IsZero() bool {
	return n == NaturalResources{}
}

// Population holds head counts, labor assignments and mood
type Population struct {
	Men          int     `json:"men"`
	Women        int     `json:"women"`
	Children     int     `json:"children"`
	Workers      int     `json:"workers"`
	Soldiers     int     `json:"soldiers"`
	Scientists   int     `json:"scientists"`
	Mood         float64 `json:"mood"`
	MonthsPassed int     `json:"months_passed"`
}

// Total returns men + women + children
func (p Population) Total() int {
	return p.Men + p.Women + p.Children
}

// Adults returns men + women
func (p Population) Adults() int {
	return p.Men + p.Women
}

// Assigned returns the number of adults holding a role
func (p Population) Assigned() int {
	return p.Workers + p.Soldiers + p.Scientists
}

// Unassigned returns the adults without a role
func (p Population) Unassigned() int {
	return p.Adults() - p.Assigned()
}

// RoleCount returns the head count of a role, ok is false for unknown roles
func (p Population) RoleCount(role Role) (int, bool) {
	switch role {
	case RoleWorkers:
		return p.Workers, true
	case RoleSoldiers:
		return p.Soldiers, true
	case RoleScientists:
		return p.Scientists, true
	}
	return 0, false
}

// SetRoleCount assigns the head count of a role, unknown roles are ignored
func (p *Population) SetRoleCount(role Role, count int) {
	switch role {
	case RoleWorkers:
		p.Workers = count
	case RoleSoldiers:
		p.Soldiers = count
	case RoleScientists:
		p.Scientists = count
	}
}

// ObjectiveType tags which slice of state an objective reads
type ObjectiveType string

const (
	ObjectiveResources        ObjectiveType = "resources"
	ObjectivePopulation       ObjectiveType = "population"
	ObjectiveNaturalResources ObjectiveType = "naturalResources"
	ObjectiveTech             ObjectiveType = "tech"
)

// Target keys for population and tech objectives
const (
	TargetPopulationTotal = "total"
	TargetPopulationMood  = "mood"
	TargetTechCount       = "count"
)

// YearlyObjective is one target the player must reach before the year can end
type YearlyObjective struct {
	Type        ObjectiveType `json:"type"`
	Target      string        `json:"target"`
	Amount      float64       `json:"amount"`
	Description string        `json:"description"`
	Completed   bool          `json:"completed"`
}

// ResearchNotice records the most recently researched technology.
// The presentation layer hides it once ExpiresAt has passed.
type ResearchNotice struct {
	TechID       string    `json:"tech_id"`
	ResearchedAt time.Time `json:"researched_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Active reports whether the notice should still be displayed at now
func (n *ResearchNotice) Active(now time.Time) bool {
	return n != nil && now.Before(n.ExpiresAt)
}

// NationState is the aggregate root of one player's simulation
type NationState struct {
	PlayerID         string            `json:"player_id"`
	NationName       string            `json:"nation_name"`
	LeaderName       string            `json:"leader_name"`
	Resources        Resources         `json:"resources"`
	NaturalResources NaturalResources  `json:"natural_resources"`
	Population       Population        `json:"population"`
	CurrentEra       string            `json:"current_era"`
	Year             int               `json:"year"`
	Month            int               `json:"month"`
	UnlockedTechs    []string          `json:"unlocked_techs"`
	YearlyObjectives []YearlyObjective `json:"yearly_objectives"`
	CanAdvanceYear   bool              `json:"can_advance_year"`
	LastResearched   *ResearchNotice   `json:"last_researched,omitempty"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// HasTech reports whether a technology is unlocked
func (s *NationState) HasTech(id string) bool {
	for _, t := range s.UnlockedTechs {
		if t == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the state
func (s *NationState) Clone() *NationState {
	if s == nil {
		return nil
	}
	c := *s
	c.UnlockedTechs = append([]string(nil), s.UnlockedTechs...)
	c.YearlyObjectives = append([]YearlyObjective(nil), s.YearlyObjectives...)
	if s.LastResearched != nil {
		notice := *s.LastResearched
		c.LastResearched = &notice
	}
	return &c
}

// Snapshot extracts the simulation sub-state shared with other players
func (s *NationState) Snapshot() NationSnapshot {
	return NationSnapshot{
		Resources:        s.Resources,
		NaturalResources: s.NaturalResources,
		Population:       s.Population,
		UnlockedTechs:    append([]string(nil), s.UnlockedTechs...),
		Year:             s.Year,
		Month:            s.Month,
		CurrentEra:       s.CurrentEra,
		YearlyObjectives: append([]YearlyObjective(nil), s.YearlyObjectives...),
		CanAdvanceYear:   s.CanAdvanceYear,
	}
}

// NationSnapshot is the simulation sub-state written to a player's slice of a game
type NationSnapshot struct {
	Resources        Resources         `json:"resources"`
	NaturalResources NaturalResources  `json:"naturalResources"`
	Population       Population        `json:"population"`
	UnlockedTechs    []string          `json:"unlockedTechs"`
	Year             int               `json:"year"`
	Month            int               `json:"month"`
	CurrentEra       string            `json:"era"`
	YearlyObjectives []YearlyObjective `json:"yearlyObjectives"`
	CanAdvanceYear   bool              `json:"canAdvanceYear"`
}

// NationDelta is a cross-nation effect applied to a nation from outside its own actions
type NationDelta struct {
	Resources        map[Stat]float64 `json:"resources,omitempty"`
	NaturalResources NaturalResources `json:"naturalResources"`
	Soldiers         int              `json:"soldiers"`
}

// IsZero reports whether the delta changes nothing
func (d NationDelta) IsZero() bool {
	for _, v := range d.Resources {
		if v != 0 {
			return false
		}
	}
	return d.NaturalResources.IsZero() && d.Soldiers == 0
}

// MonthReport summarizes what one month advance did to a nation
type MonthReport struct {
	RolledOver       bool    `json:"rolled_over"`
	Births           int     `json:"births"`
	CameOfAge        int     `json:"came_of_age"`
	AttritionLosses  int     `json:"attrition_losses"`
	FoodConsumed     int64   `json:"food_consumed"`
	FoodShortage     int64   `json:"food_shortage"`
	MoodPenalty      float64 `json:"mood_penalty"`
	StarvationDeaths int     `json:"starvation_deaths"`
}
