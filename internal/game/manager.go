package game

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/user/nation-builder/config"
	"github.com/user/nation-builder/internal/interfaces"
	"github.com/user/nation-builder/internal/objective"
	"github.com/user/nation-builder/internal/sim"
	"github.com/user/nation-builder/internal/tech"
	"github.com/user/nation-builder/internal/types"
	"go.uber.org/zap"
)

// ResearchNoticeDuration is how long a research notice stays active
const ResearchNoticeDuration = 3 * time.Second

// NationManager owns one player's nation state and its mutating operations
type NationManager struct {
	state      *types.NationState
	stateLock  sync.RWMutex
	storage    *GameStateStorage
	config     config.GameConfig
	engine     *sim.Engine
	objectives *objective.Generator
	Logger     *zap.Logger

	// Clock returns the current time, replaced in tests
	Clock func() time.Time

	observerLock sync.Mutex
	observers    map[int]interfaces.StateObserver
	nextObserver int
}

// Ensure NationManager satisfies the interfaces.NationController interface
var _ interfaces.NationController = (*NationManager)(nil)

// NewNationManager creates a nation manager for playerID. The nation is
// loaded from cfg.Game.SavePath when a save exists; an empty path disables
// persistence. A nil logger discards log output.
func NewNationManager(cfg config.Config, graph *tech.Graph, playerID string, logger *zap.Logger) *NationManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	nm := &NationManager{
		config:     cfg.Game,
		engine:     sim.NewEngine(graph),
		objectives: objective.NewGenerator(NewDiceRoller()),
		Logger:     logger,
		Clock:      time.Now,
		observers:  make(map[int]interfaces.StateObserver),
	}

	if cfg.Game.SavePath != "" {
		nm.storage = NewGameStateStorage(cfg.Game.SavePath)
	}

	// Try to load existing state
	if nm.storage != nil {
		state, err := nm.storage.LoadState()
		switch {
		case err == nil:
			if state.PlayerID == "" || state.PlayerID == playerID {
				state.PlayerID = playerID
				nm.state = state
			}
		case !errors.Is(err, ErrNoSavedState):
			nm.Logger.Warn("Failed to load nation state", zap.Error(err))
		}
	}

	if nm.state == nil {
		nm.state = nm.freshState(playerID)
	} else if len(nm.state.YearlyObjectives) == 0 {
		nm.state.YearlyObjectives = nm.objectives.Generate(nm.state, nm.state.Year)
		nm.recomputeGate()
	}

	return nm
}

// SetRandomizer replaces the source of objective randomness. The current
// batch is kept; the new source is used from the next reset or rollover.
func (nm *NationManager) SetRandomizer(rng interfaces.Randomizer) {
	nm.stateLock.Lock()
	nm.objectives = objective.NewGenerator(rng)
	nm.stateLock.Unlock()
}

// freshState builds a new nation with its first objective batch
func (nm *NationManager) freshState(playerID string) *types.NationState {
	state := NewNationState(nm.config, playerID)
	state.YearlyObjectives = nm.objectives.Generate(state, state.Year)
	state.CanAdvanceYear = objective.AllCompleted(state.YearlyObjectives)
	return state
}

// saveState persists the current nation state
func (nm *NationManager) saveState() {
	if nm.storage == nil {
		return
	}
	if err := nm.storage.SaveState(nm.state); err != nil {
		nm.Logger.Error("Failed to save nation state", zap.Error(err))
	}
}

// recomputeGate re-evaluates objectives and the year gate
func (nm *NationManager) recomputeGate() {
	nm.state.YearlyObjectives = objective.Evaluate(nm.state.YearlyObjectives, nm.state)
	nm.state.CanAdvanceYear = objective.AllCompleted(nm.state.YearlyObjectives)
}

// commit finishes a successful mutation: touches, persists and returns a copy to publish.
// Callers must hold the write lock.
func (nm *NationManager) commit() *types.NationState {
	nm.state.UpdatedAt = nm.Clock()
	nm.saveState()
	return nm.state.Clone()
}

// publish notifies observers, called without holding the state lock
func (nm *NationManager) publish(state *types.NationState) {
	nm.observerLock.Lock()
	observers := make([]interfaces.StateObserver, 0, len(nm.observers))
	for _, o := range nm.observers {
		observers = append(observers, o)
	}
	nm.observerLock.Unlock()

	for _, o := range observers {
		o.StateChanged(state)
	}
}

// Subscribe registers an observer of successful mutations
func (nm *NationManager) Subscribe(observer interfaces.StateObserver) func() {
	nm.observerLock.Lock()
	defer nm.observerLock.Unlock()

	id := nm.nextObserver
	nm.nextObserver++
	nm.observers[id] = observer

	return func() {
		nm.observerLock.Lock()
		delete(nm.observers, id)
		nm.observerLock.Unlock()
	}
}

// PlayerID returns the owning player's id
func (nm *NationManager) PlayerID() string {
	nm.stateLock.RLock()
	defer nm.stateLock.RUnlock()
	return nm.state.PlayerID
}

// State returns a copy of the current nation state
func (nm *NationManager) State() *types.NationState {
	nm.stateLock.RLock()
	defer nm.stateLock.RUnlock()
	return nm.state.Clone()
}

// Graph returns the tech graph the nation researches against
func (nm *NationManager) Graph() *tech.Graph {
	return nm.engine.Graph
}

// AvailableTechs lists the technologies that can be researched right now
func (nm *NationManager) AvailableTechs() []tech.Node {
	nm.stateLock.RLock()
	defer nm.stateLock.RUnlock()
	return nm.engine.Graph.Available(tech.Set(nm.state.UnlockedTechs))
}

// GrowthRate returns the growth an investment in stat would currently yield
func (nm *NationManager) GrowthRate(stat types.Stat) float64 {
	nm.stateLock.RLock()
	defer nm.stateLock.RUnlock()
	return nm.engine.GrowthRate(nm.state.UnlockedTechs, stat)
}

// SetNation names the nation
func (nm *NationManager) SetNation(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}

	nm.stateLock.Lock()
	nm.state.NationName = name
	published := nm.commit()
	nm.stateLock.Unlock()

	nm.Logger.Info("Nation named", zap.String("player_id", published.PlayerID), zap.String("nation", name))
	nm.publish(published)
	return true
}

// SetLeader names the nation's leader
func (nm *NationManager) SetLeader(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}

	nm.stateLock.Lock()
	nm.state.LeaderName = name
	published := nm.commit()
	nm.stateLock.Unlock()

	nm.Logger.Info("Leader named", zap.String("player_id", published.PlayerID), zap.String("leader", name))
	nm.publish(published)
	return true
}

// SelectTech researches a technology
func (nm *NationManager) SelectTech(techID string) bool {
	nm.stateLock.Lock()
	next, ok := nm.engine.Research(sim.FromState(nm.state), techID)
	if !ok {
		nm.stateLock.Unlock()
		nm.Logger.Debug("Research rejected", zap.String("tech_id", techID))
		return false
	}

	next.ApplyTo(nm.state)
	now := nm.Clock()
	nm.state.LastResearched = &types.ResearchNotice{
		TechID:       techID,
		ResearchedAt: now,
		ExpiresAt:    now.Add(ResearchNoticeDuration),
	}
	nm.recomputeGate()
	published := nm.commit()
	nm.stateLock.Unlock()

	nm.Logger.Info("Technology researched",
		zap.String("player_id", published.PlayerID),
		zap.String("tech_id", techID),
		zap.Int("unlocked", len(published.UnlockedTechs)))
	nm.publish(published)
	return true
}

// InvestInResource invests natural resources into a national stat
func (nm *NationManager) InvestInResource(stat types.Stat) bool {
	nm.stateLock.Lock()
	next, ok := nm.engine.Invest(sim.FromState(nm.state), stat)
	if !ok {
		nm.stateLock.Unlock()
		nm.Logger.Debug("Investment rejected", zap.String("stat", string(stat)))
		return false
	}

	next.ApplyTo(nm.state)
	nm.recomputeGate()
	published := nm.commit()
	nm.stateLock.Unlock()

	value, _ := published.Resources.Get(stat)
	nm.Logger.Info("Investment made",
		zap.String("player_id", published.PlayerID),
		zap.String("stat", string(stat)),
		zap.Float64("value", value))
	nm.publish(published)
	return true
}

// DistributePeople moves amount adults into (positive) or out of (negative) a role
func (nm *NationManager) DistributePeople(role types.Role, amount int) bool {
	nm.stateLock.Lock()
	next, ok := nm.engine.DistributeLabor(sim.FromState(nm.state), role, amount)
	if !ok {
		nm.stateLock.Unlock()
		nm.Logger.Debug("Labor change rejected", zap.String("role", string(role)), zap.Int("amount", amount))
		return false
	}

	next.ApplyTo(nm.state)
	nm.recomputeGate()
	published := nm.commit()
	nm.stateLock.Unlock()

	nm.Logger.Info("Labor distributed",
		zap.String("player_id", published.PlayerID),
		zap.String("role", string(role)),
		zap.Int("amount", amount))
	nm.publish(published)
	return true
}

// AdvanceMonth runs one month of simulation. A December advance only rolls
// into a new year when every objective is completed; the new year gets a
// fresh objective batch.
func (nm *NationManager) AdvanceMonth() types.MonthReport {
	nm.stateLock.Lock()
	next, report := nm.engine.AdvanceMonth(sim.FromState(nm.state), nm.state.CanAdvanceYear)
	next.ApplyTo(nm.state)

	if report.RolledOver {
		nm.state.YearlyObjectives = nm.objectives.Generate(nm.state, nm.state.Year)
		nm.state.CanAdvanceYear = false
	} else {
		nm.recomputeGate()
	}
	published := nm.commit()
	nm.stateLock.Unlock()

	nm.Logger.Info("Month advanced",
		zap.String("player_id", published.PlayerID),
		zap.Int("year", published.Year),
		zap.Int("month", published.Month),
		zap.Bool("rolled_over", report.RolledOver),
		zap.Int("population", published.Population.Total()),
		zap.Bool("can_advance_year", published.CanAdvanceYear))
	if report.FoodShortage > 0 {
		nm.Logger.Warn("Food shortage",
			zap.Int64("shortage", report.FoodShortage),
			zap.Float64("mood_penalty", report.MoodPenalty),
			zap.Int("starvation_deaths", report.StarvationDeaths))
	}
	nm.publish(published)
	return report
}

// ResetGame replaces the nation with a fresh one, keeping the player id
func (nm *NationManager) ResetGame() {
	nm.stateLock.Lock()
	nm.state = nm.freshState(nm.state.PlayerID)
	published := nm.commit()
	nm.stateLock.Unlock()

	nm.Logger.Info("Game reset", zap.String("player_id", published.PlayerID))
	nm.publish(published)
}

// CanAfford reports whether the stockpiles cover cost
func (nm *NationManager) CanAfford(cost types.NaturalResources) bool {
	nm.stateLock.RLock()
	defer nm.stateLock.RUnlock()
	return nm.state.NaturalResources.Covers(cost)
}

// ApplyRemoteState overwrites the simulation sub-state with a snapshot from the shared store
func (nm *NationManager) ApplyRemoteState(snapshot types.NationSnapshot) {
	nm.stateLock.Lock()
	nm.state.Resources = snapshot.Resources
	nm.state.NaturalResources = snapshot.NaturalResources
	nm.state.Population = snapshot.Population
	nm.state.UnlockedTechs = append([]string(nil), snapshot.UnlockedTechs...)
	nm.state.Year = snapshot.Year
	nm.state.Month = snapshot.Month
	nm.state.YearlyObjectives = append([]types.YearlyObjective(nil), snapshot.YearlyObjectives...)
	normalizeState(nm.state)
	if len(nm.state.YearlyObjectives) == 0 {
		nm.state.YearlyObjectives = nm.objectives.Generate(nm.state, nm.state.Year)
	}
	nm.recomputeGate()
	published := nm.commit()
	nm.stateLock.Unlock()

	nm.Logger.Info("Remote state applied",
		zap.String("player_id", published.PlayerID),
		zap.Int("year", published.Year),
		zap.Int("month", published.Month))
	nm.publish(published)
}

// ApplyDelta applies a cross-nation effect such as a settled trade or a battle.
// The remote ledger has already committed the change, so out-of-range values
// are clamped rather than rejected. Soldier losses also remove the fallen adults.
func (nm *NationManager) ApplyDelta(delta types.NationDelta) bool {
	if delta.IsZero() {
		return false
	}

	nm.stateLock.Lock()
	s := nm.state

	// Stats
	for stat, amount := range delta.Resources {
		current, ok := s.Resources.Get(stat)
		if !ok {
			continue
		}
		s.Resources.Set(stat, current+amount)
	}
	s.Resources = sim.ClampResources(s.Resources)

	// Stockpiles
	natural := s.NaturalResources.Add(delta.NaturalResources)
	for _, kind := range types.NaturalResourceKinds {
		if v, _ := natural.Get(kind); v < 0 {
			natural.Set(kind, 0)
		}
	}
	s.NaturalResources = natural

	// Soldiers
	if delta.Soldiers < 0 {
		losses := -delta.Soldiers
		if losses > s.Population.Soldiers {
			losses = s.Population.Soldiers
		}
		s.Population.Soldiers -= losses
		fromMen := losses
		if fromMen > s.Population.Men {
			fromMen = s.Population.Men
		}
		s.Population.Men -= fromMen
		s.Population.Women -= losses - fromMen
	} else if delta.Soldiers > 0 {
		added := delta.Soldiers
		if added > s.Population.Unassigned() {
			added = s.Population.Unassigned()
		}
		s.Population.Soldiers += added
	}

	nm.recomputeGate()
	published := nm.commit()
	nm.stateLock.Unlock()

	nm.Logger.Info("Delta applied",
		zap.String("player_id", published.PlayerID),
		zap.Int("soldiers", delta.Soldiers))
	nm.publish(published)
	return true
}
