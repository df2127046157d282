package interfaces

import "github.com/user/nation-builder/internal/types"

// NationController defines the mutating operations of one player's nation
type NationController interface {
	PlayerID() string
	State() *types.NationState
	SetNation(name string) bool
	SetLeader(name string) bool
	SelectTech(techID string) bool
	InvestInResource(stat types.Stat) bool
	DistributePeople(role types.Role, amount int) bool
	AdvanceMonth() types.MonthReport
	ResetGame()
	CanAfford(cost types.NaturalResources) bool
	ApplyRemoteState(snapshot types.NationSnapshot)
	ApplyDelta(delta types.NationDelta) bool
	Subscribe(observer StateObserver) (cancel func())
}

// StateObserver is notified after every successful nation mutation
type StateObserver interface {
	StateChanged(state *types.NationState)
}

// StateObserverFunc adapts a function to StateObserver
type StateObserverFunc func(state *types.NationState)

// StateChanged calls f(state)
func (f StateObserverFunc) StateChanged(state *types.NationState) {
	f(state)
}

// EventSink receives game events surfaced by the sync layer
type EventSink interface {
	GameEvent(event types.GameEvent)
}

// Randomizer supplies the random choices made by the objective engine
type Randomizer interface {
	Intn(n int) int
}

// IdentityProvider supplies the authenticated player identity
type IdentityProvider interface {
	PlayerID() string
	Email() string
}
