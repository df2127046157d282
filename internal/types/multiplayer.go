package types

import "time"

// Stance is one player's diplomatic posture towards another
type Stance string

const (
	StanceNeutral  Stance = "neutral"
	StanceAlliance Stance = "alliance"
	StanceRivalry  Stance = "rivalry"
)

// Valid reports whether the stance is one of the known values
func (s Stance) Valid() bool {
	switch s {
	case StanceNeutral, StanceAlliance, StanceRivalry:
		return true
	}
	return false
}

// TradeStatus is the lifecycle state of a trade offer
type TradeStatus string

const (
	TradePending  TradeStatus = "pending"
	TradeAccepted TradeStatus = "accepted"
	TradeRejected TradeStatus = "rejected"
)

// GameStatus is the lifecycle state of a multiplayer game
type GameStatus string

const (
	GameLobby     GameStatus = "lobby"
	GameActive    GameStatus = "active"
	GameAbandoned GameStatus = "abandoned"
)

// PlayerInfo is the roster entry of a player inside a game
type PlayerInfo struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Nation   string    `json:"nation"`
	Leader   string    `json:"leader"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"lastSeen"`
}

// TradeOffer proposes an exchange of natural resources between two players
type TradeOffer struct {
	ID        string           `json:"id"`
	From      string           `json:"from"`
	To        string           `json:"to"`
	Offered   NaturalResources `json:"offered"`
	Requested NaturalResources `json:"requested"`
	Status    TradeStatus      `json:"status"`
	CreatedAt time.Time        `json:"createdAt"`
}

// War records a declared conflict between two players
type War struct {
	ID         string    `json:"id"`
	Attacker   string    `json:"attacker"`
	Defender   string    `json:"defender"`
	DeclaredAt time.Time `json:"declaredAt"`
	Active     bool      `json:"active"`
}

// Involves reports whether the war is between the two given players
func (w War) Involves(a, b string) bool {
	return (w.Attacker == a && w.Defender == b) || (w.Attacker == b && w.Defender == a)
}

// BattleOutcome is the attacker's result of a battle
type BattleOutcome string

const (
	BattleWin  BattleOutcome = "win"
	BattleLoss BattleOutcome = "loss"
	BattleDraw BattleOutcome = "draw"
)

// BattleRecord is a resolved attack stored in the shared game
type BattleRecord struct {
	ID             string        `json:"id"`
	Attacker       string        `json:"attacker"`
	Defender       string        `json:"defender"`
	AttackStrength float64       `json:"attackStrength"`
	Outcome        BattleOutcome `json:"outcome"`
	AttackerDelta  NationDelta   `json:"attackerDelta"`
	DefenderDelta  NationDelta   `json:"defenderDelta"`
	At             time.Time     `json:"at"`
}

// GameEventType tags entries in the shared event log
type GameEventType string

const (
	EventPlayerJoined  GameEventType = "player_joined"
	EventTradeOffered  GameEventType = "trade_offered"
	EventTradeAccepted GameEventType = "trade_accepted"
	EventTradeRejected GameEventType = "trade_rejected"
	EventStanceChanged GameEventType = "stance_changed"
	EventWarDeclared   GameEventType = "war_declared"
	EventBattle        GameEventType = "battle"
	EventAction        GameEventType = "action"
)

// GameEvent is an append-only log entry visible to every player of a game
type GameEvent struct {
	ID        string         `json:"id"`
	GameID    string         `json:"gameId"`
	Type      GameEventType  `json:"type"`
	From      string         `json:"from"`
	To        string         `json:"to,omitempty"`
	Message   string         `json:"message"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// GameDocument is the shared aggregate of one multiplayer game
type GameDocument struct {
	Name        string                       `json:"name"`
	HostID      string                       `json:"hostId"`
	Status      GameStatus                   `json:"status"`
	CreatedAt   time.Time                    `json:"createdAt"`
	Players     map[string]PlayerInfo        `json:"players"`
	PlayerData  map[string]NationSnapshot    `json:"playerData"`
	Diplomacy   map[string]map[string]Stance `json:"diplomacy"`
	TradeOffers map[string]TradeOffer        `json:"tradeOffers"`
	Wars        []War                        `json:"wars"`
	Battles     map[string]BattleRecord      `json:"battles"`
}

// SyncState is the coarse health of the multiplayer link
type SyncState string

const (
	SyncIdle    SyncState = "idle"
	SyncSyncing SyncState = "syncing"
	SyncSynced  SyncState = "synced"
	SyncError   SyncState = "error"
)

// SyncStatus is the observable state of a sync session
type SyncStatus struct {
	State        SyncState `json:"state"`
	LastError    string    `json:"lastError,omitempty"`
	LastSyncedAt time.Time `json:"lastSyncedAt"`
}

// DisplayName returns the display name of a player, falling back to its id
func (g GameDocument) DisplayName(playerID string) string {
	if p, ok := g.Players[playerID]; ok {
		if p.Nation != "" {
			return p.Nation
		}
		if p.Name != "" {
			return p.Name
		}
	}
	return playerID
}
