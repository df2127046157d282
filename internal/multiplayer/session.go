package multiplayer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/user/nation-builder/config"
	"github.com/user/nation-builder/internal/conflict"
	"github.com/user/nation-builder/internal/interfaces"
	"github.com/user/nation-builder/internal/store"
	"github.com/user/nation-builder/internal/types"
	"go.uber.org/zap"
)

var (
	ErrNotStarted            = errors.New("session not started")
	ErrAlreadyStarted        = errors.New("session already started")
	ErrNotJoined             = errors.New("player has not joined this game")
	ErrUnknownPlayer         = errors.New("player not found in game")
	ErrSelfTarget            = errors.New("cannot target yourself")
	ErrInvalidStance         = errors.New("invalid diplomatic stance")
	ErrInsufficientResources = errors.New("insufficient resources")
	ErrOfferNotFound         = errors.New("trade offer not found")
	ErrNotYourOffer          = errors.New("trade offer is not addressed to you")
	ErrOfferNotPending       = errors.New("trade offer is no longer pending")
	ErrAlreadyAtWar          = errors.New("already at war")
	ErrNotAtWar              = errors.New("no active war with that player")
	ErrNoDefenderData        = errors.New("defender has not synced a nation yet")
)

// Session keeps one player's nation in sync with a shared game document.
// Local actions apply immediately; remote writes are best-effort and their
// failures only show up in Status.
type Session struct {
	store  store.Store
	nation interfaces.NationController
	sink   interfaces.EventSink
	Logger *zap.Logger
	Clock  func() time.Time

	PushInterval      time.Duration
	HeartbeatInterval time.Duration
	StaleAfter        time.Duration

	mu          sync.RWMutex
	gameID      string
	playerID    string
	isHost      bool
	started     bool
	stopped     bool
	version     int64
	game        types.GameDocument
	seenOffers  map[string]types.TradeStatus
	seenBattles map[string]bool
	events      []types.GameEvent
	status      types.SyncStatus

	cancelSub func()
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// NewSession creates a session for nation over a shared store
func NewSession(s store.Store, nation interfaces.NationController, cfg config.SyncConfig) *Session {
	return &Session{
		store:             s,
		nation:            nation,
		Logger:            zap.NewNop(),
		Clock:             time.Now,
		PushInterval:      seconds(cfg.PushInterval, 30),
		HeartbeatInterval: seconds(cfg.HeartbeatInterval, 60),
		StaleAfter:        seconds(cfg.StaleAfter, 150),
		seenOffers:        make(map[string]types.TradeStatus),
		seenBattles:       make(map[string]bool),
		status:            types.SyncStatus{State: types.SyncIdle},
		stopChan:          make(chan struct{}),
	}
}

func seconds(n, fallback int) time.Duration {
	if n <= 0 {
		n = fallback
	}
	return time.Duration(n) * time.Second
}

// SetEventSink registers a receiver for game events as they are queued
func (s *Session) SetEventSink(sink interfaces.EventSink) {
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
}

// Start joins the sync loop of gameID: hydrate from the shared document,
// push once, subscribe to changes and start the push and heartbeat loops
func (s *Session) Start(ctx context.Context, gameID string) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.mu.Unlock()

	me := s.nation.PlayerID()
	doc, err := s.store.Get(ctx, GamesCollection, gameID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrGameNotFound
	}
	if err != nil {
		s.setStatus(err)
		return fmt.Errorf("failed to load game: %w", err)
	}

	var game types.GameDocument
	if err := doc.Decode(&game); err != nil {
		s.Logger.Warn("Malformed game document, starting empty", zap.String("game_id", gameID), zap.Error(err))
		game = types.GameDocument{}
	}
	normalizeGame(&game)
	if _, ok := game.Players[me]; !ok {
		return ErrNotJoined
	}

	// Hydrate
	s.mu.Lock()
	s.gameID = gameID
	s.playerID = me
	s.isHost = game.HostID == me
	s.version = doc.Version
	s.game = game
	for id, offer := range game.TradeOffers {
		s.seenOffers[id] = offer.Status
	}
	for id := range game.Battles {
		s.seenBattles[id] = true
	}
	s.started = true
	s.mu.Unlock()

	if snapshot, ok := game.PlayerData[me]; ok {
		s.nation.ApplyRemoteState(snapshot)
	}

	s.Logger.Info("Session started",
		zap.String("game_id", gameID),
		zap.String("player_id", me),
		zap.Bool("host", game.HostID == me),
		zap.Int("players", len(game.Players)))

	s.Push(ctx)
	s.Heartbeat(ctx)

	cancel, err := s.store.Subscribe(ctx, GamesCollection, gameID, s.onSnapshot)
	if err != nil {
		s.setStatus(err)
		return fmt.Errorf("failed to subscribe to game: %w", err)
	}
	s.mu.Lock()
	s.cancelSub = cancel
	s.mu.Unlock()

	s.runLoop(s.PushInterval, func() { s.Push(context.Background()) })
	s.runLoop(s.HeartbeatInterval, func() { s.Heartbeat(context.Background()) })
	return nil
}

// runLoop calls fn on every tick until the session stops
func (s *Session) runLoop(interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fn()
			case <-s.stopChan:
				return
			}
		}
	}()
}

// Stop unregisters the subscription, stops the loops and marks the player offline
func (s *Session) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	cancel := s.cancelSub
	gameID, me := s.gameID, s.playerID
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	close(s.stopChan)
	s.wg.Wait()

	if err := s.store.Update(ctx, GamesCollection, gameID, store.Set(playerPath(me)+".online", false)); err != nil {
		s.Logger.Warn("Failed to mark player offline", zap.String("game_id", gameID), zap.Error(err))
	}
	s.Logger.Info("Session stopped", zap.String("game_id", gameID), zap.String("player_id", me))
}

// ids returns the game and player ids, or ErrNotStarted
func (s *Session) ids() (string, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started || s.stopped {
		return "", "", ErrNotStarted
	}
	return s.gameID, s.playerID, nil
}

// Push writes the nation's full simulation sub-state to its slice of the game
func (s *Session) Push(ctx context.Context) {
	gameID, me, err := s.ids()
	if err != nil {
		return
	}
	s.markSyncing()

	state := s.nation.State()
	updates := []store.Update{store.Set(playerDataPath(me), state.Snapshot())}
	if state.NationName != "" {
		updates = append(updates, store.Set(playerPath(me)+".nation", state.NationName))
	}
	if state.LeaderName != "" {
		updates = append(updates, store.Set(playerPath(me)+".leader", state.LeaderName))
	}

	err = s.store.Update(ctx, GamesCollection, gameID, updates...)
	if err != nil {
		s.Logger.Error("Push failed", zap.String("game_id", gameID), zap.Error(err))
	}
	s.setStatus(err)
}

// Heartbeat marks the local player online
func (s *Session) Heartbeat(ctx context.Context) {
	gameID, me, err := s.ids()
	if err != nil {
		return
	}
	err = s.store.Update(ctx, GamesCollection, gameID,
		store.Set(playerPath(me)+".online", true),
		store.Set(playerPath(me)+".lastSeen", s.Clock().UTC()),
	)
	if err != nil {
		s.Logger.Warn("Heartbeat failed", zap.String("game_id", gameID), zap.Error(err))
	}
	s.setStatus(err)
}

// pendingDelta is a cross-nation effect found while diffing a snapshot
type pendingDelta struct {
	reason string
	delta  types.NationDelta
}

// onSnapshot diffs a remote snapshot against the last one and applies what concerns this player
func (s *Session) onSnapshot(doc *store.Document) {
	var game types.GameDocument
	if err := doc.Decode(&game); err != nil {
		s.Logger.Warn("Ignoring malformed game snapshot", zap.String("game_id", doc.ID), zap.Error(err))
		s.setStatus(err)
		return
	}
	normalizeGame(&game)

	s.mu.Lock()
	if !s.started || s.stopped || doc.Version <= s.version {
		s.mu.Unlock()
		return
	}
	me := s.playerID
	now := s.Clock().UTC()
	prev := s.game
	var events []types.GameEvent
	var deltas []pendingDelta

	newEvent := func(typ types.GameEventType, from, message string, payload map[string]any) {
		events = append(events, types.GameEvent{
			ID:        uuid.New().String(),
			GameID:    s.gameID,
			Type:      typ,
			From:      from,
			To:        me,
			Message:   message,
			Payload:   payload,
			Timestamp: now,
		})
	}

	// Roster
	for id, p := range game.Players {
		if _, known := prev.Players[id]; !known && id != me {
			newEvent(types.EventPlayerJoined, id, fmt.Sprintf("%s joined the game", p.Name), nil)
		}
	}

	// Diplomacy towards me
	for from, row := range game.Diplomacy {
		if from == me {
			continue
		}
		if stance, ok := row[me]; ok && stance != prev.Diplomacy[from][me] {
			newEvent(types.EventStanceChanged, from,
				fmt.Sprintf("%s changed stance to %s", game.DisplayName(from), stance),
				map[string]any{"stance": string(stance)})
		}
	}

	// Wars declared on me
	known := make(map[string]bool, len(prev.Wars))
	for _, w := range prev.Wars {
		known[w.ID] = true
	}
	for _, w := range game.Wars {
		if !known[w.ID] && w.Defender == me && w.Active {
			newEvent(types.EventWarDeclared, w.Attacker,
				fmt.Sprintf("%s declared war on you", game.DisplayName(w.Attacker)),
				map[string]any{"warId": w.ID})
		}
	}

	// Trade offers
	for id, offer := range game.TradeOffers {
		seen, wasSeen := s.seenOffers[id]
		if wasSeen && seen == offer.Status {
			continue
		}
		// Answered here but not yet written back
		if wasSeen && seen != types.TradePending && offer.Status == types.TradePending {
			offer.Status = seen
			game.TradeOffers[id] = offer
			continue
		}
		s.seenOffers[id] = offer.Status

		switch {
		case offer.To == me && offer.Status == types.TradePending && !wasSeen:
			newEvent(types.EventTradeOffered, offer.From,
				fmt.Sprintf("%s sent you a trade offer", game.DisplayName(offer.From)),
				map[string]any{"offerId": id})
		case offer.From == me && offer.Status == types.TradeAccepted:
			fromDelta, _ := conflict.SettleTrade(offer)
			deltas = append(deltas, pendingDelta{reason: "trade " + id, delta: fromDelta})
			newEvent(types.EventTradeAccepted, offer.To,
				fmt.Sprintf("%s accepted your trade offer", game.DisplayName(offer.To)),
				map[string]any{"offerId": id})
		case offer.From == me && offer.Status == types.TradeRejected:
			newEvent(types.EventTradeRejected, offer.To,
				fmt.Sprintf("%s rejected your trade offer", game.DisplayName(offer.To)),
				map[string]any{"offerId": id})
		}
	}

	// Battles where I defended
	for id, battle := range game.Battles {
		if s.seenBattles[id] {
			continue
		}
		s.seenBattles[id] = true
		if battle.Defender != me {
			continue
		}
		deltas = append(deltas, pendingDelta{reason: "battle " + id, delta: battle.DefenderDelta})
		newEvent(types.EventBattle, battle.Attacker,
			fmt.Sprintf("%s attacked you: %s", game.DisplayName(battle.Attacker), battle.Outcome),
			map[string]any{"battleId": id, "outcome": string(battle.Outcome)})
	}

	s.game = game
	s.version = doc.Version
	s.events = append(s.events, events...)
	sink := s.sink
	gameID := s.gameID
	s.mu.Unlock()

	for _, d := range deltas {
		s.nation.ApplyDelta(d.delta)
		s.Logger.Info("Remote effect applied",
			zap.String("game_id", gameID),
			zap.String("player_id", me),
			zap.String("reason", d.reason))
	}
	if sink != nil {
		for _, e := range events {
			sink.GameEvent(e)
		}
	}
	s.setStatus(nil)
}

// Relay runs a local action and then logs it to the shared action log.
// The local result stands even when the log write fails.
func (s *Session) Relay(ctx context.Context, action string, payload map[string]any, apply func() bool) bool {
	if !apply() {
		return false
	}

	gameID, me, err := s.ids()
	if err != nil {
		return true
	}

	now := s.Clock().UTC()
	event := types.GameEvent{
		ID:        uuid.New().String(),
		GameID:    gameID,
		Type:      types.EventAction,
		From:      me,
		Message:   action,
		Payload:   payload,
		Timestamp: now,
	}
	err = s.writeEvent(ctx, event, store.BatchOp{
		Collection: ActionsCollection,
		Create:     true,
		Data: map[string]any{
			"gameId":    gameID,
			"playerId":  me,
			"action":    action,
			"payload":   payload,
			"timestamp": now,
		},
	})
	if err != nil {
		s.Logger.Warn("Action relay failed",
			zap.String("game_id", gameID),
			zap.String("action", action),
			zap.Error(err))
	}
	s.setStatus(err)
	return true
}

// writeEvent stores event in the shared log together with ops as one batch
func (s *Session) writeEvent(ctx context.Context, event types.GameEvent, ops ...store.BatchOp) error {
	data, err := store.Encode(event)
	if err != nil {
		return err
	}
	ops = append(ops, store.BatchOp{Collection: EventsCollection, ID: event.ID, Create: true, Data: data})
	return s.store.Batch(ctx, ops...)
}

// remoteWrite applies a game document update plus an event, recording the outcome in Status
func (s *Session) remoteWrite(ctx context.Context, gameID string, event types.GameEvent, updates ...store.Update) {
	s.markSyncing()
	err := s.writeEvent(ctx, event, store.BatchOp{Collection: GamesCollection, ID: gameID, Updates: updates})
	if err != nil {
		s.Logger.Error("Remote write failed",
			zap.String("game_id", gameID),
			zap.String("event", string(event.Type)),
			zap.Error(err))
	}
	s.setStatus(err)
}

func (s *Session) event(typ types.GameEventType, gameID, from, to, message string, payload map[string]any) types.GameEvent {
	return types.GameEvent{
		ID:        uuid.New().String(),
		GameID:    gameID,
		Type:      typ,
		From:      from,
		To:        to,
		Message:   message,
		Payload:   payload,
		Timestamp: s.Clock().UTC(),
	}
}

// checkTarget validates another player of the game
func (s *Session) checkTarget(me, target string) error {
	if target == me {
		return ErrSelfTarget
	}
	s.mu.RLock()
	_, ok := s.game.Players[target]
	s.mu.RUnlock()
	if !ok {
		return ErrUnknownPlayer
	}
	return nil
}

// SetDiplomaticStance sets this player's stance towards target
func (s *Session) SetDiplomaticStance(ctx context.Context, target string, stance types.Stance) error {
	gameID, me, err := s.ids()
	if err != nil {
		return err
	}
	if !stance.Valid() {
		return ErrInvalidStance
	}
	if err := s.checkTarget(me, target); err != nil {
		return err
	}

	s.mu.Lock()
	if s.game.Diplomacy[me] == nil {
		s.game.Diplomacy[me] = make(map[string]types.Stance)
	}
	s.game.Diplomacy[me][target] = stance
	s.mu.Unlock()

	event := s.event(types.EventStanceChanged, gameID, me, target,
		fmt.Sprintf("stance towards %s set to %s", target, stance),
		map[string]any{"stance": string(stance)})
	s.remoteWrite(ctx, gameID, event, store.Set(diplomacyPath(me, target), stance))

	s.Logger.Info("Stance changed",
		zap.String("player_id", me),
		zap.String("target", target),
		zap.String("stance", string(stance)))
	return nil
}

// SendTradeOffer proposes an exchange to another player
func (s *Session) SendTradeOffer(ctx context.Context, to string, offered, requested types.NaturalResources) (types.TradeOffer, error) {
	gameID, me, err := s.ids()
	if err != nil {
		return types.TradeOffer{}, err
	}
	if err := s.checkTarget(me, to); err != nil {
		return types.TradeOffer{}, err
	}

	offer := types.TradeOffer{
		ID:        uuid.New().String(),
		From:      me,
		To:        to,
		Offered:   offered,
		Requested: requested,
		Status:    types.TradePending,
		CreatedAt: s.Clock().UTC(),
	}
	if err := conflict.ValidateOffer(offer); err != nil {
		return types.TradeOffer{}, err
	}
	if !s.nation.CanAfford(offered) {
		return types.TradeOffer{}, ErrInsufficientResources
	}

	s.mu.Lock()
	s.seenOffers[offer.ID] = types.TradePending
	s.game.TradeOffers[offer.ID] = offer
	s.mu.Unlock()

	event := s.event(types.EventTradeOffered, gameID, me, to, "trade offered", map[string]any{"offerId": offer.ID})
	s.remoteWrite(ctx, gameID, event, store.Set(tradeOfferPath(offer.ID), offer))

	s.Logger.Info("Trade offered",
		zap.String("player_id", me),
		zap.String("to", to),
		zap.String("offer_id", offer.ID))
	return offer, nil
}

// RespondToTradeOffer accepts or rejects a pending offer addressed to this player.
// Accepting settles both ledgers: this nation locally, both remote slices by increments.
func (s *Session) RespondToTradeOffer(ctx context.Context, offerID string, accept bool) error {
	gameID, me, err := s.ids()
	if err != nil {
		return err
	}

	s.mu.RLock()
	offer, ok := s.game.TradeOffers[offerID]
	s.mu.RUnlock()
	switch {
	case !ok:
		return ErrOfferNotFound
	case offer.To != me:
		return ErrNotYourOffer
	case offer.Status != types.TradePending:
		return ErrOfferNotPending
	}

	status := types.TradeRejected
	if accept {
		if !s.nation.CanAfford(offer.Requested) {
			return ErrInsufficientResources
		}
		status = types.TradeAccepted
	}

	// Claim the offer; a concurrent answer may have settled it meanwhile
	s.mu.Lock()
	offer, ok = s.game.TradeOffers[offerID]
	seen, wasSeen := s.seenOffers[offerID]
	if !ok || offer.Status != types.TradePending || (wasSeen && seen != types.TradePending) {
		s.mu.Unlock()
		return ErrOfferNotPending
	}
	offer.Status = status
	s.game.TradeOffers[offerID] = offer
	s.seenOffers[offerID] = status
	s.mu.Unlock()

	updates := []store.Update{store.Set(tradeOfferPath(offerID)+".status", status)}
	eventType := types.EventTradeRejected
	if accept {
		fromDelta, toDelta := conflict.SettleTrade(offer)
		s.nation.ApplyDelta(toDelta)
		updates = append(updates, deltaUpdates(offer.From, fromDelta)...)
		updates = append(updates, deltaUpdates(me, toDelta)...)
		eventType = types.EventTradeAccepted
	}

	event := s.event(eventType, gameID, me, offer.From, "trade "+string(status), map[string]any{"offerId": offerID})
	s.remoteWrite(ctx, gameID, event, updates...)

	s.Logger.Info("Trade answered",
		zap.String("player_id", me),
		zap.String("offer_id", offerID),
		zap.String("status", string(status)))
	return nil
}

// DeclareWar starts a war against target and sets both stances to rivalry
func (s *Session) DeclareWar(ctx context.Context, target string) (types.War, error) {
	gameID, me, err := s.ids()
	if err != nil {
		return types.War{}, err
	}
	if err := s.checkTarget(me, target); err != nil {
		return types.War{}, err
	}
	if s.activeWar(me, target) {
		return types.War{}, ErrAlreadyAtWar
	}

	war := types.War{
		ID:         uuid.New().String(),
		Attacker:   me,
		Defender:   target,
		DeclaredAt: s.Clock().UTC(),
		Active:     true,
	}

	s.mu.Lock()
	s.game.Wars = append(s.game.Wars, war)
	for _, pair := range [][2]string{{me, target}, {target, me}} {
		if s.game.Diplomacy[pair[0]] == nil {
			s.game.Diplomacy[pair[0]] = make(map[string]types.Stance)
		}
		s.game.Diplomacy[pair[0]][pair[1]] = types.StanceRivalry
	}
	s.mu.Unlock()

	event := s.event(types.EventWarDeclared, gameID, me, target, "war declared", map[string]any{"warId": war.ID})
	s.remoteWrite(ctx, gameID, event,
		store.Append("wars", war),
		store.Set(diplomacyPath(me, target), types.StanceRivalry),
		store.Set(diplomacyPath(target, me), types.StanceRivalry),
	)

	s.Logger.Info("War declared", zap.String("player_id", me), zap.String("target", target))
	return war, nil
}

// activeWar reports whether a and b are at war
func (s *Session) activeWar(a, b string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, w := range s.game.Wars {
		if w.Active && w.Involves(a, b) {
			return true
		}
	}
	return false
}

// LaunchAttack attacks target with attackStrength, or the nation's suggested
// strength when attackStrength is not positive. Requires an active war.
func (s *Session) LaunchAttack(ctx context.Context, target string, attackStrength float64) (types.BattleRecord, error) {
	gameID, me, err := s.ids()
	if err != nil {
		return types.BattleRecord{}, err
	}
	if err := s.checkTarget(me, target); err != nil {
		return types.BattleRecord{}, err
	}
	if !s.activeWar(me, target) {
		return types.BattleRecord{}, ErrNotAtWar
	}

	s.mu.RLock()
	defenderState, ok := s.game.PlayerData[target]
	s.mu.RUnlock()
	if !ok {
		return types.BattleRecord{}, ErrNoDefenderData
	}

	attacker := conflict.CombatantOf(s.nation.State().Snapshot())
	if attackStrength <= 0 {
		attackStrength = conflict.SuggestedStrength(attacker)
	}
	result := conflict.ResolveBattle(attackStrength, attacker, conflict.CombatantOf(defenderState))

	record := types.BattleRecord{
		ID:             uuid.New().String(),
		Attacker:       me,
		Defender:       target,
		AttackStrength: attackStrength,
		Outcome:        result.Outcome,
		AttackerDelta:  result.AttackerDelta,
		DefenderDelta:  result.DefenderDelta,
		At:             s.Clock().UTC(),
	}

	s.mu.Lock()
	s.seenBattles[record.ID] = true
	s.game.Battles[record.ID] = record
	s.mu.Unlock()

	s.nation.ApplyDelta(result.AttackerDelta)

	updates := []store.Update{store.Set(battlePath(record.ID), record)}
	updates = append(updates, deltaUpdates(me, result.AttackerDelta)...)
	updates = append(updates, deltaUpdates(target, result.DefenderDelta)...)
	event := s.event(types.EventBattle, gameID, me, target, "battle: "+string(result.Outcome),
		map[string]any{"battleId": record.ID, "outcome": string(result.Outcome)})
	s.remoteWrite(ctx, gameID, event, updates...)

	s.Logger.Info("Attack launched",
		zap.String("player_id", me),
		zap.String("target", target),
		zap.Float64("strength", attackStrength),
		zap.String("outcome", string(result.Outcome)))
	return record, nil
}

// PlayerView is a roster entry with presence resolved against staleness
type PlayerView struct {
	types.PlayerInfo
	IsHost bool `json:"isHost"`
	IsSelf bool `json:"isSelf"`
}

// Players returns the roster; players silent for longer than StaleAfter are offline
func (s *Session) Players() []PlayerView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.Clock()
	players := make([]PlayerView, 0, len(s.game.Players))
	for id, p := range s.game.Players {
		if p.ID == "" {
			p.ID = id
		}
		p.Online = p.Online && now.Sub(p.LastSeen) <= s.StaleAfter
		players = append(players, PlayerView{
			PlayerInfo: p,
			IsHost:     id == s.game.HostID,
			IsSelf:     id == s.playerID,
		})
	}
	sort.Slice(players, func(i, j int) bool { return players[i].ID < players[j].ID })
	return players
}

// Diplomacy returns this player's stance towards every other player, neutral by default
func (s *Session) Diplomacy() map[string]types.Stance {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]types.Stance, len(s.game.Players))
	for id := range s.game.Players {
		if id == s.playerID {
			continue
		}
		stance := s.game.Diplomacy[s.playerID][id]
		if stance == "" {
			stance = types.StanceNeutral
		}
		out[id] = stance
	}
	return out
}

// Wars returns the active wars this player is part of
func (s *Session) Wars() []types.War {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wars := make([]types.War, 0)
	for _, w := range s.game.Wars {
		if w.Active && (w.Attacker == s.playerID || w.Defender == s.playerID) {
			wars = append(wars, w)
		}
	}
	return wars
}

// PendingOffers returns pending offers sent to or by this player, oldest first
func (s *Session) PendingOffers() []types.TradeOffer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	offers := make([]types.TradeOffer, 0)
	for _, o := range s.game.TradeOffers {
		if o.Status == types.TradePending && (o.To == s.playerID || o.From == s.playerID) {
			offers = append(offers, o)
		}
	}
	sort.Slice(offers, func(i, j int) bool { return offers[i].CreatedAt.Before(offers[j].CreatedAt) })
	return offers
}

// Events returns a copy of the queued game events
func (s *Session) Events() []types.GameEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.GameEvent(nil), s.events...)
}

// DrainEvents returns and clears the queued game events
func (s *Session) DrainEvents() []types.GameEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := s.events
	s.events = nil
	return events
}

// EventLog reads the shared event log of the game, newest first
func (s *Session) EventLog(ctx context.Context, limit int) ([]types.GameEvent, error) {
	gameID, _, err := s.ids()
	if err != nil {
		return nil, err
	}
	docs, err := s.store.Query(ctx, EventsCollection, store.Query{
		Filters:    []store.Filter{{Field: "gameId", Equals: gameID}},
		OrderBy:    "timestamp",
		Descending: true,
		Limit:      limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read event log: %w", err)
	}
	events := make([]types.GameEvent, 0, len(docs))
	for _, doc := range docs {
		var e types.GameEvent
		if err := doc.Decode(&e); err != nil {
			continue
		}
		events = append(events, e)
	}
	return events, nil
}

// Status returns the sync status
func (s *Session) Status() types.SyncStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// GameID returns the id of the joined game, empty before Start
func (s *Session) GameID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gameID
}

// IsHost reports whether the local player hosts the game
func (s *Session) IsHost() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isHost
}

func (s *Session) markSyncing() {
	s.mu.Lock()
	s.status.State = types.SyncSyncing
	s.mu.Unlock()
}

func (s *Session) setStatus(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.status.State = types.SyncError
		s.status.LastError = err.Error()
		return
	}
	s.status.State = types.SyncSynced
	s.status.LastError = ""
	s.status.LastSyncedAt = s.Clock().UTC()
}

// deltaUpdates turns a delta into increments on a player's slice of the game
func deltaUpdates(playerID string, delta types.NationDelta) []store.Update {
	prefix := playerDataPath(playerID)
	updates := make([]store.Update, 0)
	for _, kind := range types.NaturalResourceKinds {
		if v, _ := delta.NaturalResources.Get(kind); v != 0 {
			updates = append(updates, store.Increment(prefix+".naturalResources."+string(kind), float64(v)))
		}
	}
	for _, stat := range types.Stats {
		if v := delta.Resources[stat]; v != 0 {
			updates = append(updates, store.Increment(prefix+".resources."+string(stat), v))
		}
	}
	if delta.Soldiers != 0 {
		updates = append(updates, store.Increment(prefix+".population.soldiers", float64(delta.Soldiers)))
	}
	return updates
}

func diplomacyPath(from, to string) string {
	return "diplomacy." + from + "." + to
}

func tradeOfferPath(id string) string {
	return "tradeOffers." + id
}

func battlePath(id string) string {
	return "battles." + id
}

// normalizeGame fills missing maps of a decoded game
func normalizeGame(g *types.GameDocument) {
	if g.Players == nil {
		g.Players = make(map[string]types.PlayerInfo)
	}
	if g.PlayerData == nil {
		g.PlayerData = make(map[string]types.NationSnapshot)
	}
	if g.Diplomacy == nil {
		g.Diplomacy = make(map[string]map[string]types.Stance)
	}
	if g.TradeOffers == nil {
		g.TradeOffers = make(map[string]types.TradeOffer)
	}
	if g.Battles == nil {
		g.Battles = make(map[string]types.BattleRecord)
	}
}
