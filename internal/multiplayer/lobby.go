// Package multiplayer hosts and joins shared games and keeps a local nation
// in sync with its slice of the shared game document.
package multiplayer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
	"github.com/user/nation-builder/internal/store"
	"github.com/user/nation-builder/internal/types"
	"go.uber.org/zap"
)

// Collections of the shared store
const (
	GamesCollection   = "games"
	EventsCollection  = "gameEvents"
	ActionsCollection = "gameActions"
)

// MaxPlayers is the roster size at which a game stops accepting players
const MaxPlayers = 8

// DefaultInviteBase prefixes game ids in invite codes
const DefaultInviteBase = "nationbuilder://join/"

var (
	ErrGameNotFound = errors.New("game not found")
	ErrGameClosed   = errors.New("game is no longer open")
	ErrGameFull     = errors.New("game is full")
	ErrNotHost      = errors.New("only the host can do that")
)

// GameSummary is a listing entry of an open game
type GameSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	HostID    string    `json:"hostId"`
	Players   int       `json:"players"`
	CreatedAt time.Time `json:"createdAt"`
}

// Lobby creates, joins and lists games
type Lobby struct {
	Store      store.Store
	Logger     *zap.Logger
	InviteBase string
	Clock      func() time.Time
}

// NewLobby creates a lobby over a document store
func NewLobby(s store.Store) *Lobby {
	return &Lobby{
		Store:      s,
		Logger:     zap.NewNop(),
		InviteBase: DefaultInviteBase,
		Clock:      time.Now,
	}
}

// CreateGame stores a new game hosted by host and returns its id
func (l *Lobby) CreateGame(ctx context.Context, host types.PlayerInfo, name string) (string, error) {
	now := l.Clock().UTC()
	host.Online = true
	host.LastSeen = now

	doc := types.GameDocument{
		Name:        name,
		HostID:      host.ID,
		Status:      types.GameLobby,
		CreatedAt:   now,
		Players:     map[string]types.PlayerInfo{host.ID: host},
		PlayerData:  map[string]types.NationSnapshot{},
		Diplomacy:   map[string]map[string]types.Stance{},
		TradeOffers: map[string]types.TradeOffer{},
		Wars:        []types.War{},
		Battles:     map[string]types.BattleRecord{},
	}
	data, err := store.Encode(doc)
	if err != nil {
		return "", err
	}

	id, err := l.Store.Create(ctx, GamesCollection, data)
	if err != nil {
		return "", fmt.Errorf("failed to create game: %w", err)
	}

	l.Logger.Info("Game created",
		zap.String("game_id", id),
		zap.String("name", name),
		zap.String("host_id", host.ID))
	return id, nil
}

// JoinGame adds player to the roster of an open game. Joining a game the
// player is already part of refreshes its roster entry.
func (l *Lobby) JoinGame(ctx context.Context, gameID string, player types.PlayerInfo) error {
	game, err := l.load(ctx, gameID)
	if err != nil {
		return err
	}

	_, rejoin := game.Players[player.ID]
	if game.Status == types.GameAbandoned {
		return ErrGameClosed
	}
	if !rejoin && len(game.Players) >= MaxPlayers {
		return ErrGameFull
	}

	now := l.Clock().UTC()
	player.Online = true
	player.LastSeen = now

	updates := []store.Update{store.Set(playerPath(player.ID), player)}
	if !rejoin && len(game.Players)+1 >= MaxPlayers {
		updates = append(updates, store.Set("status", types.GameActive))
	}

	event := types.GameEvent{
		ID:        uuid.New().String(),
		GameID:    gameID,
		Type:      types.EventPlayerJoined,
		From:      player.ID,
		Message:   fmt.Sprintf("%s joined the game", player.Name),
		Timestamp: now,
	}
	eventData, err := store.Encode(event)
	if err != nil {
		return err
	}

	err = l.Store.Batch(ctx,
		store.BatchOp{Collection: GamesCollection, ID: gameID, Updates: updates},
		store.BatchOp{Collection: EventsCollection, ID: event.ID, Create: true, Data: eventData},
	)
	if err != nil {
		return fmt.Errorf("failed to join game: %w", err)
	}

	l.Logger.Info("Player joined game",
		zap.String("game_id", gameID),
		zap.String("player_id", player.ID),
		zap.Bool("rejoin", rejoin))
	return nil
}

// AbandonGame closes a game; only its host may do so
func (l *Lobby) AbandonGame(ctx context.Context, gameID, hostID string) error {
	game, err := l.load(ctx, gameID)
	if err != nil {
		return err
	}
	if game.HostID != hostID {
		return ErrNotHost
	}
	if err := l.Store.Update(ctx, GamesCollection, gameID, store.Set("status", types.GameAbandoned)); err != nil {
		return fmt.Errorf("failed to abandon game: %w", err)
	}
	l.Logger.Info("Game abandoned", zap.String("game_id", gameID))
	return nil
}

// ListOpenGames returns the games still accepting players, oldest first
func (l *Lobby) ListOpenGames(ctx context.Context) ([]GameSummary, error) {
	docs, err := l.Store.Query(ctx, GamesCollection, store.Query{
		Filters: []store.Filter{{Field: "status", Equals: types.GameLobby}},
		OrderBy: "createdAt",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}

	games := make([]GameSummary, 0, len(docs))
	for _, doc := range docs {
		var game types.GameDocument
		if err := doc.Decode(&game); err != nil {
			l.Logger.Warn("Skipping malformed game", zap.String("game_id", doc.ID), zap.Error(err))
			continue
		}
		games = append(games, GameSummary{
			ID:        doc.ID,
			Name:      game.Name,
			HostID:    game.HostID,
			Players:   len(game.Players),
			CreatedAt: game.CreatedAt,
		})
	}
	return games, nil
}

// InviteCode returns the text encoded in a game's invite
func (l *Lobby) InviteCode(gameID string) string {
	return l.InviteBase + gameID
}

// InviteQR renders a game's invite code as a PNG of size pixels
func (l *Lobby) InviteQR(gameID string, size int) ([]byte, error) {
	png, err := qrcode.Encode(l.InviteCode(gameID), qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("failed to render invite: %w", err)
	}
	return png, nil
}

// load fetches and decodes a game document
func (l *Lobby) load(ctx context.Context, gameID string) (*types.GameDocument, error) {
	doc, err := l.Store.Get(ctx, GamesCollection, gameID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrGameNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load game: %w", err)
	}
	var game types.GameDocument
	if err := doc.Decode(&game); err != nil {
		return nil, fmt.Errorf("failed to decode game: %w", err)
	}
	return &game, nil
}

func playerPath(playerID string) string {
	return "players." + playerID
}

func playerDataPath(playerID string) string {
	return "playerData." + playerID
}
