package game

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/user/nation-builder/internal/types"
)

// ErrNoSavedState is returned when no save file exists yet
var ErrNoSavedState = errors.New("no saved nation state")

// GameStateStorage handles persistence of a nation state
type GameStateStorage struct {
	savePath  string
	stateLock sync.Mutex
}

// NewGameStateStorage creates a new game state storage
func NewGameStateStorage(savePath string) *GameStateStorage {
	return &GameStateStorage{
		savePath: savePath,
	}
}

// Path returns the save file location
func (gss *GameStateStorage) Path() string {
	return gss.savePath
}

// SaveState saves the nation state to disk
func (gss *GameStateStorage) SaveState(state *types.NationState) error {
	gss.stateLock.Lock()
	defer gss.stateLock.Unlock()

	// Create directory if it doesn't exist
	dir := filepath.Dir(gss.savePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Marshal state to JSON
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal nation state: %w", err)
	}

	// Write to a temp file, then rename into place
	tmp := gss.savePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write nation state: %w", err)
	}
	if err := os.Rename(tmp, gss.savePath); err != nil {
		return fmt.Errorf("failed to replace nation state: %w", err)
	}

	return nil
}

// LoadState loads the nation state from disk
func (gss *GameStateStorage) LoadState() (*types.NationState, error) {
	gss.stateLock.Lock()
	defer gss.stateLock.Unlock()

	// Read file
	data, err := os.ReadFile(gss.savePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoSavedState
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read nation state file: %w", err)
	}

	// Unmarshal JSON
	var state types.NationState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse nation state: %w", err)
	}

	normalizeState(&state)
	return &state, nil
}
