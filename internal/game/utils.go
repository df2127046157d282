package game

import (
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/user/nation-builder/config"
	"github.com/user/nation-builder/internal/interfaces"
)

// DiceRoller handles random choices for the game
type DiceRoller struct {
	rng *rand.Rand
}

// Ensure DiceRoller satisfies the interfaces.Randomizer interface
var _ interfaces.Randomizer = (*DiceRoller)(nil)

// NewDiceRoller creates a new dice roller with a seeded random number generator
func NewDiceRoller() *DiceRoller {
	return NewSeededDiceRoller(time.Now().UnixNano())
}

// NewSeededDiceRoller creates a dice roller with a fixed seed
func NewSeededDiceRoller(seed int64) *DiceRoller {
	return &DiceRoller{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// Intn returns a number in [0,n)
func (dr *DiceRoller) Intn(n int) int {
	return dr.rng.Intn(n)
}

// Roll rolls a dice with the specified number of sides
func (dr *DiceRoller) Roll(sides int) int {
	return dr.rng.Intn(sides) + 1
}

// StaticIdentity is an identity provider backed by configuration
type StaticIdentity struct {
	ID       string
	EmailStr string
}

// Ensure StaticIdentity satisfies the interfaces.IdentityProvider interface
var _ interfaces.IdentityProvider = (*StaticIdentity)(nil)

// NewStaticIdentity creates an identity from the player configuration,
// generating an id when none is configured
func NewStaticIdentity(cfg config.PlayerConfig) *StaticIdentity {
	id := cfg.ID
	if id == "" {
		id = uuid.New().String()
	}
	return &StaticIdentity{ID: id, EmailStr: cfg.Email}
}

// PlayerID returns the opaque player identifier
func (si *StaticIdentity) PlayerID() string {
	return si.ID
}

// Email returns the player's email
func (si *StaticIdentity) Email() string {
	return si.EmailStr
}
