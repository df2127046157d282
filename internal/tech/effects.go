package tech

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/user/nation-builder/internal/types"
)

// Effect is a parsed "±N% keyword" descriptor
type Effect struct {
	Raw     string     `json:"raw"`
	Value   float64    `json:"value"` // fraction, "+10%" is 0.10
	Keyword string     `json:"keyword"`
	Stat    types.Stat `json:"stat"`
	Primary bool       `json:"primary"` // keyword is the stat name itself
}

// primaryKeywords are the stat names themselves
var primaryKeywords = map[string]types.Stat{
	"stability": types.StatStability,
	"economy":   types.StatEconomy,
	"military":  types.StatMilitary,
	"diplomacy": types.StatDiplomacy,
	"culture":   types.StatCulture,
}

// synonymKeywords map flavor words onto the stat they affect
var synonymKeywords = map[string]types.Stat{
	"gdp":           types.StatEconomy,
	"growth":        types.StatEconomy,
	"industry":      types.StatEconomy,
	"manufacturing": types.StatEconomy,
	"production":    types.StatEconomy,
	"trade":         types.StatEconomy,

	"morale":    types.StatStability,
	"unity":     types.StatStability,
	"control":   types.StatStability,
	"order":     types.StatStability,
	"happiness": types.StatStability,

	"army":    types.StatMilitary,
	"defense": types.StatMilitary,
	"weapons": types.StatMilitary,
	"navy":    types.StatMilitary,
	"arms":    types.StatMilitary,

	"relations":  types.StatDiplomacy,
	"alliances":  types.StatDiplomacy,
	"influence":  types.StatDiplomacy,
	"reputation": types.StatDiplomacy,

	"arts":       types.StatCulture,
	"education":  types.StatCulture,
	"literacy":   types.StatCulture,
	"science":    types.StatCulture,
	"innovation": types.StatCulture,
}

// ParseEffect parses a descriptor such as "+10% GDP growth".
// ok is false when the descriptor has no percentage or no known keyword.
func ParseEffect(raw string) (Effect, bool) {
	text := strings.TrimSpace(raw)
	pct := strings.IndexByte(text, '%')
	if pct <= 0 {
		return Effect{}, false
	}

	number := strings.TrimSpace(text[:pct])
	value, err := strconv.ParseFloat(strings.TrimPrefix(number, "+"), 64)
	if err != nil {
		return Effect{}, false
	}

	words := strings.FieldsFunc(strings.ToLower(text[pct+1:]), func(r rune) bool {
		return !unicode.IsLetter(r)
	})

	// Direct stat names win over synonyms anywhere in the descriptor
	for _, w := range words {
		if stat, ok := primaryKeywords[w]; ok {
			return Effect{Raw: raw, Value: value / 100, Keyword: w, Stat: stat, Primary: true}, true
		}
	}
	for _, w := range words {
		if stat, ok := synonymKeywords[w]; ok {
			return Effect{Raw: raw, Value: value / 100, Keyword: w, Stat: stat}, true
		}
	}

	return Effect{}, false
}

// StatDelta returns the additive stat change of researching this effect
func (e Effect) StatDelta() float64 {
	if e.Primary {
		return e.Value * 100
	}
	return e.Value * 50
}
