package sim

// Era is a fixed historical year range
type Era struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	StartYear  int     `json:"start_year"`
	EndYear    int     `json:"end_year"` // inclusive, 0 means open ended
	Multiplier float64 `json:"multiplier"`
}

// FirstEraStart is the first simulated year
const FirstEraStart = 1925

// Eras lists the five eras in chronological order
var Eras = []Era{
	{ID: "interwar", Name: "Interwar Period", StartYear: 1925, EndYear: 1949, Multiplier: 1.0},
	{ID: "coldwar", Name: "Cold War", StartYear: 1950, EndYear: 1974, Multiplier: 1.5},
	{ID: "information", Name: "Information Age", StartYear: 1975, EndYear: 1999, Multiplier: 2.0},
	{ID: "digital", Name: "Digital Age", StartYear: 2000, EndYear: 2024, Multiplier: 2.5},
	{ID: "future", Name: "Future", StartYear: 2025, EndYear: 0, Multiplier: 3.0},
}

// EraForYear returns the era containing year; years before 1925 map to the first era
func EraForYear(year int) Era {
	for _, era := range Eras {
		if year >= era.StartYear && (era.EndYear == 0 || year <= era.EndYear) {
			return era
		}
	}
	return Eras[0]
}

// EraMultiplier returns the research cost multiplier of an era id, 1.0 if unknown
func EraMultiplier(id string) float64 {
	for _, era := range Eras {
		if era.ID == id {
			return era.Multiplier
		}
	}
	return 1.0
}
