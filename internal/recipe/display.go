package recipe

import "strconv"

// Difficulty values offered by the recipe form. Any other string is accepted
// and stored as-is.
const (
	DifficultyEasy   = "facil"
	DifficultyMedium = "media"
	DifficultyHard   = "dificil"
)

// Preparation time bounds offered by the recipe form, in minutes.
const (
	MinPrepTime = 5
	MaxPrepTime = 120
)

// DifficultyOption pairs a stored difficulty value with its display label.
type DifficultyOption struct {
	Value string
	Label string
}

// DifficultyOptions lists the known difficulties in display order.
var DifficultyOptions = []DifficultyOption{
	{Value: DifficultyEasy, Label: "Fácil"},
	{Value: DifficultyMedium, Label: "Média"},
	{Value: DifficultyHard, Label: "Difícil"},
}

// DifficultyLabel returns the display label for d, or "N/A" for unknown values.
func DifficultyLabel(d string) string {
	for _, o := range DifficultyOptions {
		if o.Value == d {
			return o.Label
		}
	}
	return "N/A"
}

// PrepTimeLabel formats minutes for display. Zero, which is also what records
// written without the field decode to, shows as "--".
func PrepTimeLabel(minutes int) string {
	if minutes == 0 {
		return "--"
	}
	return strconv.Itoa(minutes)
}
