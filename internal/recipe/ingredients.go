package recipe

import "strings"

// UnknownQuantity is used for ingredient lines that carry no quantity.
const UnknownQuantity = "Qtd. Indefinida"

const quantitySep = " de "

// ParseIngredients parses one ingredient per line in the "<quantity> de <name>"
// form. Blank lines are skipped. A line without the separator becomes an
// ingredient named after the whole line with UnknownQuantity.
func ParseIngredients(text string) []Ingredient {
	var out []Ingredient
	for line := range strings.Lines(text) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if qty, name, ok := strings.Cut(line, quantitySep); ok {
			out = append(out, Ingredient{Quantity: qty, Name: name})
			continue
		}
		out = append(out, Ingredient{Quantity: UnknownQuantity, Name: line})
	}
	return out
}

// FormatIngredients is the inverse of ParseIngredients.
func FormatIngredients(ingredients []Ingredient) string {
	lines := make([]string, 0, len(ingredients))
	for _, i := range ingredients {
		lines = append(lines, i.Quantity+quantitySep+i.Name)
	}
	return strings.Join(lines, "\n")
}
