package store

import (
	"testing"

	"github.com/maruel/recipebook/internal/recipe"
)

func TestEncode(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		got, err := Encode(nil)
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		if got != "[]" {
			t.Errorf("Encode(nil) = %q, want []", got)
		}
	})

	t.Run("order preserved", func(t *testing.T) {
		in := []*recipe.Recipe{
			recipe.NewRecipe("b", recipe.Input{Name: "Pão"}),
			recipe.NewRecipe("a", recipe.Input{Name: "Bolo"}),
		}
		raw, err := Encode(in)
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		out, err := Decode(raw)
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if len(out) != 2 || out[0].ID != "b" || out[1].ID != "a" {
			t.Errorf("round trip = %+v", out)
		}
	})
}

func TestDecode(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		tests := []struct {
			name string
			raw  string
			want int
		}{
			{"empty array", "[]", 0},
			{"null", "null", 0},
			{"null elements dropped", `[null,{"id":"1"},null]`, 1},
			{"missing fields", `[{"id":"1700000000000","nome":"Bolo"}]`, 1},
			{"unknown fields ignored", `[{"id":"1","favorita":true}]`, 1},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := Decode(tt.raw)
				if err != nil {
					t.Fatalf("Decode failed: %v", err)
				}
				if got == nil {
					t.Fatal("Decode returned nil slice")
				}
				if len(got) != tt.want {
					t.Errorf("got %d recipes, want %d", len(got), tt.want)
				}
			})
		}
	})

	t.Run("legacy blob", func(t *testing.T) {
		raw := `[{"nome":"Bolo de Chocolate Simples","ingredientes":[{"nome":"Farinha","quantidade":"2 xícaras"},{"nome":"Ovos","quantidade":"3"}],"modoPreparo":"Misture os secos, adicione os líquidos, asse por 40 min.","dificuldade":"facil","tempoPreparo":40,"id":"1700000000000"}]`
		got, err := Decode(raw)
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		r := got[0]
		if r.ID != "1700000000000" || r.PrepTime != 40 || len(r.Ingredients) != 2 || r.Ingredients[1].Quantity != "3" {
			t.Errorf("unexpected recipe: %+v", r)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		for _, raw := range []string{"", "not json", `{"id":"1"}`, `[{"tempoPreparo":"quarenta"}]`} {
			if _, err := Decode(raw); err == nil {
				t.Errorf("Decode(%q) succeeded, want error", raw)
			}
		}
	})
}
