// Package recipe defines the recipe record persisted by the store.
//
// JSON field names match the layout written by earlier releases of the app
// (nome, dificuldade, tempoPreparo, ingredientes, modoPreparo) so existing
// blobs keep decoding.
package recipe

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/maruel/recipebook/internal/errors"
)

// Ingredient is one line of a recipe's ingredient list.
type Ingredient struct {
	Quantity string `json:"quantidade" jsonschema:"description=Free-form quantity such as '2 xícaras'"`
	Name     string `json:"nome" jsonschema:"description=Ingredient name"`
}

// Recipe is one catalog record.
//
// ID is assigned by the store on creation and never changes afterwards.
type Recipe struct {
	ID          string       `json:"id" jsonschema:"required,description=Opaque unique identifier"`
	Name        string       `json:"nome" jsonschema:"description=Recipe name"`
	Difficulty  string       `json:"dificuldade" jsonschema:"description=facil, media, dificil or free text"`
	PrepTime    int          `json:"tempoPreparo" jsonschema:"description=Preparation time in minutes; 0 when unknown"`
	Ingredients []Ingredient `json:"ingredientes" jsonschema:"description=Ordered ingredient list"`
	Method      string       `json:"modoPreparo" jsonschema:"description=Preparation instructions"`

	// extra holds keys of the persisted object this version does not know
	// about. They are written back unchanged.
	extra map[string]json.RawMessage
}

// recipeFields has Recipe's fields without its JSON methods.
type recipeFields Recipe

var knownKeys = []string{"id", "nome", "dificuldade", "tempoPreparo", "ingredientes", "modoPreparo"}

// UnmarshalJSON decodes the known fields and keeps every other key.
func (r *Recipe) UnmarshalJSON(data []byte) error {
	var f recipeFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, k := range knownKeys {
		delete(all, k)
	}
	if len(all) != 0 {
		f.extra = all
	}
	*r = Recipe(f)
	return nil
}

// MarshalJSON encodes the known fields in declaration order followed by the
// kept unknown keys in sorted order.
func (r *Recipe) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal((*recipeFields)(r))
	if err != nil || len(r.extra) == 0 {
		return data, err
	}
	var buf bytes.Buffer
	buf.Write(data[:len(data)-1])
	for _, k := range slices.Sorted(maps.Keys(r.extra)) {
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(r.extra[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Clone returns a deep copy of the Recipe.
func (r *Recipe) Clone() *Recipe {
	c := *r
	c.Ingredients = slices.Clone(r.Ingredients)
	c.extra = maps.Clone(r.extra)
	return &c
}

// String returns a one-line summary.
func (r *Recipe) String() string {
	return fmt.Sprintf("%s %s (%s, %s min)", r.ID, r.Name, DifficultyLabel(r.Difficulty), PrepTimeLabel(r.PrepTime))
}

// Input holds the fields of a recipe to create.
type Input struct {
	Name        string       `json:"nome"`
	Difficulty  string       `json:"dificuldade"`
	PrepTime    int          `json:"tempoPreparo"`
	Ingredients []Ingredient `json:"ingredientes"`
	Method      string       `json:"modoPreparo"`
}

// NewRecipe builds a Recipe from in with the given id.
//
// The ingredient list is copied and never nil.
func NewRecipe(id string, in Input) *Recipe {
	ingredients := slices.Clone(in.Ingredients)
	if ingredients == nil {
		ingredients = []Ingredient{}
	}
	return &Recipe{
		ID:          id,
		Name:        in.Name,
		Difficulty:  in.Difficulty,
		PrepTime:    in.PrepTime,
		Ingredients: ingredients,
		Method:      in.Method,
	}
}

// Validate checks the fields the recipe form requires.
//
// The store itself does not call Validate; it is for front ends.
func (in *Input) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return errors.MissingField("nome")
	}
	if strings.TrimSpace(in.Difficulty) == "" {
		return errors.MissingField("dificuldade")
	}
	if len(in.Ingredients) == 0 {
		return errors.MissingField("ingredientes")
	}
	if strings.TrimSpace(in.Method) == "" {
		return errors.MissingField("modoPreparo")
	}
	return validatePrepTime(in.PrepTime)
}

// Patch holds a partial update. Nil fields are left unchanged.
//
// There is no ID field: a patch cannot change a recipe's identity.
type Patch struct {
	Name        *string      `json:"nome,omitempty"`
	Difficulty  *string      `json:"dificuldade,omitempty"`
	PrepTime    *int         `json:"tempoPreparo,omitempty"`
	Ingredients []Ingredient `json:"ingredientes,omitempty"` // nil keeps the current list
	Method      *string      `json:"modoPreparo,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p *Patch) IsEmpty() bool {
	return p.Name == nil && p.Difficulty == nil && p.PrepTime == nil && p.Ingredients == nil && p.Method == nil
}

// Apply returns a copy of r with the patch's fields merged in.
func (p *Patch) Apply(r *Recipe) *Recipe {
	c := r.Clone()
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Difficulty != nil {
		c.Difficulty = *p.Difficulty
	}
	if p.PrepTime != nil {
		c.PrepTime = *p.PrepTime
	}
	if p.Ingredients != nil {
		c.Ingredients = slices.Clone(p.Ingredients)
	}
	if p.Method != nil {
		c.Method = *p.Method
	}
	return c
}

// Validate checks that every field set in the patch would pass Input.Validate.
func (p *Patch) Validate() error {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return errors.MissingField("nome")
	}
	if p.Difficulty != nil && strings.TrimSpace(*p.Difficulty) == "" {
		return errors.MissingField("dificuldade")
	}
	if p.Ingredients != nil && len(p.Ingredients) == 0 {
		return errors.MissingField("ingredientes")
	}
	if p.Method != nil && strings.TrimSpace(*p.Method) == "" {
		return errors.MissingField("modoPreparo")
	}
	if p.PrepTime != nil {
		return validatePrepTime(*p.PrepTime)
	}
	return nil
}

func validatePrepTime(minutes int) error {
	if minutes == 0 {
		return nil
	}
	if minutes < MinPrepTime || minutes > MaxPrepTime {
		return errors.InvalidFormat("tempoPreparo", fmt.Sprintf("must be between %d and %d minutes", MinPrepTime, MaxPrepTime))
	}
	return nil
}
