package store

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/maruel/recipebook/internal/recipe"
)

// Encode serializes the full collection as a JSON array. An empty or nil
// collection encodes as "[]".
func Encode(recipes []*recipe.Recipe) (string, error) {
	if recipes == nil {
		recipes = []*recipe.Recipe{}
	}
	data, err := json.Marshal(recipes)
	if err != nil {
		return "", fmt.Errorf("failed to encode recipes: %w", err)
	}
	return string(data), nil
}

// Decode parses a blob written by Encode. "null" decodes to an empty
// collection and null elements are dropped. Missing fields are left at their
// zero value.
func Decode(raw string) ([]*recipe.Recipe, error) {
	var recipes []*recipe.Recipe
	if err := json.Unmarshal([]byte(raw), &recipes); err != nil {
		return nil, fmt.Errorf("failed to decode recipes: %w", err)
	}
	recipes = slices.DeleteFunc(recipes, func(r *recipe.Recipe) bool { return r == nil })
	if recipes == nil {
		recipes = []*recipe.Recipe{}
	}
	return recipes, nil
}
