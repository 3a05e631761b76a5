package recipe

import (
	"github.com/invopop/jsonschema"
)

// Schema returns the JSON Schema of the persisted collection: an array of
// Recipe objects.
func Schema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		DoNotReference:             true,
		ExpandedStruct:             true,
		RequiredFromJSONSchemaTags: true,
	}
	item := r.Reflect(&Recipe{})
	item.Version = ""
	return &jsonschema.Schema{
		Version:     jsonschema.Version,
		Title:       "Recipe collection",
		Description: "Full ordered recipe collection stored under a single blob key.",
		Type:        "array",
		Items:       item,
	}
}
