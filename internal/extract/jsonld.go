package extract

import (
	"encoding/json"
	"strconv"
	"strings"

	"recipebox/internal/recipe"
)

const recipeType = "Recipe"

// findRecipeObject scans JSON-LD documents in page order and returns the
// first Recipe-typed object. A list root contributes only its first element;
// a @graph container is searched entry by entry.
func findRecipeObject(candidates []any) (map[string]any, bool) {
	for _, candidate := range candidates {
		if list, ok := candidate.([]any); ok {
			if len(list) == 0 {
				continue
			}
			candidate = list[0]
		}

		obj, ok := candidate.(map[string]any)
		if !ok {
			continue
		}
		if hasType(obj, recipeType) {
			return obj, true
		}

		graph, ok := obj["@graph"].([]any)
		if !ok {
			continue
		}
		for _, item := range graph {
			if node, ok := item.(map[string]any); ok && hasType(node, recipeType) {
				return node, true
			}
		}
	}
	return nil, false
}

// hasType accepts both "@type": "Recipe" and "@type": ["Recipe", ...].
func hasType(obj map[string]any, want string) bool {
	switch t := obj["@type"].(type) {
	case string:
		return t == want
	case []any:
		for _, v := range t {
			if s, ok := v.(string); ok && s == want {
				return true
			}
		}
	}
	return false
}

// mapRecipeObject converts a schema.org Recipe object to an Extraction.
func mapRecipeObject(obj map[string]any) recipe.Extraction {
	title := stringify(obj["name"])
	if strings.TrimSpace(title) == "" {
		title = recipe.DefaultTitle
	}

	ext := recipe.Extraction{
		Title:        title,
		Description:  stringify(obj["description"]),
		Ingredients:  []recipe.Ingredient{},
		Instructions: []string{},
		Servings:     yield(obj["recipeYield"]),
		PrepTime:     stringify(obj["prepTime"]),
		CookTime:     stringify(obj["cookTime"]),
	}

	if list, ok := obj["recipeIngredient"].([]any); ok {
		for _, ing := range list {
			if name := stringify(ing); name != "" {
				ext.Ingredients = append(ext.Ingredients, recipe.Ingredient{Name: name})
			}
		}
	}

	ext.Instructions = appendSteps(ext.Instructions, obj["recipeInstructions"])
	return ext
}

// appendSteps flattens recipeInstructions in order. Steps may be plain
// strings, HowToStep objects with a text field, or HowToSection objects
// whose itemListElement holds further steps.
func appendSteps(steps []string, v any) []string {
	switch inst := v.(type) {
	case string:
		if s := strings.TrimSpace(inst); s != "" {
			steps = append(steps, s)
		}
	case []any:
		for _, item := range inst {
			steps = appendSteps(steps, item)
		}
	case map[string]any:
		if text, ok := inst["text"]; ok {
			if s := strings.TrimSpace(stringify(text)); s != "" {
				steps = append(steps, s)
			}
			return steps
		}
		if items, ok := inst["itemListElement"]; ok {
			return appendSteps(steps, items)
		}
		if name := strings.TrimSpace(stringify(inst["name"])); name != "" {
			steps = append(steps, name)
		}
	}
	return steps
}

// yield stringifies recipeYield, taking the first entry of a list.
func yield(v any) string {
	if list, ok := v.([]any); ok {
		if len(list) == 0 {
			return ""
		}
		return stringify(list[0])
	}
	return stringify(v)
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
