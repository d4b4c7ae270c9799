package extract

import (
	"bytes"
	"encoding/json"
	"strings"

	"recipebox/internal/recipe"
)

// recognizedRecipe mirrors the JSON shape requested in SystemPrompt, but
// tolerates the usual model drift: numbers where strings were asked for,
// and bare strings in place of ingredient objects.
type recognizedRecipe struct {
	Title        looseString       `json:"title"`
	Description  looseString       `json:"description"`
	Ingredients  []looseIngredient `json:"ingredients"`
	Instructions []looseString     `json:"instructions"`
	Servings     looseString       `json:"servings"`
	PrepTime     looseString       `json:"prep_time"`
	CookTime     looseString       `json:"cook_time"`
}

func (r recognizedRecipe) extraction() recipe.Extraction {
	ext := recipe.Extraction{
		Title:        string(r.Title),
		Description:  string(r.Description),
		Ingredients:  make([]recipe.Ingredient, 0, len(r.Ingredients)),
		Instructions: make([]string, 0, len(r.Instructions)),
		Servings:     string(r.Servings),
		PrepTime:     string(r.PrepTime),
		CookTime:     string(r.CookTime),
	}
	for _, ing := range r.Ingredients {
		if ing.Name == "" && ing.Quantity == "" && ing.Unit == "" {
			continue
		}
		ext.Ingredients = append(ext.Ingredients, recipe.Ingredient{
			Name:     string(ing.Name),
			Quantity: string(ing.Quantity),
			Unit:     string(ing.Unit),
		})
	}
	for _, step := range r.Instructions {
		if s := strings.TrimSpace(string(step)); s != "" {
			ext.Instructions = append(ext.Instructions, s)
		}
	}
	return ext
}

// looseString accepts a JSON string, number, bool, or null.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = looseString(v)
		return nil
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = looseString(stringify(v))
	return nil
}

type looseIngredient struct {
	Name     looseString `json:"name"`
	Quantity looseString `json:"quantity"`
	Unit     looseString `json:"unit"`
}

// UnmarshalJSON accepts either an ingredient object or a plain string,
// which becomes the name.
func (i *looseIngredient) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] != '{' {
		var name looseString
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		*i = looseIngredient{Name: name}
		return nil
	}

	type alias looseIngredient // avoid infinite recursion
	var aux alias
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*i = looseIngredient(aux)
	return nil
}
