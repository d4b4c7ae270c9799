package recipe

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultTitle is used when a recipe is built without a usable title.
const DefaultTitle = "Untitled Recipe"

// ErrNotFound is returned when no recipe exists for the requested id.
var ErrNotFound = errors.New("recipe not found")

// ErrEmptyTitle is returned when a caller supplies a blank title.
var ErrEmptyTitle = errors.New("title must not be empty")

// Ingredient is a single ingredient line. All fields are free-form strings
// so that quantities like "a pinch" survive untouched.
type Ingredient struct {
	Name     string `json:"name"`
	Quantity string `json:"quantity"`
	Unit     string `json:"unit"`
}

// Recipe is the canonical stored record.
type Recipe struct {
	ID           string       `json:"id" db:"id"`
	Title        string       `json:"title" db:"title"`
	Description  string       `json:"description" db:"description"`
	Ingredients  []Ingredient `json:"ingredients"`
	Instructions []string     `json:"instructions"`
	Servings     string       `json:"servings" db:"servings"`
	PrepTime     string       `json:"prep_time" db:"prep_time"`
	CookTime     string       `json:"cook_time" db:"cook_time"`
	ImageBase64  *string      `json:"image_base64" db:"image_base64"`
	SourceURL    *string      `json:"source_url" db:"source_url"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at" db:"updated_at"`
}

// Create carries caller-supplied fields for a manually created recipe.
type Create struct {
	Title        string       `json:"title" binding:"required"`
	Description  string       `json:"description"`
	Ingredients  []Ingredient `json:"ingredients"`
	Instructions []string     `json:"instructions"`
	Servings     string       `json:"servings"`
	PrepTime     string       `json:"prep_time"`
	CookTime     string       `json:"cook_time"`
	ImageBase64  *string      `json:"image_base64"`
	SourceURL    *string      `json:"source_url"`
}

// Update carries a partial set of fields. Nil fields are left untouched.
type Update struct {
	Title        *string       `json:"title"`
	Description  *string       `json:"description"`
	Ingredients  *[]Ingredient `json:"ingredients"`
	Instructions *[]string     `json:"instructions"`
	Servings     *string       `json:"servings"`
	PrepTime     *string       `json:"prep_time"`
	CookTime     *string       `json:"cook_time"`
	ImageBase64  *string       `json:"image_base64"`
}

// Validate rejects updates that would blank the title.
func (u Update) Validate() error {
	if u.Title != nil && strings.TrimSpace(*u.Title) == "" {
		return ErrEmptyTitle
	}
	return nil
}

// Extraction is the normalized output of an extractor before it becomes a Recipe.
type Extraction struct {
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	Ingredients  []Ingredient `json:"ingredients"`
	Instructions []string     `json:"instructions"`
	Servings     string       `json:"servings"`
	PrepTime     string       `json:"prep_time"`
	CookTime     string       `json:"cook_time"`
}

// Clock and IDFunc let callers pin time and identifiers in tests.
type (
	Clock  func() time.Time
	IDFunc func() string
)

// NewID returns a random UUID string.
func NewID() string {
	return uuid.NewString()
}

// New builds a fully formed recipe from manual input.
func New(c Create, now Clock, newID IDFunc) (*Recipe, error) {
	if strings.TrimSpace(c.Title) == "" {
		return nil, ErrEmptyTitle
	}
	r := build(Extraction{
		Title:        c.Title,
		Description:  c.Description,
		Ingredients:  c.Ingredients,
		Instructions: c.Instructions,
		Servings:     c.Servings,
		PrepTime:     c.PrepTime,
		CookTime:     c.CookTime,
	}, now, newID)
	r.ImageBase64 = c.ImageBase64
	r.SourceURL = c.SourceURL
	return r, nil
}

// FromExtraction builds a recipe from extractor output, trimming the title
// and defaulting it when missing.
func FromExtraction(e Extraction, now Clock, newID IDFunc) *Recipe {
	e.Title = strings.TrimSpace(e.Title)
	return build(e, now, newID)
}

func build(e Extraction, now Clock, newID IDFunc) *Recipe {
	if now == nil {
		now = time.Now
	}
	if newID == nil {
		newID = NewID
	}
	title := e.Title
	if strings.TrimSpace(title) == "" {
		title = DefaultTitle
	}
	// Postgres keeps microseconds; truncating keeps round trips exact.
	ts := now().UTC().Truncate(time.Microsecond)
	return &Recipe{
		ID:           newID(),
		Title:        title,
		Description:  e.Description,
		Ingredients:  nonNilIngredients(e.Ingredients),
		Instructions: nonNilStrings(e.Instructions),
		Servings:     e.Servings,
		PrepTime:     e.PrepTime,
		CookTime:     e.CookTime,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
}

// Apply merges the set fields of u into r. It does not touch UpdatedAt.
func (r *Recipe) Apply(u Update) {
	if u.Title != nil {
		r.Title = *u.Title
	}
	if u.Description != nil {
		r.Description = *u.Description
	}
	if u.Ingredients != nil {
		r.Ingredients = nonNilIngredients(*u.Ingredients)
	}
	if u.Instructions != nil {
		r.Instructions = nonNilStrings(*u.Instructions)
	}
	if u.Servings != nil {
		r.Servings = *u.Servings
	}
	if u.PrepTime != nil {
		r.PrepTime = *u.PrepTime
	}
	if u.CookTime != nil {
		r.CookTime = *u.CookTime
	}
	if u.ImageBase64 != nil {
		r.ImageBase64 = u.ImageBase64
	}
}

func nonNilIngredients(in []Ingredient) []Ingredient {
	if in == nil {
		return []Ingredient{}
	}
	return in
}

func nonNilStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
