package recipe

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// listLimit caps how many recipes List returns.
const listLimit = 1000

// Store defines the interface for recipe persistence.
type Store interface {
	List(ctx context.Context) ([]*Recipe, error)
	Get(ctx context.Context, id string) (*Recipe, error)
	Insert(ctx context.Context, r *Recipe) (*Recipe, error)
	Update(ctx context.Context, id string, u Update) (*Recipe, error)
	Delete(ctx context.Context, id string) error
}

// PostgresStore implements Store on PostgreSQL, keeping ingredients and
// instructions as JSONB documents so their order survives round trips.
type PostgresStore struct {
	db  *sqlx.DB
	now Clock
}

const schema = `
CREATE TABLE IF NOT EXISTS recipes (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	ingredients JSONB NOT NULL DEFAULT '[]',
	instructions JSONB NOT NULL DEFAULT '[]',
	servings TEXT NOT NULL DEFAULT '',
	prep_time TEXT NOT NULL DEFAULT '',
	cook_time TEXT NOT NULL DEFAULT '',
	image_base64 TEXT,
	source_url TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS recipes_created_at_idx ON recipes (created_at DESC);
`

const selectColumns = "id, title, description, ingredients, instructions, servings, prep_time, cook_time, image_base64, source_url, created_at, updated_at"

// NewPostgresStore connects to the database and makes sure the schema exists.
// The caller owns the returned store and must Close it.
func NewPostgresStore(ctx context.Context, dataSourceName string) (*PostgresStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create recipes table: %w", err)
	}

	return &PostgresStore{db: db, now: time.Now}, nil
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type recipeRow struct {
	ID           string         `db:"id"`
	Title        string         `db:"title"`
	Description  string         `db:"description"`
	Ingredients  []byte         `db:"ingredients"`
	Instructions []byte         `db:"instructions"`
	Servings     string         `db:"servings"`
	PrepTime     string         `db:"prep_time"`
	CookTime     string         `db:"cook_time"`
	ImageBase64  sql.NullString `db:"image_base64"`
	SourceURL    sql.NullString `db:"source_url"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

func (row *recipeRow) toRecipe() (*Recipe, error) {
	r := &Recipe{
		ID:          row.ID,
		Title:       row.Title,
		Description: row.Description,
		Servings:    row.Servings,
		PrepTime:    row.PrepTime,
		CookTime:    row.CookTime,
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
	if err := json.Unmarshal(row.Ingredients, &r.Ingredients); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ingredients: %w", err)
	}
	if err := json.Unmarshal(row.Instructions, &r.Instructions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal instructions: %w", err)
	}
	r.Ingredients = nonNilIngredients(r.Ingredients)
	r.Instructions = nonNilStrings(r.Instructions)
	if row.ImageBase64.Valid {
		r.ImageBase64 = &row.ImageBase64.String
	}
	if row.SourceURL.Valid {
		r.SourceURL = &row.SourceURL.String
	}
	return r, nil
}

// List returns recipes, newest first.
func (s *PostgresStore) List(ctx context.Context) ([]*Recipe, error) {
	var rows []recipeRow
	query := "SELECT " + selectColumns + " FROM recipes ORDER BY created_at DESC LIMIT $1"
	if err := s.db.SelectContext(ctx, &rows, query, listLimit); err != nil {
		return nil, fmt.Errorf("failed to list recipes: %w", err)
	}

	recipes := make([]*Recipe, 0, len(rows))
	for i := range rows {
		r, err := rows[i].toRecipe()
		if err != nil {
			return nil, err
		}
		recipes = append(recipes, r)
	}
	return recipes, nil
}

// Get retrieves a recipe by id.
func (s *PostgresStore) Get(ctx context.Context, id string) (*Recipe, error) {
	var row recipeRow
	err := s.db.GetContext(ctx, &row, "SELECT "+selectColumns+" FROM recipes WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get recipe %s: %w", id, err)
	}
	return row.toRecipe()
}

// Insert stores a fully formed recipe as given.
func (s *PostgresStore) Insert(ctx context.Context, r *Recipe) (*Recipe, error) {
	ingredientsJSON, err := json.Marshal(nonNilIngredients(r.Ingredients))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ingredients: %w", err)
	}
	instructionsJSON, err := json.Marshal(nonNilStrings(r.Instructions))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal instructions: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO recipes ("+selectColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)",
		r.ID,
		r.Title,
		r.Description,
		string(ingredientsJSON),
		string(instructionsJSON),
		r.Servings,
		r.PrepTime,
		r.CookTime,
		r.ImageBase64,
		r.SourceURL,
		r.CreatedAt,
		r.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save recipe: %w", err)
	}
	return r, nil
}

// Update merges the set fields of u into the stored recipe and refreshes updated_at.
func (s *PostgresStore) Update(ctx context.Context, id string, u Update) (*Recipe, error) {
	var sets []string
	var args []interface{}
	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if u.Title != nil {
		add("title", *u.Title)
	}
	if u.Description != nil {
		add("description", *u.Description)
	}
	if u.Ingredients != nil {
		b, err := json.Marshal(nonNilIngredients(*u.Ingredients))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal ingredients: %w", err)
		}
		add("ingredients", string(b))
	}
	if u.Instructions != nil {
		b, err := json.Marshal(nonNilStrings(*u.Instructions))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal instructions: %w", err)
		}
		add("instructions", string(b))
	}
	if u.Servings != nil {
		add("servings", *u.Servings)
	}
	if u.PrepTime != nil {
		add("prep_time", *u.PrepTime)
	}
	if u.CookTime != nil {
		add("cook_time", *u.CookTime)
	}
	if u.ImageBase64 != nil {
		add("image_base64", *u.ImageBase64)
	}
	add("updated_at", s.now().UTC().Truncate(time.Microsecond))

	args = append(args, id)
	query := fmt.Sprintf("UPDATE recipes SET %s WHERE id = $%d RETURNING %s",
		strings.Join(sets, ", "), len(args), selectColumns)

	var row recipeRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update recipe %s: %w", id, err)
	}
	return row.toRecipe()
}

// Delete removes a recipe by id.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM recipes WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete recipe %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete recipe %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
