package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipebox/internal/api"
	"recipebox/internal/config"
	"recipebox/internal/extract"
	"recipebox/internal/ingest"
	"recipebox/internal/recipe"
)

// mockRecipeStore is an in-memory recipe.Store.
type mockRecipeStore struct {
	mu      sync.Mutex
	recipes map[string]*recipe.Recipe
	err     error
}

func newMockRecipeStore() *mockRecipeStore {
	return &mockRecipeStore{recipes: make(map[string]*recipe.Recipe)}
}

func (m *mockRecipeStore) List(ctx context.Context) ([]*recipe.Recipe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([]*recipe.Recipe, 0, len(m.recipes))
	for _, r := range m.recipes {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *mockRecipeStore) Get(ctx context.Context, id string) (*recipe.Recipe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recipes[id]
	if !ok {
		return nil, recipe.ErrNotFound
	}
	return r, nil
}

func (m *mockRecipeStore) Insert(ctx context.Context, r *recipe.Recipe) (*recipe.Recipe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.recipes[r.ID] = r
	return r, nil
}

func (m *mockRecipeStore) Update(ctx context.Context, id string, u recipe.Update) (*recipe.Recipe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.recipes[id]
	if !ok {
		return nil, recipe.ErrNotFound
	}
	updated := *existing
	updated.Apply(u)
	updated.UpdatedAt = time.Now().UTC()
	m.recipes[id] = &updated
	return &updated, nil
}

func (m *mockRecipeStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recipes[id]; !ok {
		return recipe.ErrNotFound
	}
	delete(m.recipes, id)
	return nil
}

// mockRecognizer answers every recognition with reply.
type mockRecognizer struct {
	configured bool
	reply      string
	calls      int
}

func (m *mockRecognizer) Configured() bool { return m.configured }

func (m *mockRecognizer) Recognize(ctx context.Context, req extract.Recognition) (string, error) {
	m.calls++
	return m.reply, nil
}

type testEnv struct {
	router     *gin.Engine
	store      *mockRecipeStore
	recognizer *mockRecognizer
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := newMockRecipeStore()
	rec := &mockRecognizer{configured: true}
	ingester := ingest.NewService(store, extract.NewWebpageExtractor(nil, 5*time.Second), extract.NewImageExtractor(rec))
	handler := api.NewHandler(store, ingester)

	cfg := config.Default()
	return &testEnv{router: newRouter(cfg, handler), store: store, recognizer: rec}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestRoot(t *testing.T) {
	env := setup(t)
	rr := env.do(t, http.MethodGet, "/api/", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Recipe App API", decode[map[string]string](t, rr)["message"])
	assert.NotEmpty(t, rr.Header().Get("X-Request-Id"))
}

func TestRecipeCRUD(t *testing.T) {
	env := setup(t)

	create := map[string]any{
		"title":       "Bolo de Chocolate",
		"description": "Um delicioso bolo",
		"ingredients": []map[string]string{
			{"name": "farinha", "quantity": "2", "unit": "xícaras"},
			{"name": "açúcar", "quantity": "1", "unit": "xícara"},
		},
		"instructions": []string{"Misture os ingredientes", "Asse por 40 minutos"},
		"servings":     "8 pessoas",
		"prep_time":    "20 min",
		"cook_time":    "40 min",
	}
	rr := env.do(t, http.MethodPost, "/api/recipes", create)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	created := decode[recipe.Recipe](t, rr)
	assert.NotEmpty(t, created.ID)
	assert.Nil(t, created.SourceURL)

	rr = env.do(t, http.MethodGet, "/api/recipes/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	fetched := decode[recipe.Recipe](t, rr)
	assert.Equal(t, created.Title, fetched.Title)
	assert.Equal(t, created.Ingredients, fetched.Ingredients)
	assert.Equal(t, []string{"Misture os ingredientes", "Asse por 40 minutos"}, fetched.Instructions)

	rr = env.do(t, http.MethodPut, "/api/recipes/"+created.ID, map[string]any{"title": "Bolo de Cenoura"})
	require.Equal(t, http.StatusOK, rr.Code)
	updated := decode[recipe.Recipe](t, rr)
	assert.Equal(t, "Bolo de Cenoura", updated.Title)
	assert.Equal(t, created.Description, updated.Description)
	assert.Equal(t, created.Ingredients, updated.Ingredients)
	assert.Equal(t, created.Instructions, updated.Instructions)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.False(t, updated.UpdatedAt.Before(created.UpdatedAt))

	rr = env.do(t, http.MethodGet, "/api/recipes", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]recipe.Recipe](t, rr), 1)

	rr = env.do(t, http.MethodDelete, "/api/recipes/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Recipe deleted successfully", decode[map[string]string](t, rr)["message"])

	rr = env.do(t, http.MethodDelete, "/api/recipes/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "Recipe not found", decode[map[string]string](t, rr)["detail"])
}

func TestListNewestFirst(t *testing.T) {
	env := setup(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, title := range []string{"old", "new", "middle"} {
		offset := map[string]time.Duration{"old": 0, "middle": time.Hour, "new": 2 * time.Hour}[title]
		r, err := recipe.New(recipe.Create{Title: title}, func() time.Time { return base.Add(offset) }, nil)
		require.NoError(t, err, i)
		_, err = env.store.Insert(context.Background(), r)
		require.NoError(t, err)
	}

	rr := env.do(t, http.MethodGet, "/api/recipes", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	list := decode[[]recipe.Recipe](t, rr)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"new", "middle", "old"}, []string{list[0].Title, list[1].Title, list[2].Title})
}

func TestEmptyListIsArray(t *testing.T) {
	env := setup(t)
	rr := env.do(t, http.MethodGet, "/api/recipes", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())
}

func TestValidation(t *testing.T) {
	env := setup(t)

	rr := env.do(t, http.MethodPost, "/api/recipes", map[string]any{"description": "no title"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/recipes", map[string]any{"title": "  "})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, http.MethodPut, "/api/recipes/whatever", map[string]any{"title": ""})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, http.MethodPut, "/api/recipes/missing", map[string]any{"servings": "2"})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/recipes/missing", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/recipes/from-url", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/recipes/from-image", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, env.store.recipes)
}

func TestCreateFromURL(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><head><script type="application/ld+json">
{"@type":"Recipe","name":"Pancakes","recipeIngredient":["flour","egg","milk"],
 "recipeInstructions":[{"@type":"HowToStep","text":"Mix"},{"@type":"HowToStep","text":"Fry"}]}
</script></head></html>`))
	}))
	defer page.Close()

	env := setup(t)
	rr := env.do(t, http.MethodPost, "/api/recipes/from-url", map[string]string{"url": page.URL})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	r := decode[recipe.Recipe](t, rr)
	assert.Equal(t, "Pancakes", r.Title)
	require.NotNil(t, r.SourceURL)
	assert.Equal(t, page.URL, *r.SourceURL)
	assert.Len(t, r.Ingredients, 3)
	assert.Equal(t, []string{"Mix", "Fry"}, r.Instructions)
	assert.Contains(t, env.store.recipes, r.ID)
}

func TestCreateFromURL_UpstreamFailure(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer page.Close()

	env := setup(t)
	rr := env.do(t, http.MethodPost, "/api/recipes/from-url", map[string]string{"url": page.URL})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decode[map[string]string](t, rr)["detail"], "Could not extract recipe from URL")
	assert.Empty(t, env.store.recipes)
}

func TestCreateFromImage(t *testing.T) {
	env := setup(t)
	env.recognizer.reply = "```json\n{\"title\":\"Tacos\",\"instructions\":[\"Warm tortillas\",\"Fill\"]}\n```"
	payload := "data:image/jpeg;base64,aW1n"

	rr := env.do(t, http.MethodPost, "/api/recipes/from-image", map[string]string{"image_base64": payload})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	r := decode[recipe.Recipe](t, rr)
	assert.Equal(t, "Tacos", r.Title)
	assert.Equal(t, []string{"Warm tortillas", "Fill"}, r.Instructions)
	require.NotNil(t, r.ImageBase64)
	assert.Equal(t, payload, *r.ImageBase64)
	assert.Equal(t, 1, env.recognizer.calls)
}

func TestCreateFromImage_UnparsableAnswer(t *testing.T) {
	env := setup(t)
	env.recognizer.reply = "I see a cake with frosting"

	rr := env.do(t, http.MethodPost, "/api/recipes/from-image", map[string]string{"image_base64": "aW1n"})
	require.Equal(t, http.StatusOK, rr.Code)
	r := decode[recipe.Recipe](t, rr)
	assert.Equal(t, "Extracted Recipe", r.Title)
	assert.Equal(t, []string{"I see a cake with frosting"}, r.Instructions)
}

func TestCreateFromImage_MissingCredential(t *testing.T) {
	env := setup(t)
	env.recognizer.configured = false

	rr := env.do(t, http.MethodPost, "/api/recipes/from-image", map[string]string{"image_base64": "aW1n"})
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "LLM API key not configured", decode[map[string]string](t, rr)["detail"])
	assert.Zero(t, env.recognizer.calls)
	assert.Empty(t, env.store.recipes)
}

func TestCreateFromImage_InvalidPayload(t *testing.T) {
	env := setup(t)
	rr := env.do(t, http.MethodPost, "/api/recipes/from-image", map[string]string{"image_base64": "%%%"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Zero(t, env.recognizer.calls)
}

func TestStoreFailure(t *testing.T) {
	env := setup(t)
	env.store.err = errors.New("connection refused")

	rr := env.do(t, http.MethodGet, "/api/recipes", nil)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/recipes", map[string]string{"title": "x"})
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
