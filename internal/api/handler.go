package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"recipebox/internal/extract"
	"recipebox/internal/recipe"
)

const (
	storeTimeout  = 5 * time.Second
	ingestTimeout = 90 * time.Second
)

// RecipeStore defines the persistence operations the handlers need.
type RecipeStore interface {
	List(ctx context.Context) ([]*recipe.Recipe, error)
	Get(ctx context.Context, id string) (*recipe.Recipe, error)
	Insert(ctx context.Context, r *recipe.Recipe) (*recipe.Recipe, error)
	Update(ctx context.Context, id string, u recipe.Update) (*recipe.Recipe, error)
	Delete(ctx context.Context, id string) error
}

// Ingester creates recipes from external sources.
type Ingester interface {
	CreateFromURL(ctx context.Context, url string) (*recipe.Recipe, error)
	CreateFromImage(ctx context.Context, imageBase64 string) (*recipe.Recipe, error)
}

// Handler handles HTTP requests.
type Handler struct {
	RecipeStore RecipeStore
	Ingester    Ingester
}

// NewHandler creates a new Handler.
func NewHandler(recipeStore RecipeStore, ingester Ingester) *Handler {
	return &Handler{RecipeStore: recipeStore, Ingester: ingester}
}

// URLRequest is the body of POST /recipes/from-url.
type URLRequest struct {
	URL string `json:"url" binding:"required"`
}

// ImageRequest is the body of POST /recipes/from-image.
type ImageRequest struct {
	ImageBase64 string `json:"image_base64" binding:"required"`
}

// RegisterRoutes mounts the recipe API on group.
func (h *Handler) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/", h.Root)
	group.GET("/recipes", h.ListRecipes)
	group.GET("/recipes/:id", h.GetRecipe)
	group.POST("/recipes", h.CreateRecipe)
	group.PUT("/recipes/:id", h.UpdateRecipe)
	group.DELETE("/recipes/:id", h.DeleteRecipe)
	group.POST("/recipes/from-url", h.CreateFromURL)
	group.POST("/recipes/from-image", h.CreateFromImage)
}

// Root returns the API banner.
func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Recipe App API"})
}

// ListRecipes returns every recipe, newest first.
func (h *Handler) ListRecipes(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), storeTimeout)
	defer cancel()

	recipes, err := h.RecipeStore.List(ctx)
	if err != nil {
		h.storeError(c, err)
		return
	}
	if recipes == nil {
		recipes = []*recipe.Recipe{}
	}
	c.JSON(http.StatusOK, recipes)
}

// GetRecipe returns a single recipe by id.
func (h *Handler) GetRecipe(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), storeTimeout)
	defer cancel()

	r, err := h.RecipeStore.Get(ctx, c.Param("id"))
	if err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// CreateRecipe stores a manually entered recipe.
func (h *Handler) CreateRecipe(c *gin.Context) {
	var req recipe.Create
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithDetail(c, http.StatusBadRequest, err.Error())
		return
	}

	r, err := recipe.New(req, time.Now, recipe.NewID)
	if err != nil {
		abortWithDetail(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), storeTimeout)
	defer cancel()

	stored, err := h.RecipeStore.Insert(ctx, r)
	if err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stored)
}

// UpdateRecipe applies a partial update.
func (h *Handler) UpdateRecipe(c *gin.Context) {
	var req recipe.Update
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithDetail(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		abortWithDetail(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), storeTimeout)
	defer cancel()

	r, err := h.RecipeStore.Update(ctx, c.Param("id"), req)
	if err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// DeleteRecipe removes a recipe.
func (h *Handler) DeleteRecipe(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), storeTimeout)
	defer cancel()

	if err := h.RecipeStore.Delete(ctx, c.Param("id")); err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Recipe deleted successfully"})
}

// CreateFromURL imports a recipe from a web page.
func (h *Handler) CreateFromURL(c *gin.Context) {
	var req URLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithDetail(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), ingestTimeout)
	defer cancel()

	r, err := h.Ingester.CreateFromURL(ctx, req.URL)
	if err != nil {
		h.ingestError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// CreateFromImage extracts a recipe from a photo.
func (h *Handler) CreateFromImage(c *gin.Context) {
	var req ImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithDetail(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), ingestTimeout)
	defer cancel()

	r, err := h.Ingester.CreateFromImage(ctx, req.ImageBase64)
	if err != nil {
		h.ingestError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *Handler) storeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, recipe.ErrNotFound):
		abortWithDetail(c, http.StatusNotFound, "Recipe not found")
	case errors.Is(err, context.DeadlineExceeded):
		abortWithDetail(c, http.StatusRequestTimeout, "Database operation timed out")
	default:
		slog.Error("database error", "path", c.FullPath(), "error", err)
		abortWithDetail(c, http.StatusInternalServerError, "database error: "+err.Error())
	}
}

func (h *Handler) ingestError(c *gin.Context, err error) {
	var fetchErr *extract.FetchError
	var recErr *extract.RecognitionError
	switch {
	case errors.As(err, &fetchErr):
		abortWithDetail(c, http.StatusBadRequest, "Could not extract recipe from URL: "+fetchErr.Error())
	case errors.Is(err, extract.ErrMissingCredential):
		slog.Error("recognition credential missing", "error", err)
		abortWithDetail(c, http.StatusInternalServerError, "LLM API key not configured")
	case errors.Is(err, extract.ErrInvalidImage):
		abortWithDetail(c, http.StatusBadRequest, err.Error())
	case errors.As(err, &recErr):
		slog.Error("recognition failed", "session_id", recErr.SessionID, "error", err)
		abortWithDetail(c, http.StatusBadGateway, "Could not extract recipe from image: "+recErr.Err.Error())
	default:
		h.storeError(c, err)
	}
}

func abortWithDetail(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}
