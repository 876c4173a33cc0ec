// Package handler exposes the blog repository over HTTP.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mantica/blog/backend/go-services/internal/blog"
	"github.com/mantica/blog/backend/go-services/internal/blog/repository"
	"github.com/mantica/blog/backend/go-services/internal/store"
	"github.com/mantica/blog/backend/go-services/pkg/logger"
	"github.com/mantica/blog/backend/go-services/pkg/middleware"
)

const (
	defaultCount = 10
	maxCount     = 100
	// AdminRole guards the author catalog.
	AdminRole = "admin"
)

// Revoker signs tokens out before they expire.
type Revoker interface {
	Revoke(ctx context.Context, raw string, expiresAt time.Time) error
}

type Handler struct {
	repo    repository.Admin
	revoker Revoker
}

// New returns a handler over repo. revoker may be nil, which disables sign-out.
func New(repo repository.Admin, revoker Revoker) *Handler {
	return &Handler{repo: repo, revoker: revoker}
}

// Register mounts the read routes and, when ver is not nil, the author and
// admin routes behind Bearer authentication.
func Register(r *gin.Engine, repo repository.Admin, ver middleware.Verifier, revoker Revoker, limit ...gin.HandlerFunc) {
	h := New(repo, revoker)
	h.RegisterReadRoutes(r.Group("/api/read/:lang", limit...))
	if ver == nil {
		logger.Warnf("no token verifier configured; author and admin routes not registered")
		return
	}
	// limiters run after authentication so they can key on the subject
	author := r.Group("/api/author", middleware.AuthMiddleware(ver))
	author.Use(limit...)
	h.RegisterAuthorRoutes(author)
	admin := r.Group("/api/admin", middleware.AuthMiddleware(ver))
	admin.Use(limit...)
	admin.Use(middleware.RequireRole(AdminRole))
	h.RegisterAdminRoutes(admin)
}

func (h *Handler) RegisterReadRoutes(rg *gin.RouterGroup) {
	rg.GET("/articles", h.getArticles)
	rg.GET("/articles/:slug", h.getArticleBySlug)
	rg.GET("/metadata", h.getMetadataVersions)
	rg.GET("/metadata/:type/:slug/articles", h.getArticlesByMetadata)
	rg.GET("/authors/:slug/articles", h.getArticlesByAuthor)
}

func (h *Handler) RegisterAuthorRoutes(rg *gin.RouterGroup) {
	rg.POST("/articles", h.createArticle)
	rg.PUT("/articles/:id", h.updateArticle)
	rg.GET("/articles", h.getArticlesByAuthorID)
	rg.GET("/metadata", h.getMetadata)
	rg.PUT("/metadata", h.updateMetadata)
	if h.revoker != nil {
		rg.POST("/logout", h.logout)
	}
}

func (h *Handler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.GET("/authors", h.getAuthors)
	rg.PUT("/authors", h.updateAuthors)
}

// page reads the after/count query parameters.
func page(c *gin.Context) (string, int, bool) {
	count := defaultCount
	if s := c.Query("count"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "count must be a non-negative integer"})
			return "", 0, false
		}
		count = min(n, maxCount)
	}
	return c.Query("after"), count, true
}

func (h *Handler) getArticles(c *gin.Context) {
	after, count, ok := page(c)
	if !ok {
		return
	}
	list, err := h.repo.GetArticles(c.Request.Context(), after, count, c.Param("lang"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) getArticleBySlug(c *gin.Context) {
	v, err := h.repo.GetArticleBySlug(c.Request.Context(), c.Param("slug"), c.Param("lang"))
	if err != nil {
		writeError(c, err)
		return
	}
	if v == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *Handler) getMetadataVersions(c *gin.Context) {
	list, err := h.repo.GetMetadataVersions(c.Request.Context(), c.Param("lang"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) getArticlesByMetadata(c *gin.Context) {
	t, err := blog.ParseMetadataType(c.Param("type"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	after, count, ok := page(c)
	if !ok {
		return
	}
	list, err := h.repo.GetArticlesByMetadata(c.Request.Context(), after, count, c.Param("lang"), t, c.Param("slug"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) getArticlesByAuthor(c *gin.Context) {
	after, count, ok := page(c)
	if !ok {
		return
	}
	list, err := h.repo.GetArticlesByAuthor(c.Request.Context(), after, count, c.Param("lang"), c.Param("slug"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) createArticle(c *gin.Context) {
	var a blog.Article
	if err := c.ShouldBindJSON(&a); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := h.repo.CreateArticle(c.Request.Context(), &a)
	if err != nil {
		writeError(c, err)
		return
	}
	logger.Infof("article %s created by %q", id, middleware.Subject(c))
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (h *Handler) updateArticle(c *gin.Context) {
	var a blog.Article
	if err := c.ShouldBindJSON(&a); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id := c.Param("id")
	if a.ID != "" && a.ID != id {
		c.JSON(http.StatusBadRequest, gin.H{"error": "article id does not match the path"})
		return
	}
	a.ID = id
	if err := h.repo.UpdateArticle(c.Request.Context(), &a); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

func (h *Handler) getArticlesByAuthorID(c *gin.Context) {
	author := c.Query("author")
	if author == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "author query parameter is required"})
		return
	}
	list, err := h.repo.GetArticlesByAuthorID(c.Request.Context(), author)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) getMetadata(c *gin.Context) {
	m, err := h.repo.GetMetadata(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	if m == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.Header("ETag", m.ETag)
	c.JSON(http.StatusOK, m)
}

// If-Match takes precedence over the _etag field of the body.
func (h *Handler) updateMetadata(c *gin.Context) {
	var m blog.Metadata
	if err := c.ShouldBindJSON(&m); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if etag := c.GetHeader("If-Match"); etag != "" {
		m.ETag = etag
	}
	if err := h.repo.UpdateMetadata(c.Request.Context(), &m); err != nil {
		writeError(c, err)
		return
	}
	c.Header("ETag", m.ETag)
	c.JSON(http.StatusOK, m)
}

func (h *Handler) getAuthors(c *gin.Context) {
	a, err := h.repo.GetAuthors(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	if a == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.Header("ETag", a.ETag)
	c.JSON(http.StatusOK, a)
}

func (h *Handler) updateAuthors(c *gin.Context) {
	var a blog.Authors
	if err := c.ShouldBindJSON(&a); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if etag := c.GetHeader("If-Match"); etag != "" {
		a.ETag = etag
	}
	if err := h.repo.UpdateAuthors(c.Request.Context(), &a); err != nil {
		writeError(c, err)
		return
	}
	c.Header("ETag", a.ETag)
	c.JSON(http.StatusOK, a)
}

// logout revokes the bearer token of the request until its expiry.
func (h *Handler) logout(c *gin.Context) {
	raw, _ := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	exp, ok := middleware.Claims(c)["exp"].(float64)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token has no expiry"})
		return
	}
	if err := h.revoker.Revoke(c.Request.Context(), strings.TrimSpace(raw), time.Unix(int64(exp), 0)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func writeError(c *gin.Context, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		logger.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, repository.ErrPrecondition):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrDuplicateID), errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, store.ErrPreconditionFailed):
		return http.StatusPreconditionFailed
	case errors.Is(err, repository.ErrNotImplemented):
		return http.StatusNotImplemented
	}
	return http.StatusInternalServerError
}
