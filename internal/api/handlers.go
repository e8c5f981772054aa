package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/steemit/commentd/internal/comments"
)

const healthTimeout = 2 * time.Second

type previewRequest struct {
	Markdown string `json:"markdown"`
}

type submitRequest struct {
	Slug           string          `json:"slug"`
	Author         string          `json:"author"`
	Body           string          `json:"body"`
	ParentID       json.RawMessage `json:"parentId"`
	TurnstileToken string          `json:"turnstileToken"`
}

// bindJSON decodes the request body. A malformed body yields the zero value, so the pipeline
// reports the missing fields. It returns false after answering 413 for oversized bodies.
func bindJSON[T any](c *gin.Context) (T, bool) {
	var req T
	if err := c.ShouldBindJSON(&req); err != nil {
		var zero T
		if isTooLarge(err) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request too large"})
			return zero, false
		}
		if err != io.EOF {
			requestLogger(c).Debug("Ignoring malformed request body", zap.Error(err))
		}
		return zero, true
	}
	return req, true
}

func (r *Router) statusHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (r *Router) previewHandler(c *gin.Context) {
	req, ok := bindJSON[previewRequest](c)
	if !ok {
		return
	}

	res, err := r.service.Preview(c.Request.Context(), c.ClientIP(), req.Markdown)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (r *Router) listHandler(c *gin.Context) {
	page, limit := comments.ParsePaging(c.Query("page"), c.Query("limit"))

	views, err := r.service.List(c.Request.Context(), c.Query("slug"), page, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": views})
}

func (r *Router) threadHandler(c *gin.Context) {
	nodes, err := r.service.Thread(c.Request.Context(), c.Query("slug"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": nodes})
}

func (r *Router) submitHandler(c *gin.Context) {
	req, ok := bindJSON[submitRequest](c)
	if !ok {
		return
	}

	_, err := r.service.Submit(c.Request.Context(), comments.Submission{
		Slug:      req.Slug,
		Author:    req.Author,
		Body:      req.Body,
		ParentID:  rawParentID(req.ParentID),
		Token:     req.TurnstileToken,
		ClientIP:  c.ClientIP(),
		UserAgent: c.GetHeader("User-Agent"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// healthHandler reports dependency health; 503 when the database or an enabled Redis is down
func (r *Router) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	status := http.StatusOK
	checks := gin.H{}

	if r.db != nil {
		if err := r.db.Health(ctx); err != nil {
			status = http.StatusServiceUnavailable
			checks["database"] = err.Error()
		} else {
			checks["database"] = "OK"
		}
	}

	if r.cache == nil {
		checks["redis"] = "disabled"
	} else if err := r.cache.Health(ctx); err != nil {
		status = http.StatusServiceUnavailable
		checks["redis"] = err.Error()
	} else {
		checks["redis"] = "OK"
	}

	result := "OK"
	if status != http.StatusOK {
		result = "UNAVAILABLE"
	}
	c.JSON(status, gin.H{
		"status":  result,
		"service": "commentd",
		"checks":  checks,
	})
}

// rawParentID accepts parentId as a JSON number or string
func rawParentID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
