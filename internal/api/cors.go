package api

import (
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

var (
	corsMethods = strings.Join([]string{http.MethodGet, http.MethodPost, http.MethodOptions}, ", ")
	corsHeaders = "Content-Type"
	corsMaxAge  = strconv.Itoa(600)
)

type corsPolicy struct {
	allowed  map[string]struct{}
	fallback string
}

// CORS answers cross-origin requests from an allowlist that can be replaced at runtime
type CORS struct {
	policy atomic.Pointer[corsPolicy]
}

// NewCORS creates a CORS policy. Origins not in origins are answered with fallback.
func NewCORS(origins []string, fallback string) *CORS {
	c := &CORS{}
	c.Update(origins, fallback)
	return c
}

// Update swaps the allowlist
func (c *CORS) Update(origins []string, fallback string) {
	p := &corsPolicy{allowed: make(map[string]struct{}, len(origins)), fallback: fallback}
	for _, o := range origins {
		p.allowed[o] = struct{}{}
	}
	c.policy.Store(p)
}

// AllowOrigin returns the Access-Control-Allow-Origin value for a request origin
func (c *CORS) AllowOrigin(origin string) string {
	p := c.policy.Load()
	if origin != "" {
		if _, ok := p.allowed[origin]; ok {
			return origin
		}
	}
	return p.fallback
}

// Middleware sets CORS headers and answers preflight requests
func (c *CORS) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		h := ctx.Writer.Header()
		h.Set("Access-Control-Allow-Origin", c.AllowOrigin(ctx.GetHeader("Origin")))
		h.Add("Vary", "Origin")

		if ctx.Request.Method == http.MethodOptions {
			h.Set("Access-Control-Allow-Methods", corsMethods)
			h.Set("Access-Control-Allow-Headers", corsHeaders)
			h.Set("Access-Control-Max-Age", corsMaxAge)
			ctx.AbortWithStatus(http.StatusNoContent)
			return
		}

		ctx.Next()
	}
}
