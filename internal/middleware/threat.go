package middleware

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/scrapemaster/sentinel/pkg/engine"
	"github.com/scrapemaster/sentinel/pkg/types"
)

// ThreatConfig controls fingerprint construction.
type ThreatConfig struct {
	JWTSecret           string
	MaxBodyInspectBytes int64
}

// ThreatAnalysis is the enforcement point: every request through it gets a
// fingerprint, a verdict from the engine and, unless allowed, a terminal
// response. Handlers behind it only ever see allowed traffic.
func ThreatAnalysis(eng *engine.Engine, cfg ThreatConfig) gin.HandlerFunc {
	maxBody := cfg.MaxBodyInspectBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}

	return func(c *gin.Context) {
		fp := buildFingerprint(c, cfg.JWTSecret, maxBody)
		resp := eng.Analyze(c.Request.Context(), fp)

		switch resp.Action {
		case types.ActionAllow:
			c.Next()

		case types.ActionRateLimit:
			retryAfter := int(resp.RetryAfter / time.Second)
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       resp.Reason,
				"code":        "RATE_LIMITED",
				"retry_after": retryAfter,
			})
			c.Abort()

		case types.ActionChallenge:
			c.Header("X-Verification-Required", "true")
			c.JSON(http.StatusForbidden, gin.H{
				"error": resp.Reason,
				"code":  "CHALLENGE_REQUIRED",
			})
			c.Abort()

		default:
			c.JSON(http.StatusForbidden, gin.H{
				"error": resp.Reason,
				"code":  "BLOCKED",
			})
			c.Abort()
		}
	}
}

// buildFingerprint snapshots the request for analysis. The body is read up
// to the inspection cap and restored so downstream handlers still see it.
func buildFingerprint(c *gin.Context, jwtSecret string, maxBody int64) *types.RequestFingerprint {
	fp := &types.RequestFingerprint{
		SourceIP:  c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Path:      c.Request.URL.Path,
		Method:    c.Request.Method,
		Timestamp: time.Now(),
	}

	fp.UserID, fp.SessionID = IdentityFromRequest(c, jwtSecret)
	if fp.SessionID == "" {
		if cookie, err := c.Cookie("session_id"); err == nil {
			fp.SessionID = cookie
		}
	}

	query := c.Request.URL.Query()
	if len(query) > 0 {
		fp.QueryParams = make(map[string]string, len(query))
		for key, values := range query {
			if len(values) > 0 {
				fp.QueryParams[key] = values[0]
			}
		}
	}

	if len(c.Request.Header) > 0 {
		fp.Headers = make(map[string]string, len(c.Request.Header))
		for key, values := range c.Request.Header {
			if key == "Authorization" || key == "Cookie" {
				continue
			}
			if len(values) > 0 {
				fp.Headers[key] = values[0]
			}
		}
	}

	if c.Request.Body != nil && inspectableMethod(c.Request.Method) {
		limited := io.LimitReader(c.Request.Body, maxBody)
		data, err := io.ReadAll(limited)
		if err == nil && len(data) > 0 {
			fp.Body = string(data)
			rest, _ := io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(io.MultiReader(bytes.NewReader(data), bytes.NewReader(rest)))
		}
	}

	return fp
}

func inspectableMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
