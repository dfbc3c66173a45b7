package server

import (
	"encoding/hex"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/worldpulse/internal/config"
	obscontext "github.com/smallbiznis/worldpulse/internal/observability/context"
	"github.com/smallbiznis/worldpulse/internal/observability/logger"
	"github.com/smallbiznis/worldpulse/internal/tally"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

const (
	HeaderConnectingIP = "CF-Connecting-IP"
	HeaderForwardedFor = "X-Forwarded-For"
	HeaderCountry      = "CF-IPCountry"

	contextVoterKey   = "voter_key"
	contextCountryKey = "country_code"

	unknownClient = "unknown"
)

// VoterHasher derives the opaque voter key from a client address.
type VoterHasher struct {
	key []byte
}

func NewVoterHasher(cfg config.Config) *VoterHasher {
	key := []byte(cfg.VoterKeySalt)
	if len(key) > blake2b.Size {
		sum := blake2b.Sum256(key)
		key = sum[:]
	}
	return &VoterHasher{key: key}
}

func (h *VoterHasher) Hash(clientAddr string) string {
	mac, err := blake2b.New256(h.key)
	if err != nil {
		// only reachable with a key over 64 bytes, which NewVoterHasher prevents
		panic(err)
	}
	mac.Write([]byte(clientAddr))
	return hex.EncodeToString(mac.Sum(nil))
}

// VoterIdentity resolves the caller's voter key and country from the edge
// headers. Raw addresses never leave this middleware.
func VoterIdentity(hasher *VoterHasher) gin.HandlerFunc {
	return func(c *gin.Context) {
		voterKey := hasher.Hash(clientAddress(c))
		country := countryCode(c.GetHeader(HeaderCountry))

		c.Set(contextVoterKey, voterKey)
		c.Set(contextCountryKey, country)
		c.Request = c.Request.WithContext(obscontext.WithActor(c.Request.Context(), "voter", voterKey[:12]))
		c.Next()
	}
}

func clientAddress(c *gin.Context) string {
	if ip := strings.TrimSpace(c.GetHeader(HeaderConnectingIP)); ip != "" {
		return ip
	}
	if forwarded := c.GetHeader(HeaderForwardedFor); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if remote := strings.TrimSpace(c.Request.RemoteAddr); remote != "" {
		if host, _, err := net.SplitHostPort(remote); err == nil && host != "" {
			return host
		}
		return remote
	}
	return unknownClient
}

func countryCode(raw string) string {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if len(code) != 2 {
		return tally.UnknownCountry
	}
	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return tally.UnknownCountry
		}
	}
	return code
}

func voterKey(c *gin.Context) string {
	return c.GetString(contextVoterKey)
}

func voterCountry(c *gin.Context) string {
	if code := c.GetString(contextCountryKey); code != "" {
		return code
	}
	return tally.UnknownCountry
}

// VoterRateLimit throttles write endpoints per voter key. A disabled limiter
// passes every request through.
func (s *Server) VoterRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil || !s.limiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		endpoint := normalizeRateLimitEndpoint(c)
		result, err := s.limiter.Allow(ctx, endpoint, voterKey(c))
		if err != nil {
			logger.FromContext(ctx).Warn("ratelimit.check.failed", zap.String("endpoint", endpoint), zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !result.Allowed {
			logger.FromContext(ctx).Info("ratelimit.denied", zap.String("endpoint", endpoint))
			s.metrics.RecordRateLimited(ctx, endpoint)
			retry := result.RetryAfter
			if retry < time.Second {
				retry = time.Second
			}
			c.Header("Retry-After", strconv.Itoa(int(retry/time.Second)))
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return c.Request.Method + " " + endpoint
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", logger.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", "Retry-After", logger.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}
