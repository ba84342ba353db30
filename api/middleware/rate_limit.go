package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/localkart/localkart-backend/api/responses"
	"github.com/localkart/localkart-backend/pkg/config"
	pkgerrors "github.com/localkart/localkart-backend/pkg/errors"
	"github.com/localkart/localkart-backend/pkg/logger"
)

type rateLimiterStore interface {
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
}

// HandoffVerifyRateLimit throttles verification attempts per actor and
// order so the six-digit code cannot be brute forced through the API
// before the token's own attempt cap trips.
func HandoffVerifyRateLimit(cfg config.RateLimitConfig, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if cfg.HandoffVerifyWindow <= 0 || cfg.HandoffVerifyLimit <= 0 || store == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			actor := UserIDFromContext(ctx)
			if actor == "" {
				actor = clientIP(r)
			}
			orderID := chi.URLParam(r, "orderId")
			key := fmt.Sprintf("rl:handoff:%s:%s", actor, orderID)

			count, err := store.IncrWithTTL(ctx, key, cfg.HandoffVerifyWindow)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
				return
			}
			if count > int64(cfg.HandoffVerifyLimit) {
				if logg != nil {
					logCtx := logg.WithFields(ctx, map[string]any{
						"order_id":       orderID,
						"attempts":       count,
						"limit":          cfg.HandoffVerifyLimit,
						"window_seconds": int(cfg.HandoffVerifyWindow.Seconds()),
					})
					logg.Warn(logCtx, "handoff.rate_limit.blocked")
				}
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
