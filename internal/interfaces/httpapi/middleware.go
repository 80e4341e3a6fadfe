package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pickuphub/pickup-backend/internal/domain/player"
	"github.com/pickuphub/pickup-backend/internal/platform/id"
	"github.com/pickuphub/pickup-backend/internal/platform/logging"
	"github.com/pickuphub/pickup-backend/internal/usecase"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	actorIDHeader   = "X-Actor-Id"
	actorNameHeader = "X-Actor-Name"
	requestIDHeader = "X-Request-Id"
)

// RequestID tags every request for log correlation. An inbound ID from the
// gateway is kept so one chat command can be traced across services.
func RequestID(generator id.Generator, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" && generator != nil {
			if minted, err := generator.NewID(); err == nil {
				requestID = minted
			}
		}
		if requestID == "" {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set(requestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(withRequestID(r.Context(), requestID)))
	})
}

// RequireActor resolves the acting player from the gateway headers. The chat
// gateway authenticates members before forwarding, so the headers are trusted
// as-is.
func RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := startSpan(r.Context(), "httpapi.RequireActor")
		defer span.End()

		actor := player.Ref{
			ID:          strings.TrimSpace(r.Header.Get(actorIDHeader)),
			DisplayName: strings.TrimSpace(r.Header.Get(actorNameHeader)),
		}
		if actor.ID == "" {
			writeError(ctx, w, fmt.Errorf("%w: %s header is required", usecase.ErrValidation, actorIDHeader))
			return
		}
		if actor.DisplayName == "" {
			actor.DisplayName = actor.ID
		}

		next.ServeHTTP(w, r.WithContext(withActor(ctx, actor)))
	})
}

// FloodGuard throttles per-actor request bursts before any service runs.
// Repeat requests from an actor who is already timed out get an empty 429,
// matching the silent treatment on the chat surface.
func FloodGuard(guards *usecase.GuardService, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := startSpan(r.Context(), "httpapi.FloodGuard")
		defer span.End()

		actor, ok := actorFromContext(ctx)
		if !ok {
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		decision := guards.CheckFlood(ctx, r.PathValue("communityID"), actor.ID)
		if decision.Allowed {
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(decision.Timeout.Seconds())))
		if decision.JustTimedOut {
			writeError(ctx, w, fmt.Errorf("%w: too many commands, timed out for %s",
				usecase.ErrEligibility, decision.Timeout))
			return
		}
		w.WriteHeader(http.StatusTooManyRequests)
	})
}

func RequestLogging(logger *logging.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := startSpan(r.Context(), "httpapi.RequestLogging")
		defer span.End()

		started := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))

		fields := []any{
			"http_method", r.Method,
			"http_path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"duration_ms", time.Since(started).Milliseconds(),
		}
		if requestID := requestIDFromContext(ctx); requestID != "" {
			fields = append(fields, "request_id", requestID)
		}
		logger.InfoContext(ctx, "http_request", fields...)
	})
}

func RequestTracing(next http.Handler) http.Handler {
	return otelhttp.NewHandler(next, "pickup-backend-http",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
		otelhttp.WithFilter(func(r *http.Request) bool {
			return shouldTraceRequest(r.URL.Path)
		}),
	)
}

func shouldTraceRequest(path string) bool {
	normalized := strings.ToLower(strings.TrimSpace(path))
	switch normalized {
	case "/healthz", "/health", "/livez", "/readyz":
		return false
	default:
		return true
	}
}

func CORS(allowedOrigins []string, next http.Handler) http.Handler {
	allowAll := false
	allowMap := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		candidate := strings.TrimSpace(origin)
		if candidate == "" {
			continue
		}
		if candidate == "*" {
			allowAll = true
			continue
		}
		allowMap[candidate] = struct{}{}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := startSpan(r.Context(), "httpapi.CORS")
		defer span.End()

		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin == "" {
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		allowed := allowAll
		if !allowed {
			_, allowed = allowMap[origin]
		}
		if allowed {
			if allowAll {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization,Content-Type,Accept,"+actorIDHeader+","+actorNameHeader)
			w.Header().Set("Access-Control-Max-Age", "600")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
