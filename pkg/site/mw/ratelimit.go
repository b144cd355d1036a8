package mw

import (
	"net/http"
	"time"

	"github.com/vango-go/portfolio/pkg/site/apierror"
	"github.com/vango-go/portfolio/pkg/site/config"
	"github.com/vango-go/portfolio/pkg/site/ratelimit"
)

// RateLimit applies the per-client token bucket to next. onLimited, when set,
// is called for every rejected request.
func RateLimit(cfg config.Config, limiter *ratelimit.Limiter, next http.Handler, onLimited func()) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		dec := limiter.AcquireRequest(ratelimit.ClientKey(r, cfg.TrustProxyHeaders), time.Now())
		if !dec.Allowed {
			if onLimited != nil {
				onLimited()
			}
			reqID, _ := RequestIDFrom(r.Context())
			apierror.WriteRateLimited(w, reqID, dec.RetryAfter)
			return
		}
		next.ServeHTTP(w, r)
	})
}
