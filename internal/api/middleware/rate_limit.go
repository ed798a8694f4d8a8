package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ayo6706/mfs-ledger/internal/api/problem"
	"github.com/go-chi/httprate"
)

// PublicRateLimiter limits registration and login per client IP.
func PublicRateLimiter(rps int) func(http.Handler) http.Handler {
	return httprate.Limit(rps, time.Second,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(limitExceeded("client address", rps)),
	)
}

// AuthRateLimiter limits authenticated traffic per account mobile, so one
// account cannot hammer transfers from many addresses.
func AuthRateLimiter(rps int) func(http.Handler) http.Handler {
	return httprate.Limit(rps, time.Second,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if mobile := UserMobileFromContext(r.Context()); mobile != "" {
				return "acct:" + mobile, nil
			}
			return httprate.KeyByIP(r)
		}),
		httprate.WithLimitHandler(limitExceeded("account", rps)),
	)
}

func limitExceeded(scope string, rps int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		problem.Write(w, r,
			http.StatusTooManyRequests,
			problem.Type("rate-limit/exceeded"),
			http.StatusText(http.StatusTooManyRequests),
			fmt.Sprintf("more than %d requests per second from this %s", rps, scope),
		)
	}
}
