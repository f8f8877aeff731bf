package httpx

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RateLimit allows rps requests per second per caller, counted in redis so
// every instance shares the budget. Callers are keyed by user id, or by
// remote address when anonymous. When redis is unavailable requests pass.
func RateLimit(rdb *redis.Client, rps int, log zerolog.Logger) func(http.Handler) http.Handler {
	return rateLimit(rdb, rps, log, time.Now)
}

func rateLimit(rdb *redis.Client, rps int, log zerolog.Logger, clock func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if rdb == nil || rps <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "rate:" + callerKey(r) + ":" + strconv.FormatInt(clock().Unix(), 10)

			var incr *redis.IntCmd
			_, err := rdb.TxPipelined(r.Context(), func(pipe redis.Pipeliner) error {
				incr = pipe.Incr(r.Context(), key)
				pipe.Expire(r.Context(), key, 2*time.Second)
				return nil
			})
			if err != nil {
				log.Warn().Err(err).Msg("ratelimit: redis unavailable, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			if incr.Val() > int64(rps) {
				w.Header().Set("Retry-After", "1")
				WriteError(w, http.StatusTooManyRequests, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func callerKey(r *http.Request) string {
	if id := UserID(r); id != "" {
		return "user:" + id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
