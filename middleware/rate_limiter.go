package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Catalog reads and pointer-session management are cheap; image uploads,
// captures and order submissions each cost a raster or a storage round trip.
// Every IP gets a separate budget per class so a capture loop cannot starve
// browsing, and vice versa.
const (
	readRate   rate.Limit = 5
	readBurst             = 30
	heavyRate  rate.Limit = 1
	heavyBurst            = 5
)

type visitor struct {
	read     *rate.Limiter
	heavy    *rate.Limiter
	lastSeen time.Time
}

var (
	visitors = make(map[string]*visitor)
	mu       sync.Mutex
)

func isHeavyRequest(r *http.Request) bool {
	if r.Method != http.MethodPost {
		return false
	}
	p := r.URL.Path
	return strings.HasSuffix(p, "/image") || strings.HasSuffix(p, "/capture") || strings.HasSuffix(p, "/order")
}

func RateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.Header.Get("X-Forwarded-For")
		if ip == "" {
			ip, _, _ = net.SplitHostPort(r.RemoteAddr)
		}

		limiter := getLimiter(ip, isHeavyRequest(r))

		if !limiter.Allow() {
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func getLimiter(ip string, heavy bool) *rate.Limiter {
	mu.Lock()
	defer mu.Unlock()

	v, exists := visitors[ip]
	if !exists {
		v = &visitor{
			read:  rate.NewLimiter(readRate, readBurst),
			heavy: rate.NewLimiter(heavyRate, heavyBurst),
		}
		visitors[ip] = v
	}
	v.lastSeen = time.Now()

	if heavy {
		return v.heavy
	}
	return v.read
}

func CleanupVisitors() {
	for {
		time.Sleep(time.Minute)
		mu.Lock()
		for ip, v := range visitors {
			if time.Since(v.lastSeen) > 3*time.Minute {
				delete(visitors, ip)
			}
		}
		mu.Unlock()
	}
}
