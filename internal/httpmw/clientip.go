package httpmw

import (
	"context"
	"net"
	"net/http"
	"strings"
)

type clientIPKey struct{}

// unknownClientIP keys requests whose peer address cannot be parsed. They
// share one rate limit bucket rather than bypassing limiting.
const unknownClientIP = "0.0.0.0"

// ClientIPOptions configures client address resolution.
type ClientIPOptions struct {
	// TrustedHops is the number of reverse proxies in front of the server.
	// 0 ignores X-Forwarded-For entirely, 1 takes the rightmost entry (one
	// load balancer), 2 the second from the right, and so on.
	TrustedHops int
}

// ClientIP resolves the client address with TrustedHops=0.
func ClientIP(next http.Handler) http.Handler {
	return ClientIPWithOptions(ClientIPOptions{})(next)
}

// ClientIPWithOptions resolves the client address once per request and
// stores it in the context for the correlation context, logger and limiter.
func ClientIPWithOptions(opts ClientIPOptions) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := resolveClientIP(r, opts.TrustedHops)
			next.ServeHTTP(w, r.WithContext(WithClientIP(r.Context(), ip)))
		})
	}
}

// resolveClientIP trusts X-Forwarded-For only when the peer is a private
// address and proxies are configured. In every other case the forwarding
// headers are removed so nothing downstream can trust them by accident.
func resolveClientIP(r *http.Request, trustedHops int) string {
	if r.RemoteAddr == "" {
		return unknownClientIP
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	peer := net.ParseIP(host)
	if peer == nil {
		return unknownClientIP
	}

	if trustedHops <= 0 || !peer.IsPrivate() && !peer.IsLoopback() {
		dropForwarded(r)
		return peer.String()
	}

	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		return peer.String()
	}
	hops := strings.Split(xff, ",")
	idx := len(hops) - trustedHops
	if idx < 0 {
		// fewer hops than proxies: misconfigured or forged, fail closed
		dropForwarded(r)
		return peer.String()
	}
	if ip := net.ParseIP(strings.TrimSpace(hops[idx])); ip != nil {
		return ip.String()
	}
	return peer.String()
}

func dropForwarded(r *http.Request) {
	r.Header.Del("X-Forwarded-For")
	r.Header.Del("X-Forwarded-Proto")
}

// ClientIPFromContext returns the resolved client address, or "".
func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIPKey{}, ip)
}
