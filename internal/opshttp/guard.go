package opshttp

import (
	"net"
	"net/http"
	"net/netip"

	"github.com/keithlinneman/linnemanlabs-api/internal/log"
)

// requireNonPublicNetwork rejects peers outside loopback, RFC 1918/4193 and
// link-local ranges. The peer is taken from RemoteAddr only; forwarded
// headers are never consulted on the admin listener.
func requireNonPublicNetwork(L log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !nonPublicPeer(r.RemoteAddr) {
			L.Warn(r.Context(), "admin request from public network rejected",
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path,
			)
			http.Error(w, "forbidden\n", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func nonPublicPeer(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return false
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	return addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast()
}
