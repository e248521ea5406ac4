// Package wsurl rewrites server-advertised websocket endpoints into
// client-reachable ones.
//
// The chat service reports the websocket URL it bound to, which inside its
// own network is often an all-interfaces placeholder like ws://0.0.0.0:9000.
// A client outside that network must swap scheme, host and port for those of
// the public service URL while keeping path and query intact.
package wsurl

import (
	"net/url"
	"strings"
)

// Normalize rewrites rawURL so it is reachable through baseURL, the public
// HTTP(S) address of the chat service.
//
//   - Absolute websocket URL with a non-routable host: scheme, host and port
//     are replaced from baseURL (ws for http, wss for https); path and query
//     are preserved.
//   - Non-absolute input: treated as a path and prefixed with baseURL's host
//     and the matching websocket scheme.
//   - Anything that fails to parse is returned unchanged. Normalize is
//     best-effort and never fails.
func Normalize(rawURL, baseURL string) string {
	base, err := url.Parse(baseURL)
	if err != nil || base.Host == "" {
		return rawURL
	}

	scheme := "ws"
	if base.Scheme == "https" || base.Scheme == "wss" {
		scheme = "wss"
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	if !u.IsAbs() {
		// Bare path, e.g. "/ws/abc?token=x".
		rel := &url.URL{
			Scheme:   scheme,
			Host:     base.Host,
			Path:     u.Path,
			RawQuery: u.RawQuery,
		}
		return rel.String()
	}

	if !isBindPlaceholder(u.Hostname()) {
		return rawURL
	}

	u.Scheme = scheme
	u.Host = base.Host
	return u.String()
}

// isBindPlaceholder reports whether host is an all-interfaces bind address
// that no client can actually route to.
func isBindPlaceholder(host string) bool {
	switch strings.ToLower(host) {
	case "0.0.0.0", "::", "[::]", "":
		return true
	}
	return false
}
