// Package tunnel publishes the local server, hub included, on a public
// HTTPS address.
package tunnel

import (
	"context"
	"net"
	"strings"
)

// Tunnel exposes a local address via a public HTTPS URL.
type Tunnel interface {
	Start(ctx context.Context, localAddr string) (publicURL string, err error)
	Close() error
	PublicURL() string
	Listener() net.Listener
}

// WebsocketURL turns a public http(s) base URL into the ws(s) address of the
// hub mounted at path.
func WebsocketURL(publicURL, path string) string {
	base := strings.TrimRight(publicURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}
