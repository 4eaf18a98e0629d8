package tunnel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"

	ngroklib "golang.ngrok.com/ngrok"
	ngrokconfig "golang.ngrok.com/ngrok/config"
)

// ErrNoAuthToken is returned by Start when no ngrok authtoken is configured.
var ErrNoAuthToken = errors.New("ngrok authtoken is required (tunnel.authtoken or CRIER_NGROK_AUTHTOKEN)")

// NgrokTunnel serves crier through an ngrok HTTP endpoint.
type NgrokTunnel struct {
	authToken string
	domain    string
	listener  net.Listener
	url       string
}

// NewNgrok creates an unstarted tunnel. An empty domain asks ngrok for a
// random one.
func NewNgrok(authToken, domain string) *NgrokTunnel {
	return &NgrokTunnel{authToken: authToken, domain: domain}
}

// Start opens the endpoint. ngrok owns the listener, so localAddr is only
// logged; callers serve HTTP on Listener().
func (n *NgrokTunnel) Start(ctx context.Context, localAddr string) (string, error) {
	if n.authToken == "" {
		return "", ErrNoAuthToken
	}

	endpoint := ngrokconfig.HTTPEndpoint()
	if n.domain != "" {
		endpoint = ngrokconfig.HTTPEndpoint(ngrokconfig.WithDomain(n.domain))
	}

	slog.Info("opening ngrok tunnel", "local_addr", localAddr, "domain", n.domain)
	listener, err := ngroklib.Listen(ctx, endpoint, ngroklib.WithAuthtoken(n.authToken))
	if err != nil {
		return "", fmt.Errorf("opening ngrok tunnel: %w", err)
	}

	n.listener = listener
	n.url = listener.Addr().String()
	if !strings.HasPrefix(n.url, "http://") && !strings.HasPrefix(n.url, "https://") {
		n.url = "https://" + n.url
	}

	slog.Info("ngrok tunnel ready", "public_url", n.url)
	return n.url, nil
}

// Close tears the tunnel down. Closing an unstarted tunnel is a no-op.
func (n *NgrokTunnel) Close() error {
	if n.listener == nil {
		return nil
	}
	slog.Info("closing ngrok tunnel", "public_url", n.url)
	err := n.listener.Close()
	n.listener = nil
	n.url = ""
	if err != nil {
		return fmt.Errorf("closing ngrok tunnel: %w", err)
	}
	return nil
}

func (n *NgrokTunnel) PublicURL() string {
	return n.url
}

func (n *NgrokTunnel) Listener() net.Listener {
	return n.listener
}
