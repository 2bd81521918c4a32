package probe

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"
)

// SSLInfo is leaf-certificate expiry metadata for a host.
// DaysRemaining is signed; negative means the certificate already expired.
type SSLInfo struct {
	ExpiresAt     time.Time
	DaysRemaining int
}

// InspectSSL dials host:port, reads the leaf certificate and computes days to
// expiry. Chain verification is skipped on purpose: the point is reading the
// expiry off self-signed or misconfigured hosts too, not establishing trust.
func InspectSSL(ctx context.Context, host string, port int) (*SSLInfo, error) {
	if port <= 0 {
		port = 443
	}
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: 10 * time.Second},
		Config: &tls.Config{
			ServerName:         host,
			InsecureSkipVerify: true,
		},
	}
	conn, err := dialer.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return nil, fmt.Errorf("tls dial %s:%d: %w", host, port, err)
	}
	defer conn.Close()

	state := conn.(*tls.Conn).ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return nil, errors.New("no peer certificates presented")
	}
	leaf := state.PeerCertificates[0]

	return &SSLInfo{
		ExpiresAt:     leaf.NotAfter,
		DaysRemaining: DaysUntil(leaf.NotAfter, time.Now()),
	}, nil
}

// DaysUntil is floor((t - now) / 24h), signed.
func DaysUntil(t, now time.Time) int {
	d := t.Sub(now)
	days := int(d / (24 * time.Hour))
	if d < 0 && d%(24*time.Hour) != 0 {
		days--
	}
	return days
}
