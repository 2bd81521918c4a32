package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

// Config tunes a single probe. Passed by value so callers can't share
// mutable client state.
type Config struct {
	Method       string
	Timeout      time.Duration
	MaxRedirects int
	UserAgent    string
	ReadBody     bool
}

// FailKind tags why a probe never produced an HTTP response.
type FailKind string

const (
	FailTimeout    FailKind = "timeout"
	FailDNS        FailKind = "dns"
	FailConnect    FailKind = "connect"
	FailTLS        FailKind = "tls"
	FailInvalidURL FailKind = "invalid_url"
	FailHTTP       FailKind = "http"
)

// Failure is a transport-level probe failure carried as a value, never
// propagated as an error to the orchestrators.
type Failure struct {
	Kind    FailKind
	Message string
}

// Result is the outcome of one probe attempt. StatusCode is nil iff the
// request never completed; Failure is set in exactly that case.
type Result struct {
	StatusCode     *int
	ResponseTimeMS int
	RedirectCount  int
	HasHSTS        bool
	Body           []byte
	LastModified   *time.Time
	Failure        *Failure
}

// Up reports whether the attempt completed with a 2xx/3xx status.
func (r Result) Up() bool {
	return r.Failure == nil && r.StatusCode != nil && *r.StatusCode >= 200 && *r.StatusCode < 400
}

// Prober performs a single HTTP probe against a target URL.
type Prober interface {
	Do(ctx context.Context, target string, cfg Config) Result
}

var errTooManyRedirects = errors.New("too many redirects")

// HTTPProber probes over the network with net/http.
type HTTPProber struct {
	// Transport is shared across probes; nil means http.DefaultTransport.
	Transport http.RoundTripper
}

func NewHTTPProber() *HTTPProber {
	return &HTTPProber{}
}

// maxBodyBytes caps how much of a GET body is kept for inspection.
const maxBodyBytes = 1 << 20

func (p *HTTPProber) Do(ctx context.Context, target string, cfg Config) Result {
	method := cfg.Method
	if method == "" {
		method = http.MethodGet
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	redirects := 0
	client := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: p.Transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			redirects = len(via)
			if cfg.MaxRedirects > 0 && len(via) >= cfg.MaxRedirects {
				return errTooManyRedirects
			}
			return nil
		},
	}

	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return Result{Failure: &Failure{Kind: FailInvalidURL, Message: err.Error()}}
	}
	if cfg.UserAgent != "" {
		req.Header.Set("User-Agent", cfg.UserAgent)
	}

	start := time.Now()
	resp, err := client.Do(req)
	elapsed := int(time.Since(start).Milliseconds())
	if err != nil {
		return Result{
			ResponseTimeMS: elapsed,
			RedirectCount:  redirects,
			Failure:        classify(err),
		}
	}
	defer resp.Body.Close()

	out := Result{
		StatusCode:     &resp.StatusCode,
		ResponseTimeMS: elapsed,
		RedirectCount:  redirects,
		HasHSTS:        resp.Header.Get("Strict-Transport-Security") != "",
		LastModified:   ParseLastModified(resp.Header.Get("Last-Modified")),
	}
	if cfg.ReadBody && method != http.MethodHead {
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if readErr == nil {
			out.Body = body
		}
	}
	return out
}

// classify maps a transport error onto a failure tag. Modeled on how the
// resolver distinguishes NXDOMAIN from SERVFAIL: unwrap the typed error and
// inspect it rather than string-matching.
func classify(err error) *Failure {
	msg := err.Error()

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &Failure{Kind: FailTimeout, Message: msg}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Failure{Kind: FailTimeout, Message: msg}
	}
	var de *net.DNSError
	if errors.As(err, &de) {
		return &Failure{Kind: FailDNS, Message: msg}
	}
	if isTLSError(err) {
		return &Failure{Kind: FailTLS, Message: msg}
	}
	var ue *url.Error
	if errors.As(err, &ue) && errors.Is(ue.Err, errTooManyRedirects) {
		return &Failure{Kind: FailHTTP, Message: fmt.Sprintf("stopped after %s", errTooManyRedirects)}
	}
	return &Failure{Kind: FailConnect, Message: msg}
}

func isTLSError(err error) bool {
	var (
		record   tls.RecordHeaderError
		verify   *tls.CertificateVerificationError
		unknown  x509.UnknownAuthorityError
		hostname x509.HostnameError
		invalid  x509.CertificateInvalidError
	)
	return errors.As(err, &record) ||
		errors.As(err, &verify) ||
		errors.As(err, &unknown) ||
		errors.As(err, &hostname) ||
		errors.As(err, &invalid)
}
