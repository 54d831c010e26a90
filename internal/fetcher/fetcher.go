// Package fetcher retrieves court directory pages and reduces them to text
// and links, classifying every failure instead of returning it to the batch.
package fetcher

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
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/court-inventory/internal/config"
	"github.com/sells-group/court-inventory/internal/resilience"
)

// FailureReason classifies why a fetch did not produce content.
type FailureReason string

const (
	FailureNone         FailureReason = ""
	FailureInvalidURL   FailureReason = "invalid_url"
	FailureDNS          FailureReason = "dns"
	FailureRedirectLoop FailureReason = "redirect_loop"
	FailureCertificate  FailureReason = "certificate"
	FailureTLS          FailureReason = "tls"
	FailureHTTPStatus   FailureReason = "http_status"
	FailureBlocked      FailureReason = "blocked"
	FailureNoContent    FailureReason = "no_content"
	FailureNetwork      FailureReason = "network"
)

// Result is the outcome of one Fetch or Probe.
type Result struct {
	URL        string
	FinalURL   string
	StatusCode int
	HTML       string
	Text       string
	Links      []Link
	Insecure   bool
	Failure    FailureReason
	Err        error

	transient bool
}

// OK reports whether the fetch produced usable content.
func (r Result) OK() bool {
	return r.Failure == FailureNone && r.Err == nil
}

// Options configures a Fetcher.
type Options struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int64
	HostRate     float64
	Retry        resilience.Policy
	// TLSAllowlist names hosts (and their subdomains) that may be retried
	// without certificate verification after a certificate failure.
	TLSAllowlist []string
}

// OptionsFromConfig maps fetch configuration onto Options.
func OptionsFromConfig(cfg config.FetchConfig) Options {
	return Options{
		UserAgent:    cfg.UserAgent,
		Timeout:      time.Duration(cfg.TimeoutSecs) * time.Second,
		MaxBodyBytes: cfg.MaxBodyBytes,
		HostRate:     cfg.HostRateLimit,
		Retry:        resilience.NewPolicy(cfg.MaxAttempts, cfg.InitialBackoffMs, cfg.MaxBackoffMs),
		TLSAllowlist: cfg.TLSAllowlist,
	}
}

// Fetcher downloads pages over HTTP with per-host pacing and bounded retry.
type Fetcher struct {
	opts     Options
	client   *http.Client
	insecure *http.Client
	limiters *hostLimiters
	log      *zap.Logger
}

var errRedirectLoop = errors.New("redirect loop")

// New creates a Fetcher. Zero-valued options take defaults.
func New(opts Options) *Fetcher {
	if opts.UserAgent == "" {
		opts.UserAgent = "court-inventory/1.0"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 5 << 20
	}
	if opts.Retry.Attempts <= 0 {
		opts.Retry = resilience.DefaultPolicy()
	}

	return &Fetcher{
		opts:     opts,
		client:   newClient(opts.Timeout, false),
		insecure: newClient(opts.Timeout, true),
		limiters: newHostLimiters(opts.HostRate),
		log:      zap.L().With(zap.String("component", "fetcher")),
	}
}

func newClient(timeout time.Duration, skipVerify bool) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout: 10 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}
	if skipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // allow-listed hosts only
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return errRedirectLoop
			}
			for _, prev := range via {
				if prev.URL.String() == req.URL.String() {
					return errRedirectLoop
				}
			}
			return nil
		},
	}
}

// Fetch downloads rawURL and extracts its text and links. It never returns an
// error; failures are reported through Result.Failure and Result.Err.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) Result {
	return f.run(ctx, rawURL, http.MethodGet)
}

// Probe checks that rawURL answers with a non-error status. It issues a HEAD
// request and falls back to GET for servers that reject HEAD.
func (f *Fetcher) Probe(ctx context.Context, rawURL string) Result {
	return f.run(ctx, rawURL, http.MethodHead)
}

func (f *Fetcher) run(ctx context.Context, rawURL, method string) Result {
	u, err := NormalizeURL(rawURL)
	if err != nil {
		return Result{URL: rawURL, Failure: FailureInvalidURL, Err: err}
	}

	res := f.withRetry(ctx, u, method, false)
	if res.Failure == FailureCertificate && f.allowInsecure(u) {
		f.log.Warn("certificate verification failed for allow-listed host, retrying without verification",
			zap.String("url", u),
			zap.Error(res.Err),
		)
		res = f.withRetry(ctx, u, method, true)
		res.Insecure = true
	}
	if method == http.MethodHead && (res.StatusCode == http.StatusMethodNotAllowed || res.StatusCode == http.StatusNotImplemented) {
		insecure := res.Insecure
		res = f.withRetry(ctx, u, http.MethodGet, insecure)
		res.Insecure = insecure
	}
	if !res.OK() {
		f.log.Info("fetch failed",
			zap.String("url", u),
			zap.String("reason", string(res.Failure)),
			zap.Int("status", res.StatusCode),
			zap.Error(res.Err),
		)
	}
	return res
}

func (f *Fetcher) withRetry(ctx context.Context, u, method string, insecure bool) Result {
	policy := f.opts.Retry
	policy.Retryable = func(error) bool { return true }
	policy.OnRetry = resilience.LogRetry(f.log, "fetch "+u)

	var res Result
	_ = resilience.Retry(ctx, policy, func(ctx context.Context) error {
		res = f.attempt(ctx, u, method, insecure)
		if res.OK() || !res.transient {
			return nil
		}
		return res.Err
	})
	return res
}

func (f *Fetcher) attempt(ctx context.Context, u, method string, insecure bool) Result {
	res := Result{URL: u}

	parsed, err := url.Parse(u)
	if err != nil {
		res.Failure, res.Err = FailureInvalidURL, eris.Wrap(err, "fetcher: parse url")
		return res
	}
	limiter := f.limiters.get(parsed.Host)
	if err := limiter.Wait(ctx); err != nil {
		res.Failure, res.Err = FailureNetwork, eris.Wrap(err, "fetcher: rate limiter wait")
		return res
	}

	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		res.Failure, res.Err = FailureInvalidURL, eris.Wrap(err, "fetcher: create request")
		return res
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	client := f.client
	if insecure {
		client = f.insecure
	}
	resp, err := client.Do(req)
	if err != nil {
		res.Failure, res.transient = classifyError(err)
		res.Err = eris.Wrapf(err, "fetcher: %s %s", strings.ToLower(method), u)
		return res
	}
	defer func() { _ = resp.Body.Close() }()

	res.StatusCode = resp.StatusCode
	res.FinalURL = resp.Request.URL.String()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBodyBytes))
	if err != nil {
		res.Failure, res.transient = FailureNetwork, true
		res.Err = eris.Wrap(err, "fetcher: read body")
		return res
	}

	if kind := detectBlock(resp, body); kind != blockNone {
		res.Failure = FailureBlocked
		res.Err = eris.Errorf("fetcher: blocked by %s at %s", kind, u)
		return res
	}

	if resp.StatusCode >= 400 {
		if resp.StatusCode == http.StatusTooManyRequests {
			limiter.OnRateLimit()
		}
		res.Failure = FailureHTTPStatus
		res.transient = resilience.RetryableStatus(resp.StatusCode)
		res.Err = eris.Errorf("fetcher: status %d from %s", resp.StatusCode, u)
		return res
	}
	limiter.OnSuccess()

	if method == http.MethodHead {
		return res
	}

	body, err = decodeBody(body, resp.Header.Get("Content-Type"))
	if err != nil {
		res.Failure, res.Err = FailureNoContent, err
		return res
	}
	res.HTML = string(body)

	text, links, err := extractPage(body, resp.Request.URL)
	if err != nil {
		res.Failure, res.Err = FailureNoContent, err
		return res
	}
	res.Text, res.Links = text, links
	if strings.TrimSpace(text) == "" {
		res.Failure = FailureNoContent
		res.Err = eris.Errorf("fetcher: no text content at %s", u)
	}
	return res
}

// classifyError maps a transport error to a failure reason and whether a
// retry may help.
func classifyError(err error) (FailureReason, bool) {
	if errors.Is(err, errRedirectLoop) {
		return FailureRedirectLoop, false
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return FailureDNS, dnsErr.IsTimeout || dnsErr.IsTemporary
	}

	if isCertificateError(err) {
		return FailureCertificate, false
	}

	var recErr tls.RecordHeaderError
	var alertErr tls.AlertError
	if errors.As(err, &recErr) || errors.As(err, &alertErr) || strings.Contains(err.Error(), "tls:") {
		return FailureTLS, false
	}

	if errors.Is(err, context.Canceled) {
		return FailureNetwork, false
	}
	return FailureNetwork, resilience.IsTransient(err) || errors.Is(err, context.DeadlineExceeded)
}

func isCertificateError(err error) bool {
	var verifyErr *tls.CertificateVerificationError
	var unknownAuth x509.UnknownAuthorityError
	var hostErr x509.HostnameError
	var invalidErr x509.CertificateInvalidError
	return errors.As(err, &verifyErr) ||
		errors.As(err, &unknownAuth) ||
		errors.As(err, &hostErr) ||
		errors.As(err, &invalidErr)
}

func (f *Fetcher) allowInsecure(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	for _, allowed := range f.opts.TLSAllowlist {
		allowed = strings.ToLower(strings.TrimSpace(allowed))
		if allowed == "" {
			continue
		}
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}

// String renders a result for CLI output.
func (r Result) String() string {
	if r.OK() {
		return fmt.Sprintf("%s: ok (%d)", r.URL, r.StatusCode)
	}
	return fmt.Sprintf("%s: %s (%v)", r.URL, r.Failure, r.Err)
}
