// Package netclient implements the HTTP client the Download->USB
// pipeline and the analyzer worker use: fetch a remote file, upload a
// bundle for scanning, and poll for a verdict, all with retry/backoff and
// optional Kerberos authentication against an internal antivirus server
// (spec §4.4, §4.7).
package netclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jcmturner/gokrb5/v8/client"
	"github.com/jcmturner/gokrb5/v8/config"
	"github.com/jcmturner/gokrb5/v8/keytab"
	"github.com/jcmturner/gokrb5/v8/spnego"
)

// KerberosConfig names the realm and keytab used to authenticate against
// an internal server via SPNEGO, when the deployment's antivirus server
// requires it (spec §4.7: "uploads to an internal, possibly
// Kerberos-protected endpoint").
type KerberosConfig struct {
	Realm      string
	KeytabPath string
	KRB5Conf   string // path to krb5.conf; empty uses the system default
	Username   string
}

// doer lets NewWithKerberos swap in the SPNEGO-wrapping client transport
// while New keeps using the plain *http.Client directly.
type doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Client wraps an *http.Client, optionally SPNEGO-wrapped, with retry
// policy applied uniformly to every request it sends.
type Client struct {
	http    *http.Client
	d       doer
	backoff func() backoff.BackOff
}

// New builds a plain (non-Kerberos) client.
func New(timeout time.Duration) *Client {
	c := &Client{
		http:    &http.Client{Timeout: timeout},
		backoff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
	c.d = c.http
	return c
}

// NewWithKerberos builds a client whose requests are transparently
// wrapped with a SPNEGO negotiate header, following gokrb5's documented
// client.Login + spnego.NewClient pairing.
func NewWithKerberos(timeout time.Duration, kc KerberosConfig) (*Client, error) {
	var cfg *config.Config
	var err error
	if kc.KRB5Conf != "" {
		cfg, err = config.Load(kc.KRB5Conf)
	} else {
		cfg, err = config.Load("/etc/krb5.conf")
	}
	if err != nil {
		return nil, fmt.Errorf("netclient: load krb5 config: %w", err)
	}

	kt, err := keytab.Load(kc.KeytabPath)
	if err != nil {
		return nil, fmt.Errorf("netclient: load keytab %s: %w", kc.KeytabPath, err)
	}

	krbClient := client.NewWithKeytab(kc.Username, kc.Realm, kt, cfg)
	if err := krbClient.Login(); err != nil {
		return nil, fmt.Errorf("netclient: kerberos login: %w", err)
	}

	httpClient := &http.Client{Timeout: timeout}
	spnegoClient := spnego.NewClient(krbClient, httpClient, "")

	return &Client{
		http:    httpClient,
		d:       spnegoClient,
		backoff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}, nil
}

// Download fetches url and streams its body to w, retrying transient
// failures with exponential backoff (spec §5: "transient network errors
// are retried with backoff before being surfaced as a fatal error").
func (c *Client) Download(ctx context.Context, url string, w io.Writer) error {
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("netclient: build request: %w", err))
		}
		resp, err := c.d.Do(req)
		if err != nil {
			return fmt.Errorf("netclient: download %s: %w", url, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("netclient: download %s: server error %d", url, resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("netclient: download %s: client error %d", url, resp.StatusCode))
		}
		_, err = io.Copy(w, resp.Body)
		return err
	}
	return backoff.Retry(op, backoff.WithContext(c.backoff(), ctx))
}

// Upload posts the content of r to url, used by the analyzer worker to
// submit a bundle for scanning.
func (c *Client) Upload(ctx context.Context, url string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("netclient: read upload body: %w", err)
	}
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("netclient: build request: %w", err))
		}
		req.Header.Set("Content-Type", "application/octet-stream")
		resp, err := c.d.Do(req)
		if err != nil {
			return fmt.Errorf("netclient: upload %s: %w", url, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("netclient: upload %s: server error %d", url, resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("netclient: upload %s: client error %d", url, resp.StatusCode))
		}
		return nil
	}
	return backoff.Retry(op, backoff.WithContext(c.backoff(), ctx))
}

// PollResult is one poll attempt's raw outcome. Done signals the server
// has a final verdict ready; the analyzer worker decodes Body into its
// own report shape.
type PollResult struct {
	Done bool
	Body []byte
}

// Poll repeatedly GETs url, every interval, until the server reports
// completion or the context expires. HTTP 202 Accepted means "not ready
// yet" and is retried, as are 5xx and transport errors; any 4xx fails at
// once; any other status ends the poll with Done set and the body as
// returned, which may be empty.
func (c *Client) Poll(ctx context.Context, url string, interval time.Duration) (PollResult, error) {
	var result PollResult
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("netclient: build request: %w", err))
		}
		resp, err := c.d.Do(req)
		if err != nil {
			return fmt.Errorf("netclient: poll %s: %w", url, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusAccepted {
			return fmt.Errorf("netclient: poll %s: report not ready", url)
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("netclient: poll %s: server error %d", url, resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("netclient: poll %s: status %d", url, resp.StatusCode))
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("netclient: read poll body: %w", err)
		}
		result = PollResult{Done: true, Body: body}
		return nil
	}
	b := backoff.NewConstantBackOff(interval)
	return result, backoff.Retry(op, backoff.WithContext(b, ctx))
}
