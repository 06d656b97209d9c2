// Package remote implements gateway.Gateway over the marketplace's HTTP/JSON
// API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"bloodlink.org/internal/audit"
	"bloodlink.org/internal/auth"
	"bloodlink.org/internal/blood"
	"bloodlink.org/internal/gateway"
	"bloodlink.org/internal/ids"
	"bloodlink.org/internal/obs"
)

const (
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 4 << 10
)

var _ gateway.Gateway = (*Client)(nil)

// Client talks to the backend rooted at a base URL such as
// http://localhost:8000/api/. It never retries.
type Client struct {
	base    *url.URL
	http    *http.Client
	limiter *rate.Limiter
	timeout time.Duration
}

// Option configures Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout bounds every call. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRateLimit throttles outgoing calls with a token bucket. Callers wait
// for a token; a cancelled wait surfaces as a network error.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond > 0 && burst > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// New builds a client. The base URL must be absolute.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	c := &Client{
		base:    u,
		http:    &http.Client{},
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) ExchangeCredentials(ctx context.Context, username, password string) (auth.TokenPair, error) {
	var pair auth.TokenPair
	body := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, http.MethodPost, "login/", nil, body, &pair); err != nil {
		return auth.TokenPair{}, err
	}
	if pair.Access == "" {
		return auth.TokenPair{}, fmt.Errorf("%w: login response carried no access token", blood.ErrNetwork)
	}
	return pair, nil
}

func (c *Client) RefreshAccess(ctx context.Context, refreshToken string) (string, error) {
	var out struct {
		Access string `json:"access"`
	}
	if err := c.do(ctx, http.MethodPost, "token/refresh/", nil, map[string]string{"refresh": refreshToken}, &out); err != nil {
		return "", err
	}
	if out.Access == "" {
		return "", fmt.Errorf("%w: refresh response carried no access token", blood.ErrNetwork)
	}
	return out.Access, nil
}

func (c *Client) Register(ctx context.Context, reg blood.Registration) error {
	path := "register/civilian/"
	if reg.Kind == blood.RoleDonor {
		path = "register/donor/"
	} else {
		reg.BloodGroup = ""
	}
	return c.do(ctx, http.MethodPost, path, nil, reg, nil)
}

func (c *Client) Me(ctx context.Context) (blood.Profile, error) {
	var p blood.Profile
	if err := c.do(ctx, http.MethodGet, "profile/me/", nil, nil, &p); err != nil {
		return blood.Profile{}, err
	}
	return p, nil
}

func (c *Client) ListProfiles(ctx context.Context, f gateway.ProfileFilter) ([]blood.Profile, error) {
	q := url.Values{}
	path := "profiles/"
	if f.BloodGroup != "" {
		path = "donors/search/"
		q.Set("blood_group", string(f.BloodGroup))
	} else if f.Role != "" {
		q.Set("user_type", string(f.Role))
	}
	var out []blood.Profile
	if err := c.do(ctx, http.MethodGet, path, q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListRequests(ctx context.Context, f gateway.RequestFilter) ([]blood.BloodRequest, error) {
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	if f.CivilianID != 0 {
		q.Set("civilian", strconv.FormatInt(f.CivilianID, 10))
	}
	var out []blood.BloodRequest
	if err := c.do(ctx, http.MethodGet, "requests/", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetRequest(ctx context.Context, id int64) (blood.BloodRequest, error) {
	var out blood.BloodRequest
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("requests/%d/", id), nil, nil, &out); err != nil {
		return blood.BloodRequest{}, err
	}
	return out, nil
}

func (c *Client) CreateRequest(ctx context.Context, draft blood.RequestDraft) (blood.BloodRequest, error) {
	var out blood.BloodRequest
	if err := c.do(ctx, http.MethodPost, "requests/", nil, draft, &out); err != nil {
		return blood.BloodRequest{}, err
	}
	return out, nil
}

func (c *Client) ListOffers(ctx context.Context, f gateway.OfferFilter) ([]blood.Offer, error) {
	q := url.Values{}
	if f.DonorID != 0 {
		q.Set("donor", strconv.FormatInt(f.DonorID, 10))
	}
	var out []blood.Offer
	if err := c.do(ctx, http.MethodGet, "offers/", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateOffer(ctx context.Context, requestID int64) (blood.OfferReceipt, error) {
	var out blood.OfferReceipt
	if err := c.do(ctx, http.MethodPost, "offers/", nil, map[string]int64{"request": requestID}, &out); err != nil {
		return blood.OfferReceipt{}, err
	}
	if out.RequestID == 0 {
		out.RequestID = requestID
	}
	return out, nil
}

func (c *Client) DeleteOffer(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("offers/%d/", id), nil, nil, nil)
}

func (c *Client) ListBloodBanks(ctx context.Context) ([]blood.BloodBank, error) {
	var out []blood.BloodBank
	if err := c.do(ctx, http.MethodGet, "bloodbanks/", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Helpers -----------------------------------------------------------------

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) (err error) {
	rid := audit.RequestIDFromContext(ctx)
	if rid == "" {
		rid = ids.New()
	}
	done := obs.GatewayCall(method, path)
	start := time.Now()
	status := 0
	defer func() {
		done(outcome(err))
		fields := logrus.Fields{
			"op":          method + " " + obs.CanonicalPath(path),
			"request_id":  rid,
			"status":      status,
			"duration_ms": time.Since(start).Milliseconds(),
		}
		if err != nil {
			fields["error"] = err.Error()
		}
		obs.Logger().WithFields(fields).Debug("gateway call")
	}()

	if c.limiter != nil {
		if werr := c.limiter.Wait(ctx); werr != nil {
			return fmt.Errorf("%w: %w", blood.ErrNetwork, werr)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ref := &url.URL{Path: strings.TrimPrefix(path, "/")}
	if len(query) > 0 {
		ref.RawQuery = query.Encode()
	}
	var reader io.Reader
	if body != nil {
		buf, merr := json.Marshal(body)
		if merr != nil {
			return fmt.Errorf("encode %s body: %w", path, merr)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.ResolveReference(ref).String(), reader)
	if err != nil {
		return fmt.Errorf("%w: %w", blood.ErrNetwork, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", rid)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token, ok := auth.TokenFromContext(ctx); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", blood.ErrNetwork, err)
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return mapStatus(resp.StatusCode, raw)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: malformed response from %s: %v", blood.ErrNetwork, path, err)
	}
	return nil
}

// mapStatus turns a non-2xx response into one of the domain sentinels.
func mapStatus(code int, body []byte) error {
	msg := errorDetail(body)
	var sentinel error
	switch code {
	case http.StatusBadRequest:
		sentinel = blood.ErrValidation
	case http.StatusUnauthorized:
		sentinel = blood.ErrAuthentication
	case http.StatusNotFound:
		sentinel = blood.ErrNotFound
	default:
		sentinel = blood.ErrNetwork
		if msg == "" {
			msg = http.StatusText(code)
		}
		return fmt.Errorf("%w: status %d: %s", sentinel, code, msg)
	}
	if msg == "" {
		return sentinel
	}
	return fmt.Errorf("%w: %s", sentinel, msg)
}

// errorDetail extracts a readable message from a backend error body: a
// {"detail": ...} or {"error": ...} object, a field-error map, or plain text.
func errorDetail(body []byte) string {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return ""
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		text := string(body)
		if len(text) > 200 {
			text = text[:200]
		}
		return text
	}
	for _, key := range []string{"detail", "error"} {
		if raw, ok := obj[key]; ok {
			var s string
			if json.Unmarshal(raw, &s) == nil && s != "" {
				return s
			}
		}
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		if k == "request_id" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		var list []string
		if json.Unmarshal(obj[k], &list) == nil && len(list) > 0 {
			parts = append(parts, k+": "+strings.Join(list, " "))
			continue
		}
		var s string
		if json.Unmarshal(obj[k], &s) == nil && s != "" {
			parts = append(parts, k+": "+s)
		}
	}
	return strings.Join(parts, "; ")
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, blood.ErrValidation):
		return "validation"
	case errors.Is(err, blood.ErrAuthentication):
		return "auth"
	case errors.Is(err, blood.ErrNotFound):
		return "not_found"
	default:
		return "network"
	}
}
