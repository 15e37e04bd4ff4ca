package readiness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/tidwall/gjson"
)

const maxEvaluatorBody = 1 << 20

// HTTPEvaluator calls a remote evaluator at GET {BaseURL}?date=&shift_code=
// and expects {"ok": true, "<FlagPath>": "...", "kpis": {...}}.
type HTTPEvaluator struct {
	Pillar   Pillar
	BaseURL  string
	FlagPath string
	Token    string
	Client   *http.Client
	// MaxTries bounds attempts for transport errors and 5xx responses.
	MaxTries        uint
	InitialInterval time.Duration
}

func NewHTTPEvaluator(pillar Pillar, baseURL string, timeout time.Duration) *HTTPEvaluator {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPEvaluator{
		Pillar:          pillar,
		BaseURL:         baseURL,
		FlagPath:        strings.ToLower(string(pillar)) + "_flag",
		Client:          &http.Client{Timeout: timeout},
		MaxTries:        3,
		InitialInterval: 100 * time.Millisecond,
	}
}

func (e *HTTPEvaluator) Evaluate(ctx context.Context, scope Scope) (PillarResult, error) {
	endpoint, err := url.Parse(e.BaseURL)
	if err != nil {
		return PillarResult{}, &UpstreamError{Pillar: e.Pillar, Err: fmt.Errorf("base url: %w", err)}
	}
	q := endpoint.Query()
	q.Set("date", scope.Date)
	q.Set("shift_code", scope.ShiftCode)
	endpoint.RawQuery = q.Encode()

	expo := backoff.NewExponentialBackOff()
	if e.InitialInterval > 0 {
		expo.InitialInterval = e.InitialInterval
	}
	tries := e.MaxTries
	if tries == 0 {
		tries = 1
	}

	result, err := backoff.Retry(ctx, func() (PillarResult, error) {
		return e.attempt(ctx, endpoint.String(), scope)
	}, backoff.WithBackOff(expo), backoff.WithMaxTries(tries))
	if err != nil {
		var upstream *UpstreamError
		if errors.As(err, &upstream) {
			return PillarResult{}, upstream
		}
		return PillarResult{}, &UpstreamError{Pillar: e.Pillar, Err: err}
	}
	return result, nil
}

func (e *HTTPEvaluator) attempt(ctx context.Context, endpoint string, scope Scope) (PillarResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return PillarResult{}, backoff.Permanent(&UpstreamError{Pillar: e.Pillar, Err: err})
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Org-Id", scope.OrgID)
	if scope.SiteID != "" {
		req.Header.Set("X-Site-Id", scope.SiteID)
	}
	if e.Token != "" {
		req.Header.Set("Authorization", "Bearer "+e.Token)
	}

	client := e.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return PillarResult{}, &UpstreamError{Pillar: e.Pillar, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxEvaluatorBody))
	if err != nil {
		return PillarResult{}, &UpstreamError{Pillar: e.Pillar, StatusCode: resp.StatusCode, Err: err}
	}

	switch {
	case resp.StatusCode >= 500:
		return PillarResult{}, &UpstreamError{Pillar: e.Pillar, StatusCode: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	case resp.StatusCode >= 400:
		return PillarResult{}, backoff.Permanent(&UpstreamError{Pillar: e.Pillar, StatusCode: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))})
	}

	return e.parse(resp.StatusCode, body)
}

func (e *HTTPEvaluator) parse(status int, body []byte) (PillarResult, error) {
	fail := func(msg string) (PillarResult, error) {
		return PillarResult{}, backoff.Permanent(&UpstreamError{Pillar: e.Pillar, StatusCode: status, Err: errors.New(msg)})
	}
	if !gjson.ValidBytes(body) {
		return fail("invalid json body")
	}
	if !gjson.GetBytes(body, "ok").Bool() {
		msg := gjson.GetBytes(body, "error").String()
		if msg == "" {
			msg = "evaluator reported not ok"
		}
		return fail(msg)
	}
	flag := gjson.GetBytes(body, e.FlagPath)
	if !flag.Exists() || flag.String() == "" {
		return fail("missing " + e.FlagPath)
	}

	result := PillarResult{Flag: flag.String()}
	if kpis := gjson.GetBytes(body, "kpis"); kpis.IsObject() {
		if m, ok := kpis.Value().(map[string]any); ok {
			result.KPIs = m
		}
	}
	return result, nil
}
