package userclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/dmehra2102/food-order-platform/internal/order/domain"
	"github.com/dmehra2102/food-order-platform/pkg/auth"
	"github.com/dmehra2102/food-order-platform/pkg/resilience"
)

// Client resolves callers against the user service. Every call goes through
// the resilience policy and nothing is cached between requests.
type Client struct {
	log     *slog.Logger
	baseURL string
	http    *http.Client
	policy  *resilience.Policy
}

func NewClient(log *slog.Logger, baseURL string, timeout time.Duration, policy *resilience.Policy) *Client {
	return &Client{
		log:     log,
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		policy: policy,
	}
}

type userResponse struct {
	ID int64 `json:"id"`
}

// ResolveUserID fails with domain.ErrUserNotFound on a 404 and with
// domain.ErrDependencyUnavailable once retries are spent or the breaker is open.
func (c *Client) ResolveUserID(ctx context.Context, caller auth.Caller) (int64, error) {
	if caller.Subject == "" {
		return 0, fmt.Errorf("%w: caller has no subject", domain.ErrUserNotFound)
	}

	var id int64
	err := c.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		id, err = c.lookup(ctx, caller)
		return err
	})
	switch {
	case err == nil:
		return id, nil
	case errors.Is(err, domain.ErrUserNotFound):
		return 0, err
	case errors.Is(err, resilience.ErrUnavailable):
		c.log.Warn("user service unavailable", "subject", caller.Subject, "breaker", c.policy.State().String(), "err", err)
		return 0, fmt.Errorf("%w: user service: %v", domain.ErrDependencyUnavailable, err)
	default:
		return 0, fmt.Errorf("%w: user service: %v", domain.ErrDependencyUnavailable, err)
	}
}

func (c *Client) lookup(ctx context.Context, caller auth.Caller) (int64, error) {
	endpoint := c.baseURL + "/users/by-external-id/" + url.PathEscape(caller.Subject)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, resilience.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	if caller.Token != "" {
		req.Header.Set("Authorization", "Bearer "+caller.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return 0, resilience.Permanent(fmt.Errorf("%w: subject %s", domain.ErrUserNotFound, caller.Subject))
	default:
		_, _ = io.Copy(io.Discard, resp.Body)
		return 0, fmt.Errorf("user service returned %d", resp.StatusCode)
	}

	var body userResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode user: %w", err)
	}
	if body.ID <= 0 {
		return 0, fmt.Errorf("user service returned invalid id %d", body.ID)
	}
	return body.ID, nil
}
