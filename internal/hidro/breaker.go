package hidro

import (
	"context"
	"errors"
	"net/http"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/02loveslollipop/shizuku-hidroweb/internal/logging"
	"github.com/02loveslollipop/shizuku-hidroweb/internal/models"
)

// BreakerClient guards FetchWindow with a circuit breaker. Login is passed
// through. The breaker never retries.
type BreakerClient struct {
	client *Client
	cb     *gobreaker.CircuitBreaker[[]models.RawRecord]
}

// NewBreakerClient wraps client. The circuit opens after 5 consecutive
// upstream failures and probes again after 2 minutes.
func NewBreakerClient(client *Client) *BreakerClient {
	cb := gobreaker.NewCircuitBreaker[[]models.RawRecord](gobreaker.Settings{
		Name:        "hidroweb-telemetry",
		MaxRequests: 1,
		Interval:    10 * time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: countsAsHealthy,
		OnStateChange: func(name string, from, to gobreaker.State) {
			l := logging.WithComponent("hidro")
			l.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})
	return &BreakerClient{client: client, cb: cb}
}

// Login delegates to the wrapped client.
func (b *BreakerClient) Login(ctx context.Context, identifier, secret string) (string, error) {
	return b.client.Login(ctx, identifier, secret)
}

// FetchWindow runs the wrapped call through the breaker.
func (b *BreakerClient) FetchWindow(ctx context.Context, token, stationCode string, windowStart time.Time, rangeDays int) ([]models.RawRecord, error) {
	return b.cb.Execute(func() ([]models.RawRecord, error) {
		return b.client.FetchWindow(ctx, token, stationCode, windowStart, rangeDays)
	})
}

// State exposes the breaker state for diagnostics.
func (b *BreakerClient) State() gobreaker.State {
	return b.cb.State()
}

// countsAsHealthy treats request-shape errors (4xx other than 429) as a healthy
// upstream; only transport failures, 5xx and throttling count toward tripping.
func countsAsHealthy(err error) bool {
	if err == nil {
		return true
	}
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream.StatusCode >= 400 && upstream.StatusCode < 500 && upstream.StatusCode != http.StatusTooManyRequests
	}
	return false
}
