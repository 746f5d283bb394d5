package capability

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNoAddress indicates a capability whose server address is not configured.
var ErrNoAddress = errors.New("no model server address configured")

// HTTPFactory returns a Factory that health-checks the server at baseURL and
// wraps the client with wrap.
func HTTPFactory[T any](baseURL string, timeout time.Duration, wrap func(*Client) T) Factory {
	return func(ctx context.Context) (any, error) {
		if baseURL == "" {
			return nil, ErrNoAddress
		}

		client := NewClient(baseURL, timeout)

		healthErr := client.HealthCheck(ctx)
		if healthErr != nil {
			return nil, fmt.Errorf("model server health check failed: %w", healthErr)
		}

		return wrap(client), nil
	}
}
