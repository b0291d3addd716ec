package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/charmbracelet/log"

	"greenweb/internal/config"
)

const (
	userAgent               = "greenweb-importer/1.0"
	defaultMaxPayloadSize   = 32 << 20
	defaultFetchRetries     = 3
	fetchInitialBackoff     = 500 * time.Millisecond
	fetchMaxBackoffInterval = 10 * time.Second
)

var httpClient = &http.Client{Timeout: time.Minute}

var ErrPayloadTooLarge = errors.New("importer: payload exceeds configured maximum")

// StatusError is returned for a non-200 response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("importer: GET %s returned status %d", e.URL, e.Code)
}

// fetch downloads url, retrying transport failures and 5xx responses with an
// exponential backoff. Client errors are not retried.
func fetch(ctx context.Context, url string) ([]byte, error) {
	cfg := config.GetConfig()
	maxSize := cfg.Importers.MaxPayloadSize
	if maxSize <= 0 {
		maxSize = defaultMaxPayloadSize
	}
	tries := uint(cfg.Importers.FetchRetries)
	if tries == 0 {
		tries = defaultFetchRetries
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = fetchInitialBackoff
	bo.MaxInterval = fetchMaxBackoffInterval

	operation := func() ([]byte, error) {
		body, err := fetchOnce(ctx, url, maxSize)
		if err == nil {
			return body, nil
		}

		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.Code < http.StatusInternalServerError {
			return nil, backoff.Permanent(err)
		}
		if errors.Is(err, ErrPayloadTooLarge) || ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	notify := func(err error, wait time.Duration) {
		log.Debug("Retrying dataset download", "url", url, "error", err, "wait", wait)
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(tries),
		backoff.WithNotify(notify),
	)
}

func fetchOnce(ctx context.Context, url string, maxSize int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{URL: url, Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("importer: read %s: %w", url, err)
	}
	if int64(len(body)) > maxSize {
		return nil, ErrPayloadTooLarge
	}
	return body, nil
}
