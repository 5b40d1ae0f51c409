package schema

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"domainreader/pkg/platform/sentinel"
)

// HTTPRegistry fetches descriptors from the schema registry service at
// GET {base}{map}/{version}/{type}.
type HTTPRegistry struct {
	base   string
	client *http.Client
}

// NewHTTPRegistry builds a registry client. A zero timeout leaves deadlines
// to the caller's context.
func NewHTTPRegistry(base string, timeout time.Duration) (*HTTPRegistry, error) {
	if _, err := url.Parse(base); err != nil || base == "" {
		return nil, fmt.Errorf("invalid schema registry URI %q", base)
	}
	return &HTTPRegistry{
		base:   base,
		client: &http.Client{Timeout: timeout},
	}, nil
}

func (r *HTTPRegistry) GetSchema(ctx context.Context, key Key) (*Descriptor, error) {
	endpoint, err := url.JoinPath(r.base, key.Map, key.Version, key.Type)
	if err != nil {
		return nil, NewRegistryError(ErrorInternal, key, "build request URL", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, NewRegistryError(ErrorInternal, key, "build request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, NewRegistryError(ErrorTimeout, key, "request timed out", err)
		}
		return nil, NewRegistryError(ErrorOutage, key, "request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("schema %s: %w", key, sentinel.ErrNotFound)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, NewRegistryError(ErrorRateLimited, key, "rate limited", nil)
	case resp.StatusCode >= 500:
		return nil, NewRegistryError(ErrorOutage, key, fmt.Sprintf("status %d", resp.StatusCode), nil)
	case resp.StatusCode != http.StatusOK:
		return nil, NewRegistryError(ErrorInternal, key, fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	var descriptor Descriptor
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&descriptor); err != nil {
		return nil, NewRegistryError(ErrorBadData, key, "decode descriptor", err)
	}
	if err := descriptor.Validate(); err != nil {
		return nil, NewRegistryError(ErrorBadData, key, "invalid descriptor", err)
	}
	return &descriptor, nil
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
