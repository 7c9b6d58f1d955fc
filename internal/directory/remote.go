package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"crosstalk/go-backend/pkg/models"

	"golang.org/x/time/rate"
)

const (
	defaultRemoteTimeout = 5 * time.Second
	defaultRemoteRPS     = 10
	defaultRemoteBurst   = 20
)

// HTTPRemote talks JSON to the directory service. Every call carries a
// bounded timeout and passes through a client-side token bucket.
type HTTPRemote struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

type HTTPRemoteOptions struct {
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

func NewHTTPRemote(baseURL string, opts HTTPRemoteOptions) (*HTTPRemote, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("directory base URL is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid directory base URL: %w", err)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultRemoteTimeout
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRemoteRPS
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = defaultRemoteBurst
	}
	return &HTTPRemote{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}, nil
}

type registerRequest struct {
	Address          string `json:"address"`
	PublicKey        []byte `json:"public_key"`
	SigningPublicKey []byte `json:"signing_public_key,omitempty"`
}

type registerResponse struct {
	Success  bool `json:"success"`
	Verified bool `json:"verified"`
}

type lookupResponse struct {
	PublicKey        []byte `json:"public_key"`
	SigningPublicKey []byte `json:"signing_public_key,omitempty"`
	Verified         bool   `json:"verified"`
}

type lookupBatchRequest struct {
	Addresses []string `json:"addresses"`
}

type lookupBatchResponse struct {
	Entries map[string]lookupResponse `json:"entries"`
}

func (r *HTTPRemote) Lookup(ctx context.Context, address string) (models.DirectoryEntry, error) {
	var resp lookupResponse
	status, err := r.do(ctx, http.MethodGet, "/v1/keys/"+url.PathEscape(address), nil, &resp)
	if err != nil {
		return models.DirectoryEntry{}, err
	}
	if status == http.StatusNotFound {
		return models.DirectoryEntry{}, ErrNotFound
	}
	if status != http.StatusOK {
		return models.DirectoryEntry{}, fmt.Errorf("%w: lookup status %d", ErrUnavailable, status)
	}
	if len(resp.PublicKey) == 0 {
		return models.DirectoryEntry{}, ErrNotFound
	}
	return models.DirectoryEntry{
		Address:          address,
		PublicKey:        resp.PublicKey,
		SigningPublicKey: resp.SigningPublicKey,
		Verified:         resp.Verified,
	}, nil
}

func (r *HTTPRemote) LookupBatch(ctx context.Context, addresses []string) (map[string]models.DirectoryEntry, error) {
	var resp lookupBatchResponse
	status, err := r.do(ctx, http.MethodPost, "/v1/keys/lookup", lookupBatchRequest{Addresses: addresses}, &resp)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: batch lookup status %d", ErrUnavailable, status)
	}
	out := make(map[string]models.DirectoryEntry, len(resp.Entries))
	for address, entry := range resp.Entries {
		if len(entry.PublicKey) == 0 {
			continue
		}
		out[address] = models.DirectoryEntry{
			Address:          address,
			PublicKey:        entry.PublicKey,
			SigningPublicKey: entry.SigningPublicKey,
			Verified:         entry.Verified,
		}
	}
	return out, nil
}

func (r *HTTPRemote) Register(ctx context.Context, address string, publicKey, signingPublicKey []byte) (bool, error) {
	req := registerRequest{Address: address, PublicKey: publicKey, SigningPublicKey: signingPublicKey}
	var resp registerResponse
	status, err := r.do(ctx, http.MethodPost, "/v1/keys/register", req, &resp)
	if err != nil {
		return false, err
	}
	if status != http.StatusOK || !resp.Success {
		return false, fmt.Errorf("%w: register status %d", ErrUnavailable, status)
	}
	return resp.Verified, nil
}

func (r *HTTPRemote) Rotate(ctx context.Context, address string, publicKey, signingPublicKey []byte) error {
	req := registerRequest{Address: address, PublicKey: publicKey, SigningPublicKey: signingPublicKey}
	var resp registerResponse
	status, err := r.do(ctx, http.MethodPost, "/v1/keys/rotate", req, &resp)
	if err != nil {
		return err
	}
	if status != http.StatusOK || !resp.Success {
		return fmt.Errorf("%w: rotate status %d", ErrUnavailable, status)
	}
	return nil
}

func (r *HTTPRemote) do(ctx context.Context, method, path string, body, out any) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.client.Timeout)
	defer cancel()
	if err := r.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var payload *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		payload = bytes.NewReader(raw)
	} else {
		payload = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, payload)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK && out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("%w: malformed response: %v", ErrUnavailable, err)
		}
	}
	return resp.StatusCode, nil
}
