package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"golang.org/x/sync/singleflight"

	"github.com/damacus/your-files/internal/logger"
	"github.com/damacus/your-files/internal/metrics"
)

// ErrCredentials wraps every failure to obtain credentials.
var ErrCredentials = errors.New("credentials refresh failed")

// RefreshWindow is how long before expiry credentials count as stale.
const RefreshWindow = 60 * time.Second

const credentialsSource = "YourFilesCredentialsEndpoint"

// CredentialsRefresher fetches short-lived credentials from an endpoint.
//
// It implements aws.CredentialsProvider, so stores call Retrieve before
// signing and a stale value is refreshed on the way.
type CredentialsRefresher struct {
	url    string
	client *http.Client
	now    func() time.Time
	group  singleflight.Group

	mu    sync.RWMutex
	creds aws.Credentials
	valid bool
}

var _ aws.CredentialsProvider = (*CredentialsRefresher)(nil)

// NewCredentialsRefresher creates a refresher for url. A nil client uses a
// client with a 30 second timeout.
func NewCredentialsRefresher(url string, client *http.Client) *CredentialsRefresher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &CredentialsRefresher{url: url, client: client, now: time.Now}
}

// NewStaticCredentials returns a provider for a fixed key pair that never
// expires.
func NewStaticCredentials(accessKey, secretKey, sessionToken string) aws.CredentialsProvider {
	return awscreds.NewStaticCredentialsProvider(accessKey, secretKey, sessionToken)
}

type credentialsResponse struct {
	AccessKeyID     string          `json:"AccessKeyId"`
	SecretAccessKey string          `json:"SecretAccessKey"`
	SessionToken    string          `json:"SessionToken"`
	Expiration      json.RawMessage `json:"Expiration"`
}

// Refresh fetches a new set of credentials and replaces the current ones.
func (r *CredentialsRefresher) Refresh(ctx context.Context) (err error) {
	defer func() {
		metrics.CredentialRefreshesTotal.WithLabelValues(metrics.Status(err)).Inc()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCredentials, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCredentials, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s returned %d: %s", ErrCredentials, r.url, resp.StatusCode, bytes.TrimSpace(body))
	}

	var payload credentialsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrCredentials, err)
	}
	if payload.AccessKeyID == "" || payload.SecretAccessKey == "" {
		return fmt.Errorf("%w: response is missing keys", ErrCredentials)
	}
	expires, err := parseExpiration(payload.Expiration)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCredentials, err)
	}

	r.mu.Lock()
	r.creds = aws.Credentials{
		AccessKeyID:     payload.AccessKeyID,
		SecretAccessKey: payload.SecretAccessKey,
		SessionToken:    payload.SessionToken,
		Source:          credentialsSource,
		CanExpire:       true,
		Expires:         expires,
	}
	r.valid = true
	r.mu.Unlock()

	logger.Ctx(ctx).Debug().Time("expires", expires).Msg("credentials refreshed")
	return nil
}

// NeedsRefresh reports whether the credentials are missing or expire
// within RefreshWindow.
func (r *CredentialsRefresher) NeedsRefresh() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.needsRefresh()
}

func (r *CredentialsRefresher) needsRefresh() bool {
	return !r.valid || r.creds.Expires.Add(-RefreshWindow).Before(r.now())
}

// Current returns the last fetched credentials without refreshing.
func (r *CredentialsRefresher) Current() aws.Credentials {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.creds
}

// Retrieve returns valid credentials, refreshing first when needed.
// Concurrent callers share a single refresh, which outlives any one
// caller's context; each caller stops waiting when its own ctx is done.
func (r *CredentialsRefresher) Retrieve(ctx context.Context) (aws.Credentials, error) {
	if r.NeedsRefresh() {
		shared := context.WithoutCancel(ctx)
		ch := r.group.DoChan("refresh", func() (any, error) {
			if !r.NeedsRefresh() {
				return nil, nil
			}
			return nil, r.Refresh(shared)
		})
		select {
		case res := <-ch:
			if res.Err != nil {
				return aws.Credentials{}, res.Err
			}
		case <-ctx.Done():
			return aws.Credentials{}, fmt.Errorf("%w: %w", ErrCredentials, ctx.Err())
		}
	}
	return r.Current(), nil
}

// parseExpiration accepts epoch milliseconds or an RFC 3339 timestamp.
func parseExpiration(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, errors.New("response is missing Expiration")
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, fmt.Errorf("parse Expiration: %w", err)
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.UnixMilli(ms), nil
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse Expiration: %w", err)
		}
		return t, nil
	}

	var ms float64
	if err := json.Unmarshal(raw, &ms); err != nil {
		return time.Time{}, fmt.Errorf("parse Expiration: %w", err)
	}
	return time.UnixMilli(int64(ms)), nil
}
