package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultMirrorKeyPrefix = "docrouter:session:"
	defaultMirrorTTL       = 24 * time.Hour
	maxMirrorResponseBytes = 2 << 20
)

// RedisMirrorConfig configures the Upstash-style Redis REST mirror.
type RedisMirrorConfig struct {
	URL     string        `envconfig:"URL" split_words:"true" required:"true"`
	Token   string        `envconfig:"TOKEN" split_words:"true" required:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

// MirrorOption customizes RedisMirror.
type MirrorOption func(*RedisMirror)

func WithKeyPrefix(prefix string) MirrorOption {
	return func(m *RedisMirror) {
		if trimmed := strings.TrimSpace(prefix); trimmed != "" {
			m.keyPrefix = trimmed
		}
	}
}

func WithMirrorTTL(ttl time.Duration) MirrorOption {
	return func(m *RedisMirror) {
		m.ttl = ttl
	}
}

func WithHTTPClient(client *http.Client) MirrorOption {
	return func(m *RedisMirror) {
		if client != nil {
			m.httpClient = client
		}
	}
}

// RedisMirror writes session snapshots through to a Redis REST endpoint. It
// is a best-effort durability collaborator: the in-memory store is the source
// of truth.
type RedisMirror struct {
	baseURL    string
	token      string
	httpClient *http.Client
	keyPrefix  string
	ttl        time.Duration
}

var _ Mirror = (*RedisMirror)(nil)

type redisRESTResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

func NewRedisMirror(cfg RedisMirrorConfig, opts ...MirrorOption) (*RedisMirror, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("redis rest url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid redis rest url: %w", err)
	}
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("redis rest token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	m := &RedisMirror{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		keyPrefix:  defaultMirrorKeyPrefix,
		ttl:        defaultMirrorTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	if m.ttl < 0 {
		return nil, errors.New("ttl must be >= 0")
	}
	return m, nil
}

func (m *RedisMirror) Save(ctx context.Context, s Session) error {
	if strings.TrimSpace(s.ID) == "" {
		return ErrInvalidSession
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	cmd := []any{"SET", m.key(s.ID), string(payload)}
	if m.ttl > 0 {
		cmd = append(cmd, "EX", ttlSeconds(m.ttl))
	}
	_, err = m.exec(ctx, cmd)
	return err
}

func (m *RedisMirror) Delete(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrInvalidSession
	}
	_, err := m.exec(ctx, []any{"DEL", m.key(sessionID)})
	return err
}

func (m *RedisMirror) key(sessionID string) string {
	return m.keyPrefix + sessionID
}

func (m *RedisMirror) exec(ctx context.Context, command []any) (*redisRESTResponse, error) {
	body, err := json.Marshal(command)
	if err != nil {
		return nil, fmt.Errorf("marshal redis command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build redis request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute redis request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxMirrorResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read redis response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("redis http status=%d body=%s", resp.StatusCode, string(raw))
	}

	var parsed redisRESTResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode redis response: %w", err)
	}
	if parsed.Error != "" {
		return nil, errors.New(parsed.Error)
	}
	return &parsed, nil
}

func ttlSeconds(ttl time.Duration) int64 {
	seconds := ttl / time.Second
	if seconds <= 0 {
		return 1
	}
	if ttl%time.Second != 0 {
		seconds++
	}
	return int64(seconds)
}
