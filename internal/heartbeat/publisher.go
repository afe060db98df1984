package heartbeat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/brigadepos/edgelink/internal/identity"
)

const (
	DefaultInterval = 60 * time.Second
	MinInterval     = 10 * time.Second

	pushTimeout = 8 * time.Second

	NodeIDHeader    = "x-node-id"
	NodeTokenHeader = "x-node-token"
)

var (
	ErrNotLinked = errors.New("installation is not linked to the cloud")
	ErrNoBaseURL = errors.New("no cloud base URL configured")
)

type Config struct {
	Enabled         bool
	Interval        time.Duration
	FallbackBaseURL string
	SoftwareVersion string
}

// Publisher pushes authenticated liveness to the cloud on a fixed
// interval. It is an explicit lifecycle handle: exactly one ticker per
// process, Start is idempotent, Stop is safe even if never started.
type Publisher struct {
	store  *identity.Store
	config Config
	client *http.Client

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

func NewPublisher(store *identity.Store, config Config) *Publisher {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.Interval < MinInterval {
		config.Interval = MinInterval
	}
	return &Publisher{
		store:  store,
		config: config,
		client: &http.Client{Timeout: pushTimeout},
	}
}

// Start launches the background loop. Disabled or already-started
// publishers are a no-op.
func (p *Publisher) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.config.Enabled {
		slog.Info("Heartbeat publisher disabled")
		return
	}
	if p.started {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	p.started = true

	go p.run(ctx)
	slog.Info("Heartbeat publisher started", "interval", p.config.Interval)
}

// Stop cancels the loop and waits for it to exit.
func (p *Publisher) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	cancel, done := p.cancel, p.done
	p.started = false
	p.mu.Unlock()

	cancel()
	<-done
	slog.Info("Heartbeat publisher stopped")
}

func (p *Publisher) run(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Failures are logged and swallowed; the fixed interval
			// is the retry policy.
			if err := p.push(ctx, ""); err != nil {
				if errors.Is(err, ErrNotLinked) {
					continue // dormant, not an error
				}
				slog.Warn("Heartbeat push failed", "error", err)
			}
		}
	}
}

// PushNow runs one push immediately and surfaces the error to the
// caller instead of swallowing it.
func (p *Publisher) PushNow(ctx context.Context, overrideBaseURL string) error {
	return p.push(ctx, overrideBaseURL)
}

type payload struct {
	ServerUID       string `json:"serverUid"`
	SoftwareVersion string `json:"softwareVersion,omitempty"`
	SentAt          string `json:"sentAt"`
}

func (p *Publisher) push(ctx context.Context, overrideBaseURL string) error {
	id, err := p.store.GetOrCreate(ctx)
	if err != nil {
		return fmt.Errorf("load identity: %w", err)
	}
	if !id.Linked() {
		return ErrNotLinked
	}
	link := id.Link

	baseURL := overrideBaseURL
	if baseURL == "" {
		baseURL = link.CloudBaseURL
	}
	if baseURL == "" {
		baseURL = p.config.FallbackBaseURL
	}
	if baseURL == "" {
		return ErrNoBaseURL
	}

	body, err := json.Marshal(payload{
		ServerUID:       id.ServerUID,
		SoftwareVersion: p.config.SoftwareVersion,
		SentAt:          time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("encode heartbeat payload: %w", err)
	}

	url := strings.TrimSuffix(baseURL, "/") + "/cloud/nodes/" + link.CloudNodeID + "/heartbeat"

	reqCtx, cancel := context.WithTimeout(ctx, pushTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build heartbeat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(NodeIDHeader, link.CloudNodeID)
	req.Header.Set(NodeTokenHeader, link.NodeToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("heartbeat push to %s: %w", url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("heartbeat rejected by cloud (HTTP %d)", resp.StatusCode)
	}

	slog.Debug("Heartbeat pushed", "cloud_node_id", link.CloudNodeID)
	return nil
}
