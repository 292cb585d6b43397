package channel

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Gateway is a Client backed by an external messaging-gateway HTTP API.
// One gateway session exists per tenant; the session id doubles as the
// tenant id. The gateway owns reconnection — the scheduler keeps sending
// and records failures until the session reports connected again.
type Gateway struct {
	baseURL    string
	apiKey     string
	session    string
	httpClient *http.Client
	logger     *slog.Logger

	mu       sync.RWMutex
	status   Status
	onStatus func(Status)

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewGateway creates a gateway client for one tenant session. onStatus,
// if non-nil, is invoked on every lifecycle change.
func NewGateway(baseURL, apiKey, session string, logger *slog.Logger, onStatus func(Status)) *Gateway {
	return &Gateway{
		baseURL: baseURL,
		apiKey:  apiKey,
		session: session,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:   logger.With("component", "gateway", "session", session),
		status:   Status{State: StateDisconnected},
		onStatus: onStatus,
		stopCh:   make(chan struct{}),
	}
}

type sendMessageRequest struct {
	To      string        `json:"to"`
	Text    string        `json:"text,omitempty"`
	Caption string        `json:"caption,omitempty"`
	Media   *mediaPayload `json:"media,omitempty"`
}

type mediaPayload struct {
	Mime     string `json:"mime"`
	Filename string `json:"filename"`
	Data     string `json:"data"` // base64
}

type sessionStatusResponse struct {
	State   string `json:"state"` // awaiting_pairing, connected, disconnected
	Pairing string `json:"pairing,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// request performs an HTTP request against the gateway API
func (g *Gateway) request(ctx context.Context, method, path string, body any, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil || errResp.Error == "" {
			return fmt.Errorf("gateway HTTP %d", resp.StatusCode)
		}
		return fmt.Errorf("gateway error: %s", errResp.Error)
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}

// SendText delivers a text-only message
func (g *Gateway) SendText(ctx context.Context, addr, text string) error {
	req := &sendMessageRequest{To: addr, Text: text}
	return g.request(ctx, http.MethodPost, "/api/v1/sessions/"+g.session+"/messages", req, nil)
}

// SendMedia delivers an attachment with the rendered text as caption
func (g *Gateway) SendMedia(ctx context.Context, addr string, media Media, caption string) error {
	req := &sendMessageRequest{
		To:      addr,
		Caption: caption,
		Media: &mediaPayload{
			Mime:     media.Mime,
			Filename: media.Filename,
			Data:     base64.StdEncoding.EncodeToString(media.Data),
		},
	}
	return g.request(ctx, http.MethodPost, "/api/v1/sessions/"+g.session+"/messages", req, nil)
}

// Status returns the last observed lifecycle state
func (g *Gateway) Status() Status {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.status
}

// StartPolling observes the gateway session lifecycle in the background
// until Close is called
func (g *Gateway) StartPolling(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-g.stopCh:
				return
			case <-ticker.C:
				g.poll()
			}
		}
	}()
}

func (g *Gateway) poll() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var resp sessionStatusResponse
	err := g.request(ctx, http.MethodGet, "/api/v1/sessions/"+g.session+"/status", nil, &resp)

	next := Status{State: StateDisconnected}
	if err == nil {
		switch State(resp.State) {
		case StateAwaitingPairing, StateConnected, StateDisconnected:
			next = Status{State: State(resp.State), Pairing: resp.Pairing}
		default:
			g.logger.Warn("unknown session state", "state", resp.State)
		}
	} else {
		g.logger.Debug("status poll failed", "error", err)
	}

	g.mu.Lock()
	changed := next != g.status
	g.status = next
	cb := g.onStatus
	g.mu.Unlock()

	if changed {
		g.logger.Info("channel status changed", "state", next.State)
		if cb != nil {
			cb(next)
		}
	}
}

// Close stops lifecycle polling
func (g *Gateway) Close() {
	g.stopOnce.Do(func() { close(g.stopCh) })
}
