package torrentclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/0xlunar/roundup/internal/config"
)

const sessionIDHeader = "X-Transmission-Session-Id"

// Transmission implements Client over Transmission's JSON-RPC endpoint.
// The RPC protocol is small enough that the daemon's session-id handshake
// and the two calls the engine needs are done directly over net/http.
type Transmission struct {
	rpcURL     string
	httpClient *http.Client
	logger     *logrus.Logger

	mu        sync.Mutex
	sessionID string
}

type rpcRequest struct {
	Method    string         `json:"method"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

type rpcResponse struct {
	Result    string          `json:"result"`
	Arguments json.RawMessage `json:"arguments"`
}

// NewTransmission creates a Transmission gateway from configuration.
// Returns nil when no Transmission URL is configured.
func NewTransmission(cfg *config.Config, logger *logrus.Logger) *Transmission {
	if cfg.TransmissionURL == "" {
		return nil
	}

	rpcURL := strings.TrimSuffix(cfg.TransmissionURL, "/")
	if !strings.HasSuffix(rpcURL, "/transmission/rpc") {
		rpcURL += "/transmission/rpc"
	}

	return &Transmission{
		rpcURL: rpcURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// Name identifies the daemon in logs
func (t *Transmission) Name() string {
	return "transmission"
}

// Connect performs the session-id handshake
func (t *Transmission) Connect(ctx context.Context) error {
	var out json.RawMessage
	if err := t.call(ctx, "session-get", nil, &out); err != nil {
		return err
	}
	return nil
}

// Submit adds a magnet and returns its info hash
func (t *Transmission) Submit(ctx context.Context, magnetURI string) (string, error) {
	var out struct {
		TorrentAdded     *struct{ HashString string `json:"hashString"` } `json:"torrent-added"`
		TorrentDuplicate *struct{ HashString string `json:"hashString"` } `json:"torrent-duplicate"`
	}

	err := t.call(ctx, "torrent-add", map[string]any{"filename": magnetURI}, &out)
	if err != nil {
		return "", err
	}

	switch {
	case out.TorrentAdded != nil:
		return strings.ToLower(out.TorrentAdded.HashString), nil
	case out.TorrentDuplicate != nil:
		// Resubmitting an in-flight magnet is harmless
		return strings.ToLower(out.TorrentDuplicate.HashString), nil
	}

	// Fall back to the magnet's own hash when the daemon is terse
	return ExtractHash(magnetURI)
}

// Status reports state and progress for a hash
func (t *Transmission) Status(ctx context.Context, hash string) (Status, error) {
	var out struct {
		Torrents []struct {
			HashString  string  `json:"hashString"`
			PercentDone float64 `json:"percentDone"`
			// 0 stopped, 1-2 verifying, 3 queued, 4 downloading, 5-6 seeding
			Status      int    `json:"status"`
			IsFinished  bool   `json:"isFinished"`
			ErrorString string `json:"errorString"`
		} `json:"torrents"`
	}

	args := map[string]any{
		"ids":    []string{hash},
		"fields": []string{"hashString", "percentDone", "status", "isFinished", "errorString"},
	}
	if err := t.call(ctx, "torrent-get", args, &out); err != nil {
		return Status{}, err
	}
	if len(out.Torrents) == 0 {
		return Status{}, ErrTorrentNotFound
	}

	torrent := out.Torrents[0]

	state := StateDownloading
	switch {
	case torrent.ErrorString != "":
		state = StateFailed
	case torrent.Status >= 5 || torrent.IsFinished || torrent.PercentDone >= 1.0:
		state = StateCompleted
	case torrent.Status == 0 && torrent.PercentDone == 0:
		state = StateStarting
	}

	return Status{
		Hash:     hash,
		State:    state,
		Progress: torrent.PercentDone,
	}, nil
}

// Remove deletes the torrent and its data
func (t *Transmission) Remove(ctx context.Context, hash string) error {
	args := map[string]any{
		"ids":               []string{hash},
		"delete-local-data": true,
	}
	var out json.RawMessage
	return t.call(ctx, "torrent-remove", args, &out)
}

// call runs one RPC round-trip, re-negotiating the session id on 409
func (t *Transmission) call(ctx context.Context, method string, args map[string]any, out any) error {
	payload, err := json.Marshal(rpcRequest{Method: method, Arguments: args})
	if err != nil {
		return err
	}

	resp, err := t.post(ctx, payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if resp.StatusCode == http.StatusConflict {
		t.setSessionID(resp.Header.Get(sessionIDHeader))
		resp.Body.Close()

		resp, err = t.post(ctx, payload)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: rpc status %d", ErrUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return fmt.Errorf("invalid rpc response: %w", err)
	}
	if rpcResp.Result != "success" {
		return fmt.Errorf("rpc call %s failed: %s", method, rpcResp.Result)
	}

	if out != nil && len(rpcResp.Arguments) > 0 {
		if err := json.Unmarshal(rpcResp.Arguments, out); err != nil {
			return fmt.Errorf("invalid rpc arguments: %w", err)
		}
	}

	return nil
}

func (t *Transmission) post(ctx context.Context, payload []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.rpcURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "roundup/1.0")
	if id := t.getSessionID(); id != "" {
		req.Header.Set(sessionIDHeader, id)
	}

	return t.httpClient.Do(req)
}

func (t *Transmission) setSessionID(id string) {
	t.mu.Lock()
	t.sessionID = id
	t.mu.Unlock()
}

func (t *Transmission) getSessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionID
}
