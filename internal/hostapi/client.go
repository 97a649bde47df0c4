// Package hostapi talks to the host application's HTTP server: it reads a
// session's message history and shows toasts in the host UI.
package hostapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"yuzu/voicebridge/internal/types"
)

type Client struct {
	http *http.Client
	base string
}

func NewClient(base string) *Client {
	return &Client{
		http: &http.Client{Timeout: 15 * time.Second},
		base: strings.TrimRight(base, "/"),
	}
}

type wireMessage struct {
	Info struct {
		ID        string `json:"id"`
		SessionID string `json:"sessionID"`
		Role      string `json:"role"`
	} `json:"info"`
	Parts []types.Part `json:"parts"`
}

// Messages returns the session history, oldest first.
func (c *Client) Messages(ctx context.Context, sessionID string) ([]types.Message, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/session/"+url.PathEscape(sessionID)+"/message", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("host messages: %s: %s", resp.Status, strings.TrimSpace(string(b)))
	}
	var wire []wireMessage
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("host messages: decode: %w", err)
	}
	out := make([]types.Message, 0, len(wire))
	for _, w := range wire {
		sid := w.Info.SessionID
		if sid == "" {
			sid = sessionID
		}
		out = append(out, types.Message{ID: w.Info.ID, SessionID: sid, Role: types.Role(w.Info.Role), Parts: w.Parts})
	}
	return out, nil
}

// Notify shows a toast in the host UI.
func (c *Client) Notify(ctx context.Context, t types.Toast) error {
	var body bytes.Buffer
	if err := json.NewEncoder(&body).Encode(t); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/tui/show-toast", &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("host toast: %s", resp.Status)
	}
	return nil
}

// Ping checks that the host answers at all.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/config", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 500 {
		return fmt.Errorf("host: %s", resp.Status)
	}
	return nil
}
