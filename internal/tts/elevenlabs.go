// Package tts is the ElevenLabs text-to-speech client.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"yuzu/voicebridge/internal/types"
)

const DefaultBaseURL = "https://api.elevenlabs.io"

// ErrStatus is matched by every non-2xx response error.
var ErrStatus = errors.New("elevenlabs: unexpected status")

// StatusError carries the ElevenLabs response detail.
type StatusError struct {
	Code   int
	Detail string
}

func (e *StatusError) Error() string { return e.Detail }

func (e *StatusError) Is(target error) bool { return target == ErrStatus }

type Client struct {
	http *http.Client
	base string
}

type Option func(*Client)

func WithBaseURL(base string) Option {
	return func(c *Client) {
		if base != "" {
			c.base = strings.TrimRight(base, "/")
		}
	}
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// NewClient returns a client with no request timeout; a synthesis runs to
// completion or transport failure.
func NewClient(opts ...Option) *Client {
	c := &Client{http: &http.Client{}, base: DefaultBaseURL}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Synthesize converts req.Text to audio in req.OutputFormat.
func (c *Client) Synthesize(ctx context.Context, req types.SynthesisRequest) ([]byte, error) {
	start := time.Now()
	audio, err := c.synthesize(ctx, req)
	synthesisLatencyMS.Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		synthesisTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	synthesisTotal.WithLabelValues("ok").Inc()
	synthesisBytes.Add(float64(len(audio)))
	return audio, nil
}

func (c *Client) synthesize(ctx context.Context, in types.SynthesisRequest) ([]byte, error) {
	u := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s", c.base, url.PathEscape(in.VoiceID), url.QueryEscape(in.OutputFormat))
	body := map[string]any{"text": in.Text}
	if in.ModelID != "" {
		body["model_id"] = in.ModelID
	}
	reqBytes, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(reqBytes))
	if err != nil {
		return nil, err
	}
	req.Header.Set("xi-api-key", in.APIKey)
	req.Header.Set("accept", "audio/mpeg")
	req.Header.Set("content-type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		detail := strings.TrimSpace(string(b))
		if detail == "" {
			detail = "status " + strconv.Itoa(resp.StatusCode)
		}
		return nil, &StatusError{Code: resp.StatusCode, Detail: detail}
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs read body: %w", err)
	}
	return audio, nil
}
