package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Client calls named host operations over HTTP. Each operation is a POST
// of a JSON body to <base>/v1/op/<name>. The guest token, once set after
// a successful slot claim, is attached to every subsequent call.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zerolog.Logger

	mu    sync.RWMutex
	token string
}

// NewClient builds a client for the given host base URL. httpClient may
// be nil to use http.DefaultClient.
func NewClient(baseURL string, httpClient *http.Client, logger *zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		log:     logger,
	}
}

// SetGuestToken attaches the signed guest token to future calls.
func (c *Client) SetGuestToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// GuestToken returns the currently attached token, or "".
func (c *Client) GuestToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// call performs one named operation. Host failures are returned as
// *RemoteError; transport failures come back without a structured code so
// the retry layer treats them as possible network errors.
func (c *Client) call(ctx context.Context, op string, reqBody, respBody any) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", op, err)
	}

	url := c.baseURL + "/v1/op/" + op
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token := c.GuestToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", op, err)
	}

	if resp.StatusCode != http.StatusOK {
		return remoteErrorFrom(resp.StatusCode, body)
	}

	if respBody != nil {
		if err := json.Unmarshal(body, respBody); err != nil {
			return fmt.Errorf("decode %s response: %w", op, err)
		}
	}

	if c.log != nil {
		c.log.Debug().Str("op", op).Msg("cloud call ok")
	}
	return nil
}

// remoteErrorFrom decodes the host's error envelope. A non-200 response
// without a parseable envelope still gets a structured code derived from
// the HTTP status, keeping the taxonomy closed.
func remoteErrorFrom(status int, body []byte) error {
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Code != "" {
		return &RemoteError{Code: envelope.Error.Code, Message: envelope.Error.Message}
	}

	switch {
	case status == http.StatusTooManyRequests:
		return &RemoteError{Code: CodeResourceExhausted, Message: http.StatusText(status)}
	case status == http.StatusNotFound:
		return &RemoteError{Code: CodeNotFound, Message: http.StatusText(status)}
	case status == http.StatusUnauthorized:
		return &RemoteError{Code: CodeUnauthenticated, Message: http.StatusText(status)}
	case status == http.StatusForbidden:
		return &RemoteError{Code: CodePermissionDenied, Message: http.StatusText(status)}
	case status >= 500:
		return &RemoteError{Code: CodeUnavailable, Message: http.StatusText(status)}
	default:
		return &RemoteError{Code: CodeUnknown, Message: fmt.Sprintf("http %d", status)}
	}
}
