// Package handoff submits captured downloads to the external download manager.
package handoff

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/dgnsrekt/linkgrabber/internal/config"
	"github.com/dgnsrekt/linkgrabber/internal/types"
)

// ErrUnavailable marks a manager that could not give an answer.
var ErrUnavailable = errors.New("download manager unavailable")

// PolicySource yields the current policy; the port and header options are
// read on every call.
type PolicySource interface {
	Current() *config.Policy
}

type Client struct {
	http    *http.Client
	policy  PolicySource
	timeout time.Duration

	// Host defaults to localhost.
	Host string
}

type addRequest struct {
	Items   []types.DirectDownloadItem `json:"items"`
	Options addOptions                 `json:"options"`
}

type addOptions struct {
	SilentAdd   bool `json:"silentAdd"`
	SilentStart bool `json:"silentStart"`
}

func NewClient(httpClient *http.Client, policy PolicySource, timeout time.Duration) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{http: httpClient, policy: policy, timeout: timeout, Host: "localhost"}
}

func (c *Client) baseURL() string {
	return "http://" + c.Host + ":" + strconv.Itoa(c.policy.Current().Port)
}

// Submit posts items to /add. A 2xx answer is an acceptance, 5xx and
// transport failures wrap ErrUnavailable, any other status is a rejection.
func (c *Client) Submit(ctx context.Context, items []types.DirectDownloadItem) (bool, error) {
	p := c.policy.Current()
	body := addRequest{
		Items:   items,
		Options: addOptions{SilentAdd: p.SilentAddDownload, SilentStart: p.SilentStartDownload},
	}
	if !p.SendHeaders {
		body.Items = make([]types.DirectDownloadItem, len(items))
		for i, item := range items {
			item.Headers = nil
			body.Items[i] = item
		}
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return false, fmt.Errorf("handoff: encode: %w", err)
	}

	status, err := c.do(ctx, http.MethodPost, "/add", raw)
	if err != nil {
		return false, err
	}
	switch {
	case status >= 200 && status < 300:
		return true, nil
	case status >= 500:
		return false, fmt.Errorf("handoff: add: status=%d: %w", status, ErrUnavailable)
	default:
		return false, nil
	}
}

// Ping checks that the manager is listening.
func (c *Client) Ping(ctx context.Context) error {
	status, err := c.do(ctx, http.MethodPost, "/ping", nil)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("handoff: ping: status=%d: %w", status, ErrUnavailable)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (int, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL()+path, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("handoff: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("handoff: %s %s: %w: %w", method, path, ErrUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
