// Package gateway talks to the radio-side service that places short messages
// on the network and computes authentication vectors.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/orris-inc/cellcore/internal/domain/message"
	"github.com/orris-inc/cellcore/internal/domain/subscriber"
	"github.com/orris-inc/cellcore/internal/shared/alarm"
	"github.com/orris-inc/cellcore/internal/shared/logger"
)

const (
	messagesPath = "/messages"
	vectorsPath  = "/vectors"

	defaultTimeout = 5 * time.Second
	// Maximum response body size accepted from the gateway (64KB)
	maxResponseSize = 64 << 10
)

type placeResponse struct {
	Delivered bool   `json:"delivered"`
	Reason    string `json:"reason,omitempty"`
}

// Client implements message.Placer and subscriber.VectorComputer over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	alarms     *alarm.Board
	logger     logger.Interface
}

var (
	_ message.Placer            = (*Client)(nil)
	_ subscriber.VectorComputer = (*Client)(nil)
)

// NewClient creates a gateway client. Unreachable gateways raise a gateway alarm
// that clears on the next successful call.
func NewClient(baseURL string, timeout time.Duration, alarms *alarm.Board, log logger.Interface) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if log == nil {
		log = logger.NewNop()
	}
	if alarms == nil {
		alarms = alarm.NewBoard(log)
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		alarms:     alarms,
		logger:     log,
	}
}

// PlaceMessage hands one message to the gateway. A refusal by the far end is
// reported as false without error.
func (c *Client) PlaceMessage(ctx context.Context, d message.Delivery) (bool, error) {
	var resp placeResponse
	if err := c.post(ctx, messagesPath, d, &resp); err != nil {
		return false, err
	}
	if !resp.Delivered {
		c.logger.Infow("gateway refused message",
			"message_id", d.MessageID,
			"to", d.To,
			"reason", resp.Reason,
		)
	}
	return resp.Delivered, nil
}

// ComputeVector asks the gateway for the expected answers to a challenge.
func (c *Client) ComputeVector(ctx context.Context, req subscriber.VectorRequest) (*subscriber.Vector, error) {
	var v subscriber.Vector
	if err := c.post(ctx, vectorsPath, req, &v); err != nil {
		return nil, err
	}
	if v.Response == "" && v.ExtendedResponse == "" && v.RecoveredSequence == "" {
		return nil, fmt.Errorf("gateway returned an empty vector")
	}
	return &v, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.alarms.Raise(alarm.KindGateway, path, "gateway unreachable", "error", err)
		return fmt.Errorf("failed to call gateway %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.alarms.Raise(alarm.KindGateway, path, "gateway error", "status", resp.StatusCode)
		return fmt.Errorf("gateway %s returned status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	c.alarms.Clear(alarm.KindGateway, path)

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(out); err != nil {
		return fmt.Errorf("failed to decode gateway response: %w", err)
	}
	return nil
}
