package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
)

const defaultTimeout = 10 * time.Second

var requestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name: "sigview_relay_request_duration_seconds",
		Help: "Relay request latency by endpoint and outcome.",
	},
	[]string{"endpoint", "outcome"},
)

func init() {
	prometheus.MustRegister(requestDuration)
}

// HTTPClient implements Client against the relay's REST API.
// Safe for concurrent use.
type HTTPClient struct {
	baseURL string
	apiKey  string
	hc      *http.Client
}

func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		hc:      &http.Client{Timeout: defaultTimeout},
	}
}

// do issues one authenticated request and decodes the JSON reply into out.
// Any transport error, timeout or non-2xx status maps to ErrUnavailable,
// except 404 which maps to ErrNotFound.
func (c *HTTPClient) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	endpoint := metricEndpoint(path)
	start := time.Now()
	err := c.doOnce(ctx, method, path, query, body, out)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	requestDuration.WithLabelValues(endpoint, outcome).Observe(time.Since(start).Seconds())
	return err
}

func (c *HTTPClient) doOnce(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: encode %s request: %v", ErrUnavailable, path, err)
		}
		reqBody = bytes.NewBuffer(data)
	} else {
		reqBody = &bytes.Buffer{}
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("%w: build %s request: %v", ErrUnavailable, path, err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		glog.Errorf("relay: %s %s: %v", method, path, err)
		return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s %s", ErrNotFound, method, path)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		glog.Errorf("relay: %s %s: status %d", method, path, resp.StatusCode)
		return fmt.Errorf("%w: %s %s: status %d", ErrUnavailable, method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s reply: %v", ErrUnavailable, path, err)
	}
	return nil
}

// metricEndpoint collapses per-id paths to keep label cardinality bounded.
func metricEndpoint(path string) string {
	if strings.HasPrefix(path, "/messages/") {
		return "/messages/{id}"
	}
	return path
}

func (c *HTTPClient) ListConversations(ctx context.Context) ([]Conversation, error) {
	var env struct {
		Conversations []Conversation `json:"conversations"`
	}
	if err := c.do(ctx, http.MethodGet, "/conversations", nil, nil, &env); err != nil {
		return nil, err
	}
	return env.Conversations, nil
}

func (c *HTTPClient) ListGroups(ctx context.Context) ([]Conversation, error) {
	var env struct {
		Conversations []Conversation `json:"conversations"`
	}
	if err := c.do(ctx, http.MethodGet, "/groups", nil, nil, &env); err != nil {
		return nil, err
	}
	return env.Conversations, nil
}

func (c *HTTPClient) ListMessages(ctx context.Context, f Filter) ([]Message, error) {
	query := url.Values{}
	if f.Sender != "" {
		query.Set("sender", f.Sender)
	}
	if f.GroupID != "" {
		query.Set("group_id", f.GroupID)
	}
	if f.Recipient != "" {
		query.Set("recipient", f.Recipient)
	}

	var env struct {
		Messages []Message `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, "/messages", query, nil, &env); err != nil {
		return nil, err
	}
	return env.Messages, nil
}

func (c *HTTPClient) GetMessage(ctx context.Context, id int64) (*Message, error) {
	var msg Message
	path := "/messages/" + strconv.FormatInt(id, 10)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *HTTPClient) SendMessage(ctx context.Context, to, body string) (*Message, error) {
	req := map[string]string{"to": to, "message": body}
	var msg Message
	if err := c.do(ctx, http.MethodPost, "/send", nil, req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *HTTPClient) GetStats(ctx context.Context) (*Stats, error) {
	var stats Stats
	if err := c.do(ctx, http.MethodGet, "/stats", nil, nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *HTTPClient) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}
