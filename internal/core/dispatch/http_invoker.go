package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/markdave123-py/Cadence/internal/core"
)

// HTTPInvoker calls POST {baseURL}/functions/{job}. The worker acknowledges
// with 2xx before running the job.
type HTTPInvoker struct {
	client  *http.Client
	baseURL string
	token   string
}

func NewHTTPInvoker(baseURL, token string, timeout time.Duration) *HTTPInvoker {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPInvoker{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
}

func (h *HTTPInvoker) Dispatch(ctx context.Context, jobName string, job core.ScrapeJob) error {
	payload, err := encode(jobName, job)
	if err != nil {
		return err
	}
	endpoint := h.baseURL + "/functions/" + url.PathEscape(jobName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("invoke %s: %w", jobName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("invoke %s: status %d: %s", jobName, resp.StatusCode, workerMessage(body))
	}
	return nil
}

// workerMessage prefers the message field of the worker's JSON envelope and
// falls back to the raw body.
func workerMessage(body []byte) string {
	if msg := gjson.GetBytes(body, "message"); msg.Type == gjson.String && msg.Str != "" {
		return msg.Str
	}
	return strings.TrimSpace(string(body))
}

func (h *HTTPInvoker) Close() error { return nil }
