// Package googleapi holds the one HTTP primitive the Drive and Sheets
// clients share: an authorized JSON round trip that converts non-2xx
// responses into typed remote errors.
package googleapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/sourcestack/resume-batch/internal/common"
)

// DoJSON sends an authorized request and decodes the JSON response into
// out (skipped when out is nil). body is JSON-encoded when non-nil. A
// non-2xx status comes back as *common.RemoteAPIError so callers can
// classify it for retries.
func DoJSON(ctx context.Context, client *http.Client, method, url, accessToken string, body, out any, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = &http.Client{Timeout: 45 * time.Second}
	}

	reqID := uuid.New().String()
	start := time.Now()

	var reader io.Reader
	if body != nil {
		bs, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		reader = bytes.NewReader(bs)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		logger.Error("googleapi.send_error", "req_id", reqID, "method", method, "error", err)
		return err
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			logger.Warn("googleapi.body_close_error", "req_id", reqID, "error", cerr)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	logger.Info("googleapi.response",
		"req_id", reqID,
		"method", method,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		return &common.RemoteAPIError{StatusCode: resp.StatusCode, Body: Truncate(raw, 512)}
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// Truncate caps an error body so log lines and error strings stay short.
func Truncate(body []byte, max int) string {
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
