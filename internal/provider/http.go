package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 4 << 10

// postJSON sends body to url and decodes a 2xx response into out. Failures
// come back as *Error for the named provider.
func postJSON(ctx context.Context, client *http.Client, provider, url string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return networkErr(provider, 0, fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return networkErr(provider, 0, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return networkErr(provider, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return statusErr(provider, resp.StatusCode, errorMessage(raw))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return malformedErr(provider, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// errorMessage pulls a message out of the error shapes the backends use:
// {"error":{"message":...}}, {"error":"..."} and {"detail":"..."}.
func errorMessage(raw []byte) string {
	var body struct {
		Error  json.RawMessage `json:"error"`
		Detail string          `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(body.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
		var flat string
		if json.Unmarshal(body.Error, &flat) == nil && flat != "" {
			return flat
		}
		if body.Detail != "" {
			return body.Detail
		}
	}
	return strings.TrimSpace(string(raw))
}
