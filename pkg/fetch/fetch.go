// Package fetch downloads remote JSON payloads. Detection payloads can be
// large, so every download carries a hard size cap, and honors cancellation
// through the request context.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Bytes downloads url, refusing payloads larger than maxBytes.
func Bytes(ctx context.Context, url string, maxBytes int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Fetching %v: status %v", url, resp.Status)
	}
	// Read one byte beyond the cap so we can tell "exactly at the cap"
	// from "over it".
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("Fetching %v: %w", url, err)
	}
	if int64(len(raw)) > maxBytes {
		return nil, fmt.Errorf("Fetching %v: payload exceeds %v bytes", url, maxBytes)
	}
	return raw, nil
}

// JSON downloads url and unmarshals the payload into out.
func JSON(ctx context.Context, url string, maxBytes int64, out any) error {
	raw, err := Bytes(ctx, url, maxBytes)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("Parsing payload from %v: %w", url, err)
	}
	return nil
}
