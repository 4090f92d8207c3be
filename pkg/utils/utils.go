// Package utils provides HTTP and caching helpers used by the live viewer's transport.
package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
)

var ErrNotFound = errors.New("resource not found on server")

// maxBodySize bounds a single JSON response.
const maxBodySize = 32 << 20

// GetBody performs a GET and returns the full response body. Non-200
// responses are errors; 404 maps to ErrNotFound.
func GetBody(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("Error closing response body: %v", err)
		}
	}()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad status: %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
