package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// HTTP streams the body of a GET request, such as an IP camera's
// multipart MJPEG endpoint.
type HTTP struct {
	URL    string
	Client *http.Client // nil means http.DefaultClient
}

// Open issues the request. The body is the stream; multipart boundaries
// are left in place and skipped by the demuxer.
func (h HTTP) Open(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("source: build request: %w", err)
	}
	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("source: get %s: %w", h.URL, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("source: get %s: unexpected status %s", h.URL, resp.Status)
	}
	slog.Info("source: http stream open",
		"url", h.URL,
		"content_type", resp.Header.Get("Content-Type"),
	)
	return resp.Body, nil
}
