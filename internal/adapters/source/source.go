package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/setshaba/mapdata/internal/core/ports"
)

// maxDatasetBytes caps a downloaded dataset.
const maxDatasetBytes = 64 << 20

// HTTPSource downloads a GeoJSON document from a URL.
type HTTPSource struct {
	url    string
	client *http.Client
}

// NewHTTPSource creates an HTTPSource whose requests time out after timeout.
func NewHTTPSource(url string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{url: url, client: &http.Client{Timeout: timeout}}
}

// FetchRawDataset downloads the document.
func (s *HTTPSource) FetchRawDataset(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/geo+json, application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d for %s", resp.StatusCode, s.url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDatasetBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) > maxDatasetBytes {
		return nil, fmt.Errorf("dataset larger than %d bytes", maxDatasetBytes)
	}
	return body, nil
}

// FileSource reads a GeoJSON document bundled with the deployment.
type FileSource struct {
	path string
}

// NewFileSource creates a FileSource.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// FetchRawDataset reads the file.
func (s *FileSource) FetchRawDataset(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	return data, nil
}

// New picks an HTTPSource for http(s) locations and a FileSource otherwise.
func New(location string, timeout time.Duration) (ports.DatasetSource, error) {
	switch {
	case location == "":
		return nil, fmt.Errorf("dataset location is empty")
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		return NewHTTPSource(location, timeout), nil
	default:
		return NewFileSource(strings.TrimPrefix(location, "file://")), nil
	}
}
