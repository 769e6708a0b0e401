// Package api talks to the RepCoach web frontend: a reachability probe
// and the recording upload endpoint.
package api

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/repcoach/engine/pkg/core"
)

// Client is an HTTP client for the frontend's API.
type Client struct {
	base   string
	key    string
	client *http.Client
}

// New creates a client for the frontend at baseURL.
func New(baseURL, apiKey string) *Client {
	return &Client{
		base:   strings.TrimRight(baseURL, "/"),
		key:    apiKey,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Healthcheck probes the frontend and reports whether it answered 200.
func (c *Client) Healthcheck() error {
	resp, err := c.client.Get(c.base + "/healthcheck")
	if err != nil {
		return fmt.Errorf("frontend unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthcheck: status %d", resp.StatusCode)
	}
	return nil
}

// Upload posts the recording at filePath to the frontend with its
// session metadata as form fields. Recordings are session-sized JSON
// (possibly gzipped), so the body is assembled in memory.
func (c *Client) Upload(filePath string, meta core.UploadMetadata) error {
	body, contentType, err := c.uploadBody(filePath, meta)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, c.base+"/api/v1/recordings/add", body)
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("post recording: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upload: status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) uploadBody(filePath string, meta core.UploadMetadata) (*bytes.Buffer, string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, "", fmt.Errorf("open recording: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)

	fields := map[string]string{
		"secret":    c.key,
		"filename":  filepath.Base(filePath),
		"sessionId": meta.SessionID,
		"exercise":  meta.Exercise,
		"subject":   meta.Subject,
		"duration":  fmt.Sprintf("%f", meta.Duration),
		"repCount":  strconv.Itoa(meta.RepCount),
		"tag":       meta.Tag,
	}
	for name, value := range fields {
		if err := form.WriteField(name, value); err != nil {
			return nil, "", fmt.Errorf("form field %s: %w", name, err)
		}
	}

	part, err := form.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return nil, "", fmt.Errorf("attach recording: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", fmt.Errorf("read recording: %w", err)
	}
	if err := form.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}

	return &buf, form.FormDataContentType(), nil
}
