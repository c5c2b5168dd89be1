package sources

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/palantir/company-dataitem-enricher/internal/version"
	"github.com/palantir/company-dataitem-enricher/pkg/pipeline/redact"
)

const maxBodyBytes = 4 << 20

// HTTPError is a sanitized summary of a non-2xx source API response.
//
// Raw response bodies are never included; they can carry personal data or echo credentials.
type HTTPError struct {
	Op         string
	StatusCode int
	Status     string

	// Snippet is a redacted, truncated hint taken from the body.
	Snippet string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "source http error"
	}
	msg := fmt.Sprintf("source api error: op=%s status=%s", strings.TrimSpace(e.Op), strings.TrimSpace(e.Status))
	if strings.TrimSpace(e.Snippet) != "" {
		msg += " body=" + strings.TrimSpace(e.Snippet)
	}
	return msg
}

func newHTTPError(op string, resp *http.Response, body []byte) error {
	h := &HTTPError{Op: op}
	if resp != nil {
		h.StatusCode = resp.StatusCode
		h.Status = resp.Status
	}
	h.Snippet = redactAndTruncate(body)
	return h
}

func redactAndTruncate(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	const max = 256
	b := body
	if len(b) > max {
		b = b[:max]
	}
	s := redact.Secrets(string(b))
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if len(body) > max {
		return s + "..."
	}
	return s
}

func defaultHTTPClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{Timeout: 30 * time.Second}
}

// doJSON sends req and decodes a 2xx JSON body into v. found=false reports a 404.
func doJSON(client *http.Client, req *http.Request, op string, v any) (found bool, err error) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := client.Do(req)
	if err != nil {
		return false, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return false, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode/100 != 2 {
		return false, newHTTPError(op, resp, b)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, fmt.Errorf("parse %s response: %w", op, err)
	}
	return true, nil
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
