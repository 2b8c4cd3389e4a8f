// Package update asks a configured URL for the newest release and compares
// it with the running version. The URL serves either a JSON object with a
// "version" field or a bare version string.
package update

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
)

// ErrNoURL is returned when no update URL is configured.
var ErrNoURL = errors.New("update: no update url configured")

const (
	DefaultTimeout = 5 * time.Second
	maxBody        = 64 << 10
)

type Status struct {
	Current   string
	Latest    string
	Available bool
	Checked   time.Time
}

// Message is a one-line summary for the user.
func (s Status) Message() string {
	if s.Available {
		return fmt.Sprintf("update available: %s (installed %s)", s.Latest, s.Current)
	}
	return fmt.Sprintf("up to date (%s)", s.Current)
}

type Checker struct {
	URL    string
	Client *http.Client
}

func NewChecker(url string) *Checker {
	return &Checker{URL: url, Client: &http.Client{Timeout: DefaultTimeout}}
}

// Check fetches the latest version and compares it with current.
func (c *Checker) Check(ctx context.Context, current string) (Status, error) {
	st := Status{Current: current, Checked: time.Now()}
	if strings.TrimSpace(c.URL) == "" {
		return st, ErrNoURL
	}
	cur, err := semver.NewVersion(current)
	if err != nil {
		return st, fmt.Errorf("installed version %q: %w", current, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return st, err
	}
	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return st, fmt.Errorf("update check: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return st, fmt.Errorf("update check: %s returned %s", c.URL, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return st, fmt.Errorf("update check: %w", err)
	}

	raw, err := ParseVersion(body)
	if err != nil {
		return st, err
	}
	latest, err := semver.NewVersion(raw)
	if err != nil {
		return st, fmt.Errorf("update check: bad version %q: %w", raw, err)
	}
	st.Latest = latest.String()
	st.Available = latest.GreaterThan(cur)
	return st, nil
}

// ParseVersion extracts the version from a response body.
func ParseVersion(body []byte) (string, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return "", errors.New("update check: empty response")
	}
	if body[0] == '{' {
		var doc struct {
			Version string `json:"version"`
		}
		if err := json.Unmarshal(body, &doc); err != nil {
			return "", fmt.Errorf("update check: %w", err)
		}
		if doc.Version == "" {
			return "", errors.New("update check: response has no version")
		}
		return strings.TrimSpace(doc.Version), nil
	}
	return strings.Trim(string(body), "\"' \n\r\t"), nil
}
