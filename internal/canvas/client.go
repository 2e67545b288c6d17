// Package canvas is a small client for the Canvas LMS assignments API.
package canvas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	logx "duebot/pkg/logx"
)

const defaultPerPage = 100

// Assignment mirrors the fields of a Canvas assignment record the bot uses.
type Assignment struct {
	ID              int64      `json:"id"`
	Name            string     `json:"name"`
	DueAt           *time.Time `json:"due_at"`
	Description     string     `json:"description"`
	PointsPossible  *float64   `json:"points_possible"`
	SubmissionTypes []string   `json:"submission_types"`
	HTMLURL         string     `json:"html_url"`
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return "canvas: unexpected status " + e.Status
	}
	return fmt.Sprintf("canvas: unexpected status %s: %s", e.Status, e.Body)
}

type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

type Client struct {
	base  *url.URL
	token string
	hc    *http.Client
	log   logx.Logger
}

// New builds a client. hc may be nil.
func New(cfg Config, hc *http.Client, log logx.Logger) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, errors.New("canvas: base url is required")
	}
	u, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("canvas: base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("canvas: base url must be http(s): %q", raw)
	}
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		base:  u,
		token: cfg.Token,
		hc:    hc,
		log:   log.With(logx.String("comp", "canvas")),
	}, nil
}

// maxPages bounds pagination in case a server keeps returning rel="next".
const maxPages = 50

// ListAssignments fetches all of a course's assignments, following the Link
// header page by page. Next links pointing at another host are not followed
// so the token never leaves the configured Canvas instance.
func (c *Client) ListAssignments(ctx context.Context, courseID string) ([]Assignment, error) {
	courseID = strings.TrimSpace(courseID)
	if courseID == "" {
		return nil, errors.New("canvas: course id is required")
	}

	u := c.base.JoinPath("api", "v1", "courses", courseID, "assignments")
	q := u.Query()
	q.Set("per_page", fmt.Sprint(defaultPerPage))
	u.RawQuery = q.Encode()

	start := time.Now()
	var out []Assignment
	pages := 0
	for next := u.String(); next != ""; {
		if pages == maxPages {
			c.log.Warn("assignment pagination stopped", logx.String("course", courseID), logx.Int("pages", pages))
			break
		}
		page, link, err := c.fetchPage(ctx, next)
		if err != nil {
			return nil, err
		}
		pages++
		out = append(out, page...)
		next, err = c.resolveNext(link)
		if err != nil {
			c.log.Warn("ignoring next page link", logx.String("course", courseID), logx.Err(err))
			break
		}
	}
	c.log.Debug("assignments fetched",
		logx.String("course", courseID),
		logx.Int("count", len(out)),
		logx.Int("pages", pages),
		logx.Duration("took", time.Since(start)),
	)
	return out, nil
}

func (c *Client) fetchPage(ctx context.Context, rawURL string) ([]Assignment, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("canvas: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, "", &StatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	var page []Assignment
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, "", fmt.Errorf("canvas: decode assignments: %w", err)
	}
	return page, nextLink(resp.Header.Get("Link")), nil
}

// resolveNext turns a Link target into an absolute URL on the base host.
func (c *Client) resolveNext(link string) (string, error) {
	if link == "" {
		return "", nil
	}
	ref, err := url.Parse(link)
	if err != nil {
		return "", err
	}
	abs := c.base.ResolveReference(ref)
	if abs.Host != c.base.Host {
		return "", fmt.Errorf("canvas: next page on foreign host %q", abs.Host)
	}
	return abs.String(), nil
}

// nextLink extracts rel="next" from an RFC 8288 Link header.
func nextLink(h string) string {
	for _, part := range strings.Split(h, ",") {
		segs := strings.Split(part, ";")
		if len(segs) < 2 {
			continue
		}
		for _, p := range segs[1:] {
			if strings.TrimSpace(p) == `rel="next"` {
				return strings.Trim(strings.TrimSpace(segs[0]), "<>")
			}
		}
	}
	return ""
}
