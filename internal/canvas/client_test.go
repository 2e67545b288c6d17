package canvas

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "duebot/pkg/logx"
)

func TestListAssignments(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/courses/123/assignments", r.URL.Path)
		assert.Equal(t, "100", r.URL.Query().Get("per_page"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`[
		  {"id": 42, "name": "Essay", "due_at": "2030-03-04T05:06:07Z", "description": "<p>Hi</p>",
		   "points_possible": 12.5, "submission_types": ["online_text_entry"], "html_url": "https://x/42"},
		  {"id": 43, "name": "Open", "due_at": null, "points_possible": null, "submission_types": []}
		]`))
	}))
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL + "/", Token: "secret"}, srv.Client(), logx.Nop())
	require.NoError(t, err)

	got, err := c.ListAssignments(context.Background(), "123")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, int64(42), got[0].ID)
	require.NotNil(t, got[0].DueAt)
	assert.True(t, got[0].DueAt.Equal(time.Date(2030, 3, 4, 5, 6, 7, 0, time.UTC)))
	require.NotNil(t, got[0].PointsPossible)
	assert.Equal(t, 12.5, *got[0].PointsPossible)
	assert.Nil(t, got[1].DueAt)
	assert.Nil(t, got[1].PointsPossible)
}

func TestListAssignmentsFollowsPages(t *testing.T) {
	t.Parallel()

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		switch r.URL.Query().Get("page") {
		case "":
			w.Header().Set("Link", `<`+srv.URL+`/api/v1/courses/9/assignments?page=2&per_page=100>; rel="next", <`+srv.URL+`/api/v1/courses/9/assignments?page=1&per_page=100>; rel="first"`)
			_, _ = w.Write([]byte(`[{"id": 1, "name": "One"}]`))
		case "2":
			w.Header().Set("Link", `</api/v1/courses/9/assignments?page=3&per_page=100>; rel="next"`)
			_, _ = w.Write([]byte(`[{"id": 2, "name": "Two"}]`))
		case "3":
			_, _ = w.Write([]byte(`[{"id": 3, "name": "Three"}]`))
		default:
			t.Errorf("unexpected page %q", r.URL.RawQuery)
		}
	}))
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL, Token: "secret"}, srv.Client(), logx.Nop())
	require.NoError(t, err)

	got, err := c.ListAssignments(context.Background(), "9")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{got[0].ID, got[1].ID, got[2].ID})
}

func TestListAssignmentsStopsAtForeignHost(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Header().Set("Link", `<https://elsewhere.test/api/v1/courses/9/assignments?page=2>; rel="next"`)
		_, _ = w.Write([]byte(`[{"id": 1, "name": "One"}]`))
	}))
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL, Token: "secret"}, srv.Client(), logx.Nop())
	require.NoError(t, err)

	got, err := c.ListAssignments(context.Background(), "9")
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, int32(1), hits.Load())
}

func TestListAssignmentsErrorOnLaterPage(t *testing.T) {
	t.Parallel()

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			http.Error(w, "boom", http.StatusBadGateway)
			return
		}
		w.Header().Set("Link", `<`+srv.URL+`/api/v1/courses/9/assignments?page=2>; rel="next"`)
		_, _ = w.Write([]byte(`[{"id": 1, "name": "One"}]`))
	}))
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL, Token: "secret"}, srv.Client(), logx.Nop())
	require.NoError(t, err)

	_, err = c.ListAssignments(context.Background(), "9")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.StatusCode)
}

func TestListAssignmentsStatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errors":[{"message":"Invalid access token."}]}`, http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL}, srv.Client(), logx.Nop())
	require.NoError(t, err)

	_, err = c.ListAssignments(context.Background(), "1")
	var se *StatusError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
	assert.Contains(t, se.Error(), "Invalid access token")
}

func TestListAssignmentsBadJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"not": "a list"}`))
	}))
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL}, srv.Client(), logx.Nop())
	require.NoError(t, err)
	_, err = c.ListAssignments(context.Background(), "1")
	require.Error(t, err)
}

func TestNewValidatesBaseURL(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "   ", "ftp://x", "::"} {
		if _, err := New(Config{BaseURL: in}, nil, logx.Nop()); err == nil {
			t.Fatalf("New(%q) should fail", in)
		}
	}
}

func TestNextLink(t *testing.T) {
	t.Parallel()

	h := `<https://a/x?page=1>; rel="current", <https://a/x?page=2>; rel="next"`
	assert.Equal(t, "https://a/x?page=2", nextLink(h))
	assert.Equal(t, "", nextLink(""))
}

func TestStripHTML(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"plain", "plain"},
		{"<p>Hello <b>world</b></p><p>Second&nbsp;para</p>", "Hello world\nSecond para"},
		{"<ul><li>a</li><li>b</li></ul>", "a\nb"},
		{"<div>x<script>alert(1)</script></div>", "x"},
		{"a &amp; b", "a & b"},
	}
	for _, tt := range tests {
		if got := StripHTML(tt.in); got != tt.want {
			t.Fatalf("StripHTML(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
