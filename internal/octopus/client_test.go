package octopus

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "https://www.octopus.ac/", WithRateLimit(1000))
}

func TestListPublications_DataWrapper(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/cl5smny4a000009ieqml45bhz/publications" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Errorf("Accept = %q", got)
		}
		w.Write([]byte(`{"data": [{"id": "pub-1", "title": "Test Publication"}]}`))
	})

	pubs, err := c.ListPublications(context.Background(), "cl5smny4a000009ieqml45bhz")
	if err != nil {
		t.Fatalf("ListPublications() error = %v", err)
	}
	if len(pubs) != 1 {
		t.Fatalf("len = %d, want 1", len(pubs))
	}
	if pubs[0]["id"] != "pub-1" {
		t.Errorf("id = %v, want pub-1", pubs[0]["id"])
	}
}

func TestListPublications_Shapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"direct list", `[{"id": "pub-1"}, {"id": "pub-2"}]`, 2},
		{"empty list", `[]`, 0},
		{"empty wrapper", `{"data": []}`, 0},
		{"unexpected object", `{"items": [{"id": "x"}]}`, 0},
		{"non-object entries dropped", `[{"id": "a"}, 42, "b", null]`, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			})
			pubs, err := c.ListPublications(context.Background(), "u1")
			if err != nil {
				t.Fatalf("ListPublications() error = %v", err)
			}
			if len(pubs) != tt.want {
				t.Errorf("len = %d, want %d", len(pubs), tt.want)
			}
		})
	}
}

func TestListPublications_HTTPError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})

	_, err := c.ListPublications(context.Background(), "u1")
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("error = %v, want ErrSourceUnavailable", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadGateway {
		t.Errorf("expected APIError with 502, got %v", err)
	}
}

func TestFetchPublication_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	_, err := c.FetchPublication(context.Background(), "missing")
	if !IsNotFound(err) {
		t.Errorf("IsNotFound(%v) = false", err)
	}
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("404 should still classify as ErrSourceUnavailable")
	}
}

func TestFetchPublication_SendsToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		w.Write([]byte(`{"id": "pub-1", "versions": [{"id": "ver-1", "content": "<p>x</p>"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", WithAccessToken("tok"), WithRateLimit(1000))
	detail, err := c.FetchPublication(context.Background(), "pub-1")
	if err != nil {
		t.Fatalf("FetchPublication() error = %v", err)
	}
	if v := SelectVersion(detail, "ver-1"); v.String("content") != "<p>x</p>" {
		t.Errorf("content = %q", v.String("content"))
	}
}

func TestSourceUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(url, "", WithRateLimit(1000))
	_, err := c.ListPublications(context.Background(), "u1")
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("error = %v, want ErrSourceUnavailable", err)
	}
}

func TestPublicationURL(t *testing.T) {
	c := NewClient("https://prod.api.octopus.ac/v1", "https://www.octopus.ac/")
	got := c.PublicationURL("pub-123", "ver-456")
	want := "https://www.octopus.ac/publications/pub-123/versions/ver-456"
	if got != want {
		t.Errorf("PublicationURL() = %q, want %q", got, want)
	}
}

func TestExtractUserIDFromURL(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{"author page", "https://www.octopus.ac/authors/cl5smny4a000009ieqml45bhz", "cl5smny4a000009ieqml45bhz", true},
		{"trailing slash", "https://www.octopus.ac/authors/abc123/", "abc123", true},
		{"with whitespace", "  https://octopus.ac/authors/abc123  ", "abc123", true},
		{"query string", "https://www.octopus.ac/authors/abc123?tab=pubs", "abc123", true},
		{"no authors segment", "https://example.com", "", false},
		{"not a url", "not-a-url", "", false},
		{"empty id", "https://www.octopus.ac/authors/", "", false},
		{"nested path", "https://www.octopus.ac/authors/abc/extra", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractUserIDFromURL(tt.input)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ExtractUserIDFromURL(%q) = (%q, %v), want (%q, %v)", tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestFetchVersion(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/publication-versions/ver-1":
			w.Write([]byte(`{"id": "ver-1", "title": "Version title"}`))
		default:
			w.WriteHeader(http.StatusForbidden)
		}
	})

	v, err := c.FetchVersion(context.Background(), "ver-1")
	if err != nil {
		t.Fatalf("FetchVersion() error = %v", err)
	}
	if v["title"] != "Version title" {
		t.Errorf("title = %v, want Version title", v["title"])
	}

	if _, err := c.FetchVersion(context.Background(), "ver-2"); !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("FetchVersion(forbidden) = %v, want ErrSourceUnavailable", err)
	}
}
