package toonstream

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func intPtr(n int) *int { return &n }

func TestIsWrapper(t *testing.T) {
	c := newTestClient(t, "https://toonstream.love/", 1)
	tests := []struct {
		url  string
		want bool
	}{
		{"https://toonstream.love/?trembed=1&trid=42", true},
		{"https://external.example/?trembed=0", true},
		{"https://toonstream.love/some/page", true},
		{"https://player.example/v/abc", false},
	}
	for _, tt := range tests {
		if got := c.isWrapper(tt.url); got != tt.want {
			t.Errorf("isWrapper(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestResolveEmbedsFollowsWrappers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("trembed") != "1" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, `<iframe src="https://player.example/v/one"></iframe>`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL+"/", 1)

	embeds := []Embed{
		{Option: intPtr(1), URL: srv.URL + "/?trembed=1"},
		{Option: intPtr(2), URL: "https://player.example/v/direct"},
	}
	resolved := c.ResolveEmbeds(context.Background(), embeds)
	if len(resolved) != 2 {
		t.Fatalf("got %d embeds, want 2: %+v", len(resolved), resolved)
	}
	if resolved[0].URL != "https://player.example/v/one" {
		t.Errorf("wrapper resolved to %q", resolved[0].URL)
	}
	if resolved[0].Option == nil || *resolved[0].Option != 1 {
		t.Errorf("resolved embed lost its option: %v", resolved[0].Option)
	}
	if resolved[1].URL != "https://player.example/v/direct" {
		t.Errorf("direct embed changed: %q", resolved[1].URL)
	}
}

func TestResolveEmbedsKeepsBarrenWrapper(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>no iframes here</body></html>`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL+"/", 1)
	wrapperURL := srv.URL + "/?trembed=1"

	resolved := c.ResolveEmbeds(context.Background(), []Embed{{URL: wrapperURL}})
	if len(resolved) != 1 {
		t.Fatalf("got %d embeds, want 1", len(resolved))
	}
	if resolved[0].URL != wrapperURL {
		t.Errorf("barren wrapper replaced by %q, want kept as %q", resolved[0].URL, wrapperURL)
	}
}

func TestResolveEmbedsDeduplicates(t *testing.T) {
	c := newTestClient(t, "https://toonstream.love/", 1)

	embeds := []Embed{
		{Option: intPtr(1), URL: "https://player.example/v/a"},
		{Option: intPtr(1), URL: "https://player.example/v/a"},
		{Option: intPtr(2), URL: "https://player.example/v/a"},
		{URL: "https://player.example/v/a"},
	}
	resolved := c.ResolveEmbeds(context.Background(), embeds)
	if len(resolved) != 3 {
		t.Errorf("got %d embeds, want 3 (distinct option+url pairs): %+v", len(resolved), resolved)
	}
}
