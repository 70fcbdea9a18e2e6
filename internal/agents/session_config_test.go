package agents

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFetchSessionConfig(t *testing.T) {
	setupTest(t)
	ctx := context.Background()

	t.Run("first event is parsed", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Accept") != "text/event-stream" {
				t.Errorf("Accept = %q", r.Header.Get("Accept"))
			}
			w.Header().Set("Content-Type", "text/event-stream")
			w.Write([]byte("data: {\"role\": \"a meme lord\", \"apis\": [\"twitter\"],\n"))
			w.Write([]byte("data: \"assisted\": true}\n"))
			w.Write([]byte("\n"))
			w.Write([]byte("data: {\"role\": \"ignored second event\"}\n\n"))
		}))
		defer srv.Close()

		cfg := FetchSessionConfig(ctx, srv.URL, 5*time.Second)
		if cfg.Role != "a meme lord" {
			t.Errorf("Role = %q", cfg.Role)
		}
		if len(cfg.APIs) != 1 || cfg.APIs[0] != "twitter" {
			t.Errorf("APIs = %v", cfg.APIs)
		}
		if cfg.Assisted == nil || !*cfg.Assisted {
			t.Error("Assisted not parsed")
		}
	})

	t.Run("templates pass through", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("data: {\"prompts\": {\"system_prompt\": \"custom\"}}\n\n"))
		}))
		defer srv.Close()

		cfg := FetchSessionConfig(ctx, srv.URL, 5*time.Second)
		if cfg.Templates["system_prompt"] != "custom" {
			t.Errorf("Templates = %v", cfg.Templates)
		}
	})

	t.Run("empty url yields defaults", func(t *testing.T) {
		cfg := FetchSessionConfig(ctx, "", 5*time.Second)
		if cfg == nil || cfg.Role != "" || cfg.Templates != nil {
			t.Errorf("cfg = %+v", cfg)
		}
	})

	t.Run("server error yields defaults", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		cfg := FetchSessionConfig(ctx, srv.URL, 5*time.Second)
		if cfg == nil || cfg.Role != "" {
			t.Errorf("cfg = %+v", cfg)
		}
	})

	t.Run("malformed event yields defaults", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("data: not json at all\n\n"))
		}))
		defer srv.Close()

		cfg := FetchSessionConfig(ctx, srv.URL, 5*time.Second)
		if cfg == nil || cfg.Role != "" {
			t.Errorf("cfg = %+v", cfg)
		}
	})

	t.Run("stream without event yields defaults", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(": keepalive comment\n"))
		}))
		defer srv.Close()

		cfg := FetchSessionConfig(ctx, srv.URL, 5*time.Second)
		if cfg == nil || cfg.Role != "" {
			t.Errorf("cfg = %+v", cfg)
		}
	})
}
