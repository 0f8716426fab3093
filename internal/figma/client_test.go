package figma

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"design-proxy/pkg/apierror"
	"design-proxy/pkg/ratelimit"
)

var testToken = "figd_" + strings.Repeat("t", 40)

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)
	client := NewClient(ratelimit.New(100, time.Minute))
	client.BaseURL = server.URL
	return client, server
}

func TestGetFile(t *testing.T) {
	var gotPath, gotToken string
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.Header.Get("X-Figma-Token")
		w.Write([]byte(`{"name":"Landing Page","version":"42","lastModified":"2025-05-01T00:00:00Z"}`))
	})
	defer server.Close()

	file, err := client.GetFile(context.Background(), "https://www.figma.com/file/Key123456789/Landing-Page", testToken)
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if file.Name != "Landing Page" || file.Version != "42" {
		t.Errorf("file = %+v", file)
	}
	if gotPath != "/files/Key123456789" {
		t.Errorf("path = %q, want canonical file key path", gotPath)
	}
	if gotToken != testToken {
		t.Errorf("token header not forwarded")
	}
}

func TestGetFile_InvalidReference(t *testing.T) {
	called := false
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	defer server.Close()

	_, err := client.GetFile(context.Background(), "https://example.com/nope", testToken)
	if !errors.Is(err, apierror.ErrInvalidInput) {
		t.Fatalf("err = %v, want InvalidInput", err)
	}
	if called {
		t.Errorf("invalid identifier must not reach the network")
	}
}

func TestGetFile_MalformedToken(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {})
	defer server.Close()

	_, err := client.GetFile(context.Background(), "Key123456789", "not-a-figma-token")
	if !errors.Is(err, apierror.ErrInvalidInput) {
		t.Fatalf("err = %v, want InvalidInput", err)
	}
}

func TestGetFile_UpstreamErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   *apierror.Error
	}{
		{"unauthorized", 401, `{"status":401,"err":"Invalid token"}`, apierror.ErrUnauthorized},
		{"forbidden", 403, `{"status":403,"err":"Forbidden"}`, apierror.ErrForbidden},
		{"not found", 404, `{"status":404,"err":"Not found"}`, apierror.ErrNotFound},
		{"server error", 500, `oops`, apierror.ErrUpstream},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			defer server.Close()

			_, err := client.GetFile(context.Background(), "Key123456789", testToken)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want kind %v", err, tt.want.Kind)
			}
			var typed *apierror.Error
			if errors.As(err, &typed) && typed.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", typed.StatusCode, tt.status)
			}
		})
	}
}

func TestGetFile_UpstreamMessageCarriedThrough(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(404)
		w.Write([]byte(`{"status":404,"err":"File was deleted"}`))
	})
	defer server.Close()

	_, err := client.GetFile(context.Background(), "Key123456789", testToken)
	if err == nil || !strings.Contains(err.Error(), "File was deleted") {
		t.Errorf("upstream message lost: %v", err)
	}
}

func TestGetFileImages_EmptyNodeIDs(t *testing.T) {
	called := false
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	defer server.Close()

	_, err := client.GetFileImages(context.Background(), "Key123456789", nil, testToken)
	if !errors.Is(err, apierror.ErrInvalidInput) {
		t.Fatalf("err = %v, want InvalidInput", err)
	}
	if !strings.Contains(err.Error(), "node IDs are required") {
		t.Errorf("error %q should state node IDs are required", err.Error())
	}
	if called {
		t.Errorf("empty node list must not reach the network")
	}
}

func TestGetFileImages(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/images/Key123456789") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Write([]byte(`{"images":{"1:2":"https://cdn.example/render1.png"}}`))
	})
	defer server.Close()

	images, err := client.GetFileImages(context.Background(), "Key123456789", []string{"1:2"}, testToken)
	if err != nil {
		t.Fatalf("GetFileImages: %v", err)
	}
	if images["1:2"] != "https://cdn.example/render1.png" {
		t.Errorf("images = %v", images)
	}
}

func TestGetTeamComponents(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"meta":{"components":[{"key":"abc","name":"Button","node_id":"1:2"}]}}`))
	})
	defer server.Close()

	components, err := client.GetTeamComponents(context.Background(), "team-1", testToken)
	if err != nil {
		t.Fatalf("GetTeamComponents: %v", err)
	}
	if len(components) != 1 || components[0].Name != "Button" {
		t.Errorf("components = %+v", components)
	}
}

func TestRateLimitDenial(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name":"f"}`))
	}))
	defer server.Close()

	client := NewClient(ratelimit.New(1, time.Minute))
	client.BaseURL = server.URL

	if _, err := client.GetFile(context.Background(), "Key123456789", testToken); err != nil {
		t.Fatalf("first call should pass: %v", err)
	}
	_, err := client.GetFile(context.Background(), "Key123456789", testToken)
	if !errors.Is(err, apierror.ErrRateLimited) {
		t.Fatalf("err = %v, want RateLimited", err)
	}
}

func TestNetworkFailure(t *testing.T) {
	client := NewClient(ratelimit.New(10, time.Minute))
	client.BaseURL = "http://127.0.0.1:1" // nothing listens here

	_, err := client.GetFile(context.Background(), "Key123456789", testToken)
	if !errors.Is(err, apierror.ErrNetwork) {
		t.Fatalf("err = %v, want NetworkError", err)
	}
}
