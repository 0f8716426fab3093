package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"design-proxy/internal/config"
	"design-proxy/internal/costs"
	"design-proxy/internal/credentials"
	"design-proxy/internal/figma"
	"design-proxy/internal/llm"
	"design-proxy/internal/storage"
	"design-proxy/pkg/ratelimit"
)

const testSecret = "app-test-secret"

type fixture struct {
	app      *App
	governor *costs.Governor
	store    *credentials.Store
	upstream *httptest.Server
}

// newFixture stands up the full app over one fake upstream serving both
// Figma and OpenAI shapes.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/files/"):
			w.Write([]byte(`{"name":"Wizard File","version":"7"}`))
		case r.URL.Path == "/chat/completions":
			w.Write([]byte(`{"model":"gpt-4","choices":[{"message":{"content":"out"}}],` +
				`"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(upstream.Close)

	backend := storage.NewMemoryStore()
	governor, err := costs.NewGovernor(backend, costs.Pricing{PromptPer1K: 0.03, CompletionPer1K: 0.06})
	if err != nil {
		t.Fatalf("NewGovernor: %v", err)
	}
	credStore := credentials.NewStore(backend)

	figmaClient := figma.NewClient(ratelimit.New(100, time.Minute))
	figmaClient.BaseURL = upstream.URL
	llmService := llm.NewService(ratelimit.New(100, time.Minute), governor)
	llmService.BaseURL = upstream.URL

	cfg := &config.Config{SessionSecret: testSecret}
	return &fixture{
		app:      NewApp(cfg, figmaClient, llmService, credStore, governor),
		governor: governor,
		store:    credStore,
		upstream: upstream,
	}
}

func (f *fixture) request(t *testing.T, method, path, token, body string, extra map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range extra {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.app.Router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) sessionToken(t *testing.T) string {
	t.Helper()
	rec := f.request(t, http.MethodPost, "/session", "", `{"user_id":"wizard-user"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("session: status %d body %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	json.Unmarshal(rec.Body.Bytes(), &resp)
	return resp["token"]
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	rec := f.request(t, http.MethodGet, "/status", "", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestSessionRequired(t *testing.T) {
	f := newFixture(t)
	rec := f.request(t, http.MethodGet, "/usage/report", "", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 without a session", rec.Code)
	}

	rec = f.request(t, http.MethodGet, "/usage/report", "garbage-token", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 for an invalid session", rec.Code)
	}
}

func TestParseIdentifier(t *testing.T) {
	f := newFixture(t)
	token := f.sessionToken(t)

	rec := f.request(t, http.MethodGet,
		"/identifier/parse?url=https%3A%2F%2Fwww.figma.com%2Ffile%2FKey123456789%2FMy-Design",
		token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var id struct {
		FileKey string `json:"file_key"`
		IsValid bool   `json:"is_valid"`
	}
	json.Unmarshal(rec.Body.Bytes(), &id)
	if !id.IsValid || id.FileKey != "Key123456789" {
		t.Errorf("parsed = %+v", id)
	}
}

func TestCredentialFlow(t *testing.T) {
	f := newFixture(t)
	token := f.sessionToken(t)
	figmaToken := "figd_" + strings.Repeat("f", 40)

	t.Run("malformed token rejected before persistence", func(t *testing.T) {
		rec := f.request(t, http.MethodPost, "/credentials", token,
			`{"name":"figma_token","secret":"nope"}`, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
		if _, ok := f.store.Retrieve(FigmaCredential); ok {
			t.Errorf("rejected token reached the store")
		}
	})

	t.Run("valid token stored and described masked", func(t *testing.T) {
		rec := f.request(t, http.MethodPost, "/credentials", token,
			`{"name":"figma_token","secret":"`+figmaToken+`"}`, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
		}

		rec = f.request(t, http.MethodGet, "/credentials/figma_token", token, "", nil)
		body := rec.Body.String()
		if strings.Contains(body, figmaToken) {
			t.Errorf("describe response leaks the raw secret: %s", body)
		}
		if !strings.Contains(body, `"present":true`) {
			t.Errorf("describe = %s", body)
		}
	})

	t.Run("stored credential backs figma calls", func(t *testing.T) {
		rec := f.request(t, http.MethodGet, "/figma/file?url=Key123456789", token, "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
		}
		if !strings.Contains(rec.Body.String(), "Wizard File") {
			t.Errorf("body = %s", rec.Body.String())
		}
	})

	t.Run("remove", func(t *testing.T) {
		rec := f.request(t, http.MethodDelete, "/credentials/figma_token", token, "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		rec = f.request(t, http.MethodGet, "/figma/file?url=Key123456789", token, "", nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400 with no credential", rec.Code)
		}
	})
}

func TestGenerateAndUsageReport(t *testing.T) {
	f := newFixture(t)
	token := f.sessionToken(t)
	openaiKey := "sk-" + strings.Repeat("o", 30)

	rec := f.request(t, http.MethodPost, "/generate", token,
		`{"prompt":"make a card component"}`, map[string]string{"X-OpenAI-Key": openaiKey})
	if rec.Code != http.StatusOK {
		t.Fatalf("generate status = %d body %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"content":"out"`) {
		t.Errorf("generate body = %s", rec.Body.String())
	}

	rec = f.request(t, http.MethodGet, "/usage/report", token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("report status = %d", rec.Code)
	}
	var report struct {
		Requests int `json:"requests"`
		Lifetime struct {
			Tokens int `json:"tokens"`
		} `json:"lifetime"`
	}
	json.Unmarshal(rec.Body.Bytes(), &report)
	if report.Requests != 1 || report.Lifetime.Tokens != 15 {
		t.Errorf("report = %+v", report)
	}
}

func TestGenerate_CostLimitSurfaced(t *testing.T) {
	f := newFixture(t)
	token := f.sessionToken(t)
	openaiKey := "sk-" + strings.Repeat("o", 30)

	rec := f.request(t, http.MethodPut, "/usage/limits", token, `{"daily":0}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("limits status = %d", rec.Code)
	}

	rec = f.request(t, http.MethodPost, "/generate", token,
		`{"prompt":"anything"}`, map[string]string{"X-OpenAI-Key": openaiKey})
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402 at the ceiling; body %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "Daily limit") {
		t.Errorf("body %s should carry the ceiling reason", rec.Body.String())
	}
}

func TestImages_EmptyNodeList(t *testing.T) {
	f := newFixture(t)
	token := f.sessionToken(t)
	figmaToken := "figd_" + strings.Repeat("f", 40)

	rec := f.request(t, http.MethodPost, "/figma/images", token,
		`{"url":"Key123456789","node_ids":[]}`, map[string]string{"X-Figma-Token": figmaToken})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "node IDs are required") {
		t.Errorf("body = %s", rec.Body.String())
	}
}
