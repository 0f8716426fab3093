// Package app exposes the governance layer over HTTP for the wizard UI.
// Handlers stay thin: they authenticate the session, pull the credential
// from the request or the credential store, and delegate to the typed
// clients. Secrets never appear in responses or logs unmasked.
package app

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"design-proxy/internal/config"
	"design-proxy/internal/costs"
	"design-proxy/internal/credentials"
	"design-proxy/internal/figma"
	"design-proxy/internal/llm"
	"design-proxy/internal/session"
	"design-proxy/pkg/apierror"
	"design-proxy/pkg/figmaurl"
	"design-proxy/pkg/models"
	"design-proxy/pkg/utils"
)

// Credential names the wizard flow stores tokens under.
const (
	FigmaCredential  = "figma_token"
	OpenAICredential = "openai_token"
	GitHubCredential = "github_token"
)

var credentialProviders = map[string]models.LanguageModelProvider{
	FigmaCredential:  models.ProviderFigma,
	OpenAICredential: models.ProviderOpenAI,
	GitHubCredential: models.ProviderGitHub,
}

// App wires the HTTP surface to the typed clients.
type App struct {
	Router *mux.Router

	cfg         *config.Config
	figma       *figma.Client
	llm         *llm.Service
	credentials *credentials.Store
	governor    *costs.Governor
}

// NewApp assembles the router over the given components.
func NewApp(cfg *config.Config, figmaClient *figma.Client, llmService *llm.Service,
	credentialStore *credentials.Store, governor *costs.Governor) *App {
	a := &App{
		Router:      mux.NewRouter(),
		cfg:         cfg,
		figma:       figmaClient,
		llm:         llmService,
		credentials: credentialStore,
		governor:    governor,
	}
	a.initializeRoutes()
	return a
}

func (a *App) initializeRoutes() {
	a.Router.HandleFunc("/status", a.handleStatus).Methods(http.MethodGet)
	a.Router.HandleFunc("/session", a.handleCreateSession).Methods(http.MethodPost)

	a.Router.HandleFunc("/identifier/parse", a.withSession(a.handleParseIdentifier)).Methods(http.MethodGet)
	a.Router.HandleFunc("/figma/file", a.withSession(a.handleGetFile)).Methods(http.MethodGet)
	a.Router.HandleFunc("/figma/images", a.withSession(a.handleGetImages)).Methods(http.MethodPost)
	a.Router.HandleFunc("/figma/teams/{teamID}/components", a.withSession(a.handleTeamComponents)).Methods(http.MethodGet)
	a.Router.HandleFunc("/generate", a.withSession(a.handleGenerate)).Methods(http.MethodPost)

	a.Router.HandleFunc("/credentials", a.withSession(a.handleStoreCredential)).Methods(http.MethodPost)
	a.Router.HandleFunc("/credentials/{name}", a.withSession(a.handleDescribeCredential)).Methods(http.MethodGet)
	a.Router.HandleFunc("/credentials/{name}", a.withSession(a.handleRemoveCredential)).Methods(http.MethodDelete)

	a.Router.HandleFunc("/usage/report", a.withSession(a.handleUsageReport)).Methods(http.MethodGet)
	a.Router.HandleFunc("/usage/stats", a.withSession(a.handleUsageStats)).Methods(http.MethodGet)
	a.Router.HandleFunc("/usage/limits", a.withSession(a.handleUpdateLimits)).Methods(http.MethodPut)
}

// withSession validates the bearer session token before dispatching.
func (a *App) withSession(next func(http.ResponseWriter, *http.Request, *session.Session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			http.Error(w, "missing bearer session token", http.StatusUnauthorized)
			return
		}
		sess, err := session.ValidateToken(strings.TrimPrefix(auth, "Bearer "), a.cfg.SessionSecret)
		if err != nil {
			if errors.Is(err, session.ErrTokenExpired) {
				w.Header().Set("X-Session-Token-Expired", "true")
			}
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r, sess)
	}
}

func (a *App) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.UserID) == "" {
		writeError(w, apierror.New(apierror.KindInvalidInput, "user_id is required"))
		return
	}

	token, err := session.CreateToken(req.UserID, a.cfg.SessionSecret)
	if err != nil {
		log.Printf("session token creation failed: %v", err)
		http.Error(w, "failed to create session", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (a *App) handleParseIdentifier(w http.ResponseWriter, r *http.Request, _ *session.Session) {
	writeJSON(w, http.StatusOK, figmaurl.Parse(r.URL.Query().Get("url")))
}

func (a *App) handleGetFile(w http.ResponseWriter, r *http.Request, _ *session.Session) {
	token, err := a.credential(r, "X-Figma-Token", FigmaCredential)
	if err != nil {
		writeError(w, err)
		return
	}

	file, err := a.figma.GetFile(r.Context(), r.URL.Query().Get("url"), token)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, file)
}

func (a *App) handleGetImages(w http.ResponseWriter, r *http.Request, _ *session.Session) {
	var req struct {
		URL     string   `json:"url"`
		NodeIDs []string `json:"node_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierror.New(apierror.KindInvalidInput, "invalid request body"))
		return
	}

	token, err := a.credential(r, "X-Figma-Token", FigmaCredential)
	if err != nil {
		writeError(w, err)
		return
	}

	images, err := a.figma.GetFileImages(r.Context(), req.URL, req.NodeIDs, token)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"images": images})
}

func (a *App) handleTeamComponents(w http.ResponseWriter, r *http.Request, _ *session.Session) {
	token, err := a.credential(r, "X-Figma-Token", FigmaCredential)
	if err != nil {
		writeError(w, err)
		return
	}

	components, err := a.figma.GetTeamComponents(r.Context(), mux.Vars(r)["teamID"], token)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"components": components})
}

func (a *App) handleGenerate(w http.ResponseWriter, r *http.Request, _ *session.Session) {
	var req struct {
		Prompt      string  `json:"prompt"`
		Model       string  `json:"model,omitempty"`
		MaxTokens   int     `json:"max_tokens,omitempty"`
		Temperature float64 `json:"temperature,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierror.New(apierror.KindInvalidInput, "invalid request body"))
		return
	}

	token, err := a.credential(r, "X-OpenAI-Key", OpenAICredential)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := a.llm.GenerateText(r.Context(), token, req.Prompt, models.GenerationOptions{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *App) handleStoreCredential(w http.ResponseWriter, r *http.Request, _ *session.Session) {
	var req struct {
		Name   string `json:"name"`
		Secret string `json:"secret"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierror.New(apierror.KindInvalidInput, "invalid request body"))
		return
	}

	provider, ok := credentialProviders[req.Name]
	if !ok {
		writeError(w, apierror.Newf(apierror.KindInvalidInput, "unknown credential name %q", req.Name))
		return
	}
	// Malformed tokens never reach the persistence path.
	if !utils.ValidateProviderToken(provider, req.Secret) {
		writeError(w, apierror.Newf(apierror.KindInvalidInput, "token does not match the %s format", provider))
		return
	}

	if err := a.credentials.Store(req.Name, strings.TrimSpace(req.Secret)); err != nil {
		log.Printf("storing credential %q failed: %v", req.Name, err)
		http.Error(w, "failed to store credential", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": req.Name, "stored": true})
}

// handleDescribeCredential reports presence and a masked preview. The raw
// secret is deliberately never served back over HTTP.
func (a *App) handleDescribeCredential(w http.ResponseWriter, r *http.Request, _ *session.Session) {
	name := mux.Vars(r)["name"]
	secret, ok := a.credentials.Retrieve(name)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"name": name, "present": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    name,
		"present": true,
		"masked":  utils.MaskToken(secret),
	})
}

func (a *App) handleRemoveCredential(w http.ResponseWriter, r *http.Request, _ *session.Session) {
	name := mux.Vars(r)["name"]
	if err := a.credentials.Remove(name); err != nil {
		log.Printf("removing credential %q failed: %v", name, err)
		http.Error(w, "failed to remove credential", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "removed": true})
}

func (a *App) handleUsageReport(w http.ResponseWriter, r *http.Request, _ *session.Session) {
	writeJSON(w, http.StatusOK, a.governor.UsageReport())
}

func (a *App) handleUsageStats(w http.ResponseWriter, r *http.Request, _ *session.Session) {
	writeJSON(w, http.StatusOK, a.governor.UsageStats())
}

func (a *App) handleUpdateLimits(w http.ResponseWriter, r *http.Request, _ *session.Session) {
	var patch models.CostLimitsPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, apierror.New(apierror.KindInvalidInput, "invalid request body"))
		return
	}

	limits, err := a.governor.UpdateLimits(patch)
	if err != nil {
		log.Printf("updating cost limits failed: %v", err)
		http.Error(w, "failed to persist limits", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, limits)
}

// credential resolves the upstream token for a request: an explicit header
// wins, otherwise the stored credential is used. Neither path logs the
// secret.
func (a *App) credential(r *http.Request, header, storedName string) (string, error) {
	if token := strings.TrimSpace(r.Header.Get(header)); token != "" {
		return token, nil
	}
	if token, ok := a.credentials.Retrieve(storedName); ok {
		return token, nil
	}
	return "", apierror.Newf(apierror.KindInvalidInput,
		"no credential supplied: set the %s header or store %q first", header, storedName)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encoding response failed: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	var typed *apierror.Error
	if !errors.As(err, &typed) {
		log.Printf("unclassified error reached the HTTP surface: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, apierror.HTTPStatus(typed.Kind), map[string]any{"error": typed})
}
