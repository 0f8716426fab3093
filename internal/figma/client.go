// Package figma is the typed client for the Figma REST API. Every method
// runs the same pipeline: validate and parse caller input, consult the
// shared rate limiter, issue the request with a bounded timeout, and map
// failures to the typed error taxonomy. No method ever builds a request
// from an invalid identifier.
package figma

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"design-proxy/pkg/apierror"
	"design-proxy/pkg/figmaurl"
	"design-proxy/pkg/models"
	"design-proxy/pkg/ratelimit"
	"design-proxy/pkg/utils"
)

// DefaultBaseURL is the production Figma API endpoint.
const DefaultBaseURL = "https://api.figma.com/v1"

// Client issues authenticated Figma API calls. The credential is supplied
// per call by the caller; the client never holds a default token.
type Client struct {
	// BaseURL is overridable for tests.
	BaseURL    string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
}

// NewClient returns a client gated by the given rate limiter.
func NewClient(limiter *ratelimit.Limiter) *Client {
	return &Client{
		BaseURL:    DefaultBaseURL,
		httpClient: utils.NewHTTPClient(0),
		limiter:    limiter,
	}
}

// GetFile fetches a design file. reference may be any recognized URL shape
// or a bare file key.
func (c *Client) GetFile(ctx context.Context, reference, token string) (*models.DesignFile, error) {
	id, err := c.admit(reference, token)
	if err != nil {
		return nil, err
	}

	var file models.DesignFile
	if err := c.get(ctx, "/files/"+id.FileKey, token, &file); err != nil {
		return nil, err
	}
	return &file, nil
}

// imagesResponse is the upstream render payload: node id to rendered URL.
type imagesResponse struct {
	Err    string            `json:"err"`
	Images map[string]string `json:"images"`
}

// GetFileImages renders the given nodes of a file to image URLs. An empty
// node list fails before any network call.
func (c *Client) GetFileImages(ctx context.Context, reference string, nodeIDs []string, token string) (map[string]string, error) {
	if len(nodeIDs) == 0 {
		return nil, apierror.New(apierror.KindInvalidInput, "node IDs are required to render images")
	}

	id, err := c.admit(reference, token)
	if err != nil {
		return nil, err
	}

	path := fmt.Sprintf("/images/%s?ids=%s&format=png",
		id.FileKey, url.QueryEscape(strings.Join(nodeIDs, ",")))

	var rendered imagesResponse
	if err := c.get(ctx, path, token, &rendered); err != nil {
		return nil, err
	}
	if rendered.Err != "" {
		return nil, apierror.New(apierror.KindUpstream, rendered.Err)
	}
	return rendered.Images, nil
}

type teamComponentsResponse struct {
	Meta struct {
		Components []struct {
			Key          string `json:"key"`
			Name         string `json:"name"`
			Description  string `json:"description"`
			NodeID       string `json:"node_id"`
			FileKey      string `json:"file_key"`
			ThumbnailURL string `json:"thumbnail_url"`
		} `json:"components"`
	} `json:"meta"`
}

// GetTeamComponents lists the published components of a team library.
func (c *Client) GetTeamComponents(ctx context.Context, teamID, token string) ([]models.TeamComponent, error) {
	if strings.TrimSpace(teamID) == "" {
		return nil, apierror.New(apierror.KindInvalidInput, "team ID is required")
	}
	if !utils.ValidateProviderToken(models.ProviderFigma, token) {
		return nil, apierror.New(apierror.KindInvalidInput, "malformed Figma access token")
	}
	if !c.limiter.Allow(utils.RateIdentity(token)) {
		return nil, apierror.New(apierror.KindRateLimited, "Figma API rate limit reached, try again shortly")
	}

	var payload teamComponentsResponse
	if err := c.get(ctx, "/teams/"+url.PathEscape(teamID)+"/components", token, &payload); err != nil {
		return nil, err
	}

	components := make([]models.TeamComponent, 0, len(payload.Meta.Components))
	for _, raw := range payload.Meta.Components {
		components = append(components, models.TeamComponent{
			Key:          raw.Key,
			Name:         raw.Name,
			Description:  raw.Description,
			NodeID:       raw.NodeID,
			FileKey:      raw.FileKey,
			ThumbnailURL: raw.ThumbnailURL,
		})
	}
	return components, nil
}

// admit runs the shared pre-network pipeline for file-scoped calls:
// identifier parsing, token-format validation, then limiter admission.
func (c *Client) admit(reference, token string) (models.ResourceIdentifier, error) {
	id := figmaurl.Parse(reference)
	if !id.IsValid {
		return id, apierror.Newf(apierror.KindInvalidInput,
			"not a recognized Figma file reference: %q", id.OriginalURL)
	}
	if !utils.ValidateProviderToken(models.ProviderFigma, token) {
		return id, apierror.New(apierror.KindInvalidInput, "malformed Figma access token")
	}
	if !c.limiter.Allow(utils.RateIdentity(token)) {
		return id, apierror.New(apierror.KindRateLimited, "Figma API rate limit reached, try again shortly")
	}
	return id, nil
}

// get issues an authenticated GET and decodes a 2xx JSON body into out.
func (c *Client) get(ctx context.Context, path, token string, out any) error {
	headers := map[string]string{"X-Figma-Token": token}
	resp, err := utils.CallAPIWithBody(ctx, c.httpClient, http.MethodGet, c.BaseURL+path, headers, nil)
	if err != nil {
		return apierror.Newf(apierror.KindNetwork, "Figma API unreachable: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return apierror.Newf(apierror.KindNetwork, "reading Figma response: %v", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apierror.FromResponse(resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return apierror.Newf(apierror.KindUpstream, "malformed Figma response: %v", err)
	}
	return nil
}
