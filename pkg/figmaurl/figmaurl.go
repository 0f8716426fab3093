// Package figmaurl normalizes the URL shapes under which users hand over a
// Figma file reference. Several structural variants are recognized; each is
// matched in a fixed priority order and the first match wins. There is no
// fuzzy fallback for almost-matching URLs: anything unrecognized parses as
// invalid with the original input preserved for error display.
package figmaurl

import (
	"net/url"
	"regexp"
	"strings"

	"design-proxy/pkg/models"
)

// BaseURL is the canonical host used when building share URLs.
const BaseURL = "https://www.figma.com"

// bareKeyPattern accepts a key-like token handed over without any URL
// around it. Figma file keys are alphanumeric and comfortably longer than
// eight characters.
var bareKeyPattern = regexp.MustCompile(`^[A-Za-z0-9]{8,}$`)

// matchers are tried in order; the first structural match wins.
// Capture group 1 is the file key, group 2 the optional display name
// path segment.
var matchers = []*regexp.Regexp{
	regexp.MustCompile(`^https?://(?:www\.)?figma\.com/file/([A-Za-z0-9]+)(?:/([^/?#]+))?`),
	regexp.MustCompile(`^https?://(?:www\.)?figma\.com/proto/([A-Za-z0-9]+)(?:/([^/?#]+))?`),
	regexp.MustCompile(`^https?://(?:www\.)?figma\.com/design/([A-Za-z0-9]+)(?:/([^/?#]+))?`),
}

// Parse normalizes raw into a ResourceIdentifier. It accepts any string and
// never fails: unrecognized input yields IsValid=false with an empty
// FileKey. A bare key-like token is treated as already canonical.
func Parse(raw string) models.ResourceIdentifier {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return models.ResourceIdentifier{OriginalURL: raw}
	}

	if bareKeyPattern.MatchString(trimmed) {
		return models.ResourceIdentifier{
			FileKey:     trimmed,
			IsValid:     true,
			OriginalURL: raw,
		}
	}

	for _, re := range matchers {
		groups := re.FindStringSubmatch(trimmed)
		if groups == nil {
			continue
		}
		id := models.ResourceIdentifier{
			FileKey:     groups[1],
			IsValid:     true,
			OriginalURL: raw,
		}
		if groups[2] != "" {
			id.FileName = decodeFileName(groups[2])
		}
		if parsed, err := url.Parse(trimmed); err == nil {
			// url.Query already applies percent-decoding to the node id.
			if node := parsed.Query().Get("node-id"); node != "" {
				id.NodeID = node
			}
		}
		return id
	}

	return models.ResourceIdentifier{OriginalURL: raw}
}

// ExtractFileKey returns the canonical file key for raw, or ok=false when
// raw does not parse as a valid reference.
func ExtractFileKey(raw string) (string, bool) {
	id := Parse(raw)
	return id.FileKey, id.IsValid
}

// IsValidFigmaURL reports whether raw parses as a valid file reference.
func IsValidFigmaURL(raw string) bool {
	return Parse(raw).IsValid
}

// GenerateFileURL builds the canonical share URL for a file key. The
// display name is optional; spaces are re-encoded as hyphens the way the
// upstream share dialog does it, so Parse(GenerateFileURL(k, n)) yields k
// and n back.
func GenerateFileURL(fileKey, fileName string) string {
	u := BaseURL + "/file/" + fileKey
	if fileName != "" {
		u += "/" + encodeFileName(fileName)
	}
	return u
}

// GenerateNodeURL builds a share URL targeting a single node inside a file.
func GenerateNodeURL(fileKey, nodeID string) string {
	return GenerateFileURL(fileKey, "") + "?node-id=" + url.QueryEscape(nodeID)
}

func decodeFileName(segment string) string {
	unescaped, err := url.PathUnescape(segment)
	if err != nil {
		unescaped = segment
	}
	return strings.ReplaceAll(unescaped, "-", " ")
}

func encodeFileName(name string) string {
	return url.PathEscape(strings.ReplaceAll(name, " ", "-"))
}
