package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"design-proxy/pkg/models"
)

// tokenFormat is the fixed-prefix plus minimum-length rule a provider's
// tokens must satisfy. Validation is purely structural; it never calls the
// provider.
type tokenFormat struct {
	prefixes  []string
	minLength int
}

var tokenFormats = map[models.LanguageModelProvider]tokenFormat{
	models.ProviderFigma:  {prefixes: []string{"figd_"}, minLength: 40},
	models.ProviderOpenAI: {prefixes: []string{"sk-"}, minLength: 20},
	models.ProviderGitHub: {prefixes: []string{"ghp_", "github_pat_"}, minLength: 40},
}

// ValidateProviderToken reports whether raw looks like a well-formed token
// for the given provider. It is pure and side-effect-free.
func ValidateProviderToken(provider models.LanguageModelProvider, raw string) bool {
	format, ok := tokenFormats[provider]
	if !ok {
		return false
	}
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) < format.minLength {
		return false
	}
	for _, prefix := range format.prefixes {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}

// MaskToken renders a token safe for logs, keeping only the first and last
// four characters. Short values are masked entirely.
func MaskToken(token string) string {
	if len(token) <= 8 {
		return strings.Repeat("*", len(token))
	}
	return token[:4] + strings.Repeat("*", len(token)-8) + token[len(token)-4:]
}

// RateIdentity derives a stable rate-limit identity from a credential
// without retaining the credential itself in limiter state.
func RateIdentity(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:6])
}
