package server

import "strings"

const languageMetadataKey = "nupi.lang.bcp47"

// resolveLanguage picks the recognition language for a request. An explicit
// request language wins, then the client metadata hint, then the adapter
// default.
func resolveLanguage(configured, requested string, metadata map[string]string) string {
	if lang := strings.TrimSpace(requested); lang != "" {
		return lang
	}
	if lang := strings.TrimSpace(metadata[languageMetadataKey]); lang != "" {
		return lang
	}
	return configured
}
