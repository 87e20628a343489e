package config

import (
	"os"
	"strings"
)

// Environment variables holding provider credentials, in lookup order.
var (
	GeminiKeyEnv     = []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}
	OpenAIKeyEnv     = []string{"OPENAI_API_KEY"}
	ElevenLabsKeyEnv = []string{"ELEVENLABS_API_KEY"}
)

// FirstEnv returns the first non-blank value among names.
func FirstEnv(names ...string) string {
	for _, name := range names {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v
		}
	}
	return ""
}

// KeyFunc returns a lookup that re-reads names on every call, so a key
// exported after startup is picked up by the next request.
func KeyFunc(names ...string) func() string {
	return func() string {
		return FirstEnv(names...)
	}
}

// EnvOr returns the value of name, or def when it is unset or blank.
func EnvOr(name, def string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return def
}
