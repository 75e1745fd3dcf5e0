package ytdlp_test

import (
	"testing"

	"github.com/ankyy/musicbox/internal/ytdlp"
	"github.com/stretchr/testify/assert"
)

func Test_SanitizeTitle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		summary  string
		title    string
		expected string
	}{
		{"plain title untouched", "My Song", "My Song"},
		{"punctuation stripped", "My Song! (Official Video) [HD]", "My Song Official Video HD"},
		{"hyphens and underscores kept", "lo-fi_mix - vol 2", "lo-fi_mix - vol 2"},
		{"surrounding whitespace trimmed", "  spaced out  ", "spaced out"},
		{"all-invalid title yields fallback", "???///***", ytdlp.SanitizedFallback},
		{"empty title yields fallback", "", ytdlp.SanitizedFallback},
	}

	for _, test := range tests {
		assert.Equal(t, test.expected, ytdlp.SanitizeTitle(test.title), test.summary)
	}
}

func Test_SanitizeTitle_Idempotent(t *testing.T) {
	t.Parallel()

	for _, title := range []string{"My Song! (feat. X)", "plain", "???", "  a  b  "} {
		once := ytdlp.SanitizeTitle(title)
		assert.Equal(t, once, ytdlp.SanitizeTitle(once), "sanitizing %q twice must be a no-op", title)
	}
}
