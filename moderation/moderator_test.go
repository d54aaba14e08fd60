package moderation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestModerator(t *testing.T, words ...string) *Moderator {
	t.Helper()
	moderator, err := NewModerator(words, '*')
	require.NoError(t, err)
	return moderator
}

func TestModerator_Sanitize(t *testing.T) {
	t.Run("should censor a blacklisted word", func(t *testing.T) {
		req := require.New(t)
		moderator := newTestModerator(t, "darn")

		sanitized, report := moderator.Sanitize("well darn it")

		req.Equal("well **** it", sanitized)
		req.Equal([]string{"darn"}, report.Words)
	})

	t.Run("should leave clean content untouched", func(t *testing.T) {
		req := require.New(t)
		moderator := newTestModerator(t, "darn")

		sanitized, report := moderator.Sanitize("a perfectly fine sentence")

		req.Equal("a perfectly fine sentence", sanitized)
		req.Empty(report.Words)
	})

	t.Run("should catch leet speak variants", func(t *testing.T) {
		req := require.New(t)
		moderator := newTestModerator(t, "darn")

		sanitized, report := moderator.Sanitize("d4rn")

		req.Equal("****", sanitized)
		req.Equal([]string{"darn"}, report.Words)
	})

	t.Run("should be case insensitive", func(t *testing.T) {
		req := require.New(t)
		moderator := newTestModerator(t, "darn")

		sanitized, _ := moderator.Sanitize("DARN")

		req.Equal("****", sanitized)
	})

	t.Run("should censor several words in one message", func(t *testing.T) {
		req := require.New(t)
		moderator := newTestModerator(t, "darn", "heck")

		sanitized, report := moderator.Sanitize("darn and heck")

		req.Equal("**** and ****", sanitized)
		req.Len(report.Words, 2)
	})

	t.Run("should report a detected language on a match", func(t *testing.T) {
		req := require.New(t)
		moderator := newTestModerator(t, "darn")

		_, report := moderator.Sanitize("darn this whole situation is terrible today")

		req.NotEmpty(report.Lang)
	})

	t.Run("should handle empty input", func(t *testing.T) {
		req := require.New(t)
		moderator := newTestModerator(t, "darn")

		sanitized, report := moderator.Sanitize("")

		req.Equal("", sanitized)
		req.Empty(report.Words)
	})
}

func TestLoadWords(t *testing.T) {
	req := require.New(t)

	data, err := LoadWords()

	req.NoError(err)
	req.NotEmpty(data.Words)
	req.Contains(data.Languages, "en")
	req.Contains(data.Languages, "fr")
}
