package client

import (
	"fmt"
	"strings"
	"unicode"
)

const outputExt = ".ts"

// GenerateFilename derives "<show>.<SxxEyy>.<title>.<kbps>kbps.ts" from
// the episode. Whitespace becomes dots and characters outside letters,
// digits and ' ( ) . _ - are dropped.
func GenerateFilename(episode Episode, bitrate int) string {
	title := episode.Title
	if sae := strings.TrimSpace(episode.SeasonAndEpisode); sae != "" {
		title = sae + " " + title
	}
	title = fmt.Sprintf("%s %dkbps", title, bitrate/1000)

	name := title
	if show := strings.TrimSpace(episode.ShowTitle); show != "" {
		name = show + "." + title
	}
	name = sanitizeFilename(name)
	if name == "" {
		name = fmt.Sprintf("media-%d", episode.MediaID)
	}
	return name + outputExt
}

func sanitizeFilename(name string) string {
	var b strings.Builder
	lastDot := false
	for _, r := range name {
		switch {
		case unicode.IsSpace(r) || r == '.':
			if !lastDot && b.Len() > 0 {
				b.WriteRune('.')
				lastDot = true
			}
		case unicode.IsLetter(r), unicode.IsDigit(r), strings.ContainsRune("'()_-", r):
			b.WriteRune(r)
			lastDot = false
		}
	}
	return strings.TrimRight(b.String(), ".")
}
