package tasks

import "strings"

// titlesMatch decides whether an album-page track and an audio-playlist track
// are the same recording. Upstream titles differ in small ways between the
// two surfaces ("Song" vs "Song (Official Audio)"), so besides equality we
// accept containment in either direction and equality after dropping a
// trailing parenthesized qualifier.
func titlesMatch(a, b string) bool {
	a = normalizeTitle(a)
	b = normalizeTitle(b)
	if a == "" || b == "" {
		return false
	}

	if a == b {
		return true
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}
	return stripQualifier(a) == stripQualifier(b)
}

func normalizeTitle(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// stripQualifier drops everything from the first opening parenthesis on.
func stripQualifier(s string) string {
	if idx := strings.IndexByte(s, '('); idx != -1 {
		return strings.TrimSpace(s[:idx])
	}
	return s
}

// preferAudioID swaps an album-page video id for the audio-playlist id at the
// same position when the titles agree. Audio ids extract cleaner streams; a
// disagreeing title means the playlist is offset and the video id stays.
func preferAudioID(albumTitle, videoID string, playlistTitle, audioID string) string {
	if audioID == "" {
		return videoID
	}
	if titlesMatch(albumTitle, playlistTitle) {
		return audioID
	}
	return videoID
}
