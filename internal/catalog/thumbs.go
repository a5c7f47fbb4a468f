package catalog

import "github.com/mpetrov/harmonia/internal/domain"

// PickBestThumbnailURL returns the URL of the widest thumbnail. Entries
// without dimensions lose to any entry that has them; when nothing has a
// width the last URL wins, since upstreams order thumbnails small to large.
func PickBestThumbnailURL(thumbs domain.Thumbnails) string {
	if len(thumbs) == 0 {
		return ""
	}

	best := ""
	bestWidth := 0
	for _, t := range thumbs {
		if t.URL == "" {
			continue
		}
		if t.Width > bestWidth {
			best = t.URL
			bestWidth = t.Width
		}
	}
	if best != "" {
		return best
	}

	for i := len(thumbs) - 1; i >= 0; i-- {
		if thumbs[i].URL != "" {
			return thumbs[i].URL
		}
	}
	return ""
}
