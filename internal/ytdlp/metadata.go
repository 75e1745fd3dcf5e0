package ytdlp

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// DefaultTitle and DefaultAuthor fill fields that the upstream provider
	// did not populate; absent metadata is never an error.
	DefaultTitle  = "Untitled"
	DefaultAuthor = "Unknown"

	// DefaultPlatform labels media whose source extractor was not reported.
	DefaultPlatform = "Unknown"

	// SanitizedFallback is the output stem used when a title contains no
	// filesystem-safe characters at all.
	SanitizedFallback = "downloaded_media"
)

type (
	// rawMetadata mirrors the subset of yt-dlp's --dump-json output that we
	// consume. Different extractors populate different subsets of these
	// fields; normalizeMetadata is responsible for mapping that duck-typed
	// shape in to one canonical struct with explicit defaults.
	rawMetadata struct {
		Title          string  `json:"title"`
		Uploader       string  `json:"uploader"`
		Channel        string  `json:"channel"`
		Artist         string  `json:"artist"`
		Thumbnail      string  `json:"thumbnail"`
		WebpageURL     string  `json:"webpage_url"`
		ExtractorKey   string  `json:"extractor_key"`
		Ext            string  `json:"ext"`
		FilesizeApprox float64 `json:"filesize_approx"`
		Filesize       float64 `json:"filesize"`
		Duration       float64 `json:"duration"`
	}

	// MediaMetadata is the canonical, fully-defaulted metadata shape handed
	// to the pipeline. Immutable once produced.
	MediaMetadata struct {
		Title           string
		Author          string
		Thumbnail       string
		MediaRef        string
		Platform        string
		Extension       string
		DurationSeconds float64
		SizeEstimateMB  float64
	}

	rawPlaylist struct {
		Title   string             `json:"title"`
		Entries []rawPlaylistEntry `json:"entries"`
	}

	rawPlaylistEntry struct {
		ID    string `json:"id"`
		Title string `json:"title"`
		URL   string `json:"url"`
	}

	Playlist struct {
		Title   string
		Entries []PlaylistEntry
	}

	PlaylistEntry struct {
		ID    string `json:"id"`
		Title string `json:"title"`
		URL   string `json:"url"`
	}
)

// normalizeMetadata maps provider-specific field presence in to the
// canonical MediaMetadata shape. Absent fields receive defined defaults
// rather than propagating empty/zero values downstream.
func normalizeMetadata(raw *rawMetadata, requestURL string) MediaMetadata {
	meta := MediaMetadata{
		Title:           strings.TrimSpace(raw.Title),
		Thumbnail:       raw.Thumbnail,
		MediaRef:        raw.WebpageURL,
		Platform:        raw.ExtractorKey,
		Extension:       raw.Ext,
		DurationSeconds: raw.Duration,
	}

	if meta.Title == "" {
		meta.Title = DefaultTitle
	}

	// Author precedence mirrors field availability across extractors:
	// music platforms report artist, most others uploader or channel.
	switch {
	case raw.Artist != "":
		meta.Author = raw.Artist
	case raw.Uploader != "":
		meta.Author = raw.Uploader
	case raw.Channel != "":
		meta.Author = raw.Channel
	default:
		meta.Author = DefaultAuthor
	}

	if meta.MediaRef == "" {
		meta.MediaRef = requestURL
	}
	if meta.Platform == "" {
		meta.Platform = DefaultPlatform
	}

	size := raw.FilesizeApprox
	if size == 0 {
		size = raw.Filesize
	}
	meta.SizeEstimateMB = size / (1024 * 1024)

	return meta
}

func normalizePlaylist(raw *rawPlaylist) Playlist {
	playlist := Playlist{Title: raw.Title}
	if playlist.Title == "" {
		playlist.Title = DefaultTitle
	}

	for _, entry := range raw.Entries {
		url := entry.URL
		if url == "" {
			url = fmt.Sprintf("https://www.youtube.com/watch?v=%s", entry.ID)
		}

		title := entry.Title
		if title == "" {
			title = DefaultTitle
		}

		playlist.Entries = append(playlist.Entries, PlaylistEntry{ID: entry.ID, Title: title, URL: url})
	}

	return playlist
}

var unsafeTitleChars = regexp.MustCompile(`[^\w\s-]`)

// SanitizeTitle derives a filesystem-safe stem from a media title by
// stripping every character outside the allow-list (word characters,
// whitespace, hyphen). A title left empty by the stripping yields
// SanitizedFallback. The function is idempotent.
func SanitizeTitle(title string) string {
	clean := strings.TrimSpace(unsafeTitleChars.ReplaceAllString(title, ""))
	if clean == "" {
		return SanitizedFallback
	}

	return clean
}
