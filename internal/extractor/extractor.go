// Package extractor drives the external media extractor binary to turn an
// upstream track id into an audio file on disk.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/mpetrov/harmonia/internal/filesystem"
	"github.com/mpetrov/harmonia/internal/logger"
)

// ErrRateLimited marks an extraction refused by the upstream for quota or
// bot-detection reasons. Callers back off longer and may reset the session.
var ErrRateLimited = errors.New("extractor rate limited")

// Request carries the track metadata known from the catalog ahead of the
// extraction, so callers never have to trust whatever the upstream page
// reports about the track.
type Request struct {
	TrackID     string
	DestDir     string
	Title       string
	Artist      string
	Album       string
	Year        string
	TrackNumber int
	// CoverPath points at an already-downloaded cover image. When set and
	// readable, the extractor skips fetching the upstream thumbnail.
	CoverPath string
}

// Result is the produced audio file plus the cover that goes with it: the
// request's CoverPath when one was usable, otherwise a thumbnail fetched
// alongside the audio. CoverPath is empty when neither exists.
type Result struct {
	AudioPath string
	CoverPath string
}

// Extractor downloads a single track into Request.DestDir.
type Extractor interface {
	Download(ctx context.Context, req Request) (*Result, error)
	ResetSession() error
}

// rate-limit markers seen in extractor stderr output
var rateLimitMarkers = []string{
	"HTTP Error 429",
	"Sign in to confirm",
	"rate-limited",
	"rate limit",
}

// YtdlpExtractor shells out to yt-dlp.
type YtdlpExtractor struct {
	binPath     string
	cookiesFile string
	audioFormat string
	log         *logger.Logger
}

func NewYtdlpExtractor(binPath, cookiesFile, audioFormat string, log *logger.Logger) *YtdlpExtractor {
	if audioFormat == "" {
		audioFormat = "mp3"
	}
	return &YtdlpExtractor{
		binPath:     binPath,
		cookiesFile: cookiesFile,
		audioFormat: audioFormat,
		log:         log.WithComponent("extractor"),
	}
}

// Download runs the extractor and returns the downloaded audio plus cover.
// Output files are named after the track id so concurrent downloads into the
// same staging directory cannot collide. Without a usable CoverPath on the
// request, the upstream thumbnail is fetched alongside the audio.
func (e *YtdlpExtractor) Download(ctx context.Context, req Request) (*Result, error) {
	if err := filesystem.EnsureDir(req.DestDir); err != nil {
		return nil, fmt.Errorf("failed to create staging dir: %w", err)
	}

	haveCover := req.CoverPath != "" && filesystem.Exists(req.CoverPath)

	outTemplate := filepath.Join(req.DestDir, "%(id)s.%(ext)s")
	args := []string{
		"-f", "bestaudio",
		"-x", "--audio-format", e.audioFormat,
		"--no-playlist",
		"--no-progress",
		"-o", outTemplate,
	}
	if !haveCover {
		args = append(args, "--write-thumbnail", "--convert-thumbnails", "jpg")
	}
	if e.cookiesFile != "" && filesystem.Exists(e.cookiesFile) {
		args = append(args, "--cookies", e.cookiesFile)
	}
	args = append(args, "https://music.youtube.com/watch?v="+req.TrackID)

	cmd := exec.CommandContext(ctx, e.binPath, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classify(string(out), err)
	}

	audio, err := e.findOutput(req.TrackID, req.DestDir)
	if err != nil {
		return nil, err
	}

	res := &Result{AudioPath: audio}
	if haveCover {
		res.CoverPath = req.CoverPath
	} else if thumb := filepath.Join(req.DestDir, req.TrackID+".jpg"); filesystem.Exists(thumb) {
		res.CoverPath = thumb
	}

	if info, statErr := os.Stat(audio); statErr == nil {
		e.log.Info("downloaded track",
			"track_id", req.TrackID,
			"title", req.Title,
			"artist", req.Artist,
			"file", filepath.Base(audio),
			"size", humanize.Bytes(uint64(info.Size())))
	}
	return res, nil
}

// findOutput locates the produced audio file; the extension depends on what
// the extractor muxed.
func (e *YtdlpExtractor) findOutput(trackID, destDir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(destDir, trackID+".*"))
	if err != nil {
		return "", err
	}
	for _, m := range matches {
		// Skip leftover partial downloads and the fetched thumbnail.
		switch filepath.Ext(m) {
		case ".part", ".ytdl", ".jpg", ".webp", ".png":
			continue
		}
		return m, nil
	}
	return "", fmt.Errorf("extractor produced no output for %s", trackID)
}

// ResetSession truncates the cookies file. Stale session cookies are a known
// cause of persistent bot-detection blocks; starting clean often clears them.
func (e *YtdlpExtractor) ResetSession() error {
	if e.cookiesFile == "" || !filesystem.Exists(e.cookiesFile) {
		return nil
	}
	e.log.Warn("resetting extractor session", "cookies_file", e.cookiesFile)
	return os.Truncate(e.cookiesFile, 0)
}

// classify turns extractor output into a typed error.
func classify(output string, err error) error {
	if IsRateLimitedOutput(output) {
		return fmt.Errorf("%w: %s", ErrRateLimited, firstLine(output))
	}
	return fmt.Errorf("extractor failed: %s: %w", firstLine(output), err)
}

// IsRateLimitedOutput reports whether extractor output carries a known
// rate-limit or bot-detection marker.
func IsRateLimitedOutput(output string) bool {
	lower := strings.ToLower(output)
	for _, marker := range rateLimitMarkers {
		if strings.Contains(lower, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}

func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx != -1 {
		// Error details usually sit on the last line of yt-dlp output.
		lines := strings.Split(s, "\n")
		for i := len(lines) - 1; i >= 0; i-- {
			if line := strings.TrimSpace(lines[i]); line != "" {
				return line
			}
		}
	}
	return s
}

var _ Extractor = (*YtdlpExtractor)(nil)
