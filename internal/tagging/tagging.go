// Package tagging embeds metadata and cover art into downloaded audio files.
package tagging

import (
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bogem/id3v2/v2"
	"github.com/go-flac/flacpicture"
	"github.com/go-flac/flacvorbis"
	goflac "github.com/go-flac/go-flac"
)

// Metadata is the tag set written to every downloaded track.
type Metadata struct {
	Title       string
	Artists     []string
	Album       string
	AlbumArtist string
	Year        string
	TrackNumber int
	TotalTracks int
	Lyrics      string
}

// Embed writes tags into the file at path, dispatching on extension. Cover
// art is optional.
func Embed(path string, meta *Metadata, coverArt []byte) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".mp3":
		return embedMP3(path, meta, coverArt)
	case ".flac":
		return embedFLAC(path, meta, coverArt)
	case ".m4a", ".mp4":
		return embedViaFFmpeg(path, meta)
	default:
		return fmt.Errorf("unsupported audio format: %s", ext)
	}
}

func embedMP3(path string, meta *Metadata, coverArt []byte) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("failed to open mp3 for tagging: %w", err)
	}
	defer tag.Close()

	tag.SetVersion(4)
	tag.SetTitle(meta.Title)
	if len(meta.Artists) > 0 {
		tag.AddTextFrame("TPE1", tag.DefaultEncoding(), strings.Join(meta.Artists, "\x00"))
	}
	if meta.Album != "" {
		tag.SetAlbum(meta.Album)
	}
	if meta.AlbumArtist != "" {
		tag.AddTextFrame(tag.CommonID("Band/Orchestra/Accompaniment"), tag.DefaultEncoding(), meta.AlbumArtist)
	}
	if meta.Year != "" {
		tag.SetYear(meta.Year)
	}
	if meta.TrackNumber > 0 {
		trackStr := strconv.Itoa(meta.TrackNumber)
		if meta.TotalTracks > 0 {
			trackStr = fmt.Sprintf("%d/%d", meta.TrackNumber, meta.TotalTracks)
		}
		tag.AddTextFrame(tag.CommonID("Track number/Position in set"), tag.DefaultEncoding(), trackStr)
	}
	if meta.Lyrics != "" {
		tag.AddUnsynchronisedLyricsFrame(id3v2.UnsynchronisedLyricsFrame{
			Encoding:          id3v2.EncodingUTF8,
			Language:          "eng",
			ContentDescriptor: "LRC",
			Lyrics:            meta.Lyrics,
		})
	}

	if len(coverArt) > 0 {
		tag.AddAttachedPicture(id3v2.PictureFrame{
			Encoding:    id3v2.EncodingUTF8,
			MimeType:    detectMIME(coverArt),
			PictureType: id3v2.PTFrontCover,
			Description: "Front Cover",
			Picture:     coverArt,
		})
	}

	return tag.Save()
}

func embedFLAC(path string, meta *Metadata, coverArt []byte) error {
	f, err := goflac.ParseFile(path)
	if err != nil {
		return fmt.Errorf("failed to parse flac: %w", err)
	}

	// Replace any existing Vorbis comment block with a fresh one.
	vc := flacvorbis.New()
	vc.Add(flacvorbis.FIELD_TITLE, meta.Title)
	for _, artist := range meta.Artists {
		vc.Add(flacvorbis.FIELD_ARTIST, artist)
	}
	if meta.Album != "" {
		vc.Add(flacvorbis.FIELD_ALBUM, meta.Album)
	}
	if meta.AlbumArtist != "" {
		vc.Add("ALBUMARTIST", meta.AlbumArtist)
	}
	if meta.Year != "" {
		vc.Add(flacvorbis.FIELD_DATE, meta.Year)
	}
	if meta.TrackNumber > 0 {
		vc.Add(flacvorbis.FIELD_TRACKNUMBER, strconv.Itoa(meta.TrackNumber))
	}
	if meta.TotalTracks > 0 {
		vc.Add("TRACKTOTAL", strconv.Itoa(meta.TotalTracks))
	}
	if meta.Lyrics != "" {
		vc.Add("LYRICS", meta.Lyrics)
	}

	commentMeta := vc.Marshal()
	replaced := false
	for idx, block := range f.Meta {
		if block.Type == goflac.VorbisComment {
			f.Meta[idx] = &commentMeta
			replaced = true
			break
		}
	}
	if !replaced {
		f.Meta = append(f.Meta, &commentMeta)
	}

	if len(coverArt) > 0 {
		pic, err := flacpicture.NewFromImageData(
			flacpicture.PictureTypeFrontCover, "Front Cover", coverArt, detectMIME(coverArt))
		if err != nil {
			return fmt.Errorf("failed to build picture block: %w", err)
		}
		picMeta := pic.Marshal()
		f.Meta = append(f.Meta, &picMeta)
	}

	return f.Save(path)
}

// embedViaFFmpeg remuxes through ffmpeg for containers the native taggers
// don't cover. Requires ffmpeg on PATH.
func embedViaFFmpeg(path string, meta *Metadata) error {
	tmpOut := path + ".tagged" + filepath.Ext(path)

	args := []string{
		"-y", "-i", path,
		"-metadata", "title=" + meta.Title,
		"-metadata", "artist=" + strings.Join(meta.Artists, "; "),
		"-metadata", "album=" + meta.Album,
	}
	if meta.AlbumArtist != "" {
		args = append(args, "-metadata", "album_artist="+meta.AlbumArtist)
	}
	if meta.Year != "" {
		args = append(args, "-metadata", "date="+meta.Year)
	}
	if meta.TrackNumber > 0 {
		args = append(args, "-metadata", "track="+strconv.Itoa(meta.TrackNumber))
	}
	args = append(args, "-c", "copy", tmpOut)

	cmd := exec.Command("ffmpeg", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		os.Remove(tmpOut)
		return fmt.Errorf("ffmpeg tagging failed: %s (%v)", string(out), err)
	}

	return os.Rename(tmpOut, path)
}

func detectMIME(data []byte) string {
	mime := http.DetectContentType(data)
	if idx := strings.Index(mime, ";"); idx != -1 {
		mime = strings.TrimSpace(mime[:idx])
	}
	return mime
}
