package audio

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// ErrUnsupportedType is returned for uploads that are not MP3 or MP4 audio.
var ErrUnsupportedType = errors.New("unsupported audio type: only MP3 or MP4 files are accepted")

// ErrEmpty is returned for zero-length uploads.
var ErrEmpty = errors.New("audio file is empty")

// File describes an accepted upload.
type File struct {
	Name        string
	ContentType string // normalized: audio/mpeg or audio/mp4
	Ext         string // ".mp3" or ".mp4"
	Data        []byte
}

// Validate accepts a file when its declared content type contains audio/mp3 or
// audio/mp4, or its name ends in .mp3 or .mp4. The bytes are then sniffed and
// rejected if they are clearly something else (an image renamed to .mp3, say).
func Validate(name, declaredType string, data []byte) (*File, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}

	ext := strings.ToLower(filepath.Ext(name))
	declared := strings.ToLower(declaredType)

	var kind string
	switch {
	case strings.Contains(declared, "audio/mp3"), ext == ".mp3":
		kind = ".mp3"
	case strings.Contains(declared, "audio/mp4"), ext == ".mp4":
		kind = ".mp4"
	default:
		return nil, ErrUnsupportedType
	}

	if !sniffOK(data) {
		return nil, ErrUnsupportedType
	}

	f := &File{Name: filepath.Base(name), Ext: kind, Data: data}
	if kind == ".mp3" {
		f.ContentType = "audio/mpeg"
	} else {
		f.ContentType = "audio/mp4"
	}
	if f.Name == "." || f.Name == string(filepath.Separator) {
		f.Name = "upload" + kind
	}
	return f, nil
}

// sniffOK rejects content mimetype positively identifies as non-media. Raw MPEG
// frames without an ID3 tag are not always recognized, so unknown binary passes.
func sniffOK(data []byte) bool {
	m := mimetype.Detect(data)
	if m.Is("application/octet-stream") {
		return true
	}
	for cur := m; cur != nil; cur = cur.Parent() {
		mt := cur.String()
		if strings.HasPrefix(mt, "audio/") || strings.HasPrefix(mt, "video/") {
			return true
		}
	}
	return false
}

// IsCandidate reports whether a path looks like an audio file worth picking up
// from a watched directory.
func IsCandidate(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".mp3" || ext == ".mp4"
}
