package audio

import (
	"errors"
	"testing"
)

// id3 is the start of an MP3 with an ID3v2 tag.
var id3 = append([]byte("ID3\x03\x00\x00\x00\x00\x00\x00"), make([]byte, 64)...)

// ftyp is the start of an ISO base media (MP4/M4A) file.
var ftyp = append([]byte("\x00\x00\x00\x18ftypmp42\x00\x00\x00\x00mp42isom"), make([]byte, 64)...)

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		declared string
		data     []byte
		wantExt  string
		wantErr  error
	}{
		{"mp3_by_extension", "show.MP3", "application/octet-stream", id3, ".mp3", nil},
		{"mp3_by_content_type", "recording", "audio/mp3", id3, ".mp3", nil},
		{"mp4_by_extension", "show.mp4", "", ftyp, ".mp4", nil},
		{"mp4_by_content_type", "clip.bin", "audio/mp4", ftyp, ".mp4", nil},
		{"unknown_binary_passes_sniff", "raw.mp3", "", []byte{0xff, 0xfb, 0x90, 0x64, 0x00, 0x01, 0x02}, ".mp3", nil},
		{"wav_rejected", "talk.wav", "audio/wav", []byte("RIFF\x00\x00\x00\x00WAVEfmt "), "", ErrUnsupportedType},
		{"renamed_png_rejected", "fake.mp3", "audio/mp3", []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), "", ErrUnsupportedType},
		{"text_rejected", "notes.mp3", "", []byte("hello this is plain text"), "", ErrUnsupportedType},
		{"empty", "show.mp3", "audio/mp3", nil, "", ErrEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Validate(tt.filename, tt.declared, tt.data)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if f.Ext != tt.wantExt {
				t.Errorf("Ext = %q, want %q", f.Ext, tt.wantExt)
			}
		})
	}
}

func TestIsCandidate(t *testing.T) {
	for path, want := range map[string]bool{
		"/drop/a.mp3":  true,
		"/drop/b.MP4":  true,
		"/drop/c.wav":  false,
		"/drop/d.json": false,
		"/drop/mp3":    false,
	} {
		if got := IsCandidate(path); got != want {
			t.Errorf("IsCandidate(%q) = %v, want %v", path, got, want)
		}
	}
}
