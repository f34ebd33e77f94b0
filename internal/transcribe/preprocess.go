package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
)

var ffmpegPath = "ffmpeg"

var (
	ffmpegOnce  sync.Once
	ffmpegFound bool
)

// CheckFFmpeg reports whether ffmpeg is in PATH. The lookup runs once.
func CheckFFmpeg() bool {
	ffmpegOnce.Do(func() {
		_, err := exec.LookPath(ffmpegPath)
		ffmpegFound = err == nil
	})
	return ffmpegFound
}

// Preprocess converts an upload to 16kHz mono 16-bit WAV, which every provider
// accepts and which is much smaller than a stereo podcast mix. ext is the
// upload's extension including the dot and is used as an input format hint.
//
// If ffmpeg is unavailable the input is returned unchanged with ok=false.
func Preprocess(ctx context.Context, data []byte, ext string) (out []byte, ok bool, err error) {
	if !CheckFFmpeg() {
		return data, false, nil
	}

	tmpDir, err := os.MkdirTemp("", "podcheck-preprocess-*")
	if err != nil {
		return data, false, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	inputPath := filepath.Join(tmpDir, "input"+ext)
	if err := os.WriteFile(inputPath, data, 0o600); err != nil {
		return data, false, fmt.Errorf("write input: %w", err)
	}

	wavPath := filepath.Join(tmpDir, "audio.wav")
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, ffmpegPath,
		"-i", inputPath,
		"-y",
		"-vn",
		"-ar", "16000",
		"-ac", "1",
		"-c:a", "pcm_s16le",
		wavPath,
	)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return data, false, fmt.Errorf("ffmpeg conversion failed: %w: %s", err, lastLine(stderr.Bytes()))
	}

	out, err = os.ReadFile(wavPath)
	if err != nil {
		return data, false, fmt.Errorf("read converted audio: %w", err)
	}
	return out, true, nil
}

func lastLine(b []byte) string {
	b = bytes.TrimRight(b, "\n")
	if i := bytes.LastIndexByte(b, '\n'); i >= 0 {
		b = b[i+1:]
	}
	return string(b)
}
