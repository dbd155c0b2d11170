package stt

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func writeModel(t *testing.T, magic uint32) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ggml-test.bin")
	buf := binary.LittleEndian.AppendUint32(nil, magic)
	buf = append(buf, make([]byte, 64)...)
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// writeScript installs a fake whisper-cli.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts unsupported")
	}
	path := filepath.Join(t.TempDir(), "whisper-cli")
	script := "#!/bin/sh\n" + body
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

const jsonScript = `out=""
while [ $# -gt 0 ]; do
  case "$1" in
    -of) out="$2"; shift ;;
  esac
  shift
done
printf '{"result":{"language":"en"},"transcription":[{"offsets":{"from":0,"to":900},"text":" hello"},{"offsets":{"from":900,"to":2000},"text":" world"}]}' > "$out.json"
`

func TestNewWhisperLocalModelErrors(t *testing.T) {
	bin := writeScript(t, "exit 0\n")

	tests := []struct {
		name  string
		model string
	}{
		{"empty path", ""},
		{"missing", filepath.Join(t.TempDir(), "nope.bin")},
		{"bad magic", writeModel(t, 0xdeadbeef)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWhisperLocal(WhisperLocalConfig{ModelPath: tt.model, BinPath: bin})
			if !errors.Is(err, ErrModelLoading) {
				t.Fatalf("err = %v, want ErrModelLoading", err)
			}
		})
	}
}

func TestNewWhisperLocalMissingBinary(t *testing.T) {
	model := writeModel(t, ggmlMagic)
	_, err := NewWhisperLocal(WhisperLocalConfig{
		ModelPath: model,
		BinPath:   filepath.Join(t.TempDir(), "missing-cli"),
	})
	if !errors.Is(err, ErrModelLoading) {
		t.Fatalf("err = %v, want ErrModelLoading", err)
	}
}

func TestWhisperLocalTranscribe(t *testing.T) {
	w, err := NewWhisperLocal(WhisperLocalConfig{
		ModelPath: writeModel(t, ggmlMagic),
		BinPath:   writeScript(t, jsonScript),
		Language:  "en",
	})
	if err != nil {
		t.Fatalf("NewWhisperLocal: %v", err)
	}

	res, err := w.Transcribe(context.Background(), make([]float32, 1600))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "hello world" {
		t.Errorf("Text = %q, want %q", res.Text, "hello world")
	}
	if len(res.Segments) != 2 {
		t.Fatalf("segments = %d, want 2", len(res.Segments))
	}
	if res.Segments[1].End != 2*time.Second {
		t.Errorf("End = %v, want 2s", res.Segments[1].End)
	}
	if res.Language != "en" {
		t.Errorf("Language = %q", res.Language)
	}
}

func TestWhisperLocalExitCode(t *testing.T) {
	w, err := NewWhisperLocal(WhisperLocalConfig{
		ModelPath: writeModel(t, ggmlMagic),
		BinPath:   writeScript(t, "echo 'failed to read audio' >&2\nexit 3\n"),
	})
	if err != nil {
		t.Fatalf("NewWhisperLocal: %v", err)
	}

	_, err = w.Transcribe(context.Background(), []float32{0.1, 0.2})
	var te *TranscriptionError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want *TranscriptionError", err)
	}
	if te.Code != 3 {
		t.Errorf("Code = %d, want 3", te.Code)
	}
	if te.Detail != "failed to read audio" {
		t.Errorf("Detail = %q", te.Detail)
	}
}

func TestParseWhisperOutputInvalid(t *testing.T) {
	_, err := parseWhisperOutput([]byte("not json"))
	var te *TranscriptionError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want *TranscriptionError", err)
	}
}

func TestFloatToPCM16(t *testing.T) {
	tests := []struct {
		in   float32
		want int
	}{
		{0, 0},
		{1, 32767},
		{-1, -32767},
		{2, 32767},
		{-3, -32767},
		{0.5, 16383},
	}
	for _, tt := range tests {
		if got := floatToPCM16(tt.in); got != tt.want {
			t.Errorf("floatToPCM16(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestNewWhisperAPIRequiresKey(t *testing.T) {
	if _, err := NewWhisperAPI(WhisperAPIConfig{}); !errors.Is(err, ErrModelLoading) {
		t.Fatalf("err = %v, want ErrModelLoading", err)
	}
	if _, err := NewWhisperAPI(WhisperAPIConfig{APIKey: "sk-test"}); err != nil {
		t.Fatalf("NewWhisperAPI: %v", err)
	}
}
