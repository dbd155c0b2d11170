package stt

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// ggmlMagic is the little-endian header of whisper.cpp model files.
const ggmlMagic uint32 = 0x67676d6c

// WhisperLocal transcribes with the whisper.cpp CLI.
// The model and binary are verified once at construction.
type WhisperLocal struct {
	modelPath string
	binPath   string
	language  string
	threads   int
}

// WhisperLocalConfig holds configuration for WhisperLocal.
type WhisperLocalConfig struct {
	ModelPath string // ggml model file
	BinPath   string // whisper.cpp binary; searched for when empty
	Language  string // empty for auto-detect
	Threads   int    // 0 uses the CLI default
}

// NewWhisperLocal verifies the model and locates the binary. Every failure
// wraps ErrModelLoading.
func NewWhisperLocal(cfg WhisperLocalConfig) (*WhisperLocal, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("%w: no model path configured", ErrModelLoading)
	}
	if err := checkModel(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelLoading, err)
	}

	binPath := cfg.BinPath
	if binPath == "" {
		binPath = findWhisperBinary()
	}
	if binPath == "" {
		return nil, fmt.Errorf("%w: whisper.cpp binary not found", ErrModelLoading)
	}
	if _, err := os.Stat(binPath); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelLoading, err)
	}

	return &WhisperLocal{
		modelPath: cfg.ModelPath,
		binPath:   binPath,
		language:  cfg.Language,
		threads:   cfg.Threads,
	}, nil
}

func checkModel(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open model: %w", err)
	}
	defer f.Close()

	var magic uint32
	if err := binary.Read(f, binary.LittleEndian, &magic); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("model %s is truncated", path)
		}
		return fmt.Errorf("read model header: %w", err)
	}
	if magic != ggmlMagic {
		return fmt.Errorf("model %s is not a ggml file (magic %#x)", path, magic)
	}
	return nil
}

func (w *WhisperLocal) Name() string { return "whisper-local" }

// Transcribe writes samples to a temporary WAV file and runs the CLI on it.
// A non-zero exit is reported as a *TranscriptionError carrying the exit code.
func (w *WhisperLocal) Transcribe(ctx context.Context, samples []float32) (*TranscribeResult, error) {
	tmpDir, err := os.MkdirTemp("", "vocal-liquid-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	audioPath := filepath.Join(tmpDir, "audio.wav")
	if err := writeWAV(audioPath, samples, SampleRate); err != nil {
		return nil, err
	}
	outBase := filepath.Join(tmpDir, "out")

	args := []string{
		"-m", w.modelPath,
		"-f", audioPath,
		"-oj", // JSON written to <outBase>.json
		"-of", outBase,
		"-np",
	}
	if w.language != "" {
		args = append(args, "-l", w.language)
	}
	if w.threads > 0 {
		args = append(args, "-t", fmt.Sprint(w.threads))
	}

	cmd := exec.CommandContext(ctx, w.binPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := lastLine(stderr.String())
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &TranscriptionError{Code: exitErr.ExitCode(), Detail: detail}
		}
		return nil, &TranscriptionError{Code: -1, Detail: err.Error()}
	}

	data, err := os.ReadFile(outBase + ".json")
	if err != nil {
		return nil, &TranscriptionError{Code: -1, Detail: "missing output: " + err.Error()}
	}
	return parseWhisperOutput(data)
}

func parseWhisperOutput(data []byte) (*TranscribeResult, error) {
	var out whisperCppOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &TranscriptionError{Code: -1, Detail: "decode output: " + err.Error()}
	}

	result := &TranscribeResult{
		Language: out.Result.Language,
		Segments: make([]Segment, 0, len(out.Transcription)),
	}

	var text strings.Builder
	for _, seg := range out.Transcription {
		text.WriteString(seg.Text)
		result.Segments = append(result.Segments, Segment{
			Text:  seg.Text,
			Start: time.Duration(seg.Offsets.From) * time.Millisecond,
			End:   time.Duration(seg.Offsets.To) * time.Millisecond,
		})
	}
	result.Text = strings.TrimSpace(text.String())
	return result, nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

func findWhisperBinary() string {
	// whisper-cli is the Homebrew name
	names := []string{"whisper-cli", "whisper-cpp", "whisper"}

	// Bundled binary first
	if runtime.GOOS == "darwin" {
		if execPath, err := os.Executable(); err == nil {
			bundled := filepath.Join(filepath.Dir(execPath), "..", "Resources", "whisper-cli")
			if _, err := os.Stat(bundled); err == nil {
				return bundled
			}
		}
	}

	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	// Homebrew locations are often missing from a GUI app's PATH.
	for _, loc := range []string{"/opt/homebrew/bin", "/usr/local/bin"} {
		for _, name := range names {
			path := filepath.Join(loc, name)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

func (w *WhisperLocal) Close() error {
	return nil
}

// whisperCppOutput represents the JSON output from whisper.cpp.
type whisperCppOutput struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Text    string `json:"text"`
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
	} `json:"transcription"`
}
