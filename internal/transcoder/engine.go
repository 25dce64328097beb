package transcoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/trunov/mediaforge/internal/config"
	"github.com/trunov/mediaforge/internal/entities"
)

// Engine shells out to ffmpeg/ffprobe. Operations block until the external
// process exits; no timeout is imposed here beyond the caller's context.
type Engine struct {
	FFmpegPath  string
	FFprobePath string
	WorkDir     string
}

func New(cfg config.TranscodeConfig) *Engine {
	e := &Engine{
		FFmpegPath:  cfg.FFmpegPath,
		FFprobePath: cfg.FFprobePath,
		WorkDir:     cfg.WorkDir,
	}
	if e.FFmpegPath == "" {
		e.FFmpegPath = "ffmpeg"
	}
	if e.FFprobePath == "" {
		e.FFprobePath = "ffprobe"
	}
	if e.WorkDir == "" {
		e.WorkDir = os.TempDir()
	}
	return e
}

type ProbeFormat struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

type ProbeStream struct {
	Index     int    `json:"index"`
	CodecName string `json:"codec_name"`
	CodecType string `json:"codec_type"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	Duration  string `json:"duration,omitempty"`
}

type ProbeResult struct {
	Format  ProbeFormat   `json:"format"`
	Streams []ProbeStream `json:"streams"`
}

// Probe inspects a local file for container and stream metadata.
func (e *Engine) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	out, err := e.runProbe(ctx,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	if err != nil {
		return nil, err
	}

	var res ProbeResult
	if err := json.Unmarshal(out, &res); err != nil {
		return nil, fmt.Errorf("decode ffprobe output: %w", err)
	}
	return &res, nil
}

// ExtractFrame grabs a single still frame at the given offset and writes it
// next to the engine's work dir as {base}_thumb.jpg.
func (e *Engine) ExtractFrame(ctx context.Context, path string, atSec float64) (string, error) {
	outPath := filepath.Join(e.WorkDir, baseNoExt(path)+"_thumb.jpg")
	err := e.runFFmpeg(ctx,
		"-ss", strconv.FormatFloat(atSec, 'f', -1, 64),
		"-i", path,
		"-frames:v", "1",
		"-q:v", "2",
		"-y", outPath,
	)
	if err != nil {
		return "", err
	}
	return outPath, nil
}

// Preview re-encodes a bounded-duration, bounded-width clip suitable for
// inline playback.
func (e *Engine) Preview(ctx context.Context, path string, seconds, width int) (string, error) {
	if seconds <= 0 {
		seconds = 10
	}
	if width <= 0 {
		width = 720
	}
	outPath := filepath.Join(e.WorkDir, baseNoExt(path)+"_preview.mp4")
	err := e.runFFmpeg(ctx,
		"-i", path,
		"-t", strconv.Itoa(seconds),
		"-vf", fmt.Sprintf("scale=%d:-2", width),
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "23",
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
		"-y", outPath,
	)
	if err != nil {
		return "", err
	}
	return outPath, nil
}

// Transcode runs the full CPU-heavy re-encode. The denoise and sharpen
// filters are always applied so the load profile stays predictable.
func (e *Engine) Transcode(ctx context.Context, path string, p entities.TranscodeParams) (string, error) {
	format := p.Format
	if format == "" {
		format = "mp4"
	}
	resolution := p.Resolution
	if resolution == "" {
		resolution = "1280x720"
	}
	crf := p.CRF
	if crf <= 0 {
		crf = 18
	}
	preset := p.Preset
	if preset == "" {
		preset = "veryslow"
	}

	outDir := filepath.Join(e.WorkDir, "transcoded")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	outPath := filepath.Join(outDir, fmt.Sprintf("%s_%s_%s.%s", baseNoExt(path), resolution, format, format))

	filters := make([]string, 0, 4)
	if w, h, ok := parseResolution(resolution); ok {
		filters = append(filters, fmt.Sprintf("scale=%d:%d:flags=lanczos", w, h))
	}
	filters = append(filters, "hqdn3d=1.5:1.5:6:6", "unsharp=5:5:1.0:5:5:0.0")
	if p.ExtraFilters != "" {
		filters = append(filters, p.ExtraFilters)
	}

	err := e.runFFmpeg(ctx,
		"-i", path,
		"-c:v", "libx264",
		"-preset", preset,
		"-crf", strconv.Itoa(crf),
		"-movflags", "+faststart",
		"-an",
		"-vf", strings.Join(filters, ","),
		"-f", format,
		"-y", outPath,
	)
	if err != nil {
		return "", err
	}
	return outPath, nil
}

func (e *Engine) runFFmpeg(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, e.FFmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg: %w - %s", err, lastLines(stderr.String(), 5))
	}
	return nil
}

func (e *Engine) runProbe(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, e.FFprobePath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe: %w - %s", err, lastLines(stderr.String(), 5))
	}
	return stdout.Bytes(), nil
}

func baseNoExt(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func parseResolution(res string) (int, int, bool) {
	parts := strings.SplitN(strings.ToLower(res), "x", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	w, errW := strconv.Atoi(parts[0])
	h, errH := strconv.Atoi(parts[1])
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}

// ffmpeg failure output is verbose; keep only the tail for the error message.
func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
