package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// TelegramVideoLimit максимальный размер видео, которое бот может отправить
const TelegramVideoLimit = 50 << 20

const (
	audioBitrate    = 128_000
	minVideoBitrate = 200_000
)

// ProbeDuration возвращает длительность видео в секундах
func ProbeDuration(file string) (float64, error) {
	out, err := ffmpeg.Probe(file)
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	var probe struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal([]byte(out), &probe); err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	d, err := strconv.ParseFloat(probe.Format.Duration, 64)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("ffprobe: некорректная длительность %q", probe.Format.Duration)
	}
	return d, nil
}

// TargetVideoBitrate битрейт видео, при котором файл длительностью duration
// помещается в maxBytes с запасом 5% на контейнер
func TargetVideoBitrate(maxBytes int64, duration float64) int {
	total := float64(maxBytes) * 8 * 0.95 / duration
	video := int(total) - audioBitrate
	if video < minVideoBitrate {
		return minVideoBitrate
	}
	return video
}

// FitVideo перекодирует in в out так, чтобы файл уместился в maxBytes.
// Файл, который уже помещается, копируется без перекодирования.
func FitVideo(ctx context.Context, in, out string, maxBytes int64) error {
	info, err := os.Stat(in)
	if err != nil {
		return err
	}
	if info.Size() <= maxBytes {
		data, err := os.ReadFile(in)
		if err != nil {
			return err
		}
		return os.WriteFile(out, data, 0o644)
	}

	duration, err := ProbeDuration(in)
	if err != nil {
		return err
	}
	bitrate := TargetVideoBitrate(maxBytes, duration)

	var stderr bytes.Buffer
	cmd := ffmpeg.Input(in).
		Output(out, ffmpeg.KwArgs{
			"c:v":      "libx264",
			"preset":   "veryfast",
			"b:v":      bitrate,
			"maxrate":  bitrate,
			"bufsize":  bitrate * 2,
			"c:a":      "aac",
			"b:a":      audioBitrate,
			"movflags": "+faststart",
		}).
		OverWriteOutput().
		WithErrorOutput(&stderr).
		Compile()

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ffmpeg: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-done
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("ffmpeg: %w: %s", err, lastLine(stderr.String()))
		}
	}

	result, err := os.Stat(out)
	if err != nil {
		return err
	}
	if result.Size() > maxBytes {
		return fmt.Errorf("видео после сжатия %d байт, лимит %d", result.Size(), maxBytes)
	}
	return nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
