package tts

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Player plays synthesized audio. Play blocks until playback finishes and
// must stop promptly when ctx is cancelled.
type Player interface {
	Play(ctx context.Context, audio *AudioResult) error
}

// PlayerFunc adapts a function to Player.
type PlayerFunc func(ctx context.Context, audio *AudioResult) error

// Play calls f.
func (f PlayerFunc) Play(ctx context.Context, audio *AudioResult) error {
	return f(ctx, audio)
}

// DefaultPlayerCommand pipes raw PCM16 into ALSA. {rate} and {channels}
// are replaced from the audio format.
var DefaultPlayerCommand = []string{"aplay", "-q", "-f", "S16_LE", "-r", "{rate}", "-c", "{channels}", "-"}

// CommandPlayer pipes audio to an external command's stdin. The process is
// killed when the context is cancelled.
type CommandPlayer struct {
	command []string
	logger  *slog.Logger
}

// NewCommandPlayer creates a player for command, or DefaultPlayerCommand
// when command is empty.
func NewCommandPlayer(command []string, logger *slog.Logger) *CommandPlayer {
	if len(command) == 0 {
		command = DefaultPlayerCommand
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandPlayer{
		command: command,
		logger:  logger.With("component", "tts.player"),
	}
}

// Command returns the argv for format.
func (p *CommandPlayer) Command(format AudioFormat) []string {
	channels := format.Channels
	if channels < 1 {
		channels = 1
	}
	r := strings.NewReplacer(
		"{rate}", strconv.Itoa(format.SampleRate),
		"{channels}", strconv.Itoa(channels),
	)
	argv := make([]string, len(p.command))
	for i, a := range p.command {
		argv[i] = r.Replace(a)
	}
	return argv
}

// Play implements Player.
func (p *CommandPlayer) Play(ctx context.Context, audio *AudioResult) error {
	if audio == nil || len(audio.Audio) == 0 {
		return nil
	}
	argv := p.Command(audio.Format)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = bytes.NewReader(audio.Audio)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = 500 * time.Millisecond

	err := cmd.Run()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		return fmt.Errorf("tts: %s: %w: %s", argv[0], err, bytes.TrimSpace(stderr.Bytes()))
	}
	p.logger.Debug("played audio", "bytes", len(audio.Audio), "duration", audio.Duration)
	return nil
}

// Verify implementations at compile time.
var (
	_ Player = (*CommandPlayer)(nil)
	_ Player = PlayerFunc(nil)
)
