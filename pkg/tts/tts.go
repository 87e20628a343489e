// Package tts turns utterances into audio and plays them.
//
// A Provider synthesizes complete PCM buffers (OpenAI or ElevenLabs, with
// Chain for fallback). A Player writes them to the audio device. Speaker
// ties the two together behind the speech.Engine interface with interrupt
// semantics: a new utterance always cuts off the current one.
//
// Example usage:
//
//	provider, _ := tts.NewOpenAI(tts.WithAPIKey(os.Getenv("OPENAI_API_KEY")))
//	speaker := tts.NewSpeaker(provider, tts.NewCommandPlayer(nil), logger)
//	_ = speaker.Init(ctx)
//	_ = speaker.Speak(ctx, "chair ahead", uuid.NewString())
package tts

import (
	"context"
	"time"
)

// Provider defines the TTS provider interface.
type Provider interface {
	// Synthesize converts text to audio, returning the complete audio buffer.
	Synthesize(ctx context.Context, text string) (*AudioResult, error)

	// Health checks provider connectivity and API key validity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// AudioResult represents a complete audio synthesis result.
type AudioResult struct {
	// Audio contains the raw audio data in the specified format.
	Audio []byte

	// Format describes the audio encoding and sample rate.
	Format AudioFormat

	// Duration is the estimated audio playback duration.
	Duration time.Duration

	// CharCount is the number of characters synthesized.
	CharCount int

	// LatencyMs is the request latency in milliseconds.
	LatencyMs int64
}

// AudioFormat describes the audio encoding parameters.
type AudioFormat struct {
	Encoding   Encoding
	SampleRate int
	Channels   int
	BitDepth   int
}

// Encoding represents audio encoding types.
type Encoding string

const (
	EncodingPCM16 Encoding = "pcm_16000" // 16kHz mono PCM16
	EncodingPCM22 Encoding = "pcm_22050" // 22.05kHz mono PCM16
	EncodingPCM24 Encoding = "pcm_24000" // 24kHz mono PCM16
	EncodingPCM44 Encoding = "pcm_44100" // 44.1kHz mono PCM16
)

// SampleRateFromEncoding extracts the sample rate from an encoding type.
func SampleRateFromEncoding(enc Encoding) int {
	switch enc {
	case EncodingPCM16:
		return 16000
	case EncodingPCM22:
		return 22050
	case EncodingPCM44:
		return 44100
	default:
		return 24000
	}
}

// PCMFormat returns the mono PCM16 format for enc.
func PCMFormat(enc Encoding) AudioFormat {
	return AudioFormat{
		Encoding:   enc,
		SampleRate: SampleRateFromEncoding(enc),
		Channels:   1,
		BitDepth:   16,
	}
}

// PCMDuration estimates the playback time of n bytes of mono PCM16.
func PCMDuration(n int, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := n / 2
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
