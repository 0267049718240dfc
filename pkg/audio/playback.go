package audio

import (
	"context"
	"errors"
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// playbackChunk is the number of samples written to the output device per
// blocking Write call.
const playbackChunk = 2048

// Player plays normalized float32 PCM through the default output device.
// Each Play call opens a short-lived blocking output stream, which keeps the
// device free between utterances. Player itself holds no stream state and is
// safe for concurrent use; concurrent Play calls are serialised by portaudio
// at the device level.
type Player struct{}

// NewPlayer initialises portaudio for playback. Call Close to release it.
func NewPlayer() (*Player, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("audio: initialize portaudio: %w", err)
	}
	return &Player{}, nil
}

// Play writes the samples to the default output device and blocks until
// playback completes or ctx is cancelled. A cancelled context stops playback
// at the next chunk boundary.
func (p *Player) Play(ctx context.Context, samples []float32, sampleRate int) error {
	if sampleRate <= 0 {
		return errors.New("audio: playback sample rate must be positive")
	}
	if len(samples) == 0 {
		return nil
	}

	out := make([]float32, playbackChunk)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), len(out), &out)
	if err != nil {
		return fmt.Errorf("audio: open output stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("audio: start output stream: %w", err)
	}
	defer stream.Stop()

	for off := 0; off < len(samples); off += playbackChunk {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := off + playbackChunk
		if end > len(samples) {
			end = len(samples)
		}
		n := copy(out, samples[off:end])
		// Zero-pad the final partial chunk.
		for i := n; i < len(out); i++ {
			out[i] = 0
		}
		if err := stream.Write(); err != nil {
			return fmt.Errorf("audio: write output stream: %w", err)
		}
	}
	return nil
}

// Close terminates portaudio. Safe to call multiple times; portaudio
// reference-counts Initialize/Terminate pairs.
func (p *Player) Close() error {
	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("audio: terminate portaudio: %w", err)
	}
	return nil
}
