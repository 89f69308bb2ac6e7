package portaudio

import (
	"context"
	"fmt"
	"sync"

	"github.com/JayTiptown/Conduit-coding-test/core/audio"
	"github.com/gordonklaus/portaudio"
)

// Client reads fixed-size blocks from the default input device and writes
// playback through a blocking output stream opened per call.
type Client struct {
	bufferSize int
	stream     *portaudio.Stream
	in         []int16

	playMu sync.Mutex
}

func NewClient(bufferSize int) (*Client, error) {
	if bufferSize <= 0 {
		bufferSize = audio.DefaultFrameSize
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	in := make([]int16, bufferSize)
	stream, err := portaudio.OpenDefaultStream(audio.DefaultChannels, 0, audio.DefaultSampleRate, bufferSize, in)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to open input stream: %w", err)
	}

	return &Client{
		bufferSize: bufferSize,
		stream:     stream,
		in:         in,
	}, nil
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.GetDefaultEncodingInfo()
}

// Stream blocks reading the microphone until ctx is done.
func (c *Client) Stream(ctx context.Context, onAudio func(audio []byte)) error {
	if err := c.stream.Start(); err != nil {
		return fmt.Errorf("failed to start input stream: %w", err)
	}
	defer func() {
		if err := c.stream.Stop(); err != nil {
			logger.Warn("Failed to stop input stream", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := c.stream.Read(); err != nil {
			// Overflows only mean frames were lost.
			if err == portaudio.InputOverflowed {
				continue
			}
			return fmt.Errorf("failed to read from input stream: %w", err)
		}
		onAudio(audio.EncodeLinear16(c.in))
	}
}

// Play writes pcm through a stream opened at sampleRate, padding the last
// block with silence, and returns when the stream has drained.
func (c *Client) Play(ctx context.Context, pcm []byte, sampleRate int) error {
	if len(pcm) == 0 {
		return nil
	}

	c.playMu.Lock()
	defer c.playMu.Unlock()

	out := make([]int16, c.bufferSize)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), len(out), out)
	if err != nil {
		return fmt.Errorf("failed to open output stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("failed to start output stream: %w", err)
	}

	for offset := 0; offset < len(pcm); offset += len(out) * 2 {
		if err := ctx.Err(); err != nil {
			_ = stream.Abort()
			return err
		}

		n := audio.DecodeLinear16(out, pcm[offset:])
		clear(out[n:])
		if err := stream.Write(); err != nil && err != portaudio.OutputUnderflowed {
			_ = stream.Abort()
			return fmt.Errorf("failed to write to output stream: %w", err)
		}
	}

	if err := stream.Stop(); err != nil {
		return fmt.Errorf("failed to stop output stream: %w", err)
	}
	return nil
}

func (c *Client) Close() {
	if err := c.stream.Close(); err != nil {
		logger.Warn("Failed to close input stream", "error", err)
	}
	if err := portaudio.Terminate(); err != nil {
		logger.Warn("Failed to terminate portaudio", "error", err)
	}
}
