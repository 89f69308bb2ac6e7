package miniaudio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JayTiptown/Conduit-coding-test/core/audio"
	"github.com/gen2brain/malgo"
)

// Client captures 16 kHz mono microphone audio and plays mono PCM at
// whatever rate the synthesizer produced it. One playback device is opened
// per sample rate on first use.
type Client struct {
	// audioContext is only saved to be able to uninitialize it, it is an
	// ownership thing
	audioContext *malgo.AllocatedContext
	captureClient

	playersMu sync.Mutex
	players   map[int]*playbackClient
}

// NewClient opens the default capture device. frameSize is the number of
// samples per captured frame, zero uses audio.DefaultFrameSize.
func NewClient(frameSize int) (*Client, error) {
	if frameSize <= 0 {
		frameSize = audio.DefaultFrameSize
	}

	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debug("malgo", "message", message)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}

	client := Client{
		audioContext: audioCtx,
		players:      map[int]*playbackClient{},
	}

	if err := client.captureClient.Init(audioCtx, audio.GetDefaultEncodingInfo(), frameSize); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize capture client: %w", err)
	}

	return &client, nil
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return c.captureClient.encodingInfo
}

// Stream delivers captured frames to onAudio until ctx is done.
func (c *Client) Stream(ctx context.Context, onAudio func(audio []byte)) error {
	if err := c.captureClient.Start(onAudio); err != nil {
		return err
	}
	<-ctx.Done()
	return c.captureClient.Stop()
}

// Play blocks until pcm has been handed to the device in full or ctx is
// done, in which case whatever is still queued is discarded.
func (c *Client) Play(ctx context.Context, pcm []byte, sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", sampleRate)
	}

	player, err := c.player(sampleRate)
	if err != nil {
		return err
	}
	return player.Play(ctx, pcm)
}

func (c *Client) player(sampleRate int) (*playbackClient, error) {
	c.playersMu.Lock()
	defer c.playersMu.Unlock()

	if player, ok := c.players[sampleRate]; ok {
		return player, nil
	}

	player := &playbackClient{}
	if err := player.Init(c.audioContext, sampleRate); err != nil {
		return nil, fmt.Errorf("failed to initialize playback client: %w", err)
	}
	if err := player.Start(); err != nil {
		_ = player.Uninit()
		return nil, err
	}
	c.players[sampleRate] = player
	return player, nil
}

func (c *Client) Close() {
	_ = c.captureClient.Uninit()

	c.playersMu.Lock()
	var errs error
	for rate, player := range c.players {
		errs = errors.Join(errs, player.Uninit())
		delete(c.players, rate)
	}
	c.playersMu.Unlock()
	if errs != nil {
		logger.Warn("Failed to release playback devices", "error", errs)
	}

	if c.audioContext != nil {
		_ = c.audioContext.Uninit()
		c.audioContext.Free()
		c.audioContext = nil
	}
}
