package miniaudio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

type playbackClient struct {
	device *malgo.Device

	mu            sync.Mutex
	leftoverAudio []byte
	marks         []playbackMark
}

// playbackMark is released once the audio queued ahead of it has been
// handed to the device.
type playbackMark struct {
	remaining int
	done      chan struct{}
}

func (c *playbackClient) Init(audioContext *malgo.AllocatedContext, sampleRate int) error {
	format := malgo.FormatS16
	channels := 1
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.SampleRate = uint32(sampleRate)
	config.Playback.Format = format
	config.Playback.Channels = uint32(channels)
	config.Alsa.NoMMap = 1
	config.PeriodSizeInFrames = uint32(sampleRate / 10) // ~100ms of audio
	config.Periods = 4

	device, err := malgo.InitDevice(audioContext.Context, config, malgo.DeviceCallbacks{
		Data: c.processAudio(bytesPerFrame),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}
	c.device = device
	return nil
}

func (c *playbackClient) Start() error {
	if c.device == nil {
		return fmt.Errorf("device not initialized")
	}
	if err := c.device.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}
	return nil
}

func (c *playbackClient) Play(ctx context.Context, pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.leftoverAudio = append(c.leftoverAudio, pcm...)
	c.marks = append(c.marks, playbackMark{remaining: len(c.leftoverAudio), done: done})
	c.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		c.ClearBuffer()
		return ctx.Err()
	}
}

// ClearBuffer drops queued audio and releases every waiting mark.
func (c *playbackClient) ClearBuffer() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.leftoverAudio = nil
	for _, mark := range c.marks {
		close(mark.done)
	}
	c.marks = nil
}

func (c *playbackClient) Uninit() error {
	c.ClearBuffer()
	if c.device == nil {
		return nil
	}
	c.device.Uninit()
	c.device = nil
	return nil
}

func (c *playbackClient) processAudio(bytesPerFrame int) malgo.DataProc {
	return func(pOutput, _ []byte, frameCount uint32) {
		need := min(int(frameCount)*bytesPerFrame, len(pOutput))

		c.mu.Lock()
		defer c.mu.Unlock()

		n := copy(pOutput[:need], c.leftoverAudio)
		clear(pOutput[n:need])
		c.leftoverAudio = c.leftoverAudio[n:]

		passed := 0
		for i := range c.marks {
			c.marks[i].remaining -= n
			if c.marks[i].remaining <= 0 {
				close(c.marks[i].done)
				passed++
			}
		}
		c.marks = c.marks[passed:]
	}
}
