package deepgram

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultListenURL     = "wss://api.deepgram.com/v1/listen"
	keepAliveInterval    = 5 * time.Second
	closeStreamWaitLimit = time.Second
)

type TranscriptionClient struct {
	apiKey    string
	listenURL string

	connMu sync.Mutex
	conn   *websocket.Conn

	// lastAudioAt is the unix-nano timestamp of the last audio written.
	lastAudioAt atomic.Int64
	closing     atomic.Bool

	readerDone chan struct{}
	stopKeep   chan struct{}
}

type ClientOption func(*TranscriptionClient)

// WithListenURL points the client at a different listen endpoint.
func WithListenURL(listenURL string) ClientOption {
	return func(c *TranscriptionClient) {
		if listenURL != "" {
			c.listenURL = listenURL
		}
	}
}

func NewTranscriptionClient(apiKey string, opts ...ClientOption) *TranscriptionClient {
	client := &TranscriptionClient{
		apiKey:    apiKey,
		listenURL: defaultListenURL,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}
