package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/JayTiptown/Conduit-coding-test/core/speechtotext"
	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

func (s *TranscriptionClient) Transcribe(ctx context.Context, opts ...speechtotext.TranscriptionOption) error {
	ctx, span := tracer.Start(ctx, "open transcription stream")
	defer span.End()

	options := speechtotext.DefaultTranscriptionOptions()
	for _, opt := range opts {
		opt(&options)
	}

	encoding, err := convertEncoding(options.EncodingInfo)
	if err != nil {
		err = fmt.Errorf("invalid encoding: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetAttributes(
		attribute.String("transcription.model", options.Model),
		attribute.String("transcription.language", options.Language),
		attribute.Int("transcription.sample_rate", encoding.SampleRate),
	)

	conn, err := s.connectWebsocket(ctx, connectionOptions{
		model:       options.Model,
		language:    options.Language,
		smartFormat: options.SmartFormat,
		sampleRate:  encoding.SampleRate,
		channels:    encoding.Channels,
		encoding:    encoding.Format.Name(),
	})
	if err != nil {
		err = fmt.Errorf("failed to open websocket: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	s.connMu.Lock()
	s.conn = conn
	s.readerDone = make(chan struct{})
	s.stopKeep = make(chan struct{})
	s.connMu.Unlock()

	s.closing.Store(false)
	s.lastAudioAt.Store(time.Now().UnixNano())

	go s.readAndProcessMessages(conn, options, s.readerDone)
	go s.keepAlive(s.stopKeep)

	return nil
}

type connectionOptions struct {
	model       string
	language    string
	smartFormat bool
	sampleRate  int
	channels    int
	encoding    string
}

func (s *TranscriptionClient) connectWebsocket(ctx context.Context, options connectionOptions) (*websocket.Conn, error) {
	if s.apiKey == "" {
		return nil, fmt.Errorf("deepgram api key not found")
	}

	listenURL, err := url.Parse(s.listenURL)
	if err != nil {
		return nil, fmt.Errorf("invalid listen url: %w", err)
	}

	queryParams := listenURL.Query()
	queryParams.Set("model", options.model)
	queryParams.Set("language", options.language)
	queryParams.Set("encoding", options.encoding)
	queryParams.Set("sample_rate", strconv.Itoa(options.sampleRate))
	queryParams.Set("channels", strconv.Itoa(options.channels))
	queryParams.Set("smart_format", strconv.FormatBool(options.smartFormat))
	queryParams.Set("interim_results", "false")
	listenURL.RawQuery = queryParams.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, listenURL.String(),
		http.Header{"Authorization": {"Token " + s.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	return conn, nil
}

func (s *TranscriptionClient) SendAudio(audio []byte) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn == nil {
		return speechtotext.ErrNotConnected
	}

	s.lastAudioAt.Store(time.Now().UnixNano())
	if err := s.conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		return fmt.Errorf("failed to write to deepgram client: %w", err)
	}
	return nil
}

func (s *TranscriptionClient) writeControl(messageType string) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn == nil {
		return speechtotext.ErrNotConnected
	}

	return s.conn.WriteJSON(struct {
		Type string `json:"type"`
	}{Type: messageType})
}

// Close asks Deepgram to flush and close the stream, waits briefly for the
// final results, then tears the connection down.
func (s *TranscriptionClient) Close() error {
	if !s.closing.CompareAndSwap(false, true) {
		return nil
	}

	s.connMu.Lock()
	conn, readerDone, stopKeep := s.conn, s.readerDone, s.stopKeep
	s.connMu.Unlock()
	if conn == nil {
		return nil
	}

	close(stopKeep)

	var errs error
	if err := s.writeControl(string(api.TypeCloseStreamResponse)); err != nil && !errors.Is(err, speechtotext.ErrNotConnected) {
		errs = errors.Join(errs, fmt.Errorf("failed to request stream close: %w", err))
	}

	select {
	case <-readerDone:
	case <-time.After(closeStreamWaitLimit):
	}

	s.connMu.Lock()
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			errs = errors.Join(errs, fmt.Errorf("failed to close websocket: %w", err))
		}
		s.conn = nil
	}
	s.connMu.Unlock()

	return errs
}

func (s *TranscriptionClient) readAndProcessMessages(conn *websocket.Conn, options speechtotext.TranscriptionOptions, done chan struct{}) {
	defer close(done)

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			s.connMu.Lock()
			if s.conn == conn {
				s.conn = nil
			}
			s.connMu.Unlock()
			conn.Close()

			if s.closing.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return
			}

			err = fmt.Errorf("deepgram stream failed: %w", err)
			logger.Error("Transcription stream ended unexpectedly", "error", err)
			if options.ErrorCallback != nil {
				options.ErrorCallback(err)
			}
			return
		}

		if msgType != websocket.BinaryMessage {
			s.processMessage(msg, options)
		}
	}
}

// processMessage runs on the read goroutine so words reach the callback in
// the order Deepgram produced them.
func (s *TranscriptionClient) processMessage(msg []byte, options speechtotext.TranscriptionOptions) {
	var parsedMsg struct {
		Type        string `json:"type"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		logger.Warn("Failed to unmarshal deepgram message", "error", err)
		return
	}

	switch api.TypeResponse(parsedMsg.Type) {
	case api.TypeMessageResponse:
		var msgResp api.MessageResponse
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			logger.Warn("Failed to unmarshal deepgram results", "error", err)
			return
		}
		if !msgResp.IsFinal || len(msgResp.Channel.Alternatives) == 0 {
			return
		}
		if options.WordCallback == nil {
			return
		}

		for _, word := range msgResp.Channel.Alternatives[0].Words {
			text := word.PunctuatedWord
			if strings.TrimSpace(text) == "" {
				text = word.Word
			}
			options.WordCallback(speechtotext.Word{
				Text:       text,
				Start:      word.Start,
				End:        word.End,
				Confidence: word.Confidence,
			})
		}

	case typeErrorResponse:
		err := fmt.Errorf("deepgram reported an error: %s", parsedMsg.Description)
		logger.Error("Transcription error", "error", err)
		if options.ErrorCallback != nil {
			options.ErrorCallback(err)
		}
	}
}

const typeErrorResponse api.TypeResponse = "Error"

func (s *TranscriptionClient) keepAlive(stop <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	lastKeepAlive := time.Now()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			sinceAudio := time.Since(time.Unix(0, s.lastAudioAt.Load()))
			if sinceAudio < keepAliveInterval || time.Since(lastKeepAlive) < keepAliveInterval {
				continue
			}

			lastKeepAlive = time.Now()
			if err := s.writeControl("KeepAlive"); err != nil {
				logger.Warn("Failed to send keep alive to deepgram", "error", err)
			}
		}
	}
}
