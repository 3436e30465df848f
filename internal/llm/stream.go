package llm

import (
	"errors"
	"io"
	"strings"
	"sync"
	"time"
)

// Stream iterates over the chunks of a streaming invocation:
//
//	for stream.Next() {
//		fmt.Print(stream.Current().Text)
//	}
//	if err := stream.Err(); err != nil { ... }
//
// Accounting happens once, when the upstream reports a stop reason, ends,
// fails or the stream is closed.
type Stream struct {
	id      string
	client  *Client
	events  EventStream
	started time.Time

	mu      sync.Mutex
	text    strings.Builder
	current Chunk
	err     error
	done    bool
	once    sync.Once
}

// ID returns the registry id of the stream
func (s *Stream) ID() string {
	return s.id
}

// Next advances to the next non-empty chunk
func (s *Stream) Next() bool {
	for {
		s.mu.Lock()
		done := s.done
		s.mu.Unlock()
		if done {
			return false
		}

		raw, err := s.events.Recv()
		if errors.Is(err, io.EOF) {
			s.finish(StatusSuccess, nil)
			return false
		}
		if err != nil {
			s.finish(StatusFailed, s.client.classify(err))
			return false
		}

		chunk, err := s.client.parser.ParseChunk(raw)
		if err != nil {
			s.finish(StatusFailed, err)
			return false
		}
		if chunk.Text == "" && chunk.StopReason == "" {
			continue
		}

		s.mu.Lock()
		if s.done {
			s.mu.Unlock()
			return false
		}
		s.text.WriteString(chunk.Text)
		s.current = chunk
		s.mu.Unlock()

		if chunk.StopReason != "" {
			s.finish(StatusSuccess, nil)
		}
		return true
	}
}

// Current returns the chunk produced by the last successful Next
func (s *Stream) Current() Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Text returns everything received so far
func (s *Stream) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text.String()
}

// Err returns the error that ended the stream, if any
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close abandons the stream and releases the upstream. Closing a finished
// stream is a no-op.
func (s *Stream) Close() error {
	s.finish(StatusCancelled, nil)
	return nil
}

// finish runs terminal accounting exactly once
func (s *Stream) finish(status string, err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.done = true
		s.err = err
		text := s.text.String()
		s.mu.Unlock()

		if closeErr := s.events.Close(); closeErr != nil {
			s.client.logger.Debug().Err(closeErr).Str("stream_id", s.id).Msg("Error closing upstream stream")
		}
		s.client.deregister(s.id)

		c := s.client
		latency := time.Since(s.started)
		c.metrics.TokensUsed(c.cfg.ModelID, TokensOutput, EstimateTokens(text))
		c.metrics.RequestCompleted(c.cfg.ModelID, status, latency)
		c.metrics.RequestFinished()

		event := c.logger.Debug()
		if err != nil {
			event = c.logger.Error().Err(err)
		}
		event.
			Str("stream_id", s.id).
			Str("status", status).
			Dur("latency", latency).
			Int("output_length", len(text)).
			Msg("Model stream finished")
	})
}
