package client

import (
	"errors"
	"io"
	"sync"

	"portal-chat/internal/chat"
)

// EventStream yields the events of one streamed turn in emission order.
type EventStream struct {
	body io.ReadCloser
	dec  *chat.Decoder

	mu   sync.Mutex
	err  error
	once sync.Once
}

// Next returns the next event, io.EOF after the last one. Any other error ends the stream.
func (s *EventStream) Next() (chat.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	ev, err := s.dec.Decode()
	if err != nil {
		s.err = err
		_ = s.close()
		return nil, err
	}
	return ev, nil
}

// Close releases the connection. Safe to call more than once.
func (s *EventStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = errors.New("stream closed")
	}
	return s.close()
}

func (s *EventStream) close() error {
	var err error
	s.once.Do(func() { err = s.body.Close() })
	return err
}
