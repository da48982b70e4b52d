// Package session is the client-side chat state machine shared by the terminal and Telegram front ends.
package session

import (
	"context"
	"errors"
	"io"
	"log"
	"sort"
	"strings"
	"sync"

	"portal-chat/internal/chat"
	"portal-chat/internal/client"
)

var (
	// ErrBusy is returned when a message is sent while a turn is in flight.
	ErrBusy = errors.New("a message is already being sent")
	// ErrEmptyMessage is returned for blank input.
	ErrEmptyMessage = client.ErrEmptyMessage
	// ErrDiscarded is returned when Clear ran while the turn was in flight.
	ErrDiscarded = errors.New("turn discarded after clear")
)

type State int

const (
	Idle State = iota
	Sending
)

func (s State) String() string {
	if s == Sending {
		return "sending"
	}
	return "idle"
}

// Events is one streamed turn. *client.EventStream implements it.
type Events interface {
	Next() (chat.Event, error)
	Close() error
}

// Invoker starts streamed turns.
type Invoker interface {
	Stream(ctx context.Context, req client.StreamRequest) (Events, error)
}

type clientInvoker struct{ c *client.Client }

func (i clientInvoker) Stream(ctx context.Context, req client.StreamRequest) (Events, error) {
	return i.c.Stream(ctx, req)
}

// ClientInvoker adapts the agent client to Invoker.
func ClientInvoker(c *client.Client) Invoker { return clientInvoker{c: c} }

// Listener callbacks run on the sending goroutine, in event order. Nil fields are skipped.
type Listener struct {
	// MessagesChanged receives a copy of the full transcript.
	MessagesChanged func(messages []chat.Message)
	Token           func(token string)
	Tool            func(ev chat.ToolEvent)
}

type Options struct {
	Agent string
	// Storage and StorageKey enable transcript persistence.
	Storage    Storage
	StorageKey string
}

type Manager struct {
	invoker Invoker
	agent   string
	storage Storage
	key     string

	mu         sync.Mutex
	state      State
	generation uint64
	sessionID  string
	messages   []chat.Message
	listeners  map[int]Listener
	nextID     int
	// version numbers transcript snapshots; saves older than saved are skipped.
	version uint64

	saveMu sync.Mutex
	saved  uint64
}

// New creates a manager and restores the stored transcript, if any.
func New(inv Invoker, opts Options) *Manager {
	m := &Manager{
		invoker:   inv,
		agent:     opts.Agent,
		storage:   opts.Storage,
		key:       opts.StorageKey,
		listeners: make(map[int]Listener),
	}
	m.loadFromStorage()
	return m
}

func (m *Manager) loadFromStorage() {
	if m.storage == nil {
		return
	}
	t, ok, err := m.storage.Load(m.key)
	if err != nil {
		log.Printf("⚠️ failed to load transcript %s: %v", m.key, err)
		return
	}
	if !ok {
		return
	}
	m.sessionID = t.SessionID
	m.messages = append([]chat.Message(nil), t.Messages...)
}

// Subscribe registers l and returns a function that removes it.
func (m *Manager) Subscribe(l Listener) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = l
	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// SendUserMessage runs one turn and blocks until it completes.
// On failure the user message stays in the transcript and no assistant message is added.
func (m *Manager) SendUserMessage(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	m.mu.Lock()
	if m.state == Sending {
		m.mu.Unlock()
		return ErrBusy
	}
	m.state = Sending
	gen := m.generation
	m.messages = append(m.messages, chat.Message{Payload: text, User: true})
	req := client.StreamRequest{UserMessage: text, SessionID: m.sessionID, NewSession: m.sessionID == "", Agent: m.agent}
	m.mu.Unlock()
	m.messagesChanged()

	answer, err := m.runTurn(ctx, gen, req)

	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		return ErrDiscarded
	}
	m.state = Idle
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.messages = append(m.messages, chat.Message{Payload: answer, User: false})
	m.mu.Unlock()
	m.messagesChanged()
	return nil
}

func (m *Manager) runTurn(ctx context.Context, gen uint64, req client.StreamRequest) (string, error) {
	events, err := m.invoker.Stream(ctx, req)
	if err != nil {
		return "", err
	}
	defer events.Close()

	var sb strings.Builder
	for {
		ev, err := events.Next()
		if errors.Is(err, io.EOF) {
			return sb.String(), nil
		}
		if err != nil {
			return "", err
		}
		if !m.current(gen) {
			return "", ErrDiscarded
		}
		switch e := ev.(type) {
		case chat.ResponseEvent:
			m.mu.Lock()
			stale := m.generation != gen
			if !stale {
				m.sessionID = e.SessionID
			}
			m.mu.Unlock()
			if stale {
				return "", ErrDiscarded
			}
			m.messagesChanged()
		case chat.ChunkEvent:
			sb.WriteString(e.Token)
			for _, l := range m.snapshotListeners() {
				if l.Token != nil {
					l.Token(e.Token)
				}
			}
		case chat.ToolEvent:
			for _, l := range m.snapshotListeners() {
				if l.Tool != nil {
					l.Tool(e)
				}
			}
		}
	}
}

func (m *Manager) current(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation == gen
}

// Clear empties the transcript and forgets the session id. An in-flight turn is not
// cancelled; its result is dropped when it arrives.
func (m *Manager) Clear() {
	m.mu.Lock()
	m.generation++
	m.messages = nil
	m.sessionID = ""
	m.state = Idle
	m.mu.Unlock()
	m.messagesChanged()
}

// messagesChanged notifies listeners and persists the transcript.
func (m *Manager) messagesChanged() {
	m.mu.Lock()
	m.version++
	v := m.version
	t := Transcript{SessionID: m.sessionID, Messages: append([]chat.Message(nil), m.messages...)}
	m.mu.Unlock()

	m.persist(v, t)
	for _, l := range m.snapshotListeners() {
		if l.MessagesChanged != nil {
			l.MessagesChanged(append([]chat.Message(nil), t.Messages...))
		}
	}
}

func (m *Manager) persist(v uint64, t Transcript) {
	if m.storage == nil {
		return
	}
	m.saveMu.Lock()
	defer m.saveMu.Unlock()
	if v <= m.saved {
		return
	}
	if err := m.storage.Save(m.key, t); err != nil {
		log.Printf("⚠️ failed to save transcript %s: %v", m.key, err)
		return
	}
	m.saved = v
}

func (m *Manager) snapshotListeners() []Listener {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int, 0, len(m.listeners))
	for id := range m.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]Listener, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.listeners[id])
	}
	return out
}

func (m *Manager) Messages() []chat.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]chat.Message(nil), m.messages...)
}

func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation
}
