package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"docshub/core"
)

type (
	// Callbacks surface room events to the embedding application. All
	// callbacks are invoked from the session's read goroutine; a nil
	// callback is skipped.
	Callbacks struct {
		// OnMessage receives every broadcast delivered by the room.
		OnMessage func(core.Message)
		// OnSnapshot fires with the canonical resource state after the
		// initial load and after every successful reconnect, before any
		// further deltas are delivered.
		OnSnapshot func(*Snapshot)
		// OnStateChange reports reconnect state transitions; attempt is
		// meaningful for StateReconnecting.
		OnStateChange func(state SessionState, attempt int)
		// OnSaveError reports a failed durable write. Saves are not
		// retried automatically and the failure is not broadcast.
		OnSaveError func(error)
	}

	// Options configures a collaboration session.
	Options struct {
		BaseURL string // http(s) origin of the server
		Token   string
		Key     core.ResourceKey

		// QuietInterval is the debounce window for durable saves.
		// Defaults to DefaultQuietInterval.
		QuietInterval time.Duration

		// Backoff overrides the reconnect schedule. Zero value means
		// DefaultBackoff.
		Backoff Backoff

		Callbacks Callbacks
	}

	// Session is one live client-side editing session: it mirrors the
	// editor state, broadcasts local edits immediately, coalesces them
	// into debounced durable writes, and owns the reconnect loop.
	Session struct {
		opts      Options
		api       *API
		debouncer *Debouncer
		backoff   Backoff

		mu      sync.Mutex // guards ws, state, attempt, local snapshot, closing
		wmu     sync.Mutex // serializes transport writes
		ws      *websocket.Conn
		state   SessionState
		attempt int
		closing bool

		title   string
		content string
		data    json.RawMessage

		done      chan struct{}
		closeOnce sync.Once
	}
)

// Dial loads the canonical snapshot through the read collaborator,
// opens the room channel and starts the session.
func Dial(ctx context.Context, opts Options) (*Session, error) {
	if opts.Backoff.MaxAttempts == 0 {
		opts.Backoff = DefaultBackoff()
	}

	s := &Session{
		opts:      opts,
		api:       NewAPI(opts.BaseURL, opts.Token),
		debouncer: NewDebouncer(opts.QuietInterval),
		backoff:   opts.Backoff,
		state:     StateConnected,
		done:      make(chan struct{}),
	}

	snapshot, err := s.api.Fetch(ctx, opts.Key)
	if err != nil {
		return nil, fmt.Errorf("initial snapshot load: %w", err)
	}
	s.applySnapshot(snapshot)

	ws, err := s.dialRoom(ctx)
	if err != nil {
		return nil, err
	}
	s.ws = ws

	if cb := s.opts.Callbacks.OnSnapshot; cb != nil {
		cb(snapshot)
	}

	go s.readLoop()
	return s, nil
}

// SendContent reflects a local document edit: mirror it, broadcast it
// to the room and schedule a debounced durable save.
func (s *Session) SendContent(content string) error {
	s.mu.Lock()
	s.content = content
	s.mu.Unlock()

	s.scheduleSave()
	return s.writeMessage(core.ContentUpdate{Content: content})
}

// SendTitle reflects a local title edit.
func (s *Session) SendTitle(title string) error {
	s.mu.Lock()
	s.title = title
	s.mu.Unlock()

	s.scheduleSave()
	return s.writeMessage(core.TitleUpdate{Title: title})
}

// SendCells broadcasts a batch of cell edits. fullData is the complete
// grid after the edits; it becomes the snapshot that the debounced
// save persists. The broadcast carries only the delta.
func (s *Session) SendCells(changes []core.CellEdit, fullData json.RawMessage) error {
	if fullData != nil {
		s.mu.Lock()
		s.data = fullData
		s.mu.Unlock()
	}

	s.scheduleSave()
	return s.writeMessage(core.CellChange{Changes: changes})
}

// State returns the reconnect state and the current attempt count.
func (s *Session) State() (SessionState, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.attempt
}

// Snapshot returns the session's mirror of the editor state.
func (s *Session) Snapshot() (title, content string, data json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title, s.content, s.data
}

// Close tears the session down, flushing any pending durable save
// first so a burst of edits right before closing is not lost.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closing = true
	ws := s.ws
	s.mu.Unlock()

	s.closeOnce.Do(func() { close(s.done) })
	s.debouncer.Flush(s.opts.Key.String())
	s.debouncer.Stop()

	if ws != nil {
		s.wmu.Lock()
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.wmu.Unlock()
		return ws.Close()
	}
	return nil
}

func (s *Session) readLoop() {
	for {
		s.mu.Lock()
		ws := s.ws
		s.mu.Unlock()

		_, data, err := ws.ReadMessage()
		if err != nil {
			if s.isClosing() {
				s.setState(StateClosed)
				return
			}
			if code, fatal := fatalCloseCode(err); fatal {
				logrus.WithField("code", code).Warn("room channel closed by server, not retrying")
				s.setState(StateGivenUp)
				return
			}
			if !s.reconnect() {
				return
			}
			continue
		}

		msg, err := core.DecodeMessage(data)
		if err != nil {
			logrus.WithError(err).Debug("discarding undecodable broadcast")
			continue
		}
		s.applyMessage(msg)
		if cb := s.opts.Callbacks.OnMessage; cb != nil {
			cb(msg)
		}
	}
}

// reconnect runs the backoff schedule until a dial and snapshot
// re-fetch both succeed, attempts run out, or the session is closed.
// The snapshot re-fetch must succeed before deltas are accepted again:
// missed broadcasts are not replayed, so the stale local state cannot
// be trusted.
func (s *Session) reconnect() bool {
	for {
		delay, ok := s.backoff.Next()
		if !ok {
			logrus.Warn("reconnect attempts exhausted, giving up")
			s.setState(StateGivenUp)
			return false
		}

		s.mu.Lock()
		s.state = StateReconnecting
		s.attempt = s.backoff.Attempt()
		attempt := s.attempt
		s.mu.Unlock()
		s.notifyState(StateReconnecting, attempt)

		select {
		case <-time.After(delay):
		case <-s.done:
			s.setState(StateClosed)
			return false
		}

		ws, err := s.dialRoom(context.Background())
		if err != nil {
			logrus.WithError(err).WithField("attempt", attempt).Debug("reconnect dial failed")
			continue
		}

		snapshot, err := s.api.Fetch(context.Background(), s.opts.Key)
		if err != nil {
			ws.Close()
			if errors.Is(err, core.ErrForbidden) || errors.Is(err, core.ErrUnauthenticated) {
				s.setState(StateGivenUp)
				return false
			}
			logrus.WithError(err).Debug("snapshot re-fetch failed")
			continue
		}

		s.mu.Lock()
		s.ws = ws
		s.state = StateConnected
		s.attempt = 0
		s.mu.Unlock()
		s.applySnapshot(snapshot)
		s.backoff.Reset()

		if cb := s.opts.Callbacks.OnSnapshot; cb != nil {
			cb(snapshot)
		}
		s.notifyState(StateConnected, 0)
		logrus.WithField("room", s.opts.Key.String()).Info("reconnected")
		return true
	}
}

func (s *Session) dialRoom(ctx context.Context) (*websocket.Conn, error) {
	wsBase := s.opts.BaseURL
	if strings.HasPrefix(wsBase, "https://") {
		wsBase = "wss://" + strings.TrimPrefix(wsBase, "https://")
	} else if strings.HasPrefix(wsBase, "http://") {
		wsBase = "ws://" + strings.TrimPrefix(wsBase, "http://")
	}
	endpoint := fmt.Sprintf("%s/ws/%s/%s?token=%s",
		wsBase, s.opts.Key.Kind, s.opts.Key.ID, url.QueryEscape(s.opts.Token))

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing room channel: %w", err)
	}
	return ws, nil
}

// scheduleSave coalesces local edits into one durable full-snapshot
// write per quiet interval. The snapshot is captured at fire time, not
// schedule time, so the write always carries the latest state.
func (s *Session) scheduleSave() {
	s.debouncer.Schedule(s.opts.Key.String(), func() {
		s.mu.Lock()
		save := SaveRequest{Title: strptr(s.title)}
		if s.opts.Key.Kind == core.KindDocument {
			save.Content = strptr(s.content)
		} else {
			save.Data = s.data
		}
		s.mu.Unlock()

		if err := s.api.Save(context.Background(), s.opts.Key, save); err != nil {
			logrus.WithError(err).WithField("room", s.opts.Key.String()).Warn("durable save failed")
			if cb := s.opts.Callbacks.OnSaveError; cb != nil {
				cb(err)
			}
		}
	})
}

// applyMessage keeps the session's mirror of the editor state current
// with remote edits, so a debounced save fired after a peer's update
// persists what the editor actually shows.
func (s *Session) applyMessage(m core.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch msg := m.(type) {
	case core.ContentUpdate:
		s.content = msg.Content
	case core.TitleUpdate:
		s.title = msg.Title
	}
}

func (s *Session) applySnapshot(snapshot *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.title = snapshot.Title
	s.content = snapshot.Content
	if snapshot.Data != nil {
		s.data = snapshot.Data
	}
}

func (s *Session) writeMessage(m core.Message) error {
	s.mu.Lock()
	ws := s.ws
	connected := s.state == StateConnected && !s.closing
	s.mu.Unlock()

	if !connected {
		// The edit stays mirrored locally and is persisted by the
		// debounced save; only the live broadcast is skipped.
		return fmt.Errorf("room channel not connected")
	}

	data, err := core.EncodeMessage(m)
	if err != nil {
		return err
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()
	return ws.WriteMessage(websocket.TextMessage, data)
}

func (s *Session) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	s.state = state
	attempt := s.attempt
	s.mu.Unlock()
	s.notifyState(state, attempt)
}

func (s *Session) notifyState(state SessionState, attempt int) {
	if cb := s.opts.Callbacks.OnStateChange; cb != nil {
		cb(state, attempt)
	}
}

// fatalCloseCode reports close codes that must not be retried:
// unauthenticated, forbidden, and a server-initiated normal closure.
func fatalCloseCode(err error) (int, bool) {
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		return 0, false
	}
	switch closeErr.Code {
	case core.CloseUnauthenticated, core.CloseForbidden, websocket.CloseNormalClosure:
		return closeErr.Code, true
	}
	return 0, false
}

func strptr(s string) *string { return &s }
