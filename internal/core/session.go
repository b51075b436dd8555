package core

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// State is a connection's position in its lifecycle.
type State int

const (
	// StateConnecting means the transport is up but no identity is assigned yet.
	StateConnecting State = iota
	// StateUnauthenticated means the identity is allocated and the relay runs, but no username is set.
	StateUnauthenticated
	// StateActive means the client is registered in a room.
	StateActive
	// StateTerminated is absorbing: the client is unregistered and its relay closed.
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateActive:
		return "active"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// RenamePolicy decides what a repeated SetUsername does once a client is active.
type RenamePolicy int

const (
	// RenameIgnore drops the repeated SetUsername.
	RenameIgnore RenamePolicy = iota
	// RenameRename changes the username in place and announces it as a leave followed by a join.
	RenameRename
)

// SessionOptions configures a Session.
type SessionOptions struct {
	Relay  RelayOptions
	Rename RenamePolicy
}

// Session drives the lifecycle of one connection against the Directory.
// Handle and Close may be called from different goroutines; opMu serializes
// them so a state transition and its directory call happen as one step.
// The relay is drained by a separate goroutine started in Open.
type Session struct {
	dir   *Directory
	opts  SessionOptions
	log   zerolog.Logger
	relay *Relay

	opMu sync.Mutex

	mu       sync.Mutex
	state    State
	id       ClientID
	username string

	relayDone chan error
	closeOnce sync.Once
}

// NewSession creates a session in the Connecting state.
func NewSession(dir *Directory, opts SessionOptions, logger *zerolog.Logger) *Session {
	log := zerolog.Nop()
	if logger != nil {
		log = *logger
	}
	return &Session{
		dir:       dir,
		opts:      opts,
		log:       log,
		relay:     NewRelay(opts.Relay),
		relayDone: make(chan error, 1),
	}
}

// Open allocates the identity and starts forwarding queued messages to w.
// The relay goroutine ends when the session closes, a write fails, or ctx ends;
// its result is reported on RelayDone.
func (s *Session) Open(ctx context.Context, w Writer) ClientID {
	s.mu.Lock()
	if s.state != StateConnecting {
		id := s.id
		s.mu.Unlock()
		return id
	}
	s.id = s.dir.AllocateIdentity()
	s.state = StateUnauthenticated
	s.log = s.log.With().Uint64("client_id", uint64(s.id)).Logger()
	id := s.id
	s.mu.Unlock()

	go func() {
		s.relayDone <- s.relay.Run(ctx, w)
	}()

	s.log.Debug().Msg("session opened")
	return id
}

// RelayDone yields the relay's exit error once forwarding stops.
func (s *Session) RelayDone() <-chan error {
	return s.relayDone
}

// ID returns the allocated identity, or zero while connecting.
func (s *Session) ID() ClientID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Username returns the name set by the join handshake, if any.
func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

// Overflowed is closed when the session's relay is shut down by the disconnect policy.
func (s *Session) Overflowed() <-chan struct{} {
	return s.relay.Overflowed()
}

// Handle applies one decoded inbound message. Messages that do not fit the
// current state are dropped.
func (s *Session) Handle(msg Inbound) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	switch m := msg.(type) {
	case SetUsername:
		s.setUsername(m)
	case Chat:
		s.chat(m)
	}
}

func (s *Session) setUsername(m SetUsername) {
	if m.Name == "" {
		return
	}

	s.mu.Lock()
	state, id, current := s.state, s.id, s.username
	s.mu.Unlock()

	switch state {
	case StateUnauthenticated:
		room := m.Room
		if room == "" {
			room = s.dir.DefaultRoom()
		}
		if err := s.dir.Register(id, m.Name, room, s.relay); err != nil {
			s.log.Warn().Err(err).Msg("register client")
			return
		}
		s.mu.Lock()
		s.state = StateActive
		s.username = m.Name
		s.mu.Unlock()

		s.dir.Broadcast(room, JoinedText(m.Name))
		s.log.Debug().Str("user", m.Name).Str("room", room).Msg("client joined")
	case StateActive:
		if s.opts.Rename != RenameRename || m.Name == current {
			s.log.Debug().Str("user", current).Msg("repeated username ignored")
			return
		}
		previous, room, err := s.dir.Rename(id, m.Name)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.username = m.Name
		s.mu.Unlock()

		s.dir.BroadcastBatch(room, LeftText(previous), JoinedText(m.Name))
		s.log.Debug().Str("from", previous).Str("to", m.Name).Msg("client renamed")
	default:
		s.log.Debug().Stringer("state", state).Msg("username dropped")
	}
}

func (s *Session) chat(m Chat) {
	s.mu.Lock()
	state, id, name := s.state, s.id, s.username
	s.mu.Unlock()

	if state != StateActive {
		s.log.Debug().Stringer("state", state).Msg("chat dropped")
		return
	}
	room, ok := s.dir.LookupRoom(id)
	if !ok {
		return
	}
	s.dir.Broadcast(room, ChatText(name, m.Text))
}

// Close terminates the session: the client is unregistered, its former room
// is told it left, and the relay stops accepting messages. Close is idempotent
// and never blocks on the transport.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.opMu.Lock()
		defer s.opMu.Unlock()

		s.mu.Lock()
		previous, id := s.state, s.id
		s.state = StateTerminated
		s.mu.Unlock()

		if previous != StateConnecting {
			if rec, ok := s.dir.Unregister(id); ok {
				s.dir.Broadcast(rec.Room, LeftText(rec.Username))
				s.log.Debug().Str("user", rec.Username).Str("room", rec.Room).Msg("client left")
			}
		}
		s.relay.Close()
		s.log.Debug().Msg("session closed")
	})
}
