package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/roomrelay/internal/core"
	"github.com/vovakirdan/roomrelay/internal/proto"
)

// WSOptions tunes the websocket endpoint.
type WSOptions struct {
	// ReadLimit caps a single inbound frame in bytes; zero keeps the library default.
	ReadLimit          int64
	InsecureSkipVerify bool
}

// WSHandler upgrades HTTP connections and bridges them to a core.Session.
type WSHandler struct {
	dir  *core.Directory
	opts core.SessionOptions
	ws   WSOptions
	log  *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(dir *core.Directory, opts core.SessionOptions, ws WSOptions, logger *zerolog.Logger) stdhttp.Handler {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &WSHandler{dir: dir, opts: opts, ws: ws, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: h.ws.InsecureSkipVerify,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()

	if h.ws.ReadLimit > 0 {
		conn.SetReadLimit(h.ws.ReadLimit)
	}

	logger := h.log.With().Str("conn_id", uuid.NewString()).Logger()
	session := core.NewSession(h.dir, h.opts, &logger)

	g, ctx := errgroup.WithContext(r.Context())
	session.Open(ctx, textWriter{conn: conn})
	logger.Info().Uint64("client_id", uint64(session.ID())).Msg("client connected")

	g.Go(func() error {
		err := <-session.RelayDone()
		if errors.Is(err, core.ErrRelayOverflow) {
			// The overflow watcher owns the close handshake.
			return nil
		}
		return err
	})
	g.Go(func() error {
		defer session.Close()
		return h.readLoop(ctx, conn, session, &logger)
	})
	g.Go(func() error {
		select {
		case <-session.Overflowed():
		case <-ctx.Done():
			return nil
		}
		// The relay may be stuck writing to this peer, so clean up from here.
		session.Close()
		logger.Warn().Msg("closing slow client")
		conn.Close(websocket.StatusPolicyViolation, "outbound queue overflow")
		return core.ErrRelayOverflow
	})

	err = g.Wait()
	logger.Info().Str("user", session.Username()).Msg("client disconnected")

	select {
	case <-session.Overflowed():
		return
	default:
	}

	status := websocket.StatusNormalClosure
	reason := "closing"
	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.Is(err, io.EOF):
	case websocket.CloseStatus(err) == websocket.StatusNormalClosure,
		websocket.CloseStatus(err) == websocket.StatusGoingAway:
	default:
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		} else {
			status = websocket.StatusInternalError
		}
		reason = "connection error"
		logger.Warn().Err(err).Msg("ws connection closed with error")
	}

	conn.Close(status, reason)
}

// readLoop feeds decoded frames to the session until the transport fails.
// Frames that are not text or do not decode are dropped.
func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, session *core.Session, logger *zerolog.Logger) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			continue
		}

		msg, err := proto.Decode(data)
		if err != nil {
			logger.Debug().Err(err).Msg("drop undecodable inbound")
			continue
		}
		session.Handle(msg)
	}
}

// textWriter writes relay payloads as websocket text frames.
type textWriter struct {
	conn *websocket.Conn
}

func (w textWriter) WriteText(ctx context.Context, text string) error {
	return w.conn.Write(ctx, websocket.MessageText, []byte(text))
}
