package gateway

import (
	"context"
	goerrors "errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"chat-gateway/domain"
	"chat-gateway/domain/event"
	"chat-gateway/errors"
	"chat-gateway/services"
	"chat-gateway/sink"

	"github.com/gorilla/websocket"
)

// maxFrameBytes bounds any single inbound frame before payload-level
// length checks apply.
const maxFrameBytes = 64 * 1024

const leaveTimeout = 5 * time.Second

type SessionConfig struct {
	BufferSize      int
	DeliveryTimeout time.Duration
	WriteTimeout    time.Duration
	PongTimeout     time.Duration
}

// Session drives one authenticated connection through its lifetime:
// welcome sequence, inbound dispatch loop, write pump, and a teardown
// path that runs exactly once no matter what triggered it.
type Session struct {
	conn *websocket.Conn
	sink *sink.ChannelSink
	user domain.User
	chat services.IChatService
	log  *slog.Logger
	cfg  SessionConfig

	cancel    context.CancelFunc
	closeOnce sync.Once
}

func NewSession(log *slog.Logger, conn *websocket.Conn, user domain.User,
	chat services.IChatService, cfg SessionConfig) *Session {
	return &Session{
		conn: conn,
		sink: sink.NewChannelSink(log, cfg.BufferSize, cfg.DeliveryTimeout),
		user: user,
		chat: chat,
		log:  log.With("user_id", user.ID),
		cfg:  cfg,
	}
}

// Run blocks until the session ends. The caller already authenticated
// the connection; Run activates it, pumps events both ways, and tears
// everything down when the transport closes or errors.
func (s *Session) Run(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	defer s.teardown()

	if err := s.chat.Join(ctx, s.user, s.sink); err != nil {
		s.log.Error("Welcome sequence failed", "error", err)
		return
	}

	go s.writePump(ctx)
	s.readPump(ctx)
}

// teardown releases everything the session holds. Guarded so the read
// side, the write side, and a replacement eviction can all trigger it
// without running the presence broadcast twice.
func (s *Session) teardown() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.sink.Close()
		_ = s.conn.Close()

		// The session context is already canceled; the offline
		// broadcast gets its own bounded one.
		leaveCtx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
		defer cancel()
		s.chat.Leave(leaveCtx, s.user.ID, s.sink)

		s.log.Debug("Session closed")
	})
}

func (s *Session) readPump(ctx context.Context) {
	s.conn.SetReadLimit(maxFrameBytes)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			s.logReadEnd(err)
			return
		}
		s.dispatch(ctx, raw)
	}
}

// dispatch routes one inbound frame. Validation failures and routing
// errors come back to this session only, as error events; they never
// end the connection.
func (s *Session) dispatch(ctx context.Context, raw []byte) {
	env, err := DecodeEnvelope(raw)
	if err != nil {
		s.log.Debug("Dropping malformed frame", "error", err)
		s.reportError(ctx, "unrecognized frame")
		return
	}

	switch env.Event {
	case EventSendMessage:
		cmd, err := env.SendMessageCommand(s.user.ID)
		if err != nil {
			s.reportError(ctx, "invalid send_message payload")
			return
		}
		if err := s.chat.SendMessage(ctx, cmd); err != nil {
			s.log.Warn("send_message failed", "error", err)
			s.reportError(ctx, userFacing(err))
		}

	case EventGetPrivateMessages:
		cmd, err := env.PrivateMessagesCommand(s.user.ID)
		if err != nil {
			s.reportError(ctx, "invalid get_private_messages payload")
			return
		}
		if err := s.chat.PrivateHistory(ctx, cmd, s.sink); err != nil {
			s.log.Warn("get_private_messages failed", "error", err)
			s.reportError(ctx, "could not fetch private messages")
		}

	default:
		s.log.Debug("Ignoring unknown event", "event", env.Event)
	}
}

// reportError queues an error event on the session's own sink so it
// keeps its place in the outbound ordering.
func (s *Session) reportError(ctx context.Context, message string) {
	if err := s.sink.Consume(ctx, event.Error{Message: message}); err != nil {
		s.log.Debug("Error event dropped", "error", err)
	}
}

func (s *Session) writePump(ctx context.Context) {
	// Pings go out well inside the pong window so one lost frame does
	// not kill a healthy connection.
	ticker := time.NewTicker(s.cfg.PongTimeout * 9 / 10)
	defer func() {
		ticker.Stop()
		s.teardown()
	}()

	for {
		select {
		case <-ctx.Done():
			s.writeCloseFrame()
			return
		case <-s.sink.Done():
			// A newer connection for this user evicted us.
			s.writeCloseFrame()
			return
		case evt := <-s.sink.Events:
			if !s.writeEvent(evt) {
				return
			}
		case <-ticker.C:
			if !s.writePing() {
				return
			}
		}
	}
}

func (s *Session) writeEvent(e event.DomainEvent) bool {
	payload, err := MarshalEvent(e)
	if err != nil {
		s.log.Error("Event marshaling failed", "event", e.EventName(), "error", err)
		return true
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		s.log.Debug("Write failed", "event", e.EventName(), "error", err)
		return false
	}
	return true
}

func (s *Session) writePing() bool {
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		s.log.Debug("Ping failed", "error", err)
		return false
	}
	return true
}

func (s *Session) writeCloseFrame() {
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	_ = s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (s *Session) logReadEnd(err error) {
	switch {
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		s.log.Debug("Peer disconnected", "reason", err)
	case goerrors.Is(err, io.EOF), isExpectedCloseError(err):
		s.log.Debug("Connection closed", "reason", err)
	default:
		s.log.Warn("Read error", "error", err)
	}
}

// isExpectedCloseError matches the network errors a closing connection
// produces in normal operation.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}

func userFacing(err error) string {
	switch {
	case goerrors.Is(err, errors.ErrEmptyContent):
		return "message content is empty"
	case goerrors.Is(err, errors.ErrContentTooLong):
		return "message content is too long"
	case goerrors.Is(err, errors.ErrStoreFailure):
		return "message could not be saved"
	default:
		return "message could not be processed"
	}
}
