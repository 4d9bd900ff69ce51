package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"chat-gateway/auth"
	"chat-gateway/contract"
	"chat-gateway/services"

	"github.com/gorilla/websocket"
)

const verifyTimeout = 5 * time.Second

// Handler authenticates upgrade requests and hands accepted
// connections to their session. Sessions derive from the base context,
// so canceling it closes every live connection; Drain waits for them.
type Handler struct {
	base     context.Context
	verifier contract.IVerifier
	chat     services.IChatService
	log      *slog.Logger
	cfg      SessionConfig
	upgrader websocket.Upgrader
	sessions sync.WaitGroup
}

func NewHandler(base context.Context, log *slog.Logger, verifier contract.IVerifier,
	chat services.IChatService, cfg SessionConfig) *Handler {
	return &Handler{
		base:     base,
		verifier: verifier,
		chat:     chat,
		log:      log,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser clients connect from arbitrary origins; tokens,
			// not origins, gate access.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeWS runs the Connecting and Authenticating phases. Credential
// extraction and verification happen on the handshake request, so a
// bad credential never becomes a session: the upgrade is refused with
// no protocol-level error beyond the status code.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token, err := auth.ExtractToken(r)
	if err != nil {
		h.log.Debug("Handshake without credential", "remote", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	verifyCtx, cancel := context.WithTimeout(r.Context(), verifyTimeout)
	defer cancel()

	user, err := h.verifier.Verify(verifyCtx, token)
	if err != nil {
		h.log.Info("Handshake rejected", "remote", r.RemoteAddr, "error", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("Upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	h.log.Info("Session accepted", "user_id", user.ID, "remote", r.RemoteAddr)

	session := NewSession(h.log, conn, user, h.chat, h.cfg)

	// The request context dies with this handler; sessions live on the
	// handler's base context instead, so shutdown can reach them.
	h.sessions.Add(1)
	go func() {
		defer h.sessions.Done()
		session.Run(h.base)
	}()
}

// Drain blocks until every live session finished its teardown, or the
// given context expires. Call after canceling the base context.
func (h *Handler) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
