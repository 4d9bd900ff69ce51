package gateway

import (
	"encoding/json"
	goerrors "errors"
	"log/slog"
	"net/http"
	"time"

	"chat-gateway/domain"
	"chat-gateway/errors"
	"chat-gateway/services"
)

// API exposes the credential endpoints the clients call before opening
// their WebSocket connection.
type API struct {
	auth services.IAuthService
	log  *slog.Logger
}

func NewAPI(log *slog.Logger, auth services.IAuthService) *API {
	return &API{auth: auth, log: log}
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	AccessToken string     `json:"access_token"`
	User        userRecord `json:"user"`
}

type userRecord struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

func (a *API) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}

	a.log.Info("Registration attempt", "username", req.Username)
	token, user, err := a.auth.Register(req.Username, req.Email, req.Password)
	if err != nil {
		a.writeAuthError(w, err)
		return
	}
	a.writeAuth(w, http.StatusCreated, token, user)
}

func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}

	a.log.Info("Login attempt", "email", req.Email)
	token, user, err := a.auth.Login(req.Email, req.Password)
	if err != nil {
		a.writeAuthError(w, err)
		return
	}
	a.writeAuth(w, http.StatusOK, token, user)
}

func (a *API) writeAuth(w http.ResponseWriter, status int, token services.Token, user domain.User) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(authResponse{
		AccessToken: string(token),
		User:        userRecord{ID: user.ID, Username: user.Username, Email: user.Email},
	})
}

func (a *API) writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case goerrors.Is(err, errors.ErrUserAlreadyExists):
		http.Error(w, "user already exists", http.StatusConflict)
	case goerrors.Is(err, errors.ErrInvalidPassword):
		http.Error(w, "invalid registration data", http.StatusBadRequest)
	case goerrors.Is(err, errors.ErrInvalidCredentials):
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
	default:
		a.log.Error("Auth endpoint failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// HealthHandler reports liveness.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("chat gateway is running"))
}

// Routes wires the full HTTP surface: the WebSocket endpoint, the
// credential API, and the health endpoint.
func Routes(h *Handler, a *API) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.ServeWS)
	mux.HandleFunc("POST /auth/register", a.Register)
	mux.HandleFunc("POST /auth/login", a.Login)
	mux.HandleFunc("GET /healthz", HealthHandler)
	return mux
}

// CreateServer applies production timeouts around the handler. The
// WebSocket endpoint hijacks its connections, so these bound only the
// handshake and the plain HTTP endpoints.
func CreateServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
