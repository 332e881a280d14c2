package ws

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"feedhub/internal/auth"
	"feedhub/internal/feed"
	"feedhub/pkg/types"
)

var upgrader = websocket.Upgrader{
	HandshakeTimeout: 10 * time.Second,
	CheckOrigin: func(r *http.Request) bool {
		// Origin policy is enforced at the edge, not here.
		return true
	},
}

// Handler upgrades HTTP requests to live feed sessions. Authentication
// happens before the upgrade so rejected clients get a proper HTTP status.
type Handler struct {
	adapter *feed.Adapter
	auth    *auth.Authenticator
	opts    Options
	log     zerolog.Logger
}

// NewHandler creates the WebSocket attach handler. opts applies to every
// accepted connection except the frame encoding, which each client picks at
// attach time.
func NewHandler(adapter *feed.Adapter, auth *auth.Authenticator, opts Options, log zerolog.Logger) *Handler {
	opts.withDefaults()
	return &Handler{
		adapter: adapter,
		auth:    auth,
		opts:    opts,
		log:     log.With().Str("component", "ws").Logger(),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := h.auth.Resolve(credential(r))
	if err != nil {
		http.Error(w, "invalid credential", http.StatusUnauthorized)
		return
	}
	if userID == "" {
		// Live sessions are personal; anonymous clients use the HTTP API.
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug().Err(err).Msg("upgrade failed")
		return
	}

	opts := h.opts
	opts.Binary = r.URL.Query().Get("encoding") == "binary"
	conn := NewConnection(raw, opts)

	sess, err := h.adapter.Attach(r.Context(), userID, conn)
	if err != nil {
		code := websocket.CloseInternalServerErr
		if errors.Is(err, types.ErrCapacityExceeded) {
			code = websocket.CloseTryAgainLater
		}
		deadline := time.Now().Add(opts.WriteTimeout)
		_ = raw.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, err.Error()), deadline)
		_ = conn.Close()
		h.log.Warn().Err(err).Str("user_id", userID).Msg("attach rejected")
		return
	}

	go conn.pingLoop(opts.PingInterval)
	go h.adapter.Serve(context.Background(), sess, conn)
}

// credential pulls the bearer token from the Authorization header, falling
// back to the token query parameter for browser WebSocket clients that
// cannot set headers.
func credential(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
