package fanout

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/gocodealone/taskrecur/internal/applog"
	"github.com/gocodealone/taskrecur/internal/auth"
	"github.com/gocodealone/taskrecur/internal/eventenvelope"
	"github.com/gocodealone/taskrecur/internal/messaging"
)

// Fanout owns the session registry, the WebSocket upgrader, and the
// task-updates subscription that feeds Deliver.
type Fanout struct {
	registry   *Registry
	upgrader   websocket.Upgrader
	validator  *auth.Validator
	bus        *messaging.Bus
	logger     applog.Logger
	bufferSize int
}

func New(validator *auth.Validator, bus *messaging.Bus, logger applog.Logger, bufferSize int) *Fanout {
	return &Fanout{
		registry: NewRegistry(logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser clients connect cross-origin to this service; the
			// bearer token in the query string is this endpoint's only
			// authentication, so origin checking adds no real boundary.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		validator:  validator,
		bus:        bus,
		logger:     logger,
		bufferSize: bufferSize,
	}
}

// Mount attaches the WebSocket upgrade route.
func (f *Fanout) Mount(r chi.Router) {
	r.Get("/realtime", f.handleUpgrade)
}

// Subscribe registers Handle against task-updates, the topic carrying
// user-visible deltas for live client delivery.
func (f *Fanout) Subscribe() {
	f.bus.Subscribe(eventenvelope.TopicTaskUpdates, f.Handle)
}

// Handle forwards the envelope verbatim to every open session for its
// user, ACKing unconditionally: a client dropping a message is never a
// reason to ask the broker to redeliver to every other consumer.
func (f *Fanout) Handle(ctx context.Context, env eventenvelope.Envelope) messaging.Outcome {
	body, err := env.MarshalJSON()
	if err != nil {
		f.logger.Error("marshaling envelope for delivery", "event_id", env.EventID, "error", err)
		return messaging.ACK
	}
	f.registry.Deliver(env.UserID, body)
	return messaging.ACK
}

func (f *Fanout) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	principal, err := f.validator.Authenticate(token)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Warn("websocket upgrade failed", "user_id", principal.UserID, "error", err)
		return
	}

	session := newSession(principal.UserID, conn, f.bufferSize, f.logger)
	f.registry.add(session)

	go session.writePump()
	session.readPump(func() { f.registry.remove(session) })
}
