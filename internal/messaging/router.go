package messaging

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gocodealone/taskrecur/internal/apperr"
	"github.com/gocodealone/taskrecur/internal/eventenvelope"
)

// Mount attaches the sidecar-facing endpoints to r: GET /subscriptions for
// advertisement, and one POST route per registered subscription for
// delivery. Both are ordinary HTTP handlers, not decorator-driven
// registration, per the redesign flag on decorator-driven subscriptions.
func (b *Bus) Mount(r chi.Router) {
	r.Get("/subscriptions", b.handleSubscriptions)
	for _, s := range b.Routes() {
		route := s.Route
		r.Post(route, b.handleDelivery)
	}
}

func (b *Bus) handleSubscriptions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(b.Routes())
}

func (b *Bus) handleDelivery(w http.ResponseWriter, r *http.Request) {
	topic := topicForRoute(r.URL.Path)

	var env eventenvelope.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		b.logger.Warn("malformed event envelope", "route", r.URL.Path, "error", err)
		writeOutcome(w, DROP)
		return
	}

	outcome, found := b.Dispatch(r.Context(), topic, env)
	if !found {
		http.NotFound(w, r)
		return
	}
	writeOutcome(w, outcome)
}

func writeOutcome(w http.ResponseWriter, o Outcome) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte(o.String()))
}

func topicForRoute(path string) string {
	const prefix = "/events/"
	if len(path) > len(prefix) && path[:len(prefix)] == prefix {
		return path[len(prefix):]
	}
	return ""
}

// ClassifyConsumerError maps an error returned by domain logic inside a
// Handler to the Outcome the sidecar should see, per the consumer error
// taxonomy in §7: database/transient failures retry, validation/malformed
// payload failures drop.
func ClassifyConsumerError(err error) Outcome {
	if err == nil {
		return ACK
	}
	switch {
	case apperr.Is(err, apperr.KindConsumerProcessing):
		return RETRY
	case apperr.Is(err, apperr.KindValidation), apperr.Is(err, apperr.KindPoisoned):
		return DROP
	default:
		return RETRY
	}
}
