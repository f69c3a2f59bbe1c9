package httpx

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/adisetyo/go-storefront-orders/internal/metrics"
	"github.com/adisetyo/go-storefront-orders/internal/recon"
)

type PaymentProcessor interface {
	ProcessPayment(ctx context.Context, paymentID string) (recon.Outcome, error)
}

// webhookPayload is the validated boundary shape of gateway notifications.
// Only the event type and payment id are trusted; everything else is
// re-fetched from the gateway.
type webhookPayload struct {
	Type string `json:"type"`
	Data struct {
		ID json.Number `json:"id"`
	} `json:"data"`
}

type WebhookHandler struct {
	Engine  PaymentProcessor
	Metrics *metrics.ServerMetrics
}

func (h *WebhookHandler) Register(r *chi.Mux) {
	r.Post("/payments/webhook", h.handle)
}

// handle acknowledges every structurally valid delivery with 200, even when
// the referenced order is unknown; erroring back would make the gateway
// retry forever. Only malformed payloads get a 4xx.
func (h *WebhookHandler) handle(w http.ResponseWriter, r *http.Request) {
	var p webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if p.Type == "" || (p.Type == "payment" && p.Data.ID.String() == "") {
		http.Error(w, "missing fields", http.StatusBadRequest)
		return
	}
	if p.Type != "payment" {
		w.WriteHeader(http.StatusOK)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	outcome, err := h.Engine.ProcessPayment(ctx, p.Data.ID.String())
	label := outcome.String()
	if err != nil {
		// swallow the failure: the gateway redelivers and the idempotency
		// record makes the retry safe
		log.Printf("webhook: payment %s: %v", p.Data.ID, err)
		label = "error"
	}
	if h.Metrics != nil {
		h.Metrics.WebhookOutcomes.WithLabelValues(label).Inc()
	}
	w.WriteHeader(http.StatusOK)
}
