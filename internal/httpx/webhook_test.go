package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adisetyo/go-storefront-orders/internal/recon"
)

type fakeProcessor struct {
	outcome recon.Outcome
	err     error
	ids     []string
}

func (f *fakeProcessor) ProcessPayment(ctx context.Context, paymentID string) (recon.Outcome, error) {
	f.ids = append(f.ids, paymentID)
	return f.outcome, f.err
}

func postWebhook(t *testing.T, h *WebhookHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	h.Register(r)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/payments/webhook", strings.NewReader(body))
	r.ServeHTTP(rec, req)
	return rec
}

func TestWebhookPaymentNotification(t *testing.T) {
	proc := &fakeProcessor{outcome: recon.OutcomeApplied}
	rec := postWebhook(t, &WebhookHandler{Engine: proc}, `{"type":"payment","data":{"id":12345}}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"12345"}, proc.ids)
}

func TestWebhookMalformedBody(t *testing.T) {
	proc := &fakeProcessor{}
	for _, body := range []string{
		`not json`,
		`{"data":{"id":1}}`,
		`{"type":"payment","data":{}}`,
	} {
		rec := postWebhook(t, &WebhookHandler{Engine: proc}, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
	}
	assert.Empty(t, proc.ids)
}

func TestWebhookIgnoresOtherTypes(t *testing.T) {
	proc := &fakeProcessor{}
	rec := postWebhook(t, &WebhookHandler{Engine: proc}, `{"type":"merchant_order","data":{"id":7}}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, proc.ids)
}

func TestWebhookAcknowledgesUnknownOrder(t *testing.T) {
	proc := &fakeProcessor{outcome: recon.OutcomeOrderNotFound}
	rec := postWebhook(t, &WebhookHandler{Engine: proc}, `{"type":"payment","data":{"id":1}}`)

	// the gateway must not keep retrying deliveries we can never use
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhookSwallowsProcessingError(t *testing.T) {
	proc := &fakeProcessor{err: errors.New("db down")}
	rec := postWebhook(t, &WebhookHandler{Engine: proc}, `{"type":"payment","data":{"id":1}}`)

	// still 200: redelivery plus the idempotency record make retries safe
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"1"}, proc.ids)
}
