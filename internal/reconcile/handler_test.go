package reconcile

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookline-ai/bookline/internal/conversation"
	"github.com/bookline-ai/bookline/pkg/logging"
)

func newWebhookFixture() (*reconcilerFixture, *Handler) {
	f := newReconcilerFixture()
	return f, NewHandler(f.rec, logging.Default())
}

func postStatus(h *Handler, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/scheduling/status", strings.NewReader(body))
	h.HandleStatusChange(rec, req)
	return rec
}

func TestWebhook_MalformedBodyIs400(t *testing.T) {
	_, h := newWebhookFixture()
	rec := postStatus(h, "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhook_MissingFieldsAre400(t *testing.T) {
	_, h := newWebhookFixture()

	assert.Equal(t, http.StatusBadRequest, postStatus(h, `{"status":"confirmed"}`).Code)
	assert.Equal(t, http.StatusBadRequest, postStatus(h, `{"order_reference":"order-1"}`).Code)
	assert.Equal(t, http.StatusBadRequest, postStatus(h, `{}`).Code)
}

func TestWebhook_UnknownReferenceIs200(t *testing.T) {
	f, h := newWebhookFixture()

	rec := postStatus(h, `{"order_reference":"never-seen","status":"confirmed"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Empty(t, f.ledger.appended)
}

func TestWebhook_AppliedIs200(t *testing.T) {
	f, h := newWebhookFixture()
	d := submittedDraft("order-1")
	f.lookup.byRef[d.FinalOrderID] = d

	rec := postStatus(h, `{"order_reference":"order-1","status":"confirmed"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.convos.states, 1)
	assert.Equal(t, conversation.StateBookingComplete, f.convos.states[0])
}

func TestWebhook_ProcessingFailureIs502(t *testing.T) {
	f, h := newWebhookFixture()
	d := submittedDraft("order-1")
	f.lookup.byRef[d.FinalOrderID] = d
	f.ledger.err = assert.AnError

	rec := postStatus(h, `{"order_reference":"order-1","status":"confirmed"}`)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
