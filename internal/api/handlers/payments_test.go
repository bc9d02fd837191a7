package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coworkgate/internal/external"
	"coworkgate/internal/payments"
	"coworkgate/internal/types"
)

type fakeIssuer struct {
	got  *payments.PreferenceInput
	pref *external.Preference
	err  error
}

func (f *fakeIssuer) Issue(_ context.Context, in payments.PreferenceInput) (*external.Preference, error) {
	f.got = &in
	return f.pref, f.err
}

type fakeConfirmer struct {
	got *payments.ConfirmRequest
	res *payments.ConfirmResult
	err error
}

func (f *fakeConfirmer) Confirm(_ context.Context, req payments.ConfirmRequest) (*payments.ConfirmResult, error) {
	f.got = &req
	return f.res, f.err
}

func newPaymentRouter(issuer PreferenceIssuer, confirmer PaymentConfirmer) chi.Router {
	r := chi.NewRouter()
	NewPaymentHandler(issuer, confirmer, testLogger()).RegisterRoutes(r)
	return r
}

func serve(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestCreatePreference_Success(t *testing.T) {
	issuer := &fakeIssuer{pref: &external.Preference{ID: "pref-9", InitPoint: "https://mp/i", SandboxInitPoint: "https://mp/s"}}
	r := newPaymentRouter(issuer, &fakeConfirmer{})

	rec := serve(r, http.MethodPost, "/payments/create-preference",
		`{"paymentData":{"fullName":"Ana","amount":45000,"plan":"Mensual","studentId":"stu-1","studentEmail":"ana@example.com"}}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"id":"pref-9","init_point":"https://mp/i","sandbox_init_point":"https://mp/s"}`, rec.Body.String())
	require.NotNil(t, issuer.got)
	assert.Equal(t, "stu-1", issuer.got.StudentID)
	assert.Equal(t, 45000.0, issuer.got.Amount)
}

func TestCreatePreference_MissingPaymentData(t *testing.T) {
	issuer := &fakeIssuer{}
	r := newPaymentRouter(issuer, &fakeConfirmer{})

	rec := serve(r, http.MethodPost, "/payments/create-preference", `{"other":1}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(types.ErrCodeValidationMissingField), errorCode(t, rec))
	assert.Nil(t, issuer.got)
}

func TestCreatePreference_PropagatesIssuerErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", types.NewAppError(types.ErrCodeValidationInvalidAmount, "amount must be positive", nil), http.StatusBadRequest},
		{"gateway", types.NewAppError(types.ErrCodeGatewayUnavailable, "gateway down", nil), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newPaymentRouter(&fakeIssuer{err: tt.err}, &fakeConfirmer{})
			rec := serve(r, http.MethodPost, "/payments/create-preference", `{"paymentData":{"fullName":"A","amount":-1,"plan":"P","studentId":"s"}}`)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestConfirm_PassesLooseIDs(t *testing.T) {
	confirmer := &fakeConfirmer{res: &payments.ConfirmResult{Success: true, Message: "payment confirmed, membership activated", PaymentID: "123"}}
	r := newPaymentRouter(&fakeIssuer{}, confirmer)

	rec := serve(r, http.MethodPost, "/payments/confirm",
		`{"paymentId":"null","collectionId":123,"status":"approved","externalReference":"stu-1|Mensual","merchant_order_id":"5"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"success":true,"message":"payment confirmed, membership activated","paymentId":"123"}`, rec.Body.String())
	require.NotNil(t, confirmer.got)
	assert.Equal(t, payments.LooseString("123"), confirmer.got.CollectionID)
	assert.Equal(t, "stu-1|Mensual", confirmer.got.ExternalReference)
}

func TestConfirm_NotApprovedIsNotAnError(t *testing.T) {
	confirmer := &fakeConfirmer{res: &payments.ConfirmResult{Success: false, Message: "payment not approved yet", PaymentID: "5"}}
	r := newPaymentRouter(&fakeIssuer{}, confirmer)

	rec := serve(r, http.MethodPost, "/payments/confirm", `{"paymentId":5}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)
}

func TestConfirm_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"bad json", `{`, nil, http.StatusBadRequest},
		{"invalid id", `{"paymentId":"abc"}`, types.NewAppError(types.ErrCodeValidationInvalidPaymentID, "payment id must be an integer", nil), http.StatusBadRequest},
		{"unknown student", `{"paymentId":"1"}`, types.NewAppError(types.ErrCodeNotFoundStudent, "student not found", nil), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newPaymentRouter(&fakeIssuer{}, &fakeConfirmer{err: tt.err})
			rec := serve(r, http.MethodPost, "/payments/confirm", tt.body)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}
