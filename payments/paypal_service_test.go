package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	config "github.com/anjiri1684/tutor_marketplace/configs"
	"github.com/anjiri1684/tutor_marketplace/models"
	"github.com/anjiri1684/tutor_marketplace/services"
)

type fakePayPal struct {
	mu          sync.Mutex
	tokenCalls  int
	requestIDs  []string
	orderStatus string
	createCode  int
	captureCode int
	captured    int
}

func (f *fakePayPal) update(fn func(f *fakePayPal)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakePayPal) counts() (tokens, captured int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokenCalls, f.captured
}

func (f *fakePayPal) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.tokenCalls++
		f.mu.Unlock()
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(tokenResponse{AccessToken: "tok", ExpiresIn: 3600})
	})
	mux.HandleFunc("/v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		f.mu.Lock()
		f.requestIDs = append(f.requestIDs, r.Header.Get("PayPal-Request-Id"))
		code := f.createCode
		f.mu.Unlock()
		if code != 0 {
			w.WriteHeader(code)
			w.Write([]byte(`{"name":"ERROR"}`))
			return
		}
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "CAPTURE", body["intent"])
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(paypalOrder{
			ID:     "ORDER-1",
			Status: "PAYER_ACTION_REQUIRED",
			Links:  []paypalLink{{Href: "https://paypal.test/approve/ORDER-1", Rel: "payer-action", Method: "GET"}},
		})
	})
	mux.HandleFunc("/v2/checkout/orders/ORDER-1", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		json.NewEncoder(w).Encode(paypalOrder{ID: "ORDER-1", Status: f.orderStatus})
	})
	mux.HandleFunc("/v2/checkout/orders/ORDER-1/capture", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.captured++
		if f.captureCode != 0 {
			w.WriteHeader(f.captureCode)
			w.Write([]byte(`{"name":"UNPROCESSABLE_ENTITY","details":[{"issue":"INSTRUMENT_DECLINED"}]}`))
			return
		}
		f.orderStatus = orderCompleted
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(paypalOrder{ID: "ORDER-1", Status: orderCompleted})
	})
	return mux
}

func newTestGateway(t *testing.T, fake *fakePayPal) *PayPalGateway {
	t.Helper()
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)
	return NewPayPalGateway(config.PayPalConfig{
		BaseURL:      srv.URL,
		ClientID:     "client",
		ClientSecret: "secret",
		Timeout:      5 * time.Second,
	}, zap.NewNop())
}

func chargeRequest() services.ChargeRequest {
	return services.ChargeRequest{
		CorrelationID: uuid.New(),
		AccountID:     uuid.New(),
		Amount:        decimal.RequireFromString("25"),
		Currency:      "USD",
		Method:        models.PaymentPayPal,
	}
}

func TestPayPalInitiateChargeCachesToken(t *testing.T) {
	fake := &fakePayPal{}
	g := newTestGateway(t, fake)
	req := chargeRequest()

	res, err := g.InitiateCharge(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "ORDER-1", res.ProviderRef)
	assert.Equal(t, services.ChargePending, res.Status)
	assert.Equal(t, "https://paypal.test/approve/ORDER-1", res.ApprovalURL)

	_, err = g.InitiateCharge(context.Background(), req)
	require.NoError(t, err)

	tokens, _ := fake.counts()
	assert.Equal(t, 1, tokens)
	fake.update(func(f *fakePayPal) {
		assert.Equal(t, []string{req.CorrelationID.String(), req.CorrelationID.String()}, f.requestIDs)
	})
}

func TestPayPalErrorClassification(t *testing.T) {
	fake := &fakePayPal{createCode: http.StatusServiceUnavailable}
	g := newTestGateway(t, fake)

	_, err := g.InitiateCharge(context.Background(), chargeRequest())
	assert.ErrorIs(t, err, services.ErrGatewayTimeout)

	fake.update(func(f *fakePayPal) { f.createCode = http.StatusUnprocessableEntity })
	_, err = g.InitiateCharge(context.Background(), chargeRequest())
	assert.ErrorIs(t, err, services.ErrPaymentFailed)

	bad := NewPayPalGateway(config.PayPalConfig{BaseURL: "http://127.0.0.1:1", ClientID: "c", ClientSecret: "s", Timeout: time.Second}, zap.NewNop())
	_, err = bad.InitiateCharge(context.Background(), chargeRequest())
	assert.ErrorIs(t, err, services.ErrGatewayTimeout)
}

func TestPayPalStatusCapturesApprovedOrder(t *testing.T) {
	fake := &fakePayPal{orderStatus: orderApproved}
	g := newTestGateway(t, fake)
	ref := services.ChargeRef{CorrelationID: uuid.New(), ProviderRef: "ORDER-1", Method: models.PaymentPayPal}

	status, err := g.Status(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, services.ChargeSucceeded, status)
	_, captured := fake.counts()
	assert.Equal(t, 1, captured)

	status, err = g.Status(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, services.ChargeSucceeded, status)
	_, captured = fake.counts()
	assert.Equal(t, 1, captured, "completed orders are not captured twice")

	assert.ErrorIs(t, g.Cancel(context.Background(), ref), services.ErrAlreadyCaptured)
}

func TestPayPalDeclinedCaptureIsFailedCharge(t *testing.T) {
	fake := &fakePayPal{orderStatus: orderApproved, captureCode: http.StatusUnprocessableEntity}
	g := newTestGateway(t, fake)

	status, err := g.Status(context.Background(), services.ChargeRef{CorrelationID: uuid.New(), ProviderRef: "ORDER-1"})
	require.NoError(t, err)
	assert.Equal(t, services.ChargeFailed, status)
}

func TestPayPalWithoutProviderRef(t *testing.T) {
	fake := &fakePayPal{}
	g := newTestGateway(t, fake)
	ref := services.ChargeRef{CorrelationID: uuid.New()}

	status, err := g.Status(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, services.ChargePending, status)
	assert.NoError(t, g.Cancel(context.Background(), ref))
	tokens, _ := fake.counts()
	assert.Equal(t, 0, tokens, "no provider call without a reference")

	fake.update(func(f *fakePayPal) { f.orderStatus = "PAYER_ACTION_REQUIRED" })
	assert.NoError(t, g.Cancel(context.Background(), services.ChargeRef{CorrelationID: uuid.New(), ProviderRef: "ORDER-1"}))
}
