package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	config "github.com/anjiri1684/tutor_marketplace/configs"
	"github.com/anjiri1684/tutor_marketplace/services"
)

const (
	orderApproved  = "APPROVED"
	orderCompleted = "COMPLETED"
	orderVoided    = "VOIDED"
)

type paypalLink struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method"`
}

type paypalOrder struct {
	ID     string       `json:"id"`
	Status string       `json:"status"`
	Links  []paypalLink `json:"links"`
}

func (o paypalOrder) approvalURL() string {
	for _, l := range o.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			return l.Href
		}
	}
	return ""
}

func (o paypalOrder) chargeStatus() services.ChargeStatus {
	switch o.Status {
	case orderCompleted:
		return services.ChargeSucceeded
	case orderVoided:
		return services.ChargeFailed
	}
	return services.ChargePending
}

type statusError struct {
	op   string
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("paypal %s: status %d: %s", e.op, e.code, e.body)
}

func readSnippet(resp *http.Response) string {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return strings.TrimSpace(string(b))
}

// PayPalGateway charges through PayPal Checkout orders. An order is created
// per booking and captured once the payer approved it.
type PayPalGateway struct {
	baseURL   string
	returnURL string
	cancelURL string
	client    *http.Client
	tokens    *tokenCache
	logger    *zap.Logger
}

var _ services.PaymentGateway = (*PayPalGateway)(nil)

func NewPayPalGateway(cfg config.PayPalConfig, logger *zap.Logger) *PayPalGateway {
	client := &http.Client{Timeout: cfg.Timeout}
	base := strings.TrimRight(cfg.BaseURL, "/")
	logger = logger.Named("paypal")
	return &PayPalGateway{
		baseURL:   base,
		returnURL: cfg.ReturnURL,
		cancelURL: cfg.CancelURL,
		client:    client,
		tokens: &tokenCache{
			url:          base + "/v1/oauth2/token",
			clientID:     cfg.ClientID,
			clientSecret: cfg.ClientSecret,
			client:       client,
			now:          time.Now,
			logger:       logger,
		},
		logger: logger,
	}
}

func (g *PayPalGateway) InitiateCharge(ctx context.Context, req services.ChargeRequest) (*services.ChargeResult, error) {
	unit := map[string]any{
		"reference_id": req.CorrelationID.String(),
		"custom_id":    req.AccountID.String(),
		"amount": map[string]string{
			"currency_code": req.Currency,
			"value":         req.Amount.StringFixed(2),
		},
	}
	payload := map[string]any{
		"intent":         "CAPTURE",
		"purchase_units": []map[string]any{unit},
	}
	if g.returnURL != "" {
		payload["application_context"] = map[string]string{
			"return_url": g.returnURL,
			"cancel_url": g.cancelURL,
		}
	}

	var order paypalOrder
	if err := g.do(ctx, "create order", http.MethodPost, "/v2/checkout/orders", req.CorrelationID.String(), payload, &order); err != nil {
		return nil, err
	}
	g.logger.Info("order created", zap.String("order_id", order.ID), zap.String("correlation_id", req.CorrelationID.String()), zap.String("status", order.Status))
	return &services.ChargeResult{
		ProviderRef: order.ID,
		Status:      order.chargeStatus(),
		ApprovalURL: order.approvalURL(),
	}, nil
}

// Status reports the order state, capturing orders the payer has approved.
// Without a provider reference the payer never received an approval link,
// so the charge cannot have completed.
func (g *PayPalGateway) Status(ctx context.Context, ref services.ChargeRef) (services.ChargeStatus, error) {
	if ref.ProviderRef == "" {
		return services.ChargePending, nil
	}
	order, err := g.order(ctx, ref.ProviderRef)
	if err != nil {
		return "", err
	}
	if order.Status == orderApproved {
		return g.Capture(ctx, ref)
	}
	return order.chargeStatus(), nil
}

// Capture settles an approved order. A declined capture is reported as a
// failed charge rather than an error.
func (g *PayPalGateway) Capture(ctx context.Context, ref services.ChargeRef) (services.ChargeStatus, error) {
	var order paypalOrder
	path := "/v2/checkout/orders/" + ref.ProviderRef + "/capture"
	err := g.do(ctx, "capture order", http.MethodPost, path, "capture-"+ref.CorrelationID.String(), nil, &order)
	switch {
	case errors.Is(err, services.ErrPaymentFailed):
		g.logger.Warn("capture declined", zap.String("order_id", ref.ProviderRef), zap.Error(err))
		return services.ChargeFailed, nil
	case err != nil:
		return "", err
	}
	return order.chargeStatus(), nil
}

// Cancel abandons an order. Uncaptured orders expire on PayPal's side, so
// there is nothing to call unless the order already completed.
func (g *PayPalGateway) Cancel(ctx context.Context, ref services.ChargeRef) error {
	if ref.ProviderRef == "" {
		return nil
	}
	order, err := g.order(ctx, ref.ProviderRef)
	if err != nil {
		return err
	}
	if order.Status == orderCompleted {
		return services.ErrAlreadyCaptured
	}
	return nil
}

func (g *PayPalGateway) order(ctx context.Context, id string) (*paypalOrder, error) {
	var order paypalOrder
	if err := g.do(ctx, "get order", http.MethodGet, "/v2/checkout/orders/"+id, "", nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (g *PayPalGateway) do(ctx context.Context, op, method, path, requestID string, body, out any) error {
	token, err := g.tokens.get(ctx)
	if err != nil {
		return g.classify(op, err)
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if requestID != "" {
		req.Header.Set("PayPal-Request-Id", requestID)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return g.classify(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return g.classify(op, &statusError{op: op, code: resp.StatusCode, body: readSnippet(resp)})
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: paypal %s: decoding response: %v", services.ErrGatewayTimeout, op, err)
	}
	return nil
}

// classify maps a transport or HTTP failure onto the gateway contract:
// client errors are definitive declines, everything else leaves the outcome
// unknown.
func (g *PayPalGateway) classify(op string, err error) error {
	var se *statusError
	if errors.As(err, &se) {
		switch {
		case se.code == http.StatusUnauthorized:
			g.tokens.invalidate()
			return fmt.Errorf("%w: %v", services.ErrGatewayTimeout, err)
		case se.code == http.StatusTooManyRequests || se.code >= 500:
			return fmt.Errorf("%w: %v", services.ErrGatewayTimeout, err)
		default:
			return fmt.Errorf("%w: %v", services.ErrPaymentFailed, err)
		}
	}
	return fmt.Errorf("%w: paypal %s: %v", services.ErrGatewayTimeout, op, err)
}
