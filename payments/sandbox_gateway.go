package payments

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/anjiri1684/tutor_marketplace/services"
)

// SandboxGateway is an in-process processor for local runs. Charges succeed
// immediately unless they exceed Limit.
type SandboxGateway struct {
	Limit decimal.Decimal

	mu      sync.Mutex
	charges map[uuid.UUID]*sandboxCharge
	logger  *zap.Logger
}

type sandboxCharge struct {
	ref    string
	status services.ChargeStatus
}

var _ services.PaymentGateway = (*SandboxGateway)(nil)

func NewSandboxGateway(logger *zap.Logger) *SandboxGateway {
	return &SandboxGateway{
		Limit:   decimal.NewFromInt(10000),
		charges: make(map[uuid.UUID]*sandboxCharge),
		logger:  logger.Named("sandbox"),
	}
}

func (g *SandboxGateway) InitiateCharge(_ context.Context, req services.ChargeRequest) (*services.ChargeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if c, ok := g.charges[req.CorrelationID]; ok {
		return &services.ChargeResult{ProviderRef: c.ref, Status: c.status}, nil
	}
	if req.Amount.GreaterThan(g.Limit) {
		return nil, fmt.Errorf("%w: sandbox limit %s exceeded", services.ErrPaymentFailed, g.Limit.StringFixed(2))
	}
	c := &sandboxCharge{ref: "sbx_" + uuid.NewString(), status: services.ChargeSucceeded}
	g.charges[req.CorrelationID] = c
	g.logger.Info("charge captured",
		zap.String("correlation_id", req.CorrelationID.String()),
		zap.String("amount", req.Amount.StringFixed(2)),
		zap.String("method", string(req.Method)))
	return &services.ChargeResult{ProviderRef: c.ref, Status: c.status}, nil
}

func (g *SandboxGateway) Status(_ context.Context, ref services.ChargeRef) (services.ChargeStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.charges[ref.CorrelationID]; ok {
		return c.status, nil
	}
	return services.ChargeFailed, nil
}

func (g *SandboxGateway) Cancel(_ context.Context, ref services.ChargeRef) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.charges[ref.CorrelationID]
	if !ok {
		return nil
	}
	if c.status == services.ChargeSucceeded {
		return services.ErrAlreadyCaptured
	}
	c.status = services.ChargeFailed
	return nil
}
