package payments

import (
	"context"
	"fmt"

	"github.com/anjiri1684/tutor_marketplace/models"
	"github.com/anjiri1684/tutor_marketplace/services"
)

// MethodRouter sends each charge to the gateway registered for its payment
// method.
type MethodRouter map[models.PaymentMethod]services.PaymentGateway

var _ services.PaymentGateway = MethodRouter(nil)

func (r MethodRouter) gateway(method models.PaymentMethod) (services.PaymentGateway, error) {
	g, ok := r[method]
	if !ok {
		return nil, fmt.Errorf("%w: no gateway for %q", services.ErrPaymentFailed, method)
	}
	return g, nil
}

func (r MethodRouter) InitiateCharge(ctx context.Context, req services.ChargeRequest) (*services.ChargeResult, error) {
	g, err := r.gateway(req.Method)
	if err != nil {
		return nil, err
	}
	return g.InitiateCharge(ctx, req)
}

func (r MethodRouter) Status(ctx context.Context, ref services.ChargeRef) (services.ChargeStatus, error) {
	g, err := r.gateway(ref.Method)
	if err != nil {
		return "", err
	}
	return g.Status(ctx, ref)
}

func (r MethodRouter) Cancel(ctx context.Context, ref services.ChargeRef) error {
	g, err := r.gateway(ref.Method)
	if err != nil {
		return err
	}
	return g.Cancel(ctx, ref)
}
