package services

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/goldenzaika/api/internal/domain"
	"github.com/goldenzaika/api/internal/payments"
	"github.com/goldenzaika/api/internal/repositories"
)

const (
	refundReasonCancelled = "requested_by_customer"
	refundReasonDuplicate = "duplicate"
)

// SignatureChecker validates the checkout signature returned by the gateway widget.
type SignatureChecker interface {
	Verify(gatewayOrderID, paymentID, signature string) bool
}

// PaymentServiceDeps bundles collaborators required to construct the payment service.
type PaymentServiceDeps struct {
	Gateway  payments.Gateway
	Verifier SignatureChecker
	Intents  repositories.PaymentIntentRepository
	Orders   OrderService
	Currency string
	Clock    func() time.Time
	Logger   ServiceLogger
}

type paymentService struct {
	gateway  payments.Gateway
	verifier SignatureChecker
	intents  repositories.PaymentIntentRepository
	orders   OrderService
	currency string
	clock    func() time.Time
	logger   ServiceLogger
}

// NewPaymentService wires dependencies into a concrete PaymentService implementation.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Gateway == nil {
		return nil, errors.New("payment service: gateway is required")
	}
	if deps.Verifier == nil {
		return nil, errors.New("payment service: signature verifier is required")
	}
	if deps.Intents == nil {
		return nil, errors.New("payment service: intent repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("payment service: order service is required")
	}
	currency := defaultOrderCurrency
	if strings.TrimSpace(deps.Currency) != "" {
		parsed, err := payments.ParseCurrency(deps.Currency)
		if err != nil {
			return nil, err
		}
		currency = parsed
	}
	return &paymentService{
		gateway:  deps.Gateway,
		verifier: deps.Verifier,
		intents:  deps.Intents,
		orders:   deps.Orders,
		currency: currency,
		clock:    utcClock(deps.Clock),
		logger:   serviceLogger(deps.Logger),
	}, nil
}

// CreateIntent opens a gateway intent for amount and records it server side. When an order is
// named, the caller must own it and its total must equal amount.
func (s *paymentService) CreateIntent(ctx context.Context, cmd CreatePaymentIntentCommand) (PaymentIntent, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return PaymentIntent{}, newServiceError(ErrPaymentInvalidInput, "invalid_request", "User is required")
	}
	minor, err := payments.ToMinorUnits(cmd.Amount, s.currency)
	if err != nil {
		return PaymentIntent{}, wrapServiceError(ErrPaymentInvalidInput, "invalid_amount", "Invalid amount", err)
	}

	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID != "" {
		order, err := s.orders.Get(ctx, GetOrderCommand{OrderID: orderID, ActorID: userID})
		if err != nil {
			return PaymentIntent{}, err
		}
		if order.Paid() {
			return PaymentIntent{}, newServiceError(ErrOrderConflict, "order_already_paid", "Order is already paid")
		}
		if err := matchIntentAmount(order.Totals.Total, PaymentIntent{Amount: minor, Currency: s.currency}); err != nil {
			return PaymentIntent{}, err
		}
	}

	receipt := payments.NewReceipt()
	metadata := map[string]string{"userId": userID}
	if orderID != "" {
		metadata["orderId"] = orderID
	}
	opened, err := s.gateway.CreateIntent(ctx, payments.IntentRequest{
		Amount:   minor,
		Currency: s.currency,
		Receipt:  receipt,
		Metadata: metadata,
	})
	if err != nil {
		s.logger(ctx, "payment.intent_failed", map[string]any{"userId": userID, "error": err.Error()})
		return PaymentIntent{}, wrapServiceError(ErrPaymentInitiationFailed, "payment_initiation_failed", "payment initiation failed", err)
	}

	intent := PaymentIntent{
		ID:        opened.ID,
		UserID:    userID,
		OrderID:   orderID,
		Amount:    opened.Amount,
		Currency:  strings.ToUpper(opened.Currency),
		Receipt:   receipt,
		Status:    domain.PaymentIntentCreated,
		CreatedAt: s.clock(),
	}
	if err := s.intents.Insert(ctx, intent); err != nil {
		return PaymentIntent{}, translateRepoError(err, nil)
	}
	if orderID != "" {
		if _, err := s.orders.AttachIntent(ctx, AttachIntentCommand{OrderID: orderID, ActorID: userID, Intent: intent}); err != nil {
			return PaymentIntent{}, err
		}
	}
	s.logger(ctx, "payment.intent_created", map[string]any{
		"intentId": intent.ID,
		"userId":   userID,
		"orderId":  orderID,
		"amount":   intent.Amount,
	})
	return intent, nil
}

// Verify checks the checkout signature first. A mismatch is reported as Verified=false. A valid
// signature binds the caller's intent to the named order and marks that order paid; without an
// order the intent waits to be consumed by order creation.
func (s *paymentService) Verify(ctx context.Context, cmd VerifyPaymentCommand) (PaymentVerification, error) {
	gatewayOrderID := strings.TrimSpace(cmd.GatewayOrderID)
	paymentID := strings.TrimSpace(cmd.PaymentID)
	signature := cmd.Signature
	if gatewayOrderID == "" || paymentID == "" || strings.TrimSpace(signature) == "" {
		return PaymentVerification{}, newServiceError(ErrPaymentInvalidInput, "invalid_request", "Missing payment details")
	}
	if !s.verifier.Verify(gatewayOrderID, paymentID, signature) {
		s.logger(ctx, "payment.signature_invalid", map[string]any{"intentId": gatewayOrderID, "userId": cmd.UserID})
		return PaymentVerification{}, nil
	}

	intent, err := s.intents.Get(ctx, gatewayOrderID)
	if err != nil {
		if isRepoNotFound(err) {
			return PaymentVerification{}, newServiceError(ErrPaymentNotFound, "payment_not_found", "Payment not found")
		}
		return PaymentVerification{}, translateRepoError(err, nil)
	}
	if intent.UserID != strings.TrimSpace(cmd.UserID) {
		return PaymentVerification{}, newServiceError(ErrPaymentForbidden, "forbidden", "Payment belongs to another user")
	}

	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID != "" && intent.OrderID != "" && orderID != intent.OrderID {
		return PaymentVerification{}, newServiceError(ErrPaymentMismatch, "payment_mismatch", "Payment does not belong to this order")
	}
	if orderID != "" {
		order, err := s.orders.Get(ctx, GetOrderCommand{OrderID: orderID, ActorID: intent.UserID})
		if err != nil {
			return PaymentVerification{}, err
		}
		if err := matchIntentAmount(order.Totals.Total, intent); err != nil {
			return PaymentVerification{}, err
		}
		// The signature proves the customer was charged, so a payment that cannot settle goes back.
		// Settled or refunded intents were already handled by the order's own refund.
		unsettled := intent.Status != domain.PaymentIntentConsumed && intent.Status != domain.PaymentIntentRefunded
		if order.Status == domain.OrderStatusCancelled {
			if unsettled {
				s.refundUnsettled(ctx, intent, paymentID, orderID, refundReasonCancelled)
			}
			return PaymentVerification{}, newServiceError(ErrOrderInvalidState, "order_cancelled", "Order was cancelled")
		}
		if order.Paid() && order.Payment.IntentID != intent.ID {
			if unsettled {
				s.refundUnsettled(ctx, intent, paymentID, orderID, refundReasonDuplicate)
			}
			return PaymentVerification{}, newServiceError(ErrOrderConflict, "order_already_paid", "Order is already paid")
		}
	}

	verified, err := s.intents.Mutate(ctx, gatewayOrderID, func(current *PaymentIntent) error {
		if current.OrderID != "" && orderID != "" && current.OrderID != orderID {
			return newServiceError(ErrPaymentMismatch, "payment_mismatch", "Payment does not belong to this order")
		}
		if current.Status == domain.PaymentIntentRefunded {
			return newServiceError(ErrOrderConflict, "payment_refunded", "Payment was refunded")
		}
		if current.Status == domain.PaymentIntentConsumed {
			if orderID == "" || current.OrderID != orderID {
				return newServiceError(ErrOrderConflict, "payment_consumed", "Payment already used for another order")
			}
			return nil
		}
		now := s.clock()
		current.PaymentID = paymentID
		current.Signature = signature
		current.VerifiedAt = &now
		current.Status = domain.PaymentIntentVerified
		if orderID != "" {
			// Settled onto an existing order, so order creation can no longer consume it.
			current.OrderID = orderID
			current.Status = domain.PaymentIntentConsumed
		}
		return nil
	})
	if err != nil {
		return PaymentVerification{}, translateRepoError(err, ErrPaymentNotFound)
	}

	result := PaymentVerification{Verified: true, OrderID: orderID}
	if orderID != "" {
		order, err := s.orders.MarkPaid(ctx, MarkOrderPaidCommand{
			OrderID:   orderID,
			Intent:    verified,
			PaymentID: paymentID,
			Signature: signature,
		})
		if err != nil {
			s.logger(ctx, "payment.mark_paid_failed", map[string]any{"intentId": verified.ID, "orderId": orderID, "error": err.Error()})
			switch {
			case errors.Is(err, ErrOrderInvalidState):
				s.refundUnsettled(ctx, verified, paymentID, orderID, refundReasonCancelled)
			case errors.Is(err, ErrOrderConflict):
				s.refundUnsettled(ctx, verified, paymentID, orderID, refundReasonDuplicate)
			}
			return PaymentVerification{}, err
		}
		result.Order = &order
	}
	s.logger(ctx, "payment.verified", map[string]any{"intentId": verified.ID, "paymentId": paymentID, "orderId": orderID})
	return result, nil
}

// refundUnsettled returns a captured payment that cannot settle orderID and retires its intent.
// Failures are logged; the intent keeps its status so the refund can be retried by an operator.
func (s *paymentService) refundUnsettled(ctx context.Context, intent PaymentIntent, paymentID, orderID, reason string) {
	fields := map[string]any{"intentId": intent.ID, "paymentId": paymentID, "orderId": orderID, "reason": reason}
	if _, err := s.gateway.Refund(ctx, payments.RefundRequest{
		IntentID:       intent.ID,
		Reason:         reason,
		IdempotencyKey: "refund_" + intent.ID,
	}); err != nil {
		fields["error"] = err.Error()
		s.logger(ctx, "payment.refund_failed", fields)
		return
	}
	_, err := s.intents.Mutate(ctx, intent.ID, func(current *PaymentIntent) error {
		current.PaymentID = paymentID
		current.Status = domain.PaymentIntentRefunded
		if current.OrderID == "" {
			current.OrderID = orderID
		}
		return nil
	})
	if err != nil {
		fields["error"] = err.Error()
		s.logger(ctx, "payment.refund_record_failed", fields)
		return
	}
	s.logger(ctx, "payment.refunded", fields)
}
