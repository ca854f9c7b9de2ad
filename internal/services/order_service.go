package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/goldenzaika/api/internal/domain"
	"github.com/goldenzaika/api/internal/payments"
	"github.com/goldenzaika/api/internal/platform/textutil"
	"github.com/goldenzaika/api/internal/repositories"
)

const (
	myOrdersLimit    = 20
	adminOrdersLimit = 50

	defaultCancelReason  = "User cancelled"
	defaultOrderCurrency = "INR"

	instructionsMaxRunes = 500
	addressTextMaxRunes  = 300
	cancelReasonMaxRunes = 300
	requestTokenMaxLen   = 128
	itemNameMaxRunes     = 120

	msgOrderNotCancellable = "Order cannot be cancelled at this stage. Please contact support."
	msgPostalCodeRequired  = "A delivery pincode is required."
)

// pincodePattern matches a standalone six digit pincode.
var pincodePattern = regexp.MustCompile(`\b\d{6}\b`)

// totalTolerance is the largest disagreement accepted between the client's total and the server's.
var totalTolerance = decimal.RequireFromString("0.01")

// OrderServiceDeps bundles collaborators required to construct the order service. Products, Coupons,
// Zones, Intents, Addresses and Gateway are optional; each one that is nil disables the matching
// server side check.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Products    repositories.ProductRepository
	Intents     repositories.PaymentIntentRepository
	Addresses   repositories.AddressRepository
	Coupons     CouponService
	Zones       ZoneService
	Gateway     payments.Gateway
	Audit       AuditLogService
	Events      OrderEventPublisher
	TaxRate     *decimal.Decimal
	Currency    string
	Clock       func() time.Time
	IDGenerator func() string
	Logger      ServiceLogger
}

type orderService struct {
	orders    repositories.OrderRepository
	products  repositories.ProductRepository
	intents   repositories.PaymentIntentRepository
	addresses repositories.AddressRepository
	coupons   CouponService
	zones     ZoneService
	gateway   payments.Gateway
	audit     AuditLogService
	events    OrderEventPublisher
	taxRate   decimal.Decimal
	currency  string
	clock     func() time.Time
	newID     func() string
	logger    ServiceLogger
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	taxRate := domain.DefaultTaxRate
	if deps.TaxRate != nil {
		if deps.TaxRate.IsNegative() {
			return nil, errors.New("order service: tax rate cannot be negative")
		}
		taxRate = *deps.TaxRate
	}
	currency := defaultOrderCurrency
	if strings.TrimSpace(deps.Currency) != "" {
		parsed, err := payments.ParseCurrency(deps.Currency)
		if err != nil {
			return nil, fmt.Errorf("order service: %w", err)
		}
		currency = parsed
	}
	return &orderService{
		orders:    deps.Orders,
		products:  deps.Products,
		intents:   deps.Intents,
		addresses: deps.Addresses,
		coupons:   deps.Coupons,
		zones:     deps.Zones,
		gateway:   deps.Gateway,
		audit:     auditOrNoop(deps.Audit),
		events:    deps.Events,
		taxRate:   taxRate,
		currency:  currency,
		clock:     utcClock(deps.Clock),
		newID:     idGenerator(deps.IDGenerator),
		logger:    serviceLogger(deps.Logger),
	}, nil
}

// Create prices the submission server side and persists it with status Placed. A repeated request
// token returns the order stored by the first submission.
func (s *orderService) Create(ctx context.Context, cmd CreateOrderCommand) (OrderCreation, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return OrderCreation{}, newServiceError(ErrOrderInvalidInput, "invalid_request", "User is required")
	}
	token := strings.TrimSpace(cmd.RequestToken)
	if len(token) > requestTokenMaxLen {
		return OrderCreation{}, newServiceError(ErrOrderInvalidInput, "invalid_request", "Request token is too long")
	}

	items, err := s.buildItems(ctx, cmd.Items)
	if err != nil {
		return OrderCreation{}, err
	}
	subtotal := domain.Subtotal(items)

	discount := decimal.Zero
	var couponCode *string
	if code := strings.TrimSpace(cmd.CouponCode); code != "" {
		if s.coupons == nil {
			return OrderCreation{}, newServiceError(ErrOrderInvalidInput, "coupons_disabled", "Coupons are currently disabled")
		}
		evaluation, err := s.coupons.Evaluate(ctx, code, subtotal)
		if err != nil {
			return OrderCreation{}, err
		}
		discount = evaluation.Discount
		couponCode = &evaluation.Code
		if cmd.ClientDiscount != nil && !cmd.ClientDiscount.Equal(discount) {
			s.logger(ctx, "order.discount_mismatch", map[string]any{
				"userId":         userID,
				"coupon":         evaluation.Code,
				"clientDiscount": cmd.ClientDiscount.String(),
				"serverDiscount": discount.String(),
			})
		}
	}

	shipping, err := s.buildShippingAddress(ctx, userID, cmd)
	if err != nil {
		return OrderCreation{}, err
	}

	deliveryFee, err := s.deliveryFee(ctx, deliveryPostalCode(cmd.PostalCode, shipping), subtotal)
	if err != nil {
		return OrderCreation{}, err
	}

	totals := domain.ComputeTotals(subtotal, s.taxRate, deliveryFee, discount)
	if cmd.ClientTotal != nil && cmd.ClientTotal.Sub(totals.Total).Abs().GreaterThan(totalTolerance) {
		s.logger(ctx, "order.total_mismatch", map[string]any{
			"userId":      userID,
			"clientTotal": cmd.ClientTotal.String(),
			"serverTotal": totals.Total.String(),
		})
		return OrderCreation{}, newServiceError(ErrOrderInvalidInput, "total_mismatch", "total mismatch")
	}

	now := s.clock()
	order := Order{
		ID:              s.newID(),
		UserID:          userID,
		Items:           items,
		Totals:          totals,
		CouponCode:      couponCode,
		ShippingAddress: shipping,
		Instructions:    textutil.Sanitize(cmd.Instructions, instructionsMaxRunes),
		Status:          domain.OrderStatusPlaced,
		RequestToken:    token,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	intentID := strings.TrimSpace(cmd.PaymentIntentID)
	if intentID != "" {
		payment, err := s.settlementPayment(ctx, userID, intentID, totals.Total)
		if err != nil {
			return OrderCreation{}, err
		}
		order.Payment = payment
	}

	saved, replayed, err := s.orders.Create(ctx, order, repositories.CreateOrderOptions{
		RequestToken:    token,
		ConsumeIntentID: intentID,
	})
	if err != nil {
		return OrderCreation{}, s.mapCreateError(err)
	}
	if replayed {
		s.logger(ctx, "order.create_replayed", map[string]any{"orderId": saved.ID, "userId": userID})
		return OrderCreation{Order: saved, Replayed: true}, nil
	}

	s.logger(ctx, "order.created", map[string]any{
		"orderId": saved.ID,
		"userId":  userID,
		"total":   saved.Totals.Total.String(),
		"paid":    saved.Paid(),
	})
	s.publish(ctx, OrderEventCreated, saved, "")
	if saved.Paid() {
		s.publish(ctx, OrderEventPaid, saved, "")
	}
	return OrderCreation{Order: saved}, nil
}

func (s *orderService) buildItems(ctx context.Context, inputs []OrderItemInput) ([]LineItem, error) {
	if len(inputs) == 0 {
		return nil, newServiceError(ErrOrderInvalidInput, "invalid_request", "Order items required")
	}
	ids := make([]string, 0, len(inputs))
	for _, input := range inputs {
		if strings.TrimSpace(input.ProductID) == "" {
			return nil, newServiceError(ErrOrderInvalidInput, "invalid_request", "Every item needs a product id")
		}
		if input.Quantity <= 0 {
			return nil, newServiceError(ErrOrderInvalidInput, "invalid_request", "Item quantity must be positive")
		}
		ids = append(ids, strings.TrimSpace(input.ProductID))
	}

	var catalog map[string]domain.Product
	if s.products != nil {
		found, err := s.products.GetMany(ctx, ids)
		if err != nil {
			return nil, translateRepoError(err, nil)
		}
		catalog = found
	}

	items := make([]LineItem, 0, len(inputs))
	for _, input := range inputs {
		item := LineItem{
			ProductID: strings.TrimSpace(input.ProductID),
			Name:      textutil.Sanitize(input.Name, itemNameMaxRunes),
			UnitPrice: input.Price,
			Quantity:  input.Quantity,
			ImageURL:  strings.TrimSpace(input.ImageURL),
		}
		if catalog != nil {
			product, ok := catalog[item.ProductID]
			if !ok || !product.Available {
				name := item.Name
				if name == "" {
					name = item.ProductID
				}
				return nil, newServiceError(ErrOrderInvalidInput, "product_unavailable", fmt.Sprintf("%s is no longer available", name))
			}
			item.Name = product.Name
			item.UnitPrice = product.Price
			if product.ImageURL != "" {
				item.ImageURL = product.ImageURL
			}
		}
		if !item.UnitPrice.IsPositive() {
			return nil, newServiceError(ErrOrderInvalidInput, "invalid_request", "Item price must be positive")
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *orderService) buildShippingAddress(ctx context.Context, userID string, cmd CreateOrderCommand) (domain.ShippingAddress, error) {
	shipping := domain.ShippingAddress{Text: textutil.Sanitize(cmd.ShippingAddress, addressTextMaxRunes)}
	if addressID := strings.TrimSpace(cmd.AddressID); addressID != "" && s.addresses != nil {
		address, err := s.addresses.Get(ctx, userID, addressID)
		if err != nil {
			if isRepoNotFound(err) {
				return domain.ShippingAddress{}, newServiceError(ErrOrderInvalidInput, "invalid_request", "Address not found")
			}
			return domain.ShippingAddress{}, translateRepoError(err, nil)
		}
		shipping.Details = &address
		if shipping.Text == "" {
			shipping.Text = formatAddress(address)
		}
	}
	if shipping.Text == "" {
		return domain.ShippingAddress{}, newServiceError(ErrOrderInvalidInput, "invalid_request", "Shipping address is required")
	}
	return shipping, nil
}

// deliveryFee resolves the delivery zone for every order. Without a zone service no fee applies.
func (s *orderService) deliveryFee(ctx context.Context, postal string, subtotal decimal.Decimal) (decimal.Decimal, error) {
	if s.zones == nil {
		return decimal.Zero, nil
	}
	if postal == "" {
		return decimal.Zero, newServiceError(ErrOrderInvalidInput, "zone_unavailable", msgPostalCodeRequired)
	}
	resolution, err := s.zones.Resolve(ctx, postal, subtotal)
	if err != nil {
		return decimal.Zero, err
	}
	if !resolution.Available {
		return decimal.Zero, newServiceError(ErrOrderInvalidInput, "zone_unavailable", resolution.Message)
	}
	return resolution.DeliveryFee, nil
}

// deliveryPostalCode prefers the explicit code, then the saved address, then the last pincode
// written in the free text address.
func deliveryPostalCode(explicit string, shipping domain.ShippingAddress) string {
	if code := strings.TrimSpace(explicit); code != "" {
		return code
	}
	if shipping.Details != nil {
		if code := strings.TrimSpace(shipping.Details.Zip); code != "" {
			return code
		}
	}
	matches := pincodePattern.FindAllString(shipping.Text, -1)
	if len(matches) == 0 {
		return ""
	}
	return matches[len(matches)-1]
}

func formatAddress(address Address) string {
	parts := make([]string, 0, 4)
	for _, part := range []string{address.Street, address.City, address.State, address.Zip} {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return strings.Join(parts, ", ")
}

// settlementPayment checks the named intent before the transaction re-checks it under lock.
func (s *orderService) settlementPayment(ctx context.Context, userID, intentID string, total decimal.Decimal) (*domain.OrderPayment, error) {
	if s.intents == nil {
		return nil, newServiceError(ErrOrderInvalidInput, "invalid_request", "Payment settlement is not configured")
	}
	intent, err := s.intents.Get(ctx, intentID)
	if err != nil {
		if isRepoNotFound(err) {
			return nil, newServiceError(ErrOrderInvalidInput, "payment_not_found", "Payment not found")
		}
		return nil, translateRepoError(err, nil)
	}
	if intent.UserID != userID {
		return nil, newServiceError(ErrOrderForbidden, "forbidden", "Payment belongs to another user")
	}
	// A consumed intent is left to the transaction, which returns the original order on a replay.
	switch intent.Status {
	case domain.PaymentIntentCreated:
		return nil, newServiceError(ErrOrderInvalidInput, "payment_not_verified", "Payment has not been verified")
	case domain.PaymentIntentRefunded:
		return nil, newServiceError(ErrOrderConflict, "payment_refunded", "Payment was refunded")
	}
	minor, err := payments.ToMinorUnits(total, intent.Currency)
	if err != nil || minor != intent.Amount {
		return nil, newServiceError(ErrOrderInvalidInput, "payment_mismatch", "Payment amount does not match order total")
	}
	return &domain.OrderPayment{
		IntentID:   intent.ID,
		PaymentID:  intent.PaymentID,
		Signature:  intent.Signature,
		Amount:     intent.Amount,
		Currency:   intent.Currency,
		Status:     domain.PaymentStatusPaid,
		VerifiedAt: intent.VerifiedAt,
	}, nil
}

func (s *orderService) mapCreateError(err error) error {
	var settlement *repositories.SettlementError
	if errors.As(err, &settlement) {
		switch settlement.Code {
		case repositories.SettlementIntentConsumed:
			return wrapServiceError(ErrOrderConflict, "payment_consumed", "Payment already used for another order", err)
		case repositories.SettlementIntentMissing:
			return wrapServiceError(ErrOrderInvalidInput, "payment_not_found", "Payment not found", err)
		default:
			return wrapServiceError(ErrOrderInvalidInput, "payment_not_verified", "Payment has not been verified", err)
		}
	}
	if isRepoConflict(err) {
		return wrapServiceError(ErrOrderConflict, "order_conflict", "Order submission already in progress", err)
	}
	return translateRepoError(err, nil)
}

func (s *orderService) Get(ctx context.Context, cmd GetOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, newServiceError(ErrOrderInvalidInput, "invalid_request", "Order id is required")
	}
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return Order{}, translateRepoError(err, ErrOrderNotFound)
	}
	if !cmd.IsAdmin && order.UserID != cmd.ActorID {
		return Order{}, newServiceError(ErrOrderForbidden, "forbidden", "Unauthorized access to order")
	}
	return order, nil
}

func (s *orderService) ListMine(ctx context.Context, userID string) ([]Order, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, newServiceError(ErrOrderInvalidInput, "invalid_request", "User is required")
	}
	orders, err := s.orders.ListByUser(ctx, userID, myOrdersLimit)
	if err != nil {
		return nil, translateRepoError(err, nil)
	}
	return orders, nil
}

func (s *orderService) ListAll(ctx context.Context) ([]Order, error) {
	orders, err := s.orders.ListAll(ctx, adminOrdersLimit)
	if err != nil {
		return nil, translateRepoError(err, nil)
	}
	return orders, nil
}

// UpdateStatus applies an operator transition. Moving to the current status is a no-op.
func (s *orderService) UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, newServiceError(ErrOrderInvalidInput, "invalid_request", "Order id is required")
	}
	raw := strings.TrimSpace(cmd.Status)
	if raw == "" {
		return Order{}, newServiceError(ErrOrderInvalidInput, "invalid_request", "Status is required")
	}
	next, ok := domain.ParseOrderStatus(raw)
	if !ok {
		return Order{}, newServiceError(ErrOrderInvalidInput, "invalid_request", fmt.Sprintf("unknown order status %q", raw))
	}

	var previous OrderStatus
	changed := false
	updated, err := s.orders.Mutate(ctx, orderID, func(order *Order) error {
		previous, changed = order.Status, false
		if order.Status == next {
			return nil
		}
		if !order.Status.CanTransitionTo(next) {
			return newServiceError(ErrOrderInvalidState, "invalid_transition",
				fmt.Sprintf("cannot transition order from %q to %q", order.Status, next))
		}
		now := s.clock()
		applyStatus(order, next, now)
		changed = true
		return nil
	})
	if err != nil {
		return Order{}, translateRepoError(err, ErrOrderNotFound)
	}
	if !changed {
		return updated, nil
	}

	s.audit.Record(ctx, AuditLogRecord{
		Actor:     cmd.ActorID,
		Action:    "UPDATE_ORDER_STATUS",
		TargetRef: orderTargetRef(orderID),
		Details: map[string]any{
			"orderId":        orderID,
			"status":         string(next),
			"previousStatus": string(previous),
		},
	})
	if next == domain.OrderStatusCancelled {
		updated = s.refundIfPaid(ctx, updated)
		s.publish(ctx, OrderEventCancelled, updated, previous)
	} else {
		s.publish(ctx, OrderEventStatusChanged, updated, previous)
	}
	return updated, nil
}

// Cancel lets the owner withdraw an order that the kitchen has not accepted yet.
func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, newServiceError(ErrOrderInvalidInput, "invalid_request", "Order id is required")
	}
	reason := textutil.Sanitize(cmd.Reason, cancelReasonMaxRunes)
	if reason == "" {
		reason = defaultCancelReason
	}

	var previous OrderStatus
	updated, err := s.orders.Mutate(ctx, orderID, func(order *Order) error {
		if order.UserID != cmd.ActorID {
			return newServiceError(ErrOrderForbidden, "forbidden", "Forbidden")
		}
		if !order.Status.UserCancellable() {
			return newServiceError(ErrOrderInvalidState, "not_cancellable", msgOrderNotCancellable)
		}
		previous = order.Status
		applyStatus(order, domain.OrderStatusCancelled, s.clock())
		order.CancelReason = &reason
		return nil
	})
	if err != nil {
		return Order{}, translateRepoError(err, ErrOrderNotFound)
	}

	s.audit.Record(ctx, AuditLogRecord{
		Actor:     cmd.ActorID,
		Action:    "ORDER_CANCELLED_BY_USER",
		TargetRef: orderTargetRef(orderID),
		Details:   map[string]any{"orderId": orderID, "reason": reason},
	})
	updated = s.refundIfPaid(ctx, updated)
	s.publish(ctx, OrderEventCancelled, updated, previous)
	return updated, nil
}

// MarkPaid records a verified intent on the order. Re-applying the same payment is a no-op.
func (s *orderService) MarkPaid(ctx context.Context, cmd MarkOrderPaidCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, newServiceError(ErrOrderInvalidInput, "invalid_request", "Order id is required")
	}
	alreadyPaid := false
	updated, err := s.orders.Mutate(ctx, orderID, func(order *Order) error {
		alreadyPaid = false
		if order.UserID != cmd.Intent.UserID {
			return newServiceError(ErrOrderForbidden, "forbidden", "Payment belongs to another user")
		}
		if order.Paid() {
			if order.Payment.IntentID == cmd.Intent.ID {
				alreadyPaid = true
				return nil
			}
			return newServiceError(ErrOrderConflict, "order_already_paid", "Order is already paid")
		}
		if order.Status == domain.OrderStatusCancelled {
			return newServiceError(ErrOrderInvalidState, "order_cancelled", "Order was cancelled")
		}
		if err := matchIntentAmount(order.Totals.Total, cmd.Intent); err != nil {
			return err
		}
		verifiedAt := s.clock()
		order.Payment = &domain.OrderPayment{
			IntentID:   cmd.Intent.ID,
			PaymentID:  strings.TrimSpace(cmd.PaymentID),
			Signature:  strings.TrimSpace(cmd.Signature),
			Amount:     cmd.Intent.Amount,
			Currency:   cmd.Intent.Currency,
			Status:     domain.PaymentStatusPaid,
			VerifiedAt: &verifiedAt,
		}
		order.UpdatedAt = verifiedAt
		return nil
	})
	if err != nil {
		return Order{}, translateRepoError(err, ErrOrderNotFound)
	}
	if !alreadyPaid {
		s.logger(ctx, "order.paid", map[string]any{"orderId": orderID, "intentId": cmd.Intent.ID})
		s.publish(ctx, OrderEventPaid, updated, "")
	}
	return updated, nil
}

// AttachIntent records an opened intent on an unpaid order owned by the caller.
func (s *orderService) AttachIntent(ctx context.Context, cmd AttachIntentCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, newServiceError(ErrOrderInvalidInput, "invalid_request", "Order id is required")
	}
	updated, err := s.orders.Mutate(ctx, orderID, func(order *Order) error {
		if order.UserID != cmd.ActorID {
			return newServiceError(ErrOrderForbidden, "forbidden", "Unauthorized access to order")
		}
		if order.Paid() {
			return newServiceError(ErrOrderConflict, "order_already_paid", "Order is already paid")
		}
		if order.Status.IsTerminal() {
			return newServiceError(ErrOrderInvalidState, "order_closed", "Order can no longer be paid")
		}
		if err := matchIntentAmount(order.Totals.Total, cmd.Intent); err != nil {
			return err
		}
		order.Payment = &domain.OrderPayment{
			IntentID: cmd.Intent.ID,
			Amount:   cmd.Intent.Amount,
			Currency: cmd.Intent.Currency,
			Status:   domain.PaymentStatusPending,
		}
		order.UpdatedAt = s.clock()
		return nil
	})
	if err != nil {
		return Order{}, translateRepoError(err, ErrOrderNotFound)
	}
	return updated, nil
}

func (s *orderService) Stats(ctx context.Context) (OrderStats, error) {
	stats, err := s.orders.Stats(ctx)
	if err != nil {
		return OrderStats{}, translateRepoError(err, nil)
	}
	if stats.GeneratedAt.IsZero() {
		stats.GeneratedAt = s.clock()
	}
	return stats, nil
}

func (s *orderService) refundIfPaid(ctx context.Context, order Order) Order {
	if s.gateway == nil || !order.Paid() || order.Payment.IntentID == "" {
		return order
	}
	_, err := s.gateway.Refund(ctx, payments.RefundRequest{
		IntentID:       order.Payment.IntentID,
		Reason:         "requested_by_customer",
		IdempotencyKey: "refund_" + order.ID,
	})
	if err != nil {
		s.logger(ctx, "order.refund_failed", map[string]any{"orderId": order.ID, "error": err.Error()})
		return order
	}
	refunded, err := s.orders.Mutate(ctx, order.ID, func(o *Order) error {
		if o.Payment != nil {
			o.Payment.Status = domain.PaymentStatusRefunded
			o.Payment.RefundID = "refund_" + o.ID
		}
		return nil
	})
	if err != nil {
		s.logger(ctx, "order.refund_record_failed", map[string]any{"orderId": order.ID, "error": err.Error()})
		return order
	}
	s.logger(ctx, "order.refunded", map[string]any{"orderId": order.ID})
	return refunded
}

func (s *orderService) publish(ctx context.Context, eventType string, order Order, previous OrderStatus) {
	if s.events == nil {
		return
	}
	event := OrderEvent{
		Type:           eventType,
		OrderID:        order.ID,
		UserID:         order.UserID,
		Status:         string(order.Status),
		PreviousStatus: string(previous),
		OccurredAt:     s.clock(),
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event_publish_failed", map[string]any{
			"orderId": order.ID,
			"type":    eventType,
			"error":   err.Error(),
		})
	}
}

func applyStatus(order *Order, next OrderStatus, now time.Time) {
	order.Status = next
	order.UpdatedAt = now
	stamp := now
	switch next {
	case domain.OrderStatusProcessing:
		order.ProcessingAt = &stamp
	case domain.OrderStatusOutForDelivery:
		order.DispatchedAt = &stamp
	case domain.OrderStatusDelivered:
		order.DeliveredAt = &stamp
	case domain.OrderStatusCancelled:
		order.CancelledAt = &stamp
	}
}

func matchIntentAmount(total decimal.Decimal, intent PaymentIntent) error {
	minor, err := payments.ToMinorUnits(total, intent.Currency)
	if err != nil || minor != intent.Amount {
		return newServiceError(ErrPaymentMismatch, "payment_mismatch", "Payment amount does not match order total")
	}
	return nil
}

func orderTargetRef(id string) string { return "orders/" + id }
