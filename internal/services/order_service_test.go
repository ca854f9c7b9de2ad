package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/goldenzaika/api/internal/domain"
)

var orderNow = time.Date(2025, 3, 1, 18, 30, 0, 0, time.UTC)

type orderFixture struct {
	svc       OrderService
	orders    *stubOrderRepo
	intents   *stubIntentRepo
	addresses *stubAddressRepo
	gateway   *stubGateway
	audit     *recordingAudit
	events    *recordingPublisher
	logger    *recordingLogger
}

func newOrderFixture(t *testing.T, seed ...domain.Order) *orderFixture {
	t.Helper()
	f := &orderFixture{
		orders:    newStubOrderRepo(seed...),
		intents:   newStubIntentRepo(),
		addresses: newStubAddressRepo(domain.Address{ID: "addr-1", Street: "12 MG Road", City: "Bengaluru", State: "KA", Zip: "560001", Phone: "9999999999"}),
		gateway:   &stubGateway{},
		audit:     &recordingAudit{},
		events:    &recordingPublisher{},
		logger:    &recordingLogger{},
	}
	f.orders.intents = f.intents

	zones, err := NewZoneService(ZoneServiceDeps{Zones: &stubZoneRepo{zones: []domain.Zone{
		{ID: "zone-1", Name: "Central", PostalCodes: []string{"560001"}, DeliveryFee: dec("30"), MinOrderAmount: dec("199"), Active: true},
	}}})
	if err != nil {
		t.Fatalf("NewZoneService: %v", err)
	}
	coupons, err := NewCouponService(CouponServiceDeps{
		Coupons: newStubCouponRepo(domain.Coupon{
			ID: "c1", Code: "SAVE20", Type: domain.CouponTypePercentage, Value: dec("20"), MaxDiscount: decPtr("50"), Active: true,
		}),
		Clock: fixedClock(orderNow),
	})
	if err != nil {
		t.Fatalf("NewCouponService: %v", err)
	}

	svc, err := NewOrderService(OrderServiceDeps{
		Orders: f.orders,
		Products: &stubProductRepo{products: map[string]domain.Product{
			"biryani": {ID: "biryani", Name: "Chicken Biryani", Price: dec("200"), Available: true},
			"lassi":   {ID: "lassi", Name: "Sweet Lassi", Price: dec("100"), Available: true},
			"retired": {ID: "retired", Name: "Old Dish", Price: dec("50"), Available: false},
		}},
		Intents:     f.intents,
		Addresses:   f.addresses,
		Coupons:     coupons,
		Zones:       zones,
		Gateway:     f.gateway,
		Audit:       f.audit,
		Events:      f.events,
		Clock:       fixedClock(orderNow),
		IDGenerator: sequenceIDs("order-1", "order-2", "order-3"),
		Logger:      f.logger.log,
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	f.svc = svc
	return f
}

func checkoutCommand() CreateOrderCommand {
	return CreateOrderCommand{
		UserID: "user-1",
		Items: []OrderItemInput{
			{ProductID: "biryani", Name: "Biryani", Price: dec("1"), Quantity: 2},
			{ProductID: "lassi", Name: "Lassi", Price: dec("1"), Quantity: 1},
		},
		CouponCode:      "save20",
		PostalCode:      "560001",
		ShippingAddress: "12 MG Road, Bengaluru",
	}
}

func TestOrderServiceCreatePricesServerSide(t *testing.T) {
	f := newOrderFixture(t)
	cmd := checkoutCommand()
	cmd.ClientTotal = decPtr("505")

	created, err := f.svc.Create(context.Background(), cmd)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	order := created.Order
	if created.Replayed {
		t.Fatalf("expected fresh order")
	}
	totals := order.Totals
	if !totals.Subtotal.Equal(dec("500")) || !totals.Tax.Equal(dec("25")) || !totals.DeliveryFee.Equal(dec("30")) ||
		!totals.Discount.Equal(dec("50")) || !totals.Total.Equal(dec("505")) {
		t.Fatalf("unexpected totals %+v", totals)
	}
	if order.Status != domain.OrderStatusPlaced {
		t.Fatalf("expected Placed, got %s", order.Status)
	}
	if order.CouponCode == nil || *order.CouponCode != "SAVE20" {
		t.Fatalf("expected coupon SAVE20, got %v", order.CouponCode)
	}
	if order.Items[0].Name != "Chicken Biryani" || !order.Items[0].UnitPrice.Equal(dec("200")) {
		t.Fatalf("expected catalog snapshot, got %+v", order.Items[0])
	}
	if !order.CreatedAt.Equal(orderNow) {
		t.Fatalf("expected createdAt %s, got %s", orderNow, order.CreatedAt)
	}
	if got := f.events.types(); len(got) != 1 || got[0] != OrderEventCreated {
		t.Fatalf("expected created event, got %v", got)
	}
}

func TestOrderServiceCreateTotalMismatch(t *testing.T) {
	f := newOrderFixture(t)
	cmd := checkoutCommand()
	cmd.ClientTotal = decPtr("480")

	_, err := f.svc.Create(context.Background(), cmd)
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	var domainErr DomainError
	if !errors.As(err, &domainErr) || domainErr.Code() != "total_mismatch" {
		t.Fatalf("expected total_mismatch, got %v", err)
	}
	if f.orders.creates != 0 {
		t.Fatalf("expected no write, got %d", f.orders.creates)
	}
}

func TestOrderServiceCreateToleratesRoundingDrift(t *testing.T) {
	f := newOrderFixture(t)
	cmd := checkoutCommand()
	cmd.ClientTotal = decPtr("505.01")

	if _, err := f.svc.Create(context.Background(), cmd); err != nil {
		t.Fatalf("expected one paisa drift accepted, got %v", err)
	}
}

func TestOrderServiceCreateRecomputesClientDiscount(t *testing.T) {
	f := newOrderFixture(t)
	cmd := checkoutCommand()
	cmd.ClientDiscount = decPtr("100")

	created, err := f.svc.Create(context.Background(), cmd)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !created.Order.Totals.Discount.Equal(dec("50")) {
		t.Fatalf("expected server discount 50, got %s", created.Order.Totals.Discount)
	}
	if !f.logger.has("order.discount_mismatch") {
		t.Fatalf("expected discount mismatch logged, got %v", f.logger.events)
	}
}

func TestOrderServiceCreateRejectsInvalidCoupon(t *testing.T) {
	f := newOrderFixture(t)
	cmd := checkoutCommand()
	cmd.CouponCode = "BOGUS"

	if _, err := f.svc.Create(context.Background(), cmd); !errors.Is(err, ErrCouponInvalid) {
		t.Fatalf("expected coupon invalid, got %v", err)
	}
}

func TestOrderServiceCreateZoneUnavailable(t *testing.T) {
	f := newOrderFixture(t)
	cmd := checkoutCommand()
	cmd.PostalCode = "110001"

	_, err := f.svc.Create(context.Background(), cmd)
	var domainErr DomainError
	if !errors.As(err, &domainErr) || domainErr.Code() != "zone_unavailable" {
		t.Fatalf("expected zone_unavailable, got %v", err)
	}
	if domainErr.SafeMessage() != "Delivery not available to this pincode." {
		t.Fatalf("unexpected message %q", domainErr.SafeMessage())
	}
}

func TestOrderServiceCreateResolvesZoneWithoutPostalCode(t *testing.T) {
	cases := map[string]func(*CreateOrderCommand){
		"saved address": func(c *CreateOrderCommand) {
			c.ShippingAddress = ""
			c.AddressID = "addr-1"
		},
		"pincode in address text": func(c *CreateOrderCommand) {
			c.ShippingAddress = "12 MG Road, Bengaluru 560001, Flat 1203"
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			f := newOrderFixture(t)
			cmd := checkoutCommand()
			cmd.PostalCode = ""
			cmd.ClientTotal = decPtr("505")
			mutate(&cmd)

			created, err := f.svc.Create(context.Background(), cmd)
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			totals := created.Order.Totals
			if !totals.DeliveryFee.Equal(dec("30")) || !totals.Total.Equal(dec("505")) {
				t.Fatalf("expected zone fee in totals, got %+v", totals)
			}
		})
	}
}

func TestOrderServiceCreateRequiresDeliveryZone(t *testing.T) {
	cases := map[string]struct {
		mutate  func(*CreateOrderCommand)
		message string
	}{
		"no pincode anywhere": {
			mutate:  func(c *CreateOrderCommand) { c.ShippingAddress = "12 MG Road, Bengaluru" },
			message: "A delivery pincode is required.",
		},
		"below zone minimum": {
			mutate: func(c *CreateOrderCommand) {
				c.Items = []OrderItemInput{{ProductID: "lassi", Quantity: 1}}
				c.CouponCode = ""
				c.ShippingAddress = ""
				c.AddressID = "addr-1"
			},
			message: "Minimum order for this area is ₹199",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := newOrderFixture(t)
			cmd := checkoutCommand()
			cmd.PostalCode = ""
			tc.mutate(&cmd)

			_, err := f.svc.Create(context.Background(), cmd)
			var domainErr DomainError
			if !errors.As(err, &domainErr) || domainErr.Code() != "zone_unavailable" {
				t.Fatalf("expected zone_unavailable, got %v", err)
			}
			if domainErr.SafeMessage() != tc.message {
				t.Fatalf("unexpected message %q", domainErr.SafeMessage())
			}
			if f.orders.creates != 0 {
				t.Fatalf("expected no order persisted")
			}
		})
	}
}

func TestOrderServiceCreateValidation(t *testing.T) {
	f := newOrderFixture(t)

	cases := map[string]func(*CreateOrderCommand){
		"no items":         func(c *CreateOrderCommand) { c.Items = nil },
		"zero quantity":    func(c *CreateOrderCommand) { c.Items[0].Quantity = 0 },
		"unavailable item": func(c *CreateOrderCommand) { c.Items[0].ProductID = "retired" },
		"unknown item":     func(c *CreateOrderCommand) { c.Items[0].ProductID = "ghost" },
		"no address":       func(c *CreateOrderCommand) { c.ShippingAddress = "" },
		"no user":          func(c *CreateOrderCommand) { c.UserID = " " },
	}
	for name, mutate := range cases {
		cmd := checkoutCommand()
		mutate(&cmd)
		if _, err := f.svc.Create(context.Background(), cmd); !errors.Is(err, ErrOrderInvalidInput) {
			t.Fatalf("%s: expected invalid input, got %v", name, err)
		}
	}
}

func TestOrderServiceCreateUsesSavedAddress(t *testing.T) {
	f := newOrderFixture(t)
	cmd := checkoutCommand()
	cmd.ShippingAddress = ""
	cmd.AddressID = "addr-1"

	created, err := f.svc.Create(context.Background(), cmd)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	shipping := created.Order.ShippingAddress
	if shipping.Details == nil || shipping.Details.ID != "addr-1" {
		t.Fatalf("expected address details snapshot, got %+v", shipping)
	}
	if shipping.Text != "12 MG Road, Bengaluru, KA, 560001" {
		t.Fatalf("unexpected formatted address %q", shipping.Text)
	}
}

func TestOrderServiceCreateReplaysRequestToken(t *testing.T) {
	f := newOrderFixture(t)
	cmd := checkoutCommand()
	cmd.RequestToken = "tok-123"

	first, err := f.svc.Create(context.Background(), cmd)
	if err != nil {
		t.Fatalf("first Create: %v", err)
	}
	second, err := f.svc.Create(context.Background(), cmd)
	if err != nil {
		t.Fatalf("second Create: %v", err)
	}
	if !second.Replayed || second.Order.ID != first.Order.ID {
		t.Fatalf("expected replay of %s, got %+v", first.Order.ID, second)
	}
	if len(f.orders.orders) != 1 {
		t.Fatalf("expected a single stored order, got %d", len(f.orders.orders))
	}
	if got := f.events.types(); len(got) != 1 {
		t.Fatalf("expected replay to publish nothing new, got %v", got)
	}
}

func TestOrderServiceCreateSettlesVerifiedIntent(t *testing.T) {
	f := newOrderFixture(t)
	f.intents.intents["pi_1"] = domain.PaymentIntent{
		ID: "pi_1", UserID: "user-1", Amount: 50500, Currency: "INR", Status: domain.PaymentIntentVerified, PaymentID: "pay_1",
	}
	cmd := checkoutCommand()
	cmd.PaymentIntentID = "pi_1"

	created, err := f.svc.Create(context.Background(), cmd)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !created.Order.Paid() || created.Order.Payment.IntentID != "pi_1" {
		t.Fatalf("expected paid order, got %+v", created.Order.Payment)
	}
	if f.intents.intents["pi_1"].Status != domain.PaymentIntentConsumed {
		t.Fatalf("expected intent consumed, got %s", f.intents.intents["pi_1"].Status)
	}
	if got := f.events.types(); len(got) != 2 || got[1] != OrderEventPaid {
		t.Fatalf("expected created and paid events, got %v", got)
	}

	// A second order cannot reuse the consumed intent.
	_, err = f.svc.Create(context.Background(), cmd)
	if !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected conflict on reuse, got %v", err)
	}
}

func TestOrderServiceCreateRejectsUnverifiedOrForeignIntent(t *testing.T) {
	f := newOrderFixture(t)
	f.intents.intents["pi_open"] = domain.PaymentIntent{ID: "pi_open", UserID: "user-1", Amount: 50500, Currency: "INR", Status: domain.PaymentIntentCreated}
	f.intents.intents["pi_other"] = domain.PaymentIntent{ID: "pi_other", UserID: "user-2", Amount: 50500, Currency: "INR", Status: domain.PaymentIntentVerified}
	f.intents.intents["pi_short"] = domain.PaymentIntent{ID: "pi_short", UserID: "user-1", Amount: 100, Currency: "INR", Status: domain.PaymentIntentVerified}

	cases := []struct {
		intent string
		want   error
	}{
		{intent: "pi_open", want: ErrOrderInvalidInput},
		{intent: "pi_other", want: ErrOrderForbidden},
		{intent: "pi_short", want: ErrOrderInvalidInput},
		{intent: "pi_missing", want: ErrOrderInvalidInput},
	}
	for _, tc := range cases {
		cmd := checkoutCommand()
		cmd.PaymentIntentID = tc.intent
		if _, err := f.svc.Create(context.Background(), cmd); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.intent, tc.want, err)
		}
	}
	if f.orders.creates != 0 {
		t.Fatalf("expected no writes, got %d", f.orders.creates)
	}
}

func placedOrder(id, userID string, status domain.OrderStatus) domain.Order {
	return domain.Order{
		ID:     id,
		UserID: userID,
		Items:  []domain.LineItem{{ProductID: "biryani", Name: "Chicken Biryani", UnitPrice: dec("200"), Quantity: 1}},
		Totals: domain.ComputeTotals(dec("200"), domain.DefaultTaxRate, dec("30"), dec("0")),
		Status: status,
	}
}

func TestOrderServiceGetEnforcesOwnership(t *testing.T) {
	f := newOrderFixture(t, placedOrder("o1", "user-1", domain.OrderStatusPlaced))

	if _, err := f.svc.Get(context.Background(), GetOrderCommand{OrderID: "o1", ActorID: "user-1"}); err != nil {
		t.Fatalf("owner Get: %v", err)
	}
	if _, err := f.svc.Get(context.Background(), GetOrderCommand{OrderID: "o1", ActorID: "admin", IsAdmin: true}); err != nil {
		t.Fatalf("admin Get: %v", err)
	}
	_, err := f.svc.Get(context.Background(), GetOrderCommand{OrderID: "o1", ActorID: "user-2"})
	if !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := f.svc.Get(context.Background(), GetOrderCommand{OrderID: "nope", ActorID: "user-1"}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOrderServiceListLimits(t *testing.T) {
	f := newOrderFixture(t, placedOrder("o1", "user-1", domain.OrderStatusPlaced), placedOrder("o2", "user-2", domain.OrderStatusPlaced))

	mine, err := f.svc.ListMine(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("ListMine: %v", err)
	}
	if len(mine) != 1 || f.orders.lastLimit != 20 {
		t.Fatalf("expected 1 order with limit 20, got %d (limit %d)", len(mine), f.orders.lastLimit)
	}
	all, err := f.svc.ListAll(context.Background())
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(all) != 2 || f.orders.lastLimit != 50 {
		t.Fatalf("expected 2 orders with limit 50, got %d (limit %d)", len(all), f.orders.lastLimit)
	}
}

func TestOrderServiceUpdateStatusFollowsTransitions(t *testing.T) {
	f := newOrderFixture(t, placedOrder("o1", "user-1", domain.OrderStatusPlaced))

	order, err := f.svc.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: "o1", ActorID: "admin", Status: "Food Processing"})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if order.Status != domain.OrderStatusProcessing || order.ProcessingAt == nil {
		t.Fatalf("expected processing with timestamp, got %+v", order)
	}
	if got := f.audit.actions(); len(got) != 1 || got[0] != "UPDATE_ORDER_STATUS" {
		t.Fatalf("unexpected audit %v", got)
	}
	if len(f.events.events) != 1 || f.events.events[0].PreviousStatus != string(domain.OrderStatusPlaced) {
		t.Fatalf("unexpected events %+v", f.events.events)
	}

	if _, err := f.svc.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: "o1", Status: "Delivered"}); !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected skipped step rejected, got %v", err)
	}
}

func TestOrderServiceUpdateStatusRejectsLeavingTerminalState(t *testing.T) {
	f := newOrderFixture(t, placedOrder("o1", "user-1", domain.OrderStatusDelivered))

	_, err := f.svc.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: "o1", Status: "Out for delivery"})
	if !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
	if f.orders.orders["o1"].Status != domain.OrderStatusDelivered {
		t.Fatalf("expected order unchanged, got %s", f.orders.orders["o1"].Status)
	}
	if len(f.audit.records) != 0 || len(f.events.events) != 0 {
		t.Fatalf("expected no side effects")
	}
}

func TestOrderServiceUpdateStatusSameStatusIsNoop(t *testing.T) {
	f := newOrderFixture(t, placedOrder("o1", "user-1", domain.OrderStatusDelivered))

	order, err := f.svc.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: "o1", Status: "Delivered"})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if order.Status != domain.OrderStatusDelivered || len(f.events.events) != 0 {
		t.Fatalf("expected silent no-op, got %+v events=%v", order, f.events.types())
	}
}

func TestOrderServiceUpdateStatusUnknownValue(t *testing.T) {
	f := newOrderFixture(t, placedOrder("o1", "user-1", domain.OrderStatusPlaced))

	if _, err := f.svc.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: "o1", Status: "Teleported"}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestOrderServiceCancelByOwner(t *testing.T) {
	f := newOrderFixture(t, placedOrder("o1", "user-1", domain.OrderStatusPlaced))

	order, err := f.svc.Cancel(context.Background(), CancelOrderCommand{OrderID: "o1", ActorID: "user-1"})
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if order.Status != domain.OrderStatusCancelled || order.CancelledAt == nil {
		t.Fatalf("expected cancelled, got %+v", order)
	}
	if order.CancelReason == nil || *order.CancelReason != "User cancelled" {
		t.Fatalf("expected default reason, got %v", order.CancelReason)
	}
	if got := f.audit.actions(); len(got) != 1 || got[0] != "ORDER_CANCELLED_BY_USER" {
		t.Fatalf("unexpected audit %v", got)
	}
	if got := f.events.types(); len(got) != 1 || got[0] != OrderEventCancelled {
		t.Fatalf("expected cancelled event, got %v", got)
	}
	if len(f.gateway.refunds) != 0 {
		t.Fatalf("expected no refund for unpaid order")
	}
}

func TestOrderServiceCancelRules(t *testing.T) {
	f := newOrderFixture(t,
		placedOrder("o1", "user-1", domain.OrderStatusPlaced),
		placedOrder("o2", "user-1", domain.OrderStatusProcessing),
	)

	if _, err := f.svc.Cancel(context.Background(), CancelOrderCommand{OrderID: "o1", ActorID: "user-2"}); !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	_, err := f.svc.Cancel(context.Background(), CancelOrderCommand{OrderID: "o2", ActorID: "user-1"})
	var domainErr DomainError
	if !errors.Is(err, ErrOrderInvalidState) || !errors.As(err, &domainErr) ||
		domainErr.SafeMessage() != "Order cannot be cancelled at this stage. Please contact support." {
		t.Fatalf("expected not cancellable, got %v", err)
	}
	if f.orders.orders["o2"].Status != domain.OrderStatusProcessing {
		t.Fatalf("expected o2 unchanged")
	}
}

func TestOrderServiceCancelRefundsPaidOrder(t *testing.T) {
	paid := placedOrder("o1", "user-1", domain.OrderStatusPlaced)
	paid.Payment = &domain.OrderPayment{IntentID: "pi_9", Amount: 24000, Currency: "INR", Status: domain.PaymentStatusPaid}
	f := newOrderFixture(t, paid)

	order, err := f.svc.Cancel(context.Background(), CancelOrderCommand{OrderID: "o1", ActorID: "user-1", Reason: "changed my mind"})
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if len(f.gateway.refunds) != 1 || f.gateway.refunds[0].IntentID != "pi_9" || f.gateway.refunds[0].IdempotencyKey != "refund_o1" {
		t.Fatalf("unexpected refunds %+v", f.gateway.refunds)
	}
	if order.Payment.Status != domain.PaymentStatusRefunded {
		t.Fatalf("expected refunded payment, got %s", order.Payment.Status)
	}
}

func TestOrderServiceCancelRefundFailureKeepsCancellation(t *testing.T) {
	paid := placedOrder("o1", "user-1", domain.OrderStatusPlaced)
	paid.Payment = &domain.OrderPayment{IntentID: "pi_9", Amount: 24000, Currency: "INR", Status: domain.PaymentStatusPaid}
	f := newOrderFixture(t, paid)
	f.gateway.refundErr = errors.New("gateway down")

	order, err := f.svc.Cancel(context.Background(), CancelOrderCommand{OrderID: "o1", ActorID: "user-1"})
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if order.Status != domain.OrderStatusCancelled || order.Payment.Status != domain.PaymentStatusPaid {
		t.Fatalf("expected cancelled order still marked paid, got %+v", order)
	}
	if !f.logger.has("order.refund_failed") {
		t.Fatalf("expected refund failure logged")
	}
}

func TestOrderServiceMarkPaid(t *testing.T) {
	f := newOrderFixture(t, placedOrder("o1", "user-1", domain.OrderStatusPlaced))
	intent := domain.PaymentIntent{ID: "pi_1", UserID: "user-1", Amount: 24000, Currency: "INR"}

	order, err := f.svc.MarkPaid(context.Background(), MarkOrderPaidCommand{OrderID: "o1", Intent: intent, PaymentID: "pay_1", Signature: "sig"})
	if err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}
	if !order.Paid() || order.Payment.PaymentID != "pay_1" {
		t.Fatalf("expected paid order, got %+v", order.Payment)
	}

	if _, err := f.svc.MarkPaid(context.Background(), MarkOrderPaidCommand{OrderID: "o1", Intent: intent}); err != nil {
		t.Fatalf("expected re-apply of same intent to succeed, got %v", err)
	}
	if got := f.events.types(); len(got) != 1 {
		t.Fatalf("expected a single paid event, got %v", got)
	}

	other := domain.PaymentIntent{ID: "pi_2", UserID: "user-1", Amount: 24000, Currency: "INR"}
	if _, err := f.svc.MarkPaid(context.Background(), MarkOrderPaidCommand{OrderID: "o1", Intent: other}); !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected conflict for a second intent, got %v", err)
	}
}

func TestOrderServiceMarkPaidRejectsMismatch(t *testing.T) {
	f := newOrderFixture(t,
		placedOrder("o1", "user-1", domain.OrderStatusPlaced),
		placedOrder("o2", "user-1", domain.OrderStatusCancelled),
	)

	short := domain.PaymentIntent{ID: "pi_1", UserID: "user-1", Amount: 100, Currency: "INR"}
	if _, err := f.svc.MarkPaid(context.Background(), MarkOrderPaidCommand{OrderID: "o1", Intent: short}); !errors.Is(err, ErrPaymentMismatch) {
		t.Fatalf("expected amount mismatch, got %v", err)
	}
	foreign := domain.PaymentIntent{ID: "pi_1", UserID: "user-2", Amount: 24000, Currency: "INR"}
	if _, err := f.svc.MarkPaid(context.Background(), MarkOrderPaidCommand{OrderID: "o1", Intent: foreign}); !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	exact := domain.PaymentIntent{ID: "pi_1", UserID: "user-1", Amount: 24000, Currency: "INR"}
	if _, err := f.svc.MarkPaid(context.Background(), MarkOrderPaidCommand{OrderID: "o2", Intent: exact}); !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected cancelled order rejected, got %v", err)
	}
	if f.orders.orders["o1"].Paid() {
		t.Fatalf("expected o1 to stay unpaid")
	}
}

func TestOrderServiceAttachIntent(t *testing.T) {
	f := newOrderFixture(t, placedOrder("o1", "user-1", domain.OrderStatusPlaced))
	intent := domain.PaymentIntent{ID: "pi_1", UserID: "user-1", Amount: 24000, Currency: "INR"}

	order, err := f.svc.AttachIntent(context.Background(), AttachIntentCommand{OrderID: "o1", ActorID: "user-1", Intent: intent})
	if err != nil {
		t.Fatalf("AttachIntent: %v", err)
	}
	if order.Payment == nil || order.Payment.Status != domain.PaymentStatusPending || order.Paid() {
		t.Fatalf("expected pending payment, got %+v", order.Payment)
	}
	if _, err := f.svc.AttachIntent(context.Background(), AttachIntentCommand{OrderID: "o1", ActorID: "user-2", Intent: intent}); !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestOrderServiceStatsStampsGeneratedAt(t *testing.T) {
	f := newOrderFixture(t)
	f.orders.stats = domain.OrderStats{TotalOrders: 3, TotalRevenue: dec("1200"), ActiveUsers: 2, PendingOrders: 1}

	stats, err := f.svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalOrders != 3 || !stats.GeneratedAt.Equal(orderNow) {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestNewOrderServiceValidatesConfig(t *testing.T) {
	if _, err := NewOrderService(OrderServiceDeps{}); err == nil {
		t.Fatalf("expected error without repository")
	}
	if _, err := NewOrderService(OrderServiceDeps{Orders: newStubOrderRepo(), TaxRate: decPtr("-0.1")}); err == nil {
		t.Fatalf("expected error for negative tax rate")
	}
	if _, err := NewOrderService(OrderServiceDeps{Orders: newStubOrderRepo(), Currency: "XYZW"}); err == nil {
		t.Fatalf("expected error for unknown currency")
	}
}
