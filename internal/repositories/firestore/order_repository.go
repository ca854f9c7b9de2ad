package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/goldenzaika/api/internal/domain"
	pfirestore "github.com/goldenzaika/api/internal/platform/firestore"
	"github.com/goldenzaika/api/internal/repositories"
)

const (
	orderCollection      = "orders"
	orderTokenCollection = "order_tokens"
)

// OrderRepository persists orders along with their request token reservations.
type OrderRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[orderDocument]
	tokens   *pfirestore.BaseRepository[orderTokenDocument]
	intents  *pfirestore.BaseRepository[paymentIntentDocument]
	users    *pfirestore.BaseRepository[userDocument]
	now      func() time.Time
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[orderDocument](provider, orderCollection),
		tokens:   pfirestore.NewBaseRepository[orderTokenDocument](provider, orderTokenCollection),
		intents:  pfirestore.NewBaseRepository[paymentIntentDocument](provider, paymentIntentCollection),
		users:    pfirestore.NewBaseRepository[userDocument](provider, userCollection),
		now:      time.Now,
	}, nil
}

// Create writes the order, reserving the request token and consuming the payment intent in the same
// transaction. A token already reserved by this user yields the original order and replayed=true.
func (r *OrderRepository) Create(ctx context.Context, order domain.Order, opts repositories.CreateOrderOptions) (domain.Order, bool, error) {
	orderRef, err := r.base.DocumentRef(ctx, order.ID)
	if err != nil {
		return domain.Order{}, false, err
	}

	var tokenRef *firestore.DocumentRef
	if token := strings.TrimSpace(opts.RequestToken); token != "" {
		tokenRef, err = r.tokens.DocumentRef(ctx, orderTokenID(order.UserID, token))
		if err != nil {
			return domain.Order{}, false, err
		}
	}
	var intentRef *firestore.DocumentRef
	intentID := strings.TrimSpace(opts.ConsumeIntentID)
	if intentID != "" {
		intentRef, err = r.intents.DocumentRef(ctx, intentID)
		if err != nil {
			return domain.Order{}, false, err
		}
	}

	var (
		saved    domain.Order
		replayed bool
	)
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		saved, replayed = domain.Order{}, false

		if tokenRef != nil {
			snap, err := tx.Get(tokenRef)
			switch status.Code(err) {
			case codes.OK:
				var reservation orderTokenDocument
				if err := snap.DataTo(&reservation); err != nil {
					return fmt.Errorf("decode order token %s: %w", snap.Ref.ID, err)
				}
				original, err := tx.Get(orderRef.Parent.Doc(reservation.OrderID))
				if err != nil {
					return err
				}
				existing, err := decodeOrder(original)
				if err != nil {
					return err
				}
				saved, replayed = existing, true
				return nil
			case codes.NotFound:
			default:
				return err
			}
		}

		if intentRef != nil {
			snap, err := tx.Get(intentRef)
			if status.Code(err) == codes.NotFound {
				return repositories.NewSettlementError(repositories.SettlementIntentMissing, intentID)
			}
			if err != nil {
				return err
			}
			var intent paymentIntentDocument
			if err := snap.DataTo(&intent); err != nil {
				return fmt.Errorf("decode payment intent %s: %w", intentID, err)
			}
			switch domain.PaymentIntentStatus(intent.Status) {
			case domain.PaymentIntentVerified:
			case domain.PaymentIntentConsumed:
				return repositories.NewSettlementError(repositories.SettlementIntentConsumed, intentID)
			default:
				return repositories.NewSettlementError(repositories.SettlementIntentNotVerified, intentID)
			}
		}

		if err := tx.Create(orderRef, orderFromDomain(order)); err != nil {
			return err
		}
		if tokenRef != nil {
			if err := tx.Create(tokenRef, orderTokenDocument{
				OrderID:   order.ID,
				UserID:    order.UserID,
				CreatedAt: order.CreatedAt.UTC(),
			}); err != nil {
				return err
			}
		}
		if intentRef != nil {
			if err := tx.Update(intentRef, []firestore.Update{
				{Path: "status", Value: string(domain.PaymentIntentConsumed)},
				{Path: "orderId", Value: order.ID},
			}); err != nil {
				return err
			}
		}
		saved = order
		return nil
	})
	if err != nil {
		return domain.Order{}, false, pfirestore.WrapError("orders.create", err)
	}
	return saved, replayed, nil
}

// Get loads an order by id.
func (r *OrderRepository) Get(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// ListByUser returns the user's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, errors.New("order repository: user id is required")
	}
	return r.list(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("userId", "==", uid).OrderBy("createdAt", firestore.Desc)
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q
	})
}

// ListAll returns the most recent orders across all users.
func (r *OrderRepository) ListAll(ctx context.Context, limit int) ([]domain.Order, error) {
	return r.list(ctx, func(q firestore.Query) firestore.Query {
		q = q.OrderBy("createdAt", firestore.Desc)
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q
	})
}

func (r *OrderRepository) list(ctx context.Context, build pfirestore.QueryBuilder) ([]domain.Order, error) {
	docs, err := r.base.Query(ctx, build)
	if err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, doc.Data.toDomain(doc.ID))
	}
	return orders, nil
}

// Mutate reads the order inside a transaction, applies fn, and persists the result.
func (r *OrderRepository) Mutate(ctx context.Context, orderID string, fn func(*domain.Order) error) (domain.Order, error) {
	if fn == nil {
		return domain.Order{}, errors.New("order repository: mutate function is required")
	}
	docRef, err := r.base.DocumentRef(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}

	var saved domain.Order
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(docRef)
		if err != nil {
			return err
		}
		order, err := decodeOrder(snap)
		if err != nil {
			return err
		}
		if err := fn(&order); err != nil {
			return err
		}
		saved = order
		return tx.Set(docRef, orderFromDomain(order))
	})
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.mutate", err)
	}
	return saved, nil
}

// Stats scans a projection of the orders collection and counts registered users.
func (r *OrderRepository) Stats(ctx context.Context) (domain.OrderStats, error) {
	coll, err := r.base.CollectionRef(ctx)
	if err != nil {
		return domain.OrderStats{}, err
	}

	stats := domain.OrderStats{TotalRevenue: decimal.Zero}
	iter := coll.Select("totalAmount", "status").Documents(ctx)
	defer iter.Stop()
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.OrderStats{}, pfirestore.WrapError("orders.stats", err)
		}
		var row orderStatsRow
		if err := snap.DataTo(&row); err != nil {
			return domain.OrderStats{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
		}
		stats.TotalOrders++
		switch domain.OrderStatus(row.Status) {
		case domain.OrderStatusCancelled:
			continue
		case domain.OrderStatusPlaced, domain.OrderStatusPending, domain.OrderStatusProcessing:
			stats.PendingOrders++
		}
		stats.TotalRevenue = stats.TotalRevenue.Add(decimalFromStored(row.TotalAmount))
	}

	users, err := r.users.CollectionRef(ctx)
	if err != nil {
		return domain.OrderStats{}, err
	}
	result, err := users.NewAggregationQuery().WithCount("users").Get(ctx)
	if err != nil {
		return domain.OrderStats{}, pfirestore.WrapError("users.count", err)
	}
	if value, ok := result["users"].(*firestorepb.Value); ok {
		stats.ActiveUsers = int(value.GetIntegerValue())
	}
	stats.GeneratedAt = r.now().UTC()
	return stats, nil
}

func orderTokenID(userID, token string) string {
	return strings.TrimSpace(userID) + ":" + strings.TrimSpace(token)
}

func decodeOrder(snap *firestore.DocumentSnapshot) (domain.Order, error) {
	var doc orderDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Order{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

type orderTokenDocument struct {
	OrderID   string    `firestore:"orderId"`
	UserID    string    `firestore:"userId"`
	CreatedAt time.Time `firestore:"createdAt"`
}

type orderStatsRow struct {
	TotalAmount float64 `firestore:"totalAmount"`
	Status      string  `firestore:"status"`
}

type orderDocument struct {
	UserID          string                `firestore:"userId"`
	Items           []orderItemDocument   `firestore:"items"`
	Subtotal        float64               `firestore:"subtotal"`
	Tax             float64               `firestore:"tax"`
	DeliveryFee     float64               `firestore:"deliveryFee"`
	Discount        float64               `firestore:"discount"`
	TotalAmount     float64               `firestore:"totalAmount"`
	CouponCode      *string               `firestore:"couponCode"`
	ShippingAddress string                `firestore:"shippingAddress"`
	ShippingDetails *addressDocument      `firestore:"shippingDetails,omitempty"`
	Instructions    string                `firestore:"instructions,omitempty"`
	Status          string                `firestore:"status"`
	PaymentStatus   string                `firestore:"paymentStatus,omitempty"`
	Payment         *orderPaymentDocument `firestore:"payment,omitempty"`
	RequestToken    string                `firestore:"requestToken,omitempty"`
	CancelReason    *string               `firestore:"cancelReason,omitempty"`
	CreatedAt       time.Time             `firestore:"createdAt"`
	UpdatedAt       time.Time             `firestore:"updatedAt"`
	ProcessingAt    *time.Time            `firestore:"processingAt,omitempty"`
	DispatchedAt    *time.Time            `firestore:"dispatchedAt,omitempty"`
	DeliveredAt     *time.Time            `firestore:"deliveredAt,omitempty"`
	CancelledAt     *time.Time            `firestore:"cancelledAt,omitempty"`
}

type orderItemDocument struct {
	ProductID string  `firestore:"productId"`
	Name      string  `firestore:"name"`
	Price     float64 `firestore:"price"`
	Quantity  int     `firestore:"quantity"`
	Image     string  `firestore:"image,omitempty"`
}

type orderPaymentDocument struct {
	IntentID   string     `firestore:"intentId"`
	PaymentID  string     `firestore:"paymentId,omitempty"`
	Signature  string     `firestore:"signature,omitempty"`
	Amount     int64      `firestore:"amount"`
	Currency   string     `firestore:"currency"`
	Status     string     `firestore:"status"`
	VerifiedAt *time.Time `firestore:"verifiedAt,omitempty"`
	RefundID   string     `firestore:"refundId,omitempty"`
}

func orderFromDomain(order domain.Order) orderDocument {
	doc := orderDocument{
		UserID:          order.UserID,
		Items:           make([]orderItemDocument, 0, len(order.Items)),
		Subtotal:        storedFromDecimal(order.Totals.Subtotal),
		Tax:             storedFromDecimal(order.Totals.Tax),
		DeliveryFee:     storedFromDecimal(order.Totals.DeliveryFee),
		Discount:        storedFromDecimal(order.Totals.Discount),
		TotalAmount:     storedFromDecimal(order.Totals.Total),
		CouponCode:      cloneString(order.CouponCode),
		ShippingAddress: order.ShippingAddress.Text,
		Instructions:    order.Instructions,
		Status:          string(order.Status),
		RequestToken:    order.RequestToken,
		CancelReason:    cloneString(order.CancelReason),
		CreatedAt:       order.CreatedAt.UTC(),
		UpdatedAt:       order.UpdatedAt.UTC(),
		ProcessingAt:    cloneTime(order.ProcessingAt),
		DispatchedAt:    cloneTime(order.DispatchedAt),
		DeliveredAt:     cloneTime(order.DeliveredAt),
		CancelledAt:     cloneTime(order.CancelledAt),
	}
	for _, item := range order.Items {
		doc.Items = append(doc.Items, orderItemDocument{
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     storedFromDecimal(item.UnitPrice),
			Quantity:  item.Quantity,
			Image:     item.ImageURL,
		})
	}
	if details := order.ShippingAddress.Details; details != nil {
		snapshot := addressFromDomain(*details)
		doc.ShippingDetails = &snapshot
	}
	if p := order.Payment; p != nil {
		doc.PaymentStatus = string(p.Status)
		doc.Payment = &orderPaymentDocument{
			IntentID:   p.IntentID,
			PaymentID:  p.PaymentID,
			Signature:  p.Signature,
			Amount:     p.Amount,
			Currency:   p.Currency,
			Status:     string(p.Status),
			VerifiedAt: cloneTime(p.VerifiedAt),
			RefundID:   p.RefundID,
		}
	}
	return doc
}

func (d orderDocument) toDomain(id string) domain.Order {
	order := domain.Order{
		ID:     id,
		UserID: d.UserID,
		Items:  make([]domain.LineItem, 0, len(d.Items)),
		Totals: domain.OrderTotals{
			Subtotal:    decimalFromStored(d.Subtotal),
			Tax:         decimalFromStored(d.Tax),
			DeliveryFee: decimalFromStored(d.DeliveryFee),
			Discount:    decimalFromStored(d.Discount),
			Total:       decimalFromStored(d.TotalAmount),
		},
		CouponCode:      cloneString(d.CouponCode),
		ShippingAddress: domain.ShippingAddress{Text: d.ShippingAddress},
		Instructions:    d.Instructions,
		Status:          domain.OrderStatus(d.Status),
		RequestToken:    d.RequestToken,
		CancelReason:    cloneString(d.CancelReason),
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
		ProcessingAt:    cloneTime(d.ProcessingAt),
		DispatchedAt:    cloneTime(d.DispatchedAt),
		DeliveredAt:     cloneTime(d.DeliveredAt),
		CancelledAt:     cloneTime(d.CancelledAt),
	}
	for _, item := range d.Items {
		order.Items = append(order.Items, domain.LineItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: decimalFromStored(item.Price),
			Quantity:  item.Quantity,
			ImageURL:  item.Image,
		})
	}
	if d.ShippingDetails != nil {
		details := d.ShippingDetails.toDomain("")
		order.ShippingAddress.Details = &details
	}
	if p := d.Payment; p != nil {
		order.Payment = &domain.OrderPayment{
			IntentID:   p.IntentID,
			PaymentID:  p.PaymentID,
			Signature:  p.Signature,
			Amount:     p.Amount,
			Currency:   p.Currency,
			Status:     domain.PaymentStatus(p.Status),
			VerifiedAt: cloneTime(p.VerifiedAt),
			RefundID:   p.RefundID,
		}
	}
	return order
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
