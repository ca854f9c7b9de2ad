package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/goldenzaika/api/internal/domain"
	"github.com/goldenzaika/api/internal/payments"
	"github.com/goldenzaika/api/internal/repositories"
)

type stubRepoError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e stubRepoError) Error() string       { return "repository failure" }
func (e stubRepoError) IsNotFound() bool    { return e.notFound }
func (e stubRepoError) IsConflict() bool    { return e.conflict }
func (e stubRepoError) IsUnavailable() bool { return e.unavailable }

var (
	errStubNotFound    = stubRepoError{notFound: true}
	errStubConflict    = stubRepoError{conflict: true}
	errStubUnavailable = stubRepoError{unavailable: true}
)

func dec(value string) decimal.Decimal { return decimal.RequireFromString(value) }

func decPtr(value string) *decimal.Decimal {
	d := dec(value)
	return &d
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func sequenceIDs(ids ...string) func() string {
	var mu sync.Mutex
	next := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		if next >= len(ids) {
			return "id-overflow"
		}
		id := ids[next]
		next++
		return id
	}
}

type stubZoneRepo struct {
	zones   []domain.Zone
	listErr error

	inserted []domain.Zone
	updated  []domain.Zone
	deleted  []string
}

func (s *stubZoneRepo) List(context.Context) ([]domain.Zone, error) {
	return s.zones, s.listErr
}

func (s *stubZoneRepo) Get(_ context.Context, zoneID string) (domain.Zone, error) {
	for _, zone := range s.zones {
		if zone.ID == zoneID {
			return zone, nil
		}
	}
	return domain.Zone{}, errStubNotFound
}

func (s *stubZoneRepo) Insert(_ context.Context, zone domain.Zone) error {
	s.inserted = append(s.inserted, zone)
	return nil
}

func (s *stubZoneRepo) Update(_ context.Context, zone domain.Zone) error {
	s.updated = append(s.updated, zone)
	return nil
}

func (s *stubZoneRepo) Delete(_ context.Context, zoneID string) error {
	if _, err := s.Get(context.Background(), zoneID); err != nil {
		return err
	}
	s.deleted = append(s.deleted, zoneID)
	return nil
}

type stubCouponRepo struct {
	coupons   map[string]domain.Coupon
	insertErr error
	inserted  []domain.Coupon
	updated   []domain.Coupon
}

func newStubCouponRepo(coupons ...domain.Coupon) *stubCouponRepo {
	repo := &stubCouponRepo{coupons: map[string]domain.Coupon{}}
	for _, coupon := range coupons {
		repo.coupons[coupon.ID] = coupon
	}
	return repo
}

func (s *stubCouponRepo) List(context.Context) ([]domain.Coupon, error) {
	out := make([]domain.Coupon, 0, len(s.coupons))
	for _, coupon := range s.coupons {
		out = append(out, coupon)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *stubCouponRepo) Get(_ context.Context, couponID string) (domain.Coupon, error) {
	coupon, ok := s.coupons[couponID]
	if !ok {
		return domain.Coupon{}, errStubNotFound
	}
	return coupon, nil
}

func (s *stubCouponRepo) FindByCode(_ context.Context, code string) (domain.Coupon, error) {
	for _, coupon := range s.coupons {
		if coupon.Code == code {
			return coupon, nil
		}
	}
	return domain.Coupon{}, errStubNotFound
}

func (s *stubCouponRepo) Insert(_ context.Context, coupon domain.Coupon) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.inserted = append(s.inserted, coupon)
	s.coupons[coupon.ID] = coupon
	return nil
}

func (s *stubCouponRepo) Update(_ context.Context, coupon domain.Coupon) error {
	s.updated = append(s.updated, coupon)
	s.coupons[coupon.ID] = coupon
	return nil
}

func (s *stubCouponRepo) Delete(_ context.Context, couponID string) error {
	if _, ok := s.coupons[couponID]; !ok {
		return errStubNotFound
	}
	delete(s.coupons, couponID)
	return nil
}

// stubOrderRepo keeps orders in memory and settles intents the way the transactional store does.
type stubOrderRepo struct {
	mu        sync.Mutex
	orders    map[string]domain.Order
	tokens    map[string]string
	intents   *stubIntentRepo
	createErr error
	stats     domain.OrderStats

	lastLimit int
	creates   int
}

func newStubOrderRepo(orders ...domain.Order) *stubOrderRepo {
	repo := &stubOrderRepo{orders: map[string]domain.Order{}, tokens: map[string]string{}}
	for _, order := range orders {
		repo.orders[order.ID] = order
	}
	return repo
}

func (s *stubOrderRepo) Create(_ context.Context, order domain.Order, opts repositories.CreateOrderOptions) (domain.Order, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	if s.createErr != nil {
		return domain.Order{}, false, s.createErr
	}
	if opts.RequestToken != "" {
		if existing, ok := s.tokens[opts.RequestToken]; ok {
			return s.orders[existing], true, nil
		}
	}
	if opts.ConsumeIntentID != "" && s.intents != nil {
		intent, ok := s.intents.intents[opts.ConsumeIntentID]
		switch {
		case !ok:
			return domain.Order{}, false, repositories.NewSettlementError(repositories.SettlementIntentMissing, opts.ConsumeIntentID)
		case intent.Status == domain.PaymentIntentConsumed:
			return domain.Order{}, false, repositories.NewSettlementError(repositories.SettlementIntentConsumed, opts.ConsumeIntentID)
		case intent.Status != domain.PaymentIntentVerified:
			return domain.Order{}, false, repositories.NewSettlementError(repositories.SettlementIntentNotVerified, opts.ConsumeIntentID)
		}
		intent.Status = domain.PaymentIntentConsumed
		intent.OrderID = order.ID
		s.intents.intents[intent.ID] = intent
	}
	s.orders[order.ID] = order
	if opts.RequestToken != "" {
		s.tokens[opts.RequestToken] = order.ID
	}
	return order, false, nil
}

func (s *stubOrderRepo) Get(_ context.Context, orderID string) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return domain.Order{}, errStubNotFound
	}
	return order, nil
}

func (s *stubOrderRepo) ListByUser(_ context.Context, userID string, limit int) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastLimit = limit
	var out []domain.Order
	for _, order := range s.orders {
		if order.UserID == userID {
			out = append(out, order)
		}
	}
	return out, nil
}

func (s *stubOrderRepo) ListAll(_ context.Context, limit int) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastLimit = limit
	out := make([]domain.Order, 0, len(s.orders))
	for _, order := range s.orders {
		out = append(out, order)
	}
	return out, nil
}

func (s *stubOrderRepo) Mutate(_ context.Context, orderID string, fn func(*domain.Order) error) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return domain.Order{}, errStubNotFound
	}
	if order.Payment != nil {
		payment := *order.Payment
		order.Payment = &payment
	}
	if err := fn(&order); err != nil {
		return domain.Order{}, err
	}
	s.orders[orderID] = order
	return order, nil
}

func (s *stubOrderRepo) Stats(context.Context) (domain.OrderStats, error) {
	return s.stats, nil
}

type stubIntentRepo struct {
	intents map[string]domain.PaymentIntent
}

func newStubIntentRepo(intents ...domain.PaymentIntent) *stubIntentRepo {
	repo := &stubIntentRepo{intents: map[string]domain.PaymentIntent{}}
	for _, intent := range intents {
		repo.intents[intent.ID] = intent
	}
	return repo
}

func (s *stubIntentRepo) Insert(_ context.Context, intent domain.PaymentIntent) error {
	if _, ok := s.intents[intent.ID]; ok {
		return errStubConflict
	}
	s.intents[intent.ID] = intent
	return nil
}

func (s *stubIntentRepo) Get(_ context.Context, intentID string) (domain.PaymentIntent, error) {
	intent, ok := s.intents[intentID]
	if !ok {
		return domain.PaymentIntent{}, errStubNotFound
	}
	return intent, nil
}

func (s *stubIntentRepo) Mutate(_ context.Context, intentID string, fn func(*domain.PaymentIntent) error) (domain.PaymentIntent, error) {
	intent, ok := s.intents[intentID]
	if !ok {
		return domain.PaymentIntent{}, errStubNotFound
	}
	if err := fn(&intent); err != nil {
		return domain.PaymentIntent{}, err
	}
	s.intents[intentID] = intent
	return intent, nil
}

type stubProductRepo struct {
	products map[string]domain.Product
}

func (s *stubProductRepo) GetMany(_ context.Context, ids []string) (map[string]domain.Product, error) {
	out := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if product, ok := s.products[id]; ok {
			out[id] = product
		}
	}
	return out, nil
}

type stubAddressRepo struct {
	addresses map[string]domain.Address
	saved     []domain.Address
	defaultID string
}

func newStubAddressRepo(addresses ...domain.Address) *stubAddressRepo {
	repo := &stubAddressRepo{addresses: map[string]domain.Address{}}
	for _, address := range addresses {
		repo.addresses[address.ID] = address
	}
	return repo
}

func (s *stubAddressRepo) List(context.Context, string) ([]domain.Address, error) {
	out := make([]domain.Address, 0, len(s.addresses))
	for _, address := range s.addresses {
		out = append(out, address)
	}
	return out, nil
}

func (s *stubAddressRepo) Get(_ context.Context, _ string, addressID string) (domain.Address, error) {
	address, ok := s.addresses[addressID]
	if !ok {
		return domain.Address{}, errStubNotFound
	}
	return address, nil
}

func (s *stubAddressRepo) Save(_ context.Context, _ string, address domain.Address) (domain.Address, error) {
	if address.ID == "" {
		address.ID = "addr-new"
	}
	s.saved = append(s.saved, address)
	s.addresses[address.ID] = address
	return address, nil
}

func (s *stubAddressRepo) Delete(_ context.Context, _ string, addressID string) error {
	if _, ok := s.addresses[addressID]; !ok {
		return errStubNotFound
	}
	delete(s.addresses, addressID)
	return nil
}

func (s *stubAddressRepo) SetDefault(_ context.Context, _ string, addressID string, _ time.Time) error {
	if _, ok := s.addresses[addressID]; !ok {
		return errStubNotFound
	}
	s.defaultID = addressID
	return nil
}

type stubGateway struct {
	createFn  func(payments.IntentRequest) (payments.Intent, error)
	requests  []payments.IntentRequest
	refunds   []payments.RefundRequest
	refundErr error
}

func (s *stubGateway) CreateIntent(_ context.Context, req payments.IntentRequest) (payments.Intent, error) {
	s.requests = append(s.requests, req)
	if s.createFn != nil {
		return s.createFn(req)
	}
	return payments.Intent{ID: "pi_1", Amount: req.Amount, Currency: req.Currency, Receipt: req.Receipt, Status: payments.StatusPending}, nil
}

func (s *stubGateway) LookupIntent(context.Context, string) (payments.Intent, error) {
	return payments.Intent{}, errors.New("not implemented")
}

func (s *stubGateway) Refund(_ context.Context, req payments.RefundRequest) (payments.Intent, error) {
	s.refunds = append(s.refunds, req)
	if s.refundErr != nil {
		return payments.Intent{}, s.refundErr
	}
	return payments.Intent{ID: req.IntentID, Status: payments.StatusRefunded}, nil
}

type stubSignatureChecker struct {
	valid bool
	calls int
}

func (s *stubSignatureChecker) Verify(string, string, string) bool {
	s.calls++
	return s.valid
}

type recordingAudit struct {
	records []AuditLogRecord
}

func (r *recordingAudit) Record(_ context.Context, record AuditLogRecord) {
	r.records = append(r.records, record)
}

func (r *recordingAudit) List(context.Context, AuditLogFilter) (domain.CursorPage[AuditLogEntry], error) {
	return domain.CursorPage[AuditLogEntry]{}, nil
}

func (r *recordingAudit) actions() []string {
	out := make([]string, 0, len(r.records))
	for _, record := range r.records {
		out = append(out, record.Action)
	}
	return out
}

type recordingPublisher struct {
	events []OrderEvent
	err    error
}

func (r *recordingPublisher) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	r.events = append(r.events, event)
	return r.err
}

func (r *recordingPublisher) types() []string {
	out := make([]string, 0, len(r.events))
	for _, event := range r.events {
		out = append(out, event.Type)
	}
	return out
}

type recordingLogger struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingLogger) log(_ context.Context, event string, _ map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingLogger) has(event string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e == event {
			return true
		}
	}
	return false
}

var (
	_ repositories.RepositoryError         = stubRepoError{}
	_ repositories.ZoneRepository          = (*stubZoneRepo)(nil)
	_ repositories.CouponRepository        = (*stubCouponRepo)(nil)
	_ repositories.OrderRepository         = (*stubOrderRepo)(nil)
	_ repositories.PaymentIntentRepository = (*stubIntentRepo)(nil)
	_ repositories.ProductRepository       = (*stubProductRepo)(nil)
	_ repositories.AddressRepository       = (*stubAddressRepo)(nil)
	_ payments.Gateway                     = (*stubGateway)(nil)
	_ SignatureChecker                     = (*stubSignatureChecker)(nil)
	_ AuditLogService                      = (*recordingAudit)(nil)
	_ OrderEventPublisher                  = (*recordingPublisher)(nil)
)
