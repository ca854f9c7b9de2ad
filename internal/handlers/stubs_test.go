package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	domain "github.com/goldenzaika/api/internal/domain"
	"github.com/goldenzaika/api/internal/platform/auth"
	"github.com/goldenzaika/api/internal/services"
)

// domainError mimics the services package's structured errors.
type domainError struct {
	kind    error
	code    string
	message string
}

func (e *domainError) Error() string        { return e.kind.Error() + ": " + e.message }
func (e *domainError) Is(target error) bool { return target == e.kind }
func (e *domainError) Code() string         { return e.code }
func (e *domainError) SafeMessage() string  { return e.message }

func newDomainError(kind error, code, message string) error {
	return &domainError{kind: kind, code: code, message: message}
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func decPtr(v string) *decimal.Decimal {
	d := dec(v)
	return &d
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func asUser(req *http.Request, uid string) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: uid, Role: auth.RoleUser}))
}

func asAdmin(req *http.Request, uid string) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: uid, Role: auth.RoleAdmin}))
}

func serve(routes RouteRegistrar, req *http.Request) *httptest.ResponseRecorder {
	router := chi.NewRouter()
	router.Route("/", routes)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON body, got %q: %v", rr.Body.String(), err)
	}
	return body
}

type stubZoneService struct {
	resolveFn func(ctx context.Context, postalCode string, subtotal decimal.Decimal) (services.ZoneResolution, error)
	zones     []services.Zone
	err       error

	created services.CreateZoneCommand
	updated services.UpdateZoneCommand
	deleted services.DeleteZoneCommand
}

func (s *stubZoneService) Resolve(ctx context.Context, postalCode string, subtotal decimal.Decimal) (services.ZoneResolution, error) {
	return s.resolveFn(ctx, postalCode, subtotal)
}

func (s *stubZoneService) ListActive(context.Context) ([]services.Zone, error) {
	return s.zones, s.err
}

func (s *stubZoneService) List(context.Context) ([]services.Zone, error) {
	return s.zones, s.err
}

func (s *stubZoneService) Create(_ context.Context, cmd services.CreateZoneCommand) (services.Zone, error) {
	s.created = cmd
	if s.err != nil {
		return services.Zone{}, s.err
	}
	return services.Zone{ID: "zone-1", Name: cmd.Name, PostalCodes: cmd.PostalCodes, DeliveryFee: cmd.DeliveryFee, MinOrderAmount: cmd.MinOrderAmount, Active: true}, nil
}

func (s *stubZoneService) Update(_ context.Context, cmd services.UpdateZoneCommand) (services.Zone, error) {
	s.updated = cmd
	if s.err != nil {
		return services.Zone{}, s.err
	}
	return services.Zone{ID: cmd.ZoneID, Active: true}, nil
}

func (s *stubZoneService) Delete(_ context.Context, cmd services.DeleteZoneCommand) error {
	s.deleted = cmd
	return s.err
}

type stubCouponService struct {
	evaluateFn func(ctx context.Context, code string, subtotal decimal.Decimal) (services.CouponEvaluation, error)
	coupons    []services.Coupon
	err        error

	created services.CreateCouponCommand
	updated services.UpdateCouponCommand
}

func (s *stubCouponService) Evaluate(ctx context.Context, code string, subtotal decimal.Decimal) (services.CouponEvaluation, error) {
	return s.evaluateFn(ctx, code, subtotal)
}

func (s *stubCouponService) List(context.Context) ([]services.Coupon, error) {
	return s.coupons, s.err
}

func (s *stubCouponService) Create(_ context.Context, cmd services.CreateCouponCommand) (services.Coupon, error) {
	s.created = cmd
	if s.err != nil {
		return services.Coupon{}, s.err
	}
	return services.Coupon{ID: "coupon-1", Code: cmd.Code, Type: domain.CouponType(cmd.Type), Value: *cmd.Value, Active: true}, nil
}

func (s *stubCouponService) Update(_ context.Context, cmd services.UpdateCouponCommand) (services.Coupon, error) {
	s.updated = cmd
	if s.err != nil {
		return services.Coupon{}, s.err
	}
	return services.Coupon{ID: cmd.CouponID, Active: true}, nil
}

func (s *stubCouponService) Delete(context.Context, services.DeleteCouponCommand) error {
	return s.err
}

type stubOrderService struct {
	createFn       func(ctx context.Context, cmd services.CreateOrderCommand) (services.OrderCreation, error)
	getFn          func(ctx context.Context, cmd services.GetOrderCommand) (services.Order, error)
	updateStatusFn func(ctx context.Context, cmd services.UpdateOrderStatusCommand) (services.Order, error)
	cancelFn       func(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error)
	orders         []services.Order
	stats          services.OrderStats
	err            error
	listedUser     string
}

func (s *stubOrderService) Create(ctx context.Context, cmd services.CreateOrderCommand) (services.OrderCreation, error) {
	return s.createFn(ctx, cmd)
}

func (s *stubOrderService) Get(ctx context.Context, cmd services.GetOrderCommand) (services.Order, error) {
	return s.getFn(ctx, cmd)
}

func (s *stubOrderService) ListMine(_ context.Context, userID string) ([]services.Order, error) {
	s.listedUser = userID
	return s.orders, s.err
}

func (s *stubOrderService) ListAll(context.Context) ([]services.Order, error) {
	return s.orders, s.err
}

func (s *stubOrderService) UpdateStatus(ctx context.Context, cmd services.UpdateOrderStatusCommand) (services.Order, error) {
	return s.updateStatusFn(ctx, cmd)
}

func (s *stubOrderService) Cancel(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
	return s.cancelFn(ctx, cmd)
}

func (s *stubOrderService) MarkPaid(context.Context, services.MarkOrderPaidCommand) (services.Order, error) {
	return services.Order{}, s.err
}

func (s *stubOrderService) AttachIntent(context.Context, services.AttachIntentCommand) (services.Order, error) {
	return services.Order{}, s.err
}

func (s *stubOrderService) Stats(context.Context) (services.OrderStats, error) {
	return s.stats, s.err
}

type stubPaymentService struct {
	createFn func(ctx context.Context, cmd services.CreatePaymentIntentCommand) (services.PaymentIntent, error)
	verifyFn func(ctx context.Context, cmd services.VerifyPaymentCommand) (services.PaymentVerification, error)
}

func (s *stubPaymentService) CreateIntent(ctx context.Context, cmd services.CreatePaymentIntentCommand) (services.PaymentIntent, error) {
	return s.createFn(ctx, cmd)
}

func (s *stubPaymentService) Verify(ctx context.Context, cmd services.VerifyPaymentCommand) (services.PaymentVerification, error) {
	return s.verifyFn(ctx, cmd)
}

type stubAddressService struct {
	addresses  []services.Address
	err        error
	created    services.CreateAddressCommand
	updated    services.UpdateAddressCommand
	defaultID  string
	deletedIDs []string
}

func (s *stubAddressService) List(context.Context, string) ([]services.Address, error) {
	return s.addresses, s.err
}

func (s *stubAddressService) Create(_ context.Context, cmd services.CreateAddressCommand) (services.Address, error) {
	s.created = cmd
	if s.err != nil {
		return services.Address{}, s.err
	}
	return services.Address{ID: "addr-1", Label: cmd.Label, Street: cmd.Street, City: cmd.City, Zip: cmd.Zip, Phone: cmd.Phone}, nil
}

func (s *stubAddressService) Update(_ context.Context, cmd services.UpdateAddressCommand) (services.Address, error) {
	s.updated = cmd
	if s.err != nil {
		return services.Address{}, s.err
	}
	return services.Address{ID: cmd.AddressID}, nil
}

func (s *stubAddressService) Delete(_ context.Context, _ string, addressID string) error {
	s.deletedIDs = append(s.deletedIDs, addressID)
	return s.err
}

func (s *stubAddressService) SetDefault(_ context.Context, _ string, addressID string) error {
	s.defaultID = addressID
	return s.err
}

type stubFavoriteService struct {
	favorites []services.Favorite
	added     []string
	removed   []string
	err       error
}

func (s *stubFavoriteService) List(context.Context, string) ([]services.Favorite, error) {
	return s.favorites, s.err
}

func (s *stubFavoriteService) Add(_ context.Context, _ string, productID string) error {
	s.added = append(s.added, productID)
	return s.err
}

func (s *stubFavoriteService) Remove(_ context.Context, _ string, productID string) error {
	s.removed = append(s.removed, productID)
	return s.err
}

type stubUserService struct {
	profile services.UserProfile
	err     error
	setRole services.SetUserRoleCommand
}

func (s *stubUserService) ResolveRole(context.Context, string) (string, error) {
	return s.profile.Role, s.err
}

func (s *stubUserService) GetProfile(context.Context, string) (services.UserProfile, error) {
	return s.profile, s.err
}

func (s *stubUserService) SetRole(_ context.Context, cmd services.SetUserRoleCommand) (services.UserProfile, error) {
	s.setRole = cmd
	if s.err != nil {
		return services.UserProfile{}, s.err
	}
	return services.UserProfile{ID: cmd.UserID, Role: cmd.Role}, nil
}

type stubSystemService struct {
	report services.SystemHealthReport
	err    error

	auditFilter services.AuditLogFilter
	auditPage   domain.CursorPage[domain.AuditLogEntry]
}

func (s *stubSystemService) HealthReport(context.Context) (services.SystemHealthReport, error) {
	return s.report, s.err
}

func (s *stubSystemService) ListAuditLogs(_ context.Context, filter services.AuditLogFilter) (domain.CursorPage[domain.AuditLogEntry], error) {
	s.auditFilter = filter
	return s.auditPage, s.err
}

var (
	_ services.DomainError     = (*domainError)(nil)
	_ services.ZoneService     = (*stubZoneService)(nil)
	_ services.CouponService   = (*stubCouponService)(nil)
	_ services.OrderService    = (*stubOrderService)(nil)
	_ services.PaymentService  = (*stubPaymentService)(nil)
	_ services.AddressService  = (*stubAddressService)(nil)
	_ services.FavoriteService = (*stubFavoriteService)(nil)
	_ services.UserService     = (*stubUserService)(nil)
	_ services.SystemService   = (*stubSystemService)(nil)
)
