package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/goldenzaika/api/internal/domain"
	"github.com/goldenzaika/api/internal/platform/textutil"
	"github.com/goldenzaika/api/internal/repositories"
)

const (
	msgCouponRequired     = "Coupon code is required"
	msgCouponInvalid      = "Invalid or expired coupon code"
	msgCouponExpired      = "Coupon has expired"
	msgCouponMissingField = "Missing required fields"
	msgCouponDuplicate    = "Coupon code already exists"
)

var hundred = decimal.NewFromInt(100)

// CouponServiceDeps bundles collaborators required to construct the coupon service.
type CouponServiceDeps struct {
	Coupons     repositories.CouponRepository
	Audit       AuditLogService
	Enabled     func() bool
	Clock       func() time.Time
	IDGenerator func() string
	Logger      ServiceLogger
}

type couponService struct {
	coupons repositories.CouponRepository
	audit   AuditLogService
	enabled func() bool
	clock   func() time.Time
	newID   func() string
	logger  ServiceLogger
}

// NewCouponService wires dependencies into a concrete CouponService implementation. Evaluation is
// enabled unless Enabled reports otherwise.
func NewCouponService(deps CouponServiceDeps) (CouponService, error) {
	if deps.Coupons == nil {
		return nil, errors.New("coupon service: coupon repository is required")
	}
	enabled := deps.Enabled
	if enabled == nil {
		enabled = func() bool { return true }
	}
	return &couponService{
		coupons: deps.Coupons,
		audit:   auditOrNoop(deps.Audit),
		enabled: enabled,
		clock:   utcClock(deps.Clock),
		newID:   idGenerator(deps.IDGenerator),
		logger:  serviceLogger(deps.Logger),
	}, nil
}

// Evaluate checks code against subtotal in order: active, expiry, minimum amount. The discount is
// capped by the coupon's maximum and by the subtotal.
func (s *couponService) Evaluate(ctx context.Context, code string, subtotal decimal.Decimal) (CouponEvaluation, error) {
	if !s.enabled() {
		return CouponEvaluation{}, newServiceError(ErrCouponsDisabled, "coupons_disabled", "Coupons are currently disabled")
	}
	normalized := textutil.UpperCode(code)
	if normalized == "" {
		return CouponEvaluation{}, newServiceError(ErrCouponInvalid, "coupon_invalid", msgCouponRequired)
	}
	if subtotal.IsNegative() {
		return CouponEvaluation{}, newServiceError(ErrCouponInvalid, "coupon_invalid", "Cart total cannot be negative")
	}

	coupon, err := s.coupons.FindByCode(ctx, normalized)
	if err != nil {
		if isRepoNotFound(err) {
			return CouponEvaluation{}, newServiceError(ErrCouponInvalid, "coupon_invalid", msgCouponInvalid)
		}
		return CouponEvaluation{}, translateRepoError(err, nil)
	}
	if !coupon.Active {
		return CouponEvaluation{}, newServiceError(ErrCouponInvalid, "coupon_invalid", msgCouponInvalid)
	}
	if coupon.ExpiresAt != nil && coupon.ExpiresAt.Before(s.clock()) {
		return CouponEvaluation{}, newServiceError(ErrCouponInvalid, "coupon_expired", msgCouponExpired)
	}
	if coupon.MinAmount != nil && coupon.MinAmount.IsPositive() && subtotal.LessThan(*coupon.MinAmount) {
		return CouponEvaluation{}, newServiceError(ErrCouponInvalid, "coupon_min_amount",
			fmt.Sprintf("Minimum amount of ₹%s required", coupon.MinAmount.String()))
	}

	return CouponEvaluation{
		Code:     coupon.Code,
		Discount: couponDiscount(coupon, subtotal),
		Coupon:   coupon,
	}, nil
}

func couponDiscount(coupon Coupon, subtotal decimal.Decimal) decimal.Decimal {
	var discount decimal.Decimal
	switch coupon.Type {
	case domain.CouponTypePercentage:
		discount = subtotal.Mul(coupon.Value).Div(hundred)
		if coupon.MaxDiscount != nil && coupon.MaxDiscount.IsPositive() {
			discount = decimal.Min(discount, *coupon.MaxDiscount)
		}
	default:
		discount = coupon.Value
	}
	discount = decimal.Min(discount, subtotal)
	if discount.IsNegative() {
		return decimal.Zero
	}
	return discount.Round(2)
}

func (s *couponService) List(ctx context.Context) ([]Coupon, error) {
	coupons, err := s.coupons.List(ctx)
	if err != nil {
		return nil, translateRepoError(err, nil)
	}
	return coupons, nil
}

func (s *couponService) Create(ctx context.Context, cmd CreateCouponCommand) (Coupon, error) {
	code := textutil.UpperCode(cmd.Code)
	if code == "" || strings.TrimSpace(cmd.Type) == "" || cmd.Value == nil {
		return Coupon{}, newServiceError(ErrCouponInvalidInput, "invalid_request", msgCouponMissingField)
	}
	now := s.clock()
	coupon := Coupon{
		ID:          s.newID(),
		Code:        code,
		Type:        domain.CouponType(strings.ToLower(strings.TrimSpace(cmd.Type))),
		Value:       *cmd.Value,
		MinAmount:   cmd.MinAmount,
		MaxDiscount: cmd.MaxDiscount,
		ExpiresAt:   utcPtr(cmd.ExpiresAt),
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if cmd.Active != nil {
		coupon.Active = *cmd.Active
	}
	if err := validateCoupon(coupon); err != nil {
		return Coupon{}, err
	}
	if err := s.coupons.Insert(ctx, coupon); err != nil {
		if isRepoConflict(err) {
			return Coupon{}, wrapServiceError(ErrCouponConflict, "coupon_exists", msgCouponDuplicate, err)
		}
		return Coupon{}, translateRepoError(err, nil)
	}
	s.audit.Record(ctx, AuditLogRecord{
		Actor:     cmd.ActorID,
		Action:    "CREATE_COUPON",
		TargetRef: couponTargetRef(coupon.ID),
		Details:   map[string]any{"couponId": coupon.ID, "code": coupon.Code},
	})
	s.logger(ctx, "coupon.created", map[string]any{"couponId": coupon.ID, "code": coupon.Code})
	return coupon, nil
}

func (s *couponService) Update(ctx context.Context, cmd UpdateCouponCommand) (Coupon, error) {
	couponID := strings.TrimSpace(cmd.CouponID)
	if couponID == "" {
		return Coupon{}, newServiceError(ErrCouponInvalidInput, "invalid_request", "Coupon id is required")
	}
	coupon, err := s.coupons.Get(ctx, couponID)
	if err != nil {
		return Coupon{}, translateRepoError(err, ErrCouponNotFound)
	}

	updates := map[string]any{}
	if cmd.Code != nil {
		coupon.Code = textutil.UpperCode(*cmd.Code)
		updates["code"] = coupon.Code
	}
	if cmd.Type != nil {
		coupon.Type = domain.CouponType(strings.ToLower(strings.TrimSpace(*cmd.Type)))
		updates["type"] = string(coupon.Type)
	}
	if cmd.Value != nil {
		coupon.Value = *cmd.Value
		updates["value"] = coupon.Value.String()
	}
	if cmd.MinAmount != nil {
		coupon.MinAmount = cmd.MinAmount
		updates["minAmount"] = cmd.MinAmount.String()
	}
	if cmd.MaxDiscount != nil {
		coupon.MaxDiscount = cmd.MaxDiscount
		updates["maxDiscount"] = cmd.MaxDiscount.String()
	}
	switch {
	case cmd.ClearExpiry:
		coupon.ExpiresAt = nil
		updates["expiry"] = nil
	case cmd.ExpiresAt != nil:
		coupon.ExpiresAt = utcPtr(cmd.ExpiresAt)
		updates["expiry"] = coupon.ExpiresAt.Format(time.RFC3339)
	}
	if cmd.Active != nil {
		coupon.Active = *cmd.Active
		updates["isActive"] = coupon.Active
	}
	if err := validateCoupon(coupon); err != nil {
		return Coupon{}, err
	}
	coupon.UpdatedAt = s.clock()

	if err := s.coupons.Update(ctx, coupon); err != nil {
		if isRepoConflict(err) {
			return Coupon{}, wrapServiceError(ErrCouponConflict, "coupon_exists", msgCouponDuplicate, err)
		}
		return Coupon{}, translateRepoError(err, ErrCouponNotFound)
	}
	s.audit.Record(ctx, AuditLogRecord{
		Actor:     cmd.ActorID,
		Action:    "UPDATE_COUPON",
		TargetRef: couponTargetRef(coupon.ID),
		Details:   map[string]any{"couponId": coupon.ID, "updates": updates},
	})
	return coupon, nil
}

func (s *couponService) Delete(ctx context.Context, cmd DeleteCouponCommand) error {
	couponID := strings.TrimSpace(cmd.CouponID)
	if couponID == "" {
		return newServiceError(ErrCouponInvalidInput, "invalid_request", "Coupon id is required")
	}
	if err := s.coupons.Delete(ctx, couponID); err != nil {
		return translateRepoError(err, ErrCouponNotFound)
	}
	s.audit.Record(ctx, AuditLogRecord{
		Actor:     cmd.ActorID,
		Action:    "DELETE_COUPON",
		TargetRef: couponTargetRef(couponID),
		Details:   map[string]any{"couponId": couponID},
	})
	return nil
}

func validateCoupon(coupon Coupon) error {
	if coupon.Code == "" {
		return newServiceError(ErrCouponInvalidInput, "invalid_request", msgCouponMissingField)
	}
	switch coupon.Type {
	case domain.CouponTypePercentage:
		if coupon.Value.GreaterThan(hundred) {
			return newServiceError(ErrCouponInvalidInput, "invalid_request", "Percentage cannot exceed 100")
		}
	case domain.CouponTypeFlat:
	default:
		return newServiceError(ErrCouponInvalidInput, "invalid_request", "Coupon type must be percentage or flat")
	}
	if !coupon.Value.IsPositive() {
		return newServiceError(ErrCouponInvalidInput, "invalid_request", "Coupon value must be positive")
	}
	if (coupon.MinAmount != nil && coupon.MinAmount.IsNegative()) || (coupon.MaxDiscount != nil && coupon.MaxDiscount.IsNegative()) {
		return newServiceError(ErrCouponInvalidInput, "invalid_request", "Coupon limits cannot be negative")
	}
	return nil
}

func couponTargetRef(id string) string { return "coupons/" + id }

func utcPtr(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := t.UTC()
	return &v
}
