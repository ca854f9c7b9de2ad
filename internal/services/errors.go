package services

import (
	"errors"
	"fmt"

	"github.com/goldenzaika/api/internal/repositories"
)

var (
	// ErrZoneInvalidInput signals malformed zone data or lookup input.
	ErrZoneInvalidInput = errors.New("zone: invalid input")
	// ErrZoneNotFound indicates the zone could not be located.
	ErrZoneNotFound = errors.New("zone: not found")

	// ErrCouponInvalid covers missing, inactive, expired and below-minimum coupon evaluations.
	ErrCouponInvalid = errors.New("coupon: invalid")
	// ErrCouponInvalidInput signals malformed coupon data on admin writes.
	ErrCouponInvalidInput = errors.New("coupon: invalid input")
	// ErrCouponNotFound indicates the coupon could not be located.
	ErrCouponNotFound = errors.New("coupon: not found")
	// ErrCouponConflict indicates another coupon already uses the code.
	ErrCouponConflict = errors.New("coupon: conflict")
	// ErrCouponsDisabled indicates coupon evaluation is switched off.
	ErrCouponsDisabled = errors.New("coupon: disabled")

	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderForbidden indicates the caller neither owns the order nor operates the store.
	ErrOrderForbidden = errors.New("order: forbidden")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates a settlement or concurrency conflict.
	ErrOrderConflict = errors.New("order: conflict")

	// ErrPaymentInvalidInput signals a malformed payment request.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	// ErrPaymentNotFound indicates the intent could not be located.
	ErrPaymentNotFound = errors.New("payment: not found")
	// ErrPaymentForbidden indicates the intent or order belongs to another user.
	ErrPaymentForbidden = errors.New("payment: forbidden")
	// ErrPaymentMismatch indicates the intent does not match the order it is applied to.
	ErrPaymentMismatch = errors.New("payment: mismatch")
	// ErrPaymentInitiationFailed indicates the gateway could not open an intent.
	ErrPaymentInitiationFailed = errors.New("payment: initiation failed")

	// ErrAddressInvalidInput signals malformed address data.
	ErrAddressInvalidInput = errors.New("address: invalid input")
	// ErrAddressNotFound indicates the address could not be located.
	ErrAddressNotFound = errors.New("address: not found")

	// ErrFavoriteInvalidInput signals a malformed favorite request.
	ErrFavoriteInvalidInput = errors.New("favorite: invalid input")

	// ErrUserInvalidInput signals a malformed user request.
	ErrUserInvalidInput = errors.New("user: invalid input")
	// ErrUserNotFound indicates the user profile could not be located.
	ErrUserNotFound = errors.New("user: not found")

	// ErrAuditInvalidInput signals a malformed audit log query.
	ErrAuditInvalidInput = errors.New("audit: invalid input")

	// ErrServiceUnavailable indicates the datastore is temporarily unreachable.
	ErrServiceUnavailable = errors.New("service unavailable")
)

// serviceError pairs a sentinel kind with a message that is safe to show to the caller.
type serviceError struct {
	kind    error
	code    string
	message string
	cause   error
}

func newServiceError(kind error, code, message string) error {
	return &serviceError{kind: kind, code: code, message: message}
}

func wrapServiceError(kind error, code, message string, cause error) error {
	return &serviceError{kind: kind, code: code, message: message, cause: cause}
}

func (e *serviceError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.message)
}

func (e *serviceError) Is(target error) bool { return target == e.kind }

func (e *serviceError) Unwrap() error { return e.cause }

func (e *serviceError) Code() string { return e.code }

func (e *serviceError) SafeMessage() string { return e.message }

var _ DomainError = (*serviceError)(nil)

// translateRepoError maps repository classifications onto service sentinels. Unclassified errors
// pass through untouched.
func translateRepoError(err error, notFound error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound() && notFound != nil:
			return fmt.Errorf("%w: %w", notFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
		}
	}
	return err
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func isRepoConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}
