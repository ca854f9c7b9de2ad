package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/goldenzaika/api/internal/platform/textutil"
	"github.com/goldenzaika/api/internal/repositories"
)

const (
	defaultAddressLabel  = "Home"
	addressFieldMaxRunes = 160
	addressLabelMaxRunes = 40
)

// AddressServiceDeps bundles collaborators required to construct the address service.
type AddressServiceDeps struct {
	Addresses repositories.AddressRepository
	Clock     func() time.Time
	Logger    ServiceLogger
}

type addressService struct {
	addresses repositories.AddressRepository
	clock     func() time.Time
	logger    ServiceLogger
}

// NewAddressService wires dependencies into a concrete AddressService implementation.
func NewAddressService(deps AddressServiceDeps) (AddressService, error) {
	if deps.Addresses == nil {
		return nil, errors.New("address service: address repository is required")
	}
	return &addressService{
		addresses: deps.Addresses,
		clock:     utcClock(deps.Clock),
		logger:    serviceLogger(deps.Logger),
	}, nil
}

func (s *addressService) List(ctx context.Context, userID string) ([]Address, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, newServiceError(ErrAddressInvalidInput, "invalid_request", "User is required")
	}
	addresses, err := s.addresses.List(ctx, userID)
	if err != nil {
		return nil, translateRepoError(err, nil)
	}
	return addresses, nil
}

func (s *addressService) Create(ctx context.Context, cmd CreateAddressCommand) (Address, error) {
	if strings.TrimSpace(cmd.UserID) == "" {
		return Address{}, newServiceError(ErrAddressInvalidInput, "invalid_request", "User is required")
	}
	now := s.clock()
	address := normaliseAddress(Address{
		Label:     cmd.Label,
		Street:    cmd.Street,
		City:      cmd.City,
		State:     cmd.State,
		Zip:       cmd.Zip,
		Phone:     cmd.Phone,
		IsDefault: cmd.IsDefault,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err := validateAddress(address); err != nil {
		return Address{}, err
	}
	saved, err := s.addresses.Save(ctx, cmd.UserID, address)
	if err != nil {
		return Address{}, translateRepoError(err, nil)
	}
	s.logger(ctx, "address.created", map[string]any{"userId": cmd.UserID, "addressId": saved.ID})
	return saved, nil
}

func (s *addressService) Update(ctx context.Context, cmd UpdateAddressCommand) (Address, error) {
	if strings.TrimSpace(cmd.UserID) == "" || strings.TrimSpace(cmd.AddressID) == "" {
		return Address{}, newServiceError(ErrAddressInvalidInput, "invalid_request", "Address id is required")
	}
	address, err := s.addresses.Get(ctx, cmd.UserID, strings.TrimSpace(cmd.AddressID))
	if err != nil {
		return Address{}, translateRepoError(err, ErrAddressNotFound)
	}
	patchString(&address.Label, cmd.Label)
	patchString(&address.Street, cmd.Street)
	patchString(&address.City, cmd.City)
	patchString(&address.State, cmd.State)
	patchString(&address.Zip, cmd.Zip)
	patchString(&address.Phone, cmd.Phone)
	if cmd.IsDefault != nil {
		address.IsDefault = *cmd.IsDefault
	}
	address = normaliseAddress(address)
	if err := validateAddress(address); err != nil {
		return Address{}, err
	}
	address.UpdatedAt = s.clock()

	saved, err := s.addresses.Save(ctx, cmd.UserID, address)
	if err != nil {
		return Address{}, translateRepoError(err, ErrAddressNotFound)
	}
	return saved, nil
}

func (s *addressService) Delete(ctx context.Context, userID, addressID string) error {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(addressID) == "" {
		return newServiceError(ErrAddressInvalidInput, "invalid_request", "Address id is required")
	}
	if err := s.addresses.Delete(ctx, userID, strings.TrimSpace(addressID)); err != nil {
		return translateRepoError(err, ErrAddressNotFound)
	}
	return nil
}

// SetDefault marks one address as the default and clears every other default atomically.
func (s *addressService) SetDefault(ctx context.Context, userID, addressID string) error {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(addressID) == "" {
		return newServiceError(ErrAddressInvalidInput, "invalid_request", "Address id is required")
	}
	if err := s.addresses.SetDefault(ctx, userID, strings.TrimSpace(addressID), s.clock()); err != nil {
		return translateRepoError(err, ErrAddressNotFound)
	}
	return nil
}

func normaliseAddress(address Address) Address {
	address.Label = textutil.TitleCase(address.Label)
	if len([]rune(address.Label)) > addressLabelMaxRunes {
		address.Label = string([]rune(address.Label)[:addressLabelMaxRunes])
	}
	if address.Label == "" {
		address.Label = defaultAddressLabel
	}
	address.Street = textutil.Sanitize(address.Street, addressFieldMaxRunes)
	address.City = textutil.Sanitize(address.City, addressFieldMaxRunes)
	address.State = textutil.Sanitize(address.State, addressFieldMaxRunes)
	address.Zip = strings.TrimSpace(address.Zip)
	address.Phone = strings.TrimSpace(address.Phone)
	return address
}

func validateAddress(address Address) error {
	if address.Street == "" || address.City == "" || address.Zip == "" || address.Phone == "" {
		return newServiceError(ErrAddressInvalidInput, "invalid_request", "Missing required fields")
	}
	return nil
}

func patchString(dst *string, value *string) {
	if value != nil {
		*dst = *value
	}
}
