package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/goldenzaika/api/internal/platform/textutil"
	"github.com/goldenzaika/api/internal/repositories"
)

const (
	zoneNameMaxRunes = 80

	msgZoneNotServed = "Delivery not available to this pincode."
)

// ZoneServiceDeps bundles collaborators required to construct the zone service.
type ZoneServiceDeps struct {
	Zones       repositories.ZoneRepository
	Audit       AuditLogService
	Clock       func() time.Time
	IDGenerator func() string
	Logger      ServiceLogger
}

type zoneService struct {
	zones  repositories.ZoneRepository
	audit  AuditLogService
	clock  func() time.Time
	newID  func() string
	logger ServiceLogger
}

// NewZoneService wires dependencies into a concrete ZoneService implementation.
func NewZoneService(deps ZoneServiceDeps) (ZoneService, error) {
	if deps.Zones == nil {
		return nil, errors.New("zone service: zone repository is required")
	}
	return &zoneService{
		zones:  deps.Zones,
		audit:  auditOrNoop(deps.Audit),
		clock:  utcClock(deps.Clock),
		newID:  idGenerator(deps.IDGenerator),
		logger: serviceLogger(deps.Logger),
	}, nil
}

// Resolve finds the first active zone serving postalCode. A miss or an unmet minimum is reported in
// the resolution, not as an error.
func (s *zoneService) Resolve(ctx context.Context, postalCode string, subtotal decimal.Decimal) (ZoneResolution, error) {
	code := strings.TrimSpace(postalCode)
	if code == "" {
		return ZoneResolution{}, newServiceError(ErrZoneInvalidInput, "invalid_request", "Pincode is required")
	}
	if subtotal.IsNegative() {
		return ZoneResolution{}, newServiceError(ErrZoneInvalidInput, "invalid_request", "Subtotal cannot be negative")
	}

	zones, err := s.zones.List(ctx)
	if err != nil {
		return ZoneResolution{}, translateRepoError(err, nil)
	}
	for i := range zones {
		zone := zones[i]
		if !zone.Serves(code) {
			continue
		}
		if subtotal.LessThan(zone.MinOrderAmount) {
			minimum := zone.MinOrderAmount
			return ZoneResolution{
				Zone:           &zone,
				MinOrderAmount: &minimum,
				Reason:         ZoneReasonBelowMinimum,
				Message:        fmt.Sprintf("Minimum order for this area is ₹%s", minimum.String()),
			}, nil
		}
		return ZoneResolution{
			Available:   true,
			Zone:        &zone,
			DeliveryFee: zone.DeliveryFee,
		}, nil
	}
	return ZoneResolution{Reason: ZoneReasonNoMatch, Message: msgZoneNotServed}, nil
}

func (s *zoneService) ListActive(ctx context.Context) ([]Zone, error) {
	zones, err := s.zones.List(ctx)
	if err != nil {
		return nil, translateRepoError(err, nil)
	}
	active := make([]Zone, 0, len(zones))
	for _, zone := range zones {
		if zone.Active {
			active = append(active, zone)
		}
	}
	return active, nil
}

func (s *zoneService) List(ctx context.Context) ([]Zone, error) {
	zones, err := s.zones.List(ctx)
	if err != nil {
		return nil, translateRepoError(err, nil)
	}
	return zones, nil
}

func (s *zoneService) Create(ctx context.Context, cmd CreateZoneCommand) (Zone, error) {
	now := s.clock()
	zone := Zone{
		ID:             s.newID(),
		Name:           textutil.Sanitize(cmd.Name, zoneNameMaxRunes),
		PostalCodes:    dedupeTrimmed(cmd.PostalCodes),
		DeliveryFee:    cmd.DeliveryFee,
		MinOrderAmount: cmd.MinOrderAmount,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := validateZone(zone); err != nil {
		return Zone{}, err
	}
	if err := s.zones.Insert(ctx, zone); err != nil {
		return Zone{}, translateRepoError(err, nil)
	}
	s.audit.Record(ctx, AuditLogRecord{
		Actor:     cmd.ActorID,
		Action:    "CREATE_ZONE",
		TargetRef: zoneTargetRef(zone.ID),
		Details:   map[string]any{"zoneId": zone.ID, "name": zone.Name},
	})
	s.logger(ctx, "zone.created", map[string]any{"zoneId": zone.ID})
	return zone, nil
}

func (s *zoneService) Update(ctx context.Context, cmd UpdateZoneCommand) (Zone, error) {
	zoneID := strings.TrimSpace(cmd.ZoneID)
	if zoneID == "" {
		return Zone{}, newServiceError(ErrZoneInvalidInput, "invalid_request", "Zone id is required")
	}
	zone, err := s.zones.Get(ctx, zoneID)
	if err != nil {
		return Zone{}, translateRepoError(err, ErrZoneNotFound)
	}

	updates := map[string]any{}
	if cmd.Name != nil {
		zone.Name = textutil.Sanitize(*cmd.Name, zoneNameMaxRunes)
		updates["name"] = zone.Name
	}
	if cmd.PostalCodes != nil {
		zone.PostalCodes = dedupeTrimmed(cmd.PostalCodes)
		updates["pincodes"] = zone.PostalCodes
	}
	if cmd.DeliveryFee != nil {
		zone.DeliveryFee = *cmd.DeliveryFee
		updates["deliveryFee"] = zone.DeliveryFee.String()
	}
	if cmd.MinOrderAmount != nil {
		zone.MinOrderAmount = *cmd.MinOrderAmount
		updates["minOrderAmount"] = zone.MinOrderAmount.String()
	}
	if cmd.Active != nil {
		zone.Active = *cmd.Active
		updates["isActive"] = zone.Active
	}
	if err := validateZone(zone); err != nil {
		return Zone{}, err
	}
	zone.UpdatedAt = s.clock()

	if err := s.zones.Update(ctx, zone); err != nil {
		return Zone{}, translateRepoError(err, ErrZoneNotFound)
	}
	s.audit.Record(ctx, AuditLogRecord{
		Actor:     cmd.ActorID,
		Action:    "UPDATE_ZONE",
		TargetRef: zoneTargetRef(zone.ID),
		Details:   map[string]any{"zoneId": zone.ID, "updates": updates},
	})
	return zone, nil
}

func (s *zoneService) Delete(ctx context.Context, cmd DeleteZoneCommand) error {
	zoneID := strings.TrimSpace(cmd.ZoneID)
	if zoneID == "" {
		return newServiceError(ErrZoneInvalidInput, "invalid_request", "Zone id is required")
	}
	if err := s.zones.Delete(ctx, zoneID); err != nil {
		return translateRepoError(err, ErrZoneNotFound)
	}
	s.audit.Record(ctx, AuditLogRecord{
		Actor:     cmd.ActorID,
		Action:    "DELETE_ZONE",
		TargetRef: zoneTargetRef(zoneID),
		Details:   map[string]any{"zoneId": zoneID},
	})
	return nil
}

func validateZone(zone Zone) error {
	if zone.Name == "" || len(zone.PostalCodes) == 0 {
		return newServiceError(ErrZoneInvalidInput, "invalid_request", "Invalid zone data")
	}
	if zone.DeliveryFee.IsNegative() || zone.MinOrderAmount.IsNegative() {
		return newServiceError(ErrZoneInvalidInput, "invalid_request", "Delivery fee and minimum order cannot be negative")
	}
	return nil
}

func zoneTargetRef(id string) string { return "service_zones/" + id }
