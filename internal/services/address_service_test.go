package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/goldenzaika/api/internal/domain"
)

func TestAddressServiceCreateNormalises(t *testing.T) {
	repo := newStubAddressRepo()
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	svc, err := NewAddressService(AddressServiceDeps{Addresses: repo, Clock: fixedClock(now)})
	if err != nil {
		t.Fatalf("NewAddressService: %v", err)
	}

	address, err := svc.Create(context.Background(), CreateAddressCommand{
		UserID: "user-1",
		Label:  "  work place ",
		Street: " <b>12</b>  MG   Road ",
		City:   "Bengaluru",
		Zip:    " 560001 ",
		Phone:  "9999999999",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if address.Label != "Work Place" {
		t.Fatalf("expected title-cased label, got %q", address.Label)
	}
	if address.Street != "12 MG Road" || address.Zip != "560001" {
		t.Fatalf("expected sanitised fields, got %+v", address)
	}
	if !address.CreatedAt.Equal(now) {
		t.Fatalf("expected createdAt %s, got %s", now, address.CreatedAt)
	}
}

func TestAddressServiceCreateDefaultsLabel(t *testing.T) {
	svc, _ := NewAddressService(AddressServiceDeps{Addresses: newStubAddressRepo()})

	address, err := svc.Create(context.Background(), CreateAddressCommand{
		UserID: "user-1", Street: "1 Road", City: "Pune", Zip: "411001", Phone: "88",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if address.Label != "Home" {
		t.Fatalf("expected default label Home, got %q", address.Label)
	}
}

func TestAddressServiceCreateRequiresFields(t *testing.T) {
	repo := newStubAddressRepo()
	svc, _ := NewAddressService(AddressServiceDeps{Addresses: repo})

	_, err := svc.Create(context.Background(), CreateAddressCommand{UserID: "user-1", Street: "1 Road", City: "Pune"})
	if !errors.Is(err, ErrAddressInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if len(repo.saved) != 0 {
		t.Fatalf("expected nothing saved")
	}
}

func TestAddressServiceUpdatePatches(t *testing.T) {
	repo := newStubAddressRepo(domain.Address{ID: "a1", Label: "Home", Street: "1 Road", City: "Pune", Zip: "411001", Phone: "88"})
	svc, _ := NewAddressService(AddressServiceDeps{Addresses: repo})

	city := "Mumbai"
	address, err := svc.Update(context.Background(), UpdateAddressCommand{UserID: "user-1", AddressID: "a1", City: &city})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if address.City != "Mumbai" || address.Street != "1 Road" {
		t.Fatalf("unexpected address %+v", address)
	}

	blank := ""
	if _, err := svc.Update(context.Background(), UpdateAddressCommand{UserID: "user-1", AddressID: "a1", Phone: &blank}); !errors.Is(err, ErrAddressInvalidInput) {
		t.Fatalf("expected clearing a required field rejected, got %v", err)
	}
	if _, err := svc.Update(context.Background(), UpdateAddressCommand{UserID: "user-1", AddressID: "missing", City: &city}); !errors.Is(err, ErrAddressNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAddressServiceSetDefaultAndDelete(t *testing.T) {
	repo := newStubAddressRepo(
		domain.Address{ID: "a1", IsDefault: true},
		domain.Address{ID: "a2"},
	)
	svc, _ := NewAddressService(AddressServiceDeps{Addresses: repo})

	if err := svc.SetDefault(context.Background(), "user-1", "a2"); err != nil {
		t.Fatalf("SetDefault: %v", err)
	}
	if repo.defaultID != "a2" {
		t.Fatalf("expected a2 default, got %q", repo.defaultID)
	}
	if err := svc.SetDefault(context.Background(), "user-1", "missing"); !errors.Is(err, ErrAddressNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := svc.Delete(context.Background(), "user-1", "a1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := svc.Delete(context.Background(), "user-1", "a1"); !errors.Is(err, ErrAddressNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}
