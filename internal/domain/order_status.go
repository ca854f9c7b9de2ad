package domain

import (
	"slices"
	"time"
)

// OrderStatus enumerates valid lifecycle states for orders. Values are stored verbatim.
type OrderStatus string

const (
	// OrderStatusPlaced is the initial state of every new order.
	OrderStatusPlaced OrderStatus = "Placed"
	// OrderStatusPending is an alias of Placed kept for records written by older clients.
	OrderStatusPending OrderStatus = "Pending"
	// OrderStatusProcessing indicates the kitchen accepted the order.
	OrderStatusProcessing OrderStatus = "Food Processing"
	// OrderStatusOutForDelivery indicates the order left the kitchen.
	OrderStatusOutForDelivery OrderStatus = "Out for delivery"
	// OrderStatusDelivered is terminal.
	OrderStatusDelivered OrderStatus = "Delivered"
	// OrderStatusCancelled is terminal.
	OrderStatusCancelled OrderStatus = "Cancelled"
)

var orderStatusTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPlaced:         {OrderStatusPending, OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusPending:        {OrderStatusPlaced, OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing:     {OrderStatusOutForDelivery},
	OrderStatusOutForDelivery: {OrderStatusDelivered},
	OrderStatusDelivered:      nil,
	OrderStatusCancelled:      nil,
}

var userCancellableStatuses = []OrderStatus{OrderStatusPlaced, OrderStatusPending}

// ParseOrderStatus returns the status for a known value.
func ParseOrderStatus(value string) (OrderStatus, bool) {
	status := OrderStatus(value)
	_, ok := orderStatusTransitions[status]
	return status, ok
}

// OrderStatuses lists every known status in lifecycle order.
func OrderStatuses() []OrderStatus {
	return []OrderStatus{
		OrderStatusPlaced,
		OrderStatusPending,
		OrderStatusProcessing,
		OrderStatusOutForDelivery,
		OrderStatusDelivered,
		OrderStatusCancelled,
	}
}

// IsTerminal reports whether no further transition is permitted.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	allowed, ok := orderStatusTransitions[s]
	if !ok {
		return false
	}
	return slices.Contains(allowed, next)
}

// UserCancellable reports whether the owner may still cancel.
func (s OrderStatus) UserCancellable() bool {
	return slices.Contains(userCancellableStatuses, s)
}

// SLALevel classifies how long a live order has been waiting.
type SLALevel string

const (
	SLANominal  SLALevel = "nominal"
	SLAWarning  SLALevel = "warning"
	SLACritical SLALevel = "critical"
)

const (
	slaWarningAfter  = 30
	slaCriticalAfter = 60
)

// SLA is a derived operator view; it is never persisted.
type SLA struct {
	ElapsedMinutes int
	Level          SLALevel
}

// SLAFor returns the SLA view for a non-terminal order. Terminal orders report false.
func SLAFor(order Order, now time.Time) (SLA, bool) {
	if order.Status.IsTerminal() || order.CreatedAt.IsZero() {
		return SLA{}, false
	}
	elapsed := int(now.Sub(order.CreatedAt) / time.Minute)
	if elapsed < 0 {
		elapsed = 0
	}
	level := SLANominal
	switch {
	case elapsed > slaCriticalAfter:
		level = SLACritical
	case elapsed >= slaWarningAfter:
		level = SLAWarning
	}
	return SLA{ElapsedMinutes: elapsed, Level: level}, true
}
