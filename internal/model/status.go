package model

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// label turns an enum value such as "in_progress" into "In Progress".
// Casers keep state, so each call gets its own.
func label(value string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(value, "_", " "))
}

// Role is the portal role attached to a user.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleLandlord Role = "landlord"
	RoleManager  Role = "manager"
	RoleTenant   Role = "tenant"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleLandlord, RoleManager, RoleTenant:
		return true
	}
	return false
}

func (r Role) Label() string { return label(string(r)) }

// IsStaff reports whether the role manages properties rather than renting them.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleLandlord || r == RoleManager
}

// PropertyType classifies a property.
type PropertyType string

const (
	PropertyApartment  PropertyType = "apartment"
	PropertyHouse      PropertyType = "house"
	PropertyCommercial PropertyType = "commercial"
	PropertyRoom       PropertyType = "room"
)

func (t PropertyType) Valid() bool {
	switch t {
	case PropertyApartment, PropertyHouse, PropertyCommercial, PropertyRoom:
		return true
	}
	return false
}

func (t PropertyType) Label() string { return label(string(t)) }

// LeaseStatus is the lifecycle state of a lease.
type LeaseStatus string

const (
	LeaseDraft      LeaseStatus = "draft"
	LeaseActive     LeaseStatus = "active"
	LeaseExpired    LeaseStatus = "expired"
	LeaseTerminated LeaseStatus = "terminated"
)

var leaseTransitions = map[LeaseStatus][]LeaseStatus{
	LeaseDraft:  {LeaseActive},
	LeaseActive: {LeaseExpired, LeaseTerminated},
}

func (s LeaseStatus) Valid() bool {
	switch s {
	case LeaseDraft, LeaseActive, LeaseExpired, LeaseTerminated:
		return true
	}
	return false
}

func (s LeaseStatus) Label() string { return label(string(s)) }

func (s LeaseStatus) CanTransitionTo(next LeaseStatus) bool {
	return contains(leaseTransitions[s], next)
}

// InvoiceStatus is the lifecycle state of an invoice.
type InvoiceStatus string

const (
	InvoiceDraft     InvoiceStatus = "draft"
	InvoiceSent      InvoiceStatus = "sent"
	InvoicePaid      InvoiceStatus = "paid"
	InvoiceOverdue   InvoiceStatus = "overdue"
	InvoiceCancelled InvoiceStatus = "cancelled"
)

var invoiceTransitions = map[InvoiceStatus][]InvoiceStatus{
	InvoiceDraft:   {InvoiceSent, InvoicePaid, InvoiceCancelled},
	InvoiceSent:    {InvoicePaid, InvoiceOverdue, InvoiceCancelled},
	InvoiceOverdue: {InvoicePaid, InvoiceCancelled},
}

func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceDraft, InvoiceSent, InvoicePaid, InvoiceOverdue, InvoiceCancelled:
		return true
	}
	return false
}

func (s InvoiceStatus) Label() string { return label(string(s)) }

func (s InvoiceStatus) CanTransitionTo(next InvoiceStatus) bool {
	return contains(invoiceTransitions[s], next)
}

// Editable reports whether line items, dates and notes may still change.
func (s InvoiceStatus) Editable() bool {
	return s == InvoiceDraft || s == InvoiceSent
}

// Payable reports whether payments may be applied to the invoice.
func (s InvoiceStatus) Payable() bool {
	return s == InvoiceDraft || s == InvoiceSent || s == InvoiceOverdue
}

// PaymentStatus is the verification state of a payment.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentVerified PaymentStatus = "verified"
	PaymentRejected PaymentStatus = "rejected"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentVerified, PaymentRejected:
		return true
	}
	return false
}

func (s PaymentStatus) Label() string { return label(string(s)) }

func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	return s == PaymentPending && (next == PaymentVerified || next == PaymentRejected)
}

// PaymentMethod records how money changed hands.
type PaymentMethod string

const (
	MethodCash         PaymentMethod = "cash"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodMobileMoney  PaymentMethod = "mobile_money"
	MethodCard         PaymentMethod = "card"
	MethodCheque       PaymentMethod = "cheque"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodBankTransfer, MethodMobileMoney, MethodCard, MethodCheque:
		return true
	}
	return false
}

func (m PaymentMethod) Label() string { return label(string(m)) }

// ManuallyVerifiable reports whether staff may verify the payment at the
// moment they record it, without waiting on a provider confirmation.
func (m PaymentMethod) ManuallyVerifiable() bool {
	return m == MethodCash || m == MethodBankTransfer
}

// MaintenanceStatus is the state of a maintenance ticket.
type MaintenanceStatus string

const (
	MaintenanceOpen       MaintenanceStatus = "open"
	MaintenanceInProgress MaintenanceStatus = "in_progress"
	MaintenanceResolved   MaintenanceStatus = "resolved"
	MaintenanceClosed     MaintenanceStatus = "closed"
	MaintenanceCancelled  MaintenanceStatus = "cancelled"
)

var maintenanceTransitions = map[MaintenanceStatus][]MaintenanceStatus{
	MaintenanceOpen:       {MaintenanceInProgress, MaintenanceCancelled},
	MaintenanceInProgress: {MaintenanceResolved, MaintenanceOpen},
	MaintenanceResolved:   {MaintenanceClosed, MaintenanceInProgress},
}

func (s MaintenanceStatus) Valid() bool {
	switch s {
	case MaintenanceOpen, MaintenanceInProgress, MaintenanceResolved, MaintenanceClosed, MaintenanceCancelled:
		return true
	}
	return false
}

func (s MaintenanceStatus) Label() string { return label(string(s)) }

func (s MaintenanceStatus) CanTransitionTo(next MaintenanceStatus) bool {
	return contains(maintenanceTransitions[s], next)
}

// Final reports whether the ticket can no longer be edited.
func (s MaintenanceStatus) Final() bool {
	return s == MaintenanceClosed || s == MaintenanceCancelled
}

// MaintenancePriority orders tickets by urgency.
type MaintenancePriority string

const (
	PriorityLow    MaintenancePriority = "low"
	PriorityMedium MaintenancePriority = "medium"
	PriorityHigh   MaintenancePriority = "high"
	PriorityUrgent MaintenancePriority = "urgent"
)

func (p MaintenancePriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

func (p MaintenancePriority) Label() string { return label(string(p)) }

// MaintenanceCategory groups tickets by trade.
type MaintenanceCategory string

const (
	CategoryPlumbing   MaintenanceCategory = "plumbing"
	CategoryElectrical MaintenanceCategory = "electrical"
	CategoryAppliance  MaintenanceCategory = "appliance"
	CategoryStructural MaintenanceCategory = "structural"
	CategoryPest       MaintenanceCategory = "pest"
	CategoryOther      MaintenanceCategory = "other"
)

func (c MaintenanceCategory) Valid() bool {
	switch c {
	case CategoryPlumbing, CategoryElectrical, CategoryAppliance, CategoryStructural, CategoryPest, CategoryOther:
		return true
	}
	return false
}

func (c MaintenanceCategory) Label() string { return label(string(c)) }

func contains[T comparable](values []T, v T) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
