package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusRevising  OrderStatus = "revising"
	OrderStatusReady     OrderStatus = "ready"

	// Terminal states owned by the shipping side.
	OrderStatusFulfilled OrderStatus = "fulfilled"
	OrderStatusClosed    OrderStatus = "closed"
)

func (s OrderStatus) Terminal() bool {
	return s == OrderStatusFulfilled || s == OrderStatusClosed
}

type GenerationStatus string

const (
	GenerationQueued   GenerationStatus = "queued"
	GenerationRunning  GenerationStatus = "running"
	GenerationComplete GenerationStatus = "complete"
	GenerationFailed   GenerationStatus = "failed"
)

type RevisionStatus string

const (
	RevisionNone      RevisionStatus = ""
	RevisionRequested RevisionStatus = "requested"
)

type Order struct {
	ID                   uuid.UUID
	AccessToken          string
	ExternalRef          string
	CustomerName         string
	CustomerEmail        string
	ProductType          string
	Breed                string
	PetName              string
	Details              string
	SourcePhotoRef       string
	CustomerNotes        string
	Status               OrderStatus
	GenerationStatus     GenerationStatus
	GenerationError      string
	GenerationReport     json.RawMessage
	RevisionNotes        string
	RevisionStatus       RevisionStatus
	SocialConsent        bool
	MarketingConsent     bool
	ConsentAt            *time.Time
	SocialHandle         string
	SelectedImageID      *uuid.UUID
	SelectedPrintProduct string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// ReadyForReview reports whether generation met the primary minimum and the
// order is waiting on moderation or the customer.
func (o Order) ReadyForReview() bool {
	return o.GenerationStatus == GenerationComplete
}

// OrderPatch lists the columns a transition changes. Nil fields are left as
// they are; an empty string clears a nullable text column.
type OrderPatch struct {
	Status               *OrderStatus
	GenerationStatus     *GenerationStatus
	GenerationError      *string
	GenerationReport     json.RawMessage
	CustomerNotes        *string
	RevisionNotes        *string
	RevisionStatus       *RevisionStatus
	SelectedImageID      *uuid.UUID
	SelectedPrintProduct *string
	SocialConsent        *bool
	MarketingConsent     *bool
	ConsentAt            *time.Time
	SocialHandle         *string
}

// Apply copies the set fields of p onto o.
func (p OrderPatch) Apply(o *Order) {
	if p.Status != nil {
		o.Status = *p.Status
	}
	if p.GenerationStatus != nil {
		o.GenerationStatus = *p.GenerationStatus
	}
	if p.GenerationError != nil {
		o.GenerationError = *p.GenerationError
	}
	if p.GenerationReport != nil {
		o.GenerationReport = append(json.RawMessage(nil), p.GenerationReport...)
	}
	if p.CustomerNotes != nil {
		o.CustomerNotes = *p.CustomerNotes
	}
	if p.RevisionNotes != nil {
		o.RevisionNotes = *p.RevisionNotes
	}
	if p.RevisionStatus != nil {
		o.RevisionStatus = *p.RevisionStatus
	}
	if p.SelectedImageID != nil {
		id := *p.SelectedImageID
		o.SelectedImageID = &id
	}
	if p.SelectedPrintProduct != nil {
		o.SelectedPrintProduct = *p.SelectedPrintProduct
	}
	if p.SocialConsent != nil {
		o.SocialConsent = *p.SocialConsent
	}
	if p.MarketingConsent != nil {
		o.MarketingConsent = *p.MarketingConsent
	}
	if p.ConsentAt != nil {
		at := *p.ConsentAt
		o.ConsentAt = &at
	}
	if p.SocialHandle != nil {
		o.SocialHandle = *p.SocialHandle
	}
}

// NewOrder is the intake record handed to the order repository.
type NewOrder struct {
	ExternalRef    string
	CustomerName   string
	CustomerEmail  string
	ProductType    string
	Breed          string
	PetName        string
	Details        string
	SourcePhotoRef string
	CustomerNotes  string
}

type BonusUnlock struct {
	OrderID    uuid.UUID `json:"order_id"`
	PaymentRef string    `json:"payment_ref"`
	UnlockedAt time.Time `json:"unlocked_at"`
}
