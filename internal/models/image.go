package models

import (
	"time"

	"github.com/google/uuid"
)

type ImageType string

const (
	ImageTypePrimary ImageType = "primary"
	ImageTypeUpsell  ImageType = "upsell"
)

type ImageStatus string

const (
	ImageStatusPending  ImageStatus = "pending"
	ImageStatusApproved ImageStatus = "approved"
	ImageStatusRejected ImageStatus = "rejected"
)

func (s ImageStatus) Valid() bool {
	switch s {
	case ImageStatusPending, ImageStatusApproved, ImageStatusRejected:
		return true
	}
	return false
}

type Image struct {
	ID           uuid.UUID
	OrderID      uuid.UUID
	Type         ImageType
	IsBonus      bool
	Status       ImageStatus
	DisplayOrder int
	ThemeName    string
	// URL is safe to hand to any viewer; for bonus images it is the
	// watermarked preview.
	URL string
	// StoragePath is the clean original in the private bucket.
	StoragePath string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ImageFilter narrows ListImages. Zero values match everything.
type ImageFilter struct {
	Type    ImageType
	Status  ImageStatus
	IsBonus *bool
}

func (f ImageFilter) Match(img Image) bool {
	if f.Type != "" && img.Type != f.Type {
		return false
	}
	if f.Status != "" && img.Status != f.Status {
		return false
	}
	if f.IsBonus != nil && img.IsBonus != *f.IsBonus {
		return false
	}
	return true
}
