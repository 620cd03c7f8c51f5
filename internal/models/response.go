package models

import (
	"encoding/json"
	"time"
)

type OrderResponse struct {
	ID                   string          `json:"order_id"`
	CustomerName         string          `json:"customer_name"`
	CustomerEmail        string          `json:"customer_email"`
	ProductType          string          `json:"product_type"`
	Status               string          `json:"status"`
	GenerationStatus     string          `json:"generation_status"`
	GenerationError      string          `json:"generation_error,omitempty"`
	GenerationReport     json.RawMessage `json:"generation_report,omitempty"`
	RevisionNotes        string          `json:"revision_notes,omitempty"`
	RevisionStatus       string          `json:"revision_status,omitempty"`
	SelectedImageID      string          `json:"selected_image_id,omitempty"`
	SelectedPrintProduct string          `json:"selected_print_product,omitempty"`
	BonusUnlocked        bool            `json:"bonus_unlocked"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

type ImageResponse struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	IsBonus      bool      `json:"is_bonus"`
	Status       string    `json:"status"`
	DisplayOrder int       `json:"display_order"`
	ThemeName    string    `json:"theme_name"`
	URL          string    `json:"url"`
	CreatedAt    time.Time `json:"created_at"`
}

type ImagesResponse struct {
	Images []ImageResponse `json:"images"`
}

type GalleryImage struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	IsBonus      bool   `json:"is_bonus"`
	Locked       bool   `json:"locked"`
	DisplayOrder int    `json:"display_order"`
	ThemeName    string `json:"theme_name"`
	PreviewURL   string `json:"preview_url"`
}

// CustomerOrderResponse never exposes generation details; until the primary
// set is ready the customer only sees that artwork is on its way.
type CustomerOrderResponse struct {
	Status               string         `json:"status"`
	AwaitingArtwork      bool           `json:"awaiting_artwork"`
	PetName              string         `json:"pet_name,omitempty"`
	SelectedImageID      string         `json:"selected_image_id,omitempty"`
	SelectedPrintProduct string         `json:"selected_print_product,omitempty"`
	Images               []GalleryImage `json:"images"`
}

type AssetResponse struct {
	ImageID   string     `json:"image_id"`
	Locked    bool       `json:"locked"`
	URL       string     `json:"url"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type StatusResponse struct {
	Status  string `json:"status"`
	OrderID string `json:"order_id,omitempty"`
	Message string `json:"message,omitempty"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
