package models

type ConfirmSelectionRequest struct {
	ImageID      string `json:"image_id" binding:"required" example:"5f0c5c7e-3c1a-4a4e-9d0e-1f2b3c4d5e6f"`
	PrintProduct string `json:"print_product" binding:"required" example:"canvas-16x20"`
	Notes        string `json:"notes,omitempty"`
}

type RevisionRequest struct {
	ImageID string `json:"image_id" binding:"required"`
	Notes   string `json:"notes" binding:"required"`
}

type ConsentRequest struct {
	SocialConsent    bool   `json:"social_consent"`
	MarketingConsent bool   `json:"marketing_consent"`
	SocialHandle     string `json:"social_handle,omitempty"`
}

type RegenerateRequest struct {
	AutoApprove bool `json:"auto_approve"`
}

// PaymentWebhookEvent is posted by the checkout collaborator once a payment
// settles. Type is "order.paid" for a new portrait order and "bonus.paid" for
// a bonus unlock.
type PaymentWebhookEvent struct {
	Type       string            `json:"type"`
	PaymentRef string            `json:"payment_ref"`
	OrderID    string            `json:"order_id,omitempty"`
	Order      *OrderIntakeEvent `json:"order,omitempty"`
}

type OrderIntakeEvent struct {
	CustomerName   string `json:"customer_name"`
	CustomerEmail  string `json:"customer_email"`
	ProductType    string `json:"product_type"`
	Breed          string `json:"breed,omitempty"`
	PetName        string `json:"pet_name,omitempty"`
	Details        string `json:"details,omitempty"`
	SourcePhotoRef string `json:"source_photo_ref"`
	Notes          string `json:"notes,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
