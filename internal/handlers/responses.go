package handlers

import (
	"pet-portrait-backend/internal/models"
	"pet-portrait-backend/internal/services"
)

func toOrderResponse(order models.Order, bonusUnlocked bool) models.OrderResponse {
	resp := models.OrderResponse{
		ID:                   order.ID.String(),
		CustomerName:         order.CustomerName,
		CustomerEmail:        order.CustomerEmail,
		ProductType:          order.ProductType,
		Status:               string(order.Status),
		GenerationStatus:     string(order.GenerationStatus),
		GenerationError:      order.GenerationError,
		GenerationReport:     order.GenerationReport,
		RevisionNotes:        order.RevisionNotes,
		RevisionStatus:       string(order.RevisionStatus),
		SelectedPrintProduct: order.SelectedPrintProduct,
		BonusUnlocked:        bonusUnlocked,
		CreatedAt:            order.CreatedAt,
		UpdatedAt:            order.UpdatedAt,
	}
	if order.SelectedImageID != nil {
		resp.SelectedImageID = order.SelectedImageID.String()
	}
	return resp
}

func toImageResponse(img models.Image) models.ImageResponse {
	return models.ImageResponse{
		ID:           img.ID.String(),
		Type:         string(img.Type),
		IsBonus:      img.IsBonus,
		Status:       string(img.Status),
		DisplayOrder: img.DisplayOrder,
		ThemeName:    img.ThemeName,
		URL:          img.URL,
		CreatedAt:    img.CreatedAt,
	}
}

func toImagesResponse(images []models.Image) models.ImagesResponse {
	resp := models.ImagesResponse{Images: make([]models.ImageResponse, 0, len(images))}
	for _, img := range images {
		resp.Images = append(resp.Images, toImageResponse(img))
	}
	return resp
}

func toCustomerResponse(g services.Gallery) models.CustomerOrderResponse {
	resp := models.CustomerOrderResponse{
		Status:               string(g.Order.Status),
		AwaitingArtwork:      g.AwaitingArtwork,
		PetName:              g.Order.PetName,
		SelectedPrintProduct: g.Order.SelectedPrintProduct,
		Images:               make([]models.GalleryImage, 0, len(g.Items)),
	}
	if g.Order.SelectedImageID != nil {
		resp.SelectedImageID = g.Order.SelectedImageID.String()
	}
	for _, item := range g.Items {
		resp.Images = append(resp.Images, models.GalleryImage{
			ID:           item.Image.ID.String(),
			Type:         string(item.Image.Type),
			IsBonus:      item.Image.IsBonus,
			Locked:       item.Asset.Locked(),
			DisplayOrder: item.Image.DisplayOrder,
			ThemeName:    item.Image.ThemeName,
			PreviewURL:   item.Image.URL,
		})
	}
	return resp
}
