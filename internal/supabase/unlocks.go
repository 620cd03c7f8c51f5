package supabase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"pet-portrait-backend/internal/models"
	"pet-portrait-backend/internal/services"
)

const bonusUnlocksTable = "bonus_unlocks"

// UnlockStore records bonus payments in the bonus_unlocks table through
// PostgREST. Rows are never updated or removed, so an unlock is permanent.
type UnlockStore struct {
	client *Client
}

func NewUnlockStore(client *Client) *UnlockStore {
	return &UnlockStore{client: client}
}

func (u *UnlockStore) MarkBonusUnlocked(ctx context.Context, orderID uuid.UUID, paymentRef string) error {
	unlocked, err := u.IsBonusUnlocked(ctx, orderID)
	if err != nil {
		return err
	}
	if unlocked {
		return nil
	}

	row := models.BonusUnlock{OrderID: orderID, PaymentRef: paymentRef, UnlockedAt: time.Now().UTC()}
	_, _, err = u.client.Supabase.From(bonusUnlocksTable).
		Insert(row, false, "", "minimal", "").
		Execute()
	if err != nil {
		// A concurrent delivery of the same payment may have won the insert.
		if again, checkErr := u.IsBonusUnlocked(ctx, orderID); checkErr == nil && again {
			return nil
		}
		return fmt.Errorf("failed to insert bonus unlock: %w", err)
	}
	return nil
}

func (u *UnlockStore) IsBonusUnlocked(ctx context.Context, orderID uuid.UUID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	var rows []models.BonusUnlock
	_, err := u.client.Supabase.From(bonusUnlocksTable).
		Select("order_id,payment_ref,unlocked_at", "", false).
		Eq("order_id", orderID.String()).
		ExecuteTo(&rows)
	if err != nil {
		return false, fmt.Errorf("failed to read bonus unlock: %w", err)
	}
	return len(rows) > 0, nil
}

var _ services.UnlockStore = (*UnlockStore)(nil)
