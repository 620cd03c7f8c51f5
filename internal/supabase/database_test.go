package supabase

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pet-portrait-backend/internal/models"
)

func TestBuildApplyTransition(t *testing.T) {
	id := uuid.New()
	confirmed := models.OrderStatusConfirmed
	product := "canvas-16x20"

	sqlStr, args, err := buildApplyTransition(id, models.OrderStatusPending, models.OrderPatch{
		Status:               &confirmed,
		SelectedPrintProduct: &product,
		GenerationReport:     json.RawMessage(`{"total_images":3}`),
	}).ToSql()
	require.NoError(t, err)

	assert.Contains(t, sqlStr, "UPDATE orders SET generation_report = $1, selected_print_product = $2, status = $3, updated_at = NOW()")
	assert.Contains(t, sqlStr, "WHERE id = $4 AND status = $5")
	assert.Contains(t, sqlStr, "RETURNING id, access_token")
	// squirrel runs driver.Valuer on Eq values, so the uuid arrives as text.
	assert.Equal(t, []any{`{"total_images":3}`, product, confirmed, id.String(), models.OrderStatusPending}, args)
}

func TestBuildClaimGeneration(t *testing.T) {
	id := uuid.New()

	sqlStr, args, err := buildClaimGeneration(id).ToSql()
	require.NoError(t, err)

	assert.Contains(t, sqlStr, "UPDATE orders SET generation_status = $1, generation_error = $2, updated_at = NOW()")
	assert.Contains(t, sqlStr, "WHERE generation_status IN ($3,$4) AND id = $5 AND status NOT IN ($6,$7)")
	assert.Equal(t, []any{
		models.GenerationRunning, "",
		models.GenerationQueued, models.GenerationFailed,
		id.String(),
		models.OrderStatusFulfilled, models.OrderStatusClosed,
	}, args)
}

func TestBuildListImages(t *testing.T) {
	orderID := uuid.New()

	sqlStr, args, err := buildListImages(orderID, models.ImageFilter{}).ToSql()
	require.NoError(t, err)
	assert.Contains(t, sqlStr, "FROM order_images WHERE order_id = $1 ORDER BY type ASC, display_order ASC")
	assert.Equal(t, []any{orderID.String()}, args)

	bonus := true
	sqlStr, args, err = buildListImages(orderID, models.ImageFilter{
		Type:    models.ImageTypeUpsell,
		Status:  models.ImageStatusApproved,
		IsBonus: &bonus,
	}).ToSql()
	require.NoError(t, err)
	assert.Contains(t, sqlStr, "WHERE order_id = $1 AND type = $2 AND status = $3 AND is_bonus = $4")
	assert.Equal(t, []any{orderID.String(), models.ImageTypeUpsell, models.ImageStatusApproved, true}, args)
}

func TestBuildInsertOrder(t *testing.T) {
	order := models.Order{
		ID:               uuid.New(),
		AccessToken:      "token",
		ExternalRef:      "cs_1",
		Status:           models.OrderStatusPending,
		GenerationStatus: models.GenerationQueued,
	}

	sqlStr, args, err := buildInsertOrder(order).ToSql()
	require.NoError(t, err)
	assert.Contains(t, sqlStr, "INSERT INTO orders (id,access_token,external_ref")
	assert.Contains(t, sqlStr, "RETURNING id, access_token")
	assert.Len(t, args, 13)
	assert.Equal(t, order.ID, args[0])
}

func TestPatchColumnsSkipsUnsetFields(t *testing.T) {
	assert.Empty(t, patchColumns(models.OrderPatch{}))

	cleared := ""
	cols := patchColumns(models.OrderPatch{CustomerNotes: &cleared})
	assert.Equal(t, map[string]any{"customer_notes": ""}, cols)
}

func TestPublicObjectURL(t *testing.T) {
	assert.Equal(t,
		"https://abc.supabase.co/storage/v1/object/public/portrait-previews/orders/1/a.jpg",
		PublicObjectURL("https://abc.supabase.co/", "portrait-previews", "orders/1/a.jpg"),
	)
}
