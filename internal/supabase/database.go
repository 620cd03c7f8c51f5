package supabase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"pet-portrait-backend/internal/models"
	"pet-portrait-backend/internal/services"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const uniqueViolation = "23505"

var orderColumns = []string{
	"id", "access_token", "external_ref", "customer_name", "customer_email",
	"product_type", "breed", "pet_name", "details", "source_photo_ref", "customer_notes",
	"status", "generation_status", "generation_error", "generation_report",
	"revision_notes", "revision_status",
	"social_consent", "marketing_consent", "consent_at", "social_handle",
	"selected_image_id", "selected_print_product",
	"created_at", "updated_at",
}

var imageColumns = []string{
	"id", "order_id", "type", "is_bonus", "status", "display_order",
	"theme_name", "url", "storage_path", "created_at", "updated_at",
}

type rowScanner interface {
	Scan(dest ...any) error
}

// DatabaseClient is the Postgres order and image repository.
type DatabaseClient struct {
	db *sql.DB
}

func NewDatabaseClient(connectionString string) (*DatabaseClient, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

func (d *DatabaseClient) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *DatabaseClient) CreateOrder(ctx context.Context, order models.Order) (models.Order, error) {
	sqlStr, args, err := buildInsertOrder(order).ToSql()
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to build SQL query for CreateOrder: %w", err)
	}

	created, err := scanOrder(d.db.QueryRowContext(ctx, sqlStr, args...))
	if err != nil {
		if isUniqueViolation(err) {
			existing, getErr := d.GetOrderByExternalRef(ctx, order.ExternalRef)
			if getErr != nil {
				return models.Order{}, fmt.Errorf("%w: order %s already exists", services.ErrConflict, order.ID)
			}
			return existing, fmt.Errorf("%w: order for %s already exists", services.ErrConflict, order.ExternalRef)
		}
		return models.Order{}, fmt.Errorf("failed to create order: %w", err)
	}
	return created, nil
}

func (d *DatabaseClient) GetOrder(ctx context.Context, id uuid.UUID) (models.Order, error) {
	return d.getOrderBy(ctx, sq.Eq{"id": id}, id.String())
}

func (d *DatabaseClient) GetOrderByAccessToken(ctx context.Context, token string) (models.Order, error) {
	return d.getOrderBy(ctx, sq.Eq{"access_token": token}, "for access token")
}

func (d *DatabaseClient) GetOrderByExternalRef(ctx context.Context, ref string) (models.Order, error) {
	return d.getOrderBy(ctx, sq.Eq{"external_ref": ref}, ref)
}

func (d *DatabaseClient) getOrderBy(ctx context.Context, where sq.Eq, label string) (models.Order, error) {
	sqlStr, args, err := psql.Select(orderColumns...).From("orders").Where(where).Limit(1).ToSql()
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to build SQL query for order lookup: %w", err)
	}

	order, err := scanOrder(d.db.QueryRowContext(ctx, sqlStr, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Order{}, fmt.Errorf("%w: order %s", services.ErrNotFound, label)
	}
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

// ApplyTransition updates the order only while it still has the expected
// status. A miss is ErrNotFound when the order is gone and ErrConflict
// otherwise.
func (d *DatabaseClient) ApplyTransition(ctx context.Context, id uuid.UUID, expected models.OrderStatus, patch models.OrderPatch) (models.Order, error) {
	sqlStr, args, err := buildApplyTransition(id, expected, patch).ToSql()
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to build SQL query for ApplyTransition: %w", err)
	}

	updated, err := scanOrder(d.db.QueryRowContext(ctx, sqlStr, args...))
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Order{}, fmt.Errorf("failed to update order: %w", err)
	}

	current, getErr := d.GetOrder(ctx, id)
	if getErr != nil {
		return models.Order{}, getErr
	}
	return current, fmt.Errorf("%w: order %s is %s, expected %s", services.ErrConflict, id, current.Status, expected)
}

// ClaimGeneration flips a queued or failed generation to running in one
// conditional update.
func (d *DatabaseClient) ClaimGeneration(ctx context.Context, id uuid.UUID) (models.Order, error) {
	sqlStr, args, err := buildClaimGeneration(id).ToSql()
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to build SQL query for ClaimGeneration: %w", err)
	}

	claimed, err := scanOrder(d.db.QueryRowContext(ctx, sqlStr, args...))
	if err == nil {
		return claimed, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Order{}, fmt.Errorf("failed to claim generation: %w", err)
	}

	current, getErr := d.GetOrder(ctx, id)
	if getErr != nil {
		return models.Order{}, getErr
	}
	return current, fmt.Errorf("%w: order %s is %s with generation %s", services.ErrConflict, id, current.Status, current.GenerationStatus)
}

func (d *DatabaseClient) ListStaleGenerations(ctx context.Context, startedBefore time.Time) ([]models.Order, error) {
	sqlStr, args, err := psql.Select(orderColumns...).
		From("orders").
		Where(sq.Eq{"generation_status": models.GenerationRunning}).
		Where(sq.Lt{"updated_at": startedBefore}).
		OrderBy("updated_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL query for ListStaleGenerations: %w", err)
	}

	rows, err := d.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale generations: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func (d *DatabaseClient) InsertImage(ctx context.Context, img models.Image) (models.Image, error) {
	if img.ID == uuid.Nil {
		img.ID = uuid.New()
	}
	sqlStr, args, err := psql.Insert("order_images").
		Columns("id", "order_id", "type", "is_bonus", "status", "display_order", "theme_name", "url", "storage_path").
		Values(img.ID, img.OrderID, img.Type, img.IsBonus, img.Status, img.DisplayOrder, img.ThemeName, img.URL, img.StoragePath).
		Suffix("RETURNING " + strings.Join(imageColumns, ", ")).
		ToSql()
	if err != nil {
		return models.Image{}, fmt.Errorf("failed to build SQL query for InsertImage: %w", err)
	}

	inserted, err := scanImage(d.db.QueryRowContext(ctx, sqlStr, args...))
	if err != nil {
		if isUniqueViolation(err) {
			return models.Image{}, fmt.Errorf("%w: display order %d for %s images is taken", services.ErrConflict, img.DisplayOrder, img.Type)
		}
		return models.Image{}, fmt.Errorf("failed to insert image: %w", err)
	}
	return inserted, nil
}

func (d *DatabaseClient) ListImages(ctx context.Context, orderID uuid.UUID, filter models.ImageFilter) ([]models.Image, error) {
	sqlStr, args, err := buildListImages(orderID, filter).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL query for ListImages: %w", err)
	}

	rows, err := d.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	defer rows.Close()

	var images []models.Image
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan image: %w", err)
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

func (d *DatabaseClient) GetImage(ctx context.Context, orderID, imageID uuid.UUID) (models.Image, error) {
	sqlStr, args, err := psql.Select(imageColumns...).
		From("order_images").
		Where(sq.Eq{"id": imageID, "order_id": orderID}).
		Limit(1).
		ToSql()
	if err != nil {
		return models.Image{}, fmt.Errorf("failed to build SQL query for GetImage: %w", err)
	}

	img, err := scanImage(d.db.QueryRowContext(ctx, sqlStr, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Image{}, fmt.Errorf("%w: image %s", services.ErrNotFound, imageID)
	}
	if err != nil {
		return models.Image{}, fmt.Errorf("failed to get image: %w", err)
	}
	return img, nil
}

func (d *DatabaseClient) UpdateImageStatus(ctx context.Context, orderID, imageID uuid.UUID, status models.ImageStatus) (models.Image, error) {
	sqlStr, args, err := psql.Update("order_images").
		Set("status", status).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": imageID, "order_id": orderID}).
		Suffix("RETURNING " + strings.Join(imageColumns, ", ")).
		ToSql()
	if err != nil {
		return models.Image{}, fmt.Errorf("failed to build SQL query for UpdateImageStatus: %w", err)
	}

	img, err := scanImage(d.db.QueryRowContext(ctx, sqlStr, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Image{}, fmt.Errorf("%w: image %s", services.ErrNotFound, imageID)
	}
	if err != nil {
		return models.Image{}, fmt.Errorf("failed to update image status: %w", err)
	}
	return img, nil
}

func (d *DatabaseClient) MaxDisplayOrders(ctx context.Context, orderID uuid.UUID) (map[models.ImageType]int, error) {
	sqlStr, args, err := psql.Select("type", "MAX(display_order)").
		From("order_images").
		Where(sq.Eq{"order_id": orderID}).
		GroupBy("type").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL query for MaxDisplayOrders: %w", err)
	}

	rows, err := d.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read display orders: %w", err)
	}
	defer rows.Close()

	out := make(map[models.ImageType]int)
	for rows.Next() {
		var typ models.ImageType
		var highest int
		if err := rows.Scan(&typ, &highest); err != nil {
			return nil, fmt.Errorf("failed to scan display order: %w", err)
		}
		out[typ] = highest
	}
	return out, rows.Err()
}

func (d *DatabaseClient) Close() error {
	return d.db.Close()
}

func buildInsertOrder(order models.Order) sq.InsertBuilder {
	return psql.Insert("orders").
		Columns(
			"id", "access_token", "external_ref", "customer_name", "customer_email",
			"product_type", "breed", "pet_name", "details", "source_photo_ref", "customer_notes",
			"status", "generation_status",
		).
		Values(
			order.ID, order.AccessToken, order.ExternalRef, order.CustomerName, order.CustomerEmail,
			order.ProductType, order.Breed, order.PetName, order.Details, order.SourcePhotoRef, order.CustomerNotes,
			order.Status, order.GenerationStatus,
		).
		Suffix("RETURNING " + strings.Join(orderColumns, ", "))
}

func buildApplyTransition(id uuid.UUID, expected models.OrderStatus, patch models.OrderPatch) sq.UpdateBuilder {
	return psql.Update("orders").
		SetMap(patchColumns(patch)).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id, "status": expected}).
		Suffix("RETURNING " + strings.Join(orderColumns, ", "))
}

func buildClaimGeneration(id uuid.UUID) sq.UpdateBuilder {
	return psql.Update("orders").
		Set("generation_status", models.GenerationRunning).
		Set("generation_error", "").
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{
			"id":                id,
			"generation_status": []models.GenerationStatus{models.GenerationQueued, models.GenerationFailed},
		}).
		Where(sq.NotEq{"status": []models.OrderStatus{models.OrderStatusFulfilled, models.OrderStatusClosed}}).
		Suffix("RETURNING " + strings.Join(orderColumns, ", "))
}

func buildListImages(orderID uuid.UUID, filter models.ImageFilter) sq.SelectBuilder {
	q := psql.Select(imageColumns...).
		From("order_images").
		Where(sq.Eq{"order_id": orderID})
	if filter.Type != "" {
		q = q.Where(sq.Eq{"type": filter.Type})
	}
	if filter.Status != "" {
		q = q.Where(sq.Eq{"status": filter.Status})
	}
	if filter.IsBonus != nil {
		q = q.Where(sq.Eq{"is_bonus": *filter.IsBonus})
	}
	return q.OrderBy("type ASC", "display_order ASC")
}

func patchColumns(p models.OrderPatch) map[string]any {
	cols := map[string]any{}
	if p.Status != nil {
		cols["status"] = *p.Status
	}
	if p.GenerationStatus != nil {
		cols["generation_status"] = *p.GenerationStatus
	}
	if p.GenerationError != nil {
		cols["generation_error"] = *p.GenerationError
	}
	if p.GenerationReport != nil {
		cols["generation_report"] = string(p.GenerationReport)
	}
	if p.CustomerNotes != nil {
		cols["customer_notes"] = *p.CustomerNotes
	}
	if p.RevisionNotes != nil {
		cols["revision_notes"] = *p.RevisionNotes
	}
	if p.RevisionStatus != nil {
		cols["revision_status"] = *p.RevisionStatus
	}
	if p.SelectedImageID != nil {
		cols["selected_image_id"] = *p.SelectedImageID
	}
	if p.SelectedPrintProduct != nil {
		cols["selected_print_product"] = *p.SelectedPrintProduct
	}
	if p.SocialConsent != nil {
		cols["social_consent"] = *p.SocialConsent
	}
	if p.MarketingConsent != nil {
		cols["marketing_consent"] = *p.MarketingConsent
	}
	if p.ConsentAt != nil {
		cols["consent_at"] = *p.ConsentAt
	}
	if p.SocialHandle != nil {
		cols["social_handle"] = *p.SocialHandle
	}
	return cols
}

func scanOrder(row rowScanner) (models.Order, error) {
	var (
		order    models.Order
		report   []byte
		consent  sql.NullTime
		selected uuid.NullUUID
	)
	err := row.Scan(
		&order.ID, &order.AccessToken, &order.ExternalRef, &order.CustomerName, &order.CustomerEmail,
		&order.ProductType, &order.Breed, &order.PetName, &order.Details, &order.SourcePhotoRef, &order.CustomerNotes,
		&order.Status, &order.GenerationStatus, &order.GenerationError, &report,
		&order.RevisionNotes, &order.RevisionStatus,
		&order.SocialConsent, &order.MarketingConsent, &consent, &order.SocialHandle,
		&selected, &order.SelectedPrintProduct,
		&order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return models.Order{}, err
	}
	if len(report) > 0 {
		order.GenerationReport = report
	}
	if consent.Valid {
		at := consent.Time
		order.ConsentAt = &at
	}
	if selected.Valid {
		id := selected.UUID
		order.SelectedImageID = &id
	}
	return order, nil
}

func scanImage(row rowScanner) (models.Image, error) {
	var img models.Image
	err := row.Scan(
		&img.ID, &img.OrderID, &img.Type, &img.IsBonus, &img.Status, &img.DisplayOrder,
		&img.ThemeName, &img.URL, &img.StoragePath, &img.CreatedAt, &img.UpdatedAt,
	)
	return img, err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

var (
	_ services.OrderRepository = (*DatabaseClient)(nil)
	_ services.ImageRepository = (*DatabaseClient)(nil)
)
