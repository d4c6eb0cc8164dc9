package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"printcraftAPI/internal/design"
	"printcraftAPI/internal/product"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ProductService struct {
	db *pgxpool.Pool
}

func NewProductService(db *pgxpool.Pool) *ProductService {
	return &ProductService{db: db}
}

func (s *ProductService) GetProducts(ctx context.Context, category string) ([]*product.Product, error) {
	query := `
    SELECT
        p.id,
        p.name,
        p.slug,
        p.category,
        p.brand,
        p.canvas_width,
        p.canvas_height,
        p.price,
        p.inventory,
        p.image_url,
        p.is_active,
        p.created_at,
        p.updated_at
    FROM products p
    WHERE p.is_active = true
    `

	args := []interface{}{}
	if category != "" {
		query += ` AND p.category = $1`
		args = append(args, category)
	}
	query += ` ORDER BY p.created_at DESC`

	rows, err := s.db.Query(ctx, query, args...)

	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]*product.Product, 0)
	for rows.Next() {
		var p product.Product
		err := rows.Scan(
			&p.ID,
			&p.Name,
			&p.Slug,
			&p.Category,
			&p.Brand,
			&p.CanvasWidth,
			&p.CanvasHeight,
			&p.Price,
			&p.Inventory,
			&p.ImageURL,
			&p.IsActive,
			&p.CreatedAt,
			&p.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		products = append(products, &p)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *ProductService) GetProduct(ctx context.Context, productID string) (*product.Product, error) {
	productUUID, err := uuid.Parse(productID)
	if err != nil {
		return nil, fmt.Errorf("invalid product ID: %w", err)
	}

	var p product.Product
	query := `
		SELECT id, name, slug, category, brand, canvas_width, canvas_height,
		       price, inventory, image_url, is_active, created_at, updated_at
		FROM products
		WHERE id = $1
	`
	err = s.db.QueryRow(ctx, query, productUUID).Scan(
		&p.ID,
		&p.Name,
		&p.Slug,
		&p.Category,
		&p.Brand,
		&p.CanvasWidth,
		&p.CanvasHeight,
		&p.Price,
		&p.Inventory,
		&p.ImageURL,
		&p.IsActive,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("product not found")
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	return &p, nil
}

// GetDetail loads everything the customizer needs to open a canvas: the
// product, its mockup overlay if one exists, and the user's saved design for
// it if there is one.
func (s *ProductService) GetDetail(ctx context.Context, productID string, userID string) (*product.Detail, error) {
	p, err := s.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	detail := &product.Detail{Product: *p}

	var m product.Mockup
	mockupQuery := `
		SELECT id, product_id, image_url, rotation, offset_x, offset_y, width, height
		FROM product_mockups
		WHERE product_id = $1
	`
	err = s.db.QueryRow(ctx, mockupQuery, p.ID).Scan(
		&m.ID,
		&m.ProductID,
		&m.ImageURL,
		&m.Rotation,
		&m.OffsetX,
		&m.OffsetY,
		&m.Width,
		&m.Height,
	)
	if err == nil {
		detail.Mockup = &m
	} else if err != pgx.ErrNoRows {
		return nil, fmt.Errorf("failed to get product mockup: %w", err)
	}

	if userID != "" {
		saved, err := s.GetSavedDesign(ctx, productID, userID)
		if err != nil {
			return nil, err
		}
		detail.SavedDesign = saved
	}

	return detail, nil
}

// SaveDesign upserts the user's design for a product. The design must parse
// as a valid document before it ever reaches the database.
func (s *ProductService) SaveDesign(ctx context.Context, productID string, userID string, raw json.RawMessage) (*product.SavedDesign, error) {
	productUUID, err := uuid.Parse(productID)
	if err != nil {
		return nil, fmt.Errorf("invalid product ID: %w", err)
	}

	elements, err := design.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid design document: %w", err)
	}
	// re-encode so legacy bare-array payloads are stored versioned
	normalized, err := design.Encode(elements)
	if err != nil {
		return nil, fmt.Errorf("failed to encode design document: %w", err)
	}

	saved := product.SavedDesign{
		ID:        uuid.New(),
		ProductID: productUUID,
		UserID:    &userID,
		Design:    normalized,
		UpdatedAt: time.Now(),
	}

	query := `
		INSERT INTO saved_designs (id, product_id, user_id, design, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (product_id, user_id)
		DO UPDATE SET design = EXCLUDED.design, updated_at = EXCLUDED.updated_at
		RETURNING id
	`
	err = s.db.QueryRow(ctx, query,
		saved.ID,
		saved.ProductID,
		saved.UserID,
		saved.Design,
		saved.UpdatedAt,
	).Scan(&saved.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to save design: %w", err)
	}

	return &saved, nil
}

func (s *ProductService) GetSavedDesign(ctx context.Context, productID string, userID string) (*product.SavedDesign, error) {
	productUUID, err := uuid.Parse(productID)
	if err != nil {
		return nil, fmt.Errorf("invalid product ID: %w", err)
	}

	var saved product.SavedDesign
	query := `
		SELECT id, product_id, user_id, design, updated_at
		FROM saved_designs
		WHERE product_id = $1 AND user_id = $2
	`
	err = s.db.QueryRow(ctx, query, productUUID, userID).Scan(
		&saved.ID,
		&saved.ProductID,
		&saved.UserID,
		&saved.Design,
		&saved.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get saved design: %w", err)
	}

	return &saved, nil
}

// DecrementInventory takes one unit off the local catalog count after the
// remote order procedure accepts an order. The remote side owns the real
// stock; this keeps the listing in step without waiting for a sync.
func (s *ProductService) DecrementInventory(ctx context.Context, productID string) error {
	productUUID, err := uuid.Parse(productID)
	if err != nil {
		return fmt.Errorf("invalid product ID: %w", err)
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE products
		SET inventory = inventory - 1, updated_at = NOW()
		WHERE id = $1 AND inventory > 0
	`, productUUID)
	if err != nil {
		return fmt.Errorf("failed to decrement inventory: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no stock remaining for product %s", productID)
	}

	return nil
}
