package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/beereshbc/influencaa-backend/internal/models"
	"github.com/beereshbc/influencaa-backend/internal/repository/common"
)

var ErrPackageNotFound = errors.New("service package not found")

const packageColumns = `
	id, seller_id, platform, code, title, amount, timeline, revisions, description,
	deliverables, requirements, is_active, created_at, updated_at
`

// CatalogRepository отвечает за пакеты услуг инфлюенсеров.
type CatalogRepository struct {
	db *sqlx.DB
}

func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// ListBySeller возвращает активные пакеты инфлюенсера.
func (r *CatalogRepository) ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]models.ServicePackage, error) {
	packages := make([]models.ServicePackage, 0)
	err := r.db.SelectContext(ctx, &packages, `
		SELECT `+packageColumns+`
		FROM service_packages
		WHERE seller_id = $1 AND is_active = TRUE
		ORDER BY platform, code
	`, sellerID)
	if err != nil {
		return nil, fmt.Errorf("catalog repository: list by seller %w", err)
	}
	return packages, nil
}

// GetByID возвращает пакет по идентификатору.
func (r *CatalogRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ServicePackage, error) {
	return common.GetOne[models.ServicePackage](ctx, r.db, "service_packages", packageColumns, "id", id, ErrPackageNotFound)
}

// Upsert создаёт пакет или обновляет существующий с тем же (seller, platform, code).
func (r *CatalogRepository) Upsert(ctx context.Context, pkg *models.ServicePackage) error {
	query := `
		INSERT INTO service_packages (seller_id, platform, code, title, amount, timeline, revisions, description, deliverables, requirements, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (seller_id, platform, code) DO UPDATE
		SET title = EXCLUDED.title,
			amount = EXCLUDED.amount,
			timeline = EXCLUDED.timeline,
			revisions = EXCLUDED.revisions,
			description = EXCLUDED.description,
			deliverables = EXCLUDED.deliverables,
			requirements = EXCLUDED.requirements,
			is_active = EXCLUDED.is_active,
			updated_at = NOW()
		RETURNING ` + packageColumns

	if err := r.db.QueryRowxContext(
		ctx,
		query,
		pkg.SellerID,
		pkg.Platform,
		pkg.Code,
		pkg.Title,
		pkg.Amount,
		pkg.Timeline,
		pkg.Revisions,
		pkg.Description,
		pkg.Deliverables,
		pkg.Requirements,
		pkg.IsActive,
	).StructScan(pkg); err != nil {
		return fmt.Errorf("catalog repository: upsert %w", err)
	}
	return nil
}
