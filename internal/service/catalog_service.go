package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/beereshbc/influencaa-backend/internal/domain/valueobject"
	"github.com/beereshbc/influencaa-backend/internal/models"
	"github.com/beereshbc/influencaa-backend/internal/pkg/apperror"
	"github.com/beereshbc/influencaa-backend/internal/repository"
	"github.com/beereshbc/influencaa-backend/internal/validation"
)

const sellerPackagesTTL = 5 * time.Minute

// CatalogRepository описывает хранилище пакетов услуг.
type CatalogRepository interface {
	ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]models.ServicePackage, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.ServicePackage, error)
	Upsert(ctx context.Context, pkg *models.ServicePackage) error
}

// CatalogService отдаёт пакеты услуг инфлюенсеров брендам.
type CatalogService struct {
	repo  CatalogRepository
	cache *CacheService
}

// NewCatalogService создаёт сервис каталога. cache может быть nil.
func NewCatalogService(repo CatalogRepository, cache *CacheService) *CatalogService {
	return &CatalogService{repo: repo, cache: cache}
}

// UpsertPackageInput — пакет услуг, публикуемый инфлюенсером.
type UpsertPackageInput struct {
	Platform     string   `json:"platform" validate:"required,platform"`
	Service      string   `json:"service" validate:"required,max=64"`
	Title        string   `json:"title" validate:"required,max=200"`
	Amount       float64  `json:"amount" validate:"gte=0"`
	Timeline     string   `json:"timeline" validate:"required"`
	Revisions    int      `json:"revisions" validate:"gte=0"`
	Description  string   `json:"description" validate:"required"`
	Deliverables []string `json:"deliverables" validate:"required,min=1,dive,required"`
	Requirements []string `json:"requirements" validate:"omitempty,dive,required"`
	Inactive     bool     `json:"inactive"`
}

// ListBySeller возвращает активные пакеты инфлюенсера.
func (s *CatalogService) ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]models.ServicePackage, error) {
	load := func() (interface{}, error) {
		return s.repo.ListBySeller(ctx, sellerID)
	}

	if s.cache == nil {
		packages, err := s.repo.ListBySeller(ctx, sellerID)
		if err != nil {
			return nil, fmt.Errorf("catalog service: list %w", err)
		}
		return packages, nil
	}

	value, err := s.cache.GetOrSet(SellerPackagesCacheKey(sellerID), sellerPackagesTTL, load)
	if err != nil {
		return nil, fmt.Errorf("catalog service: list %w", err)
	}
	return value.([]models.ServicePackage), nil
}

// GetPackage возвращает пакет по идентификатору.
func (s *CatalogService) GetPackage(ctx context.Context, id uuid.UUID) (*models.ServicePackage, error) {
	pkg, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrPackageNotFound) {
			return nil, apperror.ErrPackageNotFound
		}
		return nil, fmt.Errorf("catalog service: get %w", err)
	}
	return pkg, nil
}

// UpsertPackage создаёт или обновляет пакет инфлюенсера и сбрасывает кэш его каталога.
func (s *CatalogService) UpsertPackage(ctx context.Context, sellerID uuid.UUID, in UpsertPackageInput) (*models.ServicePackage, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	requirements := in.Requirements
	if requirements == nil {
		requirements = []string{}
	}

	pkg := &models.ServicePackage{
		SellerID:     sellerID,
		Platform:     valueobject.Platform(in.Platform),
		Code:         in.Service,
		Title:        in.Title,
		Amount:       in.Amount,
		Timeline:     in.Timeline,
		Revisions:    in.Revisions,
		Description:  in.Description,
		Deliverables: in.Deliverables,
		Requirements: requirements,
		IsActive:     !in.Inactive,
	}

	if err := s.repo.Upsert(ctx, pkg); err != nil {
		return nil, fmt.Errorf("catalog service: upsert %w", err)
	}

	if s.cache != nil {
		s.cache.Delete(SellerPackagesCacheKey(sellerID))
	}

	return pkg, nil
}
