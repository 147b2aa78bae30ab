package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/beereshbc/influencaa-backend/internal/http/handlers/common"
	"github.com/beereshbc/influencaa-backend/internal/http/response"
	"github.com/beereshbc/influencaa-backend/internal/models"
	"github.com/beereshbc/influencaa-backend/internal/service"
)

// CatalogService — пакеты услуг инфлюенсеров.
type CatalogService interface {
	ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]models.ServicePackage, error)
	UpsertPackage(ctx context.Context, sellerID uuid.UUID, in service.UpsertPackageInput) (*models.ServicePackage, error)
}

type CatalogHandler struct {
	catalog CatalogService
}

// NewCatalogHandler создаёт новый хэндлер.
func NewCatalogHandler(catalog CatalogService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// ListSellerPackages обрабатывает GET /sellers/:id/packages.
func (h *CatalogHandler) ListSellerPackages(c *gin.Context) {
	sellerID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	packages, err := h.catalog.ListBySeller(c.Request.Context(), sellerID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"packages": packages, "count": len(packages)})
}

// UpsertPackage обрабатывает PUT /packages.
func (h *CatalogHandler) UpsertPackage(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var req service.UpsertPackageInput
	if err := common.BindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	pkg, err := h.catalog.UpsertPackage(c.Request.Context(), userID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"package": pkg})
}
