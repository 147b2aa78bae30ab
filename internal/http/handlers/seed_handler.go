package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/beereshbc/influencaa-backend/internal/http/handlers/common"
	"github.com/beereshbc/influencaa-backend/internal/http/response"
	"github.com/beereshbc/influencaa-backend/internal/service"
)

// Seeder заполняет базу демо-данными.
type Seeder interface {
	Seed(ctx context.Context, sellers, clients, ordersPerClient int) (*service.SeedResult, error)
}

// SeedHandler обрабатывает запросы для генерации демо-данных. Подключается только вне production.
type SeedHandler struct {
	seeder Seeder
}

// NewSeedHandler создаёт новый seed handler.
func NewSeedHandler(seeder Seeder) *SeedHandler {
	return &SeedHandler{seeder: seeder}
}

// SeedRequest — параметры генерации.
type SeedRequest struct {
	Sellers         int `json:"sellers"`
	Clients         int `json:"clients"`
	OrdersPerClient int `json:"ordersPerClient"`
}

// Seed обрабатывает POST /api/seed.
func (h *SeedHandler) Seed(c *gin.Context) {
	var req SeedRequest
	if err := common.BindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	req.Sellers = clamp(req.Sellers, 3, 20)
	req.Clients = clamp(req.Clients, 2, 20)
	req.OrdersPerClient = clamp(req.OrdersPerClient, 2, 10)

	result, err := h.seeder.Seed(c.Request.Context(), req.Sellers, req.Clients, req.OrdersPerClient)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, gin.H{"seed": result})
}

func clamp(v, fallback, limit int) int {
	if v < 1 {
		return fallback
	}
	if v > limit {
		return limit
	}
	return v
}
