package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/beereshbc/influencaa-backend/internal/domain/valueobject"
)

// ServicePackage — пакет услуг инфлюенсера на конкретной платформе.
type ServicePackage struct {
	ID           uuid.UUID            `db:"id" json:"id"`
	SellerID     uuid.UUID            `db:"seller_id" json:"sellerId"`
	Platform     valueobject.Platform `db:"platform" json:"platform"`
	Code         string               `db:"code" json:"service"`
	Title        string               `db:"title" json:"title"`
	Amount       float64              `db:"amount" json:"amount"`
	Timeline     string               `db:"timeline" json:"timeline"`
	Revisions    int                  `db:"revisions" json:"revisions"`
	Description  string               `db:"description" json:"description"`
	Deliverables pq.StringArray       `db:"deliverables" json:"deliverables"`
	Requirements pq.StringArray       `db:"requirements" json:"requirements"`
	IsActive     bool                 `db:"is_active" json:"isActive"`
	CreatedAt    time.Time            `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time            `db:"updated_at" json:"updatedAt"`
}

