package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/beereshbc/influencaa-backend/internal/domain/valueobject"
)

// Order описывает заказ бренда на услугу инфлюенсера.
type Order struct {
	ID             uuid.UUID               `db:"id" json:"id"`
	InfluencerID   uuid.UUID               `db:"influencer_id" json:"influencerId"`
	ClientID       uuid.UUID               `db:"client_id" json:"clientId"`
	InfluencerName string                  `db:"influencer_name" json:"influencerName"`
	Platform       valueobject.Platform    `db:"platform" json:"platform"`
	Service        string                  `db:"service" json:"service"`
	ServiceDetails ServiceDetails          `db:"service_details" json:"serviceDetails"`
	OrderDetails   OrderDetails            `db:"order_details" json:"orderDetails"`
	TotalAmount    float64                 `db:"total_amount" json:"totalAmount"`
	PaymentID      *uuid.UUID              `db:"payment_id" json:"paymentRef,omitempty"`
	Status         valueobject.OrderStatus `db:"status" json:"status"`
	Cancelled      bool                    `db:"cancelled" json:"cancelled"`
	OrderDate      time.Time               `db:"order_date" json:"orderDate"`
	CreatedAt      time.Time               `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time               `db:"updated_at" json:"updatedAt"`
}

// BelongsToClient проверяет, что заказ создан указанным брендом.
func (o *Order) BelongsToClient(clientID uuid.UUID) bool {
	return o.ClientID == clientID
}

// BelongsToSeller проверяет, что заказ адресован указанному инфлюенсеру.
func (o *Order) BelongsToSeller(sellerID uuid.UUID) bool {
	return o.InfluencerID == sellerID
}

// ServiceDetails — снимок пакета услуг на момент оформления заказа.
type ServiceDetails struct {
	Amount       float64  `json:"amount" validate:"gte=0"`
	Timeline     string   `json:"timeline" validate:"required"`
	Revisions    int      `json:"revisions" validate:"gte=0"`
	Description  string   `json:"description" validate:"required"`
	Deliverables []string `json:"deliverables" validate:"required,min=1,dive,required"`
	Requirements []string `json:"requirements" validate:"omitempty,dive,required"`
}

func (d ServiceDetails) Value() (driver.Value, error) {
	return json.Marshal(d)
}

func (d *ServiceDetails) Scan(src interface{}) error {
	return scanJSON(src, d)
}

// OrderDetails — бриф, заполненный брендом.
type OrderDetails struct {
	BrandName           string `json:"brandName" validate:"required"`
	ContactPerson       string `json:"contactPerson" validate:"required"`
	Email               string `json:"email" validate:"required,email"`
	Phone               string `json:"phone" validate:"required"`
	CampaignBrief       string `json:"campaignBrief" validate:"required"`
	Budget              string `json:"budget" validate:"required"`
	Timeline            string `json:"timeline" validate:"required"`
	SpecialRequirements string `json:"specialRequirements,omitempty"`
	TargetAudience      string `json:"targetAudience,omitempty"`
	CampaignGoals       string `json:"campaignGoals,omitempty"`
	ContentGuidelines   string `json:"contentGuidelines,omitempty"`
}

func (d OrderDetails) Value() (driver.Value, error) {
	return json.Marshal(d)
}

func (d *OrderDetails) Scan(src interface{}) error {
	return scanJSON(src, d)
}

func scanJSON(src interface{}, dst interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return errors.New("models: unsupported jsonb source type")
	}
}
