package valueobject

import "github.com/beereshbc/influencaa-backend/internal/pkg/apperror"

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusApproved   OrderStatus = "approved"
	OrderStatusRejected   OrderStatus = "rejected"
	OrderStatusInProgress OrderStatus = "in_progress"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCompleted  OrderStatus = "completed"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusApproved, OrderStatusRejected},
	OrderStatusApproved:   {OrderStatusInProgress},
	OrderStatusInProgress: {OrderStatusDelivered},
	OrderStatusDelivered:  {OrderStatusCompleted},
	OrderStatusRejected:   {},
	OrderStatusCompleted:  {},
}

func (s OrderStatus) IsValid() bool {
	_, ok := orderTransitions[s]
	return ok
}

func (s OrderStatus) CanTransitionTo(newStatus OrderStatus) bool {
	for _, status := range orderTransitions[s] {
		if status == newStatus {
			return true
		}
	}
	return false
}

// Cancellable сообщает, можно ли выставить флаг cancelled в этом статусе.
func (s OrderStatus) Cancellable() bool {
	return s == OrderStatusPending || s == OrderStatusApproved
}

func NewOrderStatus(status string) (OrderStatus, error) {
	s := OrderStatus(status)
	if !s.IsValid() {
		return "", apperror.New(apperror.ErrCodeValidation, "некорректный статус заказа")
	}
	return s, nil
}

type PaymentStatus string

const (
	PaymentStatusUnpaid         PaymentStatus = "unpaid"
	PaymentStatusInitiated      PaymentStatus = "initiated"
	PaymentStatusPaid           PaymentStatus = "paid"
	PaymentStatusFailed         PaymentStatus = "failed"
	PaymentStatusRefunded       PaymentStatus = "refunded"
	PaymentStatusPendingRelease PaymentStatus = "pending_release"
)

func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusUnpaid, PaymentStatusInitiated, PaymentStatusPaid,
		PaymentStatusFailed, PaymentStatusRefunded, PaymentStatusPendingRelease:
		return true
	}
	return false
}

// HasSession — у платежа уже открыта сессия в шлюзе, которую можно переиспользовать.
func (s PaymentStatus) HasSession() bool {
	return s == PaymentStatusInitiated || s == PaymentStatusFailed
}

type MilestoneStatus string

const (
	MilestoneStatusPending  MilestoneStatus = "pending"
	MilestoneStatusReleased MilestoneStatus = "released"
	MilestoneStatusDisputed MilestoneStatus = "disputed"
)

func (s MilestoneStatus) IsValid() bool {
	switch s {
	case MilestoneStatusPending, MilestoneStatusReleased, MilestoneStatusDisputed:
		return true
	}
	return false
}

type Platform string

const (
	PlatformInstagram Platform = "instagram"
	PlatformYouTube   Platform = "youtube"
	PlatformFacebook  Platform = "facebook"
	PlatformTwitter   Platform = "twitter"
	PlatformLinkedIn  Platform = "linkedin"
)

func (p Platform) IsValid() bool {
	switch p {
	case PlatformInstagram, PlatformYouTube, PlatformFacebook, PlatformTwitter, PlatformLinkedIn:
		return true
	}
	return false
}
