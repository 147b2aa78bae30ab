package models

// Роли пользователей
const (
	RoleClient = "client"
	RoleSeller = "seller"
)

// ValidRoles список допустимых ролей при регистрации
var ValidRoles = map[string]struct{}{
	RoleClient: {},
	RoleSeller: {},
}

// Типы уведомлений о событиях заказа
const (
	NotificationOrderCreated     = "order_created"
	NotificationOrderAccepted    = "order_accepted"
	NotificationOrderRejected    = "order_rejected"
	NotificationOrderCancelled   = "order_cancelled"
	NotificationOrderDelivered   = "order_delivered"
	NotificationOrderCompleted   = "order_completed"
	NotificationPaymentConfirmed = "payment_confirmed"
	NotificationPaymentFailed    = "payment_failed"
)

// DefaultCurrency используется, если валюта не задана в конфигурации.
const DefaultCurrency = "INR"
