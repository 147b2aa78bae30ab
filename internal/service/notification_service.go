package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/beereshbc/influencaa-backend/internal/goroutine"
	"github.com/beereshbc/influencaa-backend/internal/logger"
	"github.com/beereshbc/influencaa-backend/internal/models"
	"github.com/beereshbc/influencaa-backend/internal/pkg/apperror"
	"github.com/beereshbc/influencaa-backend/internal/repository"
)

// NotificationRepository описывает взаимодействие сервиса с хранилищем уведомлений.
type NotificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	List(ctx context.Context, userID uuid.UUID, limit, offset int, unreadOnly bool) ([]models.Notification, error)
	MarkAsRead(ctx context.Context, id, userID uuid.UUID) error
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
}

// Pusher доставляет событие подключённому пользователю.
type Pusher interface {
	Push(userID uuid.UUID, event string, data interface{}) error
}

// NotificationService сохраняет события заказов и отправляет их в WebSocket.
type NotificationService struct {
	repo   NotificationRepository
	pusher Pusher
	runner *goroutine.Runner
}

// NewNotificationService создаёт сервис уведомлений. pusher и runner могут быть nil:
// без runner доставка выполняется синхронно.
func NewNotificationService(repo NotificationRepository, pusher Pusher, runner *goroutine.Runner) *NotificationService {
	return &NotificationService{repo: repo, pusher: pusher, runner: runner}
}

// Notify реализует OrderNotifier. Ошибки доставки только логируются.
func (s *NotificationService) Notify(ctx context.Context, userID uuid.UUID, event string, data interface{}) {
	// запрос может завершиться раньше доставки
	ctx = context.WithoutCancel(ctx)

	deliver := func() {
		if _, err := s.Create(ctx, userID, event, data); err != nil {
			logger.Log.WithFields(logrus.Fields{
				"user_id": userID,
				"event":   event,
				"error":   err.Error(),
			}).Warn("notification service: не удалось сохранить уведомление")
		}
		if s.pusher == nil {
			return
		}
		if err := s.pusher.Push(userID, event, data); err != nil {
			logger.Log.WithFields(logrus.Fields{
				"user_id": userID,
				"event":   event,
				"error":   err.Error(),
			}).Debug("notification service: событие не отправлено в ws")
		}
	}

	if s.runner == nil {
		deliver()
		return
	}
	s.runner.Go("notify:"+event, deliver)
}

// Create сохраняет уведомление.
func (s *NotificationService) Create(ctx context.Context, userID uuid.UUID, event string, data interface{}) (*models.Notification, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("notification service: marshal payload %w", err)
	}

	notification := &models.Notification{
		UserID:  userID,
		Type:    event,
		Payload: payload,
	}
	if err := s.repo.Create(ctx, notification); err != nil {
		return nil, err
	}

	return notification, nil
}

// List возвращает уведомления пользователя и число непрочитанных.
func (s *NotificationService) List(ctx context.Context, userID uuid.UUID, limit, offset int, unreadOnly bool) ([]models.Notification, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	items, err := s.repo.List(ctx, userID, limit, offset, unreadOnly)
	if err != nil {
		return nil, 0, err
	}

	unread, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return nil, 0, err
	}

	return items, unread, nil
}

// MarkAsRead отмечает уведомление пользователя как прочитанное. Чужое уведомление неотличимо от отсутствующего.
func (s *NotificationService) MarkAsRead(ctx context.Context, id, userID uuid.UUID) error {
	if err := s.repo.MarkAsRead(ctx, id, userID); err != nil {
		if errors.Is(err, repository.ErrNotificationNotFound) {
			return apperror.New(apperror.ErrCodeNotFound, "уведомление не найдено")
		}
		return err
	}
	return nil
}
