package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/carecircle/carecircle/internal/models"
	"github.com/carecircle/carecircle/internal/notifications"
	apperrors "github.com/carecircle/carecircle/pkg/errors"
	"github.com/carecircle/carecircle/pkg/logger"
	"github.com/carecircle/carecircle/pkg/metrics"
	"github.com/carecircle/carecircle/pkg/push"
)

// CreateNotificationInput defines attributes required to persist a notification.
type CreateNotificationInput struct {
	UserID  string
	Type    string
	Title   string
	Message string
	Context map[string]any
}

// ListNotificationsInput defines filters for querying user notifications.
type ListNotificationsInput struct {
	UserID     string
	UnreadOnly bool
	Limit      int
	Offset     int
}

// NotificationService persists notifications and best-effort delivers them
// over the websocket hub and the push channel. Persistence is authoritative;
// delivery failures never propagate to callers.
type NotificationService struct {
	db     *gorm.DB
	hub    *notifications.Hub
	sender push.Sender
	log    *zap.Logger
}

// NewNotificationService constructs a NotificationService. The hub and sender
// are optional; a nil value disables that delivery channel.
func NewNotificationService(db *gorm.DB, hub *notifications.Hub, sender push.Sender) (*NotificationService, error) {
	if db == nil {
		return nil, errors.New("notification service: db is required")
	}
	return &NotificationService{
		db:     db,
		hub:    hub,
		sender: sender,
		log:    logger.WithModule("notifications"),
	}, nil
}

// Create persists a notification row, then attempts best-effort delivery.
// The row is always created first and survives any delivery failure.
func (s *NotificationService) Create(ctx context.Context, input CreateNotificationInput) (*models.Notification, error) {
	ctx = ensureContext(ctx)
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, errors.New("notification service: user id is required")
	}
	notificationType := strings.TrimSpace(input.Type)
	if notificationType == "" {
		return nil, errors.New("notification service: type is required")
	}

	contextPayload, err := encodeJSON(input.Context)
	if err != nil {
		return nil, fmt.Errorf("notification service: marshal context: %w", err)
	}

	notification := models.Notification{
		UserID:  userID,
		Type:    notificationType,
		Title:   strings.TrimSpace(input.Title),
		Message: strings.TrimSpace(input.Message),
		Context: contextPayload,
	}

	if err := s.db.WithContext(ctx).Create(&notification).Error; err != nil {
		return nil, fmt.Errorf("notification service: create notification: %w", err)
	}
	metrics.NotificationsCreated.WithLabelValues(notificationType).Inc()

	s.broadcast(userID, "notification.created", &notification)
	s.deliverPush(ctx, notification, input.Context)

	return &notification, nil
}

// NotifyMembers creates one notification per active member of the recipient,
// optionally excluding the acting user. Returns the number of members
// notified. Individual failures are collected, not short-circuited.
func (s *NotificationService) NotifyMembers(ctx context.Context, recipientID, excludeUserID string, input CreateNotificationInput) (int, error) {
	ctx = ensureContext(ctx)
	recipientID = strings.TrimSpace(recipientID)
	if recipientID == "" {
		return 0, errors.New("notification service: recipient id is required")
	}

	var memberships []models.Membership
	if err := s.db.WithContext(ctx).
		Where("care_recipient_id = ? AND status = ?", recipientID, models.MembershipActive).
		Find(&memberships).Error; err != nil {
		return 0, fmt.Errorf("notification service: list members: %w", err)
	}

	var errs error
	notified := 0
	for _, membership := range memberships {
		if membership.UserID == excludeUserID {
			continue
		}
		input.UserID = membership.UserID
		if _, err := s.Create(ctx, input); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		notified++
	}

	return notified, errs
}

// ListForUser returns notifications for the supplied user ordered by recency.
func (s *NotificationService) ListForUser(ctx context.Context, input ListNotificationsInput) ([]models.Notification, error) {
	ctx = ensureContext(ctx)
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, errors.New("notification service: user id is required")
	}

	limit := input.Limit
	if limit <= 0 || limit > 100 {
		limit = 25
	}

	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if input.UnreadOnly {
		query = query.Where("is_read = ?", false)
	}

	var rows []models.Notification
	if err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(max(0, input.Offset)).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("notification service: list notifications: %w", err)
	}

	return rows, nil
}

// MarkRead sets the notification read flag for a user.
func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID string) (*models.Notification, error) {
	ctx = ensureContext(ctx)
	var notification models.Notification
	if err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", notificationID, userID).
		First(&notification).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("notification service: load notification: %w", err)
	}

	now := time.Now().UTC()
	if err := s.db.WithContext(ctx).Model(&notification).
		Updates(map[string]any{
			"is_read": true,
			"read_at": now,
		}).Error; err != nil {
		return nil, fmt.Errorf("notification service: mark read: %w", err)
	}

	notification.IsRead = true
	notification.ReadAt = &now

	s.broadcast(userID, "notification.read", &notification)
	return &notification, nil
}

// MarkAllRead marks all notifications for the user as read.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) error {
	ctx = ensureContext(ctx)
	now := time.Now().UTC()
	if err := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Updates(map[string]any{
			"is_read": true,
			"read_at": now,
		}).Error; err != nil {
		return fmt.Errorf("notification service: mark all read: %w", err)
	}

	s.broadcast(userID, "notification.read_all", nil)
	return nil
}

// Delete removes a notification owned by the supplied user.
func (s *NotificationService) Delete(ctx context.Context, userID, notificationID string) error {
	ctx = ensureContext(ctx)
	result := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Delete(&models.Notification{})
	if result.Error != nil {
		return fmt.Errorf("notification service: delete notification: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

// CleanupOlderThan deletes notifications created more than the supplied
// number of days ago. Used by the retention sweep.
func (s *NotificationService) CleanupOlderThan(ctx context.Context, days int) (int64, error) {
	ctx = ensureContext(ctx)
	if days <= 0 {
		return 0, errors.New("notification service: retention days must be positive")
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	result := s.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.Notification{})
	if result.Error != nil {
		return 0, fmt.Errorf("notification service: cleanup: %w", result.Error)
	}

	return result.RowsAffected, nil
}

func (s *NotificationService) broadcast(userID, event string, notification *models.Notification) {
	if s.hub == nil {
		return
	}
	payload := notifications.Event{Event: event}
	if notification != nil {
		payload.Notification = notification
		payload.NotificationID = notification.ID
	}
	s.hub.Broadcast(userID, payload)
}

// deliverPush attempts delivery to every active subscription for the user.
// Outcomes are isolated per subscription; a permanently gone endpoint is
// deactivated, every other failure is logged and absorbed.
func (s *NotificationService) deliverPush(ctx context.Context, notification models.Notification, contextData map[string]any) {
	if s.sender == nil {
		return
	}

	var subs []models.PushSubscription
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", notification.UserID, true).
		Find(&subs).Error; err != nil {
		s.log.Warn("load push subscriptions failed",
			zap.String("user_id", notification.UserID), zap.Error(err))
		return
	}
	if len(subs) == 0 {
		return
	}

	payload := push.NewPayload(notification.Title, notification.Message, notification.Type, contextData)

	var errs error
	for _, sub := range subs {
		err := s.sender.Send(ctx, push.Subscription{
			Endpoint: sub.Endpoint,
			P256dh:   sub.P256dh,
			Auth:     sub.Auth,
		}, payload)

		switch {
		case err == nil:
			metrics.PushDeliveries.WithLabelValues("delivered").Inc()
		case errors.Is(err, push.ErrDisabled):
			return
		case errors.Is(err, push.ErrSubscriptionGone):
			metrics.PushDeliveries.WithLabelValues("gone").Inc()
			s.deactivateSubscription(ctx, sub.ID)
		default:
			metrics.PushDeliveries.WithLabelValues("failed").Inc()
			errs = multierr.Append(errs, err)
		}
	}

	if errs != nil {
		s.log.Warn("push delivery failed",
			zap.String("user_id", notification.UserID), zap.Error(errs))
	}
}

func (s *NotificationService) deactivateSubscription(ctx context.Context, subscriptionID string) {
	if err := s.db.WithContext(ctx).
		Model(&models.PushSubscription{}).
		Where("id = ?", subscriptionID).
		Update("is_active", false).Error; err != nil {
		s.log.Warn("deactivate push subscription failed",
			zap.String("subscription_id", subscriptionID), zap.Error(err))
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
