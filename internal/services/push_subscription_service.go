package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/carecircle/carecircle/internal/models"
	apperrors "github.com/carecircle/carecircle/pkg/errors"
)

// RegisterPushSubscriptionInput captures a browser push subscription.
type RegisterPushSubscriptionInput struct {
	UserID   string
	Endpoint string
	P256dh   string
	Auth     string
}

// PushSubscriptionService manages user push delivery endpoints.
type PushSubscriptionService struct {
	db *gorm.DB
}

// NewPushSubscriptionService constructs a PushSubscriptionService.
func NewPushSubscriptionService(db *gorm.DB) (*PushSubscriptionService, error) {
	if db == nil {
		return nil, errors.New("push subscription service: db is required")
	}
	return &PushSubscriptionService{db: db}, nil
}

// Register stores a subscription, reactivating and re-keying an existing row
// for the same endpoint.
func (s *PushSubscriptionService) Register(ctx context.Context, input RegisterPushSubscriptionInput) (*models.PushSubscription, error) {
	ctx = ensureContext(ctx)

	userID := strings.TrimSpace(input.UserID)
	endpoint := strings.TrimSpace(input.Endpoint)
	if userID == "" || endpoint == "" {
		return nil, apperrors.NewBadRequest("user id and endpoint are required")
	}
	if strings.TrimSpace(input.P256dh) == "" || strings.TrimSpace(input.Auth) == "" {
		return nil, apperrors.NewBadRequest("subscription keys are required")
	}

	var subscription models.PushSubscription
	err := s.db.WithContext(ctx).Where("endpoint = ?", endpoint).First(&subscription).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		subscription = models.PushSubscription{
			UserID:   userID,
			Endpoint: endpoint,
			P256dh:   input.P256dh,
			Auth:     input.Auth,
			IsActive: true,
		}
		if err := s.db.WithContext(ctx).Create(&subscription).Error; err != nil {
			return nil, fmt.Errorf("push subscription service: create: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("push subscription service: lookup: %w", err)
	default:
		if err := s.db.WithContext(ctx).Model(&subscription).
			Updates(map[string]any{
				"user_id":   userID,
				"p256dh":    input.P256dh,
				"auth":      input.Auth,
				"is_active": true,
			}).Error; err != nil {
			return nil, fmt.Errorf("push subscription service: update: %w", err)
		}
		subscription.UserID = userID
		subscription.P256dh = input.P256dh
		subscription.Auth = input.Auth
		subscription.IsActive = true
	}

	return &subscription, nil
}

// ListActiveForUser returns the user's active subscriptions.
func (s *PushSubscriptionService) ListActiveForUser(ctx context.Context, userID string) ([]models.PushSubscription, error) {
	ctx = ensureContext(ctx)

	var subs []models.PushSubscription
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", strings.TrimSpace(userID), true).
		Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("push subscription service: list: %w", err)
	}
	return subs, nil
}

// Remove deletes a subscription owned by the user.
func (s *PushSubscriptionService) Remove(ctx context.Context, userID, subscriptionID string) error {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", subscriptionID, userID).
		Delete(&models.PushSubscription{})
	if result.Error != nil {
		return fmt.Errorf("push subscription service: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
