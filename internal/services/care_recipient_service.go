package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/carecircle/carecircle/internal/models"
	"github.com/carecircle/carecircle/internal/permissions"
	apperrors "github.com/carecircle/carecircle/pkg/errors"
	"github.com/carecircle/carecircle/pkg/logger"
	"github.com/carecircle/carecircle/pkg/storage"
)

// CreateCareRecipientInput captures new care recipient metadata.
type CreateCareRecipientInput struct {
	CreatorID         string
	Name              string
	BirthDate         *time.Time
	Allergies         string
	Conditions        string
	EmergencyContacts []map[string]any
}

// UpdateCareRecipientInput describes mutable care recipient fields.
type UpdateCareRecipientInput struct {
	Name              *string
	BirthDate         *time.Time
	Allergies         *string
	Conditions        *string
	EmergencyContacts []map[string]any
}

// CareRecipientService handles care recipient lifecycle.
type CareRecipientService struct {
	db       *gorm.DB
	resolver *permissions.Resolver
	blobs    storage.Store
	log      *zap.Logger
}

// NewCareRecipientService constructs a CareRecipientService. The blob store
// is optional; when nil, cascade deletes skip blob cleanup.
func NewCareRecipientService(db *gorm.DB, resolver *permissions.Resolver, blobs storage.Store) (*CareRecipientService, error) {
	if db == nil {
		return nil, errors.New("care recipient service: db is required")
	}
	if resolver == nil {
		return nil, errors.New("care recipient service: permission resolver is required")
	}
	return &CareRecipientService{
		db:       db,
		resolver: resolver,
		blobs:    blobs,
		log:      logger.WithModule("care_recipients"),
	}, nil
}

// Create registers a care recipient and the creator's active admin membership
// in one transaction; the recipient is rolled back if the membership cannot
// be created.
func (s *CareRecipientService) Create(ctx context.Context, input CreateCareRecipientInput) (*models.CareRecipient, error) {
	ctx = ensureContext(ctx)

	creatorID := strings.TrimSpace(input.CreatorID)
	name := strings.TrimSpace(input.Name)
	if creatorID == "" {
		return nil, errors.New("care recipient service: creator id is required")
	}
	if name == "" {
		return nil, apperrors.NewBadRequest("care recipient name is required")
	}

	contacts, err := encodeJSON(input.EmergencyContacts)
	if err != nil {
		return nil, fmt.Errorf("care recipient service: marshal contacts: %w", err)
	}

	recipient := models.CareRecipient{
		Name:              name,
		BirthDate:         input.BirthDate,
		Allergies:         strings.TrimSpace(input.Allergies),
		Conditions:        strings.TrimSpace(input.Conditions),
		EmergencyContacts: contacts,
		CreatedBy:         creatorID,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&recipient).Error; err != nil {
			return fmt.Errorf("care recipient service: create recipient: %w", err)
		}

		now := time.Now().UTC()
		membership := models.Membership{
			UserID:          creatorID,
			CareRecipientID: recipient.ID,
			Role:            models.RoleAdmin,
			Status:          models.MembershipActive,
			CanView:         true,
			CanEdit:         true,
			CanDelete:       true,
			InvitedAt:       now,
			AcceptedAt:      &now,
		}
		if err := tx.Create(&membership).Error; err != nil {
			return fmt.Errorf("care recipient service: create admin membership: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &recipient, nil
}

// Get returns a recipient visible to the requesting user.
func (s *CareRecipientService) Get(ctx context.Context, userID, recipientID string) (*models.CareRecipient, error) {
	ctx = ensureContext(ctx)

	if _, err := s.resolver.Resolve(ctx, userID, recipientID); err != nil {
		return nil, err
	}

	var recipient models.CareRecipient
	if err := s.db.WithContext(ctx).First(&recipient, "id = ?", recipientID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("care recipient service: load recipient: %w", err)
	}

	return &recipient, nil
}

// List returns the recipients the user holds an active membership for.
func (s *CareRecipientService) List(ctx context.Context, userID string) ([]models.CareRecipient, error) {
	ctx = ensureContext(ctx)

	var recipients []models.CareRecipient
	if err := s.db.WithContext(ctx).
		Joins("JOIN memberships ON memberships.care_recipient_id = care_recipients.id").
		Where("memberships.user_id = ? AND memberships.status = ?", strings.TrimSpace(userID), models.MembershipActive).
		Order("care_recipients.created_at ASC").
		Find(&recipients).Error; err != nil {
		return nil, fmt.Errorf("care recipient service: list recipients: %w", err)
	}

	return recipients, nil
}

// Update modifies recipient metadata. Requires edit permission.
func (s *CareRecipientService) Update(ctx context.Context, userID, recipientID string, input UpdateCareRecipientInput) (*models.CareRecipient, error) {
	ctx = ensureContext(ctx)

	if err := s.resolver.Check(ctx, userID, recipientID, permissions.ActionEdit); err != nil {
		return nil, err
	}

	var recipient models.CareRecipient
	if err := s.db.WithContext(ctx).First(&recipient, "id = ?", recipientID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("care recipient service: load recipient: %w", err)
	}

	updates := map[string]any{}
	if input.Name != nil {
		if name := strings.TrimSpace(*input.Name); name != "" {
			updates["name"] = name
		}
	}
	if input.BirthDate != nil {
		updates["birth_date"] = *input.BirthDate
	}
	if input.Allergies != nil {
		updates["allergies"] = strings.TrimSpace(*input.Allergies)
	}
	if input.Conditions != nil {
		updates["conditions"] = strings.TrimSpace(*input.Conditions)
	}
	if input.EmergencyContacts != nil {
		contacts, err := encodeJSON(input.EmergencyContacts)
		if err != nil {
			return nil, fmt.Errorf("care recipient service: marshal contacts: %w", err)
		}
		updates["emergency_contacts"] = contacts
	}

	if len(updates) == 0 {
		return &recipient, nil
	}

	if err := s.db.WithContext(ctx).Model(&recipient).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("care recipient service: update recipient: %w", err)
	}

	if err := s.db.WithContext(ctx).First(&recipient, "id = ?", recipientID).Error; err != nil {
		return nil, fmt.Errorf("care recipient service: reload recipient: %w", err)
	}

	return &recipient, nil
}

// Delete removes a recipient and all dependent resources in one transaction.
// Admin-only. Document blobs are removed best-effort after the transaction
// commits.
func (s *CareRecipientService) Delete(ctx context.Context, userID, recipientID string) error {
	ctx = ensureContext(ctx)

	access, err := s.resolver.Resolve(ctx, userID, recipientID)
	if err != nil {
		return err
	}
	if access.Role != models.RoleAdmin {
		return permissions.ErrAccessDenied
	}

	var documents []models.Document
	if err := s.db.WithContext(ctx).
		Where("care_recipient_id = ?", recipientID).
		Find(&documents).Error; err != nil {
		return fmt.Errorf("care recipient service: list documents: %w", err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{
			&models.MedicationLog{},
			&models.Medication{},
			&models.Appointment{},
			&models.Document{},
			&models.Membership{},
		} {
			if err := tx.Where("care_recipient_id = ?", recipientID).Delete(model).Error; err != nil {
				return fmt.Errorf("care recipient service: cascade delete: %w", err)
			}
		}

		if err := tx.Delete(&models.CareRecipient{}, "id = ?", recipientID).Error; err != nil {
			return fmt.Errorf("care recipient service: delete recipient: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.blobs != nil {
		for _, document := range documents {
			if err := s.blobs.Delete(ctx, document.StoragePath); err != nil {
				s.log.Warn("delete document blob failed",
					zap.String("document_id", document.ID), zap.Error(err))
			}
		}
	}

	return nil
}
