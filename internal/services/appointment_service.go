package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/carecircle/carecircle/internal/models"
	"github.com/carecircle/carecircle/internal/permissions"
	apperrors "github.com/carecircle/carecircle/pkg/errors"
)

// CreateAppointmentInput captures new appointment metadata.
type CreateAppointmentInput struct {
	ActorID     string
	RecipientID string
	Title       string
	Location    string
	Provider    string
	ScheduledAt time.Time
	Notes       string
}

// UpdateAppointmentInput describes mutable appointment fields.
type UpdateAppointmentInput struct {
	Title       *string
	Location    *string
	Provider    *string
	ScheduledAt *time.Time
	Notes       *string
}

// AppointmentService handles appointments for a care recipient.
type AppointmentService struct {
	db       *gorm.DB
	resolver *permissions.Resolver
}

// NewAppointmentService constructs an AppointmentService.
func NewAppointmentService(db *gorm.DB, resolver *permissions.Resolver) (*AppointmentService, error) {
	if db == nil {
		return nil, errors.New("appointment service: db is required")
	}
	if resolver == nil {
		return nil, errors.New("appointment service: permission resolver is required")
	}
	return &AppointmentService{db: db, resolver: resolver}, nil
}

// Create adds an appointment. Requires edit permission on the recipient.
func (s *AppointmentService) Create(ctx context.Context, input CreateAppointmentInput) (*models.Appointment, error) {
	ctx = ensureContext(ctx)

	if err := s.resolver.Check(ctx, input.ActorID, input.RecipientID, permissions.ActionEdit); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewBadRequest("appointment title is required")
	}
	if input.ScheduledAt.IsZero() {
		return nil, apperrors.NewBadRequest("appointment time is required")
	}

	appointment := models.Appointment{
		CareRecipientID: input.RecipientID,
		Title:           title,
		Location:        strings.TrimSpace(input.Location),
		Provider:        strings.TrimSpace(input.Provider),
		ScheduledAt:     input.ScheduledAt,
		Status:          models.AppointmentScheduled,
		Notes:           strings.TrimSpace(input.Notes),
		CreatedBy:       strings.TrimSpace(input.ActorID),
	}

	if err := s.db.WithContext(ctx).Create(&appointment).Error; err != nil {
		return nil, fmt.Errorf("appointment service: create appointment: %w", err)
	}

	return &appointment, nil
}

// List returns appointments for a recipient ordered by scheduled time.
func (s *AppointmentService) List(ctx context.Context, actorID, recipientID string) ([]models.Appointment, error) {
	ctx = ensureContext(ctx)

	if err := s.resolver.Check(ctx, actorID, recipientID, permissions.ActionView); err != nil {
		return nil, err
	}

	var appointments []models.Appointment
	if err := s.db.WithContext(ctx).
		Where("care_recipient_id = ?", recipientID).
		Order("scheduled_at ASC").
		Find(&appointments).Error; err != nil {
		return nil, fmt.Errorf("appointment service: list appointments: %w", err)
	}

	return appointments, nil
}

// Update modifies appointment metadata. Requires edit permission.
func (s *AppointmentService) Update(ctx context.Context, actorID, appointmentID string, input UpdateAppointmentInput) (*models.Appointment, error) {
	ctx = ensureContext(ctx)

	appointment, err := s.load(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if err := s.resolver.Check(ctx, actorID, appointment.CareRecipientID, permissions.ActionEdit); err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.Title != nil {
		if title := strings.TrimSpace(*input.Title); title != "" {
			updates["title"] = title
		}
	}
	if input.Location != nil {
		updates["location"] = strings.TrimSpace(*input.Location)
	}
	if input.Provider != nil {
		updates["provider"] = strings.TrimSpace(*input.Provider)
	}
	if input.ScheduledAt != nil {
		updates["scheduled_at"] = *input.ScheduledAt
	}
	if input.Notes != nil {
		updates["notes"] = strings.TrimSpace(*input.Notes)
	}

	if len(updates) == 0 {
		return appointment, nil
	}

	if err := s.db.WithContext(ctx).Model(appointment).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("appointment service: update appointment: %w", err)
	}

	return s.load(ctx, appointmentID)
}

// UpdateStatus transitions the appointment status. No lock is taken against
// the missed-status sweep; the most recent write wins.
func (s *AppointmentService) UpdateStatus(ctx context.Context, actorID, appointmentID, status string) (*models.Appointment, error) {
	ctx = ensureContext(ctx)

	if !models.ValidAppointmentStatus(status) {
		return nil, apperrors.NewBadRequest("invalid appointment status")
	}

	appointment, err := s.load(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if err := s.resolver.Check(ctx, actorID, appointment.CareRecipientID, permissions.ActionEdit); err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(appointment).Update("status", status).Error; err != nil {
		return nil, fmt.Errorf("appointment service: update status: %w", err)
	}
	appointment.Status = status

	return appointment, nil
}

// Delete removes an appointment. Requires delete permission.
func (s *AppointmentService) Delete(ctx context.Context, actorID, appointmentID string) error {
	ctx = ensureContext(ctx)

	appointment, err := s.load(ctx, appointmentID)
	if err != nil {
		return err
	}
	if err := s.resolver.Check(ctx, actorID, appointment.CareRecipientID, permissions.ActionDelete); err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Delete(&models.Appointment{}, "id = ?", appointmentID).Error; err != nil {
		return fmt.Errorf("appointment service: delete appointment: %w", err)
	}
	return nil
}

func (s *AppointmentService) load(ctx context.Context, appointmentID string) (*models.Appointment, error) {
	var appointment models.Appointment
	if err := s.db.WithContext(ctx).First(&appointment, "id = ?", strings.TrimSpace(appointmentID)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("appointment service: load appointment: %w", err)
	}
	return &appointment, nil
}
