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

// CreateMedicationInput captures new medication metadata.
type CreateMedicationInput struct {
	ActorID     string
	RecipientID string
	Name        string
	Dosage      string
	Frequency   string
	Times       []string // "HH:MM" entries consumed by the reminder scan
	StartDate   time.Time
	EndDate     *time.Time
	Notes       string
}

// UpdateMedicationInput describes mutable medication fields.
type UpdateMedicationInput struct {
	Name      *string
	Dosage    *string
	Frequency *string
	Times     []string
	EndDate   *time.Time
	Notes     *string
	IsActive  *bool
}

// LogDoseInput records a confirmed or skipped dose.
type LogDoseInput struct {
	ActorID      string
	MedicationID string
	Status       string
	TakenAt      *time.Time
	Notes        string
}

// MedicationService handles medications and dose logs for a care recipient.
type MedicationService struct {
	db       *gorm.DB
	resolver *permissions.Resolver
	now      func() time.Time
}

// MedicationOption customises MedicationService behaviour.
type MedicationOption func(*MedicationService)

// WithMedicationClock injects a custom clock primarily for testing.
func WithMedicationClock(clock func() time.Time) MedicationOption {
	return func(s *MedicationService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewMedicationService constructs a MedicationService.
func NewMedicationService(db *gorm.DB, resolver *permissions.Resolver, opts ...MedicationOption) (*MedicationService, error) {
	if db == nil {
		return nil, errors.New("medication service: db is required")
	}
	if resolver == nil {
		return nil, errors.New("medication service: permission resolver is required")
	}

	service := &MedicationService{db: db, resolver: resolver, now: time.Now}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Create adds a medication. Requires edit permission on the recipient.
func (s *MedicationService) Create(ctx context.Context, input CreateMedicationInput) (*models.Medication, error) {
	ctx = ensureContext(ctx)

	if err := s.resolver.Check(ctx, input.ActorID, input.RecipientID, permissions.ActionEdit); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewBadRequest("medication name is required")
	}
	times, err := normaliseScheduleTimes(input.Times)
	if err != nil {
		return nil, err
	}
	encoded, err := encodeJSON(times)
	if err != nil {
		return nil, fmt.Errorf("medication service: marshal times: %w", err)
	}

	startDate := input.StartDate
	if startDate.IsZero() {
		startDate = s.now().UTC()
	}

	medication := models.Medication{
		CareRecipientID: input.RecipientID,
		Name:            name,
		Dosage:          strings.TrimSpace(input.Dosage),
		Frequency:       defaultIfEmpty(input.Frequency, models.FrequencyDaily),
		Times:           encoded,
		StartDate:       startDate,
		EndDate:         input.EndDate,
		Notes:           strings.TrimSpace(input.Notes),
		IsActive:        true,
		CreatedBy:       strings.TrimSpace(input.ActorID),
	}

	if err := s.db.WithContext(ctx).Create(&medication).Error; err != nil {
		return nil, fmt.Errorf("medication service: create medication: %w", err)
	}

	return &medication, nil
}

// List returns medications for a recipient, visible to any active member.
func (s *MedicationService) List(ctx context.Context, actorID, recipientID string, activeOnly bool) ([]models.Medication, error) {
	ctx = ensureContext(ctx)

	if err := s.resolver.Check(ctx, actorID, recipientID, permissions.ActionView); err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).Where("care_recipient_id = ?", recipientID)
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}

	var medications []models.Medication
	if err := query.Order("created_at ASC").Find(&medications).Error; err != nil {
		return nil, fmt.Errorf("medication service: list medications: %w", err)
	}

	return medications, nil
}

// Update modifies a medication. Requires edit permission.
func (s *MedicationService) Update(ctx context.Context, actorID, medicationID string, input UpdateMedicationInput) (*models.Medication, error) {
	ctx = ensureContext(ctx)

	medication, err := s.load(ctx, medicationID)
	if err != nil {
		return nil, err
	}
	if err := s.resolver.Check(ctx, actorID, medication.CareRecipientID, permissions.ActionEdit); err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.Name != nil {
		if name := strings.TrimSpace(*input.Name); name != "" {
			updates["name"] = name
		}
	}
	if input.Dosage != nil {
		updates["dosage"] = strings.TrimSpace(*input.Dosage)
	}
	if input.Frequency != nil {
		updates["frequency"] = strings.TrimSpace(*input.Frequency)
	}
	if input.Times != nil {
		times, err := normaliseScheduleTimes(input.Times)
		if err != nil {
			return nil, err
		}
		encoded, err := encodeJSON(times)
		if err != nil {
			return nil, fmt.Errorf("medication service: marshal times: %w", err)
		}
		updates["times"] = encoded
	}
	if input.EndDate != nil {
		updates["end_date"] = *input.EndDate
	}
	if input.Notes != nil {
		updates["notes"] = strings.TrimSpace(*input.Notes)
	}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
	}

	if len(updates) == 0 {
		return medication, nil
	}

	if err := s.db.WithContext(ctx).Model(medication).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("medication service: update medication: %w", err)
	}

	return s.load(ctx, medicationID)
}

// Delete removes a medication and its dose logs. Requires delete permission.
func (s *MedicationService) Delete(ctx context.Context, actorID, medicationID string) error {
	ctx = ensureContext(ctx)

	medication, err := s.load(ctx, medicationID)
	if err != nil {
		return err
	}
	if err := s.resolver.Check(ctx, actorID, medication.CareRecipientID, permissions.ActionDelete); err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("medication_id = ?", medicationID).Delete(&models.MedicationLog{}).Error; err != nil {
			return fmt.Errorf("medication service: delete logs: %w", err)
		}
		if err := tx.Delete(&models.Medication{}, "id = ?", medicationID).Error; err != nil {
			return fmt.Errorf("medication service: delete medication: %w", err)
		}
		return nil
	})
}

// LogDose records a dose for a medication. Any member who can view the
// recipient may log doses.
func (s *MedicationService) LogDose(ctx context.Context, input LogDoseInput) (*models.MedicationLog, error) {
	ctx = ensureContext(ctx)

	medication, err := s.load(ctx, input.MedicationID)
	if err != nil {
		return nil, err
	}
	if err := s.resolver.Check(ctx, input.ActorID, medication.CareRecipientID, permissions.ActionView); err != nil {
		return nil, err
	}

	status := strings.TrimSpace(input.Status)
	if status != models.DoseTaken && status != models.DoseSkipped {
		return nil, apperrors.NewBadRequest("dose status must be taken or skipped")
	}

	takenAt := s.now().UTC()
	if input.TakenAt != nil {
		takenAt = input.TakenAt.UTC()
	}

	log := models.MedicationLog{
		MedicationID:    medication.ID,
		CareRecipientID: medication.CareRecipientID,
		TakenAt:         takenAt,
		Status:          status,
		Notes:           strings.TrimSpace(input.Notes),
		LoggedBy:        strings.TrimSpace(input.ActorID),
	}

	if err := s.db.WithContext(ctx).Create(&log).Error; err != nil {
		return nil, fmt.Errorf("medication service: create log: %w", err)
	}

	return &log, nil
}

// ListLogs returns dose logs for a medication, newest first.
func (s *MedicationService) ListLogs(ctx context.Context, actorID, medicationID string, limit int) ([]models.MedicationLog, error) {
	ctx = ensureContext(ctx)

	medication, err := s.load(ctx, medicationID)
	if err != nil {
		return nil, err
	}
	if err := s.resolver.Check(ctx, actorID, medication.CareRecipientID, permissions.ActionView); err != nil {
		return nil, err
	}

	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var logs []models.MedicationLog
	if err := s.db.WithContext(ctx).
		Where("medication_id = ?", medicationID).
		Order("taken_at DESC").
		Limit(limit).
		Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("medication service: list logs: %w", err)
	}

	return logs, nil
}

func (s *MedicationService) load(ctx context.Context, medicationID string) (*models.Medication, error) {
	var medication models.Medication
	if err := s.db.WithContext(ctx).First(&medication, "id = ?", strings.TrimSpace(medicationID)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("medication service: load medication: %w", err)
	}
	return &medication, nil
}

// normaliseScheduleTimes validates and deduplicates "HH:MM" schedule entries.
func normaliseScheduleTimes(values []string) ([]string, error) {
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, err := time.Parse("15:04", value); err != nil {
			return nil, apperrors.NewBadRequest(fmt.Sprintf("invalid schedule time %q, expected HH:MM", value))
		}
		if _, exists := seen[value]; exists {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out, nil
}

func defaultIfEmpty(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}
