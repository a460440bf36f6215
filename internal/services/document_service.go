package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/carecircle/carecircle/internal/models"
	"github.com/carecircle/carecircle/internal/permissions"
	apperrors "github.com/carecircle/carecircle/pkg/errors"
	"github.com/carecircle/carecircle/pkg/logger"
	"github.com/carecircle/carecircle/pkg/storage"
)

// UploadDocumentInput captures an uploaded file and its metadata.
type UploadDocumentInput struct {
	ActorID     string
	RecipientID string
	Name        string
	ContentType string
	Content     io.Reader
}

// DocumentService handles document metadata and the paired blob objects.
type DocumentService struct {
	db       *gorm.DB
	resolver *permissions.Resolver
	blobs    storage.Store
	log      *zap.Logger
}

// NewDocumentService constructs a DocumentService.
func NewDocumentService(db *gorm.DB, resolver *permissions.Resolver, blobs storage.Store) (*DocumentService, error) {
	if db == nil {
		return nil, errors.New("document service: db is required")
	}
	if resolver == nil {
		return nil, errors.New("document service: permission resolver is required")
	}
	if blobs == nil {
		return nil, errors.New("document service: blob store is required")
	}
	return &DocumentService{
		db:       db,
		resolver: resolver,
		blobs:    blobs,
		log:      logger.WithModule("documents"),
	}, nil
}

// Upload writes the blob first and then the metadata row, removing the blob
// again if the row cannot be created. Requires edit permission.
func (s *DocumentService) Upload(ctx context.Context, input UploadDocumentInput) (*models.Document, error) {
	ctx = ensureContext(ctx)

	if err := s.resolver.Check(ctx, input.ActorID, input.RecipientID, permissions.ActionEdit); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewBadRequest("document name is required")
	}
	if input.Content == nil {
		return nil, apperrors.NewBadRequest("document content is required")
	}

	storagePath := path.Join(input.RecipientID, uuid.NewString()+path.Ext(name))
	size, err := s.blobs.Write(ctx, storagePath, input.Content)
	if err != nil {
		return nil, fmt.Errorf("document service: write blob: %w", err)
	}

	document := models.Document{
		CareRecipientID: input.RecipientID,
		Name:            name,
		ContentType:     strings.TrimSpace(input.ContentType),
		SizeBytes:       size,
		StoragePath:     storagePath,
		UploadedBy:      strings.TrimSpace(input.ActorID),
	}

	if err := s.db.WithContext(ctx).Create(&document).Error; err != nil {
		if cleanupErr := s.blobs.Delete(ctx, storagePath); cleanupErr != nil {
			s.log.Warn("rollback document blob failed",
				zap.String("path", storagePath), zap.Error(cleanupErr))
		}
		return nil, fmt.Errorf("document service: create document: %w", err)
	}

	return &document, nil
}

// List returns documents for a recipient, newest first.
func (s *DocumentService) List(ctx context.Context, actorID, recipientID string) ([]models.Document, error) {
	ctx = ensureContext(ctx)

	if err := s.resolver.Check(ctx, actorID, recipientID, permissions.ActionView); err != nil {
		return nil, err
	}

	var documents []models.Document
	if err := s.db.WithContext(ctx).
		Where("care_recipient_id = ?", recipientID).
		Order("created_at DESC").
		Find(&documents).Error; err != nil {
		return nil, fmt.Errorf("document service: list documents: %w", err)
	}

	return documents, nil
}

// Open returns the document metadata and a reader over its content.
// The caller must close the reader. Requires view permission.
func (s *DocumentService) Open(ctx context.Context, actorID, documentID string) (*models.Document, io.ReadCloser, error) {
	ctx = ensureContext(ctx)

	document, err := s.load(ctx, documentID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.resolver.Check(ctx, actorID, document.CareRecipientID, permissions.ActionView); err != nil {
		return nil, nil, err
	}

	reader, err := s.blobs.Open(ctx, document.StoragePath)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, apperrors.ErrNotFound
		}
		return nil, nil, fmt.Errorf("document service: open blob: %w", err)
	}

	return document, reader, nil
}

// Delete removes the metadata row, then the blob best-effort. Requires
// delete permission.
func (s *DocumentService) Delete(ctx context.Context, actorID, documentID string) error {
	ctx = ensureContext(ctx)

	document, err := s.load(ctx, documentID)
	if err != nil {
		return err
	}
	if err := s.resolver.Check(ctx, actorID, document.CareRecipientID, permissions.ActionDelete); err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Delete(&models.Document{}, "id = ?", document.ID).Error; err != nil {
		return fmt.Errorf("document service: delete document: %w", err)
	}

	if err := s.blobs.Delete(ctx, document.StoragePath); err != nil {
		s.log.Warn("delete document blob failed",
			zap.String("document_id", document.ID), zap.Error(err))
	}

	return nil
}

func (s *DocumentService) load(ctx context.Context, documentID string) (*models.Document, error) {
	var document models.Document
	if err := s.db.WithContext(ctx).First(&document, "id = ?", strings.TrimSpace(documentID)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("document service: load document: %w", err)
	}
	return &document, nil
}
