package document

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"knowledgescout/internal/cache"
	"knowledgescout/internal/extract"
	"knowledgescout/internal/middleware"
	"knowledgescout/internal/worker"
)

var (
	ErrNotFound        = errors.New("document not found")
	ErrAccessDenied    = errors.New("access to document denied")
	ErrUnsupportedType = errors.New("unsupported file type")
)

const (
	listCacheTTL  = 30 * time.Second
	shareTokenTTL = 7 * 24 * time.Hour
)

type Repository interface {
	Create(ctx context.Context, d *Document) error
	Get(ctx context.Context, id string) (*Document, error)
	List(ctx context.Context, viewerID string, limit, offset int) ([]Document, int, error)
	Delete(ctx context.Context, id string) error
	CreateShareToken(ctx context.Context, documentID, token string, expiresAt time.Time) error
	GetByShareToken(ctx context.Context, token string) (*Document, error)
}

type TaskPublisher interface {
	PublishIndexTask(ctx context.Context, task worker.IndexTask) error
}

type ListResult struct {
	Documents []Document `json:"documents"`
	Total     int        `json:"total"`
	Limit     int        `json:"limit"`
	Offset    int        `json:"offset"`
}

type ShareResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Service struct {
	repo      Repository
	publisher TaskPublisher
	cache     cache.Cache
	uploadDir string
	logger    *slog.Logger
}

func NewService(repo Repository, publisher TaskPublisher, queryCache cache.Cache, uploadDir string, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		cache:     queryCache,
		uploadDir: uploadDir,
		logger:    logger,
	}
}

// Upload stores the file, records the document as unindexed and enqueues an
// indexing task. A publish failure is not fatal: the document stays
// unindexed and the next index rebuild picks it up.
func (s *Service) Upload(ctx context.Context, ownerID, title, visibility, filename string, size int64, file io.Reader) (*Document, error) {
	if !extract.Supported(filename) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, filepath.Ext(filename))
	}

	switch visibility {
	case "":
		visibility = VisibilityPrivate
	case VisibilityPrivate, VisibilityPublic:
	default:
		return nil, fmt.Errorf("invalid visibility %q", visibility)
	}

	if title = strings.TrimSpace(title); title == "" {
		base := filepath.Base(filename)
		title = strings.TrimSuffix(base, filepath.Ext(base))
	}

	path, written, err := s.saveFile(filename, file)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		size = written
	}

	doc := &Document{
		OwnerID:    ownerID,
		Title:      title,
		Filename:   filepath.Base(filename),
		FilePath:   path,
		SizeBytes:  size,
		Visibility: visibility,
		Status:     StatusUnindexed,
	}
	if err := s.repo.Create(ctx, doc); err != nil {
		if removeErr := os.Remove(path); removeErr != nil {
			s.logger.WarnContext(ctx, "orphaned upload file", "path", path, "error", removeErr)
		}
		return nil, err
	}

	task := worker.IndexTask{DocumentID: doc.ID, CorrelationID: middleware.GetCorrelationID(ctx)}
	if err := s.publisher.PublishIndexTask(ctx, task); err != nil {
		s.logger.ErrorContext(ctx, "could not enqueue index task", "document_id", doc.ID, "error", err)
	}

	s.cache.Invalidate(ctx, "docs:*")
	return doc, nil
}

func (s *Service) saveFile(filename string, file io.Reader) (string, int64, error) {
	if err := os.MkdirAll(s.uploadDir, 0o750); err != nil {
		return "", 0, fmt.Errorf("create upload dir: %w", err)
	}

	path := filepath.Join(s.uploadDir, uuid.New().String()+strings.ToLower(filepath.Ext(filename)))
	out, err := os.Create(path) // #nosec G304 -- path is built from a fresh uuid, not user input
	if err != nil {
		return "", 0, fmt.Errorf("create upload file: %w", err)
	}
	defer out.Close()

	written, err := io.Copy(out, file)
	if err != nil {
		return "", 0, fmt.Errorf("write upload: %w", err)
	}
	return path, written, nil
}

// Get enforces visibility: a private document is served only to its owner,
// an admin, or the holder of a live share token for that document.
func (s *Service) Get(ctx context.Context, id string, viewer middleware.Identity, shareToken string) (*Document, error) {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if s.canView(ctx, doc, viewer, shareToken) {
		return doc, nil
	}
	return nil, ErrAccessDenied
}

func (s *Service) canView(ctx context.Context, doc *Document, viewer middleware.Identity, shareToken string) bool {
	if doc.Visibility == VisibilityPublic {
		return true
	}
	if viewer.UserID != "" && (viewer.UserID == doc.OwnerID || viewer.Role == "admin") {
		return true
	}
	if shareToken != "" {
		shared, err := s.repo.GetByShareToken(ctx, shareToken)
		if err == nil && shared.ID == doc.ID {
			return true
		}
	}
	return false
}

// List serves the viewer-scoped page, briefly cached so dashboard polling
// does not hammer the database.
func (s *Service) List(ctx context.Context, viewerID string, limit, offset int) (ListResult, error) {
	key := fmt.Sprintf("docs:list:%s:%d:%d", viewerID, limit, offset)
	if raw, ok := s.cache.Get(ctx, key); ok {
		var cached ListResult
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
	}

	docs, total, err := s.repo.List(ctx, viewerID, limit, offset)
	if err != nil {
		return ListResult{}, err
	}
	if docs == nil {
		docs = []Document{}
	}

	result := ListResult{Documents: docs, Total: total, Limit: limit, Offset: offset}
	if raw, err := json.Marshal(result); err == nil {
		s.cache.Set(ctx, key, raw, listCacheTTL)
	}
	return result, nil
}

// Delete removes the record (chunks cascade), the stored file, and every
// cache entry that could still mention the document.
func (s *Service) Delete(ctx context.Context, id string, viewer middleware.Identity) error {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if viewer.UserID != doc.OwnerID && viewer.Role != "admin" {
		return ErrAccessDenied
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if err := os.Remove(doc.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.WarnContext(ctx, "could not remove upload file", "path", doc.FilePath, "error", err)
	}

	s.cache.Invalidate(ctx, "docs:*")
	s.cache.Invalidate(ctx, "query:*:doc:"+id)
	return nil
}

// Share mints a time-limited read token for a private document.
func (s *Service) Share(ctx context.Context, id string, viewer middleware.Identity) (ShareResult, error) {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ShareResult{}, ErrNotFound
		}
		return ShareResult{}, err
	}
	if viewer.UserID != doc.OwnerID {
		return ShareResult{}, ErrAccessDenied
	}

	token := uuid.New().String()
	expiresAt := time.Now().Add(shareTokenTTL)
	if err := s.repo.CreateShareToken(ctx, doc.ID, token, expiresAt); err != nil {
		return ShareResult{}, err
	}
	return ShareResult{Token: token, ExpiresAt: expiresAt}, nil
}
