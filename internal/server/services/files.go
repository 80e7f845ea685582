package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/avezhov/filestorage/internal/common"
	"github.com/avezhov/filestorage/internal/dbx"
	"github.com/avezhov/filestorage/internal/logging"
	"github.com/avezhov/filestorage/internal/server/blob"
	"github.com/avezhov/filestorage/internal/server/filetype"
	"github.com/avezhov/filestorage/internal/server/models"
	"github.com/avezhov/filestorage/internal/server/repositories/repomanager"
)

const fallbackContentType = "application/octet-stream"

// FileService implements uploads, downloads and listing. An upload mutates
// the record and the blob inside one transaction: if the blob write fails
// the record change rolls back, so the two stores never diverge on a failed
// request.
type FileService struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	blobs  blob.Store
	logger logging.Logger
}

func NewFileService(db *sql.DB, repos repomanager.RepositoryManager, blobs blob.Store,
	logger logging.Logger) *FileService {
	return &FileService{
		db:     db,
		repos:  repos,
		blobs:  blobs,
		logger: logger.With("module", "file_service"),
	}
}

// Download bundles everything a caller needs to stream a file back.
type Download struct {
	File        *FileView
	ContentType string
	Body        io.ReadCloser
}

// Upload stores the uploaded bytes under the virtual path and creates or
// replaces the record for that path. The declared content type must be a
// known MIME type and must agree with the extension when the path already
// names a file. Replacing keeps the record's uuid and refreshes created_at.
func (s *FileService) Upload(ctx context.Context, principal *Principal, rawPath, declaredType,
	uploadedName string, size int64, src io.Reader) (*FileView, error) {

	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", common.ErrFileSize, size)
	}
	if rawPath == "" {
		return nil, fmt.Errorf("%w: path", common.ErrFieldRequired)
	}

	if _, err := filetype.ExtensionsForType(declaredType); err != nil {
		return nil, err
	}
	_, pathNamesFile, err := filetype.Reconcile(declaredType, rawPath)
	if err != nil {
		return nil, err
	}
	finalPath, fileName, catalog, err := filetype.ResolvePath(rawPath, uploadedName, pathNamesFile)
	if err != nil {
		return nil, err
	}

	var stored *models.File
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		rec, created, err := s.repos.Files(tx).CreateOrUpdate(ctx, &models.File{
			UserID:         principal.ID,
			Path:           finalPath,
			Size:           size,
			IsDownloadable: true,
		})
		if err != nil {
			return err
		}

		if err := s.blobs.Write(ctx, principal.Username, catalog, fileName, src, !created); err != nil {
			return err
		}

		stored = rec
		s.logger.Info(ctx, "file uploaded",
			"path", finalPath, "size", size, "replaced", !created)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return fileView(stored), nil
}

// Download resolves the locator — a uuid, or a virtual path when it contains
// a '/' or '.' — to one of the caller's records and opens its blob. Locators
// that match nothing map to ErrFilePath.
func (s *FileService) Download(ctx context.Context, principal *Principal, locator string) (*Download, error) {
	var rec *models.File
	var err error
	if strings.ContainsAny(locator, "./") {
		rec, err = s.repos.Files(s.db).Get(ctx, principal.ID, "", locator)
	} else {
		rec, err = s.repos.Files(s.db).Get(ctx, principal.ID, locator, "")
	}
	if err != nil {
		if errors.Is(err, common.ErrNotFound) || errors.Is(err, common.ErrFieldRequired) {
			return nil, fmt.Errorf("%w: %s", common.ErrFilePath, locator)
		}
		return nil, err
	}

	if !rec.IsDownloadable {
		return nil, fmt.Errorf("%w: %s", common.ErrFilePath, locator)
	}

	body, err := s.blobs.Open(ctx, principal.Username, rec.Path)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			// a record without its blob means the stores diverged
			s.logger.Error(ctx, "blob missing for existing record", "path", rec.Path, "uuid", rec.UUID)
			return nil, common.ErrInternal
		}
		return nil, err
	}

	contentType := filetype.TypeFromPath(rec.Path)
	if contentType == "" {
		contentType = fallbackContentType
	}

	return &Download{File: fileView(rec), ContentType: contentType, Body: body}, nil
}

// List returns all of the caller's records in storage order, tagged with
// the caller's public account id.
func (s *FileService) List(ctx context.Context, principal *Principal) (*ListView, error) {
	recs, err := s.repos.Files(s.db).ListByUser(ctx, principal.ID)
	if err != nil {
		return nil, err
	}

	views := make([]*FileView, 0, len(recs))
	for _, rec := range recs {
		views = append(views, fileView(rec))
	}

	return &ListView{AccountID: principal.UUID, Files: views}, nil
}

func fileView(f *models.File) *FileView {
	return &FileView{
		ID:             f.UUID,
		Name:           f.Name(),
		CreatedAt:      f.CreatedAt,
		Path:           f.Path,
		Size:           f.Size,
		IsDownloadable: f.IsDownloadable,
	}
}
