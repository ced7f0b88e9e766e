package infra

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

// MaxDocumentSize is the largest upload accepted for invoices and bills.
const MaxDocumentSize = 10 << 20

var (
	ErrDocumentTooLarge    = errors.New("document exceeds 10 MB")
	ErrDocumentType        = errors.New("document must be a PDF, JPEG or PNG")
	ErrDocumentNotFound    = errors.New("document not found")
	ErrInvalidDocumentName = errors.New("invalid document name")
)

var allowedDocumentTypes = map[string]string{
	"application/pdf": ".pdf",
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
}

// Stored names are always <uuid><ext>; anything else is rejected before it
// reaches a backend.
var storedNamePattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\.(pdf|jpg|png)$`)

// DocumentStore keeps uploaded invoices, bills and QC photos.
type DocumentStore interface {
	Save(ctx context.Context, originalName string, r io.Reader) (string, error)
	Open(ctx context.Context, storedName string) (io.ReadCloser, error)
}

// readDocument buffers the upload, enforces the size limit and sniffs the
// content type. It returns the bytes, the detected MIME type and the stored
// name to use.
func readDocument(r io.Reader) ([]byte, string, string, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxDocumentSize+1))
	if err != nil {
		return nil, "", "", fmt.Errorf("documents: read upload: %w", err)
	}
	if len(data) > MaxDocumentSize {
		return nil, "", "", ErrDocumentTooLarge
	}
	mime := http.DetectContentType(data)
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	ext, ok := allowedDocumentTypes[mime]
	if !ok {
		return nil, "", "", fmt.Errorf("%w (got %s)", ErrDocumentType, mime)
	}
	return data, mime, uuid.NewString() + ext, nil
}

func checkStoredName(name string) error {
	if !storedNamePattern.MatchString(name) {
		return ErrInvalidDocumentName
	}
	return nil
}

// ── Local disk ───────────────────────────────────────────────────────────────

type LocalDocumentStore struct {
	dir string
}

func NewLocalDocumentStore(dir string) (*LocalDocumentStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("documents: create dir: %w", err)
	}
	return &LocalDocumentStore{dir: dir}, nil
}

func (s *LocalDocumentStore) Save(_ context.Context, _ string, r io.Reader) (string, error) {
	data, _, name, err := readDocument(r)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("documents: write: %w", err)
	}
	return name, nil
}

func (s *LocalDocumentStore) Open(_ context.Context, storedName string) (io.ReadCloser, error) {
	if err := checkStoredName(storedName); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.dir, storedName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrDocumentNotFound
	}
	return f, err
}

// ── Google Cloud Storage ─────────────────────────────────────────────────────

type GCSDocumentStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSDocumentStore uses explicit service-account JSON when given and
// Application Default Credentials otherwise.
func NewGCSDocumentStore(ctx context.Context, bucket, prefix, credentialsJSON string) (*GCSDocumentStore, error) {
	if bucket == "" {
		return nil, errors.New("documents: GCS bucket is required")
	}
	var opts []option.ClientOption
	if strings.TrimSpace(credentialsJSON) != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credentialsJSON)))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("documents: gcs client: %w", err)
	}
	return &GCSDocumentStore{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}, nil
}

func (s *GCSDocumentStore) object(name string) *storage.ObjectHandle {
	key := name
	if s.prefix != "" {
		key = s.prefix + "/" + name
	}
	return s.client.Bucket(s.bucket).Object(key)
}

func (s *GCSDocumentStore) Save(ctx context.Context, originalName string, r io.Reader) (string, error) {
	data, mime, name, err := readDocument(r)
	if err != nil {
		return "", err
	}
	w := s.object(name).NewWriter(ctx)
	w.ContentType = mime
	w.Metadata = map[string]string{"original-name": filepath.Base(originalName)}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("documents: gcs write: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("documents: gcs close: %w", err)
	}
	return name, nil
}

func (s *GCSDocumentStore) Open(ctx context.Context, storedName string) (io.ReadCloser, error) {
	if err := checkStoredName(storedName); err != nil {
		return nil, err
	}
	rc, err := s.object(storedName).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrDocumentNotFound
	}
	return rc, err
}

func (s *GCSDocumentStore) Close() error { return s.client.Close() }

// NewDocumentStore builds the backend named by kind ("local" or "gcs").
func NewDocumentStore(ctx context.Context, kind, localDir, bucket, prefix, credentialsJSON string) (DocumentStore, error) {
	switch kind {
	case "", "local":
		return NewLocalDocumentStore(localDir)
	case "gcs":
		return NewGCSDocumentStore(ctx, bucket, prefix, credentialsJSON)
	default:
		return nil, fmt.Errorf("documents: unknown store %q", kind)
	}
}
