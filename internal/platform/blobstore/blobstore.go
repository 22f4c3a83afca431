// Package blobstore keeps generated assets (receipt PDFs, payment QR images)
// addressed by a slash-separated key such as "pdfs/boleta_17_pending.pdf".
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

var (
	ErrBlobNotFound       = errors.New("blob not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrInvalidKey         = errors.New("invalid blob key")
)

// MaxFileSize is the maximum allowed blob size in bytes (10 MB).
const MaxFileSize = 10 * 1024 * 1024

// AllowedContentTypes lists what the clinic generates.
var AllowedContentTypes = map[string]bool{
	"application/pdf": true,
	"image/png":       true,
}

// Key prefixes for the two asset families.
const (
	PDFPrefix = "pdfs/"
	QRPrefix  = "qrs/"
)

// ReceiptKey names the cached receipt of an appointment in a given status.
// A status change moves the receipt to a new key, so a stale PDF is never
// served.
func ReceiptKey(appointmentID int64, status string) string {
	return fmt.Sprintf("%sboleta_%d_%s.pdf", PDFPrefix, appointmentID, strings.ToLower(status))
}

func QRKey(reference string) string {
	return QRPrefix + reference + ".png"
}

// BlobMetadata describes a stored blob.
type BlobMetadata struct {
	Key         string    `json:"key"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Hash        string    `json:"hash,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// BlobStore defines the contract for blob storage backends.
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, content io.Reader) (*BlobMetadata, error)
	Get(ctx context.Context, key string) ([]byte, *BlobMetadata, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// cleanKey rejects keys that could escape the store root.
func cleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}

func contentTypeFor(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".pdf":
		return "application/pdf"
	case ".png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}

func readLimited(content io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(content, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > MaxFileSize {
		return nil, ErrFileTooLarge
	}
	return data, nil
}

func validate(key, contentType string) (string, error) {
	k, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	if !AllowedContentTypes[contentType] {
		return "", ErrInvalidContentType
	}
	return k, nil
}

// ---------------------------------------------------------------------------
// Disk implementation
// ---------------------------------------------------------------------------

// DiskStore writes blobs under a root directory, one file per key.
type DiskStore struct {
	root string
	mu   sync.Mutex
}

// NewDiskStore creates root and the asset sub-directories if needed.
func NewDiskStore(root string) (*DiskStore, error) {
	for _, dir := range []string{root, filepath.Join(root, "pdfs"), filepath.Join(root, "qrs")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create asset dir %s: %w", dir, err)
		}
	}
	return &DiskStore{root: root}, nil
}

func (s *DiskStore) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

// Put writes through a temp file and rename so readers never see a partial
// PDF.
func (s *DiskStore) Put(_ context.Context, key, contentType string, content io.Reader) (*BlobMetadata, error) {
	k, err := validate(key, contentType)
	if err != nil {
		return nil, err
	}
	data, err := readLimited(content)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dst := s.path(k)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".blob-*")
	if err != nil {
		return nil, fmt.Errorf("create temp blob: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("close blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("rename blob: %w", err)
	}

	return &BlobMetadata{
		Key:         k,
		ContentType: contentType,
		Size:        int64(len(data)),
		Hash:        fmt.Sprintf("%x", sha256.Sum256(data)),
		CreatedAt:   time.Now().UTC(),
	}, nil
}

func (s *DiskStore) Get(_ context.Context, key string) ([]byte, *BlobMetadata, error) {
	k, err := cleanKey(key)
	if err != nil {
		return nil, nil, err
	}
	p := s.path(k)
	info, err := os.Stat(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("stat blob: %w", err)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, nil, fmt.Errorf("read blob: %w", err)
	}
	return data, &BlobMetadata{
		Key:         k,
		ContentType: contentTypeFor(k),
		Size:        info.Size(),
		CreatedAt:   info.ModTime().UTC(),
	}, nil
}

func (s *DiskStore) Exists(_ context.Context, key string) (bool, error) {
	k, err := cleanKey(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(s.path(k))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat blob: %w", err)
	}
	return true, nil
}

// ---------------------------------------------------------------------------
// In-memory implementation
// ---------------------------------------------------------------------------

type storedBlob struct {
	metadata BlobMetadata
	content  []byte
}

// InMemoryBlobStore is a thread-safe, in-memory BlobStore for testing/dev.
type InMemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string]*storedBlob
}

func NewInMemoryBlobStore() *InMemoryBlobStore {
	return &InMemoryBlobStore{blobs: make(map[string]*storedBlob)}
}

func (s *InMemoryBlobStore) Put(_ context.Context, key, contentType string, content io.Reader) (*BlobMetadata, error) {
	k, err := validate(key, contentType)
	if err != nil {
		return nil, err
	}
	data, err := readLimited(content)
	if err != nil {
		return nil, err
	}
	meta := BlobMetadata{
		Key:         k,
		ContentType: contentType,
		Size:        int64(len(data)),
		Hash:        fmt.Sprintf("%x", sha256.Sum256(data)),
		CreatedAt:   time.Now().UTC(),
	}

	s.mu.Lock()
	s.blobs[k] = &storedBlob{metadata: meta, content: data}
	s.mu.Unlock()

	out := meta
	return &out, nil
}

func (s *InMemoryBlobStore) Get(_ context.Context, key string) ([]byte, *BlobMetadata, error) {
	k, err := cleanKey(key)
	if err != nil {
		return nil, nil, err
	}
	s.mu.RLock()
	blob, ok := s.blobs[k]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, ErrBlobNotFound
	}
	meta := blob.metadata
	return bytes.Clone(blob.content), &meta, nil
}

func (s *InMemoryBlobStore) Exists(_ context.Context, key string) (bool, error) {
	k, err := cleanKey(key)
	if err != nil {
		return false, err
	}
	s.mu.RLock()
	_, ok := s.blobs[k]
	s.mu.RUnlock()
	return ok, nil
}
