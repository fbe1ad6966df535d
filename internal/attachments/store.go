// Package attachments stores chat attachments in an S3-compatible bucket.
package attachments

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"tareas/api/internal/util"
)

// MaxSize is the largest attachment accepted, in bytes.
const MaxSize = 10 << 20

const defaultURLTTL = 15 * time.Minute

var (
	ErrTooLarge    = errors.New("attachment exceeds 10 MiB")
	ErrEmpty       = errors.New("attachment is empty")
	ErrInvalidKey  = errors.New("attachment key does not belong to task")
	ErrUnavailable = errors.New("attachment storage not configured")
)

// objectClient is the subset of *minio.Client the store uses.
type objectClient interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	PresignedGetObject(ctx context.Context, bucket, object string, expiry time.Duration, params url.Values) (*url.URL, error)
}

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Store writes attachments under tasks/<taskID>/ in a single bucket.
type Store struct {
	client objectClient
	bucket string
}

// New connects to the object store and creates the bucket when missing.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Endpoint == "" {
		return nil, ErrUnavailable
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	s := &Store{client: client, bucket: cfg.Bucket}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// Put uploads an attachment and returns its object key. size must be the
// exact byte count of reader.
func (s *Store) Put(ctx context.Context, taskID, filename string, reader io.Reader, size int64, contentType string) (string, error) {
	if size <= 0 {
		return "", ErrEmpty
	}
	if size > MaxSize {
		return "", ErrTooLarge
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	key := objectKey(taskID, filename)
	_, err := s.client.PutObject(ctx, s.bucket, key, io.LimitReader(reader, size), size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return key, nil
}

// PresignedURL returns a time-limited download URL for key. The key must
// live under taskID's prefix.
func (s *Store) PresignedURL(ctx context.Context, taskID, key string, ttl time.Duration) (string, error) {
	if !BelongsTo(taskID, key) {
		return "", ErrInvalidKey
	}
	if ttl <= 0 {
		ttl = defaultURLTTL
	}
	params := url.Values{}
	params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", path.Base(key)))
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, ttl, params)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}

func taskPrefix(taskID string) string {
	return "tasks/" + taskID + "/"
}

// BelongsTo reports whether key was issued for taskID.
func BelongsTo(taskID, key string) bool {
	return taskID != "" && strings.HasPrefix(key, taskPrefix(taskID)) && !strings.Contains(key, "..")
}

func objectKey(taskID, filename string) string {
	return taskPrefix(taskID) + util.NewID("att") + "-" + SanitizeFilename(filename)
}

// SanitizeFilename keeps the base name and replaces anything outside a
// conservative character set with '_'.
func SanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "adjunto"
	}
	if len(out) > 120 {
		out = out[len(out)-120:]
	}
	return out
}
