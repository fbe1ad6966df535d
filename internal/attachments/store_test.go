package attachments

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
)

type fakeObjects struct {
	exists  bool
	made    []string
	puts    map[string][]byte
	types   map[string]string
	presign func(object string, expiry time.Duration) (*url.URL, error)
	putErr  error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{puts: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeObjects) BucketExists(context.Context, string) (bool, error) { return f.exists, nil }

func (f *fakeObjects) MakeBucket(_ context.Context, bucket string, _ minio.MakeBucketOptions) error {
	f.made = append(f.made, bucket)
	return nil
}

func (f *fakeObjects) PutObject(_ context.Context, _, object string, reader io.Reader, _ int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.putErr != nil {
		return minio.UploadInfo{}, f.putErr
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	f.puts[object] = data
	f.types[object] = opts.ContentType
	return minio.UploadInfo{Key: object, Size: int64(len(data))}, nil
}

func (f *fakeObjects) PresignedGetObject(_ context.Context, _, object string, expiry time.Duration, _ url.Values) (*url.URL, error) {
	if f.presign != nil {
		return f.presign(object, expiry)
	}
	return url.Parse("https://files.local/" + object)
}

func TestEnsureBucketCreatesMissing(t *testing.T) {
	objects := newFakeObjects()
	s := &Store{client: objects, bucket: "adjuntos"}
	if err := s.ensureBucket(context.Background()); err != nil {
		t.Fatalf("ensureBucket: %v", err)
	}
	if len(objects.made) != 1 || objects.made[0] != "adjuntos" {
		t.Fatalf("made = %v", objects.made)
	}

	objects.exists = true
	objects.made = nil
	if err := s.ensureBucket(context.Background()); err != nil {
		t.Fatalf("ensureBucket: %v", err)
	}
	if len(objects.made) != 0 {
		t.Fatal("existing bucket was recreated")
	}
}

func TestPutStoresUnderTaskPrefix(t *testing.T) {
	objects := newFakeObjects()
	s := &Store{client: objects, bucket: "adjuntos"}

	body := []byte("contenido")
	key, err := s.Put(context.Background(), "tsk_1", "../informe final.pdf", bytes.NewReader(body), int64(len(body)), "")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !strings.HasPrefix(key, "tasks/tsk_1/att_") || !strings.HasSuffix(key, "-informe_final.pdf") {
		t.Fatalf("unexpected key %q", key)
	}
	if string(objects.puts[key]) != "contenido" {
		t.Fatalf("stored %q", objects.puts[key])
	}
	if objects.types[key] != "application/octet-stream" {
		t.Fatalf("content type = %q", objects.types[key])
	}
}

func TestPutRejectsSize(t *testing.T) {
	s := &Store{client: newFakeObjects(), bucket: "b"}
	if _, err := s.Put(context.Background(), "tsk_1", "a", strings.NewReader(""), 0, ""); !errors.Is(err, ErrEmpty) {
		t.Fatalf("empty: err = %v", err)
	}
	if _, err := s.Put(context.Background(), "tsk_1", "a", strings.NewReader("x"), MaxSize+1, ""); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("oversize: err = %v", err)
	}
}

func TestPutWrapsUploadError(t *testing.T) {
	objects := newFakeObjects()
	objects.putErr = errors.New("connection reset")
	s := &Store{client: objects, bucket: "b"}
	_, err := s.Put(context.Background(), "tsk_1", "a.txt", strings.NewReader("x"), 1, "text/plain")
	if err == nil || !strings.Contains(err.Error(), "connection reset") {
		t.Fatalf("err = %v", err)
	}
}

func TestPresignedURL(t *testing.T) {
	objects := newFakeObjects()
	var gotExpiry time.Duration
	objects.presign = func(object string, expiry time.Duration) (*url.URL, error) {
		gotExpiry = expiry
		return url.Parse("https://files.local/" + object)
	}
	s := &Store{client: objects, bucket: "b"}

	u, err := s.PresignedURL(context.Background(), "tsk_1", "tasks/tsk_1/att_x-a.txt", 0)
	if err != nil {
		t.Fatalf("PresignedURL: %v", err)
	}
	if u != "https://files.local/tasks/tsk_1/att_x-a.txt" {
		t.Fatalf("url = %s", u)
	}
	if gotExpiry != defaultURLTTL {
		t.Fatalf("expiry = %v", gotExpiry)
	}

	if _, err := s.PresignedURL(context.Background(), "tsk_2", "tasks/tsk_1/att_x-a.txt", time.Minute); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("foreign key: err = %v", err)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"acta.pdf":            "acta.pdf",
		"C:\\docs\\plan.xlsx": "plan.xlsx",
		"año 2025.doc":        "a_o_2025.doc",
		"..":                  "adjunto",
		"   ":                 "adjunto",
	}
	for in, want := range tests {
		if got := SanitizeFilename(in); got != want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewWithoutEndpoint(t *testing.T) {
	if _, err := New(context.Background(), Config{}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v", err)
	}
}
