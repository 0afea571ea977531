package docstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sethvargo/go-retry"
)

type object struct {
	body        []byte
	contentType string
	meta        map[string]string
}

// fakeS3 is an in-memory bucket whose first failPuts uploads fail.
type fakeS3 struct {
	mu       sync.Mutex
	objects  map[string]object
	failPuts int
	puts     int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string]object)}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	if f.puts <= f.failPuts {
		return nil, errors.New("503 slow down")
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = object{body, aws.ToString(in.ContentType), in.Metadata}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:        io.NopCloser(bytes.NewReader(obj.body)),
		ContentType: aws.String(obj.contentType),
		Metadata:    obj.meta,
	}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func testStore(client s3Client, cfg Config) *Store {
	s := newStore(client, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.backoff = func() retry.Backoff {
		return retry.WithMaxRetries(3, retry.NewConstant(time.Millisecond))
	}
	return s
}

func TestPutGetPlain(t *testing.T) {
	client := newFakeS3()
	s := testStore(client, Config{Bucket: "docs", Prefix: "/tareas/"})
	ctx := context.Background()

	if err := s.Put(ctx, "documents/1/a.pdf", []byte("%PDF-1.4"), "application/pdf"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	obj, ok := client.objects["tareas/documents/1/a.pdf"]
	if !ok {
		t.Fatalf("object not stored under prefix: %v", client.objects)
	}
	if string(obj.body) != "%PDF-1.4" || obj.contentType != "application/pdf" {
		t.Errorf("stored %q as %q", obj.body, obj.contentType)
	}

	data, ct, err := s.Get(ctx, "documents/1/a.pdf")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(data) != "%PDF-1.4" || ct != "application/pdf" {
		t.Errorf("Get = %q, %q", data, ct)
	}
}

func TestPutGetEncrypted(t *testing.T) {
	client := newFakeS3()
	s := testStore(client, Config{Bucket: "docs", Passphrase: "correct horse"})
	ctx := context.Background()
	original := []byte("apuntes de biología")

	if err := s.Put(ctx, "k", original, "text/plain"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	obj := client.objects["k"]
	if bytes.Contains(obj.body, original) {
		t.Error("stored object contains plaintext")
	}
	if obj.contentType != "application/octet-stream" || obj.meta[metaEncryption] != encryptionName {
		t.Errorf("stored as %q with meta %v", obj.contentType, obj.meta)
	}

	data, ct, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(data, original) || ct != "text/plain" {
		t.Errorf("Get = %q, %q", data, ct)
	}

	plain := testStore(client, Config{Bucket: "docs"})
	if _, _, err := plain.Get(ctx, "k"); err == nil {
		t.Error("expected error reading encrypted object without passphrase")
	}
}

func TestPutRetries(t *testing.T) {
	client := newFakeS3()
	client.failPuts = 2
	s := testStore(client, Config{Bucket: "docs"})

	if err := s.Put(context.Background(), "k", []byte("x"), ""); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if client.puts != 3 {
		t.Errorf("puts = %d, want 3", client.puts)
	}

	client.failPuts = 100
	client.puts = 0
	if err := s.Put(context.Background(), "k2", []byte("x"), ""); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if client.puts != 4 {
		t.Errorf("puts = %d, want 1 try plus 3 retries", client.puts)
	}
}

func TestGetMissingAndDelete(t *testing.T) {
	client := newFakeS3()
	s := testStore(client, Config{Bucket: "docs"})
	ctx := context.Background()

	if _, _, err := s.Get(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if err := s.Put(ctx, "k", []byte("x"), ""); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := client.objects["k"]; ok {
		t.Error("object still present after delete")
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(Config{AccessKey: "a", SecretKey: "b"}, nil); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
	s, err := New(Config{Bucket: "b", AccessKey: "a", SecretKey: "s", Endpoint: "http://localhost:9000"}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.Encrypted() {
		t.Error("store without passphrase should not encrypt")
	}
}
