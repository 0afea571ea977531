// Package docstore keeps uploaded study documents in S3-compatible
// object storage, optionally encrypted at rest.
package docstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sethvargo/go-retry"
)

var (
	ErrNotConfigured = errors.New("document storage not configured")
	ErrNotFound      = errors.New("document not found")
)

const (
	metaEncryption  = "encryption"
	metaContentType = "original-content-type"
	encryptionName  = "argon2id-aes256gcm"
)

// s3Client is the subset of the S3 API the store uses.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Config holds S3-compatible storage configuration. Passphrase enables
// client-side encryption.
type Config struct {
	Endpoint   string `yaml:"endpoint"`
	Bucket     string `yaml:"bucket"`
	Region     string `yaml:"region"`
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
	Prefix     string `yaml:"prefix"`
	Passphrase string `yaml:"passphrase"`
}

// Enabled reports whether enough is configured to reach a bucket.
func (c Config) Enabled() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

type Store struct {
	client     s3Client
	bucket     string
	prefix     string
	passphrase string
	logger     *slog.Logger
	backoff    func() retry.Backoff
}

// New creates a store for cfg. It returns ErrNotConfigured when the
// bucket or credentials are missing.
func New(cfg Config, logger *slog.Logger) (*Store, error) {
	if !cfg.Enabled() {
		return nil, ErrNotConfigured
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return newStore(s3.New(opts), cfg, logger), nil
}

func newStore(client s3Client, cfg Config, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		client:     client,
		bucket:     cfg.Bucket,
		prefix:     strings.Trim(cfg.Prefix, "/"),
		passphrase: cfg.Passphrase,
		logger:     logger,
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(3, retry.NewExponential(200*time.Millisecond))
		},
	}
}

// Encrypted reports whether documents are encrypted before upload.
func (s *Store) Encrypted() bool {
	return s.passphrase != ""
}

func (s *Store) objectKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

// Put uploads body under key, retrying transient failures.
func (s *Store) Put(ctx context.Context, key string, body []byte, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	meta := map[string]string{metaContentType: contentType}
	if s.Encrypted() {
		sealed, err := Encrypt(body, s.passphrase)
		if err != nil {
			return fmt.Errorf("encrypt document: %w", err)
		}
		body = sealed
		contentType = "application/octet-stream"
		meta[metaEncryption] = encryptionName
	}

	objectKey := s.objectKey(key)
	attempt := 0
	err := retry.Do(ctx, s.backoff(), func(ctx context.Context) error {
		attempt++
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(objectKey),
			Body:          bytes.NewReader(body),
			ContentLength: aws.Int64(int64(len(body))),
			ContentType:   aws.String(contentType),
			Metadata:      meta,
		})
		if err != nil {
			s.logger.Warn("document upload failed", "key", objectKey, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", objectKey, err)
	}
	s.logger.Info("document stored", "key", objectKey, "bytes", len(body), "encrypted", s.Encrypted())
	return nil
}

// Get downloads the document under key and returns it with its original
// content type, decrypting when it was stored encrypted.
func (s *Store) Get(ctx context.Context, key string) ([]byte, string, error) {
	objectKey := s.objectKey(key)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("download %s: %w", objectKey, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", objectKey, err)
	}
	contentType := out.Metadata[metaContentType]
	if contentType == "" {
		contentType = aws.ToString(out.ContentType)
	}
	if out.Metadata[metaEncryption] == encryptionName {
		if !s.Encrypted() {
			return nil, "", fmt.Errorf("%s is encrypted and no passphrase is configured", objectKey)
		}
		if data, err = Decrypt(data, s.passphrase); err != nil {
			return nil, "", err
		}
	}
	return data, contentType, nil
}

// Delete removes the document under key.
func (s *Store) Delete(ctx context.Context, key string) error {
	objectKey := s.objectKey(key)
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	}); err != nil {
		return fmt.Errorf("delete %s: %w", objectKey, err)
	}
	return nil
}
