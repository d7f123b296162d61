// Package blob stores note attachments in S3-compatible object storage.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// DefaultUploadTimeout is the ceiling on a single upload when Config leaves it unset.
const DefaultUploadTimeout = 2 * time.Minute

var (
	ErrNotConfigured = errors.New("attachment storage not configured")
	ErrUploadTimeout = errors.New("upload timed out")
)

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Config holds S3-compatible storage configuration.
type Config struct {
	Endpoint      string
	Bucket        string
	Region        string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
	UploadTimeout time.Duration
}

// Enabled reports whether enough is set to talk to a bucket.
func (c Config) Enabled() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

// Object is one upload.
type Object struct {
	Path        string
	Body        io.Reader
	Size        int64
	ContentType string
	Metadata    map[string]string
}

// ProgressFunc receives the bytes sent so far and the total size.
type ProgressFunc func(sent, total int64)

type Store struct {
	mu     sync.RWMutex
	cfg    Config
	client s3Client
	logger *slog.Logger
}

// New returns a Store. When cfg is incomplete every operation returns
// ErrNotConfigured.
func New(cfg Config, logger *slog.Logger) *Store {
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = DefaultUploadTimeout
	}
	s := &Store{cfg: cfg, logger: logger}
	if cfg.Enabled() {
		s.client = newS3Client(cfg)
	}
	return s
}

func newS3Client(cfg Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Enabled reports whether uploads can be served.
func (s *Store) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client != nil
}

func (s *Store) snapshot() (s3Client, Config) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client, s.cfg
}

// URL returns the stable retrieval URL for path.
func (s *Store) URL(path string) string {
	_, cfg := s.snapshot()
	return objectURL(cfg, path)
}

func objectURL(cfg Config, path string) string {
	escaped := escapePath(path)
	if cfg.PublicBaseURL != "" {
		return strings.TrimRight(cfg.PublicBaseURL, "/") + "/" + escaped
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		region := cfg.Region
		if region == "" {
			region = "us-east-1"
		}
		endpoint = "https://s3." + region + ".amazonaws.com"
	}
	return strings.TrimRight(endpoint, "/") + "/" + cfg.Bucket + "/" + escaped
}

func escapePath(path string) string {
	parts := strings.Split(path, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// Upload streams obj to the bucket and returns its URL. The transfer is
// cancelled when ctx ends or the upload timeout elapses; on any failure the
// object is deleted best-effort so no partial upload is left behind.
func (s *Store) Upload(ctx context.Context, obj Object, progress ProgressFunc) (string, error) {
	client, cfg := s.snapshot()
	if client == nil {
		return "", ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.UploadTimeout)
	defer cancel()

	body := &progressReader{r: obj.Body, total: obj.Size, fn: progress}
	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(cfg.Bucket),
		Key:           aws.String(obj.Path),
		Body:          body,
		ContentLength: aws.Int64(obj.Size),
		ContentType:   aws.String(obj.ContentType),
		Metadata:      obj.Metadata,
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s: %w", ErrUploadTimeout, cfg.UploadTimeout, err)
		}
		s.cleanup(client, cfg.Bucket, obj.Path)
		return "", fmt.Errorf("upload %s: %w", obj.Path, err)
	}

	return objectURL(cfg, obj.Path), nil
}

// cleanup removes a possibly partial object with its own short deadline,
// since the upload context may already be done.
func (s *Store) cleanup(client s3Client, bucket, path string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(path),
	}); err != nil {
		s.logger.Warn("delete partial upload", "path", path, "error", err)
	}
}

// Delete removes the object at path.
func (s *Store) Delete(ctx context.Context, path string) error {
	client, cfg := s.snapshot()
	if client == nil {
		return ErrNotConfigured
	}
	if _, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(cfg.Bucket),
		Key:    aws.String(path),
	}); err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

// progressReader reports cumulative bytes read.
type progressReader struct {
	r     io.Reader
	total int64
	sent  int64
	fn    ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		if p.fn != nil {
			p.fn(p.sent, p.total)
		}
	}
	return n, err
}

// Seek lets the SDK rewind the body for signing and retries when the
// underlying reader supports it.
func (p *progressReader) Seek(offset int64, whence int) (int64, error) {
	seeker, ok := p.r.(io.Seeker)
	if !ok {
		return 0, errors.New("body is not seekable")
	}
	pos, err := seeker.Seek(offset, whence)
	if err == nil {
		p.sent = pos
	}
	return pos, err
}
