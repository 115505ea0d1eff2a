package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/bryanwahyu/automaton-risk/internal/domain/risk"
)

// MinioStore keeps bundles in an S3-compatible bucket under Prefix.
type MinioStore struct {
	client     *minio.Client
	bucketName string
	prefix     string
	Logger     *slog.Logger
}

type MinioConfig struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Prefix    string
}

// NewMinioStore buat koneksi MinIO, bucket dibuat kalau belum ada.
func NewMinioStore(ctx context.Context, cfg MinioConfig) (*MinioStore, error) {
	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, err
	}

	// pastikan bucket ada
	exists, err := cli.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}
	return &MinioStore{client: cli, bucketName: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *MinioStore) key(parts ...string) string {
	return strings.TrimPrefix(path.Join(append([]string{s.prefix}, parts...)...), "/")
}

// SaveAll uploads every artifact under a new run prefix, then rewrites the
// current pointer object. Objects of a failed run are removed.
func (s *MinioStore) SaveAll(ctx context.Context, artifacts []risk.Artifact) error {
	run := uuid.NewString()
	written := make([]string, 0, len(artifacts))
	fail := func(err error) error {
		for _, k := range written {
			if rmErr := s.client.RemoveObject(context.WithoutCancel(ctx), s.bucketName, k, minio.RemoveObjectOptions{}); rmErr != nil {
				s.logger().Warn("remove partial artifact", "key", k, "error", rmErr)
			}
		}
		return err
	}

	for _, a := range artifacts {
		if err := validName(a.Name); err != nil {
			return fail(err)
		}
		k := s.key(run, a.Name)
		if err := s.put(ctx, k, a.Data, contentType(a.Name)); err != nil {
			return fail(fmt.Errorf("upload %s: %w", a.Name, err))
		}
		written = append(written, k)
	}

	previous, _ := s.current(ctx)
	if err := s.put(ctx, s.key(currentPointer), []byte(run), "text/plain"); err != nil {
		return fail(fmt.Errorf("switch current bundle: %w", err))
	}
	if previous != "" && previous != run {
		s.removeRun(ctx, previous)
	}
	return nil
}

// Load reads one artifact of the current bundle.
func (s *MinioStore) Load(ctx context.Context, name string) ([]byte, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	run, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	b, err := s.get(ctx, s.key(run, name))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return b, nil
}

// Version returns the run prefix of the current pointer object.
func (s *MinioStore) Version(ctx context.Context) (string, error) {
	return s.current(ctx)
}

func (s *MinioStore) current(ctx context.Context) (string, error) {
	b, err := s.get(ctx, s.key(currentPointer))
	if err != nil {
		return "", err
	}
	run := strings.TrimSpace(string(b))
	if run == "" {
		return "", risk.ErrArtifactNotFound
	}
	return run, nil
}

func (s *MinioStore) put(ctx context.Context, key string, data []byte, ct string) error {
	_, err := s.client.PutObject(ctx, s.bucketName, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: ct})
	return err
}

func (s *MinioStore) get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, notFound(err)
	}
	defer obj.Close()
	b, err := io.ReadAll(obj)
	if err != nil {
		return nil, notFound(err)
	}
	return b, nil
}

func (s *MinioStore) removeRun(ctx context.Context, run string) {
	objects := s.client.ListObjects(ctx, s.bucketName, minio.ListObjectsOptions{Prefix: s.key(run) + "/", Recursive: true})
	for obj := range objects {
		if obj.Err != nil {
			s.logger().Warn("list old bundle", "run", run, "error", obj.Err)
			return
		}
		if err := s.client.RemoveObject(ctx, s.bucketName, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			s.logger().Warn("remove old artifact", "key", obj.Key, "error", err)
		}
	}
}

func (s *MinioStore) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func notFound(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return risk.ErrArtifactNotFound
	}
	return err
}

// mimeType sederhana
func contentType(name string) string {
	if path.Ext(name) == ".json" {
		return "application/json"
	}
	return "application/octet-stream"
}
