package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/caio-sobreiro/dicomarc/errors"
	"github.com/caio-sobreiro/dicomarc/interfaces"
)

// MinioConfig locates a bucket of an S3 compatible object store.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
	Bucket    string
	// Prefix is prepended to every location.
	Prefix string
}

// Minio opens objects of one bucket. Reads are ranged requests, so only the
// parts of an object that are written out are transferred.
type Minio struct {
	client *minio.Client
	bucket string
	prefix string
	logger *slog.Logger
}

// NewMinio creates a reader over the bucket of cfg.
func NewMinio(cfg MinioConfig, logger *slog.Logger) (*Minio, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.NewStorageError("connect "+cfg.Endpoint, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Minio{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix, logger: logger}, nil
}

// Open implements interfaces.StorageReader.
func (s *Minio) Open(ctx context.Context, location string) (interfaces.StoredObject, error) {
	name := path.Join(s.prefix, location)
	obj, err := s.client.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.NewStorageError("get "+name, err)
	}
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: %s", errors.ErrObjectNotFound, location)
		}
		return nil, errors.NewStorageError("stat "+name, err)
	}
	s.logger.DebugContext(ctx, "Opened stored object",
		"bucket", s.bucket,
		"object", name,
		"size", info.Size)
	return &object{Object: obj, size: info.Size}, nil
}

type object struct {
	*minio.Object
	size int64
}

func (o *object) Size() int64 {
	return o.size
}
