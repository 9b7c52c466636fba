package minio

import (
	"context"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pure-golang/exam-mailer/storage"
)

var _ storage.Storage = (*Storage)(nil)

var tracer = otel.Tracer("github.com/pure-golang/exam-mailer/storage/minio")

// objectAPI is the part of minio.Client the storage uses.
type objectAPI interface {
	GetObject(ctx context.Context, bucket, key string, opts minio.GetObjectOptions) (*minio.Object, error)
	StatObject(ctx context.Context, bucket, key string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
}

// Storage implements storage.Storage for S3-compatible storage.
type Storage struct {
	client *Client
	api    objectAPI
	logger *slog.Logger
}

// StorageOptions contains options for Storage creation.
type StorageOptions struct {
	Logger *slog.Logger
}

// NewStorage creates a new S3 Storage instance.
func NewStorage(client *Client, opts *StorageOptions) *Storage {
	if opts == nil {
		opts = &StorageOptions{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Storage{
		client: client,
		logger: opts.Logger.WithGroup("storage").With("backend", "s3"),
	}
	if client != nil && client.client != nil {
		s.api = client.client
	}
	return s
}

func (s *Storage) getAPI() (objectAPI, error) {
	if s.api == nil {
		return nil, &storage.StorageError{
			Code:    storage.CodeInternalError,
			Message: "minio client is not initialized",
		}
	}
	return s.api, nil
}

// Get retrieves an object. The caller closes the reader.
func (s *Storage) Get(ctx context.Context, bucket, key string) (io.ReadCloser, *storage.ObjectInfo, error) {
	ctx, span := tracer.Start(ctx, "S3.Get", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("bucket", bucket),
		attribute.String("key", key),
	)

	api, err := s.getAPI()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, err
	}

	obj, err := api.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, toStorageError(err, bucket, key)
	}

	// GetObject is lazy; Stat surfaces a missing key.
	stat, err := obj.Stat()
	if err != nil {
		if closeErr := obj.Close(); closeErr != nil {
			s.logger.With("error", closeErr).Error("failed to close object after stat error")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, toStorageError(err, bucket, key)
	}

	span.SetAttributes(attribute.Int64("size", stat.Size))
	span.SetStatus(codes.Ok, "")

	return obj, &storage.ObjectInfo{
		Key:          key,
		Size:         stat.Size,
		LastModified: stat.LastModified,
		ETag:         stat.ETag,
		ContentType:  stat.ContentType,
	}, nil
}

// Exists checks if an object exists. A missing object is not an error.
func (s *Storage) Exists(ctx context.Context, bucket, key string) (bool, error) {
	ctx, span := tracer.Start(ctx, "S3.Exists", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("bucket", bucket),
		attribute.String("key", key),
	)

	api, err := s.getAPI()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}

	if _, err := api.StatObject(ctx, bucket, key, minio.StatObjectOptions{}); err != nil {
		serr := toStorageError(err, bucket, key)
		if storage.IsNotFound(serr) {
			span.SetStatus(codes.Ok, "")
			return false, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, serr
	}

	span.SetStatus(codes.Ok, "")
	return true, nil
}

// Close closes the underlying client.
func (s *Storage) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
