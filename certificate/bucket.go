package certificate

import (
	"context"
	"io"
	"path"

	"github.com/pkg/errors"

	"github.com/pure-golang/exam-mailer/storage"
)

var _ Source = (*Bucket)(nil)

// Bucket keeps certificates as objects under a common key prefix.
type Bucket struct {
	storage storage.Storage
	bucket  string
	prefix  string
}

func NewBucket(s storage.Storage, bucket, prefix string) *Bucket {
	return &Bucket{storage: s, bucket: bucket, prefix: prefix}
}

func (b *Bucket) key(name string) string {
	return path.Join(b.prefix, name)
}

func (b *Bucket) Stat(ctx context.Context, name string) (Certificate, error) {
	key := b.key(name)
	location := "s3://" + b.bucket + "/" + key

	ok, err := b.storage.Exists(ctx, b.bucket, key)
	if err != nil {
		return Certificate{}, errors.Wrapf(err, "failed to check %s", location)
	}
	if !ok {
		return Certificate{}, errors.Wrap(ErrNotFound, location)
	}

	return Certificate{Name: name, Path: location, source: b}, nil
}

func (b *Bucket) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	rc, _, err := b.storage.Get(ctx, b.bucket, b.key(name))
	if storage.IsNotFound(err) {
		return nil, errors.Wrap(ErrNotFound, name)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get certificate")
	}
	return rc, nil
}
