package minio

import (
	"net/http"

	"github.com/minio/minio-go/v7"

	"github.com/pure-golang/exam-mailer/storage"
)

// toStorageError converts minio errors to storage errors.
func toStorageError(err error, bucket, key string) error {
	if err == nil {
		return nil
	}

	code, message := storage.CodeInternalError, "internal storage error"

	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "NoSuchBucket":
		code, message = storage.CodeBucketNotFound, "bucket not found"
	case resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound:
		code, message = storage.CodeNotFound, "object not found"
	case resp.Code == "AccessDenied" || resp.StatusCode == http.StatusForbidden:
		code, message = storage.CodeAccessDenied, "access denied"
	}

	return &storage.StorageError{
		Code:    code,
		Message: message,
		Err:     err,
		Bucket:  bucket,
		Key:     key,
	}
}
