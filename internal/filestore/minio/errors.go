package minio

import (
	"context"
	"errors"
	"net/http"

	"github.com/koustreak/objectfs/internal/errs"
	miniogo "github.com/minio/minio-go/v7"
)

// mapError translates a MinIO SDK error into a *errs.Error.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	// Context cancellation / deadline
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	// MinIO SDK exposes a typed ErrorResponse for S3-protocol errors
	var resp miniogo.ErrorResponse
	if errors.As(err, &resp) {
		// S3 error codes take precedence over the status code
		switch resp.Code {
		case "NoSuchBucket", "NoSuchKey", "NoSuchUpload", "NotFound":
			return errs.Wrap(errs.ErrKindNotFound, msg, err)
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "AllAccessDisabled":
			return errs.Wrap(errs.ErrKindPermissionDenied, msg, err)
		case "InvalidBucketName", "InvalidObjectName", "KeyTooLongError", "InvalidArgument", "BadDigest", "InvalidDigest":
			return errs.Wrap(errs.ErrKindInvalidInput, msg, err)
		case "RequestTimeout", "SlowDown":
			return errs.Wrap(errs.ErrKindTimeout, msg, err)
		}

		switch resp.StatusCode {
		case http.StatusNotFound:
			return errs.Wrap(errs.ErrKindNotFound, msg, err)
		case http.StatusForbidden, http.StatusUnauthorized:
			return errs.Wrap(errs.ErrKindPermissionDenied, msg, err)
		case http.StatusBadRequest:
			return errs.Wrap(errs.ErrKindInvalidInput, msg, err)
		case http.StatusTooManyRequests, http.StatusServiceUnavailable:
			return errs.Wrap(errs.ErrKindTimeout, msg, err)
		}

		return errs.Wrap(errs.ErrKindBackendFailed, msg, err)
	}

	// Anything else is a connection or I/O failure
	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}
