package s3

import (
	"context"
	"errors"
	"net/http"
	"strings"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/koustreak/objectfs/internal/errs"
)

// mapError translates an aws-sdk-go-v2 error into a *errs.Error.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	// Typed S3 errors first
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) || errors.As(err, &noSuchBucket) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return errs.Wrap(errs.ErrKindNotFound, msg, err)
		case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch", "AccessControlListNotSupported":
			return errs.Wrap(errs.ErrKindPermissionDenied, msg, err)
		case "InvalidArgument", "InvalidBucketName", "KeyTooLongError", "BadDigest", "InvalidDigest":
			return errs.Wrap(errs.ErrKindInvalidInput, msg, err)
		case "SlowDown", "Throttling", "RequestLimitExceeded", "RequestTimeout":
			return errs.Wrap(errs.ErrKindTimeout, msg, err)
		}
	}

	// HeadObject/HeadBucket failures carry only a status code
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.HTTPStatusCode() {
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

	if apiErr != nil {
		return errs.Wrap(errs.ErrKindBackendFailed, msg, err)
	}

	// Fallback: the SDK sometimes only surfaces the code in the message
	text := err.Error()
	switch {
	case strings.Contains(text, "NoSuchKey"), strings.Contains(text, "NoSuchBucket"):
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	case strings.Contains(text, "AccessDenied"):
		return errs.Wrap(errs.ErrKindPermissionDenied, msg, err)
	}

	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}
