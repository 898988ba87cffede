package s3client

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/y-scope/logroller/internal/config"
)

// AWS API error codes given a dedicated message.
const (
	invalidCredsCode  = "InvalidClientTokenId"
	bucketMissingCode = "NotFound"
)

// Object metadata keys. S3 stores them as x-amz-meta-* headers.
const (
	metadataInstanceID = "instance-id"
	metadataSourceFile = "source-file"
)

// Client uploads a local file to the object store. It is the only storage operation used by the
// upload scheduler.
type Client interface {
	Upload(ctx context.Context, bucket, key string, file *os.File) error
}

// Uploader is the [Client] backed by the S3 transfer manager. Files smaller than the part size
// are sent with a single PutObject request.
type Uploader struct {
	transfer   *manager.Uploader
	instanceID string
}

// NewUploader wraps an S3 client. Part uploads run one at a time so a single upload never fans
// out into parallel requests.
//
// Parameters:
//   - api: S3 client
//   - cfg: Upload configuration
//
// Returns:
//   - uploader: Client for the scheduler
func NewUploader(api manager.UploadAPIClient, cfg config.Upload) *Uploader {
	transfer := manager.NewUploader(api, func(u *manager.Uploader) {
		u.Concurrency = 1
		if cfg.PartSize > 0 {
			u.PartSize = cfg.PartSize
		}
	})
	return &Uploader{
		transfer:   transfer,
		instanceID: cfg.InstanceID,
	}
}

// Upload sends the full contents of file to bucket under key.
//
// Parameters:
//   - ctx: Cancels the request
//   - bucket: Target bucket
//   - key: Object key
//   - file: Open file positioned at its start
//
// Returns:
//   - err: Error uploading
func (u *Uploader) Upload(ctx context.Context, bucket, key string, file *os.File) error {
	metadata := map[string]string{
		metadataSourceFile: filepath.Base(file.Name()),
	}
	if u.instanceID != "" {
		metadata[metadataInstanceID] = u.instanceID
	}

	_, err := u.transfer.Upload(ctx, &s3.PutObjectInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(key),
		Body:     file,
		Metadata: metadata,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s to s3://%s/%s: %w", file.Name(), bucket, key, err)
	}
	return nil
}

// ValidateBucket verifies that bucket exists and that the configured credentials can reach it.
//
// Parameters:
//   - ctx: Cancels the request
//   - api: S3 client
//   - bucket: Bucket to check
//
// Returns:
//   - err: Descriptive error for invalid credentials, missing bucket, other API errors
func ValidateBucket(ctx context.Context, api s3.HeadBucketAPIClient, bucket string) error {
	_, err := api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err == nil {
		return nil
	}

	// AWS does have some error types that can be checked with [errors.As] such as [s3.NotFound].
	// It is simpler to rely on the [smithy] error code.
	var ae smithy.APIError
	if errors.As(err, &ae) {
		switch code := ae.ErrorCode(); code {
		case invalidCredsCode:
			return fmt.Errorf("aws credentials are invalid: %w", err)
		case bucketMissingCode:
			return fmt.Errorf("bucket %q could not be found: %w", bucket, err)
		default:
			return fmt.Errorf("aws error [%s]: %w", code, err)
		}
	}
	return err
}

// ErrorCode returns the API error code carried by err, or "" if err did not come from the service.
func ErrorCode(err error) string {
	var ae smithy.APIError
	if errors.As(err, &ae) {
		return ae.ErrorCode()
	}
	return ""
}
