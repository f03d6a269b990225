package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"
)

// FolderRecordings is the S3 prefix for recording objects.
const FolderRecordings = "recordings"

// S3Config holds S3 client configuration.
type S3Config struct {
	Region                string
	AccessKeyID           string
	SecretAccessKey       string
	RecordingsBucket      string
	PresignExpireMinutes  int
	SignedLinkExpireHours int
}

// S3 provides recording storage: uploads, public-read ACLs and signed URLs.
type S3 struct {
	client   *s3.Client
	uploader *manager.Uploader
	cfg      S3Config
	logger   *zap.Logger
}

// NewS3 creates an S3 client using credentials from config or .env (AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY).
func NewS3(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3, error) {
	accessKey := cfg.AccessKeyID
	secretKey := cfg.SecretAccessKey
	if accessKey == "" || secretKey == "" {
		accessKey = os.Getenv("AWS_ACCESS_KEY_ID")
		secretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKey, secretKey, "",
		)))
		if logger != nil {
			logger.Info("S3 client using credentials from .env/config", zap.String("region", cfg.Region), zap.String("recordings_bucket", cfg.RecordingsBucket))
		}
	} else if logger != nil {
		logger.Warn("S3 client using default credential chain (AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY not set)")
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 5 * 1024 * 1024 // 5MB parts for streaming
	})
	return &S3{
		client:   client,
		uploader: uploader,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// RecordingKey returns the S3 object key: recordings/{roomKey}/{recordingID}.mp4.
func RecordingKey(roomKey, recordingID string) string {
	return path.Join(FolderRecordings, roomKey, recordingID+".mp4")
}

// Bucket returns the recordings bucket name.
func (s *S3) Bucket() string { return s.cfg.RecordingsBucket }

// Upload streams a reader to the recordings bucket and returns the object URL.
func (s *S3) Upload(ctx context.Context, key, contentType string, body io.Reader, contentLength int64) (string, error) {
	var contentLengthPtr *int64
	if contentLength > 0 {
		contentLengthPtr = &contentLength
	}
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.RecordingsBucket),
		Key:           aws.String(key),
		Body:          body,
		ContentType:   aws.String(contentType),
		ContentLength: contentLengthPtr,
	}
	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	return s.PublicObjectURL(key), nil
}

// MakeObjectPublic sets a public-read ACL on an uploaded object. Fails when
// the bucket policy disallows ACLs; callers fall back to a signed URL.
func (s *S3) MakeObjectPublic(ctx context.Context, key string) error {
	_, err := s.client.PutObjectAcl(ctx, &s3.PutObjectAclInput{
		Bucket: aws.String(s.cfg.RecordingsBucket),
		Key:    aws.String(key),
		ACL:    types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return fmt.Errorf("put object acl: %w", err)
	}
	return nil
}

// PublicObjectURL returns the public URL for an object (no signing; valid once the object is public-read).
func (s *S3) PublicObjectURL(key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.RecordingsBucket, s.cfg.Region, key)
}

// SignedURL returns a pre-signed GET URL for the object.
func (s *S3) SignedURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	presignClient := s3.NewPresignClient(s.client)
	req, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.RecordingsBucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expires
	})
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}
	return req.URL, nil
}

// PresignExpire returns the configured short presign duration (download endpoint).
func (s *S3) PresignExpire() time.Duration {
	if s.cfg.PresignExpireMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(s.cfg.PresignExpireMinutes) * time.Minute
}

// SignedLinkExpire returns the long-lived signed link duration used when
// public-read is denied.
func (s *S3) SignedLinkExpire() time.Duration {
	if s.cfg.SignedLinkExpireHours <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(s.cfg.SignedLinkExpireHours) * time.Hour
}

// DeleteObject removes an object from the recordings bucket.
func (s *S3) DeleteObject(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.RecordingsBucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}
