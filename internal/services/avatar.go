package services

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

const avatarURLExpiry = 5 * time.Minute

// S3Config locates the bucket profile pictures are uploaded to
type S3Config struct {
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	Endpoint  string
}

type putPresigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// AvatarService hands out pre-signed upload URLs for profile pictures
type AvatarService struct {
	users     UserStore
	presigner putPresigner
	bucket    string
}

// AvatarUpload is where and until when the client may upload its picture
type AvatarUpload struct {
	UploadURL string `json:"uploadUrl"`
	Key       string `json:"key"`
	ExpiresIn int    `json:"expiresIn"`
}

// NewAvatarService creates a new avatar service
func NewAvatarService(ctx context.Context, users UserStore, cfg S3Config) (*AvatarService, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &AvatarService{
		users:     users,
		presigner: s3.NewPresignClient(s3Client),
		bucket:    cfg.Bucket,
	}, nil
}

// PresignUpload reserves a new picture key for the user and returns a PUT URL for it
func (s *AvatarService) PresignUpload(ctx context.Context, userID string) (*AvatarUpload, error) {
	key := fmt.Sprintf("avatars/%s/%s.jpg", userID, uuid.New().String())

	request, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String("image/jpeg"),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = avatarURLExpiry
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate pre-signed URL: %w", err)
	}

	if err := s.users.SetProfilePicture(ctx, userID, key); err != nil {
		return nil, fmt.Errorf("failed to store profile picture key: %w", err)
	}

	return &AvatarUpload{
		UploadURL: request.URL,
		Key:       key,
		ExpiresIn: int(avatarURLExpiry.Seconds()),
	}, nil
}
