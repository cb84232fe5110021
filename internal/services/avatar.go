package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"together-backend/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const uploadURLExpiry = 5 * time.Minute

var avatarExtensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
	"image/heic": "heic",
}

// Presigner issues pre-signed S3 PUT requests
type Presigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// AvatarService hands out upload URLs for profile pictures
type AvatarService struct {
	users     UserStore
	presigner Presigner
	bucket    string
	publicURL string
	now       func() time.Time
}

// NewAvatarService creates an avatar service backed by S3
func NewAvatarService(ctx context.Context, users UserStore, cfg config.AWSConfig) (*AvatarService, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	publicURL := cfg.PublicURL
	if publicURL == "" {
		publicURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.S3Bucket, cfg.Region)
	}
	return NewAvatarServiceWithPresigner(users, s3.NewPresignClient(client), cfg.S3Bucket, publicURL), nil
}

// NewAvatarServiceWithPresigner creates an avatar service around any presigner
func NewAvatarServiceWithPresigner(users UserStore, presigner Presigner, bucket, publicURL string) *AvatarService {
	return &AvatarService{
		users:     users,
		presigner: presigner,
		bucket:    bucket,
		publicURL: strings.TrimRight(publicURL, "/"),
		now:       time.Now,
	}
}

// UploadResponse carries the pre-signed URL and the resulting avatar URL
type UploadResponse struct {
	UploadURL string `json:"upload_url"`
	AvatarURL string `json:"avatar_url"`
	ExpiresIn int    `json:"expires_in"`
}

// RequestUpload presigns a PUT for a new avatar and points the profile at it
func (s *AvatarService) RequestUpload(ctx context.Context, userID, contentType string) (*UploadResponse, error) {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	ext, ok := avatarExtensions[contentType]
	if !ok {
		return nil, invalid("content_type must be one of image/jpeg, image/png, image/webp, image/heic")
	}
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, notFound(err, "user")
	}

	key := fmt.Sprintf("avatars/%s/%s.%s", userID, uuid.New().String(), ext)
	request, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = uploadURLExpiry
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate pre-signed URL: %w", err)
	}

	avatarURL := s.publicURL + "/" + key
	if err := s.users.UpdateAvatarURL(ctx, userID, avatarURL, s.now().UTC()); err != nil {
		return nil, notFound(err, "user")
	}

	log.Info().Str("user_id", userID).Str("key", key).Msg("Avatar upload URL issued")
	return &UploadResponse{
		UploadURL: request.URL,
		AvatarURL: avatarURL,
		ExpiresIn: int(uploadURLExpiry.Seconds()),
	}, nil
}
