package aws

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// PresignAPI is the part of the S3 presign client used here.
type PresignAPI interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// PresignedUpload describes where a client should PUT an image and the URL
// it will be served from afterwards.
type PresignedUpload struct {
	UploadURL string            `json:"upload_url"`
	Method    string            `json:"method"`
	Key       string            `json:"key"`
	ImageURL  string            `json:"image_url"`
	Headers   map[string]string `json:"headers,omitempty"`
	ExpiresIn int64             `json:"expires_in"`
}

// ImagePresigner issues presigned PUT URLs for product images.
type ImagePresigner struct {
	presigner     PresignAPI
	bucket        string
	prefix        string
	publicBaseURL string
}

// NewImagePresigner creates a presigner for bucket. Keys are placed under
// prefix; publicBaseURL overrides the default virtual-hosted S3 URL.
func NewImagePresigner(cfg sdkaws.Config, bucket, prefix, publicBaseURL string) *ImagePresigner {
	return NewImagePresignerWithAPI(s3.NewPresignClient(s3.NewFromConfig(cfg)), bucket, prefix, publicBaseURL)
}

// NewImagePresignerWithAPI is NewImagePresigner with an explicit presign client.
func NewImagePresignerWithAPI(presigner PresignAPI, bucket, prefix, publicBaseURL string) *ImagePresigner {
	return &ImagePresigner{
		presigner:     presigner,
		bucket:        bucket,
		prefix:        prefix,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

// PresignImageUpload generates a presigned PUT for a new, uniquely named object.
func (p *ImagePresigner) PresignImageUpload(ctx context.Context, filename, contentType string, expires time.Duration) (*PresignedUpload, error) {
	key := fmt.Sprintf("%sproduct_img_%s%s", p.prefix, uuid.New().String(), strings.ToLower(filepath.Ext(filename)))

	input := &s3.PutObjectInput{
		Bucket:      sdkaws.String(p.bucket),
		Key:         sdkaws.String(key),
		ContentType: sdkaws.String(contentType),
	}

	presigned, err := p.presigner.PresignPutObject(ctx, input, func(o *s3.PresignOptions) {
		o.Expires = expires
	})
	if err != nil {
		return nil, fmt.Errorf("failed to presign put object: %w", err)
	}

	headers := make(map[string]string)
	for k, v := range presigned.SignedHeader {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}

	return &PresignedUpload{
		UploadURL: presigned.URL,
		Method:    presigned.Method,
		Key:       key,
		ImageURL:  p.publicURL(key),
		Headers:   headers,
		ExpiresIn: int64(expires.Seconds()),
	}, nil
}

func (p *ImagePresigner) publicURL(key string) string {
	if p.publicBaseURL != "" {
		return p.publicBaseURL + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", p.bucket, key)
}
