package controllers

import (
	"context"
	"net/http"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"storefront-service/apperrors"
	awspkg "storefront-service/pkg/aws"

	"github.com/gin-gonic/gin"
)

const (
	defaultPresignExpiry = 15 * time.Minute
	maxPresignExpiry     = time.Hour
)

var allowedImageTypes = map[string][]string{
	"image/jpeg": {".jpg", ".jpeg"},
	"image/png":  {".png"},
	"image/webp": {".webp"},
	"image/gif":  {".gif"},
}

// ImagePresigner is satisfied by awspkg.ImagePresigner.
type ImagePresigner interface {
	PresignImageUpload(ctx context.Context, filename, contentType string, expires time.Duration) (*awspkg.PresignedUpload, error)
}

type presignRequest struct {
	Filename    string `json:"filename" binding:"required"`
	ContentType string `json:"content_type" binding:"required"`
	ExpiresIn   int64  `json:"expires_in"`
}

// UploadController issues direct-to-S3 upload URLs for product images.
type UploadController struct {
	presigner ImagePresigner
}

// NewUploadController accepts a nil presigner, in which case uploads report 503.
func NewUploadController(presigner ImagePresigner) *UploadController {
	return &UploadController{presigner: presigner}
}

// PresignImage handles POST /api/uploads/presign (admin only).
func (uc *UploadController) PresignImage(c *gin.Context) {
	if uc.presigner == nil {
		c.JSON(apperrors.ErrServiceUnavailable.Code, gin.H{"error": "Image uploads are not configured"})
		return
	}

	var req presignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	contentType := strings.ToLower(strings.TrimSpace(req.ContentType))
	exts, ok := allowedImageTypes[contentType]
	if !ok {
		_ = c.Error(apperrors.Wrap(apperrors.ErrValidation, "unsupported content type %q", req.ContentType))
		return
	}
	ext := strings.ToLower(filepath.Ext(req.Filename))
	if !slices.Contains(exts, ext) {
		_ = c.Error(apperrors.Wrap(apperrors.ErrValidation, "file extension %q does not match %s", ext, contentType))
		return
	}

	expires := defaultPresignExpiry
	if req.ExpiresIn > 0 {
		expires = time.Duration(req.ExpiresIn) * time.Second
		if expires > maxPresignExpiry {
			expires = maxPresignExpiry
		}
	}

	upload, err := uc.presigner.PresignImageUpload(c.Request.Context(), req.Filename, contentType, expires)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, upload)
}
