package cloudinary

import (
	"context"
	"fmt"
	"io"

	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/cloudinary/cloudinary-go/v2/config"
)

// Client stores listing cover images.
type Client interface {
	UploadImage(ctx context.Context, file io.Reader, publicID string) (*UploadResult, error)
	Delete(ctx context.Context, publicID string) error
}

type UploadResult struct {
	URL      string
	PublicID string
}

type coverStore struct {
	folder string
	api    *uploader.API
}

func (s *coverStore) UploadImage(ctx context.Context, file io.Reader, publicID string) (*UploadResult, error) {
	overwrite := false
	res, err := s.api.Upload(ctx, file, uploader.UploadParams{
		Folder:         s.folder,
		PublicID:       publicID,
		Overwrite:      &overwrite,
		AllowedFormats: []string{"jpg", "jpeg", "png", "webp"},
	})
	if err != nil {
		return nil, fmt.Errorf("cloudinary upload %s: %w", publicID, err)
	}
	if res.Error.Message != "" {
		return nil, fmt.Errorf("cloudinary upload %s: %s", publicID, res.Error.Message)
	}
	return &UploadResult{URL: res.SecureURL, PublicID: res.PublicID}, nil
}

func (s *coverStore) Delete(ctx context.Context, publicID string) error {
	res, err := s.api.Destroy(ctx, uploader.DestroyParams{PublicID: publicID})
	if err != nil {
		return fmt.Errorf("cloudinary destroy %s: %w", publicID, err)
	}
	if res.Error.Message != "" {
		return fmt.Errorf("cloudinary destroy %s: %s", publicID, res.Error.Message)
	}
	return nil
}

// NewClientFromParams builds a Client uploading into folder.
func NewClientFromParams(cloudName, apiKey, apiSecret, folder string) (Client, error) {
	cfg, err := config.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, err
	}
	api, err := uploader.NewWithConfiguration(cfg)
	if err != nil {
		return nil, err
	}
	return &coverStore{folder: folder, api: api}, nil
}
