package storage

import (
	"context"
	"io"
	"path"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/pkg/errors"
)

// CloudinaryStore uploads to Cloudinary. Returned keys have the form
// "<resource_type>:<public_id>" because deletes need the resource type.
type CloudinaryStore struct {
	cld    *cloudinary.Cloudinary
	folder string
}

// NewCloudinaryStore uses cloudinaryURL when set, otherwise the three
// credentials.
func NewCloudinaryStore(cloudinaryURL, cloudName, apiKey, apiSecret, folder string) (*CloudinaryStore, error) {
	var (
		cld *cloudinary.Cloudinary
		err error
	)
	if cloudinaryURL != "" {
		cld, err = cloudinary.NewFromURL(cloudinaryURL)
	} else {
		cld, err = cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	}
	if err != nil {
		return nil, errors.Wrap(err, "configure cloudinary")
	}
	return &CloudinaryStore{cld: cld, folder: strings.Trim(folder, "/")}, nil
}

func (s *CloudinaryStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (*Object, error) {
	publicID := strings.TrimSuffix(key, path.Ext(key))
	if s.folder != "" {
		publicID = s.folder + "/" + publicID
	}

	resp, err := s.cld.Upload.Upload(ctx, r, uploader.UploadParams{
		PublicID:     publicID,
		ResourceType: "auto",
	})
	if err != nil {
		return nil, errors.Wrap(err, "cloudinary upload")
	}
	if resp.Error.Message != "" {
		return nil, errors.Errorf("cloudinary upload: %s", resp.Error.Message)
	}

	return &Object{
		Key:  resp.ResourceType + ":" + resp.PublicID,
		URL:  resp.SecureURL,
		Size: int64(resp.Bytes),
	}, nil
}

func (s *CloudinaryStore) Delete(ctx context.Context, key string) error {
	resourceType, publicID, ok := strings.Cut(key, ":")
	if !ok {
		return errors.Errorf("storage: invalid cloudinary key %q", key)
	}

	resp, err := s.cld.Upload.Destroy(ctx, uploader.DestroyParams{
		PublicID:     publicID,
		ResourceType: resourceType,
	})
	if err != nil {
		return errors.Wrap(err, "cloudinary destroy")
	}
	if resp.Error.Message != "" {
		return errors.Errorf("cloudinary destroy: %s", resp.Error.Message)
	}
	if resp.Result == "not found" {
		return ErrNotFound
	}
	return nil
}
