package di

import (
	"context"

	"github.com/Rushan-dev/jeyani-gift-shop/internal/platform/storage"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/services"
)

type objectStore interface {
	Upload(ctx context.Context, object storage.Object) (string, error)
}

// StorageUploads exposes a Cloud Storage uploader through the services upload contract.
func StorageUploads(store objectStore) services.ObjectUploader {
	if store == nil {
		return nil
	}
	return storageUploads{store: store}
}

type storageUploads struct {
	store objectStore
}

func (u storageUploads) Upload(ctx context.Context, object services.UploadObject) (string, error) {
	return u.store.Upload(ctx, storage.Object{
		Purpose:  storage.AssetPurpose(object.Kind),
		OwnerID:  object.OwnerID,
		FileName: object.FileName,
		Size:     object.Size,
		Body:     object.Body,
	})
}
