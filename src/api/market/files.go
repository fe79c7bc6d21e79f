package market

import (
	"context"
	"strings"

	"gorm.io/gorm/clause"

	"github.com/stake-plus/escrow-market/src/api/storage"
	"github.com/stake-plus/escrow-market/src/api/types"
)

// RecordFile indexes an uploaded object. Re-uploads of the same content
// keep the first uploader.
func (s *Service) RecordFile(ctx context.Context, uploaderID uint64, backend string, obj storage.Object) (*types.StoredFile, error) {
	f := &types.StoredFile{
		CID:         obj.CID,
		Name:        obj.Name,
		ContentType: obj.ContentType,
		Size:        obj.Size,
		UploaderID:  uploaderID,
		Backend:     backend,
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(f).Error; err != nil {
		return nil, err
	}
	return f, nil
}

// UpdateAvatar stores the avatar CID after checking the object exists.
func (s *Service) UpdateAvatar(ctx context.Context, store storage.Store, userID uint64, cid string) (*types.User, error) {
	if !storage.ValidCID(cid) {
		return nil, invalid("invalid content id")
	}
	obj, err := store.Stat(ctx, cid)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(obj.ContentType, "image/") {
		return nil, invalid("avatar must be an image")
	}
	if err := s.SetAvatar(ctx, userID, cid); err != nil {
		return nil, err
	}
	return s.user(ctx, userID)
}
