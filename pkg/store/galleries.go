package store

import (
	"encoding/json"
	"fmt"

	"capsuled/pkg/faults"
	"capsuled/pkg/logger"
	"capsuled/pkg/models"
)

// SaveGallery persists the gallery record and its capsule index.
func SaveGallery(g *models.Gallery) error {
	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("failed to marshal gallery: %w", err)
	}
	sets := map[string][]byte{
		GalleryKey(g.ID):                    data,
		CapsuleGalleryIdx(g.Capsule, g.ID): []byte{},
	}
	if err := applyBatch(sets); err != nil {
		logger.Error("save_gallery_failed", "gallery", g.ID, "error", err)
		return err
	}
	logger.Debug("gallery_saved", "gallery", g.ID, "capsule", g.Capsule)
	return nil
}

// GetGallery loads one gallery by id.
func GetGallery(id string) (*models.Gallery, error) {
	v, err := getRaw(GalleryKey(id))
	if err != nil {
		if faults.Is(err, faults.KindNotFound) {
			return nil, faults.NotFound("gallery %s", id)
		}
		return nil, err
	}
	var g models.Gallery
	if err := json.Unmarshal(v, &g); err != nil {
		return nil, fmt.Errorf("invalid gallery record %s: %w", id, err)
	}
	return &g, nil
}

// DeleteGallery removes the gallery record and its capsule index.
func DeleteGallery(g *models.Gallery) error {
	sets := map[string][]byte{
		GalleryKey(g.ID):                   nil,
		CapsuleGalleryIdx(g.Capsule, g.ID): nil,
	}
	if err := applyBatch(sets); err != nil {
		logger.Error("delete_gallery_failed", "gallery", g.ID, "error", err)
		return err
	}
	logger.Info("gallery_deleted", "gallery", g.ID, "capsule", g.Capsule)
	return nil
}

// ListGalleries returns every gallery in a capsule.
func ListGalleries(capsuleID string) ([]*models.Gallery, error) {
	prefix := fmt.Sprintf("cap:%s:gal:", capsuleID)
	var ids []string
	err := scanPrefix(prefix, func(k string, _ []byte) bool {
		ids = append(ids, k[len(prefix):])
		return true
	})
	if err != nil {
		return nil, err
	}
	out := make([]*models.Gallery, 0, len(ids))
	for _, id := range ids {
		g, err := GetGallery(id)
		if err != nil {
			if faults.Is(err, faults.KindNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}
