package database

import (
	"context"
	"errors"

	"greenweb/internal/domain"

	"gorm.io/gorm"
)

var ErrProviderNotFound = errors.New("provider not found")

func dbWithContext(ctx context.Context) (*gorm.DB, error) {
	if DB == nil {
		return nil, errNotInitialised
	}
	if ctx == nil {
		return DB, nil
	}
	return DB.WithContext(ctx), nil
}

// GetProviderByID loads a provider without its documents.
func GetProviderByID(ctx context.Context, id uint64) (*domain.Provider, error) {
	db, err := dbWithContext(ctx)
	if err != nil {
		return nil, err
	}

	var provider domain.Provider
	if err := db.First(&provider, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}
	return &provider, nil
}

// GetProviderDetail loads a provider together with its public supporting documents.
func GetProviderDetail(ctx context.Context, id uint64) (*domain.Provider, error) {
	db, err := dbWithContext(ctx)
	if err != nil {
		return nil, err
	}

	var provider domain.Provider
	err = db.
		Preload("Documents", func(tx *gorm.DB) *gorm.DB {
			return tx.Where("public = ?", true).Order("valid_from DESC, id ASC")
		}).
		Where("archived = ?", false).
		First(&provider, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}
	return &provider, nil
}

// ProviderExists reports whether a provider with the given id is stored.
func ProviderExists(ctx context.Context, id uint64) (bool, error) {
	db, err := dbWithContext(ctx)
	if err != nil {
		return false, err
	}

	var count int64
	if err := db.Model(&domain.Provider{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListDirectoryProviders returns every provider visible in the public directory,
// partners first, then alphabetically.
func ListDirectoryProviders(ctx context.Context) ([]domain.Provider, error) {
	db, err := dbWithContext(ctx)
	if err != nil {
		return nil, err
	}

	var providers []domain.Provider
	err = db.
		Where("show_on_website = ? AND archived = ?", true, false).
		Order("CASE WHEN partner IN ('', 'None') THEN 1 ELSE 0 END ASC").
		Order("name ASC").
		Find(&providers).Error
	if err != nil {
		return nil, err
	}
	return providers, nil
}

// GetProvidersByIDs loads the given providers keyed by id. Unknown ids are absent from the map.
func GetProvidersByIDs(ctx context.Context, ids []uint64) (map[uint64]domain.Provider, error) {
	result := make(map[uint64]domain.Provider, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	db, err := dbWithContext(ctx)
	if err != nil {
		return nil, err
	}

	var providers []domain.Provider
	if err := db.Where("id IN ?", uniqueIDs(ids)).Find(&providers).Error; err != nil {
		return nil, err
	}
	for _, provider := range providers {
		result[provider.ID] = provider
	}
	return result, nil
}

func uniqueIDs(ids []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
