package database

import (
	"context"
	"errors"
	"time"

	"greenweb/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	greenDomainLookupChunk = 500
	DefaultLatestChecks    = 10
)

// liveGreenDomains limits green domain queries to rows whose provider still
// exists and is not archived.
func liveGreenDomains(db *gorm.DB) *gorm.DB {
	return db.Model(&domain.GreenDomain{}).
		Joins("JOIN providers ON providers.id = green_domains.hosted_by_id").
		Where("providers.archived = ?", false)
}

// GetGreenDomain returns the cached row for url when it is younger than maxAge
// and its provider is live. A zero maxAge disables the age check.
func GetGreenDomain(ctx context.Context, url string, maxAge time.Duration) (*domain.GreenDomain, error) {
	db, err := dbWithContext(ctx)
	if err != nil {
		return nil, err
	}

	query := liveGreenDomains(db).Where("green_domains.url = ?", url)
	if maxAge > 0 {
		query = query.Where("green_domains.modified >= ?", time.Now().UTC().Add(-maxAge))
	}

	var row domain.GreenDomain
	if err := query.First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// GetGreenDomains fetches cached rows for many urls, keyed by url.
func GetGreenDomains(ctx context.Context, urls []string, maxAge time.Duration) (map[string]domain.GreenDomain, error) {
	result := make(map[string]domain.GreenDomain, len(urls))
	if len(urls) == 0 {
		return result, nil
	}

	db, err := dbWithContext(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().UTC().Add(-maxAge)
	for start := 0; start < len(urls); start += greenDomainLookupChunk {
		end := min(start+greenDomainLookupChunk, len(urls))

		query := liveGreenDomains(db).Where("green_domains.url IN ?", urls[start:end])
		if maxAge > 0 {
			query = query.Where("green_domains.modified >= ?", cutoff)
		}

		var rows []domain.GreenDomain
		if err := query.Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, row := range rows {
			result[row.URL] = row
		}
	}
	return result, nil
}

// SaveGreenDomain inserts or refreshes the cached row for row.URL.
func SaveGreenDomain(ctx context.Context, row domain.GreenDomain) error {
	db, err := dbWithContext(ctx)
	if err != nil {
		return err
	}

	if row.Modified.IsZero() {
		row.Modified = time.Now().UTC()
	}
	row.ID = 0

	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "url"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"hosted_by_id", "hosted_by", "hosted_by_website", "partner", "green", "match_type", "match_id", "modified",
		}),
	}).Create(&row).Error
}

// DeleteGreenDomain drops the cached row for url, if any.
func DeleteGreenDomain(ctx context.Context, url string) error {
	db, err := dbWithContext(ctx)
	if err != nil {
		return err
	}
	return db.Where("url = ?", url).Delete(&domain.GreenDomain{}).Error
}

// EachGreenDomain streams every green row to fn in batches ordered by id.
func EachGreenDomain(ctx context.Context, batchSize int, fn func([]domain.GreenDomain) error) error {
	db, err := dbWithContext(ctx)
	if err != nil {
		return err
	}
	if batchSize <= 0 {
		batchSize = greenDomainLookupChunk
	}

	var batch []domain.GreenDomain
	return db.Where("green = ?", true).Order("id ASC").
		FindInBatches(&batch, batchSize, func(tx *gorm.DB, _ int) error {
			return fn(batch)
		}).Error
}

// InsertGreencheck appends one entry to the check log.
func InsertGreencheck(ctx context.Context, check domain.Greencheck) error {
	db, err := dbWithContext(ctx)
	if err != nil {
		return err
	}
	if check.CheckedAt.IsZero() {
		check.CheckedAt = time.Now().UTC()
	}
	check.ID = 0
	return db.Create(&check).Error
}

// LatestGreenchecks returns the most recent log entries, newest first.
func LatestGreenchecks(ctx context.Context, limit int) ([]domain.Greencheck, error) {
	db, err := dbWithContext(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultLatestChecks
	}

	var checks []domain.Greencheck
	if err := db.Order("checked_at DESC").Order("id DESC").Limit(limit).Find(&checks).Error; err != nil {
		return nil, err
	}
	return checks, nil
}

// PruneGreenchecks deletes log entries checked before cutoff and returns the row count.
func PruneGreenchecks(ctx context.Context, cutoff time.Time) (int64, error) {
	db, err := dbWithContext(ctx)
	if err != nil {
		return 0, err
	}
	res := db.Where("checked_at < ?", cutoff).Delete(&domain.Greencheck{})
	return res.RowsAffected, res.Error
}

// PruneGreenDomains deletes cached rows last modified before cutoff.
func PruneGreenDomains(ctx context.Context, cutoff time.Time) (int64, error) {
	db, err := dbWithContext(ctx)
	if err != nil {
		return 0, err
	}
	res := db.Where("modified < ?", cutoff).Delete(&domain.GreenDomain{})
	return res.RowsAffected, res.Error
}
