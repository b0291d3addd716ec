package database

import (
	"context"
	"errors"
	"net/netip"
	"time"

	"greenweb/internal/domain"

	"github.com/charmbracelet/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const networkInsertBatchSize = 500

// NetworkUpsertResult counts what an import created and what it refreshed.
type NetworkUpsertResult struct {
	CreatedIPv4 int
	UpdatedIPv4 int
	CreatedIPv6 int
	UpdatedIPv6 int
	CreatedASNs int
	UpdatedASNs int
	// SkippedASNs are numbers already owned by another provider.
	SkippedASNs int
}

// Created is the number of new rows across ranges and ASNs.
func (r NetworkUpsertResult) Created() int {
	return r.CreatedIPv4 + r.CreatedIPv6 + r.CreatedASNs
}

// Updated is the number of refreshed rows across ranges and ASNs.
func (r NetworkUpsertResult) Updated() int {
	return r.UpdatedIPv4 + r.UpdatedIPv6 + r.UpdatedASNs
}

// UpsertProviderNetworks stores ranges and ASNs for a provider in one transaction.
// Existing rows are re-activated; nothing is written when the provider is missing.
func UpsertProviderNetworks(ctx context.Context, providerID uint64, ranges []domain.IPRange, asns []uint32) (NetworkUpsertResult, error) {
	var result NetworkUpsertResult

	db, err := dbWithContext(ctx)
	if err != nil {
		return result, err
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&domain.Provider{}).Where("id = ?", providerID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrProviderNotFound
		}

		if err := upsertIPRanges(tx, providerID, ranges, &result); err != nil {
			return err
		}
		return upsertASNs(tx, providerID, asns, &result)
	})
	if err != nil {
		return NetworkUpsertResult{}, err
	}
	return result, nil
}

func upsertIPRanges(tx *gorm.DB, providerID uint64, ranges []domain.IPRange, result *NetworkUpsertResult) error {
	if len(ranges) == 0 {
		return nil
	}

	existing, err := providerRangeKeys(tx, providerID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	records := make([]domain.IPRange, 0, len(ranges))
	seen := make(map[string]struct{}, len(ranges))
	for _, r := range ranges {
		r.ProviderID = providerID
		r.Active = true
		r.UpdatedAt = now

		key := r.StartKey + r.EndKey
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		_, stored := existing[key]
		v4 := isIPv4Key(r.StartKey)
		switch {
		case stored && v4:
			result.UpdatedIPv4++
		case stored:
			result.UpdatedIPv6++
		case v4:
			result.CreatedIPv4++
		default:
			result.CreatedIPv6++
		}
		records = append(records, r)
	}

	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider_id"}, {Name: "start_key"}, {Name: "end_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"active", "updated_at"}),
	}).CreateInBatches(&records, networkInsertBatchSize).Error
}

func upsertASNs(tx *gorm.DB, providerID uint64, numbers []uint32, result *NetworkUpsertResult) error {
	if len(numbers) == 0 {
		return nil
	}

	type ownerRow struct {
		Number     uint32 `gorm:"column:asn"`
		ProviderID uint64
	}
	var owned []ownerRow
	if err := tx.Model(&domain.ASN{}).Select("asn", "provider_id").Where("asn IN ?", numbers).Scan(&owned).Error; err != nil {
		return err
	}
	owners := make(map[uint32]uint64, len(owned))
	for _, row := range owned {
		owners[row.Number] = row.ProviderID
	}

	now := time.Now().UTC()
	records := make([]domain.ASN, 0, len(numbers))
	seen := make(map[uint32]struct{}, len(numbers))
	for _, n := range numbers {
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}

		owner, ok := owners[n]
		switch {
		case ok && owner != providerID:
			log.Warn("Skipping ASN owned by another provider", "asn", n, "provider_id", providerID, "owner_id", owner)
			result.SkippedASNs++
			continue
		case ok:
			result.UpdatedASNs++
		default:
			result.CreatedASNs++
		}
		records = append(records, domain.ASN{ProviderID: providerID, Number: n, Active: true, UpdatedAt: now})
	}
	if len(records) == 0 {
		return nil
	}

	// Only rows of this provider reach the conflict branch.
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "asn"}},
		DoUpdates: clause.AssignmentColumns([]string{"active", "updated_at"}),
	}).CreateInBatches(&records, networkInsertBatchSize).Error
}

func providerRangeKeys(tx *gorm.DB, providerID uint64) (map[string]struct{}, error) {
	type keyRow struct {
		StartKey string
		EndKey   string
	}
	var rows []keyRow
	if err := tx.Model(&domain.IPRange{}).
		Select("start_key", "end_key").
		Where("provider_id = ?", providerID).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	keys := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		keys[row.StartKey+row.EndKey] = struct{}{}
	}
	return keys, nil
}

// ProviderRangeKeys returns the start+end keys of every range stored for a provider.
func ProviderRangeKeys(ctx context.Context, providerID uint64) (map[string]struct{}, error) {
	db, err := dbWithContext(ctx)
	if err != nil {
		return nil, err
	}
	return providerRangeKeys(db, providerID)
}

// IPv4 keys are the 16-byte mapped form, ::ffff:a.b.c.d.
func isIPv4Key(key string) bool {
	const mappedPrefix = "00000000000000000000ffff"
	return len(key) == 32 && key[:len(mappedPrefix)] == mappedPrefix
}

// ProviderMatch is a green network together with the provider owning it.
// Provider is nil when the owning provider row no longer exists.
type ProviderMatch struct {
	MatchID  uint64
	Provider *domain.Provider
}

// FindActiveIPRange returns the narrowest active range containing addr whose provider
// is not archived, or nil when nothing matches.
func FindActiveIPRange(ctx context.Context, addr netip.Addr) (*domain.IPRange, *ProviderMatch, error) {
	db, err := dbWithContext(ctx)
	if err != nil {
		return nil, nil, err
	}

	key := domain.IPKey(addr.Unmap())
	var ipRange domain.IPRange
	err = db.
		Joins("LEFT JOIN providers ON providers.id = ip_ranges.provider_id").
		Where("ip_ranges.active = ? AND ip_ranges.start_key <= ? AND ip_ranges.end_key >= ?", true, key, key).
		Where("(providers.id IS NULL OR providers.archived = ?)", false).
		Order("ip_ranges.start_key DESC").
		Order("ip_ranges.end_key ASC").
		First(&ipRange).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	match, err := loadMatchProvider(db, ipRange.ID, ipRange.ProviderID)
	if err != nil {
		return nil, nil, err
	}
	return &ipRange, match, nil
}

// FindActiveASN returns the active ASN row for number whose provider is not archived.
func FindActiveASN(ctx context.Context, number uint32) (*domain.ASN, *ProviderMatch, error) {
	db, err := dbWithContext(ctx)
	if err != nil {
		return nil, nil, err
	}

	var asn domain.ASN
	err = db.
		Joins("LEFT JOIN providers ON providers.id = green_asns.provider_id").
		Where("green_asns.active = ? AND green_asns.asn = ?", true, number).
		Where("(providers.id IS NULL OR providers.archived = ?)", false).
		First(&asn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	match, err := loadMatchProvider(db, asn.ID, asn.ProviderID)
	if err != nil {
		return nil, nil, err
	}
	return &asn, match, nil
}

func loadMatchProvider(db *gorm.DB, matchID, providerID uint64) (*ProviderMatch, error) {
	var provider domain.Provider
	err := db.First(&provider, providerID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return &ProviderMatch{MatchID: matchID}, nil
	case err != nil:
		return nil, err
	}
	return &ProviderMatch{MatchID: matchID, Provider: &provider}, nil
}
