package database

import (
	"context"
	"errors"
	"net/netip"
	"testing"

	"greenweb/internal/domain"
)

func TestUpsertProviderNetworks_CreatesThenUpdates(t *testing.T) {
	db := setupTestDB(t)
	provider := createProvider(t, db, domain.Provider{ID: 10000001, Name: "Google"})

	ranges := []domain.IPRange{
		domain.NewIPRangeFromPrefix(0, netip.MustParsePrefix("8.8.4.0/24")),
		domain.NewIPRangeFromPrefix(0, netip.MustParsePrefix("34.0.0.0/15")),
		domain.NewIPRangeFromPrefix(0, netip.MustParsePrefix("2001:4860::/32")),
	}

	ctx := context.Background()
	first, err := UpsertProviderNetworks(ctx, provider.ID, ranges, []uint32{15169})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if first.CreatedIPv4 != 2 || first.CreatedIPv6 != 1 || first.CreatedASNs != 1 || first.Updated() != 0 {
		t.Fatalf("unexpected first result %+v", first)
	}

	second, err := UpsertProviderNetworks(ctx, provider.ID, ranges, []uint32{15169})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.Created() != 0 || second.UpdatedIPv4 != 2 || second.UpdatedIPv6 != 1 || second.UpdatedASNs != 1 {
		t.Fatalf("unexpected second result %+v", second)
	}

	var count int64
	if err := db.Model(&domain.IPRange{}).Count(&count).Error; err != nil {
		t.Fatalf("count ranges: %v", err)
	}
	if count != 3 {
		t.Fatalf("stored %d ranges, want 3", count)
	}
}

func TestUpsertProviderNetworks_LeavesForeignASNAlone(t *testing.T) {
	db := setupTestDB(t)
	owner := createProvider(t, db, domain.Provider{Name: "Owner"})
	importer := createProvider(t, db, domain.Provider{Name: "Importer"})

	if err := db.Create(&domain.ASN{ProviderID: owner.ID, Number: 64500, Active: false}).Error; err != nil {
		t.Fatalf("seed asn: %v", err)
	}

	result, err := UpsertProviderNetworks(context.Background(), importer.ID, nil, []uint32{64500, 64501})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if result.CreatedASNs != 1 || result.UpdatedASNs != 0 || result.SkippedASNs != 1 {
		t.Fatalf("unexpected result %+v", result)
	}

	var foreign domain.ASN
	if err := db.Where("asn = ?", 64500).First(&foreign).Error; err != nil {
		t.Fatalf("load asn: %v", err)
	}
	if foreign.ProviderID != owner.ID || foreign.Active {
		t.Fatalf("foreign ASN changed: %+v", foreign)
	}

	// Every number owned elsewhere leaves nothing to write.
	result, err = UpsertProviderNetworks(context.Background(), importer.ID, nil, []uint32{64500})
	if err != nil {
		t.Fatalf("upsert of foreign only: %v", err)
	}
	if result.SkippedASNs != 1 || result.Created() != 0 || result.Updated() != 0 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestUpsertProviderNetworks_ReactivatesRange(t *testing.T) {
	db := setupTestDB(t)
	provider := createProvider(t, db, domain.Provider{Name: "Equinix"})

	r := domain.NewIPRangeFromPrefix(provider.ID, netip.MustParsePrefix("192.0.2.0/24"))
	if err := db.Create(&r).Error; err != nil {
		t.Fatalf("seed range: %v", err)
	}
	if err := db.Model(&r).Update("active", false).Error; err != nil {
		t.Fatalf("deactivate range: %v", err)
	}

	if _, err := UpsertProviderNetworks(context.Background(), provider.ID, []domain.IPRange{r}, nil); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	var stored domain.IPRange
	if err := db.First(&stored, r.ID).Error; err != nil {
		t.Fatalf("reload range: %v", err)
	}
	if !stored.Active {
		t.Fatal("range should be active again after import")
	}
}

func TestUpsertProviderNetworks_MissingProviderWritesNothing(t *testing.T) {
	db := setupTestDB(t)

	ranges := []domain.IPRange{domain.NewIPRangeFromPrefix(0, netip.MustParsePrefix("198.51.100.0/24"))}
	_, err := UpsertProviderNetworks(context.Background(), 424242, ranges, []uint32{64500})
	if !errors.Is(err, ErrProviderNotFound) {
		t.Fatalf("expected ErrProviderNotFound, got %v", err)
	}

	var count int64
	db.Model(&domain.IPRange{}).Count(&count)
	if count != 0 {
		t.Fatalf("stored %d ranges for a missing provider", count)
	}
}

func TestFindActiveIPRange(t *testing.T) {
	db := setupTestDB(t)
	green := createProvider(t, db, domain.Provider{Name: "Green Host", ShowOnWebsite: true})
	archived := createProvider(t, db, domain.Provider{Name: "Gone Host", Archived: true})

	wide := domain.NewIPRangeFromPrefix(green.ID, netip.MustParsePrefix("10.0.0.0/8"))
	narrow := domain.NewIPRangeFromPrefix(green.ID, netip.MustParsePrefix("10.1.2.0/24"))
	v6 := domain.NewIPRangeFromPrefix(green.ID, netip.MustParsePrefix("2001:db8::/32"))
	hidden := domain.NewIPRangeFromPrefix(archived.ID, netip.MustParsePrefix("172.16.0.0/12"))
	for _, r := range []*domain.IPRange{&wide, &narrow, &v6, &hidden} {
		if err := db.Create(r).Error; err != nil {
			t.Fatalf("seed range %s: %v", r, err)
		}
	}

	ctx := context.Background()

	t.Run("prefers the narrowest range", func(t *testing.T) {
		got, match, err := FindActiveIPRange(ctx, netip.MustParseAddr("10.1.2.3"))
		if err != nil {
			t.Fatalf("FindActiveIPRange: %v", err)
		}
		if got == nil || got.ID != narrow.ID {
			t.Fatalf("matched %v, want %s", got, narrow)
		}
		if match.Provider == nil || match.Provider.ID != green.ID {
			t.Fatalf("unexpected provider %+v", match.Provider)
		}
	})

	t.Run("matches IPv6", func(t *testing.T) {
		got, _, err := FindActiveIPRange(ctx, netip.MustParseAddr("2001:db8::1"))
		if err != nil || got == nil || got.ID != v6.ID {
			t.Fatalf("FindActiveIPRange = %v, %v; want %s", got, err, v6)
		}
	})

	t.Run("IPv4 does not match IPv6 ranges", func(t *testing.T) {
		got, _, err := FindActiveIPRange(ctx, netip.MustParseAddr("32.1.13.184"))
		if err != nil || got != nil {
			t.Fatalf("FindActiveIPRange = %v, %v; want no match", got, err)
		}
	})

	t.Run("skips archived providers", func(t *testing.T) {
		got, _, err := FindActiveIPRange(ctx, netip.MustParseAddr("172.16.5.5"))
		if err != nil || got != nil {
			t.Fatalf("FindActiveIPRange = %v, %v; want no match", got, err)
		}
	})

	t.Run("reports missing provider", func(t *testing.T) {
		orphan := domain.NewIPRangeFromPrefix(999, netip.MustParsePrefix("203.0.113.0/24"))
		if err := db.Create(&orphan).Error; err != nil {
			t.Fatalf("seed orphan: %v", err)
		}
		got, match, err := FindActiveIPRange(ctx, netip.MustParseAddr("203.0.113.9"))
		if err != nil || got == nil {
			t.Fatalf("FindActiveIPRange = %v, %v; want orphan match", got, err)
		}
		if match.Provider != nil {
			t.Fatalf("expected nil provider for orphan range, got %+v", match.Provider)
		}
	})
}

func TestFindActiveASN(t *testing.T) {
	db := setupTestDB(t)
	provider := createProvider(t, db, domain.Provider{Name: "AS Host"})

	if err := db.Create(&domain.ASN{ProviderID: provider.ID, Number: 64500, Active: true}).Error; err != nil {
		t.Fatalf("seed asn: %v", err)
	}
	if err := db.Create(&domain.ASN{ProviderID: provider.ID, Number: 64501, Active: false}).Error; err != nil {
		t.Fatalf("seed inactive asn: %v", err)
	}

	asn, match, err := FindActiveASN(context.Background(), 64500)
	if err != nil || asn == nil {
		t.Fatalf("FindActiveASN = %v, %v", asn, err)
	}
	if match.Provider == nil || match.Provider.ID != provider.ID {
		t.Fatalf("unexpected provider %+v", match.Provider)
	}

	asn, _, err = FindActiveASN(context.Background(), 64501)
	if err != nil || asn != nil {
		t.Fatalf("inactive ASN matched: %v, %v", asn, err)
	}
}
