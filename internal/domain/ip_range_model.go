package domain

import (
	"encoding/hex"
	"fmt"
	"net/netip"
	"time"
)

// IPRange is a block of addresses a provider runs on green energy.
type IPRange struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	ProviderID uint64 `gorm:"not null;uniqueIndex:idx_ip_range_span,priority:1"`

	// IPStart and IPEnd hold the human-readable bounds (e.g. 192.0.2.0).
	IPStart string `gorm:"size:45;not null"`
	IPEnd   string `gorm:"size:45;not null"`

	// StartKey and EndKey hold the bounds as 32 hex digits of the 16-byte
	// form so both families compare lexicographically in SQL.
	StartKey string `gorm:"size:32;not null;uniqueIndex:idx_ip_range_span,priority:2;index:idx_ip_range_lookup"`
	EndKey   string `gorm:"size:32;not null;uniqueIndex:idx_ip_range_span,priority:3"`

	Active    bool      `gorm:"not null;index"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// NewIPRange builds a range owned by providerID, swapping bounds given in reverse.
func NewIPRange(providerID uint64, start, end netip.Addr) IPRange {
	start, end = start.Unmap(), end.Unmap()
	if end.Less(start) {
		start, end = end, start
	}
	return IPRange{
		ProviderID: providerID,
		IPStart:    start.String(),
		IPEnd:      end.String(),
		StartKey:   IPKey(start),
		EndKey:     IPKey(end),
		Active:     true,
	}
}

// NewIPRangeFromPrefix expands a prefix into its first and last address.
func NewIPRangeFromPrefix(providerID uint64, prefix netip.Prefix) IPRange {
	prefix = prefix.Masked()
	return NewIPRange(providerID, prefix.Addr(), LastAddr(prefix))
}

// Contains reports whether addr falls inside the range.
func (r *IPRange) Contains(addr netip.Addr) bool {
	key := IPKey(addr)
	return r.StartKey <= key && key <= r.EndKey
}

// String renders the range as "start - end".
func (r IPRange) String() string {
	return fmt.Sprintf("%s - %s", r.IPStart, r.IPEnd)
}

// IPKey encodes addr as a fixed-width hex string of its 16-byte form.
func IPKey(addr netip.Addr) string {
	raw := addr.As16()
	return hex.EncodeToString(raw[:])
}

// LastAddr returns the highest address contained in prefix.
func LastAddr(prefix netip.Prefix) netip.Addr {
	prefix = prefix.Masked()
	addr := prefix.Addr()
	bits := prefix.Bits()

	if addr.Is4() {
		raw := addr.As4()
		for i := range raw {
			hostBits := bits - i*8
			switch {
			case hostBits >= 8:
				continue
			case hostBits <= 0:
				raw[i] = 0xff
			default:
				raw[i] |= byte(0xff >> hostBits)
			}
		}
		return netip.AddrFrom4(raw)
	}

	raw := addr.As16()
	for i := range raw {
		hostBits := bits - i*8
		switch {
		case hostBits >= 8:
			continue
		case hostBits <= 0:
			raw[i] = 0xff
		default:
			raw[i] |= byte(0xff >> hostBits)
		}
	}
	return netip.AddrFrom16(raw)
}

// ASN is an autonomous system a provider operates on green energy.
type ASN struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement"`
	ProviderID uint64    `gorm:"not null;index"`
	Number     uint32    `gorm:"column:asn;not null;uniqueIndex"`
	Active     bool      `gorm:"not null;index"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

// TableName keeps the table name readable.
func (ASN) TableName() string {
	return "green_asns"
}
