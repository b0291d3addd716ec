package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/jszwec/csvutil"

	"greenweb/internal/database"
	"greenweb/internal/domain"
)

type csvRow struct {
	IP string `csv:"ip"`
}

// firstColumn trims every record to its first field so files with extra
// columns decode into csvRow.
type firstColumn struct {
	r *csv.Reader
}

func (f firstColumn) Read() ([]string, error) {
	record, err := f.r.Read()
	if err != nil {
		return nil, err
	}
	if len(record) == 0 {
		return []string{""}, nil
	}
	return record[:1], nil
}

// CSV imports single IPv4 addresses for one provider from an uploaded file.
type CSV struct {
	providerID uint64
	entries    []string
}

// NewCSV reads the first column of every row. Rows mentioning "IP" are treated
// as headers; anything that is not an IPv4 address is logged and skipped.
func NewCSV(providerID uint64, r io.Reader) (*CSV, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	dec, err := csvutil.NewDecoder(firstColumn{r: reader}, "ip")
	if err != nil {
		return nil, fmt.Errorf("csv: %w", err)
	}

	c := &CSV{providerID: providerID}
	for {
		var row csvRow
		if err := dec.Decode(&row); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("csv: %w", err)
		}

		value := strings.TrimSpace(row.IP)
		if value == "" || strings.Contains(strings.ToUpper(value), "IP") {
			continue
		}
		addr, err := netip.ParseAddr(value)
		if err != nil || !addr.Unmap().Is4() {
			log.Warn("Skipping CSV row without an IPv4 address", "value", value)
			continue
		}
		c.entries = append(c.entries, addr.Unmap().String())
	}
	return c, nil
}

func (c *CSV) Name() string       { return "csv" }
func (c *CSV) ProviderID() uint64 { return c.providerID }

func (c *CSV) Fetch(context.Context) ([]string, error) {
	return c.entries, nil
}

// PreviewEntry is one address from the file and whether it is already stored.
type PreviewEntry struct {
	IP     string `json:"ip"`
	Exists bool   `json:"exists"`
}

// Preview reports what Run would create or refresh, without writing anything.
func (c *CSV) Preview(ctx context.Context) ([]PreviewEntry, error) {
	exists, err := database.ProviderExists(ctx, c.providerID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %d", ErrMissingProvider, c.providerID)
	}

	stored, err := database.ProviderRangeKeys(ctx, c.providerID)
	if err != nil {
		return nil, err
	}

	networks := ParseNetworks(c.entries)
	preview := make([]PreviewEntry, 0, len(networks.V4))
	for _, prefix := range networks.V4 {
		r := domain.NewIPRangeFromPrefix(c.providerID, prefix)
		_, ok := stored[r.StartKey+r.EndKey]
		preview = append(preview, PreviewEntry{IP: prefix.Addr().String(), Exists: ok})
	}
	return preview, nil
}
