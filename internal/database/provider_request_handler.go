package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"greenweb/internal/domain"

	"gorm.io/gorm"
)

var (
	ErrRequestNotFound        = errors.New("provider request not found")
	ErrRequestAlreadyAccepted = errors.New("provider request was already accepted")
	ErrUserAlreadyLinked      = errors.New("user is already assigned to a hosting provider")
	ErrUserNotFound           = errors.New("user not found")
	ErrASNExists              = errors.New("ASN already exists in the database")
)

// evidenceValidity is how long an approved piece of evidence stays valid.
const evidenceValidity = 365 * 24 * time.Hour

// CreateProviderRequest validates and stores a submitted request with its nested records.
func CreateProviderRequest(ctx context.Context, request *domain.ProviderRequest) error {
	if request == nil {
		return &domain.ValidationError{Reason: "request is required"}
	}
	if request.Status == "" {
		request.Status = domain.StatusOpen
	}
	request.Services = domain.NormalizeSlugs(request.Services)
	for i := range request.Locations {
		request.Locations[i].Country = strings.ToUpper(strings.TrimSpace(request.Locations[i].Country))
	}

	if err := request.Validate(); err != nil {
		return err
	}

	db, err := dbWithContext(ctx)
	if err != nil {
		return err
	}

	request.ID = 0
	return db.Session(&gorm.Session{FullSaveAssociations: true}).Create(request).Error
}

// GetProviderRequest loads a request with every nested record.
func GetProviderRequest(ctx context.Context, id uint64) (*domain.ProviderRequest, error) {
	db, err := dbWithContext(ctx)
	if err != nil {
		return nil, err
	}
	return loadProviderRequest(db, id)
}

// ListProviderRequests returns requests oldest first, filtered by status when one is given.
func ListProviderRequests(ctx context.Context, status domain.ProviderRequestStatus) ([]domain.ProviderRequest, error) {
	db, err := dbWithContext(ctx)
	if err != nil {
		return nil, err
	}

	query := db.Preload("Locations").Order("created_at ASC").Order("id ASC")
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var requests []domain.ProviderRequest
	if err := query.Find(&requests).Error; err != nil {
		return nil, err
	}
	return requests, nil
}

func loadProviderRequest(db *gorm.DB, id uint64) (*domain.ProviderRequest, error) {
	byID := func(tx *gorm.DB) *gorm.DB { return tx.Order("id ASC") }

	var request domain.ProviderRequest
	err := db.
		Preload("Locations", byID).
		Preload("ASNs", byID).
		Preload("IPRanges", byID).
		Preload("Evidence", byID).
		Preload("Consent").
		First(&request, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return &request, nil
}

// SetProviderRequestStatus moves a request to a review status. Accepting goes
// through ApproveProviderRequest.
func SetProviderRequestStatus(ctx context.Context, id uint64, status domain.ProviderRequestStatus) error {
	if !status.Valid() {
		return &domain.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", status)}
	}
	if status == domain.StatusAccepted {
		return &domain.ValidationError{Field: "status", Reason: "requests are accepted by approving them"}
	}

	db, err := dbWithContext(ctx)
	if err != nil {
		return err
	}

	return db.Transaction(func(tx *gorm.DB) error {
		var current domain.ProviderRequest
		if err := tx.Select("id", "status").First(&current, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRequestNotFound
			}
			return err
		}
		if current.Status == domain.StatusAccepted {
			return ErrRequestAlreadyAccepted
		}
		return tx.Model(&domain.ProviderRequest{}).Where("id = ?", id).Update("status", status).Error
	})
}

// ApproveProviderRequest turns a request into a listed provider together with its
// ASNs, IP ranges and supporting documents, and links the requesting user to it.
// All writes happen in one transaction.
func ApproveProviderRequest(ctx context.Context, id uint64) (*domain.Provider, error) {
	db, err := dbWithContext(ctx)
	if err != nil {
		return nil, err
	}

	var provider domain.Provider
	err = db.Transaction(func(tx *gorm.DB) error {
		request, err := loadProviderRequest(tx, id)
		if err != nil {
			return err
		}
		if request.Status == domain.StatusAccepted {
			return ErrRequestAlreadyAccepted
		}
		if len(request.Locations) == 0 {
			return &domain.ValidationError{Field: "locations", Reason: "at least one location is required"}
		}

		var user *domain.User
		if request.CreatedByID != nil {
			user = &domain.User{}
			if err := tx.First(user, *request.CreatedByID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrUserNotFound
				}
				return err
			}
			if user.ProviderID != nil {
				return fmt.Errorf("approve %q: %w (provider %d)", request.Name, ErrUserAlreadyLinked, *user.ProviderID)
			}
		}

		// Only the first location is carried over; a provider has a single location.
		location := request.Locations[0]
		provider = domain.Provider{
			Name:     request.Name,
			Website:  request.Website,
			Country:  location.Country,
			City:     location.City,
			Model:    domain.ModelCompensation,
			Services: domain.StringList(request.Services.Clone()),
		}
		if err := tx.Omit("Documents").Create(&provider).Error; err != nil {
			return err
		}

		if user != nil {
			if err := tx.Model(user).Update("provider_id", provider.ID).Error; err != nil {
				return err
			}
		}

		if err := createApprovedASNs(tx, request, provider.ID); err != nil {
			return err
		}
		if err := createApprovedRanges(tx, request, provider.ID); err != nil {
			return err
		}
		if err := createApprovedDocuments(tx, request, provider.ID); err != nil {
			return err
		}

		return tx.Model(&domain.ProviderRequest{}).Where("id = ?", request.ID).Update("status", domain.StatusAccepted).Error
	})
	if err != nil {
		return nil, err
	}
	return &provider, nil
}

func createApprovedASNs(tx *gorm.DB, request *domain.ProviderRequest, providerID uint64) error {
	if len(request.ASNs) == 0 {
		return nil
	}

	numbers := make([]uint32, 0, len(request.ASNs))
	for _, asn := range request.ASNs {
		numbers = append(numbers, asn.ASN)
	}

	var existing []uint32
	if err := tx.Model(&domain.ASN{}).Where("asn IN ?", numbers).Order("asn ASC").Pluck("asn", &existing).Error; err != nil {
		return err
	}
	if len(existing) > 0 {
		return fmt.Errorf("approve %q: %w: AS%d", request.Name, ErrASNExists, existing[0])
	}

	records := make([]domain.ASN, 0, len(numbers))
	for _, n := range numbers {
		records = append(records, domain.ASN{ProviderID: providerID, Number: n, Active: true})
	}
	if err := tx.Create(&records).Error; err != nil {
		// A concurrent insert can still trip the unique index.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("approve %q: %w", request.Name, ErrASNExists)
		}
		return err
	}
	return nil
}

func createApprovedRanges(tx *gorm.DB, request *domain.ProviderRequest, providerID uint64) error {
	if len(request.IPRanges) == 0 {
		return nil
	}

	records := make([]domain.IPRange, 0, len(request.IPRanges))
	for _, r := range request.IPRanges {
		start, end, err := r.Bounds()
		if err != nil {
			return err
		}
		records = append(records, domain.NewIPRange(providerID, start, end))
	}
	return tx.Create(&records).Error
}

func createApprovedDocuments(tx *gorm.DB, request *domain.ProviderRequest, providerID uint64) error {
	if len(request.Evidence) == 0 {
		return nil
	}

	validFrom := today()
	validTo := validFrom.Add(evidenceValidity)

	docs := make([]domain.SupportingDocument, 0, len(request.Evidence))
	for _, evidence := range request.Evidence {
		docs = append(docs, domain.SupportingDocument{
			ProviderID:  providerID,
			Title:       evidence.Title,
			Description: evidence.Description,
			URL:         evidence.Link,
			Attachment:  evidence.File,
			Type:        evidence.Type,
			ValidFrom:   validFrom,
			ValidTo:     validTo,
			Public:      evidence.Public,
		})
	}
	return tx.Create(&docs).Error
}

func today() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
