package graphql

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gql "github.com/graphql-go/graphql"

	"greenweb/internal/api/dto"
	"greenweb/internal/auth"
	"greenweb/internal/database"
	"greenweb/internal/domain"
	"greenweb/internal/greencheck"
)

var errForbidden = errors.New("admin role required")

// NewSchema builds the read side of the API. Provider requests are only
// visible to admins.
func NewSchema(checker *greencheck.Checker) (gql.Schema, error) {
	greencheckType := gql.NewObject(gql.ObjectConfig{
		Name: "Greencheck",
		Fields: gql.Fields{
			"url":             &gql.Field{Type: gql.NewNonNull(gql.String)},
			"green":           &gql.Field{Type: gql.NewNonNull(gql.Boolean)},
			"hostedBy":        &gql.Field{Type: gql.NewNonNull(gql.String)},
			"hostedById":      &gql.Field{Type: gql.NewNonNull(gql.Int)},
			"hostedByWebsite": &gql.Field{Type: gql.NewNonNull(gql.String)},
			"partner":         &gql.Field{Type: gql.NewNonNull(gql.String)},
			"matchType":       &gql.Field{Type: gql.NewNonNull(gql.String)},
			"modified":        &gql.Field{Type: gql.DateTime},
		},
	})

	documentType := gql.NewObject(gql.ObjectConfig{
		Name: "SupportingDocument",
		Fields: gql.Fields{
			"title":     &gql.Field{Type: gql.NewNonNull(gql.String)},
			"link":      &gql.Field{Type: gql.NewNonNull(gql.String)},
			"type":      &gql.Field{Type: gql.NewNonNull(gql.String)},
			"validFrom": &gql.Field{Type: gql.NewNonNull(gql.String)},
			"validTo":   &gql.Field{Type: gql.NewNonNull(gql.String)},
		},
	})

	providerType := gql.NewObject(gql.ObjectConfig{
		Name: "Provider",
		Fields: gql.Fields{
			"id":                  &gql.Field{Type: gql.NewNonNull(gql.Int)},
			"name":                &gql.Field{Type: gql.NewNonNull(gql.String)},
			"website":             &gql.Field{Type: gql.NewNonNull(gql.String)},
			"country":             &gql.Field{Type: gql.NewNonNull(gql.String)},
			"partner":             &gql.Field{Type: gql.NewNonNull(gql.String)},
			"services":            &gql.Field{Type: gql.NewNonNull(gql.NewList(gql.NewNonNull(gql.String)))},
			"supportingDocuments": &gql.Field{Type: gql.NewNonNull(gql.NewList(gql.NewNonNull(documentType)))},
		},
	})

	requestType := gql.NewObject(gql.ObjectConfig{
		Name: "ProviderRequest",
		Fields: gql.Fields{
			"id":        &gql.Field{Type: gql.NewNonNull(gql.Int)},
			"name":      &gql.Field{Type: gql.NewNonNull(gql.String)},
			"website":   &gql.Field{Type: gql.NewNonNull(gql.String)},
			"status":    &gql.Field{Type: gql.NewNonNull(gql.String)},
			"countries": &gql.Field{Type: gql.NewNonNull(gql.NewList(gql.NewNonNull(gql.String)))},
			"createdAt": &gql.Field{Type: gql.DateTime},
		},
	})

	queryType := gql.NewObject(gql.ObjectConfig{
		Name: "Query",
		Fields: gql.Fields{
			"greencheck": &gql.Field{
				Type: gql.NewNonNull(greencheckType),
				Args: gql.FieldConfigArgument{
					"url": &gql.ArgumentConfig{Type: gql.NewNonNull(gql.String)},
				},
				Resolve: func(p gql.ResolveParams) (interface{}, error) {
					raw, _ := p.Args["url"].(string)
					result, err := checker.Check(p.Context, raw)
					if err != nil {
						return nil, err
					}
					return buildGreencheck(result), nil
				},
			},
			"providers": &gql.Field{
				Type: gql.NewNonNull(gql.NewList(gql.NewNonNull(providerType))),
				Args: gql.FieldConfigArgument{
					"country": &gql.ArgumentConfig{Type: gql.String},
				},
				Resolve: func(p gql.ResolveParams) (interface{}, error) {
					country, _ := p.Args["country"].(string)
					return listProviders(p.Context, country)
				},
			},
			"provider": &gql.Field{
				Type: providerType,
				Args: gql.FieldConfigArgument{
					"id": &gql.ArgumentConfig{Type: gql.NewNonNull(gql.Int)},
				},
				Resolve: func(p gql.ResolveParams) (interface{}, error) {
					id, _ := p.Args["id"].(int)
					if id <= 0 {
						return nil, nil
					}
					provider, err := database.GetProviderDetail(p.Context, uint64(id))
					if errors.Is(err, database.ErrProviderNotFound) {
						return nil, nil
					}
					if err != nil {
						return nil, err
					}
					return buildProvider(*provider), nil
				},
			},
			"providerRequests": &gql.Field{
				Type: gql.NewNonNull(gql.NewList(gql.NewNonNull(requestType))),
				Args: gql.FieldConfigArgument{
					"status": &gql.ArgumentConfig{Type: gql.String},
				},
				Resolve: func(p gql.ResolveParams) (interface{}, error) {
					if err := requireAdmin(p.Context); err != nil {
						return nil, err
					}
					status, _ := p.Args["status"].(string)
					return listProviderRequests(p.Context, domain.ProviderRequestStatus(status))
				},
			},
		},
	})

	return gql.NewSchema(gql.SchemaConfig{Query: queryType})
}

func requireAdmin(ctx context.Context) error {
	role, err := RoleFromContext(ctx)
	if err != nil {
		return err
	}
	if role != auth.RoleAdmin {
		return errForbidden
	}
	return nil
}

func buildGreencheck(result greencheck.Result) map[string]interface{} {
	view := dto.NewGreencheckResult(result)
	return map[string]interface{}{
		"url":             view.URL,
		"green":           view.Green,
		"hostedBy":        view.HostedBy,
		"hostedById":      int(view.HostedByID),
		"hostedByWebsite": view.HostedByWebsite,
		"partner":         view.Partner,
		"matchType":       view.MatchType,
		"modified":        view.Modified,
	}
}

func listProviders(ctx context.Context, country string) ([]map[string]interface{}, error) {
	providers, err := database.ListDirectoryProviders(ctx)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}

	country = strings.ToUpper(strings.TrimSpace(country))
	items := make([]map[string]interface{}, 0, len(providers))
	for _, provider := range providers {
		if country != "" && !strings.EqualFold(provider.Country, country) {
			continue
		}
		items = append(items, buildProvider(provider))
	}
	return items, nil
}

func buildProvider(provider domain.Provider) map[string]interface{} {
	detail := dto.NewProviderDetail(provider)

	documents := make([]map[string]interface{}, 0, len(detail.SupportingDocuments))
	for _, doc := range detail.SupportingDocuments {
		documents = append(documents, map[string]interface{}{
			"title":     doc.Title,
			"link":      doc.Link,
			"type":      doc.Type,
			"validFrom": doc.ValidFrom,
			"validTo":   doc.ValidTo,
		})
	}

	return map[string]interface{}{
		"id":                  int(provider.ID),
		"name":                provider.Name,
		"website":             provider.Website,
		"country":             strings.ToUpper(provider.Country),
		"partner":             provider.Partner,
		"services":            detail.Services,
		"supportingDocuments": documents,
	}
}

func listProviderRequests(ctx context.Context, status domain.ProviderRequestStatus) ([]map[string]interface{}, error) {
	requests, err := database.ListProviderRequests(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("list provider requests: %w", err)
	}

	items := make([]map[string]interface{}, 0, len(requests))
	for _, request := range requests {
		countries := make([]string, 0, len(request.Locations))
		for _, location := range request.Locations {
			countries = append(countries, location.Country)
		}
		items = append(items, map[string]interface{}{
			"id":        int(request.ID),
			"name":      request.Name,
			"website":   request.Website,
			"status":    string(request.Status),
			"countries": countries,
			"createdAt": request.CreatedAt.UTC().Truncate(time.Second),
		})
	}
	return items, nil
}
