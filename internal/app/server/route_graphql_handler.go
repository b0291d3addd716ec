package server

import (
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	gqlhandler "github.com/graphql-go/handler"

	"greenweb/internal/auth"
	gqlschema "greenweb/internal/graphql"
)

// graphQLHandler serves the schema. A valid bearer token adds the caller's
// role to the resolver context; anonymous callers still reach public fields.
func (s *Server) graphQLHandler() (http.Handler, error) {
	schema, err := gqlschema.NewSchema(s.checker)
	if err != nil {
		return nil, err
	}

	base := gqlhandler.New(&gqlhandler.Config{
		Schema:   &schema,
		Pretty:   true,
		GraphiQL: false,
	})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if token := extractBearerToken(r.Header.Get("Authorization")); token != "" {
			if claims, err := auth.ValidateJWT(token); err == nil {
				if role, ok := claims["role"].(string); ok {
					ctx = gqlschema.WithRole(ctx, role)
				}
			} else {
				log.Debug("GraphQL token rejected", "error", err)
			}
		}

		base.ContextHandler(ctx, w, r)
	}), nil
}

func extractBearerToken(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
