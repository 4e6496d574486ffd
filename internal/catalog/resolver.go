package catalog

import (
	"context"
	"errors"
	"strings"

	"keygate.org/internal/identity"
)

// Resolver derives the endpoint catalog for an authenticated caller. It is a
// pure read: same inputs and same stored services produce the same catalog.
type Resolver struct {
	store Store
}

func NewResolver(store Store) (*Resolver, error) {
	if store == nil {
		return nil, errors.New("catalog store is required")
	}
	return &Resolver{store: store}, nil
}

const (
	tenantPlaceholder = "$(tenant_id)s"
	userPlaceholder   = "$(user_id)s"
)

// Resolve returns the endpoints visible to (user, tenant). URL fields in the
// service definition may reference $(tenant_id)s and $(user_id)s. Entries
// whose URLs need a tenant are omitted for unscoped tokens rather than
// failing.
func (r *Resolver) Resolve(ctx context.Context, userID, tenantID string, md identity.Metadata) ([]Endpoint, error) {
	services, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}

	endpoints := make([]Endpoint, 0, len(services))
	for _, svc := range services {
		ep := Endpoint{
			ServiceID: svc.ID,
			Type:      stringField(svc.Definition, "type"),
			Name:      stringField(svc.Definition, "name"),
			Region:    stringField(svc.Definition, "region"),
		}
		var skip bool
		ep.PublicURL, skip = expandURL(stringField(svc.Definition, "public_url"), userID, tenantID)
		if skip {
			continue
		}
		ep.InternalURL, skip = expandURL(stringField(svc.Definition, "internal_url"), userID, tenantID)
		if skip {
			continue
		}
		ep.AdminURL, skip = expandURL(stringField(svc.Definition, "admin_url"), userID, tenantID)
		if skip {
			continue
		}
		endpoints = append(endpoints, ep)
	}
	return endpoints, nil
}

func stringField(def map[string]any, key string) string {
	v, _ := def[key].(string)
	return v
}

// expandURL substitutes placeholders. skip is true when the template needs a
// tenant and none is bound.
func expandURL(raw, userID, tenantID string) (url string, skip bool) {
	if raw == "" {
		return "", false
	}
	if strings.Contains(raw, tenantPlaceholder) {
		if tenantID == "" {
			return "", true
		}
		raw = strings.ReplaceAll(raw, tenantPlaceholder, tenantID)
	}
	return strings.ReplaceAll(raw, userPlaceholder, userID), false
}
