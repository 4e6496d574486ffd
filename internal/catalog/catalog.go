// Package catalog owns service records and resolves the endpoint catalog
// visible to an authenticated caller.
package catalog

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("service not found")
	ErrConflict = errors.New("service conflict")
)

// Service is a network-addressable service entry. Definition is free-form;
// well-known keys (type, name, public_url, internal_url, admin_url, region)
// drive endpoint resolution, anything else is carried as-is.
type Service struct {
	ID         string         `json:"id"`
	Definition map[string]any `json:"definition"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Endpoint is one resolved catalog entry.
type Endpoint struct {
	ServiceID   string `json:"service_id"`
	Type        string `json:"type,omitempty"`
	Name        string `json:"name,omitempty"`
	Region      string `json:"region,omitempty"`
	PublicURL   string `json:"public_url,omitempty"`
	InternalURL string `json:"internal_url,omitempty"`
	AdminURL    string `json:"admin_url,omitempty"`
}
