// Package namespace derives tenant-scoped identifiers for multi-tenant
// isolation.
//
// Every piece of shared state in the system (graph records, key-value
// prefixes, vector collections, on-disk cache directories) is partitioned by
// a namespace string derived from the tenant id. The derivation is a pure
// bijection: two distinct tenant ids can never map to the same namespace,
// and a namespace maps back to exactly one tenant id.
//
// Codec functions never touch the filesystem or any storage backend; they
// are safe to call from any goroutine.
//
// Example:
//
//	ns, err := namespace.Derive("alice")
//	// ns == "user_alice_"
//
//	namespace.Label("Entity", ns)
//	// "user_alice_Entity"
package namespace

import (
	"errors"
	"fmt"
	"path/filepath"
)

// Prefix and Suffix frame every derived namespace. Keeping both fixed makes
// the tenant id recoverable from the namespace by simple stripping.
const (
	Prefix = "user_"
	Suffix = "_"
)

// ErrInvalidTenantID is returned for tenant ids that are empty or contain
// characters outside [A-Za-z0-9_]. Tenant ids are interpolated into storage
// identifiers (labels, directory names, key prefixes), so the character set
// is restricted before any I/O happens.
var ErrInvalidTenantID = errors.New("invalid tenant id")

// ValidateTenantID checks that id is non-empty and contains only
// alphanumeric characters and underscores.
func ValidateTenantID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTenantID)
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_':
		default:
			return fmt.Errorf("%w: %q contains disallowed character %q", ErrInvalidTenantID, id, r)
		}
	}
	return nil
}

// Derive maps a tenant id to its namespace string ("user_<id>_").
// Returns ErrInvalidTenantID for malformed ids.
func Derive(tenantID string) (string, error) {
	if err := ValidateTenantID(tenantID); err != nil {
		return "", err
	}
	return Prefix + tenantID + Suffix, nil
}

// Label prefixes a base label or relationship type with the namespace.
// Pure concatenation, no failure mode.
func Label(base, namespace string) string {
	return namespace + base
}

// WorkingDir returns the deterministic per-tenant working directory under
// basePath. It does not create the directory; instance construction does.
func WorkingDir(tenantID, basePath string) (string, error) {
	if err := ValidateTenantID(tenantID); err != nil {
		return "", err
	}
	return filepath.Join(basePath, "lightrag_cache_"+Prefix+tenantID), nil
}
