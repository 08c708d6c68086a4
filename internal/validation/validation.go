// Package validation provides common validation functions for IDs and paths.
// This package has no dependencies on other internal packages to avoid import cycles.
package validation

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidTenantID indicates the tenant_id value contains characters
// outside the allowed alphanumeric/hyphen/underscore set (§3).
var ErrInvalidTenantID = errors.New("invalid tenant_id")

// ErrInvalidProjectID indicates the project_id value is malformed or attempts path traversal.
var ErrInvalidProjectID = errors.New("invalid project_id")

// ErrInvalidSessionID indicates the session_id value is malformed or attempts path traversal.
var ErrInvalidSessionID = errors.New("invalid session_id")

// ProjectID checks if a project ID is safe for use in filesystem paths.
// Returns cleaned project ID and error if validation fails.
func ProjectID(projectID string) (string, error) {
	if projectID == "" {
		return "", nil
	}

	// IDs must be a single path segment.
	if projectID == "." || projectID == ".." {
		return "", ErrInvalidProjectID
	}
	if strings.ContainsAny(projectID, `/\\`) {
		return "", ErrInvalidProjectID
	}

	cleanPID := filepath.Clean(projectID)
	if cleanPID != projectID ||
		strings.HasPrefix(cleanPID, "..") ||
		strings.Contains(cleanPID, string(os.PathSeparator)+"..") ||
		filepath.IsAbs(cleanPID) {
		return "", ErrInvalidProjectID
	}

	return cleanPID, nil
}

// SessionID checks if a session ID is safe for use as a single filesystem path segment.
func SessionID(sessionID string) (string, error) {
	if sessionID == "" {
		return "", nil
	}

	if sessionID == "." || sessionID == ".." {
		return "", ErrInvalidSessionID
	}
	if strings.ContainsAny(sessionID, `/\\`) {
		return "", ErrInvalidSessionID
	}

	cleanSID := filepath.Clean(sessionID)
	if cleanSID != sessionID ||
		strings.HasPrefix(cleanSID, "..") ||
		strings.Contains(cleanSID, string(os.PathSeparator)+"..") ||
		filepath.IsAbs(cleanSID) {
		return "", ErrInvalidSessionID
	}

	return cleanSID, nil
}

// TenantID checks that a tenant_id is non-empty and composed only of
// ASCII letters, digits, hyphens, and underscores, since it is used both
// as a relational/object-store/vector-collection namespace key and as a
// path/queue-key segment (§3).
func TenantID(tenantID string) (string, error) {
	if tenantID == "" {
		return "", ErrInvalidTenantID
	}
	for _, r := range tenantID {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !isAlnum && r != '-' && r != '_' {
			return "", ErrInvalidTenantID
		}
	}
	return tenantID, nil
}
