package services

import (
	"errors"
	"net/url"
	"path"
	"strings"

	"github.com/damacus/your-files/internal/models"
	"github.com/damacus/your-files/internal/storage"
)

var (
	// ErrOutsideRoot is returned for prefixes the user may not browse.
	ErrOutsideRoot = errors.New("prefix is outside your files")

	// ErrProtectedPrefix is returned when deleting one of the top-level areas.
	ErrProtectedPrefix = errors.New("prefix cannot be deleted")

	// ErrFolderExists is returned when the folder marker already exists.
	ErrFolderExists = errors.New("folder already exists")

	// ErrInvalidName is returned for empty or path-like folder names.
	ErrInvalidName = errors.New("invalid folder name")
)

// RootCrumbName labels the first breadcrumb.
const RootCrumbName = "Your files"

// Layout describes where a user's files live in the bucket.
//
// All prefixes are full keys in the bucket. An empty RootPrefix means the
// whole bucket.
type Layout struct {
	RootPrefix     string
	BigDataPrefix  string
	SharedPrefixes []string
	CreateTableURL string
}

// Normalize returns a copy with every prefix in canonical form.
func (l Layout) Normalize() Layout {
	out := Layout{
		RootPrefix:     NormalizePrefix(l.RootPrefix),
		BigDataPrefix:  NormalizePrefix(l.BigDataPrefix),
		CreateTableURL: l.CreateTableURL,
	}
	for _, p := range l.SharedPrefixes {
		if p = NormalizePrefix(p); p != "" {
			out.SharedPrefixes = append(out.SharedPrefixes, p)
		}
	}
	return out
}

// NormalizePrefix strips leading slashes and adds a trailing one.
func NormalizePrefix(p string) string {
	p = strings.TrimLeft(strings.TrimSpace(p), storage.Delimiter)
	if p != "" && !strings.HasSuffix(p, storage.Delimiter) {
		p += storage.Delimiter
	}
	return p
}

// Resolve maps a requested prefix to the prefix to list. An empty request
// means the root.
func (l Layout) Resolve(prefix string) (string, error) {
	p := NormalizePrefix(prefix)
	if p == "" {
		return l.RootPrefix, nil
	}
	if !l.Allowed(p) {
		return "", ErrOutsideRoot
	}
	return p, nil
}

// Allowed reports whether p lies inside the root, big-data or a shared area.
func (l Layout) Allowed(p string) bool {
	if l.RootPrefix == "" || strings.HasPrefix(p, l.RootPrefix) {
		return true
	}
	if l.BigDataPrefix != "" && strings.HasPrefix(p, l.BigDataPrefix) {
		return true
	}
	for _, s := range l.SharedPrefixes {
		if strings.HasPrefix(p, s) {
			return true
		}
	}
	return false
}

// IsProtected reports whether p is one of the top-level areas.
func (l Layout) IsProtected(p string) bool {
	if p == l.RootPrefix || (l.BigDataPrefix != "" && p == l.BigDataPrefix) {
		return true
	}
	for _, s := range l.SharedPrefixes {
		if p == s {
			return true
		}
	}
	return false
}

// CreateTableLink returns the create-table link for .csv keys and "" for
// anything else.
func (l Layout) CreateTableLink(key string) string {
	if l.CreateTableURL == "" || !strings.EqualFold(path.Ext(key), ".csv") {
		return ""
	}
	return l.CreateTableURL + "?path=" + url.QueryEscape(key)
}

// Breadcrumbs builds the navigation trail for prefix.
func (l Layout) Breadcrumbs(prefix string) []models.Breadcrumb {
	crumbs := []models.Breadcrumb{{Name: RootCrumbName, Path: l.RootPrefix}}
	if prefix == l.RootPrefix {
		return crumbs
	}

	base := l.RootPrefix
	for _, area := range append([]string{l.BigDataPrefix}, l.SharedPrefixes...) {
		if area != "" && strings.HasPrefix(prefix, area) && !strings.HasPrefix(area, l.RootPrefix) {
			crumbs = append(crumbs, models.Breadcrumb{Name: FolderName(area), Path: area})
			base = area
			break
		}
	}

	p := base
	for _, part := range strings.Split(strings.TrimPrefix(prefix, base), storage.Delimiter) {
		if part == "" {
			continue
		}
		p += part + storage.Delimiter
		crumbs = append(crumbs, models.Breadcrumb{Name: part, Path: p})
	}
	return crumbs
}

// FolderName returns the last non-empty segment of a prefix.
func FolderName(prefix string) string {
	return path.Base(strings.TrimSuffix(prefix, storage.Delimiter))
}

// FileName returns everything after the last delimiter of key.
func FileName(key string) string {
	if i := strings.LastIndex(key, storage.Delimiter); i >= 0 {
		return key[i+1:]
	}
	return key
}
