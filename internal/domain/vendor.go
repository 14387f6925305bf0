package domain

import "strings"

// DefaultWellKnownVendors are the vendor prefixes flagged in reports.
var DefaultWellKnownVendors = []string{
	"symfony",
	"laravel",
	"doctrine",
	"phpunit",
	"twig",
	"illuminate",
}

// VendorMatcher resolves a package id such as "symfony/console" to the
// well-known vendor it belongs to.
type VendorMatcher struct {
	vendors map[string]struct{}
}

// NewVendorMatcher builds a matcher for the given vendor names.
func NewVendorMatcher(vendors []string) *VendorMatcher {
	m := &VendorMatcher{vendors: make(map[string]struct{}, len(vendors))}
	for _, v := range vendors {
		v = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(v), "/"))
		if v != "" {
			m.vendors[v] = struct{}{}
		}
	}
	return m
}

// WellKnown returns the vendor name if the package belongs to a well-known
// vendor, or "".
func (m *VendorMatcher) WellKnown(pkg string) string {
	if m == nil {
		return ""
	}
	vendor, _, ok := strings.Cut(pkg, "/")
	if !ok {
		return ""
	}
	vendor = strings.ToLower(vendor)
	if _, hit := m.vendors[vendor]; hit {
		return vendor
	}
	return ""
}
