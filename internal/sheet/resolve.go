package sheet

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var (
	// ErrSchema is the parent of every error that prevents column resolution.
	// It is the only error class that aborts a whole batch.
	ErrSchema = errors.New("schema error")

	// ErrMissingColumn is returned when no header matches a role
	ErrMissingColumn = fmt.Errorf("%w: missing column", ErrSchema)

	// ErrAmbiguousSchema is returned when one column is the best match for both roles
	ErrAmbiguousSchema = fmt.Errorf("%w: ambiguous schema", ErrSchema)
)

// Role names used in schema errors
const (
	RoleName = "merchant name"
	RoleURL  = "image url"
)

// MissingColumnError names the role that could not be resolved
type MissingColumnError struct {
	Role   string
	Header []string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("missing column: no header matches %s (headers: %s)", e.Role, strings.Join(e.Header, ", "))
}

func (e *MissingColumnError) Unwrap() error {
	return ErrMissingColumn
}

// Aliases are normalized (lowercase, alphanumerics only) and ranked: more specific
// terms come first so the reported alias is the most descriptive one.
var nameAliases = []string{
	"merchantname", "merchant",
	"businessname", "business",
	"companyname", "company",
	"shopname", "shop",
	"vendorname", "vendor",
	"storename", "store",
	"offername",
	"name",
}

var urlAliases = []string{
	"imageurl", "imagelink", "imagepath", "images", "image",
	"img",
	"photourl", "photos", "photo",
	"pictures", "picture",
	"url", "link",
}

// normalizeHeader lowercases and drops whitespace and punctuation
func normalizeHeader(h string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(h) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// isIdentifierColumn reports whether a header names an ID rather than a name,
// e.g. "Merchant ID" or "vendor_id".
func isIdentifierColumn(h string) bool {
	norm := normalizeHeader(h)
	if strings.Contains(norm, "name") {
		return false
	}
	if strings.HasSuffix(norm, "id") || strings.HasSuffix(norm, "ids") {
		return true
	}
	for _, word := range strings.FieldsFunc(strings.ToLower(h), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if word == "id" || word == "ids" {
			return true
		}
	}
	return false
}

func matchAlias(norm string, aliases []string) (string, bool) {
	if norm == "" {
		return "", false
	}
	for _, alias := range aliases {
		if strings.Contains(norm, alias) {
			return alias, true
		}
	}
	return "", false
}

// ResolveColumns finds the merchant name and image URL columns in a header row.
// The leftmost header matching an alias wins for each role. Resolution never falls
// back to column position: a role without a match is a MissingColumnError, and a
// single column winning both roles is ErrAmbiguousSchema.
func ResolveColumns(header []string) (Columns, error) {
	nameIdx, urlIdx := -1, -1

	for i, h := range header {
		norm := normalizeHeader(h)
		if nameIdx == -1 && !isIdentifierColumn(h) {
			if _, ok := matchAlias(norm, nameAliases); ok {
				nameIdx = i
			}
		}
		if urlIdx == -1 {
			if _, ok := matchAlias(norm, urlAliases); ok {
				urlIdx = i
			}
		}
	}

	if nameIdx == -1 {
		return Columns{}, &MissingColumnError{Role: RoleName, Header: header}
	}
	if urlIdx == -1 {
		return Columns{}, &MissingColumnError{Role: RoleURL, Header: header}
	}
	if nameIdx == urlIdx {
		return Columns{}, fmt.Errorf("%w: column %q matches both %s and %s", ErrAmbiguousSchema, header[nameIdx], RoleName, RoleURL)
	}

	return Columns{
		Name:       nameIdx,
		URL:        urlIdx,
		NameHeader: strings.TrimSpace(header[nameIdx]),
		URLHeader:  strings.TrimSpace(header[urlIdx]),
	}, nil
}
