package pagedstore

import (
	"errors"
	"fmt"
	"strings"
)

// sortKeySeparator joins the parts of a composite sort key. Key parts must
// never contain it, or range-scan bounds become ambiguous.
const sortKeySeparator = "#"

// ComposeSortKey joins the non-blank parts with "#" in the order given.
// Blank parts are skipped. The same function must be used for write-time key
// construction and read-time prefix bounds; if the part ordering differs
// between the two, range scans silently miss or include wrong rows.
func ComposeSortKey(parts ...string) string {
	kept := make([]string, 0, len(parts))

	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		kept = append(kept, p)
	}

	return strings.Join(kept, sortKeySeparator)
}

// composeSortKeyStrict is the write-time variant of [ComposeSortKey]. It
// rejects parts containing the separator and fully blank results, both of
// which would corrupt the key space.
func composeSortKeyStrict(parts []string) (string, error) {
	for _, p := range parts {
		if strings.Contains(p, sortKeySeparator) {
			return "", fmt.Errorf("sort key part %q cannot contain %q", p, sortKeySeparator)
		}
	}

	sk := ComposeSortKey(parts...)
	if sk == "" {
		return "", errors.New("sort key cannot be empty")
	}

	return sk, nil
}
