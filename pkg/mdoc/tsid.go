package mdoc

import (
	"path/filepath"
	"strings"
	"unicode"
)

// TSPrefix is prepended to identifiers that would otherwise start with a digit.
const TSPrefix = "TS_"

// tsIDReplacements are applied in this order.
var tsIDReplacements = [][2]string{
	{"-", "_"},
	{".", ""},
	{"[", ""},
	{"]", ""},
}

// NormalizeTSID derives a tilt-series identifier that is safe to use as a
// table name from an mdoc (or image) file name.
func NormalizeTSID(name string) string {
	id, _ := NormalizeTSIDWithPrefix(name)
	return id
}

// NormalizeTSIDWithPrefix is NormalizeTSID that also reports whether the
// TS_ prefix had to be added.
func NormalizeTSIDWithPrefix(name string) (string, bool) {
	id := removeBaseExt(name)

	// TS_234.mrc.mdoc
	if i := strings.IndexByte(id, '.'); i >= 0 {
		id = id[:i]
	}
	if id == "" {
		return "", false
	}

	prefixed := false
	if startsWithDigit(id) {
		id = TSPrefix + id
		prefixed = true
	}

	for _, r := range tsIDReplacements {
		id = strings.ReplaceAll(id, r[0], r[1])
	}
	for strings.Contains(id, "__") {
		id = strings.ReplaceAll(id, "__", "_")
	}

	// "[1]abc" only exposes its digit once the brackets are gone.
	if startsWithDigit(id) {
		id = TSPrefix + id
		prefixed = true
	}
	return id, prefixed
}

func removeBaseExt(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func startsWithDigit(s string) bool {
	for _, r := range s {
		return unicode.IsDigit(r)
	}
	return false
}
