package utils

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// AreaKey - normalize an area name into a join key: NFC form, lower case, single
// underscores between words. "Ynys Môn" written with a combining circumflex and with a
// precomposed one produce the same key.
func AreaKey(name string) string {
	fields := strings.Fields(norm.NFC.String(name))
	return strings.ToLower(strings.Join(fields, "_"))
}
