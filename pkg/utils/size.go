package utils

import (
	"strings"

	"emperror.dev/errors"
	"github.com/c2h5oh/datasize"
)

// ParseSize parses human byte sizes like "300MB" or "1.5GB". Units are binary.
func ParseSize(s string) (uint64, error) {
	size, err := datasize.ParseString(strings.TrimSpace(s))
	if err != nil {
		return 0, errors.WrapIfWithDetails(err, "invalid size", "size", s)
	}
	return size.Bytes(), nil
}

// FormatSize renders bytes with the largest unit that keeps the value above 1.
func FormatSize(bytes uint64) string {
	return datasize.ByteSize(bytes).HumanReadable()
}
