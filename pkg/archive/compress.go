package archive

import (
	"io"

	"emperror.dev/errors"
	"github.com/goccy/go-json"
	"github.com/klauspost/pgzip"
)

func compressDump(d *Dump, out io.Writer, level int) error {
	gz, err := pgzip.NewWriterLevel(out, level)
	if err != nil {
		return errors.WrapIf(err, "pgzip writer failed")
	}

	if err := json.NewEncoder(gz).Encode(d); err != nil {
		_ = gz.Close()
		return errors.WrapIf(err, "failed to encode dump")
	}
	return gz.Close()
}

// ReadDump decodes a dump produced by Export.
func ReadDump(r io.Reader) (*Dump, error) {
	gz, err := pgzip.NewReader(r)
	if err != nil {
		return nil, errors.WrapIf(err, "pgzip reader failed")
	}
	defer gz.Close()

	var d Dump
	if err := json.NewDecoder(gz).Decode(&d); err != nil {
		return nil, errors.WrapIf(err, "failed to decode dump")
	}
	return &d, nil
}
