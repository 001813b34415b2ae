package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"calreport/internal/apperr"
)

// Write encodes table as CSV: a header row followed by one line per record.
func Write(table Table, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(table.Header()); err != nil {
		return err
	}
	if err := cw.WriteAll(table.Records()); err != nil {
		return err
	}
	return cw.Error()
}

// WriteCSV writes table to path, replacing any existing file. The report is
// staged in a temporary file next to path so a failure leaves no partial output.
func WriteCSV(table Table, path string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return apperr.Wrap(apperr.ErrIO, err, fmt.Sprintf("create report %s", path))
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := Write(table, tmp); err != nil {
		tmp.Close()
		return apperr.Wrap(apperr.ErrIO, err, fmt.Sprintf("write report %s", path))
	}
	if err := tmp.Close(); err != nil {
		return apperr.Wrap(apperr.ErrIO, err, fmt.Sprintf("write report %s", path))
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return apperr.Wrap(apperr.ErrIO, err, fmt.Sprintf("write report %s", path))
	}
	if err := os.Rename(tmpName, path); err != nil {
		return apperr.Wrap(apperr.ErrIO, err, fmt.Sprintf("write report %s", path))
	}
	return nil
}
