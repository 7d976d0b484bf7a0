// Package persistence saves records the archiver could not store to a local
// spool directory, one gzipped JSON file per record.
package persistence

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"regexp"
	"time"
)

// validName matches the datatype, subtest and uuid components of a file path.
var validName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidName reports whether s can be used as a component of a spool file
// path.
func ValidName(s string) bool {
	return validName.MatchString(s)
}

// DataFile is a file written to the spool.
type DataFile struct {
	// Prefix is the spool directory.
	Prefix   string
	Datatype string
	Subtest  string
	UUID     string
	// Path is the full path of the file.
	Path string
	// Size is the size of the uncompressed JSON content.
	Size int
}

func newPath(datadir, datatype, subtest, uuid string, timestamp time.Time) (string, error) {
	for _, name := range []string{datatype, subtest, uuid} {
		if !ValidName(name) {
			return "", fmt.Errorf("invalid path component %q", name)
		}
	}
	dir := path.Join(datadir, datatype, timestamp.Format("2006/01/02"))
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return "", err
	}
	return path.Join(dir, datatype+"-"+subtest+"-"+
		timestamp.Format("20060102T150405.000000000Z")+"."+uuid+".json.gz"), nil
}

// WriteDataFile writes a gzipped JSON representation of data to a new file
// under datadir/datatype/<yyyy>/<mm>/<dd>/. datatype, subtest and uuid may
// only contain letters, digits, '-' and '_'.
func WriteDataFile(datadir, datatype, subtest, uuid string, data any) (*DataFile, error) {
	content, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	filepath, err := newPath(datadir, datatype, subtest, uuid, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	fp, err := os.OpenFile(filepath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, err
	}
	writer, err := gzip.NewWriterLevel(fp, gzip.BestSpeed)
	if err != nil {
		fp.Close()
		return nil, err
	}
	if _, err = writer.Write(content); err != nil {
		writer.Close()
		fp.Close()
		return nil, err
	}
	if err = writer.Close(); err != nil {
		fp.Close()
		return nil, err
	}
	if err = fp.Close(); err != nil {
		return nil, err
	}
	return &DataFile{
		Prefix:   datadir,
		Datatype: datatype,
		Subtest:  subtest,
		UUID:     uuid,
		Path:     filepath,
		Size:     len(content),
	}, nil
}
