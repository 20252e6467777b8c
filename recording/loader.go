// Package recording - Reads and writes captured camera records so a session can be replayed
// into the stage.
package recording

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Extension is the file extension of a captured record.
const Extension = ".cbor"

// File is one captured camera record.
type File struct {
	// Path is the path to the record.
	Path string
	// Data is the encoded record.
	Data []byte
	// Frame is the frame number parsed from the file name.
	Frame int
}

// Name returns the file name used for frame n.
func Name(n int) string {
	return fmt.Sprintf("frame-%d%s", n, Extension)
}

// LoadDirectory reads every frame-<n>.cbor record in dir, ordered by frame number. Other files
// are ignored.
//
// Arguments:
//   - dir: The capture directory.
//
// Returns:
//   - []File: The records in frame order.
//   - error: An error if the directory or a record cannot be read, or a record name carries no
//     frame number.
func LoadDirectory(dir string) ([]File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []File
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != Extension {
			continue
		}
		frame, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(entry.Name(), "frame-"), Extension))
		if err != nil {
			return nil, errors.Wrapf(err, "record %s", entry.Name())
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		files = append(files, File{Path: path, Data: data, Frame: frame})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Frame < files[j].Frame
	})
	return files, nil
}

// Save writes an encoded record as frame n of dir.
func Save(dir string, n int, data []byte) (string, error) {
	path := filepath.Join(dir, Name(n))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
