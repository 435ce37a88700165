package printfiles

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
)

// Archive entries of a .3mf job file.
const (
	sliceInfoEntry = "Metadata/slice_info.config"
	fileExtension  = ".3mf"
)

var plateNumber = regexp.MustCompile(`plate_(\d+)`)

// EnsureSuffix appends suffix unless name already ends with it (case-insensitive).
func EnsureSuffix(name, suffix string) string {
	if name == "" || strings.HasSuffix(strings.ToLower(name), strings.ToLower(suffix)) {
		return name
	}
	return name + suffix
}

// CandidatePaths returns where a job may be stored, in lookup order:
// the slicer upload cache, then the printer's own storage.
func CandidatePaths(subtask string) []string {
	name := EnsureSuffix(strings.TrimSpace(subtask), fileExtension)
	return []string{
		path.Join("/cache", name),
		path.Join("/", name),
	}
}

// thumbnailEntry picks the plate preview matching the file name; plate 1 by default.
func thumbnailEntry(fileName string) string {
	if m := plateNumber.FindStringSubmatch(path.Base(fileName)); m != nil {
		return "Metadata/plate_" + m[1] + ".png"
	}
	return "Metadata/plate_1.png"
}

// ThumbnailFromArchive extracts the plate preview from a .3mf archive.
func ThumbnailFromArchive(data []byte, fileName string) ([]byte, error) {
	entry := thumbnailEntry(fileName)
	b, err := readEntry(data, entry)
	if errors.Is(err, errEntryMissing) {
		return nil, fmt.Errorf("%w: %s", ErrNoThumbnail, entry)
	}
	return b, err
}

// WeightFromArchive returns the used_g attribute of the first filament in
// the slicer summary, as written by the slicer.
func WeightFromArchive(data []byte) (string, error) {
	b, err := readEntry(data, sliceInfoEntry)
	if errors.Is(err, errEntryMissing) {
		return "", fmt.Errorf("%w: %s missing", ErrNoWeight, sliceInfoEntry)
	}
	if err != nil {
		return "", err
	}

	dec := xml.NewDecoder(bytes.NewReader(b))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return "", ErrNoWeight
		}
		if err != nil {
			return "", fmt.Errorf("parsing %s: %w", sliceInfoEntry, err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "filament" {
			continue
		}
		for _, attr := range start.Attr {
			if attr.Name.Local == "used_g" {
				return attr.Value, nil
			}
		}
		return "", ErrNoWeight
	}
}

var errEntryMissing = errors.New("entry missing")

func readEntry(data []byte, name string) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	f, err := zr.Open(name)
	if err != nil {
		return nil, errEntryMissing
	}
	defer f.Close()

	b, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return b, nil
}
