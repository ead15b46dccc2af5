// Package soft parses GEO "family" SOFT archives into canonical series
// records. SOFT is a line-oriented key/value format: "^" lines open an entity
// block and "!" lines carry attributes of the current entity.
package soft

import (
	"bufio"
	"compress/flate"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Error kinds distinguished for the caller. A malformed archive means the
// bytes are not a valid gzip stream; a malformed table means the decompressed
// content is not valid SOFT.
var (
	ErrMalformedArchive = errors.New("not a valid gzip archive")
	ErrMalformedTable   = errors.New("malformed SOFT metadata")
)

// Metadata is the raw parsed form of a series block: attribute keys mapped to
// their values in file order. SOFT allows repeated keys.
type Metadata map[string][]string

const (
	seriesEntityPrefix    = "^SERIES"
	seriesAttributePrefix = "!Series_"
)

// ParseArchive decompresses and parses a gzip-compressed SOFT document.
func ParseArchive(path string) (Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedArchive, err)
	}
	defer gz.Close() //nolint:errcheck // read-only

	meta, err := ParseMetadata(gz)
	if err != nil {
		// Truncation and checksum errors surface through the reader
		// mid-stream rather than at open time.
		if isDecompressionError(err) {
			return nil, fmt.Errorf("%w: %s", ErrMalformedArchive, err)
		}
		return nil, err
	}
	return meta, nil
}

func isDecompressionError(err error) bool {
	var corrupt flate.CorruptInputError
	return errors.Is(err, gzip.ErrHeader) ||
		errors.Is(err, gzip.ErrChecksum) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.As(err, &corrupt)
}

// ParseMetadata reads SOFT text and collects the attributes of the series
// block. Sample and platform blocks in family files are skipped.
func ParseMetadata(r io.Reader) (Metadata, error) {
	meta := make(Metadata)
	inSeries := false

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		switch {
		case strings.HasPrefix(line, "^"):
			inSeries = strings.HasPrefix(line, seriesEntityPrefix)
		case inSeries && strings.HasPrefix(line, "!"):
			key, value, err := splitAttribute(line)
			if err != nil {
				return nil, err
			}
			meta[key] = append(meta[key], value)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read SOFT stream: %w", err)
	}
	if len(meta) == 0 {
		return nil, fmt.Errorf("%w: no series block found", ErrMalformedTable)
	}
	return meta, nil
}

func splitAttribute(line string) (string, string, error) {
	key, value, found := strings.Cut(line, " = ")
	if !found {
		return "", "", fmt.Errorf("%w: attribute line %q has no separator", ErrMalformedTable, line)
	}
	key = strings.TrimPrefix(key, seriesAttributePrefix)
	key = strings.TrimPrefix(key, "!")
	return key, value, nil
}
