package icommands

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/marmos91/dtool-irods/pkg/remote"
)

// Parser turns icommands output into structured values, one method per
// output shape.
//
// The formats are a contract with one icommands release line. A format
// change must fail with remote.ErrParse rather than produce wrong values.
type Parser interface {
	// Listing parses the output of `ils <collection>`.
	Listing(out string) ([]remote.Entry, error)

	// MetaValue parses the output of `imeta ls -d <object> <key>`.
	MetaValue(out string) (string, error)

	// Checksum parses the output of `ichksum <object>`.
	Checksum(out string) (string, error)

	// Stat parses the output of `ils -l <object>`.
	Stat(out string) (remote.Stat, error)
}

// statTimeLayout is the timestamp format of `ils -l`.
const statTimeLayout = "2006-01-02.15:04"

// ParserV4 parses icommands 4.x output.
type ParserV4 struct {
	// Location is the timezone `ils -l` timestamps are written in. The
	// icommands print the server's local time without a zone. Nil means
	// time.Local.
	Location *time.Location
}

var _ Parser = ParserV4{}

func (p ParserV4) location() *time.Location {
	if p.Location == nil {
		return time.Local
	}
	return p.Location
}

// Listing drops the header line ("/zone/coll:") and returns one entry per
// remaining line. Sub-collections are printed as "C- /zone/coll/sub" and are
// returned by base name.
//
//	/tempZone/home/rods/ds/data:
//	  8797e2d671a03a247f46656451e6952a15ba8179
//	  C- /tempZone/home/rods/ds/data/sub
func (p ParserV4) Listing(out string) ([]remote.Entry, error) {
	lines := splitLines(out)
	if len(lines) == 0 {
		return nil, &remote.ParseError{Shape: "listing", Reason: "empty output", Output: out}
	}
	if !strings.HasSuffix(strings.TrimSpace(lines[0]), ":") {
		return nil, &remote.ParseError{Shape: "listing", Reason: "missing collection header", Output: out}
	}

	entries := make([]remote.Entry, 0, len(lines)-1)
	for _, line := range lines[1:] {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if sub, ok := strings.CutPrefix(line, "C- "); ok {
			entries = append(entries, remote.Entry{Name: path.Base(strings.TrimSpace(sub)), IsCollection: true})
			continue
		}
		entries = append(entries, remote.Entry{Name: line})
	}
	return entries, nil
}

// MetaValue returns the value of the first AVU in the listing.
//
//	AVUs defined for dataObj /tempZone/home/rods/ds/data/8797e2...:
//	attribute: handle
//	value: dir/x.txt
//	units:
//
// The value is everything after the "value:" label, so values containing
// spaces survive. iRODS prints "None" in place of the AVUs when the key is
// not set, which is reported as remote.ErrNotFound.
func (p ParserV4) MetaValue(out string) (string, error) {
	lines := splitLines(out)
	if len(lines) >= 2 && strings.TrimSpace(lines[1]) == "None" {
		return "", fmt.Errorf("metadata: %w", remote.ErrNotFound)
	}
	if len(lines) < 3 {
		return "", &remote.ParseError{Shape: "metadata", Reason: "fewer than 3 lines", Output: out}
	}

	value, ok := strings.CutPrefix(strings.TrimSpace(lines[2]), "value:")
	if !ok {
		return "", &remote.ParseError{Shape: "metadata", Reason: `third line has no "value:" label`, Output: out}
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", &remote.ParseError{Shape: "metadata", Reason: "empty value", Output: out}
	}
	return value, nil
}

// Checksum returns the md5 digest from the first line. iRODS prints md5
// digests as bare hex or with an "md5:" tag; any other tag (e.g. "sha2:"
// for base64 SHA-256) fails with remote.ErrUnsupportedDigest.
//
//	    x.txt    b1946ac92492d2347c6235b4d2611184
//	Total checksum performed = 1, Failed checksum = 0
func (p ParserV4) Checksum(out string) (string, error) {
	lines := splitLines(out)
	if len(lines) == 0 {
		return "", &remote.ParseError{Shape: "checksum", Reason: "empty output", Output: out}
	}

	fields := strings.Fields(lines[0])
	if len(fields) < 2 {
		return "", &remote.ParseError{Shape: "checksum", Reason: "fewer than 2 fields", Output: out}
	}

	digest := fields[1]
	if algo, after, ok := strings.Cut(digest, ":"); ok {
		if !strings.EqualFold(algo, "md5") {
			return "", fmt.Errorf("checksum %s: %w: %s", fields[0], remote.ErrUnsupportedDigest, algo)
		}
		digest = after
	}
	if digest == "" {
		return "", &remote.ParseError{Shape: "checksum", Reason: "empty digest", Output: out}
	}
	if !isMD5Hex(digest) {
		return "", &remote.ParseError{Shape: "checksum", Reason: "digest is not md5 hex", Output: out}
	}
	return strings.ToLower(digest), nil
}

func isMD5Hex(s string) bool {
	b, err := hex.DecodeString(s)
	return err == nil && len(b) == md5.Size
}

// Stat returns the size and modification time from the first line.
//
//	  rods              0 demoResc           12 2017-09-26.10:39 & 8797e2...
//
// The 4th field is the size and the 5th the timestamp, which is interpreted
// in p.Location and returned in UTC.
func (p ParserV4) Stat(out string) (remote.Stat, error) {
	lines := splitLines(out)
	if len(lines) == 0 {
		return remote.Stat{}, &remote.ParseError{Shape: "stat", Reason: "empty output", Output: out}
	}

	fields := strings.Fields(lines[0])
	if len(fields) < 5 {
		return remote.Stat{}, &remote.ParseError{Shape: "stat", Reason: "fewer than 5 fields", Output: out}
	}

	size, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil || size < 0 {
		return remote.Stat{}, &remote.ParseError{Shape: "stat", Reason: fmt.Sprintf("invalid size %q", fields[3]), Output: out}
	}

	mtime, err := time.ParseInLocation(statTimeLayout, fields[4], p.location())
	if err != nil {
		return remote.Stat{}, &remote.ParseError{Shape: "stat", Reason: fmt.Sprintf("invalid timestamp %q", fields[4]), Output: out}
	}

	return remote.Stat{Size: size, ModTime: mtime.UTC()}, nil
}

// splitLines splits out into lines, dropping the trailing empty line left by
// a final newline.
func splitLines(out string) []string {
	out = strings.TrimRight(strings.ReplaceAll(out, "\r\n", "\n"), "\n")
	if strings.TrimSpace(out) == "" {
		return nil
	}
	return strings.Split(out, "\n")
}
