// Package dirlist parses captured DIR output into structured entries and
// caches successful parses keyed by the DOS directory argument, so that
// repeat listings of an unchanged directory don't cost another shell
// round-trip.
//
// Parse is a direct port of the original comftp.py's _parse_dir_file_result
// and _dir: same column offsets, same five-header/three-trailer skip, same
// strip-then-slice order (each line is trimmed whole before its columns
// are sliced, matching DOS DIR output that never has leading padding).
package dirlist

import (
	"strconv"
	"strings"
	"time"
)

// Entry is one parsed DIR line.
type Entry struct {
	Name    string
	IsDir   bool
	Size    int64
	ModTime time.Time
}

const dateLayout = "01-02-06"

// headerLines/trailerLines are DIR's fixed banner and summary line counts
// (volume label, serial number, blank, "Directory of ...", blank; then the
// last three lines of the capture, which hold the summary). Lines between
// them that don't parse as an entry, such as a blank line, are skipped.
const (
	headerLines  = 5
	trailerLines = 3
)

// Parse extracts Entry records from a captured DIR transcript. ok is false
// if the capture reports "File not found" or "Invalid drive" — an absent
// listing, distinct from an empty one.
func Parse(capture []byte) (entries []Entry, ok bool) {
	s := string(capture)
	if strings.Contains(s, "File not found") || strings.Contains(s, "Invalid drive") {
		return nil, false
	}

	rawLines := strings.Split(s, "\n")
	lines := make([]string, len(rawLines))
	for i, l := range rawLines {
		lines[i] = strings.TrimSpace(l)
	}

	start := headerLines
	end := len(lines) - trailerLines
	if end <= start {
		return nil, true
	}

	for _, line := range lines[start:end] {
		e, ok := parseLine(line)
		if !ok {
			continue
		}
		if e.Name == "." || e.Name == ".." {
			continue
		}
		entries = append(entries, e)
	}
	return entries, true
}

func parseLine(line string) (Entry, bool) {
	name := strings.TrimSpace(column(line, 0, 8))
	ext := strings.TrimSpace(column(line, 9, 12))
	sizeField := strings.TrimSpace(column(line, 13, 26))
	dateField := strings.TrimSpace(column(line, 26, 36))
	if name == "" {
		return Entry{}, false
	}
	if ext != "" {
		name = name + "." + ext
	}
	name = strings.ToLower(name)

	isDir := sizeField == "<DIR>"
	var size int64
	if !isDir {
		n, err := strconv.ParseInt(strings.ReplaceAll(sizeField, ",", ""), 10, 64)
		if err != nil {
			return Entry{}, false
		}
		size = n
	}

	modTime, err := time.Parse(dateLayout, dateField)
	if err != nil {
		return Entry{}, false
	}

	return Entry{Name: name, IsDir: isDir, Size: size, ModTime: modTime}, true
}

// column returns line[start:end], clipped to line's actual length; DIR
// lines are fixed-width but the trailing whitespace that would pad them
// out is already gone after TrimSpace.
func column(line string, start, end int) string {
	if start > len(line) {
		return ""
	}
	if end > len(line) {
		end = len(line)
	}
	return line[start:end]
}
