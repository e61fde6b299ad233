package filestream

import (
	"errors"
	"math"
	"regexp"
	"strconv"
)

var rangeRegex = regexp.MustCompile(`^bytes=(\d+)-(\d*)`)

// ParseRange reads a "bytes=<start>-[<end>]" header. Headers that do not
// match, including suffix and multi-range forms, are reported as not ok
// and are served as if no range was requested.
func ParseRange(header string) (RangeSpec, bool) {
	match := rangeRegex.FindStringSubmatch(header)
	if match == nil {
		return RangeSpec{}, false
	}

	spec := RangeSpec{
		Start: parseOffset(match[1]),
		End:   -1,
	}

	if match[2] != "" {
		spec.End = parseOffset(match[2])
	}

	return spec, true
}

// Resolve fits spec into a file of the given size. Start and end are
// clamped to [0, size-1] independently; when that leaves start past end
// the range degrades to the first byte. size must be positive.
func Resolve(spec RangeSpec, size int64) ByteRange {
	last := size - 1

	start, end := spec.Start, spec.End
	if end < 0 || end > last {
		end = last
	}
	if start > last {
		start = last
	}
	if start < 0 {
		start = 0
	}

	if start > end {
		return ByteRange{Start: 0, End: 0}
	}

	return ByteRange{Start: start, End: end}
}

// digits only, so the single failure mode is overflow
func parseOffset(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if errors.Is(err, strconv.ErrRange) {
		return math.MaxInt64
	}
	return n
}
