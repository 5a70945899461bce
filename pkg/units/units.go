// Package units converts the human-readable memory and CPU strings accepted
// on the command line into the byte and microsecond quantities the kernel
// cgroup v2 interface expects.
package units

import (
	"strconv"

	"github.com/c2h5oh/datasize"
	"github.com/pkg/errors"
)

// CgroupPeriod is the fixed cpu.max period, in microseconds, this runtime
// always requests. The kernel accepts other periods; we never vary it.
const CgroupPeriod = 100000

var multiplier = map[byte]uint64{
	'b': 1,
	'k': 1024,
	'm': 1024 * 1024,
	'g': 1024 * 1024 * 1024,
}

// ErrInvalidLimit is returned when a memory or CPU string cannot be parsed
// into a positive quantity.
var ErrInvalidLimit = errors.New("invalid limit")

// CPULimit is the cgroup v2 cpu.max representation: a quota and a period,
// both in microseconds.
type CPULimit struct {
	Quota  int64
	Period int64
}

// ParseMemory parses a string of the form "<decimal>[bkmg]" (suffix
// case-insensitive, empty suffix means bytes) into a byte count using binary
// multipliers. It fails with ErrInvalidLimit when the numeric part does not
// parse, the suffix is not one of b/k/m/g, or the value is not positive.
func ParseMemory(s string) (datasize.ByteSize, error) {
	if s == "" {
		return 0, errors.Wrap(ErrInvalidLimit, "empty memory limit")
	}

	numPart := s
	unit := byte('b')
	last := s[len(s)-1]
	if last < '0' || last > '9' {
		unit = lower(last)
		numPart = s[:len(s)-1]
	}

	mult, ok := multiplier[unit]
	if !ok {
		return 0, errors.Wrapf(ErrInvalidLimit, "unknown suffix %q in %q", string(last), s)
	}

	n, err := strconv.ParseInt(numPart, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidLimit, "non-numeric memory value %q", s)
	}
	if n <= 0 {
		return 0, errors.Wrapf(ErrInvalidLimit, "non-positive memory value %q", s)
	}

	return datasize.ByteSize(uint64(n) * mult), nil
}

// ParseCPU parses a decimal fraction of CPU cores (e.g. "0.5", "2") into a
// cgroup v2 cpu.max quota/period pair with the fixed 100000us period. Quota
// is round(cpus * period).
func ParseCPU(s string) (CPULimit, error) {
	if s == "" {
		return CPULimit{}, errors.Wrap(ErrInvalidLimit, "empty cpu limit")
	}

	cpus, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return CPULimit{}, errors.Wrapf(ErrInvalidLimit, "non-numeric cpu value %q", s)
	}
	if cpus <= 0 {
		return CPULimit{}, errors.Wrapf(ErrInvalidLimit, "non-positive cpu value %q", s)
	}

	quota := int64(cpus*CgroupPeriod + 0.5)
	return CPULimit{Quota: quota, Period: CgroupPeriod}, nil
}

func lower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}
