// Package loader reads memory access traces.
//
// A trace is a text file with one access per line:
//
//	<time> <pc> <addr> [R|W]
//
// Numbers are decimal or 0x-prefixed hex. The access kind defaults to R.
// Blank lines and everything after a '#' are ignored. Times must not
// decrease.
package loader

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Access is one memory access of a trace.
type Access struct {
	// Time is the time stamp of the access.
	Time int64
	// PC is the address of the instruction that made the access.
	PC uint64
	// Addr is the accessed data address.
	Addr uint64
	// Write is true for stores.
	Write bool
}

// String formats the access as a trace line.
func (a Access) String() string {
	kind := "R"
	if a.Write {
		kind = "W"
	}

	return fmt.Sprintf("%d 0x%x 0x%x %s", a.Time, a.PC, a.Addr, kind)
}

// Trace is a loaded access trace.
type Trace struct {
	// Path is the file the trace was read from, if any.
	Path string
	// Accesses are the accesses in time order.
	Accesses []Access
}

// Load reads the trace at path.
func Load(path string) (*Trace, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	defer func() { _ = f.Close() }()

	accesses, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return &Trace{Path: path, Accesses: accesses}, nil
}

// Parse reads a trace from r.
func Parse(r io.Reader) ([]Access, error) {
	var accesses []Access

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++

		a, ok, err := ParseLine(scanner.Text())
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if !ok {
			continue
		}

		if n := len(accesses); n > 0 && a.Time < accesses[n-1].Time {
			return nil, fmt.Errorf("line %d: time %d is before %d",
				lineNo, a.Time, accesses[n-1].Time)
		}

		accesses = append(accesses, a)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}

	return accesses, nil
}

// ParseLine parses one trace line. It returns false for blank and comment
// lines.
func ParseLine(line string) (Access, bool, error) {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Access{}, false, nil
	}

	if len(fields) < 3 || len(fields) > 4 {
		return Access{}, false, fmt.Errorf(
			"expected <time> <pc> <addr> [R|W], got %d fields", len(fields))
	}

	var (
		a   Access
		err error
	)

	a.Time, err = strconv.ParseInt(fields[0], 0, 64)
	if err != nil {
		return Access{}, false, fmt.Errorf("invalid time %q: %w", fields[0], err)
	}
	if a.Time < 0 {
		return Access{}, false, fmt.Errorf("negative time %d", a.Time)
	}

	a.PC, err = strconv.ParseUint(fields[1], 0, 64)
	if err != nil {
		return Access{}, false, fmt.Errorf("invalid pc %q: %w", fields[1], err)
	}

	a.Addr, err = strconv.ParseUint(fields[2], 0, 64)
	if err != nil {
		return Access{}, false, fmt.Errorf("invalid address %q: %w",
			fields[2], err)
	}

	if len(fields) == 4 {
		switch strings.ToUpper(fields[3]) {
		case "R":
		case "W":
			a.Write = true
		default:
			return Access{}, false, fmt.Errorf("invalid access kind %q",
				fields[3])
		}
	}

	return a, true, nil
}

// Write writes accesses to w in the trace format.
func Write(w io.Writer, accesses []Access) error {
	bw := bufio.NewWriter(w)

	for _, a := range accesses {
		if _, err := fmt.Fprintln(bw, a.String()); err != nil {
			return fmt.Errorf("failed to write trace: %w", err)
		}
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write trace: %w", err)
	}

	return nil
}
