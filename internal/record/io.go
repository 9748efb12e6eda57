package record

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// maxLineSize bounds a single transcript line. Tool results routinely reach
// hundreds of KiB; 10MiB covers everything the host agent emits.
const maxLineSize = 10 * 1024 * 1024

// ParseWarning reports a line that could not be parsed. The offending record
// is still present in the sequence as a kind-unknown placeholder.
type ParseWarning struct {
	Line int
	Err  string
}

// Read streams newline-delimited records from r. Blank lines are skipped;
// malformed lines produce placeholder records and a warning rather than an
// error.
func Read(r io.Reader) (Sequence, []ParseWarning, error) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 64*1024)
	scanner.Buffer(buf, maxLineSize)

	var (
		seq      Sequence
		warnings []ParseWarning
		lineNum  int
	)
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		allBlank := true
		for _, c := range line {
			if c != ' ' && c != '\t' && c != '\r' {
				allBlank = false
				break
			}
		}
		if allBlank {
			continue
		}

		rec := ParseLine(line)
		if rec.IsParseError() {
			warnings = append(warnings, ParseWarning{Line: lineNum, Err: "invalid JSON, kept verbatim"})
		}
		seq = append(seq, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, warnings, fmt.Errorf("scanning transcript: %w", err)
	}
	return seq, warnings, nil
}

// ReadFile reads a transcript from disk.
func ReadFile(path string) (Sequence, []ParseWarning, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening transcript: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Write emits one record per line. Records the pipeline did not touch are
// written back verbatim; rewritten and synthetic records carry the compact
// serialization they were built with.
func Write(w io.Writer, seq Sequence) error {
	bw := bufio.NewWriter(w)
	for _, rec := range seq {
		if _, err := bw.Write(rec.Bytes()); err != nil {
			return fmt.Errorf("writing record: %w", err)
		}
		if err := bw.WriteByte('\n'); err != nil {
			return fmt.Errorf("writing record: %w", err)
		}
	}
	return bw.Flush()
}
