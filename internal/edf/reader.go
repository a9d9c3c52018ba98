package edf

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

const fixedHeaderBytes = 256

// Read decodes a complete EDF or EDF+ file
func Read(r io.Reader) (*File, error) {
	br := bufio.NewReader(r)

	fixed := make([]byte, fixedHeaderBytes)
	if _, err := io.ReadFull(br, fixed); err != nil {
		return nil, fmt.Errorf("%w: reading fixed header: %v", ErrTruncated, err)
	}
	fr := &fieldReader{buf: fixed}

	f := &File{}
	f.Header.Version = fr.text(8)
	f.Header.PatientID = fr.text(80)
	f.Header.RecordingID = fr.text(80)
	startDate := fr.text(8)
	startTime := fr.text(8)
	headerBytes := fr.int(8)
	f.Header.Reserved = fr.text(44)
	f.Header.DataRecords = fr.int(8)
	f.Header.RecordDuration = fr.float(8)
	ns := fr.int(4)
	if fr.err != nil {
		return nil, fr.err
	}
	if ns <= 0 || headerBytes != fixedHeaderBytes*(ns+1) {
		return nil, fmt.Errorf("%w: %d signals with %d header bytes", ErrInvalidHeader, ns, headerBytes)
	}
	f.Header.StartTime = parseStart(startDate, startTime)

	sigHeader := make([]byte, fixedHeaderBytes*ns)
	if _, err := io.ReadFull(br, sigHeader); err != nil {
		return nil, fmt.Errorf("%w: reading signal headers: %v", ErrTruncated, err)
	}
	signals, err := parseSignalHeaders(sigHeader, ns)
	if err != nil {
		return nil, err
	}

	data, err := io.ReadAll(br)
	if err != nil {
		return nil, fmt.Errorf("reading data records: %w", err)
	}

	recordSize := 0
	for _, s := range signals {
		recordSize += 2 * s.SamplesPerRecord
	}
	if recordSize == 0 {
		return nil, fmt.Errorf("%w: empty data record", ErrInvalidHeader)
	}
	records := f.Header.DataRecords
	if records < 0 {
		records = len(data) / recordSize
		f.Header.DataRecords = records
	}
	if len(data) < records*recordSize {
		return nil, fmt.Errorf("%w: have %d bytes for %d records of %d bytes", ErrTruncated, len(data), records, recordSize)
	}

	annotationIdx := -1
	for i, s := range signals {
		if s.Label == AnnotationLabel {
			annotationIdx = i
			continue
		}
		signals[i].Samples = make([]float64, 0, records*s.SamplesPerRecord)
	}

	offset := 0
	for rec := 0; rec < records; rec++ {
		for i := range signals {
			s := &signals[i]
			n := 2 * s.SamplesPerRecord
			chunk := data[offset : offset+n]
			offset += n

			if i == annotationIdx {
				annotations, err := parseTALs(chunk)
				if err != nil {
					return nil, fmt.Errorf("record %d: %w", rec, err)
				}
				f.Annotations = append(f.Annotations, annotations...)
				continue
			}

			scale := (s.PhysicalMax - s.PhysicalMin) / float64(s.DigitalMax-s.DigitalMin)
			unit := unitScale(s.PhysicalDimension)
			for j := 0; j < s.SamplesPerRecord; j++ {
				digital := int16(binary.LittleEndian.Uint16(chunk[2*j:]))
				physical := s.PhysicalMin + float64(int(digital)-s.DigitalMin)*scale
				s.Samples = append(s.Samples, physical*unit)
			}
		}
	}

	for i, s := range signals {
		if i != annotationIdx {
			f.Signals = append(f.Signals, s)
		}
	}
	return f, nil
}

func parseSignalHeaders(buf []byte, ns int) ([]Signal, error) {
	fr := &fieldReader{buf: buf}
	signals := make([]Signal, ns)

	for i := range signals {
		signals[i].Label = fr.text(16)
	}
	for i := range signals {
		signals[i].TransducerType = fr.text(80)
	}
	for i := range signals {
		signals[i].PhysicalDimension = fr.text(8)
	}
	for i := range signals {
		signals[i].PhysicalMin = fr.float(8)
	}
	for i := range signals {
		signals[i].PhysicalMax = fr.float(8)
	}
	for i := range signals {
		signals[i].DigitalMin = fr.int(8)
	}
	for i := range signals {
		signals[i].DigitalMax = fr.int(8)
	}
	for i := range signals {
		signals[i].Prefiltering = fr.text(80)
	}
	for i := range signals {
		signals[i].SamplesPerRecord = fr.int(8)
	}
	for i := 0; i < ns; i++ {
		fr.text(32)
	}
	if fr.err != nil {
		return nil, fr.err
	}

	for _, s := range signals {
		if s.DigitalMax <= s.DigitalMin {
			return nil, fmt.Errorf("%w: signal %q digital range [%d,%d]", ErrInvalidHeader, s.Label, s.DigitalMin, s.DigitalMax)
		}
		if s.SamplesPerRecord < 0 {
			return nil, fmt.Errorf("%w: signal %q has %d samples per record", ErrInvalidHeader, s.Label, s.SamplesPerRecord)
		}
	}
	return signals, nil
}

// parseStart interprets the dd.mm.yy / hh.mm.ss header fields. Years 85-99
// are 19xx, everything else 20xx. Unparseable values give the zero time.
func parseStart(date, clock string) time.Time {
	t, err := time.Parse("02.01.06 15.04.05", date+" "+clock)
	if err != nil {
		return time.Time{}
	}
	if t.Year() < 1985 && t.Year() >= 1969 {
		t = t.AddDate(100, 0, 0)
	}
	return t
}

// fieldReader consumes fixed-width ASCII header fields, remembering the
// first conversion error.
type fieldReader struct {
	buf []byte
	pos int
	err error
}

func (fr *fieldReader) text(width int) string {
	if fr.pos+width > len(fr.buf) {
		if fr.err == nil {
			fr.err = fmt.Errorf("%w: field at offset %d overruns header", ErrInvalidHeader, fr.pos)
		}
		return ""
	}
	s := strings.TrimSpace(string(fr.buf[fr.pos : fr.pos+width]))
	fr.pos += width
	return s
}

func (fr *fieldReader) int(width int) int {
	s := fr.text(width)
	v, err := strconv.Atoi(s)
	if err != nil && fr.err == nil {
		fr.err = fmt.Errorf("%w: %q is not an integer", ErrInvalidHeader, s)
	}
	return v
}

func (fr *fieldReader) float(width int) float64 {
	s := fr.text(width)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil && fr.err == nil {
		fr.err = fmt.Errorf("%w: %q is not a number", ErrInvalidHeader, s)
	}
	return v
}
