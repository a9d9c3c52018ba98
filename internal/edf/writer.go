package edf

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Write encodes f as EDF+C. Every data signal must have the same number of
// samples; the last data record is padded with zeros. Samples in volts are
// converted to each signal's PhysicalDimension, DefaultDimension when blank.
// Physical ranges left at zero are derived from the converted samples.
func Write(w io.Writer, f *File) error {
	if len(f.Signals) == 0 {
		return fmt.Errorf("no data signals to write")
	}
	if f.Header.RecordDuration <= 0 {
		return fmt.Errorf("record duration must be positive, got %g", f.Header.RecordDuration)
	}

	n := len(f.Signals[0].Samples)
	signals := make([]Signal, len(f.Signals))
	for i, s := range f.Signals {
		if len(s.Samples) != n {
			return fmt.Errorf("signal %q has %d samples, expected %d", s.Label, len(s.Samples), n)
		}
		if s.SamplesPerRecord <= 0 {
			return fmt.Errorf("signal %q has %d samples per record", s.Label, s.SamplesPerRecord)
		}
		if s.SamplesPerRecord != f.Signals[0].SamplesPerRecord {
			return fmt.Errorf("signal %q: mixed samples per record are not supported", s.Label)
		}
		signals[i] = withPhysicalRange(inHeaderUnit(s))
	}

	spr := signals[0].SamplesPerRecord
	records := max((n+spr-1)/spr, 1)

	talRecords := buildTALRecords(f.Annotations, records, f.Header.RecordDuration)
	talBytes := 0
	for _, tal := range talRecords {
		talBytes = max(talBytes, len(tal))
	}
	annotationSignal := Signal{
		Label:            AnnotationLabel,
		PhysicalMin:      -1,
		PhysicalMax:      1,
		DigitalMin:       digitalMin,
		DigitalMax:       digitalMax,
		SamplesPerRecord: (talBytes + 1) / 2,
	}
	all := append(signals, annotationSignal)

	bw := bufio.NewWriter(w)
	hw := &fieldWriter{w: bw}

	start := f.Header.StartTime
	hw.text(f.Header.Version, 8)
	hw.text(f.Header.PatientID, 80)
	hw.text(f.Header.RecordingID, 80)
	hw.text(start.Format("02.01.06"), 8)
	hw.text(start.Format("15.04.05"), 8)
	hw.text(strconv.Itoa(fixedHeaderBytes*(len(all)+1)), 8)
	hw.text(f.Header.Reserved, 44)
	hw.text(strconv.Itoa(records), 8)
	hw.text(formatNumber(f.Header.RecordDuration, 8), 8)
	hw.text(strconv.Itoa(len(all)), 4)

	for _, s := range all {
		hw.text(s.Label, 16)
	}
	for _, s := range all {
		hw.text(s.TransducerType, 80)
	}
	for _, s := range all {
		hw.text(s.PhysicalDimension, 8)
	}
	for _, s := range all {
		hw.text(formatNumber(s.PhysicalMin, 8), 8)
	}
	for _, s := range all {
		hw.text(formatNumber(s.PhysicalMax, 8), 8)
	}
	for _, s := range all {
		hw.text(strconv.Itoa(s.DigitalMin), 8)
	}
	for _, s := range all {
		hw.text(strconv.Itoa(s.DigitalMax), 8)
	}
	for _, s := range all {
		hw.text(s.Prefiltering, 80)
	}
	for _, s := range all {
		hw.text(strconv.Itoa(s.SamplesPerRecord), 8)
	}
	for range all {
		hw.text("", 32)
	}
	if hw.err != nil {
		return hw.err
	}

	sample := make([]byte, 2)
	for rec := 0; rec < records; rec++ {
		for _, s := range signals {
			for j := 0; j < spr; j++ {
				idx := rec*spr + j
				var digital int16
				if idx < n {
					digital = toDigital(s, s.Samples[idx])
				}
				binary.LittleEndian.PutUint16(sample, uint16(digital))
				if _, err := bw.Write(sample); err != nil {
					return err
				}
			}
		}

		tal := make([]byte, 2*annotationSignal.SamplesPerRecord)
		copy(tal, talRecords[rec])
		if _, err := bw.Write(tal); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// buildTALRecords places each annotation in the record containing its onset
func buildTALRecords(annotations []Annotation, records int, duration float64) [][]byte {
	out := make([][]byte, records)
	for rec := range out {
		out[rec] = appendTimekeeping(nil, float64(rec)*duration)
	}
	for _, a := range annotations {
		rec := int(math.Floor(a.Onset / duration))
		rec = min(max(rec, 0), records-1)
		out[rec] = appendTAL(out[rec], a)
	}
	return out
}

// inHeaderUnit returns s with its samples converted from volts to the
// header unit.
func inHeaderUnit(s Signal) Signal {
	if strings.TrimSpace(s.PhysicalDimension) == "" {
		s.PhysicalDimension = DefaultDimension
	}
	unit := unitScale(s.PhysicalDimension)
	scaled := make([]float64, len(s.Samples))
	for i, v := range s.Samples {
		scaled[i] = v / unit
	}
	s.Samples = scaled
	return s
}

// withPhysicalRange fills in a physical range that survives the 8-character
// header field without clipping any sample.
func withPhysicalRange(s Signal) Signal {
	if s.PhysicalMin == 0 && s.PhysicalMax == 0 {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, v := range s.Samples {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		if len(s.Samples) == 0 {
			lo, hi = -1, 1
		}
		s.PhysicalMin, s.PhysicalMax = lo, hi
	}
	if s.PhysicalMax <= s.PhysicalMin {
		s.PhysicalMax = s.PhysicalMin + 1
	}
	if s.DigitalMin == 0 && s.DigitalMax == 0 {
		s.DigitalMin, s.DigitalMax = digitalMin, digitalMax
	}

	s.PhysicalMin = boundFor(s.PhysicalMin, -1)
	s.PhysicalMax = boundFor(s.PhysicalMax, 1)
	return s
}

// boundFor returns the value that the header will actually carry for v,
// moved away from zero in direction dir until it still encloses v.
func boundFor(v float64, dir float64) float64 {
	step := 0.0
	for i := 0; i < 64; i++ {
		candidate := v + dir*step
		parsed, err := strconv.ParseFloat(formatNumber(candidate, 8), 64)
		if err == nil && dir*(parsed-v) >= 0 {
			return parsed
		}
		step = 2*step + math.Max(math.Abs(v)*1e-6, 1e-12)
	}
	return v
}

func toDigital(s Signal, physical float64) int16 {
	scale := float64(s.DigitalMax-s.DigitalMin) / (s.PhysicalMax - s.PhysicalMin)
	d := math.Round((physical-s.PhysicalMin)*scale) + float64(s.DigitalMin)
	d = math.Min(math.Max(d, float64(s.DigitalMin)), float64(s.DigitalMax))
	return int16(d)
}

// formatNumber renders v in at most width characters, dropping precision as needed
func formatNumber(v float64, width int) string {
	if s := strconv.FormatFloat(v, 'f', -1, 64); len(s) <= width {
		return s
	}
	for prec := width; prec > 0; prec-- {
		s := strconv.FormatFloat(v, 'g', prec, 64)
		if len(s) <= width {
			return s
		}
	}
	return strconv.FormatFloat(v, 'g', 1, 64)
}

// fieldWriter writes space-padded fixed-width ASCII fields
type fieldWriter struct {
	w   io.Writer
	err error
}

func (fw *fieldWriter) text(s string, width int) {
	if fw.err != nil {
		return
	}
	if len(s) > width {
		fw.err = fmt.Errorf("header field %q exceeds %d characters", s, width)
		return
	}
	_, fw.err = io.WriteString(fw.w, s+strings.Repeat(" ", width-len(s)))
}
