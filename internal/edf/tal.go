package edf

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

const (
	talSeparator = 0x14
	talDuration  = 0x15
	talEnd       = 0x00
)

// parseTALs decodes the time-stamped annotation lists of one data record.
// Timekeeping entries, which carry no text, produce no annotations.
func parseTALs(chunk []byte) ([]Annotation, error) {
	var annotations []Annotation

	for _, tal := range bytes.Split(chunk, []byte{talEnd}) {
		if len(tal) == 0 {
			continue
		}

		parts := bytes.Split(tal, []byte{talSeparator})
		onsetField, durationField, _ := strings.Cut(string(parts[0]), string(rune(talDuration)))

		onset, err := strconv.ParseFloat(onsetField, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad annotation onset %q", ErrInvalidHeader, onsetField)
		}
		var duration float64
		if durationField != "" {
			duration, err = strconv.ParseFloat(durationField, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: bad annotation duration %q", ErrInvalidHeader, durationField)
			}
		}

		for _, text := range parts[1:] {
			if len(text) == 0 {
				continue
			}
			annotations = append(annotations, Annotation{Onset: onset, Duration: duration, Text: string(text)})
		}
	}

	return annotations, nil
}

// appendTimekeeping writes the record-start TAL every annotation record begins with
func appendTimekeeping(buf []byte, recordStart float64) []byte {
	buf = append(buf, formatOnset(recordStart)...)
	return append(buf, talSeparator, talSeparator, talEnd)
}

func appendTAL(buf []byte, a Annotation) []byte {
	buf = append(buf, formatOnset(a.Onset)...)
	if a.Duration > 0 {
		buf = append(buf, talDuration)
		buf = strconv.AppendFloat(buf, a.Duration, 'f', -1, 64)
	}
	buf = append(buf, talSeparator)
	buf = append(buf, a.Text...)
	return append(buf, talSeparator, talEnd)
}

func formatOnset(seconds float64) string {
	s := strconv.FormatFloat(seconds, 'f', -1, 64)
	if !strings.HasPrefix(s, "-") {
		s = "+" + s
	}
	return s
}
