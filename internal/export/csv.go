// Package export renders labeled recordings into lightweight downstream formats.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/chrissnell/ecogmark/internal/types"
)

// DefaultChannelNames are the electrode labels of the standard montage
var DefaultChannelNames = [types.ChannelCount]string{"FrL", "FrR", "OcR"}

// WriteCSV writes one row per sample: the channel amplitudes followed by the
// integer class.
func WriteCSV(w io.Writer, rec *types.Recording, names [types.ChannelCount]string) error {
	cw := csv.NewWriter(w)

	header := append(names[:], "Class")
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	row := make([]string, types.ChannelCount+1)
	for i := 0; i < rec.Len(); i++ {
		s := rec.Sample(i)
		for c, v := range s.Channels {
			row[c] = strconv.FormatFloat(v, 'e', 18, 64)
		}
		row[types.ChannelCount] = strconv.Itoa(int(s.Label))
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write sample %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// ReadCSV parses the format produced by WriteCSV back into a recording and
// returns the channel names from its header
func ReadCSV(r io.Reader, rate float64) (*types.Recording, [types.ChannelCount]string, error) {
	var names [types.ChannelCount]string

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = types.ChannelCount + 1

	header, err := cr.Read()
	if err != nil {
		return nil, names, fmt.Errorf("failed to read header: %w", err)
	}
	copy(names[:], header)
	cr.ReuseRecord = true

	var samples []types.Sample
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, names, err
		}

		var s types.Sample
		for c := 0; c < types.ChannelCount; c++ {
			s.Channels[c], err = strconv.ParseFloat(row[c], 64)
			if err != nil {
				return nil, names, fmt.Errorf("line %d: %w", line, err)
			}
		}
		v, err := strconv.Atoi(row[types.ChannelCount])
		if err != nil {
			return nil, names, fmt.Errorf("line %d: %w", line, err)
		}
		if s.Label, err = types.ClassFromInt(v); err != nil {
			return nil, names, fmt.Errorf("line %d: %w", line, err)
		}
		samples = append(samples, s)
	}

	return types.NewRecording(rate, samples), names, nil
}
