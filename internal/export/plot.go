package export

import (
	"math"

	"github.com/chrissnell/ecogmark/internal/types"
	"gonum.org/v1/gonum/stat"
)

// PlotData is the per-channel payload consumed by the signal viewer
type PlotData struct {
	FrL     []float64 `json:"FrL"`
	FrR     []float64 `json:"FrR"`
	OcR     []float64 `json:"OcR"`
	Classes []int     `json:"classes"`
}

// NewPlotData rounds amplitudes to six decimals to keep the payload small
func NewPlotData(rec *types.Recording) *PlotData {
	n := rec.Len()
	p := &PlotData{
		FrL:     make([]float64, n),
		FrR:     make([]float64, n),
		OcR:     make([]float64, n),
		Classes: make([]int, n),
	}
	for i := 0; i < n; i++ {
		s := rec.Sample(i)
		p.FrL[i] = round6(s.Channels[0])
		p.FrR[i] = round6(s.Channels[1])
		p.OcR[i] = round6(s.Channels[2])
		p.Classes[i] = int(s.Label)
	}
	return p
}

func round6(v float64) float64 {
	return math.RoundToEven(v*1e6) / 1e6
}

// Series is one downsampled channel with its time axis and class track
type Series struct {
	Name    string    `json:"name"`
	Time    []float64 `json:"time"`
	Values  []float64 `json:"values"`
	Classes []int     `json:"classes"`
}

// Downsample averages channel c and the time axis over blocks of factor
// samples and keeps the highest class in each block. A trailing partial
// block is dropped. Factors below 2 return the channel unchanged.
func Downsample(rec *types.Recording, c int, name string, factor int) *Series {
	n := rec.Len()
	if factor < 2 {
		factor = 1
	}
	blocks := n / factor

	s := &Series{
		Name:    name,
		Time:    make([]float64, blocks),
		Values:  make([]float64, blocks),
		Classes: make([]int, blocks),
	}
	values := rec.Channel(c)
	labels := rec.Labels()
	rate := rec.SamplingRate()

	for b := 0; b < blocks; b++ {
		lo, hi := b*factor, (b+1)*factor
		s.Values[b] = stat.Mean(values[lo:hi], nil)
		s.Time[b] = (float64(lo) + float64(factor-1)/2) / rate

		class := types.None
		for _, l := range labels[lo:hi] {
			if l > class {
				class = l
			}
		}
		s.Classes[b] = int(class)
	}
	return s
}
