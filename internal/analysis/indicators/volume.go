package indicators

import (
	"fmt"

	"option-backtester/internal/models"
)

// VolumeRatio compares each bar's volume with its period moving average.
// Returns the moving average under "ma" and the ratio under "ratio"; a zero
// average reads a ratio of 1.
type VolumeRatio struct {
	period int
}

// NewVolumeRatio creates a new VolumeRatio indicator.
func NewVolumeRatio(period int) *VolumeRatio {
	return &VolumeRatio{period: period}
}

func (v *VolumeRatio) Name() string {
	return fmt.Sprintf("VolumeRatio_%d", v.period)
}

func (v *VolumeRatio) Period() int {
	return v.period
}

func (v *VolumeRatio) Calculate(candles []models.Candle) (map[string][]float64, error) {
	if v.period <= 0 {
		return nil, ErrInvalidPeriod
	}

	vols := volumes(candles)
	ma := rollingMean(vols, v.period)
	ratio := nanSlice(len(vols))
	for i := range vols {
		if !IsDefined(ma[i]) {
			continue
		}
		if ma[i] == 0 {
			ratio[i] = 1
			continue
		}
		ratio[i] = vols[i] / ma[i]
	}

	return map[string][]float64{
		"ma":    ma,
		"ratio": ratio,
	}, nil
}
