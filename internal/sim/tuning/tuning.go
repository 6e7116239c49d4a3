package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz int     `yaml:"tick_rate_hz"`
	GridSize   [3]int  `yaml:"grid_size"`
	CellSizeM  float64 `yaml:"cell_size_m"`

	OriginYawDeg float64    `yaml:"origin_yaw_deg"`
	OriginPos    [3]float64 `yaml:"origin_pos"`

	UndoHistoryCap     int `yaml:"undo_history_cap"`
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks"`
	ActMaxPerTick      int `yaml:"act_max_per_tick"`
}

func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:    "1.0",
		TickRateHz:         30,
		GridSize:           [3]int{6, 4, 10},
		CellSizeM:          0.5,
		UndoHistoryCap:     0,
		SnapshotEveryTicks: 1800,
		ActMaxPerTick:      16,
	}
}
