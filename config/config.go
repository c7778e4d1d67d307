// Package config holds the layer names, columns and constants of the PTAL procedures.
// Defaults reproduce the values the procedures have always used; a YAML file may
// override any of them.
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type SAPLayer struct {
	Name string `yaml:"name" validate:"required"`
	// 缓冲区半径，同时也是网络距离阈值（米）
	Radius float64 `yaml:"radius" validate:"gt=0"`
}

type Layers struct {
	POI           string     `yaml:"poi" validate:"required"`
	Network       string     `yaml:"network" validate:"required"`
	SAPs          []SAPLayer `yaml:"saps" validate:"required,min=1,dive"`
	Relationships string     `yaml:"relationships" validate:"required"`
	Score         string     `yaml:"score" validate:"required"`
}

type Columns struct {
	POIID     string `yaml:"poiId" validate:"required"`
	RouteType string `yaml:"routeType" validate:"required"`
	Frequency string `yaml:"frequency" validate:"required"`
}

type Relationships struct {
	BufferSegments  int     `yaml:"bufferSegments" validate:"gte=1"`
	JoinMaxDistance float64 `yaml:"joinMaxDistance" validate:"gte=0"`
	Journal         string  `yaml:"journal"`
}

// Access is the mode and wait time policy of the attribute computer.
type Access struct {
	WalkSpeed          float64 `yaml:"walkSpeed" validate:"gt=0"`  // m/min
	CycleSpeed         float64 `yaml:"cycleSpeed" validate:"gt=0"` // m/min
	TrainWalkThreshold float64 `yaml:"trainWalkThreshold" validate:"gte=0"`
	TrainWaitOffset    float64 `yaml:"trainWaitOffset" validate:"gte=0"`
	OtherWaitOffset    float64 `yaml:"otherWaitOffset" validate:"gte=0"`
}

type Isochrone struct {
	ThrottleMS       int     `yaml:"throttleMS" validate:"gte=0"`
	ExtractTolerance float64 `yaml:"extractTolerance" validate:"gte=0"`
}

type Config struct {
	CRS           string        `yaml:"crs"`
	Layers        Layers        `yaml:"layers" validate:"required"`
	Columns       Columns       `yaml:"columns" validate:"required"`
	Relationships Relationships `yaml:"relationships"`
	Access        Access        `yaml:"access"`
	Isochrone     Isochrone     `yaml:"isochrone"`
}

func Default() Config {
	return Config{
		CRS: "EPSG:28992",
		Layers: Layers{
			POI:           "POI",
			Network:       "hartlijn_fiets_voet",
			SAPs:          []SAPLayer{{Name: "Lelylijn_sc1", Radius: 3000}},
			Relationships: "POI_SAP_Relationships",
			Score:         "PTAL",
		},
		Columns: Columns{
			POIID:     "fid",
			RouteType: "route_type",
			Frequency: "frequency",
		},
		Relationships: Relationships{
			BufferSegments:  5,
			JoinMaxDistance: 1,
		},
		Access: Access{
			WalkSpeed:          80,
			CycleSpeed:         300,
			TrainWalkThreshold: 800,
			TrainWaitOffset:    0.75,
			OtherWaitOffset:    2,
		},
		Isochrone: Isochrone{
			ThrottleMS:       100,
			ExtractTolerance: 1e-6,
		},
	}
}

// Load reads path over the defaults and validates the result. An empty path yields
// the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
