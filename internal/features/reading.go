// Package features defines the sensor reading shared by both spoilage pipelines
// and the sliding-window adapter that turns a variable-length reading stream into
// fixed-length model inputs.
package features

import (
	"fmt"
	"math"
	"strings"
)

// NumFeatures is the width of every reading vector.
const NumFeatures = 6

// Column indices of a reading vector. The order is part of the artifact contract.
const (
	IdxCrateTemp = iota
	IdxReeferTemp
	IdxHumidity
	IdxLocationTemp
	IdxTransitDuration
	IdxCropType
)

// Names lists the feature columns in vector order.
var Names = []string{
	"crate_temp",
	"reefer_temp",
	"humidity",
	"location_temp",
	"transit_duration",
	"crop_type_encoded",
}

// CropType is the categorical crop code the models were trained on.
type CropType int

const (
	CropLettuce CropType = iota
	CropTomato
	CropMango
	CropSpinach
)

// NumCropTypes is the number of crop codes the synthesizers draw from.
const NumCropTypes = 4

var cropNames = map[CropType]string{
	CropLettuce: "lettuce",
	CropTomato:  "tomato",
	CropMango:   "mango",
	CropSpinach: "spinach",
}

func (c CropType) String() string {
	if name, ok := cropNames[c]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether c is one of the trained crop codes.
func (c CropType) Valid() bool {
	return c >= 0 && c < NumCropTypes
}

// ParseCrop maps a crop name to its code.
func ParseCrop(name string) (CropType, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for code, cropName := range cropNames {
		if cropName == n {
			return code, nil
		}
	}
	return 0, fmt.Errorf("unknown crop type %q", name)
}

// Reading is one observation of a shipment. CrateTemp, ReeferTemp and Humidity
// hold NaN when the sensor dropped out.
type Reading struct {
	CrateTemp       float64
	ReeferTemp      float64
	Humidity        float64
	LocationTemp    float64
	TransitDuration float64
	CropType        CropType
}

// Vector returns the reading in feature order.
func (r Reading) Vector() []float64 {
	return []float64{
		r.CrateTemp,
		r.ReeferTemp,
		r.Humidity,
		r.LocationTemp,
		r.TransitDuration,
		float64(r.CropType),
	}
}

// HasMissing reports whether any sensor value dropped out.
func (r Reading) HasMissing() bool {
	return math.IsNaN(r.CrateTemp) || math.IsNaN(r.ReeferTemp) || math.IsNaN(r.Humidity)
}

// ReadingFromVector is the inverse of Vector.
func ReadingFromVector(v []float64) (Reading, error) {
	if len(v) != NumFeatures {
		return Reading{}, &ShapeError{Op: "reading", Got: len(v), Want: NumFeatures}
	}
	return Reading{
		CrateTemp:       v[IdxCrateTemp],
		ReeferTemp:      v[IdxReeferTemp],
		Humidity:        v[IdxHumidity],
		LocationTemp:    v[IdxLocationTemp],
		TransitDuration: v[IdxTransitDuration],
		CropType:        CropType(int(v[IdxCropType])),
	}, nil
}
