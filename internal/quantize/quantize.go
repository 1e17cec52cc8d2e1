// Package quantize converts floating point coordinates into exact, hashable
// fixed-precision keys.
package quantize

import (
	"fmt"

	"github.com/mohammed-shakir/region-adjacency/internal/core/model"
)

// Scale is the fixed-point factor: 1e6 is ~0.11 m at the equator.
const Scale = 1e6

// Point is a quantized (longitude, latitude) pair. Two vertices meant to
// coincide compare equal as Points.
type Point struct {
	Lon int32
	Lat int32
}

func (p Point) String() string {
	return fmt.Sprintf("(%d,%d)", p.Lon, p.Lat)
}

// Quantize truncates each axis toward zero after scaling by Scale. Each axis
// must lie strictly within (-180, 180).
func Quantize(lon, lat float64) (Point, error) {
	x, err := Scalar(lon)
	if err != nil {
		return Point{}, fmt.Errorf("longitude: %w", err)
	}
	y, err := Scalar(lat)
	if err != nil {
		return Point{}, fmt.Errorf("latitude: %w", err)
	}
	return Point{Lon: x, Lat: y}, nil
}

// Scalar quantizes a single axis value.
func Scalar(v float64) (int32, error) {
	// written so that NaN fails the check too
	if !(v > -180 && v < 180) {
		return 0, fmt.Errorf("%w: %v not in (-180, 180)", model.ErrCoordinateOutOfRange, v)
	}
	return int32(v * Scale), nil
}

// Dequantize returns the degrees a Point stands for.
func Dequantize(p Point) (lon, lat float64) {
	return float64(p.Lon) / Scale, float64(p.Lat) / Scale
}
