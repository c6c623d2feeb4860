package geo

import (
	"errors"
	"math"
	"testing"

	"fieldops/internal/types"
)

func TestDistanceKm_KnownDistances(t *testing.T) {
	tests := []struct {
		name      string
		a, b      types.Point
		wantKm    float64
		tolerance float64
	}{
		{
			name:      "same point",
			a:         types.Point{Lat: 25.033, Lng: 121.565},
			b:         types.Point{Lat: 25.033, Lng: 121.565},
			wantKm:    0,
			tolerance: 0.001,
		},
		{
			name:      "Taipei 101 to Taipei Main Station (~5km)",
			a:         types.Point{Lat: 25.0340, Lng: 121.5645},
			b:         types.Point{Lat: 25.0478, Lng: 121.5170},
			wantKm:    5.0,
			tolerance: 1.0,
		},
		{
			name:      "New York to Los Angeles (~3944km)",
			a:         types.Point{Lat: 40.7128, Lng: -74.0060},
			b:         types.Point{Lat: 34.0522, Lng: -118.2437},
			wantKm:    3944,
			tolerance: 50,
		},
		{
			name:      "one degree of latitude (~111km)",
			a:         types.Point{Lat: 0, Lng: 0},
			b:         types.Point{Lat: 1, Lng: 0},
			wantKm:    111.19,
			tolerance: 0.05,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceKm(tt.a, tt.b)
			if math.Abs(got-tt.wantKm) > tt.tolerance {
				t.Errorf("DistanceKm() = %f, want %f (±%f)", got, tt.wantKm, tt.tolerance)
			}
		})
	}
}

func TestDistanceKm_Symmetry(t *testing.T) {
	pairs := [][2]types.Point{
		{{Lat: 25.0, Lng: 121.0}, {Lat: 26.0, Lng: 122.0}},
		{{Lat: -33.8688, Lng: 151.2093}, {Lat: 51.5074, Lng: -0.1278}},
		{{Lat: 89.9, Lng: 179.9}, {Lat: -89.9, Lng: -179.9}},
		{{Lat: 40.7128, Lng: -74.0060}, {Lat: 40.7130, Lng: -74.0059}},
	}
	for _, p := range pairs {
		d1 := DistanceKm(p[0], p[1])
		d2 := DistanceKm(p[1], p[0])
		if d1 != d2 {
			t.Errorf("distance is not symmetric for %v: %v vs %v", p, d1, d2)
		}
		if DistanceKm(p[0], p[0]) != 0 {
			t.Errorf("DistanceKm(a, a) = %v, want 0", DistanceKm(p[0], p[0]))
		}
	}
}

func TestTravelMinutes(t *testing.T) {
	cases := []struct {
		km   float64
		want int
	}{
		{0, 0},
		{15, 30},
		{30, 60},
		{1, 2},
		{0.2, 0},
		{0.26, 1},
	}
	for _, c := range cases {
		if got := TravelMinutes(c.km); got != c.want {
			t.Errorf("TravelMinutes(%v) = %d, want %d", c.km, got, c.want)
		}
	}
}

func TestValidate(t *testing.T) {
	valid := []types.Point{{Lat: 0, Lng: 0}, {Lat: 90, Lng: 180}, {Lat: -90, Lng: -180}}
	for _, p := range valid {
		if err := Validate(p); err != nil {
			t.Errorf("Validate(%v) = %v, want nil", p, err)
		}
	}
	invalid := []types.Point{{Lat: 90.01, Lng: 0}, {Lat: 0, Lng: -180.5}, {Lat: math.NaN(), Lng: 0}}
	for _, p := range invalid {
		err := Validate(p)
		if !errors.Is(err, types.ErrInvalidInput) {
			t.Errorf("Validate(%v) = %v, want ErrInvalidInput", p, err)
		}
	}
}
