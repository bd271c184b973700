package gps

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Meters per degree of latitude on a spherical Earth.
const metersPerDegree = 111_320.0

// FixScatter describes how much recent positions wander around their mean.
// A stationary receiver's scatter approximates its horizontal accuracy.
type FixScatter struct {
	Samples      int     `json:"samples"`
	MeanLatDeg   float64 `json:"mean_lat_deg"`
	MeanLonDeg   float64 `json:"mean_lon_deg"`
	StdDevNorthM float64 `json:"stddev_north_m"`
	StdDevEastM  float64 `json:"stddev_east_m"`
	CEP50M       float64 `json:"cep50_m"`
	CEP95M       float64 `json:"cep95_m"`
}

// fixStats keeps a ring of the last size positions.
type fixStats struct {
	size int
	next int
	lat  []float64
	lon  []float64
}

func newFixStats(size int) *fixStats {
	if size < 0 {
		size = 0
	}
	return &fixStats{size: size, lat: make([]float64, 0, size), lon: make([]float64, 0, size)}
}

func (f *fixStats) add(lat, lon float64) {
	if f.size == 0 {
		return
	}
	if len(f.lat) < f.size {
		f.lat = append(f.lat, lat)
		f.lon = append(f.lon, lon)
		return
	}
	f.lat[f.next] = lat
	f.lon[f.next] = lon
	f.next = (f.next + 1) % f.size
}

// summary returns nil until at least two positions are known.
func (f *fixStats) summary() *FixScatter {
	n := len(f.lat)
	if n < 2 {
		return nil
	}
	// Longitudes are unwrapped around the first sample so a receiver on the
	// antimeridian does not average +179.9 and -179.9 to zero.
	ref := f.lon[0]
	lon := make([]float64, n)
	for i, v := range f.lon {
		lon[i] = ref + math.Remainder(v-ref, 360)
	}

	meanLat, sdLat := stat.MeanStdDev(f.lat, nil)
	meanLon, sdLon := stat.MeanStdDev(lon, nil)
	cosLat := math.Cos(meanLat * math.Pi / 180)

	dist := make([]float64, n)
	for i := range f.lat {
		dn := (f.lat[i] - meanLat) * metersPerDegree
		de := (lon[i] - meanLon) * metersPerDegree * cosLat
		dist[i] = math.Hypot(dn, de)
	}
	sort.Float64s(dist)

	return &FixScatter{
		Samples:      n,
		MeanLatDeg:   meanLat,
		MeanLonDeg:   math.Remainder(meanLon, 360),
		StdDevNorthM: sdLat * metersPerDegree,
		StdDevEastM:  sdLon * metersPerDegree * cosLat,
		CEP50M:       stat.Quantile(0.5, stat.Empirical, dist, nil),
		CEP95M:       stat.Quantile(0.95, stat.Empirical, dist, nil),
	}
}
