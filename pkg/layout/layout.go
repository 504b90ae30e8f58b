// Package layout maps each tracked symbol to a stable 3D position in the
// stock city. Positions are a pure function of the symbol identifier, so
// the same symbol lands on the same spot across runs and across any
// ordering of the input — downstream rendering memoizes by symbol and any
// drift would visually teleport a building.
package layout

import (
	"hash/fnv"
	"math"
	"strconv"

	"github.com/Logic-Phantom/DataVille/pkg/models"
)

// Placement is one building's resolved spot in the city.
type Placement struct {
	Symbol string        `json:"symbol"`
	Name   string        `json:"name"`
	Market models.Market `json:"market"`
	X      float64       `json:"x"`
	Y      float64       `json:"y"`
	Z      float64       `json:"z"`
}

const (
	minDistance  = 15.0
	distanceSpan = 35.0 // radial distance in [15, 50)
	jitterSpan   = 10.0 // +/-5 on both axes
)

// Generate produces a placement for every listing. Output order follows
// the input; positions do not.
func Generate(listings []models.Listing) []Placement {
	placements := make([]Placement, len(listings))
	for i, l := range listings {
		x, y, z := Position(l.Symbol)
		placements[i] = Placement{
			Symbol: l.Symbol,
			Name:   l.Name,
			Market: l.Market,
			X:      x,
			Y:      y,
			Z:      z,
		}
	}
	return placements
}

// Position computes the deterministic spot for one symbol: an angle and a
// radial distance from the city center, jittered on both axes, with a
// cosmetic terrain height.
func Position(symbol string) (x, y, z float64) {
	seed := seedFor(symbol)

	angle := seededRandom(seed) * 2 * math.Pi
	distance := minDistance + seededRandom(seed+1)*distanceSpan
	x = math.Cos(angle)*distance + (seededRandom(seed+2)-0.5)*jitterSpan
	z = math.Sin(angle)*distance + (seededRandom(seed+3)-0.5)*jitterSpan
	y = terrainHeight(x, z)
	return x, y, z
}

// seedFor derives a numeric seed from the symbol itself. KRX symbols are
// numeric; anything else hashes, so the seed never depends on table order.
func seedFor(symbol string) float64 {
	if n, err := strconv.Atoi(symbol); err == nil && n != 0 {
		return float64(n)
	}
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return float64(h.Sum32())
}

// seededRandom maps a seed to [0, 1) reproducibly.
func seededRandom(seed float64) float64 {
	x := math.Sin(seed) * 10000
	return x - math.Floor(x)
}

// terrainHeight is a smooth cosmetic undulation of the ground plane.
func terrainHeight(x, z float64) float64 {
	return math.Sin(x*0.1) * math.Cos(z*0.1) * 2
}

const (
	minBuildingHeight = 2.0
	maxBuildingHeight = 50.0
)

// HeightFromPrice scales a building with the quote's price (log scale) and
// stretches or squashes it by the move against the previous price.
func HeightFromPrice(currentPrice, previousPrice int64, baseHeight float64) float64 {
	if currentPrice <= 0 {
		return minBuildingHeight
	}
	if previousPrice <= 0 {
		previousPrice = currentPrice
	}

	h := math.Log10(float64(currentPrice)/1000)*8 + baseHeight

	ratio := float64(currentPrice) / float64(previousPrice)
	ratio = math.Min(math.Max(ratio, 0.5), 2.0)

	return clampHeight(h * ratio)
}

// HeightFromMarketCap maps market capitalization onto building height on a
// log scale.
func HeightFromMarketCap(marketCap int64) float64 {
	if marketCap <= 0 {
		return minBuildingHeight
	}
	logCap := math.Log10(float64(marketCap))
	h := ((logCap-10)/5)*(maxBuildingHeight-minBuildingHeight) + minBuildingHeight
	return clampHeight(h)
}

func clampHeight(h float64) float64 {
	return math.Min(math.Max(h, minBuildingHeight), maxBuildingHeight)
}
