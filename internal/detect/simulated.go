package detect

import (
	"context"
	"math/rand"

	"github.com/skyward-ops/mobfleet/internal/model"
)

// Simulated is a seeded, randomized stand-in for a thermal/visual detector.
type Simulated struct {
	probability float64
	rng         *rand.Rand
	source      string
}

// NewSimulated builds a detector that reports a positive sighting with the
// given probability on each Detect call (0.3 matches the Python reference's
// SimulatedVisualCamera default).
func NewSimulated(probability float64, seed int64) *Simulated {
	return &Simulated{
		probability: probability,
		rng:         rand.New(rand.NewSource(seed)),
		source:      "simulated_visual",
	}
}

func (s *Simulated) Detect(ctx context.Context, dronePos model.Position) (*model.Detection, error) {
	if s.rng.Float64() >= s.probability {
		return nil, nil
	}

	// Person position jitters within a few meters of the drone's ground
	// track, the way a camera's frame places a sighting near image center
	// rather than exactly on the vehicle's nadir point.
	offsetX := (s.rng.Float64() - 0.5) * 6
	offsetY := (s.rng.Float64() - 0.5) * 6

	world := model.Position{X: dronePos.X + offsetX, Y: dronePos.Y + offsetY, Z: 0}

	return &model.Detection{
		PixelX:     s.rng.Intn(640),
		PixelY:     s.rng.Intn(480),
		WorldPos:   &world,
		Confidence: 0.6 + s.rng.Float64()*0.4,
		IsPerson:   true,
		Source:     s.source,
	}, nil
}
