// Package detect is the boundary to a drone's detection sensor (thermal,
// visual, or a fused combination), grounded in
// original_source/drone/core/cameras/visual/simulated.py and
// original_source/drone/core/detection/thermal_detector.py: the simulated
// implementation produces synthetic person-in-water sightings at a fixed
// per-check probability, the same way the Python SimulatedVisualCamera rolls
// random.random() < 0.3 each captured frame.
package detect

import (
	"context"

	"github.com/skyward-ops/mobfleet/internal/model"
)

// Detector is polled by a search-role agent once per waypoint leg. A nil
// *model.Detection with a nil error means nothing was seen this check.
type Detector interface {
	Detect(ctx context.Context, dronePos model.Position) (*model.Detection, error)
}
