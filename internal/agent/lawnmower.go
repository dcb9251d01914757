package agent

import (
	"github.com/skyward-ops/mobfleet/internal/config"
	"github.com/skyward-ops/mobfleet/internal/model"
)

// lawnmowerLegs generates a boustrophedon coverage pattern of NumLegs parallel
// legs of LegLength meters, Spacing meters apart, starting from origin at
// PatrolAltitude, alternating direction each leg (spec.md's "Lawnmower —
// boustrophedon coverage pattern with configurable leg spacing").
func lawnmowerLegs(origin model.Position, cfg config.LawnmowerConfig) []model.Position {
	if cfg.NumLegs <= 0 {
		return nil
	}
	waypoints := make([]model.Position, 0, cfg.NumLegs*2)
	for leg := 0; leg < cfg.NumLegs; leg++ {
		y := origin.Y + float64(leg)*cfg.Spacing
		start, end := origin.X, origin.X+cfg.LegLength
		if leg%2 == 1 {
			start, end = end, start
		}
		waypoints = append(waypoints,
			model.Position{X: start, Y: y, Z: cfg.PatrolAltitude},
			model.Position{X: end, Y: y, Z: cfg.PatrolAltitude},
		)
	}
	return waypoints
}
