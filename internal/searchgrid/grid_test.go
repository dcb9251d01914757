package searchgrid

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyward-ops/mobfleet/internal/model"
)

func testConfig() Config {
	return Config{
		GridSize:        100,
		SearchAreaSizeM: 1000,
		SearchAltitude:  50,
		RMax:            80,
		HRef:            30,
		MissProbability: 0.1,
		DriftXMS:        0,
		DriftYMS:        0,
	}
}

func TestInitializeMapIsIdempotent(t *testing.T) {
	g := New(testConfig(), Area{}, nil)
	before := g.Sum()
	g.InitializeMap()
	after := g.Sum()
	assert.InDelta(t, before, after, 1e-9)
	assert.InDelta(t, 1.0, after, 1e-9)
}

func TestConfirmTargetAtThenWaypointReturnsSameCell(t *testing.T) {
	g := New(testConfig(), Area{}, nil)
	target := model.Position{X: 120, Y: 80, Z: 0}
	g.ConfirmTargetAt(target)

	wp := g.GetNextSearchWaypoint()

	// The returned waypoint must be the center of the cell containing target.
	assert.InDelta(t, target.X, wp.X, g.cellEdge/2.0+1e-6)
	assert.InDelta(t, target.Y, wp.Y, g.cellEdge/2.0+1e-6)
}

func TestUpdateMapWithMissProbabilityOneIsUnchangedModuloRenormalization(t *testing.T) {
	cfg := testConfig()
	cfg.MissProbability = 1.0
	g := New(cfg, Area{}, nil)
	before := make([][]float64, len(g.cells))
	for i := range g.cells {
		before[i] = append([]float64(nil), g.cells[i]...)
	}

	g.UpdateMap(model.Position{X: 0, Y: 0}, 50, false)

	for r := range g.cells {
		for c := range g.cells[r] {
			assert.InDelta(t, before[r][c], g.cells[r][c], 1e-9)
		}
	}
}

func TestEvolveMapWithZeroDriftIsIdentity(t *testing.T) {
	cfg := testConfig()
	cfg.DriftXMS, cfg.DriftYMS = 0, 0
	g := New(cfg, Area{}, nil)
	g.ConfirmTargetAt(model.Position{X: 37, Y: -12})

	before := snapshot(g)
	g.EvolveMap(5.0)
	after := snapshot(g)

	assert.Equal(t, before, after)
}

func TestGetNextSearchWaypointInsideConfiguredArea(t *testing.T) {
	cfg := testConfig()
	area := Area{X: 500, Y: -200, Z: 0}
	g := New(cfg, area, nil)

	for i := 0; i < 10; i++ {
		wp := g.GetNextSearchWaypoint()
		assert.LessOrEqual(t, math.Abs(wp.X-area.X), cfg.SearchAreaSizeM/2.0)
		assert.LessOrEqual(t, math.Abs(wp.Y-area.Y), cfg.SearchAreaSizeM/2.0)
	}
}

func TestRepeatedWaypointCallsAreNotIdempotent(t *testing.T) {
	g := New(testConfig(), Area{}, nil)
	first := g.GetNextSearchWaypoint()
	second := g.GetNextSearchWaypoint()
	assert.NotEqual(t, first, second)
}

func TestGridCollapseReinitializes(t *testing.T) {
	cfg := testConfig()
	cfg.MissProbability = 0
	cfg.RMax = 1e6
	g := New(cfg, Area{}, nil)

	// A no-detection update at the center with a huge effective radius
	// multiplies every cell by zero, collapsing the grid.
	g.UpdateMap(model.Position{X: 0, Y: 0}, 1e6, false)

	require.InDelta(t, 1.0, g.Sum(), 1e-9)
}

func TestMapConvergenceUnderRepeatedNoDetectionUpdates(t *testing.T) {
	cfg := testConfig()
	g := New(cfg, Area{}, nil)

	radius := 300.0
	sensorRadius := cfg.RMax * 100 / (100 + cfg.HRef)
	var scanned []model.Position
	for i := 0; i < 20; i++ {
		theta := float64(i) / 20 * 2 * math.Pi
		pos := model.Position{X: radius * math.Cos(theta), Y: radius * math.Sin(theta)}
		scanned = append(scanned, pos)
		g.UpdateMap(pos, 100, false)

		sum := g.Sum()
		assert.Greater(t, sum, 0.9)
		assert.LessOrEqual(t, sum, 1.0001)
		for r := range g.cells {
			for c := range g.cells[r] {
				assert.GreaterOrEqual(t, g.cells[r][c], 0.0)
			}
		}
	}

	finalWaypoint := g.GetNextSearchWaypoint()
	for _, pos := range scanned {
		assert.Greater(t, math.Hypot(finalWaypoint.X-pos.X, finalWaypoint.Y-pos.Y), sensorRadius,
			"the most probable cell should lie outside the scanned footprint")
	}
}

func snapshot(g *Grid) [][]float64 {
	out := make([][]float64, len(g.cells))
	for i := range g.cells {
		out[i] = append([]float64(nil), g.cells[i]...)
	}
	return out
}
