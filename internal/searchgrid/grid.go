// Package searchgrid implements the probabilistic search map: a fixed N×N
// grid of target-presence probability over a square area, updated by
// Bayesian no-detection observations and evolved by drift advection.
//
// Ported from original_source/drone/core/ai/prob_search.py, generalized from
// NumPy array ops to explicit loops over a [][]float64, row-major like the
// reference's (row, col) indexing.
package searchgrid

import (
	"log/slog"
	"math"

	"github.com/skyward-ops/mobfleet/internal/model"
)

// Config mirrors the prob_search config group in the spec's configuration table.
type Config struct {
	GridSize         int     // N
	SearchAreaSizeM  float64 // S
	SearchAltitude   float64
	RMax             float64
	HRef             float64
	MissProbability  float64
	DriftXMS         float64
	DriftYMS         float64
}

// Area is the square search region's center, in the local Cartesian frame.
type Area struct {
	X, Y, Z float64
}

// Grid is the probability map. It is owned by exactly one goroutine at a
// time (Coordinator in centralized mode, or a Scout agent in P2P mode) and is
// not safe for concurrent use without external synchronization.
type Grid struct {
	cfg      Config
	area     Area
	cellEdge float64

	cells [][]float64 // cells[row][col], row-major like the Python reference

	// cell-center coordinates relative to the area center, precomputed at
	// construction (add area.X / area.Y for world coordinates)
	centerX []float64 // indexed by col
	centerY []float64 // indexed by row

	// fractional drift carried across evolve_map calls (Open Question
	// resolution: accumulate sub-cell motion instead of truncating it away)
	driftAccumX, driftAccumY float64

	logger *slog.Logger
}

// New constructs a grid and initializes it to a uniform prior.
func New(cfg Config, area Area, logger *slog.Logger) *Grid {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Grid{
		cfg:      cfg,
		area:     area,
		cellEdge: cfg.SearchAreaSizeM / float64(cfg.GridSize),
		logger:   logger,
	}
	g.cells = make([][]float64, cfg.GridSize)
	for r := range g.cells {
		g.cells[r] = make([]float64, cfg.GridSize)
	}
	g.centerX = make([]float64, cfg.GridSize)
	g.centerY = make([]float64, cfg.GridSize)
	half := cfg.SearchAreaSizeM / 2.0
	for i := 0; i < cfg.GridSize; i++ {
		coord := -half + g.cellEdge/2.0 + float64(i)*g.cellEdge
		g.centerX[i] = coord
		g.centerY[i] = coord
	}
	g.InitializeMap()
	return g
}

// InitializeMap resets the grid to a uniform prior. Idempotent.
func (g *Grid) InitializeMap() {
	uniform := 1.0 / float64(g.cfg.GridSize*g.cfg.GridSize)
	for r := range g.cells {
		for c := range g.cells[r] {
			g.cells[r][c] = uniform
		}
	}
	g.driftAccumX, g.driftAccumY = 0, 0
}

// Sum returns the current total probability mass.
func (g *Grid) Sum() float64 {
	var total float64
	for r := range g.cells {
		for c := range g.cells[r] {
			total += g.cells[r][c]
		}
	}
	return total
}

// cellWorldCenter returns the world-space center of cell (row, col).
func (g *Grid) cellWorldCenter(row, col int) model.Position {
	return model.Position{
		X: g.centerX[col] + g.area.X,
		Y: g.centerY[row] + g.area.Y,
		Z: g.cfg.SearchAltitude,
	}
}

// GetNextSearchWaypoint returns the world-space center of the
// maximum-probability cell (ties broken by lowest row-major index), then
// suppresses that cell by 0.1 to encourage exploration on the next call.
// Repeated calls are intentionally not idempotent.
func (g *Grid) GetNextSearchWaypoint() model.Position {
	bestRow, bestCol := 0, 0
	best := -1.0
	for r := range g.cells {
		for c := range g.cells[r] {
			if g.cells[r][c] > best {
				best = g.cells[r][c]
				bestRow, bestCol = r, c
			}
		}
	}
	pos := g.cellWorldCenter(bestRow, bestCol)
	g.cells[bestRow][bestCol] *= 0.1
	return pos
}

// UpdateMap applies a Bayesian no-detection update for an observation taken
// from dronePos at the given altitude, or re-initializes/locks the grid on a
// detection (per spec.md §4.2: "the update either re-initializes or locks to
// the reported position via confirm_target_at"). We resolve that either/or by
// locking, since a detection observation always carries the drone's own
// position as the best available estimate of the target.
func (g *Grid) UpdateMap(dronePos model.Position, altitude float64, hasDetection bool) {
	if hasDetection {
		g.ConfirmTargetAt(dronePos)
		return
	}

	sensorRadius := g.cfg.RMax * (altitude / (altitude + g.cfg.HRef))
	radiusSq := sensorRadius * sensorRadius

	for r := range g.cells {
		dy := g.centerY[r] + g.area.Y - dronePos.Y
		dy2 := dy * dy
		for c := range g.cells[r] {
			dx := g.centerX[c] + g.area.X - dronePos.X
			if dx*dx+dy2 < radiusSq {
				g.cells[r][c] *= g.cfg.MissProbability
			}
		}
	}

	total := g.Sum()
	if total <= 0 {
		g.logger.Warn("search grid collapsed, re-initializing to uniform prior")
		g.InitializeMap()
		return
	}
	for r := range g.cells {
		for c := range g.cells[r] {
			g.cells[r][c] /= total
		}
	}
}

// ConfirmTargetAt zeros all cells and sets the cell containing (x, y) —
// clamped to grid bounds — to 1.0.
func (g *Grid) ConfirmTargetAt(pos model.Position) {
	for r := range g.cells {
		for c := range g.cells[r] {
			g.cells[r][c] = 0
		}
	}

	half := g.cfg.SearchAreaSizeM / 2.0
	col := int((pos.X - g.area.X + half) / g.cellEdge)
	row := int((pos.Y - g.area.Y + half) / g.cellEdge)
	col = clamp(col, 0, g.cfg.GridSize-1)
	row = clamp(row, 0, g.cfg.GridSize-1)
	g.cells[row][col] = 1.0
}

// EvolveMap applies drift advection over dt seconds: the grid is translated
// by (drift*dt/cellEdge) cells using a cyclic (torus) shift. Sub-cell drift
// accumulates fractionally across calls rather than being truncated away
// every call (documented deviation from the Python reference, see
// SPEC_FULL.md §9 Open Question 2).
func (g *Grid) EvolveMap(dt float64) {
	g.driftAccumX += g.cfg.DriftXMS * dt / g.cellEdge
	g.driftAccumY += g.cfg.DriftYMS * dt / g.cellEdge

	dx := int(math.Trunc(g.driftAccumX))
	dy := int(math.Trunc(g.driftAccumY))
	if dx == 0 && dy == 0 {
		return
	}
	g.driftAccumX -= float64(dx)
	g.driftAccumY -= float64(dy)

	n := g.cfg.GridSize
	shifted := make([][]float64, n)
	for r := 0; r < n; r++ {
		shifted[r] = make([]float64, n)
		srcRow := mod(r-dy, n)
		for c := 0; c < n; c++ {
			srcCol := mod(c-dx, n)
			shifted[r][c] = g.cells[srcRow][srcCol]
		}
	}
	g.cells = shifted
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func mod(a, n int) int {
	m := a % n
	if m < 0 {
		m += n
	}
	return m
}
