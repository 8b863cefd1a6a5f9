package history

import (
	"math"
	"strconv"
	"time"

	"robosim/internal/telemetry"
)

// PathStats aggregates derived statistics over a recorded path.
type PathStats struct {
	Points      int            `json:"points"`
	DistanceM   float64        `json:"distance_m"`
	Duration    time.Duration  `json:"duration_ns"`
	AvgSpeedMPS float64        `json:"avg_speed_mps"`
	MaxSpeedMPS float64        `json:"max_speed_mps"`
	Bounds      BoundingBox    `json:"bounds"`
	Heatmap     map[string]int `json:"heatmap"`
}

// BoundingBox is the min/max extent of a path.
type BoundingBox struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// HeatmapCellSize is the grid cell edge in meters for path heatmaps.
const HeatmapCellSize = 0.2

// ComputePathStats derives distance, duration, speeds, bounding box, and a
// grid heatmap from a path in insertion order.
func ComputePathStats(points []telemetry.PathPoint) PathStats {
	stats := PathStats{Points: len(points), Heatmap: map[string]int{}}
	if len(points) == 0 {
		return stats
	}

	stats.Bounds = BoundingBox{
		MinX: points[0].X, MinY: points[0].Y,
		MaxX: points[0].X, MaxY: points[0].Y,
	}
	for _, p := range points {
		stats.Bounds.MinX = math.Min(stats.Bounds.MinX, p.X)
		stats.Bounds.MinY = math.Min(stats.Bounds.MinY, p.Y)
		stats.Bounds.MaxX = math.Max(stats.Bounds.MaxX, p.X)
		stats.Bounds.MaxY = math.Max(stats.Bounds.MaxY, p.Y)
		stats.Heatmap[cellKey(p.X, p.Y)]++
	}

	if len(points) < 2 {
		return stats
	}

	var speedSum float64
	var segments int
	for i := 1; i < len(points); i++ {
		prev, cur := points[i-1], points[i]
		d := math.Hypot(cur.X-prev.X, cur.Y-prev.Y)
		stats.DistanceM += d
		dt := cur.Timestamp.Sub(prev.Timestamp).Seconds()
		if dt <= 0 {
			continue
		}
		speed := d / dt
		speedSum += speed
		segments++
		if speed > stats.MaxSpeedMPS {
			stats.MaxSpeedMPS = speed
		}
	}
	stats.Duration = points[len(points)-1].Timestamp.Sub(points[0].Timestamp)
	if segments > 0 {
		stats.AvgSpeedMPS = speedSum / float64(segments)
	}
	return stats
}

func cellKey(x, y float64) string {
	cx := int(math.Floor(x / HeatmapCellSize))
	cy := int(math.Floor(y / HeatmapCellSize))
	return strconv.Itoa(cx) + "," + strconv.Itoa(cy)
}
