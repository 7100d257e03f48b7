package stats

type CurvePoint struct {
	Round int     `json:"round"`
	Value float64 `json:"value"`
}

// BuildCurve samples series every step rounds starting at start. The last
// round is always included so a plotted curve ends where the run ended.
func BuildCurve(series []float64, start, step int) []CurvePoint {
	if step <= 0 {
		step = 1
	}
	if start < 0 {
		start = 0
	}
	points := make([]CurvePoint, 0, len(series)/step+1)
	last := -1
	for round := start; round < len(series); round += step {
		points = append(points, CurvePoint{Round: round, Value: series[round]})
		last = round
	}
	if n := len(series); n > 0 && last != n-1 && start <= n-1 {
		points = append(points, CurvePoint{Round: n - 1, Value: series[n-1]})
	}
	return points
}
