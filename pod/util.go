package pod

import "math"

func float32bits(v float32) uint32 { return math.Float32bits(v) }
func float64bits(v float64) uint64 { return math.Float64bits(v) }

func float32frombits(v uint32) float32 { return math.Float32frombits(v) }
func float64frombits(v uint64) float64 { return math.Float64frombits(v) }
