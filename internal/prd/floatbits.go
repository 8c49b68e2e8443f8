package prd

import "math"

func math32bits(f float32) uint32  { return math.Float32bits(f) }
func math32float(u uint32) float32 { return math.Float32frombits(u) }
func math64bits(f float64) uint64  { return math.Float64bits(f) }
func math64float(u uint64) float64 { return math.Float64frombits(u) }
