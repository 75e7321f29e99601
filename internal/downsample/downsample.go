// Package downsample compresses large timestamp/value series for display.
// Points are partitioned into index buckets (not time buckets, so bucket
// population stays even under irregular sampling) and each bucket is
// reduced to its min/max pair.
package downsample

import "github.com/stockbt/stockbt/internal/types"

// Reduce partitions points (sorted by timestamp) into at most
// max(1, min(pixelWidth, displayCap/2)) contiguous index buckets and emits
// the extremes of each. When the series already fits under displayCap every
// point is returned verbatim as a degenerate min==max pair.
func Reduce(points []types.SeriesPoint, pixelWidth, displayCap int) []types.BucketMinMax {
	if len(points) == 0 || pixelWidth <= 0 {
		return nil
	}

	if len(points) <= displayCap {
		out := make([]types.BucketMinMax, 0, len(points))
		for _, p := range points {
			out = append(out, types.BucketMinMax{
				MinTs:    p.Ts,
				MinValue: p.Value,
				MaxTs:    p.Ts,
				MaxValue: p.Value,
			})
		}

		return out
	}

	bucketCount := pixelWidth
	if half := displayCap / 2; half < bucketCount {
		bucketCount = half
	}

	if bucketCount < 1 {
		bucketCount = 1
	}

	out := make([]types.BucketMinMax, 0, bucketCount)

	for b := 0; b < bucketCount; b++ {
		start := b * len(points) / bucketCount
		end := (b + 1) * len(points) / bucketCount

		if start >= end {
			continue
		}

		minIdx := start
		maxIdx := start

		// First occurrence wins on ties.
		for i := start + 1; i < end; i++ {
			if points[i].Value < points[minIdx].Value {
				minIdx = i
			}

			if points[i].Value > points[maxIdx].Value {
				maxIdx = i
			}
		}

		out = append(out, types.BucketMinMax{
			MinTs:    points[minIdx].Ts,
			MinValue: points[minIdx].Value,
			MaxTs:    points[maxIdx].Ts,
			MaxValue: points[maxIdx].Value,
		})
	}

	return out
}

// RenderOrder returns the two extremes of a bucket in drawing order: the
// earlier-in-time extreme first, so a rendered zig-zag follows true temporal
// order. The minimum comes first when the timestamps are equal.
func RenderOrder(bucket types.BucketMinMax) (types.SeriesPoint, types.SeriesPoint) {
	minPoint := types.SeriesPoint{Ts: bucket.MinTs, Value: bucket.MinValue}
	maxPoint := types.SeriesPoint{Ts: bucket.MaxTs, Value: bucket.MaxValue}

	if bucket.MinTs <= bucket.MaxTs {
		return minPoint, maxPoint
	}

	return maxPoint, minPoint
}
