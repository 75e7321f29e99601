package downsample

import (
	"testing"

	"github.com/stockbt/stockbt/internal/types"
	"github.com/stretchr/testify/suite"
)

type DownsampleTestSuite struct {
	suite.Suite
}

func TestDownsampleSuite(t *testing.T) {
	suite.Run(t, new(DownsampleTestSuite))
}

func points(values ...float64) []types.SeriesPoint {
	out := make([]types.SeriesPoint, 0, len(values))
	for i, value := range values {
		out = append(out, types.SeriesPoint{Ts: int64(i * 60), Value: value})
	}

	return out
}

func (suite *DownsampleTestSuite) TestEmptyInputReturnsNil() {
	suite.Nil(Reduce(nil, 100, 10))
	suite.Nil(Reduce(points(1, 2, 3), 0, 10))
	suite.Nil(Reduce(points(1, 2, 3), -5, 10))
}

func (suite *DownsampleTestSuite) TestSmallSeriesReturnsDegeneratePairs() {
	input := points(5, 3, 9, 7)

	out := Reduce(input, 100, 10)
	suite.Len(out, len(input))

	for i, bucket := range out {
		suite.Equal(input[i].Ts, bucket.MinTs)
		suite.Equal(input[i].Ts, bucket.MaxTs)
		suite.Equal(input[i].Value, bucket.MinValue)
		suite.Equal(input[i].Value, bucket.MaxValue)
	}
}

func (suite *DownsampleTestSuite) TestBucketCountIsBoundedByWidthAndCap() {
	input := points(make([]float64, 1000)...)

	// displayCap/2 smaller than pixel width
	suite.Len(Reduce(input, 400, 100), 50)
	// pixel width smaller than displayCap/2
	suite.Len(Reduce(input, 10, 100), 10)
}

func (suite *DownsampleTestSuite) TestExtremesPerBucket() {
	// Two buckets of four: [1 9 2 3] and [8 0 5 4].
	input := points(1, 9, 2, 3, 8, 0, 5, 4)

	out := Reduce(input, 2, 4)
	suite.Require().Len(out, 2)

	suite.Equal(1.0, out[0].MinValue)
	suite.Equal(int64(0), out[0].MinTs)
	suite.Equal(9.0, out[0].MaxValue)
	suite.Equal(int64(60), out[0].MaxTs)

	suite.Equal(0.0, out[1].MinValue)
	suite.Equal(int64(5*60), out[1].MinTs)
	suite.Equal(8.0, out[1].MaxValue)
	suite.Equal(int64(4*60), out[1].MaxTs)
}

func (suite *DownsampleTestSuite) TestFirstOccurrenceWinsOnTies() {
	input := points(4, 4, 4, 4, 7, 7, 7, 7)

	out := Reduce(input, 1, 4)
	suite.Require().Len(out, 1)
	// All of bucket 0's ties resolve to the earliest index.
	suite.Equal(int64(0), out[0].MinTs)
	suite.Equal(int64(4*60), out[0].MaxTs)
}

func (suite *DownsampleTestSuite) TestBucketsCoverEntireRange() {
	input := points(make([]float64, 103)...)
	for i := range input {
		input[i].Value = float64(i % 17)
	}

	out := Reduce(input, 10, 20)
	suite.Require().Len(out, 10)

	// The last bucket must reach the final point's timestamp range.
	last := out[len(out)-1]
	suite.GreaterOrEqual(last.MaxTs, input[93].Ts)
}

func (suite *DownsampleTestSuite) TestRenderOrderFollowsTime() {
	minFirst := types.BucketMinMax{MinTs: 10, MinValue: 1, MaxTs: 20, MaxValue: 9}
	first, second := RenderOrder(minFirst)
	suite.Equal(int64(10), first.Ts)
	suite.Equal(int64(20), second.Ts)

	maxFirst := types.BucketMinMax{MinTs: 30, MinValue: 1, MaxTs: 20, MaxValue: 9}
	first, second = RenderOrder(maxFirst)
	suite.Equal(int64(20), first.Ts)
	suite.Equal(9.0, first.Value)
	suite.Equal(int64(30), second.Ts)

	tied := types.BucketMinMax{MinTs: 40, MinValue: 1, MaxTs: 40, MaxValue: 9}
	first, second = RenderOrder(tied)
	suite.Equal(1.0, first.Value)
	suite.Equal(9.0, second.Value)
}
