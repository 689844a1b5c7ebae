package pbf

import (
	"github.com/montanaflynn/stats"
	"github.com/samber/lo"
)

// SessionStatistics summarizes a session's frame history.
type SessionStatistics struct {
	FrameCount       int
	MergedFrameCount int
	FailedFrameCount int
	// MeanFramerate is merged frames per second of capture time, or 0 when no time elapsed.
	MeanFramerate float64
	// MeanICPIterationCount and MeanCorrespondenceError are over merged frames that were registered.
	MeanICPIterationCount   float64
	MeanCorrespondenceError float64
	SurfelCount             int
}

func computeStatistics(history []FrameMetadata, surfelCount int) SessionStatistics {
	ret := SessionStatistics{FrameCount: len(history), SurfelCount: surfelCount}
	if len(history) == 0 {
		return ret
	}
	ret.MergedFrameCount = lo.CountBy(history, func(md FrameMetadata) bool { return md.IsMerged })
	ret.FailedFrameCount = len(history) - ret.MergedFrameCount

	if elapsed := history[len(history)-1].Timestamp - history[0].Timestamp; elapsed > 0 {
		ret.MeanFramerate = float64(ret.MergedFrameCount) / elapsed
	}

	registered := lo.Filter(history, func(md FrameMetadata, _ int) bool {
		return md.IsMerged && md.ICPIterationCount > 0
	})
	if len(registered) == 0 {
		return ret
	}
	iterations := lo.Map(registered, func(md FrameMetadata, _ int) float64 { return float64(md.ICPIterationCount) })
	errs := lo.Map(registered, func(md FrameMetadata, _ int) float64 { return md.CorrespondenceError })
	// Mean only fails on empty input.
	ret.MeanICPIterationCount, _ = stats.Mean(iterations)
	ret.MeanCorrespondenceError, _ = stats.Mean(errs)
	return ret
}
