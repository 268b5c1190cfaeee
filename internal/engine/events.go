package engine

import (
	"github.com/rs/zerolog"
)

type EventKind int

const (
	// DownloadStarted carries the total size and the bytes already on disk
	// from earlier runs.
	DownloadStarted EventKind = iota
	SegmentStarted
	// SegmentProgress is emitted once per chunk, after the chunk is written.
	SegmentProgress
	SegmentCompleted
	SegmentFailed
	// SegmentInterrupted reports a segment stopped by cancellation. It is
	// saved as pending and resumes on the next run.
	SegmentInterrupted
	DownloadFinished
)

func (k EventKind) String() string {
	switch k {
	case DownloadStarted:
		return "download-started"
	case SegmentStarted:
		return "segment-started"
	case SegmentProgress:
		return "segment-progress"
	case SegmentCompleted:
		return "segment-completed"
	case SegmentFailed:
		return "segment-failed"
	case SegmentInterrupted:
		return "segment-interrupted"
	case DownloadFinished:
		return "download-finished"
	}
	return "unknown"
}

// Event is a notification from a running Engine. Segment events for one
// segment arrive in stream order; events of different segments interleave.
type Event struct {
	Kind      EventKind
	SegmentID int
	// Bytes is the chunk length of a SegmentProgress event.
	Bytes int64
	// Downloaded is the segment's byte counter after the event, or the
	// download's total for DownloadStarted and DownloadFinished.
	Downloaded int64
	// Total is the segment capacity, or the total size for download events.
	Total    int64
	Segments int
	Outcome  Outcome
	Err      error
}

// Observer receives engine events. Notify is called synchronously from
// segment goroutines, so implementations must be safe for concurrent use
// and should return quickly.
type Observer interface {
	Notify(Event)
}

type ObserverFunc func(Event)

func (f ObserverFunc) Notify(ev Event) {
	f(ev)
}

// ProgressFunc adapts a plain (segment id, chunk length) callback.
func ProgressFunc(fn func(segmentID int, n int64)) Observer {
	return ObserverFunc(func(ev Event) {
		if ev.Kind == SegmentProgress {
			fn(ev.SegmentID, ev.Bytes)
		}
	})
}

// LogObserver logs segment lifecycle events.
func LogObserver(logger zerolog.Logger) Observer {
	return ObserverFunc(func(ev Event) {
		switch ev.Kind {
		case DownloadStarted:
			logger.Debug().Int64("total", ev.Total).Int64("resumed", ev.Downloaded).Int("segments", ev.Segments).Msg("Download started")
		case SegmentStarted:
			logger.Debug().Int("segment", ev.SegmentID).Int64("downloaded", ev.Downloaded).Int64("size", ev.Total).Msg("Segment started")
		case SegmentCompleted:
			logger.Debug().Int("segment", ev.SegmentID).Msg("Segment complete")
		case SegmentFailed:
			logger.Error().Err(ev.Err).Int("segment", ev.SegmentID).Int64("downloaded", ev.Downloaded).Msg("Segment failed")
		case SegmentInterrupted:
			logger.Info().Int("segment", ev.SegmentID).Int64("downloaded", ev.Downloaded).Msg("Segment interrupted")
		case DownloadFinished:
			logger.Debug().Str("outcome", ev.Outcome.String()).Int64("downloaded", ev.Downloaded).Msg("Download finished")
		}
	})
}
