package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/tanq16/splitdl/internal/state"
)

// ErrSegmentFetch marks a network or protocol failure of one segment. It
// never aborts the run; it is reported on the segment's result.
var ErrSegmentFetch = errors.New("segment fetch failed")

// fetchSegment drives one segment from its resume point to a terminal
// status. The returned result is the only way a failure leaves the segment.
func (e *Engine) fetchSegment(ctx context.Context, id int) SegmentResult {
	seg := e.segment(id)
	if seg.ResumeOffset() > seg.End {
		return e.finishSegment(ctx, id, nil)
	}

	e.updateSegment(id, func(s *state.Segment) { s.Status = state.InProgress })
	e.emit(Event{Kind: SegmentStarted, SegmentID: id, Downloaded: seg.DownloadedBytes, Total: seg.Capacity()})
	e.log.Debug().Int("segment", id).Str("range", fmt.Sprintf("bytes=%d-%d", seg.ResumeOffset(), seg.End)).Msg("Starting segment")

	err := e.streamSegment(ctx, seg)
	return e.finishSegment(ctx, id, err)
}

func (e *Engine) streamSegment(ctx context.Context, seg state.Segment) error {
	resumeOffset := seg.ResumeOffset()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.url, nil)
	if err != nil {
		return fmt.Errorf("%w: error creating request: %v", ErrSegmentFetch, err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", resumeOffset, seg.End))
	req.Header.Set("Connection", "keep-alive")
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSegmentFetch, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: server returned %d", ErrSegmentFetch, resp.StatusCode)
	}
	// A full-body response is only usable when it starts where we do.
	if resp.StatusCode != http.StatusPartialContent && resumeOffset > 0 {
		return fmt.Errorf("%w: server ignored range request (status %d)", ErrSegmentFetch, resp.StatusCode)
	}

	downloaded := seg.DownloadedBytes
	capacity := seg.Capacity()
	body := io.LimitReader(resp.Body, seg.Remaining())
	buffer := make([]byte, e.chunkSize)
	chunks := 0
	for {
		bytesRead, readErr := body.Read(buffer)
		if bytesRead > 0 {
			if err := e.writer.WriteAt(buffer[:bytesRead], seg.Start+downloaded); err != nil {
				return fmt.Errorf("%w: %v", ErrSegmentFetch, err)
			}
			n := int64(bytesRead)
			e.updateSegment(seg.ID, func(s *state.Segment) { s.DownloadedBytes += n })
			downloaded += n
			e.emit(Event{Kind: SegmentProgress, SegmentID: seg.ID, Bytes: n, Downloaded: downloaded, Total: capacity})
			chunks++
			if e.checkpointChunks > 0 && chunks%e.checkpointChunks == 0 {
				if err := e.persist(); err != nil {
					e.log.Warn().Err(err).Int("segment", seg.ID).Msg("Checkpoint failed")
				}
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return fmt.Errorf("%w: error reading response body: %v", ErrSegmentFetch, readErr)
		}
	}
	if downloaded != capacity {
		return fmt.Errorf("%w: stream ended after %d of %d bytes", ErrSegmentFetch, downloaded, capacity)
	}
	return nil
}

// finishSegment records the terminal status of a segment and persists the
// state. An interrupted segment goes back to Pending with the bytes whose
// writes already returned.
func (e *Engine) finishSegment(ctx context.Context, id int, err error) SegmentResult {
	status := state.Completed
	kind := SegmentCompleted
	if err != nil {
		status = state.Failed
		kind = SegmentFailed
		if ctx.Err() != nil {
			status = state.Pending
			kind = SegmentInterrupted
			err = fmt.Errorf("%w: interrupted: %v", ErrSegmentFetch, ctx.Err())
		}
	}
	seg := e.updateSegment(id, func(s *state.Segment) { s.Status = status })
	if perr := e.persist(); perr != nil {
		e.log.Error().Err(perr).Int("segment", id).Msg("Failed to save state")
	}
	e.emit(Event{Kind: kind, SegmentID: id, Downloaded: seg.DownloadedBytes, Total: seg.Capacity(), Err: err})
	return SegmentResult{
		ID:              id,
		Status:          seg.Status,
		DownloadedBytes: seg.DownloadedBytes,
		Err:             err,
	}
}
