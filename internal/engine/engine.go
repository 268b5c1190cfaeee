package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tanq16/splitdl/internal/fileio"
	"github.com/tanq16/splitdl/internal/state"
	"github.com/tanq16/splitdl/internal/utils"
)

type Outcome int

const (
	// Complete means every segment is on disk and the sidecar is gone.
	Complete Outcome = iota
	// Partial means at least one segment is not complete; the sidecar is
	// kept so that running again resumes.
	Partial
)

func (o Outcome) String() string {
	if o == Complete {
		return "complete"
	}
	return "partial"
}

type SegmentResult struct {
	ID              int
	Status          state.Status
	DownloadedBytes int64
	Err             error
}

type Result struct {
	Outcome     Outcome
	TotalSize   int64
	Downloaded  int64
	Segments    []SegmentResult
	Interrupted bool
	Elapsed     time.Duration
}

// Failed returns the results of segments that ended in error.
func (r *Result) Failed() []SegmentResult {
	var failed []SegmentResult
	for _, seg := range r.Segments {
		if seg.Err != nil {
			failed = append(failed, seg)
		}
	}
	return failed
}

type Option func(*Engine)

func WithClient(client utils.HTTPDoer) Option {
	return func(e *Engine) { e.client = client }
}

func WithChunkSize(size int) Option {
	return func(e *Engine) {
		if size > 0 {
			e.chunkSize = size
		}
	}
}

// WithCheckpointChunks persists state every n chunks of a segment. Zero
// disables mid-segment checkpoints.
func WithCheckpointChunks(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.checkpointChunks = n
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.log = logger }
}

func WithObserver(obs Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, obs) }
}

// Engine downloads one URL into one output file using concurrent range
// requests, resuming from the sidecar state file when one exists.
type Engine struct {
	url              string
	outputPath       string
	segments         int
	maxConcurrent    int
	chunkSize        int
	checkpointChunks int
	client           utils.HTTPDoer
	store            *state.Store
	log              zerolog.Logger
	observers        []Observer

	// mu guards state and serializes persistence
	mu     sync.Mutex
	state  *state.DownloadState
	writer *fileio.Writer
}

func New(url, outputPath string, segments, maxConcurrent int, opts ...Option) *Engine {
	e := &Engine{
		url:              url,
		outputPath:       outputPath,
		segments:         max(segments, 1),
		maxConcurrent:    max(maxConcurrent, 1),
		chunkSize:        utils.DefaultChunkSize,
		checkpointChunks: utils.DefaultCheckpointChunks,
		store:            state.NewStore(outputPath),
		log:              utils.GetLogger("engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.client == nil {
		e.client = utils.NewHTTPClient(utils.HTTPClientConfig{HighThreadMode: e.maxConcurrent > 5})
	}
	e.log = e.log.With().Str("run", uuid.NewString()[:8]).Logger()
	return e
}

// Subscribe registers an observer. It must be called before Start.
func (e *Engine) Subscribe(obs Observer) {
	e.observers = append(e.observers, obs)
}

func (e *Engine) StatePath() string {
	return e.store.Path()
}

// State returns a copy of the current download state, or nil before Start
// has acquired one.
func (e *Engine) State() *state.DownloadState {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil
	}
	return e.state.Clone()
}

// Start runs the download. Fatal conditions (probe failure, unusable output
// file, corrupt sidecar) are returned as errors before any segment is
// fetched. Segment failures and cancellation yield a Partial result.
func (e *Engine) Start(ctx context.Context) (*Result, error) {
	startTime := time.Now()
	st, err := e.acquireState(ctx)
	if err != nil {
		return nil, err
	}
	st, err = e.prepareOutput(ctx, st)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.state = st
	e.mu.Unlock()

	var pending []int
	for _, seg := range st.Segments {
		if seg.Status != state.Completed {
			pending = append(pending, seg.ID)
		}
	}
	e.emit(Event{Kind: DownloadStarted, Total: st.TotalSize, Downloaded: st.DownloadedBytes(), Segments: len(st.Segments)})

	results := make([]SegmentResult, len(st.Segments))
	if len(pending) > 0 {
		e.log.Info().Int("pending", len(pending)).Int("segments", len(st.Segments)).Int("concurrency", e.maxConcurrent).Msg("Downloading segments")
		writer, err := fileio.OpenWriter(e.outputPath)
		if err != nil {
			return nil, err
		}
		e.mu.Lock()
		e.writer = writer
		e.mu.Unlock()

		var g errgroup.Group
		g.SetLimit(e.maxConcurrent)
		for _, id := range pending {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				if ctx.Err() != nil {
					return nil
				}
				results[id] = e.fetchSegment(ctx, id)
				return nil
			})
		}
		g.Wait()

		e.mu.Lock()
		if err := writer.Close(); err != nil {
			e.log.Warn().Err(err).Msg("Error closing output file")
		}
		e.writer = nil
		e.mu.Unlock()
	} else {
		e.log.Info().Msg("Download already complete")
	}

	final := e.State()
	result := &Result{
		TotalSize:   final.TotalSize,
		Downloaded:  final.DownloadedBytes(),
		Interrupted: ctx.Err() != nil,
		Elapsed:     time.Since(startTime),
	}
	for _, seg := range final.Segments {
		res := results[seg.ID]
		res.ID = seg.ID
		res.Status = seg.Status
		res.DownloadedBytes = seg.DownloadedBytes
		result.Segments = append(result.Segments, res)
	}

	if final.IsComplete() {
		result.Outcome = Complete
		if err := e.store.Delete(); err != nil {
			e.log.Warn().Err(err).Msg("Could not remove state file")
		}
		e.log.Info().Str("output", e.outputPath).Msg("Download completed successfully")
	} else {
		result.Outcome = Partial
		e.log.Warn().Int("incomplete", len(final.Segments)-countCompleted(final)).Str("state", e.store.Path()).Msg("Download finished but not all segments completed")
	}
	e.emit(Event{Kind: DownloadFinished, Total: result.TotalSize, Downloaded: result.Downloaded, Segments: len(final.Segments), Outcome: result.Outcome})
	return result, nil
}

func (e *Engine) acquireState(ctx context.Context) (*state.DownloadState, error) {
	if e.store.Exists() {
		st, err := e.store.Load()
		if err != nil {
			return nil, err
		}
		if st.URL != e.url {
			e.log.Warn().Str("stateURL", st.URL).Str("url", e.url).Msg("State file belongs to another URL, starting over")
			return e.freshState(ctx)
		}
		e.log.Info().Str("state", e.store.Path()).Int64("downloaded", st.DownloadedBytes()).Msg("Found existing state file, resuming")
		return st, nil
	}
	e.log.Info().Str("url", e.url).Msg("Starting new download")
	return e.freshState(ctx)
}

// freshState probes the remote resource, plans segments and persists the
// new state before the output file is touched.
func (e *Engine) freshState(ctx context.Context) (*state.DownloadState, error) {
	info, err := Probe(ctx, e.client, e.url)
	if err != nil {
		return nil, err
	}
	if !info.RangeSupported {
		e.log.Warn().Msg("Server does not support ranges, falling back to a single segment")
	}
	n := e.segments
	if int64(n) > info.Size {
		n = int(info.Size)
	}
	st := &state.DownloadState{
		URL:        e.url,
		OutputFile: e.outputPath,
		TotalSize:  info.Size,
		Segments:   state.Plan(info.Size, n, info.RangeSupported),
	}
	if err := e.store.Save(st); err != nil {
		return nil, fmt.Errorf("%w: %v", fileio.ErrFileSystem, err)
	}
	e.log.Debug().Int64("size", info.Size).Int("segments", len(st.Segments)).Msg("Planned segments")
	return st, nil
}

func (e *Engine) prepareOutput(ctx context.Context, st *state.DownloadState) (*state.DownloadState, error) {
	size, exists, err := fileio.Size(e.outputPath)
	if err != nil {
		return nil, err
	}
	if !exists && st.HasProgress() {
		e.log.Warn().Str("output", e.outputPath).Msg("Output file missing but state records progress, resetting state")
		st, err = e.freshState(ctx)
		if err != nil {
			return nil, err
		}
	}
	if !exists || size != st.TotalSize {
		if exists {
			e.log.Info().Int64("current", size).Int64("expected", st.TotalSize).Msg("File size mismatch, adjusting")
		}
		if err := fileio.Preallocate(e.outputPath, st.TotalSize); err != nil {
			return nil, err
		}
	}
	return st, nil
}

func (e *Engine) segment(id int) state.Segment {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Segments[id]
}

// updateSegment applies fn to segment id under the state lock and returns
// the updated copy.
func (e *Engine) updateSegment(id int, fn func(*state.Segment)) state.Segment {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.state.Segments[id])
	return e.state.Segments[id]
}

// persist flushes the output file and then saves the state, both under the
// lock, so the sidecar never records bytes that are not on stable storage.
func (e *Engine) persist() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.writer != nil {
		if err := e.writer.Sync(); err != nil {
			return fmt.Errorf("error syncing output file: %w", err)
		}
	}
	return e.store.Save(e.state)
}

func (e *Engine) emit(ev Event) {
	for _, obs := range e.observers {
		obs.Notify(ev)
	}
}

func countCompleted(st *state.DownloadState) int {
	n := 0
	for _, seg := range st.Segments {
		if seg.Status == state.Completed {
			n++
		}
	}
	return n
}
