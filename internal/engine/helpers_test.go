package engine

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tanq16/splitdl/internal/state"
)

// rangeServer serves data with optional range support and lets tests
// inject broken or stalled responses keyed by the requested start offset.
type rangeServer struct {
	*httptest.Server
	data         []byte
	acceptRanges bool
	// ignoreRange advertises range support but answers every GET with 200.
	ignoreRange bool
	delay        time.Duration
	// abortAfter sends that many bytes of the response, then drops the connection.
	abortAfter map[int64]int64
	// stallAfter sends that many bytes, then waits for the client to go away.
	stallAfter map[int64]int64

	mu     sync.Mutex
	ranges []string
	heads  atomic.Int32
	gets   atomic.Int32
	active atomic.Int32
	peak   atomic.Int32
}

func newRangeServer(t *testing.T, data []byte) *rangeServer {
	t.Helper()
	s := &rangeServer{
		data:         data,
		acceptRanges: true,
		abortAfter:   map[int64]int64{},
		stallAfter:   map[int64]int64{},
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

func (s *rangeServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodHead {
		s.heads.Add(1)
		w.Header().Set("Content-Length", strconv.Itoa(len(s.data)))
		if s.acceptRanges {
			w.Header().Set("Accept-Ranges", "bytes")
		}
		return
	}
	s.gets.Add(1)
	cur := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		old := s.peak.Load()
		if cur <= old || s.peak.CompareAndSwap(old, cur) {
			break
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	rangeHeader := r.Header.Get("Range")
	s.mu.Lock()
	s.ranges = append(s.ranges, rangeHeader)
	s.mu.Unlock()

	if !s.acceptRanges || s.ignoreRange || rangeHeader == "" {
		w.Header().Set("Content-Length", strconv.Itoa(len(s.data)))
		w.Write(s.data)
		return
	}
	parts := strings.Split(strings.TrimPrefix(rangeHeader, "bytes="), "-")
	start, _ := strconv.ParseInt(parts[0], 10, 64)
	end, _ := strconv.ParseInt(parts[1], 10, 64)
	if end >= int64(len(s.data)) {
		end = int64(len(s.data)) - 1
	}
	body := s.data[start : end+1]
	w.Header().Set("Content-Range", "bytes "+strconv.FormatInt(start, 10)+"-"+strconv.FormatInt(end, 10)+"/"+strconv.Itoa(len(s.data)))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusPartialContent)

	if n, ok := s.abortAfter[start]; ok {
		w.Write(body[:n])
		w.(http.Flusher).Flush()
		panic(http.ErrAbortHandler)
	}
	if n, ok := s.stallAfter[start]; ok {
		w.Write(body[:n])
		w.(http.Flusher).Flush()
		<-r.Context().Done()
		return
	}
	w.Write(body)
}

func (s *rangeServer) rangesSeen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ranges...)
}

func testData(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i*7 + i/256)
	}
	return data
}

func testEngine(url, output string, segments, concurrent int, opts ...Option) *Engine {
	opts = append([]Option{WithLogger(zerolog.Nop()), WithChunkSize(1024)}, opts...)
	return New(url, output, segments, concurrent, opts...)
}

// progressRecorder sums progress events per segment and checks that no
// segment counter ever exceeds its capacity.
type progressRecorder struct {
	mu       sync.Mutex
	bytes    map[int]int64
	overflow bool
	started  int
	finished []Event
}

func newProgressRecorder() *progressRecorder {
	return &progressRecorder{bytes: map[int]int64{}}
}

func (p *progressRecorder) Notify(ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch ev.Kind {
	case DownloadStarted:
		p.started++
	case SegmentProgress:
		p.bytes[ev.SegmentID] += ev.Bytes
		if ev.Downloaded > ev.Total {
			p.overflow = true
		}
	case DownloadFinished:
		p.finished = append(p.finished, ev)
	}
}

func writeState(t *testing.T, st *state.DownloadState) {
	t.Helper()
	if err := state.NewStore(st.OutputFile).Save(st); err != nil {
		t.Fatalf("save state: %v", err)
	}
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return data
}

func outputPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "out.bin")
}
