package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tanq16/splitdl/internal/engine"
	"github.com/tanq16/splitdl/internal/utils"
)

type segmentLine struct {
	ID         int
	Size       int64
	Downloaded int64
	Status     string
	Err        error
}

// Display renders engine events as a live progress view: one bar for the
// whole file and one per active segment. It implements engine.Observer.
type Display struct {
	out         io.Writer
	label       string
	mutex       sync.RWMutex
	total       int64
	downloaded  int64
	resumed     int64
	segments    map[int]*segmentLine
	outcome     string
	numLines    int
	displayTick time.Duration
	startTime   time.Time
	doneCh      chan struct{}
	displayWg   sync.WaitGroup
}

func NewDisplay(label string) *Display {
	return &Display{
		out:         os.Stdout,
		label:       label,
		segments:    make(map[int]*segmentLine),
		displayTick: 200 * time.Millisecond,
		startTime:   time.Now(),
		doneCh:      make(chan struct{}),
	}
}

func (d *Display) Notify(ev engine.Event) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	switch ev.Kind {
	case engine.DownloadStarted:
		d.total = ev.Total
		d.downloaded = ev.Downloaded
		d.resumed = ev.Downloaded
		d.startTime = time.Now()
	case engine.SegmentStarted:
		d.segments[ev.SegmentID] = &segmentLine{
			ID:         ev.SegmentID,
			Size:       ev.Total,
			Downloaded: ev.Downloaded,
			Status:     "IN_PROGRESS",
		}
	case engine.SegmentProgress:
		d.downloaded += ev.Bytes
		if seg, ok := d.segments[ev.SegmentID]; ok {
			seg.Downloaded = ev.Downloaded
		}
	case engine.SegmentCompleted, engine.SegmentFailed, engine.SegmentInterrupted:
		seg, ok := d.segments[ev.SegmentID]
		if !ok {
			seg = &segmentLine{ID: ev.SegmentID, Size: ev.Total}
			d.segments[ev.SegmentID] = seg
		}
		seg.Downloaded = ev.Downloaded
		seg.Status = "COMPLETED"
		switch ev.Kind {
		case engine.SegmentFailed:
			seg.Status = "FAILED"
			seg.Err = ev.Err
		case engine.SegmentInterrupted:
			seg.Status = "PENDING"
		}
	case engine.DownloadFinished:
		d.outcome = ev.Outcome.String()
	}
}

func (d *Display) sortedSegments() []*segmentLine {
	segs := make([]*segmentLine, 0, len(d.segments))
	for _, seg := range d.segments {
		segs = append(segs, seg)
	}
	sort.Slice(segs, func(i, j int) bool {
		return segs[i].ID < segs[j].ID
	})
	return segs
}

// render returns the current view, limited to maxLines lines.
func (d *Display) render(maxLines int) []string {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	elapsed := time.Since(d.startTime).Round(time.Second)
	status := "pending"
	switch d.outcome {
	case "complete":
		status = "success"
	case "partial":
		status = "error"
	}
	lines := []string{
		fmt.Sprintf("%s%s %s %s", strings.Repeat(" ", 2), StatusIndicator(status), FDebug(elapsed.String()), FPending(d.label)),
		fmt.Sprintf("%s%s%s %s %s",
			strings.Repeat(" ", 6),
			ProgressBar(d.downloaded, d.total, barWidth()),
			FDebug(fmt.Sprintf("%s / %s", utils.FormatBytes(uint64(max(d.downloaded, 0))), utils.FormatBytes(uint64(max(d.total, 0))))),
			StyleSymbols["bullet"],
			FDebug(utils.FormatSpeed(d.downloaded-d.resumed, time.Since(d.startTime).Seconds())),
		),
	}
	var completed, failed, paused int
	for _, seg := range d.sortedSegments() {
		switch seg.Status {
		case "COMPLETED":
			completed++
			continue
		case "FAILED":
			failed++
			continue
		case "PENDING":
			paused++
			continue
		}
		if len(lines) >= maxLines {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s%s %s%s",
			strings.Repeat(" ", 6),
			FDetail(fmt.Sprintf("Seg %-3d", seg.ID)),
			ProgressBar(seg.Downloaded, seg.Size, barWidth()/2),
			FDebug(utils.FormatBytes(uint64(seg.Size))),
		))
	}
	if (completed > 0 || failed > 0 || paused > 0) && len(lines) < maxLines {
		summary := FSuccess(fmt.Sprintf("%d segments done", completed))
		if failed > 0 {
			summary += FDebug(" "+StyleSymbols["dot"]+" ") + FError(fmt.Sprintf("%d failed", failed))
		}
		if paused > 0 {
			summary += FDebug(" "+StyleSymbols["dot"]+" ") + FWarning(fmt.Sprintf("%d paused", paused))
		}
		lines = append(lines, strings.Repeat(" ", 6)+summary)
	}
	return lines
}

func (d *Display) updateDisplay() {
	if d.numLines > 0 {
		fmt.Fprintf(d.out, "\033[%dA\033[J", d.numLines)
	}
	lines := d.render(getTerminalHeight() - 3)
	for _, line := range lines {
		fmt.Fprintln(d.out, line)
	}
	d.numLines = len(lines)
}

func (d *Display) StartDisplay() {
	d.displayWg.Add(1)
	go func() {
		defer d.displayWg.Done()
		ticker := time.NewTicker(d.displayTick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				d.updateDisplay()
			case <-d.doneCh:
				d.updateDisplay()
				return
			}
		}
	}()
}

func (d *Display) StopDisplay() {
	close(d.doneCh)
	d.displayWg.Wait()
	d.ShowSummary()
}

func (d *Display) ShowSummary() {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	fmt.Fprintln(d.out)
	var completed, paused int
	var failures []*segmentLine
	for _, seg := range d.sortedSegments() {
		switch seg.Status {
		case "COMPLETED":
			completed++
		case "FAILED":
			failures = append(failures, seg)
		case "PENDING":
			paused++
		}
	}
	fmt.Fprintln(d.out, strings.Repeat(" ", 2)+success2Style.Render(fmt.Sprintf("Completed %d of %d fetched segments", completed, len(d.segments))))
	if paused > 0 {
		fmt.Fprintln(d.out, strings.Repeat(" ", 2)+FWarning(fmt.Sprintf("Paused %d segments, progress saved", paused)))
	}
	if len(failures) > 0 {
		fmt.Fprintln(d.out, strings.Repeat(" ", 2)+errorStyle.Bold(true).Render("Errors:"))
		for _, seg := range failures {
			fmt.Fprintf(d.out, "%s%s %s\n",
				strings.Repeat(" ", 2+2),
				errorStyle.Render(fmt.Sprintf("Segment %d", seg.ID)),
				debugStyle.Render(fmt.Sprintf("(%s of %s)", utils.FormatBytes(uint64(seg.Downloaded)), utils.FormatBytes(uint64(seg.Size)))))
			fmt.Fprintf(d.out, "%s%s\n", strings.Repeat(" ", 2+4), errorStyle.Render(fmt.Sprintf("Error: %v", seg.Err)))
		}
	}
	fmt.Fprintln(d.out)
}
