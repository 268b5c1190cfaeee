package state

import (
	"fmt"
)

// Status is the fetch state of a single segment.
type Status int

const (
	Pending Status = iota
	InProgress
	Completed
	Failed
)

var statusNames = map[Status]string{
	Pending:    "PENDING",
	InProgress: "IN_PROGRESS",
	Completed:  "COMPLETED",
	Failed:     "FAILED",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

func (s Status) MarshalText() ([]byte, error) {
	name, ok := statusNames[s]
	if !ok {
		return nil, fmt.Errorf("unknown segment status %d", int(s))
	}
	return []byte(name), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	for status, name := range statusNames {
		if name == string(text) {
			*s = status
			return nil
		}
	}
	return fmt.Errorf("unknown segment status %q", string(text))
}

// Segment is one inclusive byte range of the remote resource.
type Segment struct {
	ID              int    `json:"id"`
	Start           int64  `json:"start"`
	End             int64  `json:"end"`
	Status          Status `json:"status"`
	DownloadedBytes int64  `json:"downloaded_bytes"`
}

// Capacity is the number of bytes the segment covers.
func (s Segment) Capacity() int64 {
	return s.End - s.Start + 1
}

// ResumeOffset is the absolute file offset the next fetch starts from.
func (s Segment) ResumeOffset() int64 {
	return s.Start + s.DownloadedBytes
}

func (s Segment) Remaining() int64 {
	return s.Capacity() - s.DownloadedBytes
}

// DownloadState is everything needed to resume a download. It is the
// document persisted in the sidecar file.
type DownloadState struct {
	URL        string    `json:"url"`
	OutputFile string    `json:"output_file"`
	TotalSize  int64     `json:"total_size"`
	Segments   []Segment `json:"segments"`
}

func (d *DownloadState) IsComplete() bool {
	for _, seg := range d.Segments {
		if seg.Status != Completed {
			return false
		}
	}
	return true
}

// HasProgress reports whether any bytes are recorded as written.
func (d *DownloadState) HasProgress() bool {
	for _, seg := range d.Segments {
		if seg.Status == Completed || seg.DownloadedBytes > 0 {
			return true
		}
	}
	return false
}

func (d *DownloadState) DownloadedBytes() int64 {
	var total int64
	for _, seg := range d.Segments {
		total += seg.DownloadedBytes
	}
	return total
}

// Clone returns a deep copy safe to read without holding the owner's lock.
func (d *DownloadState) Clone() *DownloadState {
	c := *d
	c.Segments = make([]Segment, len(d.Segments))
	copy(c.Segments, d.Segments)
	return &c
}

// Validate checks that the segments tile [0, TotalSize) in id order and
// that every byte counter is within its segment.
func (d *DownloadState) Validate() error {
	if d.TotalSize < 1 {
		return fmt.Errorf("total size %d is not positive", d.TotalSize)
	}
	if len(d.Segments) == 0 {
		return fmt.Errorf("no segments")
	}
	var next int64
	for i, seg := range d.Segments {
		if seg.ID != i {
			return fmt.Errorf("segment at position %d has id %d", i, seg.ID)
		}
		if seg.Start != next {
			return fmt.Errorf("segment %d starts at %d, expected %d", seg.ID, seg.Start, next)
		}
		if seg.End < seg.Start {
			return fmt.Errorf("segment %d ends at %d before its start %d", seg.ID, seg.End, seg.Start)
		}
		if seg.DownloadedBytes < 0 || seg.DownloadedBytes > seg.Capacity() {
			return fmt.Errorf("segment %d has %d downloaded bytes for capacity %d", seg.ID, seg.DownloadedBytes, seg.Capacity())
		}
		if seg.Status == Completed && seg.DownloadedBytes != seg.Capacity() {
			return fmt.Errorf("segment %d is completed with %d of %d bytes", seg.ID, seg.DownloadedBytes, seg.Capacity())
		}
		next = seg.End + 1
	}
	if next != d.TotalSize {
		return fmt.Errorf("segments cover %d bytes, total size is %d", next, d.TotalSize)
	}
	return nil
}
