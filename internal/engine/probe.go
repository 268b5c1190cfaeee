package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/tanq16/splitdl/internal/utils"
)

// ErrMetadata is returned when the remote resource cannot be probed or does
// not report a usable size.
var ErrMetadata = errors.New("metadata probe failed")

type RemoteInfo struct {
	Size           int64
	RangeSupported bool
}

// Probe issues a HEAD request for link and reads its size and range support.
func Probe(ctx context.Context, client utils.HTTPDoer, link string) (*RemoteInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, link, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: error creating request: %v", ErrMetadata, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMetadata, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: server returned %d", ErrMetadata, resp.StatusCode)
	}

	size := resp.ContentLength
	if contentLength := resp.Header.Get("Content-Length"); contentLength != "" {
		size, err = strconv.ParseInt(contentLength, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid Content-Length %q", ErrMetadata, contentLength)
		}
	}
	if size <= 0 {
		return nil, fmt.Errorf("%w: server didn't provide a usable Content-Length", ErrMetadata)
	}
	acceptRanges := strings.ToLower(resp.Header.Get("Accept-Ranges"))
	return &RemoteInfo{
		Size:           size,
		RangeSupported: strings.Contains(acceptRanges, "bytes"),
	}, nil
}
