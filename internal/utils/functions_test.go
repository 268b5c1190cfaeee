package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOutputPathFromURL(t *testing.T) {
	tests := []struct {
		link string
		want string
	}{
		{"http://example.com/files/archive.tar.gz", "archive.tar.gz"},
		{"http://example.com/files/my%20file.iso?token=abc", "my file.iso"},
		{"http://example.com/", "download"},
		{"http://example.com", "download"},
		{"http://example.com/a/we*ird:name.bin", "we_ird_name.bin"},
	}
	for _, tt := range tests {
		if got := OutputPathFromURL(tt.link); got != tt.want {
			t.Errorf("OutputPathFromURL(%q) = %q, want %q", tt.link, got, tt.want)
		}
	}
}

func TestParseHeaderArgs(t *testing.T) {
	got := ParseHeaderArgs([]string{"Authorization: Basic abc", "X-Empty:", "garbage", "Cookie: a=b: c"})
	if got["Authorization"] != "Basic abc" {
		t.Errorf("Authorization = %q", got["Authorization"])
	}
	if v, ok := got["X-Empty"]; !ok || v != "" {
		t.Errorf("X-Empty = %q, %v", v, ok)
	}
	if got["Cookie"] != "a=b: c" {
		t.Errorf("Cookie = %q", got["Cookie"])
	}
	if len(got) != 3 {
		t.Errorf("got %d headers, want 3", len(got))
	}
}

func TestFormatBytes(t *testing.T) {
	tests := map[uint64]string{
		0:           "0 B",
		1023:        "1023 B",
		1024:        "1.00 KB",
		1536:        "1.50 KB",
		1024 * 1024: "1.00 MB",
	}
	for in, want := range tests {
		if got := FormatBytes(in); got != want {
			t.Errorf("FormatBytes(%d) = %q, want %q", in, got, want)
		}
	}
	if got := FormatSpeed(2048, 2); got != "1.00 KB/s" {
		t.Errorf("FormatSpeed = %q", got)
	}
}

func TestHTTPClientSetsHeaders(t *testing.T) {
	var gotUA, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAuth = r.Header.Get("Authorization")
	}))
	defer server.Close()

	client := NewHTTPClient(HTTPClientConfig{Headers: map[string]string{"Authorization": "Bearer x"}})
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()
	if gotUA != ToolUserAgent {
		t.Errorf("User-Agent = %q, want %q", gotUA, ToolUserAgent)
	}
	if gotAuth != "Bearer x" {
		t.Errorf("Authorization = %q", gotAuth)
	}
}
