package utils

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"
)

var filenameRegex = regexp.MustCompile(`[^a-zA-Z0-9_\-\. ]+`)

func GetRandomUserAgent() string {
	return userAgents[time.Now().UnixNano()%int64(len(userAgents))]
}

// OutputPathFromURL infers a local file name from the last path element of
// link, falling back to "download".
func OutputPathFromURL(link string) string {
	parsedURL, err := url.Parse(link)
	if err != nil {
		return "download"
	}
	name := path.Base(parsedURL.Path)
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	name = filenameRegex.ReplaceAllString(name, "_")
	if name == "" || name == "." || name == "/" || strings.Trim(name, "_") == "" {
		return "download"
	}
	return name
}

func ParseHeaderArgs(headers []string) map[string]string {
	result := make(map[string]string)
	for _, header := range headers {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			result[key] = value
		}
	}
	return result
}

func FormatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func FormatSpeed(bytes int64, elapsed float64) string {
	if elapsed == 0 || bytes <= 0 {
		return "0 B/s"
	}
	bps := float64(bytes) / elapsed
	return FormatBytes(uint64(bps)) + "/s"
}
