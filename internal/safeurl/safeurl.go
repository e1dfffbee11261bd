package safeurl

import "net/url"

// IsValidStreamURL returns true if u is a URL whose scheme matches the
// job's declared stream type ("http" accepts http/https, "rtsp" accepts
// only rtsp://). Jobs are rejected at creation time if the URL's scheme
// doesn't match what the operator claims.
func IsValidStreamURL(u, streamType string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	switch streamType {
	case "rtsp":
		return parsed.Scheme == "rtsp"
	case "http":
		return parsed.Scheme == "http" || parsed.Scheme == "https"
	default:
		return false
	}
}
