// Package useragent classifies inbound requests by mobile platform.
package useragent

import "strings"

// Platform is the coarse device family derived from a User-Agent string.
type Platform int

const (
	Other Platform = iota
	Android
	IOS
)

func (p Platform) String() string {
	switch p {
	case Android:
		return "android"
	case IOS:
		return "ios"
	default:
		return "other"
	}
}

// Classify maps a User-Agent string to a Platform. Matching is
// case-insensitive substring search, the same heuristic app-store landing
// pages have always used.
func Classify(ua string) Platform {
	lower := strings.ToLower(ua)
	switch {
	case strings.Contains(lower, "android"):
		return Android
	case strings.Contains(lower, "iphone"),
		strings.Contains(lower, "ipad"),
		strings.Contains(lower, "ipod"):
		return IOS
	default:
		return Other
	}
}
