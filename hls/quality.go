package hls

import (
	"fmt"
	"strings"
)

// Quality is a named transcoding preset
type Quality string

const (
	QualityLow    Quality = "LOW"
	QualityMedium Quality = "MEDIUM"
	QualityHigh   Quality = "HIGH"
	QualityUltra  Quality = "ULTRA"
)

// DefaultQuality is what new streams transcode at until changed
const DefaultQuality = QualityMedium

// profile bundles the FFmpeg encoding parameters for one quality level
type profile struct {
	Bitrate    string
	Resolution string
	FrameRate  string
	Preset     string // empty means no -preset flag
}

var profiles = map[Quality]profile{
	QualityLow:    {Bitrate: "500k", Resolution: "640x360", FrameRate: "15"},
	QualityMedium: {Bitrate: "1500k", Resolution: "1280x720", FrameRate: "25"},
	QualityHigh:   {Bitrate: "3000k", Resolution: "1920x1080", FrameRate: "30"},
	QualityUltra:  {Bitrate: "6000k", Resolution: "1920x1080", FrameRate: "30", Preset: "fast"},
}

// ParseQuality maps a user-supplied string onto a known quality level
func ParseQuality(s string) (Quality, error) {
	q := Quality(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := profiles[q]; !ok {
		return "", fmt.Errorf("unknown quality %q", s)
	}
	return q, nil
}
