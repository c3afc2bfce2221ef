package utils

import (
	"path/filepath"
	"strings"
)

const audioExt = ".opus"

// GetAudioFile is where the cached audio for videoID lives inside dir.
func GetAudioFile(dir, videoID string) string {
	return filepath.Join(dir, videoID+audioExt)
}

// GetAudioID recovers the video id from a cached audio file path.
func GetAudioID(path string) string {
	return strings.TrimSuffix(filepath.Base(path), audioExt)
}
