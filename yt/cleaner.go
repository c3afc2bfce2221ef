package yt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"Nightjar/utils"

	"github.com/Strum355/log"
)

// CleanCache removes cached audio whose liveness key has expired, along with
// partial downloads older than the audio TTL.
func (r *Resolver) CleanCache(ctx context.Context) int {
	if r.cacheDir == "" || r.cache == nil {
		return 0
	}
	files, err := os.ReadDir(r.cacheDir)
	if err != nil {
		log.WithError(err).Warn("Unable to read audio cache")
		return 0
	}

	removed := 0
	for _, file := range files {
		path := filepath.Join(r.cacheDir, file.Name())
		if strings.HasSuffix(file.Name(), ".part") {
			if info, err := file.Info(); err == nil && time.Since(info.ModTime()) > r.audioTTL {
				if os.Remove(path) == nil {
					removed++
				}
			}
			continue
		}
		live, err := r.cache.Exists(ctx, audioKeyPrefix+utils.GetAudioID(path))
		if err != nil {
			log.WithError(err).Warn("Audio cache liveness check failed")
			return removed
		}
		if !live && os.Remove(path) == nil {
			removed++
		}
	}
	return removed
}

// StartCacheCleaning runs CleanCache every interval until ctx is done.
func (r *Resolver) StartCacheCleaning(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				log.Info("Beginning cache cleanup!")
				n := r.CleanCache(ctx)
				log.Info(fmt.Sprintf("Cache cleanup removed %d files", n))
			}
		}
	}()
}

// PurgeCache deletes every cached audio file.
func (r *Resolver) PurgeCache() {
	if r.cacheDir == "" {
		return
	}
	files, err := os.ReadDir(r.cacheDir)
	if err != nil {
		return
	}
	for _, file := range files {
		_ = os.RemoveAll(filepath.Join(r.cacheDir, file.Name()))
	}
	log.Info("Cache cleanup completed")
}
