package playlist

import (
	"context"
	"sync"

	"Nightjar/yt"

	"github.com/Strum355/log"
)

// FetchMetadataConcurrently looks up videoIDs with limited concurrency. The
// result keeps playlist order and leaves out failed lookups.
func FetchMetadataConcurrently(ctx context.Context, videoIDs []string, source MetadataSource, maxConcurrency int) ([]yt.VideoMeta, int) {
	ordered := make([]*yt.VideoMeta, len(videoIDs))
	failed := 0
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, maxConcurrency)

	for idx, videoID := range videoIDs {
		wg.Add(1)
		go func(index int, vid string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				mu.Lock()
				failed++
				mu.Unlock()
				return
			}
			defer func() { <-sem }()

			meta, err := source.Metadata(ctx, vid)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.WithError(err).Debug("Skipping playlist entry " + vid)
				failed++
				return
			}
			ordered[index] = &meta
		}(idx, videoID)
	}

	wg.Wait()

	metas := make([]yt.VideoMeta, 0, len(videoIDs))
	for _, meta := range ordered {
		if meta != nil {
			metas = append(metas, *meta)
		}
	}
	return metas, failed
}
