package yt

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"time"

	"Nightjar/queue"
	"Nightjar/utils"

	"github.com/Strum355/log"
	"github.com/kkdai/youtube/v2"
)

// Resolver turns YouTube links and ids into playable streams. Metadata is
// cached with a TTL and audio is kept on disk after the first full download.
type Resolver struct {
	client   VideoClient
	cache    Cache
	cacheDir string
	metaTTL  time.Duration
	audioTTL time.Duration
}

type Options struct {
	CacheDir string
	MetaTTL  time.Duration
	AudioTTL time.Duration
}

// NewResolver creates a Resolver. cache may be nil to disable metadata caching.
func NewResolver(client VideoClient, cache Cache, opts Options) *Resolver {
	if client == nil {
		client = &youtube.Client{}
	}
	if opts.CacheDir != "" {
		if err := os.MkdirAll(opts.CacheDir, 0o755); err != nil {
			log.WithError(err).Warn("Unable to create audio cache directory, caching disabled")
			opts.CacheDir = ""
		}
	}
	return &Resolver{
		client:   client,
		cache:    cache,
		cacheDir: opts.CacheDir,
		metaTTL:  opts.MetaTTL,
		audioTTL: opts.AudioTTL,
	}
}

// VideoID extracts the video id from a link or bare id.
func VideoID(source string) (string, error) {
	id, err := youtube.ExtractVideoID(strings.TrimSpace(source))
	if err != nil {
		return "", queue.Unavailable(source, err)
	}
	return id, nil
}

func (r *Resolver) Resolve(ctx context.Context, source string) (*queue.Resolved, error) {
	id, err := VideoID(source)
	if err != nil {
		return nil, err
	}

	if res, ok := r.fromDisk(ctx, id); ok {
		return res, nil
	}

	video, err := r.client.GetVideoContext(ctx, id)
	if err != nil {
		return nil, classify(source, err)
	}
	meta := metaFromVideo(id, video)
	r.storeMeta(ctx, meta)

	rc, err := openStream(ctx, r.client, video)
	if err != nil {
		return nil, classify(source, err)
	}
	if r.cacheDir != "" {
		rc = newCachingReader(rc, utils.GetAudioFile(r.cacheDir, id))
		r.touchAudio(ctx, id)
	}

	return &queue.Resolved{
		Stream:     queue.NewStream(rc),
		Title:      meta.Title,
		DurationMs: meta.Duration.Milliseconds(),
	}, nil
}

// Metadata looks a video up without opening a stream.
func (r *Resolver) Metadata(ctx context.Context, source string) (VideoMeta, error) {
	id, err := VideoID(source)
	if err != nil {
		return VideoMeta{}, err
	}
	if meta, ok := r.cachedMeta(ctx, id); ok {
		return meta, nil
	}
	video, err := r.client.GetVideoContext(ctx, id)
	if err != nil {
		return VideoMeta{}, classify(source, err)
	}
	meta := metaFromVideo(id, video)
	r.storeMeta(ctx, meta)
	return meta, nil
}

func (r *Resolver) fromDisk(ctx context.Context, id string) (*queue.Resolved, bool) {
	if r.cacheDir == "" {
		return nil, false
	}
	meta, ok := r.cachedMeta(ctx, id)
	if !ok {
		return nil, false
	}
	stream, err := queue.OpenFile(utils.GetAudioFile(r.cacheDir, id))
	if err != nil {
		return nil, false
	}
	r.touchAudio(ctx, id)
	return &queue.Resolved{Stream: stream, Title: meta.Title, DurationMs: meta.Duration.Milliseconds()}, true
}

func (r *Resolver) cachedMeta(ctx context.Context, id string) (VideoMeta, bool) {
	if r.cache == nil {
		return VideoMeta{}, false
	}
	cached, err := r.cache.Get(ctx, metaKeyPrefix+id)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			log.WithError(err).Warn("Metadata cache lookup failed")
		}
		return VideoMeta{}, false
	}
	var meta VideoMeta
	if err := json.Unmarshal([]byte(cached), &meta); err != nil || meta.Title == "" {
		return VideoMeta{}, false
	}
	return meta, true
}

func (r *Resolver) storeMeta(ctx context.Context, meta VideoMeta) {
	if r.cache == nil || meta.Title == "" {
		return
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, metaKeyPrefix+meta.ID, string(data), r.metaTTL); err != nil {
		log.WithError(err).Warn("Metadata cache store failed")
	}
}

// touchAudio extends the lifetime of the cached audio file for id.
func (r *Resolver) touchAudio(ctx context.Context, id string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Set(ctx, audioKeyPrefix+id, "1", r.audioTTL); err != nil {
		log.WithError(err).Warn("Audio cache refresh failed")
	}
}

func metaFromVideo(id string, video *youtube.Video) VideoMeta {
	return VideoMeta{
		ID:       id,
		Title:    video.Title,
		Author:   video.Author,
		Duration: video.Duration,
	}
}
