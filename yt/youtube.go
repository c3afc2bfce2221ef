package yt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"Nightjar/queue"

	"github.com/Strum355/log"
	"github.com/kkdai/youtube/v2"
)

var errNoAudio = errors.New("video has no audio formats")

// classify sorts a youtube client error into the queue error taxonomy.
func classify(source string, err error) error {
	switch {
	case errors.Is(err, youtube.ErrVideoPrivate),
		errors.Is(err, youtube.ErrInvalidCharactersInVideoID),
		errors.Is(err, youtube.ErrVideoIDMinLength),
		errors.Is(err, errNoAudio):
		return queue.Unavailable(source, err)
	default:
		return queue.Transient(source, err)
	}
}

// audioFormat picks the stream to play, preferring audio-only formats.
func audioFormat(video *youtube.Video) (*youtube.Format, error) {
	formats := video.Formats.WithAudioChannels()
	if audioOnly := formats.Type("audio"); len(audioOnly) > 0 {
		formats = audioOnly
	}
	if len(formats) == 0 {
		return nil, errNoAudio
	}
	return &formats[0], nil
}

// openStream starts downloading video's audio.
func openStream(ctx context.Context, client VideoClient, video *youtube.Video) (io.ReadCloser, error) {
	format, err := audioFormat(video)
	if err != nil {
		return nil, err
	}
	rc, _, err := client.GetStreamContext(ctx, video, format)
	if err != nil {
		return nil, err
	}
	return rc, nil
}

// cachingReader copies everything read from the download into a partial file
// and moves it into place once the download reaches EOF. Closing early
// discards the partial file.
type cachingReader struct {
	src  io.ReadCloser
	path string

	mu   sync.Mutex
	part *os.File
	done bool
}

func newCachingReader(src io.ReadCloser, path string) io.ReadCloser {
	part, err := os.Create(path + ".part")
	if err != nil {
		log.WithError(err).Warn("Unable to cache audio to " + path)
		return src
	}
	return &cachingReader{src: src, path: path, part: part}
}

func (r *cachingReader) Read(p []byte) (int, error) {
	n, err := r.src.Read(p)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.part != nil && n > 0 {
		if _, werr := r.part.Write(p[:n]); werr != nil {
			log.WithError(werr).Warn("Audio cache write failed")
			r.discardLocked()
		}
	}
	if errors.Is(err, io.EOF) {
		r.commitLocked()
	}
	return n, err
}

func (r *cachingReader) Close() error {
	r.mu.Lock()
	r.discardLocked()
	r.mu.Unlock()
	return r.src.Close()
}

func (r *cachingReader) commitLocked() {
	if r.part == nil || r.done {
		return
	}
	r.done = true
	name := r.part.Name()
	if err := r.part.Close(); err != nil {
		os.Remove(name)
		r.part = nil
		return
	}
	r.part = nil
	if err := os.Rename(name, r.path); err != nil {
		log.WithError(err).Warn(fmt.Sprintf("Unable to move cached audio into %s", r.path))
		os.Remove(name)
	}
}

func (r *cachingReader) discardLocked() {
	if r.part == nil {
		return
	}
	name := r.part.Name()
	r.part.Close()
	os.Remove(name)
	r.part = nil
}
