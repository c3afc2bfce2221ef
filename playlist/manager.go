package playlist

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"Nightjar/queue"
	"Nightjar/yt"

	"github.com/Strum355/log"
	"github.com/kkdai/youtube/v2"
	"github.com/lrstanley/go-ytdlp"
)

var ErrEmptyPlaylist = errors.New("playlist has no playable videos")

// Client is the subset of youtube.Client used to read playlists.
type Client interface {
	GetPlaylistContext(ctx context.Context, url string) (*youtube.Playlist, error)
}

// MetadataSource looks up a single video.
type MetadataSource interface {
	Metadata(ctx context.Context, source string) (yt.VideoMeta, error)
}

// IDLister lists the video ids of a playlist.
type IDLister func(ctx context.Context, url string) ([]string, error)

// Expander turns a playlist link into queue items.
type Expander struct {
	client         Client
	meta           MetadataSource
	listIDs        IDLister
	maxConcurrency int
}

func NewExpander(client Client, meta MetadataSource, maxConcurrency int) *Expander {
	if client == nil {
		client = &youtube.Client{}
	}
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	return &Expander{
		client:         client,
		meta:           meta,
		listIDs:        FlatPlaylistIDs,
		maxConcurrency: maxConcurrency,
	}
}

// IsPlaylist reports whether ref points at a playlist rather than a single video.
func IsPlaylist(ref string) bool {
	return strings.Contains(ref, "list=")
}

// Expand returns the playlist described by ref and one item per video in it.
// Videos whose metadata cannot be fetched are left out and counted in failed.
func (e *Expander) Expand(ctx context.Context, ref, requestedBy string) (pl *queue.Playlist, items []*queue.Item, failed int, err error) {
	list, err := e.client.GetPlaylistContext(ctx, ref)
	if err == nil && len(list.Videos) > 0 {
		pl = &queue.Playlist{ID: list.ID, Name: list.Title, Count: len(list.Videos), Source: ref}
		for _, entry := range list.Videos {
			items = append(items, queue.NewItem(watchURL(entry.ID), queue.Metadata{
				Title:       entry.Title,
				DurationMs:  entry.Duration.Milliseconds(),
				RequestedBy: requestedBy,
				Playlist:    pl,
			}))
		}
		return pl, items, 0, nil
	}
	if err != nil {
		log.WithError(err).Warn("Playlist API lookup failed, falling back to yt-dlp")
	}

	ids, lerr := e.listIDs(ctx, ref)
	if lerr != nil {
		return nil, nil, 0, fmt.Errorf("listing playlist %s: %w", ref, lerr)
	}
	if len(ids) == 0 {
		return nil, nil, 0, ErrEmptyPlaylist
	}

	metas, failed := FetchMetadataConcurrently(ctx, ids, e.meta, e.maxConcurrency)
	if len(metas) == 0 {
		return nil, nil, failed, ErrEmptyPlaylist
	}

	pl = &queue.Playlist{ID: playlistID(ref), Name: playlistID(ref), Count: len(metas), Source: ref}
	for _, meta := range metas {
		items = append(items, queue.NewItem(watchURL(meta.ID), queue.Metadata{
			Title:       meta.Title,
			DurationMs:  meta.Duration.Milliseconds(),
			RequestedBy: requestedBy,
			Playlist:    pl,
		}))
	}
	return pl, items, failed, nil
}

// FlatPlaylistIDs asks yt-dlp for the ids in a playlist without resolving each video.
func FlatPlaylistIDs(ctx context.Context, url string) ([]string, error) {
	res, err := ytdlp.New().
		FlatPlaylist().
		Print("%(id)s").
		NoWarnings().
		IgnoreConfig().
		Run(ctx, url)
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		if id := strings.TrimSpace(line); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func watchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

func playlistID(ref string) string {
	_, after, ok := strings.Cut(ref, "list=")
	if !ok {
		return ref
	}
	id, _, _ := strings.Cut(after, "&")
	return id
}
