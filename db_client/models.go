package db_client

import (
	"time"

	"Nightjar/queue"
)

// Song is one persisted queue entry. Position is 0-based within its guild.
type Song struct {
	ID           uint   `gorm:"primaryKey"`
	GuildID      string `gorm:"index:idx_songs_guild_position,priority:1;not null"`
	Position     int    `gorm:"index:idx_songs_guild_position,priority:2;not null"`
	ItemID       string `gorm:"size:36;not null"`
	URL          string `gorm:"not null"`
	Title        string
	LengthMs     int64
	QueuedBy     string
	PlaylistID   string
	PlaylistName string
	PlaylistRef  string
	PlaylistLen  int
	CreatedAt    time.Time
}

// ErrorLog records an error reported by a guild session.
type ErrorLog struct {
	ID        uint   `gorm:"primaryKey"`
	GuildID   string `gorm:"index"`
	Caller    string
	Message   string
	CreatedAt time.Time
}

func songFromItem(guildID string, position int, item *queue.Item) Song {
	meta := item.Meta()
	song := Song{
		GuildID:  guildID,
		Position: position,
		ItemID:   item.ID,
		URL:      item.Source,
		Title:    meta.Title,
		LengthMs: meta.DurationMs,
		QueuedBy: meta.RequestedBy,
	}
	if meta.Playlist != nil {
		song.PlaylistID = meta.Playlist.ID
		song.PlaylistName = meta.Playlist.Name
		song.PlaylistRef = meta.Playlist.Source
		song.PlaylistLen = meta.Playlist.Count
	}
	return song
}

// toItems rebuilds queue items, sharing one Playlist per playlist id.
func toItems(songs []Song) []*queue.Item {
	playlists := map[string]*queue.Playlist{}
	items := make([]*queue.Item, 0, len(songs))
	for _, song := range songs {
		meta := queue.Metadata{
			Title:       song.Title,
			DurationMs:  song.LengthMs,
			RequestedBy: song.QueuedBy,
		}
		if song.PlaylistID != "" {
			pl, ok := playlists[song.PlaylistID]
			if !ok {
				pl = &queue.Playlist{
					ID:     song.PlaylistID,
					Name:   song.PlaylistName,
					Count:  song.PlaylistLen,
					Source: song.PlaylistRef,
				}
				playlists[song.PlaylistID] = pl
			}
			meta.Playlist = pl
		}
		items = append(items, queue.RestoreItem(song.ItemID, song.URL, meta))
	}
	return items
}
