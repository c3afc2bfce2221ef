package db_client

import (
	"context"

	"Nightjar/queue"

	"gorm.io/gorm"
)

// QueueStore keeps each guild's queue in the songs table.
type QueueStore struct {
	db *gorm.DB
}

func NewQueueStore(db *gorm.DB) *QueueStore {
	return &QueueStore{db: db}
}

func (q *QueueStore) LoadQueue(ctx context.Context, guildID string) ([]*queue.Item, error) {
	var songs []Song
	err := q.db.WithContext(ctx).
		Where("guild_id = ?", guildID).
		Order("position").
		Find(&songs).Error
	if err != nil {
		return nil, err
	}
	return toItems(songs), nil
}

func (q *QueueStore) AppendItems(ctx context.Context, guildID string, items []*queue.Item) error {
	if len(items) == 0 {
		return nil
	}
	return q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Song{}).Where("guild_id = ?", guildID).Count(&count).Error; err != nil {
			return err
		}
		return tx.Create(songsFrom(guildID, int(count), items)).Error
	})
}

// DeleteRange removes count entries starting at start and shifts later entries down.
func (q *QueueStore) DeleteRange(ctx context.Context, guildID string, start, count int) error {
	if count <= 0 {
		return nil
	}
	return q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("guild_id = ? AND position >= ? AND position < ?", guildID, start, start+count).
			Delete(&Song{}).Error
		if err != nil {
			return err
		}
		return tx.Model(&Song{}).
			Where("guild_id = ? AND position >= ?", guildID, start+count).
			Update("position", gorm.Expr("position - ?", count)).Error
	})
}

func (q *QueueStore) ReplaceQueue(ctx context.Context, guildID string, items []*queue.Item) error {
	return q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("guild_id = ?", guildID).Delete(&Song{}).Error; err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}
		return tx.Create(songsFrom(guildID, 0, items)).Error
	})
}

func (q *QueueStore) Clear(ctx context.Context, guildID string) error {
	return q.db.WithContext(ctx).Where("guild_id = ?", guildID).Delete(&Song{}).Error
}

func songsFrom(guildID string, offset int, items []*queue.Item) []Song {
	songs := make([]Song, 0, len(items))
	for i, item := range items {
		songs = append(songs, songFromItem(guildID, offset+i, item))
	}
	return songs
}
