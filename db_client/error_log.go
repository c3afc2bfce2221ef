package db_client

import (
	"context"

	"gorm.io/gorm"
)

// ErrorStore appends reported errors to the error_logs table.
type ErrorStore struct {
	db *gorm.DB
}

func NewErrorStore(db *gorm.DB) *ErrorStore {
	return &ErrorStore{db: db}
}

func (e *ErrorStore) RecordError(ctx context.Context, guildID, caller, message string) error {
	return e.db.WithContext(ctx).Create(&ErrorLog{
		GuildID: guildID,
		Caller:  caller,
		Message: message,
	}).Error
}
