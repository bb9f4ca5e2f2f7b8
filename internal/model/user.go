package model

import (
	"time"
)

type User struct {
	ID         string    `db:"id" json:"id"`
	ChatID     string    `db:"chat_id" json:"chatId"`
	Username   *string   `db:"username" json:"username,omitempty"`
	FullName   *string   `db:"full_name" json:"fullName,omitempty"`
	ReferredBy *string   `db:"referred_by" json:"referredBy,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

type CreateUserParams struct {
	ChatID     string
	Username   *string
	FullName   *string
	ReferredBy *string
}

// UserSummary is the directory listing projection.
type UserSummary struct {
	ID       string  `db:"id"`
	FullName *string `db:"full_name"`
}
