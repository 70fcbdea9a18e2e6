package models

import "time"

// NotificationRecord is one source-tagged scraper event. Two records with the
// same RelativeToScraperID or the same LongDesc are the same event; inserts
// are idempotent on either key.
type NotificationRecord struct {
	ID                  int64     `json:"id,omitempty" db:"id"`
	Source              string    `json:"source" db:"source"`
	ShortDesc           string    `json:"short_desc" db:"short_desc"`
	LongDesc            string    `json:"long_desc" db:"long_desc"`
	NotificationDate    time.Time `json:"notification_date" db:"notification_date"`
	RelativeToScraperID string    `json:"relative_to_scraper_id,omitempty" db:"relative_to_scraper_id"`
	BotUsername         string    `json:"bot_username,omitempty" db:"bot_username"`
}
