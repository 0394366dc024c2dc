package models

import "time"

// StudioSettings carries per-studio scheduling configuration.
type StudioSettings struct {
	StudioID                  string    `db:"studio_id" json:"studio_id"`
	Timezone                  string    `db:"timezone" json:"timezone"`
	NotificationWindowMinutes int       `db:"notification_window_minutes" json:"notification_window_minutes"`
	UpdatedAt                 time.Time `db:"updated_at" json:"updated_at"`
}

// NotificationWindow is how long a promoted waitlist entry holds its seat.
func (s StudioSettings) NotificationWindow() time.Duration {
	return time.Duration(s.NotificationWindowMinutes) * time.Minute
}

// Location resolves the studio timezone. An empty timezone means UTC.
func (s StudioSettings) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(s.Timezone)
}
