package models

import "time"

// AttendanceFilter scopes the attendance summary used for teacher pay calculation.
type AttendanceFilter struct {
	StudioID  string
	From      time.Time
	To        time.Time
	TeacherID string
}

// AttendanceSummary aggregates session and booking outcomes for one teacher.
type AttendanceSummary struct {
	TeacherID string `db:"teacher_id" json:"teacher_id"`
	Sessions  int    `db:"sessions" json:"sessions"`
	Confirmed int    `db:"confirmed" json:"confirmed"`
	Completed int    `db:"completed" json:"completed"`
	NoShow    int    `db:"no_show" json:"no_show"`
	Cancelled int    `db:"cancelled" json:"cancelled"`
}

// SystemMetrics is a lightweight snapshot of process and cache health.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	BookingsConfirmed        uint64    `json:"bookings_confirmed"`
	WaitlistPromotions       uint64    `json:"waitlist_promotions"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
