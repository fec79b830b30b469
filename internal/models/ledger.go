package models

// History kinds stored in LedgerHistoryEntry.Kind.
const (
	HistoryPlay = "play"
	HistorySkip = "skip"
)

// LedgerScore is a persisted learned score.
type LedgerScore struct {
	Path  string `gorm:"primaryKey;size:768"`
	Score float64
}

// LedgerMoodPreference is a persisted per-dimension mood preference.
type LedgerMoodPreference struct {
	Mood  string `gorm:"primaryKey;size:32"`
	Value float64
}

// LedgerHistoryEntry is one slot of the play or skip history, oldest first by Position.
type LedgerHistoryEntry struct {
	Kind     string `gorm:"primaryKey;size:8"`
	Position int    `gorm:"primaryKey;autoIncrement:false"`
	Path     string `gorm:"size:768"`
}

// LedgerTimestamp holds last played and recommended times as unix milliseconds (0 = never).
type LedgerTimestamp struct {
	Path              string `gorm:"primaryKey;size:768"`
	LastPlayedAt      int64
	LastRecommendedAt int64
}
