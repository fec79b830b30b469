/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package ledger

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/friendsincode/mixtape/internal/models"
)

const sqlBatchSize = 200

// SQLStore persists the ledger in the application database. Each save
// replaces the tables in one transaction.
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore creates a store on db. Tables come from db.Migrate.
func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Load implements Store.
func (s *SQLStore) Load(ctx context.Context) (Snapshot, error) {
	snap := EmptySnapshot()
	db := s.db.WithContext(ctx)

	var scores []models.LedgerScore
	if err := db.Find(&scores).Error; err != nil {
		return snap, fmt.Errorf("load scores: %w", err)
	}
	for _, row := range scores {
		snap.Scores[row.Path] = row.Score
	}

	var moods []models.LedgerMoodPreference
	if err := db.Find(&moods).Error; err != nil {
		return snap, fmt.Errorf("load mood preferences: %w", err)
	}
	for _, row := range moods {
		snap.MoodPreferences[row.Mood] = row.Value
	}

	var history []models.LedgerHistoryEntry
	if err := db.Order("kind, position").Find(&history).Error; err != nil {
		return snap, fmt.Errorf("load history: %w", err)
	}
	for _, row := range history {
		switch row.Kind {
		case models.HistoryPlay:
			snap.PlayHistory = append(snap.PlayHistory, row.Path)
		case models.HistorySkip:
			snap.SkipHistory = append(snap.SkipHistory, row.Path)
		}
	}

	var stamps []models.LedgerTimestamp
	if err := db.Find(&stamps).Error; err != nil {
		return snap, fmt.Errorf("load timestamps: %w", err)
	}
	for _, row := range stamps {
		if row.LastPlayedAt > 0 {
			snap.LastPlayedAt[row.Path] = row.LastPlayedAt
		}
		if row.LastRecommendedAt > 0 {
			snap.LastRecommendedAt[row.Path] = row.LastRecommendedAt
		}
	}
	return snap, nil
}

// Save implements Store.
func (s *SQLStore) Save(ctx context.Context, snap Snapshot) error {
	scores := make([]models.LedgerScore, 0, len(snap.Scores))
	for path, score := range snap.Scores {
		scores = append(scores, models.LedgerScore{Path: path, Score: score})
	}
	moods := make([]models.LedgerMoodPreference, 0, len(snap.MoodPreferences))
	for mood, v := range snap.MoodPreferences {
		moods = append(moods, models.LedgerMoodPreference{Mood: mood, Value: v})
	}
	history := make([]models.LedgerHistoryEntry, 0, len(snap.PlayHistory)+len(snap.SkipHistory))
	for i, p := range snap.PlayHistory {
		history = append(history, models.LedgerHistoryEntry{Kind: models.HistoryPlay, Position: i, Path: p})
	}
	for i, p := range snap.SkipHistory {
		history = append(history, models.LedgerHistoryEntry{Kind: models.HistorySkip, Position: i, Path: p})
	}
	byPath := make(map[string]*models.LedgerTimestamp)
	stamp := func(path string) *models.LedgerTimestamp {
		ts, ok := byPath[path]
		if !ok {
			ts = &models.LedgerTimestamp{Path: path}
			byPath[path] = ts
		}
		return ts
	}
	for path, ms := range snap.LastPlayedAt {
		stamp(path).LastPlayedAt = ms
	}
	for path, ms := range snap.LastRecommendedAt {
		stamp(path).LastRecommendedAt = ms
	}
	stamps := make([]models.LedgerTimestamp, 0, len(byPath))
	for _, ts := range byPath {
		stamps = append(stamps, *ts)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{
			&models.LedgerScore{},
			&models.LedgerMoodPreference{},
			&models.LedgerHistoryEntry{},
			&models.LedgerTimestamp{},
		} {
			if err := tx.Where("1 = 1").Delete(model).Error; err != nil {
				return fmt.Errorf("clear %T: %w", model, err)
			}
		}
		if len(scores) > 0 {
			if err := tx.CreateInBatches(scores, sqlBatchSize).Error; err != nil {
				return fmt.Errorf("save scores: %w", err)
			}
		}
		if len(moods) > 0 {
			if err := tx.CreateInBatches(moods, sqlBatchSize).Error; err != nil {
				return fmt.Errorf("save mood preferences: %w", err)
			}
		}
		if len(history) > 0 {
			if err := tx.CreateInBatches(history, sqlBatchSize).Error; err != nil {
				return fmt.Errorf("save history: %w", err)
			}
		}
		if len(stamps) > 0 {
			if err := tx.CreateInBatches(stamps, sqlBatchSize).Error; err != nil {
				return fmt.Errorf("save timestamps: %w", err)
			}
		}
		return nil
	})
}
