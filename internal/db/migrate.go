/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/friendsincode/mixtape/internal/models"
)

// Migrate creates the catalog table (when the scanner has not already) and the ledger tables.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(
		&models.Track{},
		&models.LedgerScore{},
		&models.LedgerMoodPreference{},
		&models.LedgerHistoryEntry{},
		&models.LedgerTimestamp{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
