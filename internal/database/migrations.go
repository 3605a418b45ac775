package database

import (
	"log"

	"gorm.io/gorm"
)

// cleanupDuplicatePriceLinks removes duplicate price_links rows before the
// unique constraints are added. This runs BEFORE AutoMigrate to prevent
// constraint violations on databases created by earlier schema versions.
func cleanupDuplicatePriceLinks(db *gorm.DB) error {
	if !db.Migrator().HasTable("price_links") {
		return nil // No table, no duplicates to clean
	}

	// Keep the most recently updated link per card, drop the rest
	result := db.Exec(`
		DELETE FROM price_links
		WHERE id NOT IN (
			SELECT MAX(id)
			FROM price_links
			GROUP BY card_id
		)
	`)
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected > 0 {
		log.Printf("Cleaned up %d duplicate price_links entries", result.RowsAffected)
	}

	// Same idea for the product id: the partial unique index on
	// pc_product_id cannot be created while older rows share one.
	result = db.Exec(`
		DELETE FROM price_links
		WHERE pc_product_id <> ''
		AND id NOT IN (
			SELECT MAX(id)
			FROM price_links
			WHERE pc_product_id <> ''
			GROUP BY pc_product_id
		)
	`)
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected > 0 {
		log.Printf("Cleaned up %d price_links entries sharing a product id", result.RowsAffected)
	}

	return nil
}

// RunMigrations runs any custom data migrations after schema changes
func RunMigrations(db *gorm.DB) error {
	if err := normalizeSnapshotSources(db); err != nil {
		return err
	}
	if err := closeOrphanedJobs(db); err != nil {
		return err
	}
	return nil
}

// normalizeSnapshotSources backfills the source column on snapshots written
// before the column existed.
func normalizeSnapshotSources(db *gorm.DB) error {
	if !db.Migrator().HasTable("price_snapshots") {
		return nil
	}

	result := db.Exec(`UPDATE price_snapshots SET source = 'pricecharting' WHERE source IS NULL OR source = ''`)
	if result.Error != nil {
		log.Printf("Warning: failed to normalize snapshot sources: %v", result.Error)
		return nil
	}
	if result.RowsAffected > 0 {
		log.Printf("Normalized source on %d price snapshots", result.RowsAffected)
	}
	return nil
}

// closeOrphanedJobs marks jobs still flagged running from a previous process
// as failed. A running row can only be trusted while the process that wrote
// it is alive.
func closeOrphanedJobs(db *gorm.DB) error {
	if !db.Migrator().HasTable("job_histories") {
		return nil
	}

	result := db.Exec(`
		UPDATE job_histories
		SET status = 'failed',
		    error_message = 'Interrupted by process restart',
		    completed_at = CURRENT_TIMESTAMP
		WHERE status = 'running'
	`)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		log.Printf("Closed %d orphaned running jobs from a previous process", result.RowsAffected)
	}
	return nil
}
