package reliability

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/ditm/internal/database"
)

const backupTimeout = 10 * time.Minute

// BackupJob runs the full backup cycle on a schedule.
type BackupJob struct {
	backup *BackupService
	log    zerolog.Logger
}

// NewBackupJob creates a backup job
func NewBackupJob(backup *BackupService, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		backup: backup,
		log:    log.With().Str("job", "backup").Logger(),
	}
}

// Name implements scheduler.Job
func (j *BackupJob) Name() string {
	return "backup"
}

// Run implements scheduler.Job
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), backupTimeout)
	defer cancel()
	return j.backup.CreateAndUploadBackup(ctx)
}

// MaintenanceJob checkpoints the WAL of every database to prevent bloat
// and verifies each one still responds to queries.
type MaintenanceJob struct {
	databases []*database.DB
	log       zerolog.Logger
}

// NewMaintenanceJob creates a maintenance job
func NewMaintenanceJob(databases []*database.DB, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		databases: databases,
		log:       log.With().Str("job", "maintenance").Logger(),
	}
}

// Name implements scheduler.Job
func (j *MaintenanceJob) Name() string {
	return "maintenance"
}

// Run implements scheduler.Job
func (j *MaintenanceJob) Run() error {
	j.log.Info().Msg("Starting maintenance")
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	for _, db := range j.databases {
		if err := db.HealthCheck(ctx); err != nil {
			j.log.Error().Str("database", db.Name()).Err(err).Msg("Health check failed")
			return err
		}

		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			j.log.Warn().Str("database", db.Name()).Err(err).Msg("WAL checkpoint failed")
		}
	}

	j.log.Info().Dur("duration", time.Since(startTime)).Msg("Maintenance completed")
	return nil
}
