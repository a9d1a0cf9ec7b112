package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"keepsake/internal/auth"
	"keepsake/internal/capsule"
	"keepsake/internal/couple"
	"keepsake/internal/dates"
	"keepsake/internal/gallery"
	"keepsake/internal/jobs"
	"keepsake/internal/memory"
)

func Connect(dsn string) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}
	return gdb, nil
}

// Models lists every table in migration order.
func Models() []any {
	return []any{
		&couple.Account{},
		&auth.User{},
		&gallery.Photo{},
		&dates.ImportantDate{},
		&capsule.TimeCapsule{},
		&capsule.Reflection{},
		&memory.Memory{},
		&memory.Event{},
		&memory.Projection{},
		&memory.Tagging{},
		&jobs.Job{},
	}
}

func AutoMigrateAndIndexes(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(Models()...); err != nil {
		return err
	}
	if gdb.Dialector.Name() != "postgres" {
		return nil
	}

	stmts := []string{
		// storage invariant enforced by the database as well
		`do $$ begin
			alter table couple_accounts add constraint chk_storage_bounds
			check (storage_used >= 0 and storage_used <= storage_limit);
		exception when duplicate_object then null; end $$;`,
		`create index if not exists idx_gallery_couple_created on gallery_photos(couple_id, created_at desc);`,
		`create index if not exists idx_capsules_couple_unlock on time_capsules(couple_id, unlock_at);`,
		`create index if not exists idx_reflections_capsule on reflections(capsule_id, created_at);`,
		`create index if not exists idx_dates_couple on important_dates(couple_id, date_month, date_day);`,
		`create index if not exists idx_memory_events_memory on memory_events(memory_id, id);`,
		`create index if not exists idx_memory_proj_couple_updated on memory_projections(couple_id, updated_at desc);`,
		`create index if not exists idx_memory_proj_tags on memory_projections using gin (tags);`,
		`create index if not exists idx_memory_tags_couple_tag on memory_tags(couple_id, tag);`,
		`create index if not exists idx_jobs_due on jobs(status, run_at);`,
		`create index if not exists idx_jobs_lock on jobs(status, locked_at);`,
	}
	for _, s := range stmts {
		if err := gdb.Exec(s).Error; err != nil {
			return fmt.Errorf("index exec failed: %w (sql=%s)", err, s)
		}
	}

	return nil
}
