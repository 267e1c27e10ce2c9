package resultdb

import (
	"github.com/BurntSushi/migration"
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
)

func Migrations(log logs.Log) []migration.Migrator {
	migs := []migration.Migrator{}
	idx := 0

	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx,
		`
		CREATE TABLE job(
			id INTEGER PRIMARY KEY,
			public_id TEXT NOT NULL,
			state TEXT NOT NULL,
			error TEXT,
			created_at INT NOT NULL,
			started_at INT,
			finished_at INT,
			scenes_total INT NOT NULL DEFAULT 0,
			scenes_done INT NOT NULL DEFAULT 0,
			result_file TEXT,
			tuning TEXT,
			stats TEXT
		);
		CREATE UNIQUE INDEX idx_job_public_id ON job(public_id);
		CREATE INDEX idx_job_created_at ON job(created_at);

		CREATE TABLE job_scene(
			id INTEGER PRIMARY KEY,
			job_id INT NOT NULL,
			scene_id INT NOT NULL,
			start_frame INT NOT NULL,
			end_frame INT NOT NULL,
			tracks_emitted INT NOT NULL,
			stats TEXT
		);
		CREATE INDEX idx_job_scene_job_id ON job_scene(job_id);
	`))

	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx,
		`
		ALTER TABLE job ADD COLUMN video_meta TEXT;
	`))

	return migs
}
