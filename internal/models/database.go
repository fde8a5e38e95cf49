package models

import (
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// latestEpisodesLimit bounds the latest_episodes working set
const latestEpisodesLimit = 9

// Database wraps the gorm store
type Database struct {
	orm *gorm.DB
}

// NewDatabase opens the sqlite database and runs migrations
func NewDatabase(path string) (*Database, error) {
	orm, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := orm.AutoMigrate(&Series{}, &Episode{}, &LatestEpisode{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Database{orm: orm}, nil
}

// Close closes the database connection
func (db *Database) Close() error {
	sqlDB, err := db.orm.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Series operations

// CreateSeriesIfAbsent inserts a series row unless one with the same slug
// already exists. Existing rows are never updated by the pipeline.
// Returns true if a new row was inserted.
func (db *Database) CreateSeriesIfAbsent(series *Series) (bool, error) {
	series.CreatedAt = time.Now()
	result := db.orm.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slug"}},
		DoNothing: true,
	}).Create(series)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// GetSeriesBySlug retrieves a series by its slug
func (db *Database) GetSeriesBySlug(slug string) (*Series, error) {
	var series Series
	if err := db.orm.Where("slug = ?", slug).First(&series).Error; err != nil {
		return nil, err
	}
	return &series, nil
}

// CountSeriesByType returns series row counts grouped by type
func (db *Database) CountSeriesByType() (map[string]int64, error) {
	var rows []struct {
		Type  string
		Count int64
	}
	err := db.orm.Model(&Series{}).
		Select("type, count(*) as count").
		Group("type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Type] = row.Count
	}
	return counts, nil
}

// Episode operations

// EpisodeExists reports whether an episode row exists for the triple
func (db *Database) EpisodeExists(seriesSlug string, season, episode int) (bool, error) {
	var count int64
	err := db.orm.Model(&Episode{}).
		Where("series_slug = ? AND season = ? AND episode = ?", seriesSlug, season, episode).
		Count(&count).Error
	return count > 0, err
}

// UpsertEpisode inserts an episode or, on a (series_slug, season, episode)
// conflict, overwrites the stored row. Last write wins, no merge.
func (db *Database) UpsertEpisode(episode *Episode) error {
	now := time.Now()
	if episode.CreatedAt.IsZero() {
		episode.CreatedAt = now
	}
	episode.UpdatedAt = now

	return db.orm.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "series_slug"}, {Name: "season"}, {Name: "episode"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"episode_title",
			"thumbnail",
			"episode_main_poster",
			"episode_card_thumbnail",
			"episode_list_thumbnail",
			"video_player_thumbnail",
			"servers",
			"updated_at",
		}),
	}).Create(episode).Error
}

// SeasonEpisodeNumbers returns the stored episode numbers for a season,
// ascending
func (db *Database) SeasonEpisodeNumbers(seriesSlug string, season int) ([]int, error) {
	var numbers []int
	err := db.orm.Model(&Episode{}).
		Where("series_slug = ? AND season = ?", seriesSlug, season).
		Order("episode ASC").
		Pluck("episode", &numbers).Error
	return numbers, err
}

// CountEpisodes returns the total number of stored episodes
func (db *Database) CountEpisodes() (int64, error) {
	var count int64
	err := db.orm.Model(&Episode{}).Count(&count).Error
	return count, err
}

// LatestEpisode operations

// AppendLatestEpisode inserts a latest_episodes row unless one for the same
// triple exists, then trims the table to its newest rows. The trim runs
// synchronously on every insert so the working set stays bounded.
func (db *Database) AppendLatestEpisode(latest *LatestEpisode) error {
	var count int64
	err := db.orm.Model(&LatestEpisode{}).
		Where("series_slug = ? AND season = ? AND episode = ?",
			latest.SeriesSlug, latest.Season, latest.Episode).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	latest.AddedAt = time.Now()
	if err := db.orm.Create(latest).Error; err != nil {
		return err
	}

	var overflowIDs []uint
	err = db.orm.Model(&LatestEpisode{}).
		Order("added_at DESC, id DESC").
		Limit(1000).
		Offset(latestEpisodesLimit).
		Pluck("id", &overflowIDs).Error
	if err != nil {
		return err
	}
	if len(overflowIDs) > 0 {
		return db.orm.Delete(&LatestEpisode{}, overflowIDs).Error
	}
	return nil
}

// LatestEpisodes returns the retained latest_episodes rows, newest first
func (db *Database) LatestEpisodes() ([]*LatestEpisode, error) {
	var latest []*LatestEpisode
	err := db.orm.Order("added_at DESC, id DESC").Find(&latest).Error
	return latest, err
}
