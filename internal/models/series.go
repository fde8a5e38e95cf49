package models

import "time"

// Series is a titled work discovered on the source site. The slug is the
// business key: episodes reference it by value, and it is derived
// deterministically from the title so re-scrapes converge on the same row.
type Series struct {
	ID          uint   `gorm:"primaryKey"`
	Slug        string `gorm:"uniqueIndex;not null"`
	Title       string
	Description string
	Thumbnail   string
	Poster      string
	Genres      StringList `gorm:"type:text"`
	ReleaseYear *int
	URL         string

	// External catalog identifiers, best effort
	TMDBID *string
	TVDBID *string

	Languages StringList `gorm:"type:text"`
	Type      SeriesType

	CreatedAt time.Time
}

// Episode is one episode of one season of a series. Identity is the
// (series_slug, season, episode) triple, enforced by a unique index.
type Episode struct {
	ID         uint   `gorm:"primaryKey"`
	SeriesSlug string `gorm:"uniqueIndex:idx_episode_key;not null"`
	Season     int    `gorm:"uniqueIndex:idx_episode_key"`
	Episode    int    `gorm:"uniqueIndex:idx_episode_key"`

	EpisodeTitle string

	// Thumbnail roles: series-level fallback, poster-sized main image,
	// homepage card, season list, and video player overlay
	Thumbnail            string
	EpisodeMainPoster    string
	EpisodeCardThumbnail string
	EpisodeListThumbnail string
	VideoPlayerThumbnail string

	Servers ServerList `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// LatestEpisode is a bounded recency-ordered projection of episodes used for
// "what's new" presentation. The table is trimmed to its newest 9 rows on
// every insert.
type LatestEpisode struct {
	ID           uint `gorm:"primaryKey"`
	SeriesSlug   string
	SeriesTitle  string
	Season       int
	Episode      int
	EpisodeTitle string
	Thumbnail    string
	AddedAt      time.Time `gorm:"index"`
}
