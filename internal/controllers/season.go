package controllers

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"toonarr/internal/metrics"
	"toonarr/internal/models"
	"toonarr/internal/services/toonstream"
)

// SeasonResult reports the outcome of one season fetch. Skipped means
// another fetch of the same season was already in flight: a no-op, not a
// failure.
type SeasonResult struct {
	Success bool
	Saved   int
	Skipped bool
}

// episodeDetails is everything fetched from one episode page
type episodeDetails struct {
	Title       string
	MainPoster  string
	PlayerThumb string
	Embeds      []toonstream.Embed
}

// EnsureSeasonsUpTo backfills seasons 1 through target, strictly in order.
// Sequential on purpose: earlier seasons' lock and cooldown state must not
// race with later ones.
func (c *ReconcileController) EnsureSeasonsUpTo(ctx context.Context, sctx *SeriesContext, target int) {
	for season := 1; season <= target; season++ {
		c.EnsureSeasonBackfilled(ctx, sctx, season, false)
	}
}

// EnsureSeasonBackfilled fills gaps in one season. Unless forced, a season
// reconciled within the cooldown window is skipped. The season is always
// fetched when checked, because new episodes past the stored maximum are
// invisible to gap detection. The cooldown is earned, not timed: it is set
// only when the post-fetch state has no gaps.
func (c *ReconcileController) EnsureSeasonBackfilled(ctx context.Context, sctx *SeriesContext, season int, force bool) {
	key := cooldownKey(sctx.Slug, season)
	if !force {
		if _, ok := c.cooldowns.Get(key); ok {
			return
		}
	}

	log := c.logger.WithFields(logrus.Fields{
		"series": sctx.Slug,
		"season": season,
	})

	existing, err := c.store.SeasonEpisodeNumbers(sctx.Slug, season)
	if err != nil {
		log.WithError(err).Warn("Failed to read stored episodes")
		existing = nil
	}

	if len(existing) == 0 {
		log.Debug("Season has no stored episodes, fetching")
	} else if missing := findMissingEpisodes(existing); len(missing) > 0 {
		log.WithField("missing", missing).Info("Found missing episodes in season")
	}

	result := c.FetchAndStoreSeason(ctx, sctx, season)
	if result.Skipped {
		return
	}
	if !result.Success {
		log.Warn("Season fetch failed, will retry on next check")
		return
	}

	after, err := c.store.SeasonEpisodeNumbers(sctx.Slug, season)
	if err != nil {
		log.WithError(err).Warn("Failed to re-read stored episodes")
		return
	}
	afterMissing := findMissingEpisodes(after)

	switch {
	case len(after) == 0:
		if len(existing) == 0 {
			log.Warn("Season fetch returned no episodes, will retry on next check")
		}
	case result.Saved > 0:
		log.WithFields(logrus.Fields{
			"saved": result.Saved,
			"total": len(after),
		}).Info("Season updated")
		if len(afterMissing) > 0 {
			log.WithField("missing", afterMissing).Warn("Season still has missing episodes, will retry")
		} else {
			c.cooldowns.SetDefault(key, time.Now())
		}
	case len(afterMissing) == 0:
		c.cooldowns.SetDefault(key, time.Now())
	}
}

// FetchAndStoreSeason fetches a season's episode listing and stores every
// episode not yet present. Guarded by a per-(series, season) try-lock:
// a concurrent caller gets an immediate Skipped result instead of a second
// fetch. Episodes are processed sequentially in listing order, each fully
// stored before the next begins.
func (c *ReconcileController) FetchAndStoreSeason(ctx context.Context, sctx *SeriesContext, season int) SeasonResult {
	lockKey := fmt.Sprintf("%s|%d", sctx.URL, season)
	if !c.tryLockSeason(lockKey) {
		c.logger.WithFields(logrus.Fields{
			"series": sctx.Slug,
			"season": season,
		}).Debug("Season fetch already in progress")
		return SeasonResult{Skipped: true}
	}
	defer c.unlockSeason(lockKey)

	log := c.logger.WithFields(logrus.Fields{
		"series": sctx.Slug,
		"season": season,
	})

	fragment, err := c.site.FetchSeasonFragment(ctx, sctx.PostID, season, sctx.URL)
	if err != nil {
		log.WithError(err).Warn("Season listing fetch failed")
		return SeasonResult{}
	}

	refs := toonstream.ExtractSeasonEpisodes(fragment, c.site.BaseURL())
	if len(refs) == 0 {
		log.Warn("Season listing returned no episodes")
		return SeasonResult{Success: true}
	}

	saved := 0
	for i, ref := range refs {
		episodeNumber := i + 1
		seasonInURL := season
		if code := toonstream.ParseEpisodeCode(ref.URL); code != nil {
			episodeNumber = code.Episode
			seasonInURL = code.Season
		}
		// the AJAX endpoint occasionally mixes seasons into one listing
		if seasonInURL != season {
			continue
		}

		exists, err := c.store.EpisodeExists(sctx.Slug, season, episodeNumber)
		if err != nil {
			log.WithError(err).WithField("episode", episodeNumber).Warn("Episode existence check failed")
			continue
		}
		if exists {
			continue
		}

		epLog := log.WithField("episode", episodeNumber)
		epLog.Info("Fetching new episode")

		details, err := c.fetchEpisodeDetails(ctx, ref.URL)
		if err != nil {
			epLog.WithError(err).Warn("Episode fetch failed, will retry on next check")
			continue
		}

		episode := buildEpisodeRecord(sctx, season, episodeNumber, details, ref.Image)
		if err := c.store.UpsertEpisode(episode); err != nil {
			epLog.WithError(err).Warn("Failed to save episode")
			continue
		}

		metrics.EpisodesSaved.Inc()
		c.markProcessed(sctx.Slug, season, episodeNumber)
		epLog.Info("Saved episode")

		c.appendLatest(sctx, episode)
		saved++
	}

	return SeasonResult{Success: true, Saved: saved}
}

// fetchEpisodeDetails fetches one episode page and resolves its embeds
func (c *ReconcileController) fetchEpisodeDetails(ctx context.Context, episodeURL string) (*episodeDetails, error) {
	html, err := c.site.FetchHTML(ctx, episodeURL)
	if err != nil {
		return nil, err
	}

	title := toonstream.ExtractEpisodeTitle(html)
	if title == "" {
		title = "Episode"
	}

	raw := toonstream.ExtractIframeEmbeds(html, c.site.BaseURL())
	resolved := c.site.ResolveEmbeds(ctx, raw)

	return &episodeDetails{
		Title:       title,
		MainPoster:  toonstream.ExtractEpisodeMainPoster(html, c.site.BaseURL()),
		PlayerThumb: toonstream.ExtractVideoPlayerThumbnail(html, c.site.BaseURL()),
		Embeds:      resolved,
	}, nil
}

// buildEpisodeRecord maps fetched details onto the storage row shape
func buildEpisodeRecord(sctx *SeriesContext, season, episodeNumber int, details *episodeDetails, listImage string) *models.Episode {
	servers := make(models.ServerList, 0, len(details.Embeds))
	for _, embed := range details.Embeds {
		embedURL := embed.URL
		servers = append(servers, models.Server{
			Option:    embed.Option,
			RealVideo: &embedURL,
		})
	}

	return &models.Episode{
		SeriesSlug:           sctx.Slug,
		Season:               season,
		Episode:              episodeNumber,
		EpisodeTitle:         details.Title,
		Thumbnail:            sctx.Common.Thumbnail,
		EpisodeMainPoster:    details.MainPoster,
		EpisodeCardThumbnail: listImage,
		EpisodeListThumbnail: listImage,
		VideoPlayerThumbnail: details.PlayerThumb,
		Servers:              servers,
	}
}

// appendLatest materializes the latest-episodes projection row for a fresh
// insert. Failures are logged and swallowed; the projection is best effort.
func (c *ReconcileController) appendLatest(sctx *SeriesContext, episode *models.Episode) {
	thumbnail := episode.EpisodeCardThumbnail
	if thumbnail == "" {
		thumbnail = episode.EpisodeListThumbnail
	}
	if thumbnail == "" {
		thumbnail = episode.Thumbnail
	}
	if thumbnail == "" {
		thumbnail = sctx.Common.Thumbnail
	}

	latest := &models.LatestEpisode{
		SeriesSlug:   episode.SeriesSlug,
		SeriesTitle:  sctx.Title,
		Season:       episode.Season,
		Episode:      episode.Episode,
		EpisodeTitle: episode.EpisodeTitle,
		Thumbnail:    thumbnail,
	}
	if err := c.store.AppendLatestEpisode(latest); err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"series":  episode.SeriesSlug,
			"season":  episode.Season,
			"episode": episode.Episode,
		}).Warn("Failed to update latest episodes")
	}
}

// tryLockSeason acquires the per-season fetch lock without blocking
func (c *ReconcileController) tryLockSeason(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, held := c.seasonLocks[key]; held {
		return false
	}
	c.seasonLocks[key] = struct{}{}
	return true
}

func (c *ReconcileController) unlockSeason(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.seasonLocks, key)
}

func cooldownKey(slug string, season int) string {
	return fmt.Sprintf("%s|S%d", slug, season)
}

// findMissingEpisodes returns the episode numbers absent between the
// observed minimum and maximum. Gaps outside that range are undetectable
// here; an episode below the stored minimum will never be reported missing.
func findMissingEpisodes(existing []int) []int {
	if len(existing) == 0 {
		return nil
	}

	min, max := existing[0], existing[0]
	present := make(map[int]bool, len(existing))
	for _, n := range existing {
		present[n] = true
		if n < min {
			min = n
		}
		if n > max {
			max = n
		}
	}

	var missing []int
	for n := min; n <= max; n++ {
		if !present[n] {
			missing = append(missing, n)
		}
	}
	return missing
}
