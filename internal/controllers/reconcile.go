package controllers

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"toonarr/internal/metrics"
	"toonarr/internal/models"
	"toonarr/internal/services/toonstream"
	"toonarr/internal/utils"
)

// Store is the narrow storage surface the reconciliation engine needs
type Store interface {
	CreateSeriesIfAbsent(series *models.Series) (bool, error)
	EpisodeExists(seriesSlug string, season, episode int) (bool, error)
	UpsertEpisode(episode *models.Episode) error
	SeasonEpisodeNumbers(seriesSlug string, season int) ([]int, error)
	AppendLatestEpisode(latest *models.LatestEpisode) error
}

// Site is the slice of the site client the engine depends on
type Site interface {
	FetchHTML(ctx context.Context, pageURL string) (string, error)
	FetchSeasonFragment(ctx context.Context, postID, season int, referer string) (string, error)
	ResolveEmbeds(ctx context.Context, embeds []toonstream.Embed) []toonstream.Embed
	BaseURL() *url.URL
}

// SeriesContext carries everything needed to reconcile one series: the
// canonical URL, the derived slug, the internal post ID for season AJAX
// calls, and the extracted series fields.
type SeriesContext struct {
	URL    string
	Title  string
	Slug   string
	PostID int
	Common toonstream.CommonFields
}

// homepageScanLimit caps how many filtered cards one tick processes
const homepageScanLimit = 30

// ReconcileController is the stateful core of the pipeline. It owns all
// process-local reconciliation state: the series context cache, the season
// cooldowns, the season fetch locks, the per-series highest-season map and
// the processed-triple set. All maps are guarded by one mutex; the caches
// are safe on their own.
type ReconcileController struct {
	store  Store
	site   Site
	logger *logrus.Logger

	seriesCache *cache.Cache // series URL -> *SeriesContext
	cooldowns   *cache.Cache // slug|S<n> -> reconciled-at, expires after the cooldown window

	mu             sync.Mutex
	seasonLocks    map[string]struct{}
	highestSeasons map[string]int
	processed      map[string]struct{}
}

// NewReconcileController creates a new reconciliation controller
func NewReconcileController(store Store, site Site, cooldown time.Duration, logger *logrus.Logger) *ReconcileController {
	return &ReconcileController{
		store:  store,
		site:   site,
		logger: logger,

		seriesCache: cache.New(cache.NoExpiration, 0),
		cooldowns:   cache.New(cooldown, 10*time.Minute),

		seasonLocks:    make(map[string]struct{}),
		highestSeasons: make(map[string]int),
		processed:      make(map[string]struct{}),
	}
}

// ScanHomepage runs one polling tick: fetch the homepage, keep the cards
// that came from the episode widget, refresh the highest-season map from
// the batch, then hand each card to reconciliation sequentially.
func (c *ReconcileController) ScanHomepage(ctx context.Context) error {
	html, err := c.site.FetchHTML(ctx, c.site.BaseURL().String())
	if err != nil {
		return fmt.Errorf("homepage fetch failed: %w", err)
	}

	cards := toonstream.FilterRelevantCards(toonstream.ExtractHomepageCards(html, c.site.BaseURL()))
	if len(cards) > homepageScanLimit {
		cards = cards[:homepageScanLimit]
	}
	if len(cards) == 0 {
		c.logger.Debug("No matching episode cards found in target widget")
		return nil
	}

	c.noteHighestSeasons(cards)

	for _, card := range cards {
		c.HandleEpisodeCard(ctx, card)
	}
	return nil
}

// noteHighestSeasons raises the per-series highest-season watermark from a
// batch of cards. The watermark only ever goes up.
func (c *ReconcileController) noteHighestSeasons(cards []toonstream.Card) {
	batch := make(map[string]int)
	for _, card := range cards {
		code := toonstream.ParseEpisodeCode(card.URL)
		if code == nil {
			continue
		}
		seriesURL := toonstream.DeriveSeriesURLFromEpisode(card.URL, c.site.BaseURL())
		if seriesURL == "" {
			continue
		}
		if code.Season > batch[seriesURL] {
			batch[seriesURL] = code.Season
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for seriesURL, season := range batch {
		if season > c.highestSeasons[seriesURL] {
			c.highestSeasons[seriesURL] = season
		}
	}
}

// HandleEpisodeCard reconciles one discovered episode reference. Cards for
// seasons below the series watermark are dropped before any network or
// storage work; a card for an unseen episode forces a season fetch past the
// cooldown.
func (c *ReconcileController) HandleEpisodeCard(ctx context.Context, card toonstream.Card) {
	code := toonstream.ParseEpisodeCode(card.URL)
	if code == nil {
		return
	}

	log := c.logger.WithFields(logrus.Fields{
		"url":     card.URL,
		"season":  code.Season,
		"episode": code.Episode,
	})

	// Stale check first, on the algorithmically derived series URL, so old
	// homepage entries cost nothing
	if derived := toonstream.DeriveSeriesURLFromEpisode(card.URL, c.site.BaseURL()); derived != "" {
		c.mu.Lock()
		highest := c.highestSeasons[derived]
		c.mu.Unlock()
		if code.Season < highest {
			log.WithField("current_season", highest).Info("Skipping stale episode card")
			return
		}
	}

	episodeHTML, err := c.site.FetchHTML(ctx, card.URL)
	if err != nil {
		log.WithError(err).Warn("Failed to fetch episode page")
		return
	}
	ectx := toonstream.ExtractEpisodeContext(episodeHTML, card.URL, c.site.BaseURL())
	if ectx.SeriesURL == "" {
		log.Warn("Series URL not found for episode")
		return
	}

	sctx, err := c.EnsureSeries(ctx, ectx.SeriesURL, ectx.SeriesTitle)
	if err != nil {
		log.WithError(err).Warn("Failed to reconcile series")
		return
	}

	c.EnsureSeasonsUpTo(ctx, sctx, code.Season)

	exists, err := c.store.EpisodeExists(sctx.Slug, code.Season, code.Episode)
	if err != nil {
		log.WithError(err).Warn("Episode existence check failed")
		return
	}
	if !exists {
		log.WithField("series", sctx.Title).Info("New episode detected, forcing season fetch")
		c.EnsureSeasonBackfilled(ctx, sctx, code.Season, true)
		return
	}

	// Already stored; log once per run per triple to keep the output quiet
	if c.markProcessed(sctx.Slug, code.Season, code.Episode) {
		log.Debug("Episode already stored")
	}
}

// EnsureSeries is an idempotent get-or-create for the series owning an
// episode. A cached context avoids refetching the series page within one
// run. Storage insert failures are logged and swallowed: the derived context
// is still usable downstream. A missing post ID is a hard failure because
// every season AJAX call depends on it.
func (c *ReconcileController) EnsureSeries(ctx context.Context, seriesURL, fallbackTitle string) (*SeriesContext, error) {
	if cached, ok := c.seriesCache.Get(seriesURL); ok {
		return cached.(*SeriesContext), nil
	}

	html, err := c.site.FetchHTML(ctx, seriesURL)
	if err != nil {
		return nil, fmt.Errorf("series page fetch failed: %w", err)
	}

	common := toonstream.ExtractCommonFields(html, c.site.BaseURL())
	if common.Title == "" && fallbackTitle != "" {
		common.Title = fallbackTitle
	}
	if common.Title == "" {
		common.Title = strings.ReplaceAll(toonstream.SlugFromURL(seriesURL), "-", " ")
	}

	postID := toonstream.ExtractPostID(html)
	if postID == nil {
		return nil, fmt.Errorf("series post ID not found for %s", seriesURL)
	}

	slug := utils.SanitizeSlug(common.Title)
	series := &models.Series{
		Slug:        slug,
		Title:       common.Title,
		Description: common.Description,
		Thumbnail:   common.Thumbnail,
		Poster:      common.Thumbnail,
		Genres:      common.Genres,
		ReleaseYear: common.ReleaseYear,
		URL:         seriesURL,
		TMDBID:      intToString(common.TMDBID),
		TVDBID:      intToString(common.TVDBID),
		Languages:   common.Languages,
		Type:        models.TypeSeries,
	}

	created, err := c.store.CreateSeriesIfAbsent(series)
	if err != nil {
		c.logger.WithError(err).WithField("slug", slug).
			Warn("Failed to save series, continuing with derived metadata")
	} else if created {
		metrics.SeriesCreated.Inc()
		c.logger.WithFields(logrus.Fields{
			"slug":  slug,
			"title": common.Title,
		}).Info("Saved new series")
	}

	sctx := &SeriesContext{
		URL:    seriesURL,
		Title:  common.Title,
		Slug:   slug,
		PostID: *postID,
		Common: common,
	}
	c.seriesCache.Set(seriesURL, sctx, cache.NoExpiration)
	return sctx, nil
}

// markProcessed records a triple as handled this run. Returns true the
// first time the triple is seen.
func (c *ReconcileController) markProcessed(slug string, season, episode int) bool {
	key := slug + "|S" + strconv.Itoa(season) + "E" + strconv.Itoa(episode)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.processed[key]; ok {
		return false
	}
	c.processed[key] = struct{}{}
	return true
}

func intToString(n *int) *string {
	if n == nil {
		return nil
	}
	s := strconv.Itoa(*n)
	return &s
}
