package toonstream

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// episodeWidgetSignature is the structural location of the homepage episode
// widget. The compound class list is brittle on purpose: it is the only
// reliable way to tell the widget apart from "related posts" blocks that
// carry the same anchor shapes.
const episodeWidgetSignature = "article.post.dfx.fcl.episodes.fa-play-circle"

// maxOptionContainers bounds the numbered option-container scan
const maxOptionContainers = 20

var (
	javascriptRe  = regexp.MustCompile(`(?i)^javascript:`)
	episodePathRe = regexp.MustCompile(`(?i)/(episode|watch|anime|series)/`)
	episodeCodeRe = regexp.MustCompile(`(\d+)x(\d+)`)
	codeSuffixRe  = regexp.MustCompile(`(?i)-\d+x\d+$`)
	yearRe        = regexp.MustCompile(`\d{4}`)
	numberRe      = regexp.MustCompile(`(\d+)`)
	whitespaceRe  = regexp.MustCompile(`\s+`)

	// ordered scans for the internal post ID when no structured source has it
	postIDRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)post[_-]?id\s*[:=]\s*"?(\d+)"?`),
		regexp.MustCompile(`"post"\s*:\s*"?(\d+)"?`),
		regexp.MustCompile(`"post_id"\s*:\s*"?(\d+)"?`),
		regexp.MustCompile(`(?i)\bpost\s*=\s*(\d+)`),
		regexp.MustCompile(`postID\s*=\s*['"](\d+)['"]`),
		regexp.MustCompile(`(?i)var\s+postId\s*=\s*(\d+)`),
	}
)

// NormalizeURL resolves raw against base and rejects javascript: pseudo-URLs.
// Returns "" when the URL cannot be used.
func NormalizeURL(raw string, base *url.URL) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || javascriptRe.MatchString(raw) {
		return ""
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

func siteOrigin(base *url.URL) string {
	return base.Scheme + "://" + base.Host
}

// iframeSrc reads an iframe's source, preferring src but falling back to the
// lazy-load attributes the site uses
func iframeSrc(s *goquery.Selection) string {
	for _, attr := range []string{"src", "data-src", "data-lazy-src"} {
		if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// lazyImageSrc reads an image source, preferring the lazy-load attribute
func lazyImageSrc(s *goquery.Selection) string {
	for _, attr := range []string{"data-src", "data-lazy-src", "src"} {
		if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// ExtractIframeEmbeds collects player embeds from an episode page: first the
// numbered option containers, then a catch-all pass over every iframe that
// skips URLs already found.
func ExtractIframeEmbeds(html string, base *url.URL) []Embed {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var embeds []Embed
	for i := 1; i <= maxOptionContainers; i++ {
		option := i
		doc.Find(fmt.Sprintf("div#options-%d iframe", i)).Each(func(_ int, s *goquery.Selection) {
			if u := NormalizeURL(iframeSrc(s), base); u != "" {
				embeds = append(embeds, Embed{Option: &option, URL: u})
			}
		})
	}

	seen := make(map[string]bool, len(embeds))
	for _, e := range embeds {
		seen[e.URL] = true
	}
	doc.Find("iframe").Each(func(_ int, s *goquery.Selection) {
		u := NormalizeURL(iframeSrc(s), base)
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		embeds = append(embeds, Embed{URL: u})
	})

	return embeds
}

// describeSelection renders an element as tag#id.class.class for structural
// relevance filtering
func describeSelection(s *goquery.Selection) string {
	if s == nil || s.Length() == 0 {
		return ""
	}
	node := s.Get(0)
	desc := node.Data
	if desc == "" {
		desc = "element"
	}
	if id, ok := s.Attr("id"); ok && id != "" {
		desc += "#" + id
	}
	if class, ok := s.Attr("class"); ok && strings.TrimSpace(class) != "" {
		desc += "." + strings.Join(strings.Fields(class), ".")
	}
	return desc
}

// ExtractHomepageCards collects same-origin anchors matching the known
// content path patterns, deduplicated by href
func ExtractHomepageCards(html string, base *url.URL) []Card {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	origin := siteOrigin(base)
	var cards []Card
	seen := make(map[string]bool)

	doc.Find("a[href]").Each(func(_ int, anchor *goquery.Selection) {
		href := NormalizeURL(anchor.AttrOr("href", ""), base)
		if href == "" || !episodePathRe.MatchString(href) {
			return
		}
		if !strings.HasPrefix(href, origin) {
			return
		}
		if seen[href] {
			return
		}
		seen[href] = true

		cards = append(cards, collectAnchorInfo(anchor, href, base))
	})

	return cards
}

func collectAnchorInfo(anchor *goquery.Selection, href string, base *url.URL) Card {
	title := collapseWhitespace(anchor.AttrOr("title", ""))
	if title == "" {
		title = collapseWhitespace(anchor.Text())
	}

	var thumb string
	if img := anchor.Find("img").First(); img.Length() > 0 {
		thumb = NormalizeURL(lazyImageSrc(img), base)
	}

	card := anchor.Closest("article, li, .post-item, .film-item")
	if thumb == "" && card.Length() > 0 {
		if img := card.Find("img").First(); img.Length() > 0 {
			thumb = NormalizeURL(lazyImageSrc(img), base)
		}
	}
	if card.Length() == 0 {
		card = anchor.Parent()
	}

	context := ""
	if contextNode := anchor.Closest("section, div.widget, article, div"); contextNode.Length() > 0 {
		header := contextNode.
			Find("header h1, header h2, header h3, h2.widget-title, h3.widget-title").
			First()
		context = collapseWhitespace(header.Text())
		if context == "" {
			context = contextNode.AttrOr("id", "")
		}
		if context == "" {
			context = contextNode.AttrOr("class", "")
		}
	}
	if context == "" {
		context = "page"
	}

	location := describeSelection(card)
	if location == "" {
		location = describeSelection(anchor)
	}
	if location == "" {
		location = "unknown"
	}

	if title == "" {
		title = context
	}

	return Card{
		Title:     title,
		URL:       href,
		Thumbnail: thumb,
		Context:   context,
		Location:  location,
	}
}

// FilterRelevantCards retains only cards that sit inside the homepage
// episode widget
func FilterRelevantCards(cards []Card) []Card {
	var relevant []Card
	for _, card := range cards {
		if strings.Contains(card.Location, episodeWidgetSignature) {
			relevant = append(relevant, card)
		}
	}
	return relevant
}

// ParseEpisodeCode extracts a season/episode pair from a URL slug like
// "show-2x5". Returns nil when the pattern is absent.
func ParseEpisodeCode(rawURL string) *EpisodeCode {
	match := episodeCodeRe.FindStringSubmatch(rawURL)
	if match == nil {
		return nil
	}
	season, err := strconv.Atoi(match[1])
	if err != nil {
		return nil
	}
	episode, err := strconv.Atoi(match[2])
	if err != nil {
		return nil
	}
	return &EpisodeCode{Season: season, Episode: episode}
}

// SlugFromURL takes the second path segment (or the last) as a raw slug seed
func SlugFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "item"
	}
	parts := splitPath(u.Path)
	if len(parts) >= 2 {
		return parts[1]
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return "item"
}

func splitPath(path string) []string {
	var parts []string
	for _, p := range strings.Split(path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// firstText returns the first non-empty trimmed text among selector matches,
// walking the fallback chain in order
func firstText(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if text := collapseWhitespace(doc.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

func metaContent(doc *goquery.Document, property string) string {
	return collapseWhitespace(doc.Find(`meta[property="` + property + `"]`).AttrOr("content", ""))
}

// ExtractCommonFields extracts the series-level fields from a series page.
// Every field is resolved through an ordered fallback chain because the
// site's markup is irregular; missing data yields zero values, never errors.
func ExtractCommonFields(html string, base *url.URL) CommonFields {
	var fields CommonFields
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fields
	}

	fields.Title = firstText(doc, "h1.entry-title")
	if fields.Title == "" {
		fields.Title = metaContent(doc, "og:title")
	}
	if fields.Title == "" {
		fields.Title = firstText(doc, "title")
	}

	fields.Description = metaContent(doc, "og:description")
	if fields.Description == "" {
		fields.Description = firstText(doc, "div.entry-content p", "div.description p")
	}

	if yearText := doc.Find(`span.year, .year, [class*="year"]`).First().Text(); yearText != "" {
		if match := yearRe.FindString(yearText); match != "" {
			if year, err := strconv.Atoi(match); err == nil {
				fields.ReleaseYear = &year
			}
		}
	}

	doc.Find(`a[rel="tag"], .genres a, [class*="genre"] a`).Each(func(_ int, s *goquery.Selection) {
		if genre := collapseWhitespace(s.Text()); genre != "" {
			fields.Genres = append(fields.Genres, genre)
		}
	})

	thumbSel := doc.Find("div.post-thumbnail img").First()
	fields.Thumbnail = NormalizeURL(lazyImageSrc(thumbSel), base)
	if fields.Thumbnail == "" {
		fields.Thumbnail = NormalizeURL(metaContent(doc, "og:image"), base)
	}
	if fields.Thumbnail == "" {
		fields.Thumbnail = NormalizeURL(lazyImageSrc(doc.Find(".series-cover img").First()), base)
	}

	fields.TMDBID = extractCatalogID(doc, `meta[property*="tmdb"], [data-tmdb-id], [data-tmdb]`,
		"data-tmdb-id", "data-tmdb")
	fields.TVDBID = extractCatalogID(doc, `meta[property*="tvdb"], [data-tvdb-id], [data-tvdb]`,
		"data-tvdb-id", "data-tvdb")

	langSeen := make(map[string]bool)
	doc.Find(`[class*="language"], [class*="lang"], .language, .lang`).Each(func(_ int, s *goquery.Selection) {
		lang := collapseWhitespace(s.Text())
		if lang != "" && !langSeen[lang] {
			langSeen[lang] = true
			fields.Languages = append(fields.Languages, lang)
		}
	})

	return fields
}

// extractCatalogID pulls the first numeric external ID from meta content or
// data attributes; first match wins
func extractCatalogID(doc *goquery.Document, selector string, attrs ...string) *int {
	var id *int
	doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		candidates := []string{s.AttrOr("content", "")}
		for _, attr := range attrs {
			candidates = append(candidates, s.AttrOr(attr, ""))
		}
		for _, candidate := range candidates {
			if candidate == "" {
				continue
			}
			if match := numberRe.FindStringSubmatch(candidate); match != nil {
				if n, err := strconv.Atoi(match[1]); err == nil {
					id = &n
					return false
				}
			}
		}
		return true
	})
	return id
}

// ExtractPostID finds the site's internal numeric content identifier for a
// series page. Tries structured sources first (inputs and data attributes,
// then the postid-<N> body class), then falls back to ordered regex scans
// over the raw HTML. Returns nil when nothing numeric is found, which makes
// the series unreconcilable: every season AJAX call needs this ID.
func ExtractPostID(html string) *int {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var candidates []int
	doc.Find(`input#post_id, input#postId, input[name="post_id"], input[name="post"], [data-post-id], [data-post]`).
		Each(func(_ int, s *goquery.Selection) {
			for _, attr := range []string{"value", "data-post-id", "data-post", "data-id"} {
				v := strings.TrimSpace(s.AttrOr(attr, ""))
				if v == "" {
					continue
				}
				if n, err := strconv.Atoi(v); err == nil {
					candidates = append(candidates, n)
				}
			}
		})

	bodyClass := doc.Find("body").AttrOr("class", "")
	if match := regexp.MustCompile(`postid-(\d+)`).FindStringSubmatch(bodyClass); match != nil {
		if n, err := strconv.Atoi(match[1]); err == nil {
			candidates = append(candidates, n)
		}
	}

	if len(candidates) > 0 {
		return &candidates[0]
	}

	for _, re := range postIDRes {
		if match := re.FindStringSubmatch(html); match != nil {
			if n, err := strconv.Atoi(match[1]); err == nil {
				return &n
			}
		}
	}
	return nil
}

// ExtractSeasonEpisodes parses the episode list out of a season AJAX
// fragment. The dedicated container is tried first; a generic scan for any
// /episode/ link covers fragments with unexpected shapes.
func ExtractSeasonEpisodes(fragment string, base *url.URL) []EpisodeRef {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return nil
	}

	var episodes []EpisodeRef
	seen := make(map[string]bool)

	doc.Find("#episode_by_temp a, ul#episode_by_temp li article a").Each(func(_ int, s *goquery.Selection) {
		href := NormalizeURL(s.AttrOr("href", ""), base)
		if href == "" || !strings.Contains(href, "/episode/") || seen[href] {
			return
		}
		seen[href] = true

		title := collapseWhitespace(s.Text())
		if title == "" {
			title = collapseWhitespace(s.Find(".entry-title").Text())
		}

		img := s.Find(`img[loading="lazy"]`).AttrOr("data-src", "")
		if img == "" {
			img = lazyImageSrc(s.Find("img").First())
		}

		episodes = append(episodes, EpisodeRef{
			URL:   href,
			Title: title,
			Image: NormalizeURL(img, base),
		})
	})

	if len(episodes) == 0 {
		doc.Find(`a[href*="/episode/"]`).Each(func(i int, s *goquery.Selection) {
			href := NormalizeURL(s.AttrOr("href", ""), base)
			if href == "" || seen[href] {
				return
			}
			seen[href] = true

			title := collapseWhitespace(s.Text())
			if title == "" {
				title = collapseWhitespace(s.AttrOr("title", ""))
			}
			if title == "" {
				title = fmt.Sprintf("Episode %d", i+1)
			}

			img := lazyImageSrc(s.Find("img").First())
			if img == "" {
				img = lazyImageSrc(s.Closest("li, article").Find("img").First())
			}

			episodes = append(episodes, EpisodeRef{
				URL:   href,
				Title: title,
				Image: NormalizeURL(img, base),
			})
		})
	}

	return episodes
}

// ExtractEpisodeContext locates the owning series from an episode page via
// breadcrumb anchors, reconstructing the series URL from the episode slug
// when no breadcrumb exists
func ExtractEpisodeContext(html, episodeURL string, base *url.URL) EpisodeContext {
	var ctx EpisodeContext
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		ctx.SeriesURL = DeriveSeriesURLFromEpisode(episodeURL, base)
		return ctx
	}

	anchor := doc.Find(`nav.breadcrumb a[href*="/series/"]`).Last()
	if anchor.Length() == 0 {
		anchor = doc.Find(`div.breadcrumb a[href*="/series/"]`).Last()
	}
	if anchor.Length() == 0 {
		anchor = doc.Find(`.entry-meta a[href*="/series/"]`).First()
	}

	ctx.SeriesURL = NormalizeURL(anchor.AttrOr("href", ""), base)
	ctx.SeriesTitle = collapseWhitespace(anchor.Text())

	if ctx.SeriesURL == "" {
		ctx.SeriesURL = DeriveSeriesURLFromEpisode(episodeURL, base)
	}
	if ctx.SeriesTitle == "" {
		ctx.SeriesTitle = metaContent(doc, "og:series")
	}
	if ctx.SeriesTitle == "" {
		full := doc.Find("title").First().Text()
		ctx.SeriesTitle = collapseWhitespace(strings.SplitN(full, "|", 2)[0])
	}

	return ctx
}

// ExtractEpisodeTitle reads an episode page's display title
func ExtractEpisodeTitle(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	title := metaContent(doc, "og:title")
	if title == "" {
		title = firstText(doc, "h1.entry-title")
	}
	if title == "" {
		title = firstText(doc, "title")
	}
	return title
}

// ExtractEpisodeMainPoster reads the poster-sized episode image
func ExtractEpisodeMainPoster(html string, base *url.URL) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	poster := NormalizeURL(lazyImageSrc(doc.Find("div.video-options img").First()), base)
	if poster == "" {
		poster = NormalizeURL(lazyImageSrc(doc.Find("div.post-thumbnail img").First()), base)
	}
	if poster == "" {
		poster = NormalizeURL(metaContent(doc, "og:image"), base)
	}
	return poster
}

// ExtractVideoPlayerThumbnail reads the image shown as the player overlay
func ExtractVideoPlayerThumbnail(html string, base *url.URL) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	thumb := NormalizeURL(lazyImageSrc(doc.Find("div#player img, .video-player img").First()), base)
	if thumb == "" {
		thumb = NormalizeURL(metaContent(doc, "og:image"), base)
	}
	return thumb
}

// DeriveSeriesURLFromEpisode reconstructs a series URL by stripping the
// trailing SxE code from the episode's slug
func DeriveSeriesURLFromEpisode(episodeURL string, base *url.URL) string {
	u, err := url.Parse(episodeURL)
	if err != nil {
		return ""
	}
	parts := splitPath(u.Path)
	var episodeSlug string
	if len(parts) >= 2 {
		episodeSlug = parts[1]
	} else if len(parts) == 1 {
		episodeSlug = parts[0]
	}
	if episodeSlug == "" {
		return ""
	}
	baseSlug := codeSuffixRe.ReplaceAllString(episodeSlug, "")
	if baseSlug == "" {
		baseSlug = episodeSlug
	}
	return siteOrigin(base) + "/series/" + baseSlug + "/"
}
