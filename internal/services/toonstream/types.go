package toonstream

// Embed is one video-player candidate found on an episode page. Option is
// the site's own numbering of alternate servers; nil for catch-all finds.
type Embed struct {
	Option *int
	URL    string
}

// Card is one anchor discovered on a listing page, with enough structural
// context to decide later whether it came from the episode widget.
type Card struct {
	Title     string
	URL       string
	Thumbnail string
	Context   string
	Location  string
}

// EpisodeCode is a season/episode pair parsed from a URL slug like "2x5"
type EpisodeCode struct {
	Season  int
	Episode int
}

// EpisodeRef is one entry of a season listing fragment
type EpisodeRef struct {
	URL   string
	Title string
	Image string
}

// CommonFields are the series-level fields extracted from a series page
type CommonFields struct {
	Title       string
	Description string
	ReleaseYear *int
	Genres      []string
	Thumbnail   string
	TMDBID      *int
	TVDBID      *int
	Languages   []string
}

// EpisodeContext locates the series that owns an episode page
type EpisodeContext struct {
	SeriesURL   string
	SeriesTitle string
}
