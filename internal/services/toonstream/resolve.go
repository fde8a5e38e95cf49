package toonstream

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"sync"
)

// wrapperMarker flags embed URLs that are indirection pages rather than
// real players
const wrapperMarker = "trembed="

// isWrapper reports whether an embed URL needs a second hop: either it
// carries the wrapper query marker or it points back at the site itself
func (c *Client) isWrapper(embedURL string) bool {
	if strings.Contains(embedURL, wrapperMarker) {
		return true
	}
	u, err := url.Parse(embedURL)
	if err != nil {
		return false
	}
	return u.Host == c.baseURL.Host
}

// resolveWrapper fetches a wrapper page and returns the player URLs found
// one hop deeper, excluding anything still pointing at the site (guards
// against self-reference). A fetch failure yields zero players.
func (c *Client) resolveWrapper(ctx context.Context, wrapperURL string) []string {
	html, err := c.FetchHTML(ctx, wrapperURL)
	if err != nil {
		c.logger.WithError(err).WithField("url", wrapperURL).Debug("Wrapper fetch failed")
		return nil
	}

	var players []string
	for _, embed := range ExtractIframeEmbeds(html, c.baseURL) {
		u, err := url.Parse(embed.URL)
		if err != nil || u.Host == c.baseURL.Host {
			continue
		}
		players = append(players, embed.URL)
	}
	return players
}

// ResolveEmbeds follows wrapper embeds one hop to their real player URLs.
// Wrappers resolve concurrently; one failed resolution never aborts its
// siblings. A wrapper that yields no real players is kept as-is rather than
// dropped. Output is deduplicated by (option, url) in first-seen order.
func (c *Client) ResolveEmbeds(ctx context.Context, embeds []Embed) []Embed {
	resolved := make([][]Embed, len(embeds))

	var wg sync.WaitGroup
	for i, embed := range embeds {
		if !c.isWrapper(embed.URL) {
			resolved[i] = []Embed{embed}
			continue
		}

		wg.Add(1)
		go func(i int, embed Embed) {
			defer wg.Done()
			players := c.resolveWrapper(ctx, embed.URL)
			if len(players) == 0 {
				resolved[i] = []Embed{embed}
				return
			}
			out := make([]Embed, 0, len(players))
			for _, player := range players {
				out = append(out, Embed{Option: embed.Option, URL: player})
			}
			resolved[i] = out
		}(i, embed)
	}
	wg.Wait()

	var final []Embed
	seen := make(map[string]bool)
	for _, group := range resolved {
		for _, embed := range group {
			key := "x|" + embed.URL
			if embed.Option != nil {
				key = strconv.Itoa(*embed.Option) + "|" + embed.URL
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			final = append(final, embed)
		}
	}
	return final
}
