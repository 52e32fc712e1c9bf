package catalog

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

const synopsisLimit = 500

// FormatAnime renders one title as a plain-text block suitable for a
// chat message.
func FormatAnime(a *Anime) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", a.Title)
	if a.Type != "" {
		fmt.Fprintf(&b, "Type: %s\n", a.Type)
	}
	if a.Episodes > 0 {
		fmt.Fprintf(&b, "Episodes: %d\n", a.Episodes)
	}
	if a.Score > 0 {
		fmt.Fprintf(&b, "Score: %.2f\n", a.Score)
	}
	if a.Status != "" {
		fmt.Fprintf(&b, "Status: %s\n", a.Status)
	}
	if len(a.Genres) > 0 {
		names := make([]string, 0, len(a.Genres))
		for _, g := range a.Genres {
			names = append(names, g.Name)
		}
		fmt.Fprintf(&b, "Genres: %s\n", strings.Join(names, ", "))
	}
	fmt.Fprintf(&b, "MAL ID: %d\n", a.MALID)
	if a.Synopsis != "" {
		fmt.Fprintf(&b, "\n%s\n", truncate(a.Synopsis, synopsisLimit))
	}
	if a.URL != "" {
		fmt.Fprintf(&b, "\n%s", a.URL)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatAnimeList renders a numbered summary of several titles.
func FormatAnimeList(header string, list []Anime) string {
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n")
	for i, a := range list {
		fmt.Fprintf(&b, "\n%d. %s", i+1, a.Title)
		if a.Score > 0 {
			fmt.Fprintf(&b, " (%.2f)", a.Score)
		}
		fmt.Fprintf(&b, " [id %d]", a.MALID)
	}
	return b.String()
}

// FormatCharacter renders one character as a plain-text block.
func FormatCharacter(c *Character) string {
	var b strings.Builder
	b.WriteString(c.Name)
	if c.NameKanji != "" {
		fmt.Fprintf(&b, " (%s)", c.NameKanji)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "MAL ID: %d\n", c.MALID)
	if c.About != "" {
		fmt.Fprintf(&b, "\n%s\n", truncate(c.About, synopsisLimit))
	}
	if c.URL != "" {
		fmt.Fprintf(&b, "\n%s", c.URL)
	}
	return strings.TrimRight(b.String(), "\n")
}

// SearchText answers a free-text lookup with the best match, rendered
// for direct sending. No match is an error so callers can report it.
func (c *Client) SearchText(ctx context.Context, query string) (string, error) {
	list, err := c.Search(ctx, query, 1)
	if err != nil {
		return "", err
	}
	if len(list) == 0 {
		return "", fmt.Errorf("no results for %q", query)
	}
	return FormatAnime(&list[0]), nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	// Back off to a rune boundary so a multibyte character is never
	// split, then prefer the last word break past the halfway point.
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	out := s[:cut]
	if i := strings.LastIndexByte(out, ' '); i > limit/2 {
		out = out[:i]
	}
	return out + "..."
}
