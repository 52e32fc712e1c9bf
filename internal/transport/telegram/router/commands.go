package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"wabot/internal/catalog"
	"wabot/internal/media"
	"wabot/internal/session"
	"wabot/internal/storage"
	kit "wabot/internal/transport"
	logx "wabot/pkg/logx"
)

// Deps are the services the command handlers act on.
type Deps struct {
	Manager *session.Manager
	Store   storage.Store
	Catalog *catalog.Client
	Media   *media.Downloader
}

func (r *Router) commands() []Command {
	return []Command{
		{
			Name:        "start",
			Description: "register and show the welcome message",
			Usage:       "/start",
			Handle:      cmdStart,
		},
		{
			Name:        "help",
			Description: "show this help",
			Usage:       "/help",
			Handle:      r.cmdHelp,
		},
		{
			Name:        "newsession",
			Description: "start a new WhatsApp session",
			Usage:       "/newsession <name>",
			Timeout:     30 * time.Second,
			Handle:      cmdNewSession,
		},
		{
			Name:        "sessions",
			Description: "list your sessions",
			Usage:       "/sessions",
			Timeout:     15 * time.Second,
			Handle:      cmdSessions,
		},
		{
			Name:        "destroysession",
			Description: "tear down one of your sessions",
			Usage:       "/destroysession <name>",
			Timeout:     30 * time.Second,
			Handle:      cmdDestroySession,
		},
		{
			Name:        "status",
			Description: "show live session states",
			Usage:       "/status",
			Handle:      cmdStatus,
		},
		{
			Name:        "dl",
			Description: "download a video (YouTube, Instagram, TikTok, Twitter, Facebook)",
			Usage:       "/dl <url>",
			Timeout:     6 * time.Minute,
			Handle:      cmdDownload,
		},
		{
			Name:        "anime",
			Description: "search anime by title",
			Usage:       "/anime <title>",
			Timeout:     30 * time.Second,
			Handle:      cmdAnime,
		},
		{
			Name:        "animeid",
			Description: "anime details by MAL id",
			Usage:       "/animeid <id>",
			Timeout:     30 * time.Second,
			Handle:      cmdAnimeID,
		},
		{
			Name:        "topanime",
			Description: "current top-rated anime",
			Usage:       "/topanime",
			Timeout:     30 * time.Second,
			Handle:      cmdTopAnime,
		},
		{
			Name:        "seasonal",
			Description: "anime airing this season",
			Usage:       "/seasonal",
			Timeout:     30 * time.Second,
			Handle:      cmdSeasonal,
		},
		{
			Name:        "character",
			Description: "search anime characters",
			Usage:       "/character <name>",
			Timeout:     30 * time.Second,
			Handle:      cmdCharacter,
		},
		{
			Name:        "broadcast",
			Description: "send a message to all subscribers",
			Usage:       "/broadcast <text>",
			Access:      AccessAdminOnly,
			Timeout:     5 * time.Minute,
			Handle:      cmdBroadcast,
		},
	}
}

func reply(ctx context.Context, req *Request, text string) error {
	_, err := req.Adapter.SendText(ctx, req.Chat, text, &kit.SendOptions{DisablePreview: true})
	return err
}

func cmdStart(ctx context.Context, req *Request) error {
	var username, first string
	if m := req.Update.Message; m != nil {
		username = m.FromUsername
		first = m.FromName
	}
	if err := req.Deps.Store.UpsertOperator(ctx, storage.Operator{
		ID:        req.OperatorID(),
		Username:  username,
		FirstName: first,
	}); err != nil {
		req.Logger.Warn("operator not recorded", logx.Err(err))
	}
	return reply(ctx, req,
		"Welcome! This bot manages WhatsApp sessions for you.\n\n"+
			"Start with /newsession <name>, then scan the code that arrives here.\n"+
			"Type /help for the full command list.")
}

func (r *Router) cmdHelp(ctx context.Context, req *Request) error {
	r.mu.RLock()
	cmds := make([]Command, 0, len(r.cmds))
	for _, c := range r.cmds {
		cmds = append(cmds, c)
	}
	r.mu.RUnlock()
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })

	var b strings.Builder
	b.WriteString("Commands:\n")
	for _, c := range cmds {
		if c.Access == AccessAdminOnly && !isAdmin(req.FromID, r.adminsSnapshot()) {
			continue
		}
		fmt.Fprintf(&b, "\n%s\n  %s", c.Usage, c.Description)
	}
	return reply(ctx, req, b.String())
}

func cmdNewSession(ctx context.Context, req *Request) error {
	if len(req.Args) != 1 {
		return reply(ctx, req, "Usage: /newsession <name>")
	}
	name := req.Args[0]
	err := req.Deps.Manager.Create(ctx, name, req.OperatorID())
	switch {
	case errors.Is(err, session.ErrAlreadyExists):
		return reply(ctx, req, fmt.Sprintf("Session %q already exists.", name))
	case err != nil:
		return reply(ctx, req, fmt.Sprintf("Could not start session: %v", err))
	}
	return reply(ctx, req, fmt.Sprintf(
		"Starting session %q. A pairing code will arrive here when it is ready to scan.", name))
}

func cmdSessions(ctx context.Context, req *Request) error {
	recs, err := req.Deps.Store.ListSessionsByOperator(ctx, req.OperatorID())
	if err != nil {
		return reply(ctx, req, "Could not list sessions, try again later.")
	}
	if len(recs) == 0 {
		return reply(ctx, req, "You have no sessions. Create one with /newsession <name>.")
	}
	var b strings.Builder
	b.WriteString("Your sessions:\n")
	for _, rec := range recs {
		state := "offline"
		if st, ok := req.Deps.Manager.Lookup(rec.Name); ok {
			state = st.String()
		} else if !rec.Active {
			state = "retired"
		}
		fmt.Fprintf(&b, "\n%s - %s", rec.Name, state)
	}
	return reply(ctx, req, b.String())
}

func cmdDestroySession(ctx context.Context, req *Request) error {
	if len(req.Args) != 1 {
		return reply(ctx, req, "Usage: /destroysession <name>")
	}
	name := req.Args[0]
	err := req.Deps.Manager.Destroy(ctx, name)
	if errors.Is(err, session.ErrNotFound) {
		return reply(ctx, req, fmt.Sprintf("No live session named %q.", name))
	}
	if err != nil {
		return reply(ctx, req, fmt.Sprintf("Teardown failed: %v", err))
	}
	return reply(ctx, req, fmt.Sprintf("Session %q destroyed.", name))
}

func cmdStatus(ctx context.Context, req *Request) error {
	names := req.Deps.Manager.Names()
	if len(names) == 0 {
		return reply(ctx, req, "No live sessions.")
	}
	sort.Strings(names)
	var b strings.Builder
	fmt.Fprintf(&b, "Live sessions (%d):\n", len(names))
	for _, name := range names {
		st, _ := req.Deps.Manager.Lookup(name)
		fmt.Fprintf(&b, "\n%s - %s", name, st.String())
	}
	return reply(ctx, req, b.String())
}

func cmdDownload(ctx context.Context, req *Request) error {
	if len(req.Args) != 1 {
		return reply(ctx, req, "Usage: /dl <url>")
	}
	rawURL := req.Args[0]
	if _, ok := media.DetectPlatform(rawURL); !ok {
		return reply(ctx, req, "Unsupported link. Supported: YouTube, Instagram, TikTok, Twitter/X, Facebook.")
	}
	_ = reply(ctx, req, "Downloading, hang on...")

	path, cleanup, err := req.Deps.Media.Fetch(ctx, rawURL)
	if err != nil {
		return reply(ctx, req, "Download failed. Check the link and try again.")
	}
	defer cleanup()

	if _, err := req.Adapter.SendVideo(ctx, req.Chat, kit.FileRef{Path: path}, "", nil); err != nil {
		req.Logger.Warn("video upload failed", logx.Err(err))
		return reply(ctx, req, "Downloaded, but the upload to Telegram failed (file may be too large).")
	}
	return nil
}

func cmdAnime(ctx context.Context, req *Request) error {
	if len(req.Args) == 0 {
		return reply(ctx, req, "Usage: /anime <title>")
	}
	text, err := req.Deps.Catalog.SearchText(ctx, strings.Join(req.Args, " "))
	if err != nil {
		return reply(ctx, req, "No results, or the catalog is unreachable right now.")
	}
	return reply(ctx, req, text)
}

func cmdAnimeID(ctx context.Context, req *Request) error {
	if len(req.Args) != 1 {
		return reply(ctx, req, "Usage: /animeid <id>")
	}
	id, err := strconv.Atoi(req.Args[0])
	if err != nil || id <= 0 {
		return reply(ctx, req, "The id must be a positive number.")
	}
	a, err := req.Deps.Catalog.ByID(ctx, id)
	if err != nil {
		return reply(ctx, req, "Lookup failed, try again later.")
	}
	text := catalog.FormatAnime(a)
	if img := a.Images.JPG.ImageURL; img != "" {
		if _, err := req.Adapter.SendPhoto(ctx, req.Chat, kit.FileRef{URL: img}, text, nil); err == nil {
			return nil
		}
		// Fall through to plain text when the image upload fails.
	}
	return reply(ctx, req, text)
}

func cmdTopAnime(ctx context.Context, req *Request) error {
	list, err := req.Deps.Catalog.Top(ctx, 10)
	if err != nil || len(list) == 0 {
		return reply(ctx, req, "Lookup failed, try again later.")
	}
	return reply(ctx, req, catalog.FormatAnimeList("Top anime:", list))
}

func cmdSeasonal(ctx context.Context, req *Request) error {
	list, err := req.Deps.Catalog.SeasonNow(ctx, 10)
	if err != nil || len(list) == 0 {
		return reply(ctx, req, "Lookup failed, try again later.")
	}
	return reply(ctx, req, catalog.FormatAnimeList("Airing this season:", list))
}

func cmdCharacter(ctx context.Context, req *Request) error {
	if len(req.Args) == 0 {
		return reply(ctx, req, "Usage: /character <name>")
	}
	list, err := req.Deps.Catalog.SearchCharacter(ctx, strings.Join(req.Args, " "), 1)
	if err != nil || len(list) == 0 {
		return reply(ctx, req, "No results, or the catalog is unreachable right now.")
	}
	c := &list[0]
	text := catalog.FormatCharacter(c)
	if img := c.Images.JPG.ImageURL; img != "" {
		if _, err := req.Adapter.SendPhoto(ctx, req.Chat, kit.FileRef{URL: img}, text, nil); err == nil {
			return nil
		}
	}
	return reply(ctx, req, text)
}

// cmdBroadcast fans the text out on both rails: to every subscribed
// operator over Telegram, and to every WhatsApp subscriber through
// their session.
func cmdBroadcast(ctx context.Context, req *Request) error {
	if len(req.Args) == 0 {
		return reply(ctx, req, "Usage: /broadcast <text>")
	}
	// The body is everything after the command token, so a
	// "/broadcast@bot ..." invocation loses the mention along with it.
	raw := strings.TrimSpace(req.Update.Message.Text)
	text := ""
	if i := strings.IndexFunc(raw, unicode.IsSpace); i >= 0 {
		text = strings.TrimSpace(raw[i:])
	}
	if text == "" {
		return reply(ctx, req, "Usage: /broadcast <text>")
	}

	ops, err := req.Deps.Store.ListSubscribedOperators(ctx)
	if err != nil {
		return reply(ctx, req, "Could not list operators, broadcast aborted.")
	}
	tgSent, tgFailed := 0, 0
	for _, op := range ops {
		chatID, err := strconv.ParseInt(op.ID, 10, 64)
		if err != nil {
			tgFailed++
			continue
		}
		if _, err := req.Adapter.SendText(ctx, kit.ChatTarget{ChatID: chatID}, text, nil); err != nil {
			tgFailed++
			req.Logger.Warn("operator broadcast failed", logx.String("operator", op.ID), logx.Err(err))
			continue
		}
		tgSent++
	}

	res, err := req.Deps.Manager.Broadcast(ctx, text, nil)
	if err != nil {
		return reply(ctx, req, fmt.Sprintf(
			"Telegram: %d sent, %d failed. WhatsApp fan-out aborted: %v", tgSent, tgFailed, err))
	}
	return reply(ctx, req, fmt.Sprintf(
		"Telegram: %d sent, %d failed.\nWhatsApp: %d delivered, %d failed, %d skipped via %d sessions.",
		tgSent, tgFailed, res.Delivered, res.Failed, res.Skipped, res.Sessions))
}
