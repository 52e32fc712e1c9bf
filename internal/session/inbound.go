package session

import (
	"context"
	"strings"

	"wabot/internal/wadriver"
	logx "wabot/pkg/logx"
)

// CatalogSearcher answers an anime lookup with a ready-to-send text
// block.
type CatalogSearcher interface {
	SearchText(ctx context.Context, query string) (string, error)
}

// MediaFetcher downloads the media behind rawURL to a local file.
// cleanup removes the file and is safe to call once the reply has
// been sent.
type MediaFetcher interface {
	Fetch(ctx context.Context, rawURL string) (path string, cleanup func(), err error)
}

// Inbound routes messages arriving on a session back out through that
// same session. Commands are bang-prefixed; anything else is ignored
// so ordinary chatter never triggers a reply.
type Inbound struct {
	catalog CatalogSearcher
	media   MediaFetcher
	log     logx.Logger
}

func NewInbound(catalog CatalogSearcher, media MediaFetcher, log logx.Logger) *Inbound {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Inbound{catalog: catalog, media: media, log: log}
}

func (in *Inbound) Handle(ctx context.Context, s *Session, from, body string) {
	body = strings.TrimSpace(body)
	lower := strings.ToLower(body)

	var arg string
	switch {
	case strings.HasPrefix(lower, "!dl "):
		arg = strings.TrimSpace(body[len("!dl "):])
		in.download(ctx, s, from, arg)
	case strings.HasPrefix(lower, "!download "):
		arg = strings.TrimSpace(body[len("!download "):])
		in.download(ctx, s, from, arg)
	case strings.HasPrefix(lower, "!anime "):
		arg = strings.TrimSpace(body[len("!anime "):])
		in.anime(ctx, s, from, arg)
	}
}

func (in *Inbound) download(ctx context.Context, s *Session, from, rawURL string) {
	if in.media == nil || rawURL == "" {
		return
	}
	path, cleanup, err := in.media.Fetch(ctx, rawURL)
	if err != nil {
		in.log.Warn("inbound download failed",
			logx.String("session", s.Name()),
			logx.String("url", rawURL),
			logx.Err(err))
		in.reply(ctx, s, from, "Download failed. Check the link and try again.", nil)
		return
	}
	defer cleanup()
	in.reply(ctx, s, from, "", &wadriver.Attachment{Path: path})
}

func (in *Inbound) anime(ctx context.Context, s *Session, from, query string) {
	if in.catalog == nil || query == "" {
		return
	}
	text, err := in.catalog.SearchText(ctx, query)
	if err != nil {
		in.log.Warn("inbound anime lookup failed",
			logx.String("session", s.Name()),
			logx.String("query", query),
			logx.Err(err))
		in.reply(ctx, s, from, "Anime lookup failed, try again later.", nil)
		return
	}
	in.reply(ctx, s, from, text, nil)
}

func (in *Inbound) reply(ctx context.Context, s *Session, to, body string, att *wadriver.Attachment) {
	h := s.Handle()
	if h == nil || s.isClosed() {
		return
	}
	if err := h.Send(ctx, to, body, att); err != nil {
		in.log.Warn("inbound reply failed",
			logx.String("session", s.Name()),
			logx.String("to", to),
			logx.Err(err))
	}
}
