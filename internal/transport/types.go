package transport

import "context"

type Update struct {
	Message *Message
}

type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	FromName     string
	Text         string
	IsGroup      bool
}

type ChatTarget struct {
	ChatID int64
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// FileRef addresses a file to attach: either a local path or a remote
// URL the platform fetches itself. Exactly one should be set.
type FileRef struct {
	Path string
	URL  string
}

type Notification struct {
	Target  ChatTarget
	Text    string
	Options *SendOptions
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	SendPhoto(ctx context.Context, to ChatTarget, photo FileRef, caption string, opt *SendOptions) (MessageRef, error)
	SendVideo(ctx context.Context, to ChatTarget, video FileRef, caption string, opt *SendOptions) (MessageRef, error)
}
