package storage

import (
	"context"
	"time"
)

type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// SessionRecord is the durable identity of a session. A row here is
// what "the session exists" means across restarts; whether it is live
// right now is the registry's business.
type SessionRecord struct {
	Name       string
	OperatorID string
	Active     bool
	CreatedAt  time.Time
}

// Operator is a Telegram account that owns sessions and receives
// notifications about them.
type Operator struct {
	ID         string
	Username   string
	FirstName  string
	Subscribed bool
	CreatedAt  time.Time
}

// Subscriber is a WhatsApp address registered against one session,
// targeted by broadcast fan-out through that session.
type Subscriber struct {
	Address     string
	SessionName string
}

// Store is the persistence API consumed by the session core and the
// command router.
type Store interface {
	SaveSession(ctx context.Context, name, operatorID string) error
	DeactivateSession(ctx context.Context, name string) error
	ListActiveSessions(ctx context.Context) ([]SessionRecord, error)
	ListSessionsByOperator(ctx context.Context, operatorID string) ([]SessionRecord, error)

	UpsertOperator(ctx context.Context, op Operator) error
	ListSubscribedOperators(ctx context.Context) ([]Operator, error)

	UpsertSubscriber(ctx context.Context, address, sessionName string) error
	ListSubscribers(ctx context.Context) ([]Subscriber, error)

	AppendStatusView(ctx context.Context, sessionName, statusID string) error

	Close() error
}
