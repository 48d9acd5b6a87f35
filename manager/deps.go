package manager

import (
	"context"
	"time"

	"QQFarmBot/models"
)

// AccountStore is the persistence collaborator. A nil *models.Account with a
// nil error means the account does not exist.
type AccountStore interface {
	ListAccounts() ([]models.Account, error)
	GetAccount(uin string) (*models.Account, error)
	SaveAccount(account *models.Account) error
	DeleteAccount(uin string) error
}

// Broadcaster receives manager-originated events, fire-and-forget.
type Broadcaster interface {
	AccountListChanged(accounts []models.AccountSummary)
	BotLog(uin string, entry models.LogEntry)
}

// Credentials seed a game connection after a confirmed QR login.
type Credentials struct {
	UIN      string
	Token    string
	Platform string
}

// LoginTicket describes a freshly issued QR login attempt.
type LoginTicket struct {
	Token     string
	URL       string
	QRCodePNG []byte
	ExpiresAt time.Time
}

// LoginPoll is one poll result from the external login provider. Credentials
// is non-nil only when Status is QRConfirmed.
type LoginPoll struct {
	Status      models.QRStatus
	Credentials *Credentials
}

// GameProvider is the opaque capability exposed by the external game:
// QR login issuance/polling and live connections.
type GameProvider interface {
	BeginLogin(ctx context.Context, uin, platform string) (*LoginTicket, error)
	PollLogin(ctx context.Context, uin, token string) (*LoginPoll, error)
	Connect(ctx context.Context, creds Credentials) (GameConn, error)
}

// GameConn is one live connection to the game. Done is closed when the
// connection drops spontaneously; Err reports the reason afterwards.
type GameConn interface {
	QueryPlayerState(ctx context.Context) (*models.PlayerState, error)
	QueryLandStatus(ctx context.Context) (*models.LandStatus, error)
	Done() <-chan struct{}
	Err() error
	Close() error
}
