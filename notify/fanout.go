package notify

import "QQFarmBot/models"

// Broadcaster mirrors manager.Broadcaster so sinks can be combined without
// importing the manager package.
type Broadcaster interface {
	AccountListChanged(accounts []models.AccountSummary)
	BotLog(uin string, entry models.LogEntry)
}

// Fanout forwards every event to all sinks.
type Fanout []Broadcaster

func (f Fanout) AccountListChanged(accounts []models.AccountSummary) {
	for _, b := range f {
		b.AccountListChanged(accounts)
	}
}

func (f Fanout) BotLog(uin string, entry models.LogEntry) {
	for _, b := range f {
		b.BotLog(uin, entry)
	}
}
