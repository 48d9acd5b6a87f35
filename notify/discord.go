package notify

import (
	"fmt"
	"sync"

	"QQFarmBot/logger"
	"QQFarmBot/models"

	"github.com/bwmarrin/discordgo"
)

// DiscordNotifier forwards account status changes and error log lines to a
// Discord channel. It implements manager.Broadcaster and is typically
// combined with the websocket hub through Fanout.
type DiscordNotifier struct {
	session   *discordgo.Session
	channelID string

	mu         sync.Mutex
	lastStatus map[string]models.BotStatus
}

func NewDiscordNotifier(token, channelID string) (*DiscordNotifier, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("open discord session: %w", err)
	}
	return &DiscordNotifier{
		session:    session,
		channelID:  channelID,
		lastStatus: make(map[string]models.BotStatus),
	}, nil
}

func (n *DiscordNotifier) Close() error {
	return n.session.Close()
}

// AccountListChanged notifies only on status transitions, not on every
// list refresh.
func (n *DiscordNotifier) AccountListChanged(accounts []models.AccountSummary) {
	n.mu.Lock()
	changed := make([]models.AccountSummary, 0, 2)
	for _, a := range accounts {
		if last, ok := n.lastStatus[a.UIN]; !ok || last != a.Status {
			n.lastStatus[a.UIN] = a.Status
			if ok {
				changed = append(changed, a)
			}
		}
	}
	n.mu.Unlock()

	for _, a := range changed {
		msg := fmt.Sprintf("Bot %s (%s) is now %s", a.Nickname, a.UIN, a.Status)
		if _, err := n.session.ChannelMessageSend(n.channelID, msg); err != nil {
			logger.Log.WithError(err).Error("failed to send Discord status notification")
		}
	}
}

// BotLog forwards error-level entries only; info noise stays local.
func (n *DiscordNotifier) BotLog(uin string, entry models.LogEntry) {
	if entry.Level != models.LogError {
		return
	}
	msg := fmt.Sprintf("[%s] %s", uin, entry.Message)
	if _, err := n.session.ChannelMessageSend(n.channelID, msg); err != nil {
		logger.Log.WithError(err).Error("failed to send Discord log notification")
	}
}
