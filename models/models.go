package models

import (
	"time"

	"gorm.io/gorm"
)

type Account struct {
	gorm.Model
	UIN            string `gorm:"uniqueIndex"` // The game account identifier, treated as an opaque string.
	Nickname       string // The in-game nickname, refreshed by the running session.
	Level          int    `gorm:"default:1"` // The in-game level.
	Gold           int64  `gorm:"default:0"` // The in-game gold balance.
	Exp            int64  `gorm:"default:0"` // The accumulated experience.
	GID            int    `gorm:"default:0"` // The in-game group/guild id.
	Platform       string `gorm:"default:qq"` // The login platform, either "qq" or "wx".
	FarmInterval   int    `gorm:"default:60"`  // Seconds between farm automation ticks.
	FriendInterval int    `gorm:"default:300"` // Seconds between friend-farm automation ticks.
	Credential     string // The serialized game credential obtained from QR login.
}

type AdminUser struct {
	gorm.Model
	Username     string `gorm:"uniqueIndex"`
	PasswordHash string
	Role         string `gorm:"default:user"` // Either "admin" or "user".
	AllowedUINs  string // Comma-separated list of uins a restricted user may manage.
}

type BotStatus string

const (
	StatusStopped  BotStatus = "stopped"  // No live connection; the default for a bare account.
	StatusStarting BotStatus = "starting" // Credential handshake or reconnect in progress.
	StatusRunning  BotStatus = "running"  // Connected and automating.
	StatusError    BotStatus = "error"    // The connection failed or dropped; restart required.
)

type QRStatus string

const (
	QRPending   QRStatus = "pending"
	QRScanned   QRStatus = "scanned"
	QRConfirmed QRStatus = "confirmed"
	QRExpired   QRStatus = "expired"
	QRCancelled QRStatus = "cancelled"
)

type LogLevel string

const (
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// LogEntry is one line of a session's bounded in-memory log.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Level   LogLevel  `json:"level"`
	Message string    `json:"message"`
}

// PlayerState mirrors the live in-game fields a session caches between ticks.
type PlayerState struct {
	Name  string `json:"name"`
	Level int    `json:"level"`
	Gold  int64  `json:"gold"`
	Exp   int64  `json:"exp"`
	GID   int    `json:"gid"`
}

// DailyStats counts what the automation loop did since local midnight.
type DailyStats struct {
	Date      string `json:"date"` // YYYY-MM-DD of the counting window.
	Harvests  int    `json:"harvests"`
	Plants    int    `json:"plants"`
	Waters    int    `json:"waters"`
	Weeds     int    `json:"weeds"`
	Pests     int    `json:"pests"`
	Steals    int    `json:"steals"`
	Helps     int    `json:"helps"`
	ExpGained int64  `json:"expGained"`
}

// Snapshot is the point-in-time view returned for one account. When no live
// session exists it degrades to persisted fields with stopped status and
// nil toggles/stats.
type Snapshot struct {
	UserID         string          `json:"userId"`
	Status         BotStatus       `json:"status"`
	UserState      PlayerState     `json:"userState"`
	FeatureToggles map[string]bool `json:"featureToggles"`
	DailyStats     *DailyStats     `json:"dailyStats"`
}

// AccountSummary merges a persisted account with its live status for listing.
type AccountSummary struct {
	UIN      string    `json:"uin"`
	Nickname string    `json:"nickname"`
	Level    int       `json:"level"`
	Gold     int64     `json:"gold"`
	Exp      int64     `json:"exp"`
	GID      int       `json:"gid"`
	Status   BotStatus `json:"status"`
}

// Land is one plot in the detailed land status report.
type Land struct {
	Index     int    `json:"index"`
	PlantID   string `json:"plantId"`
	PlantName string `json:"plantName"`
	Phase     string `json:"phase"`
	MatureAt  int64  `json:"matureAt"`
	Dry       bool   `json:"dry"`
	Weedy     bool   `json:"weedy"`
	Infested  bool   `json:"infested"`
	Stealable bool   `json:"stealable"`
}

// LandStatus is the result of a live land query against the game connection.
type LandStatus struct {
	UIN       string `json:"uin"`
	Lands     []Land `json:"lands"`
	FetchedAt int64  `json:"fetchedAt"`
}
