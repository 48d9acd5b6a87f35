package manager

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"QQFarmBot/logger"
	"QQFarmBot/models"
)

const (
	minFarmInterval   = 30  // seconds
	minFriendInterval = 60  // seconds
	defaultLogLimit   = 100 // entries returned when the caller passes no limit
)

// Options tune the manager's timeouts and buffers.
type Options struct {
	LogBufferSize    int
	QRTimeout        time.Duration
	QRPollInterval   time.Duration
	ShutdownTimeout  time.Duration
	LandQueryTimeout time.Duration
	LandQueryRate    float64
}

func (o *Options) normalize() {
	if o.LogBufferSize <= 0 {
		o.LogBufferSize = 200
	}
	if o.QRTimeout <= 0 {
		o.QRTimeout = 120 * time.Second
	}
	if o.QRPollInterval <= 0 {
		o.QRPollInterval = 2 * time.Second
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = 10 * time.Second
	}
	if o.LandQueryTimeout <= 0 {
		o.LandQueryTimeout = 8 * time.Second
	}
	if o.LandQueryRate <= 0 {
		o.LandQueryRate = 0.5
	}
}

// Manager owns the registry of live bot sessions keyed by uin and enforces
// the at-most-one-session-per-uin invariant. Registry mutation happens only
// under mu; session-internal state is guarded by each session's own mutex.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	qr       map[string]*qrAttempt

	store    AccountStore
	provider GameProvider
	bc       Broadcaster
	opts     Options

	events chan sessionEvent
	ctx    context.Context
	cancel context.CancelFunc
}

func New(store AccountStore, provider GameProvider, bc Broadcaster, opts Options) *Manager {
	opts.normalize()
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		sessions: make(map[string]*Session),
		qr:       make(map[string]*qrAttempt),
		store:    store,
		provider: provider,
		bc:       bc,
		opts:     opts,
		events:   make(chan sessionEvent, 256),
		ctx:      ctx,
		cancel:   cancel,
	}
	go m.run()
	return m
}

// Close stops every live session and shuts the manager down.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	for uin, att := range m.qr {
		att.cancel()
		delete(m.qr, uin)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.stop(m.opts.ShutdownTimeout)
	}
	m.cancel()
}

// run drains session events on a single goroutine so that persistence and
// broadcasting never happen from arbitrary session goroutines.
func (m *Manager) run() {
	for {
		select {
		case <-m.ctx.Done():
			return
		case ev := <-m.events:
			switch ev.kind {
			case evStatus:
				m.broadcastAccounts()
			case evLog:
				m.bc.BotLog(ev.uin, ev.entry)
			case evProgress:
				m.persistProgress(ev.uin, ev.player)
			}
		}
	}
}

func (m *Manager) emitEvent(ev sessionEvent) {
	select {
	case m.events <- ev:
	default:
		logger.Log.WithField("uin", ev.uin).Debug("session event dropped, queue full")
	}
}

func (m *Manager) persistProgress(uin string, player *models.PlayerState) {
	if player == nil {
		return
	}
	account, err := m.store.GetAccount(uin)
	if err != nil || account == nil {
		return
	}
	account.Nickname = player.Name
	account.Level = player.Level
	account.Gold = player.Gold
	account.Exp = player.Exp
	account.GID = player.GID
	if err := m.store.SaveAccount(account); err != nil {
		logger.Log.WithField("uin", uin).WithError(err).Error("failed to persist account progress")
	}
}

func (m *Manager) broadcastAccounts() {
	accounts, err := m.ListAccounts()
	if err != nil {
		logger.Log.WithError(err).Error("failed to list accounts for broadcast")
		return
	}
	m.bc.AccountListChanged(accounts)
}

// ListAccounts merges persisted accounts with live session status. Accounts
// without a session report stopped.
func (m *Manager) ListAccounts() ([]models.AccountSummary, error) {
	accounts, err := m.store.ListAccounts()
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	m.mu.RLock()
	statuses := make(map[string]models.BotStatus, len(m.sessions))
	for uin, s := range m.sessions {
		statuses[uin] = s.Status()
	}
	m.mu.RUnlock()

	out := make([]models.AccountSummary, 0, len(accounts))
	for _, a := range accounts {
		status := models.StatusStopped
		if st, ok := statuses[a.UIN]; ok {
			status = st
		}
		out = append(out, models.AccountSummary{
			UIN:      a.UIN,
			Nickname: a.Nickname,
			Level:    a.Level,
			Gold:     a.Gold,
			Exp:      a.Exp,
			GID:      a.GID,
			Status:   status,
		})
	}
	return out, nil
}

func (m *Manager) GetAccount(uin string) (*models.AccountSummary, error) {
	account, err := m.store.GetAccount(uin)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	if account == nil {
		return nil, notFound(uin, "account")
	}

	status := models.StatusStopped
	m.mu.RLock()
	if s := m.sessions[uin]; s != nil {
		status = s.Status()
	}
	m.mu.RUnlock()

	return &models.AccountSummary{
		UIN:      account.UIN,
		Nickname: account.Nickname,
		Level:    account.Level,
		Gold:     account.Gold,
		Exp:      account.Exp,
		GID:      account.GID,
		Status:   status,
	}, nil
}

// RestartBot stops any existing session for uin and starts a fresh one from
// persisted configuration. A start already in flight fails fast with
// Conflict; a failed connect leaves the registry entry in the error state
// rather than removing it.
func (m *Manager) RestartBot(uin string) error {
	// An in-flight QR attempt or start conflicts regardless of whether the
	// account has been persisted yet.
	m.mu.RLock()
	pendingQR := m.qr[uin] != nil
	inFlight := m.sessions[uin] != nil && m.sessions[uin].Status() == models.StatusStarting
	m.mu.RUnlock()
	if pendingQR {
		return conflict(uin, "qr login in flight")
	}
	if inFlight {
		return conflict(uin, "start already in progress")
	}

	account, err := m.store.GetAccount(uin)
	if err != nil {
		return fmt.Errorf("get account: %w", err)
	}
	if account == nil {
		return notFound(uin, "account")
	}

	m.mu.Lock()
	if m.qr[uin] != nil {
		m.mu.Unlock()
		return conflict(uin, "qr login in flight")
	}
	old := m.sessions[uin]
	if old != nil && old.Status() == models.StatusStarting {
		m.mu.Unlock()
		return conflict(uin, "start already in progress")
	}
	s := newSession(uin, account, m.opts, m.emitEvent, m.carryLogsLocked(uin))
	m.sessions[uin] = s
	m.mu.Unlock()

	if old != nil {
		old.stop(m.opts.ShutdownTimeout)
	}

	logger.Log.WithField("uin", uin).Info("starting bot")
	return m.connectSession(s, account)
}

// connectSession establishes the game connection for a starting session.
func (m *Manager) connectSession(s *Session, account *models.Account) error {
	ctx, cancel := context.WithCancel(m.ctx)
	conn, err := m.provider.Connect(ctx, Credentials{
		UIN:      s.uin,
		Token:    account.Credential,
		Platform: account.Platform,
	})
	if err != nil {
		cancel()
		s.failStart(err)
		return startFailure(s.uin, err)
	}
	s.begin(ctx, cancel, conn)
	return nil
}

// StopBot gracefully stops the session for uin. No-op when no session
// exists or it is already stopped; the log buffer is retained until the
// account is removed.
func (m *Manager) StopBot(uin string) error {
	m.mu.RLock()
	s := m.sessions[uin]
	m.mu.RUnlock()
	if s == nil {
		return nil
	}
	s.stop(m.opts.ShutdownTimeout)
	logger.Log.WithField("uin", uin).Info("bot stopped")
	return nil
}

// UpdateAccountConfig validates and merges a partial configuration into the
// persisted account. Interval changes hot-reload into a live session;
// a platform change takes effect on the next restart.
func (m *Manager) UpdateAccountConfig(uin string, partial map[string]interface{}) error {
	account, err := m.store.GetAccount(uin)
	if err != nil {
		return fmt.Errorf("get account: %w", err)
	}
	if account == nil {
		return notFound(uin, "account")
	}

	for key, value := range partial {
		switch key {
		case "platform":
			platform, ok := value.(string)
			if !ok || (platform != "qq" && platform != "wx") {
				return validation(uin, "invalid platform")
			}
			account.Platform = platform
		case "farmInterval":
			n, ok := asInt(value)
			if !ok || n < minFarmInterval {
				return validation(uin, fmt.Sprintf("farmInterval must be at least %d seconds", minFarmInterval))
			}
			account.FarmInterval = n
		case "friendInterval":
			n, ok := asInt(value)
			if !ok || n < minFriendInterval {
				return validation(uin, fmt.Sprintf("friendInterval must be at least %d seconds", minFriendInterval))
			}
			account.FriendInterval = n
		default:
			return validation(uin, "unrecognized config key: "+key)
		}
	}

	if err := m.store.SaveAccount(account); err != nil {
		return fmt.Errorf("save account: %w", err)
	}

	m.mu.RLock()
	s := m.sessions[uin]
	m.mu.RUnlock()
	if s != nil {
		s.setIntervals(
			time.Duration(account.FarmInterval)*time.Second,
			time.Duration(account.FriendInterval)*time.Second,
		)
		if _, ok := partial["platform"]; ok {
			s.appendLog(models.LogInfo, "platform change takes effect on next restart")
		}
	}
	return nil
}

// RemoveAccount stops any live session, deletes the persisted account and
// discards its logs. Irreversible.
func (m *Manager) RemoveAccount(uin string) error {
	account, err := m.store.GetAccount(uin)
	if err != nil {
		return fmt.Errorf("get account: %w", err)
	}
	if account == nil {
		return notFound(uin, "account")
	}

	m.mu.Lock()
	s := m.sessions[uin]
	delete(m.sessions, uin)
	if att := m.qr[uin]; att != nil {
		att.cancel()
		delete(m.qr, uin)
	}
	m.mu.Unlock()

	if s != nil {
		s.stop(m.opts.ShutdownTimeout)
	}

	if err := m.store.DeleteAccount(uin); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}

	logger.Log.WithField("uin", uin).Info("account removed")
	m.broadcastAccounts()
	return nil
}

// GetBotLogs returns up to limit of the most recent log entries for uin in
// append order. An absent session yields an empty slice, not an error.
func (m *Manager) GetBotLogs(uin string, limit int) []models.LogEntry {
	if limit <= 0 {
		limit = defaultLogLimit
	}

	m.mu.RLock()
	s := m.sessions[uin]
	m.mu.RUnlock()
	if s == nil {
		return []models.LogEntry{}
	}
	return s.logs.Tail(limit)
}

// SetFeatureToggles merges validated toggles into the running session's set
// and returns the updated full set. The change takes effect on the next
// automation tick, no restart required.
func (m *Manager) SetFeatureToggles(uin string, partial map[string]bool) (map[string]bool, error) {
	for name := range partial {
		if !recognizedToggles[name] {
			return nil, validation(uin, "unrecognized toggle: "+name)
		}
	}

	m.mu.RLock()
	s := m.sessions[uin]
	m.mu.RUnlock()
	if s == nil || s.Status() != models.StatusRunning {
		return nil, notFound(uin, "running session")
	}
	return s.mergeToggles(partial), nil
}

// GetSnapshot returns the live snapshot when a session exists, and degrades
// to persisted account fields with stopped status and nil toggles/stats
// when it does not. The degraded form is expected behavior, not an error.
func (m *Manager) GetSnapshot(uin string) (*models.Snapshot, error) {
	m.mu.RLock()
	s := m.sessions[uin]
	m.mu.RUnlock()
	if s != nil {
		snap := s.snapshot()
		return &snap, nil
	}

	account, err := m.store.GetAccount(uin)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	if account == nil {
		return nil, notFound(uin, "account")
	}
	return &models.Snapshot{
		UserID: account.UIN,
		Status: models.StatusStopped,
		UserState: models.PlayerState{
			Name:  account.Nickname,
			Level: account.Level,
			Gold:  account.Gold,
			Exp:   account.Exp,
			GID:   account.GID,
		},
		FeatureToggles: nil,
		DailyStats:     nil,
	}, nil
}

// GetDetailedLandStatus performs a live land query against the game
// connection. Requires a running session; the query is rate limited and
// bounded by its own timeout.
func (m *Manager) GetDetailedLandStatus(uin string) (*models.LandStatus, error) {
	m.mu.RLock()
	s := m.sessions[uin]
	m.mu.RUnlock()
	if s == nil {
		return nil, notRunning(uin)
	}

	ctx, cancel := context.WithTimeout(m.ctx, m.opts.LandQueryTimeout)
	defer cancel()
	return s.landStatus(ctx)
}

// carryLogsLocked hands the previous session's log buffer to its successor
// so logs stay queryable across restarts. Caller holds m.mu.
func (m *Manager) carryLogsLocked(uin string) *LogBuffer {
	if old := m.sessions[uin]; old != nil {
		return old.logs
	}
	return nil
}

func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		// JSON numbers arrive as float64; a fractional value is invalid,
		// not truncated.
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}
