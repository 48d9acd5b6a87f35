package manager

import (
	"context"
	"time"

	"QQFarmBot/logger"
	"QQFarmBot/models"
)

// QRConfig is the automation configuration supplied when a new account is
// added through QR login.
type QRConfig struct {
	Platform       string
	FarmInterval   int
	FriendInterval int
}

// QRAttemptInfo is the caller-facing descriptor of a pending QR login.
type QRAttemptInfo struct {
	UIN       string          `json:"uin"`
	Token     string          `json:"token"`
	URL       string          `json:"url"`
	QRCodePNG []byte          `json:"qrCodePng"`
	ExpiresAt time.Time       `json:"expiresAt"`
	Status    models.QRStatus `json:"status"`
}

type qrAttempt struct {
	uin       string
	cfg       QRConfig
	token     string
	url       string
	png       []byte
	expiresAt time.Time
	status    models.QRStatus
	ctx       context.Context
	cancel    context.CancelFunc
}

// StartQRLogin issues a QR login attempt for uin and begins polling the
// external login provider. At most one attempt per uin may be in flight,
// and an attempt conflicts with a live starting/running session.
func (m *Manager) StartQRLogin(uin string, cfg QRConfig) (*QRAttemptInfo, error) {
	if cfg.Platform == "" {
		cfg.Platform = "qq"
	}
	if cfg.Platform != "qq" && cfg.Platform != "wx" {
		return nil, validation(uin, "unknown platform: "+cfg.Platform)
	}
	if cfg.FarmInterval == 0 {
		cfg.FarmInterval = 60
	}
	if cfg.FriendInterval == 0 {
		cfg.FriendInterval = 300
	}
	if cfg.FarmInterval < minFarmInterval || cfg.FriendInterval < minFriendInterval {
		return nil, validation(uin, "interval below minimum")
	}

	ctx, cancel := context.WithCancel(m.ctx)
	att := &qrAttempt{
		uin:    uin,
		cfg:    cfg,
		status: models.QRPending,
		ctx:    ctx,
		cancel: cancel,
	}

	m.mu.Lock()
	if s := m.sessions[uin]; s != nil {
		if st := s.Status(); st == models.StatusStarting || st == models.StatusRunning {
			m.mu.Unlock()
			cancel()
			return nil, conflict(uin, "bot already "+string(st))
		}
	}
	if m.qr[uin] != nil {
		m.mu.Unlock()
		cancel()
		return nil, conflict(uin, "qr login already pending")
	}
	m.qr[uin] = att
	m.mu.Unlock()

	ticket, err := m.provider.BeginLogin(ctx, uin, cfg.Platform)
	if err != nil {
		m.discardQR(att)
		cancel()
		return nil, startFailure(uin, err)
	}

	m.mu.Lock()
	if m.qr[uin] != att {
		// Cancelled while the ticket was being issued.
		m.mu.Unlock()
		return nil, conflict(uin, "qr login cancelled")
	}
	att.token = ticket.Token
	att.url = ticket.URL
	att.png = ticket.QRCodePNG
	att.expiresAt = ticket.ExpiresAt
	if att.expiresAt.IsZero() {
		att.expiresAt = time.Now().Add(m.opts.QRTimeout)
	}
	info := att.info()
	m.mu.Unlock()

	logger.Log.WithField("uin", uin).Info("QR login started")
	go m.pollQRLogin(att)

	return &info, nil
}

// CancelQRLogin discards a pending attempt. Idempotent; a confirmation that
// races with the cancellation is silently dropped because the attempt is no
// longer registered when the poll goroutine tries to claim it.
func (m *Manager) CancelQRLogin(uin string) {
	m.mu.Lock()
	att := m.qr[uin]
	if att != nil {
		delete(m.qr, uin)
		att.status = models.QRCancelled
	}
	m.mu.Unlock()

	if att != nil {
		att.cancel()
		logger.Log.WithField("uin", uin).Info("QR login cancelled")
	}
}

// QRStatus returns the poll-able status of the pending attempt for uin, or
// nil when none is in flight.
func (m *Manager) QRStatus(uin string) *QRAttemptInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	att := m.qr[uin]
	if att == nil {
		return nil
	}
	info := att.info()
	return &info
}

func (att *qrAttempt) info() QRAttemptInfo {
	return QRAttemptInfo{
		UIN:       att.uin,
		Token:     att.token,
		URL:       att.url,
		QRCodePNG: att.png,
		ExpiresAt: att.expiresAt,
		Status:    att.status,
	}
}

func (m *Manager) pollQRLogin(att *qrAttempt) {
	ticker := time.NewTicker(m.opts.QRPollInterval)
	defer ticker.Stop()

	deadline := time.NewTimer(time.Until(att.expiresAt))
	defer deadline.Stop()

	for {
		select {
		case <-att.ctx.Done():
			return

		case <-deadline.C:
			m.mu.Lock()
			if m.qr[att.uin] == att {
				delete(m.qr, att.uin)
				att.status = models.QRExpired
			}
			m.mu.Unlock()
			att.cancel()
			logger.Log.WithField("uin", att.uin).Info("QR login expired")
			return

		case <-ticker.C:
			poll, err := m.provider.PollLogin(att.ctx, att.uin, att.token)
			if err != nil {
				if att.ctx.Err() != nil {
					return
				}
				logger.Log.WithField("uin", att.uin).WithError(err).Warn("QR poll failed")
				continue
			}

			switch poll.Status {
			case models.QRScanned:
				m.mu.Lock()
				if m.qr[att.uin] == att {
					att.status = models.QRScanned
				}
				m.mu.Unlock()

			case models.QRConfirmed:
				if poll.Credentials == nil {
					// A confirmation without credentials is unusable;
					// discard the attempt so the uin is not stuck pending.
					m.discardQR(att)
					att.cancel()
					logger.Log.WithField("uin", att.uin).Warn("QR confirmed without credentials, discarding attempt")
					return
				}
				m.completeQRLogin(att, *poll.Credentials)
				att.cancel()
				return

			case models.QRExpired:
				m.mu.Lock()
				if m.qr[att.uin] == att {
					delete(m.qr, att.uin)
					att.status = models.QRExpired
				}
				m.mu.Unlock()
				att.cancel()
				logger.Log.WithField("uin", att.uin).Info("QR login expired by provider")
				return
			}
		}
	}
}

// completeQRLogin promotes a confirmed attempt into a running session. The
// attempt is claimed under the registry lock so that a racing CancelQRLogin
// wins: once the attempt is gone from the map, confirmation is a no-op with
// no side effects.
func (m *Manager) completeQRLogin(att *qrAttempt, creds Credentials) {
	m.mu.Lock()
	if m.qr[att.uin] != att {
		m.mu.Unlock()
		logger.Log.WithField("uin", att.uin).Info("QR confirmation discarded, attempt no longer pending")
		return
	}
	delete(m.qr, att.uin)
	att.status = models.QRConfirmed

	if s := m.sessions[att.uin]; s != nil {
		if st := s.Status(); st == models.StatusStarting || st == models.StatusRunning {
			m.mu.Unlock()
			logger.Log.WithField("uin", att.uin).Warn("QR confirmed but a live session already exists")
			return
		}
	}

	seed := &models.Account{
		UIN:            att.uin,
		Platform:       att.cfg.Platform,
		FarmInterval:   att.cfg.FarmInterval,
		FriendInterval: att.cfg.FriendInterval,
		Credential:     creds.Token,
		Level:          1,
	}
	s := newSession(att.uin, seed, m.opts, m.emitEvent, m.carryLogsLocked(att.uin))
	m.sessions[att.uin] = s
	m.mu.Unlock()

	account, err := m.store.GetAccount(att.uin)
	if err != nil {
		logger.Log.WithField("uin", att.uin).WithError(err).Error("failed to load account after QR confirm")
	}
	if account == nil {
		account = seed
	} else {
		account.Platform = att.cfg.Platform
		account.FarmInterval = att.cfg.FarmInterval
		account.FriendInterval = att.cfg.FriendInterval
		account.Credential = creds.Token
	}
	if err := m.store.SaveAccount(account); err != nil {
		logger.Log.WithField("uin", att.uin).WithError(err).Error("failed to persist account after QR confirm")
	}

	logger.Log.WithField("uin", att.uin).Info("QR login confirmed, starting bot")
	if err := m.connectSession(s, account); err != nil {
		logger.Log.WithField("uin", att.uin).WithError(err).Error("failed to start bot after QR confirm")
	}
	m.broadcastAccounts()
}

func (m *Manager) discardQR(att *qrAttempt) {
	m.mu.Lock()
	if m.qr[att.uin] == att {
		delete(m.qr, att.uin)
	}
	m.mu.Unlock()
}
