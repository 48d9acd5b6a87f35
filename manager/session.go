package manager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"QQFarmBot/logger"
	"QQFarmBot/models"

	"golang.org/x/time/rate"
)

// recognizedToggles is the fixed set of feature toggle names accepted at the
// manager boundary. Unknown names are rejected, never merged.
var recognizedToggles = map[string]bool{
	"autoHarvest": true,
	"autoPlant":   true,
	"autoWater":   true,
	"autoWeed":    true,
	"autoPest":    true,
	"autoSteal":   true,
	"autoHelp":    true,
	"autoTask":    true,
}

func defaultToggles() map[string]bool {
	return map[string]bool{
		"autoHarvest": true,
		"autoPlant":   true,
		"autoWater":   true,
		"autoWeed":    true,
		"autoPest":    true,
		"autoSteal":   false,
		"autoHelp":    false,
		"autoTask":    false,
	}
}

type eventKind int

const (
	evStatus eventKind = iota
	evProgress
	evLog
)

type sessionEvent struct {
	kind   eventKind
	uin    string
	status models.BotStatus
	player *models.PlayerState
	entry  models.LogEntry
}

// Session is the runtime-only representation of one bot run. The manager
// creates it in the starting state and owns the registry entry; the session
// owns its log buffer, toggles and statistics.
type Session struct {
	uin string

	mu       sync.Mutex
	status   models.BotStatus
	toggles  map[string]bool
	stats    models.DailyStats
	player   models.PlayerState
	conn     GameConn
	cancel   context.CancelFunc
	loopDone chan struct{}
	halted   bool

	farmInterval   time.Duration
	friendInterval time.Duration
	reload         chan struct{}

	logs        *LogBuffer
	landLimiter *rate.Limiter
	emit        func(sessionEvent)
}

func newSession(uin string, account *models.Account, opts Options, emit func(sessionEvent), logs *LogBuffer) *Session {
	if logs == nil {
		logs = NewLogBuffer(opts.LogBufferSize)
	}
	return &Session{
		uin:            uin,
		status:         models.StatusStarting,
		toggles:        defaultToggles(),
		stats:          models.DailyStats{Date: today()},
		player:         models.PlayerState{Name: account.Nickname, Level: account.Level, Gold: account.Gold, Exp: account.Exp, GID: account.GID},
		farmInterval:   time.Duration(account.FarmInterval) * time.Second,
		friendInterval: time.Duration(account.FriendInterval) * time.Second,
		reload:         make(chan struct{}, 1),
		logs:           logs,
		landLimiter:    rate.NewLimiter(rate.Limit(opts.LandQueryRate), 1),
		emit:           emit,
	}
}

func today() string {
	return time.Now().Format("2006-01-02")
}

func (s *Session) Status() models.BotStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) appendLog(level models.LogLevel, message string) {
	s.mu.Lock()
	halted := s.halted
	s.mu.Unlock()
	if halted {
		return
	}
	entry := s.logs.Append(level, message)
	logger.Log.WithField("uin", s.uin).Debug(message)
	s.emit(sessionEvent{kind: evLog, uin: s.uin, entry: entry})
}

// begin attaches a live connection and starts the automation loop. Called by
// the manager after a successful connect while the session is starting. When
// a concurrent stop already forced the session down, the fresh connection is
// discarded and the loop never starts.
func (s *Session) begin(ctx context.Context, cancel context.CancelFunc, conn GameConn) {
	done := make(chan struct{})

	s.mu.Lock()
	if s.status != models.StatusStarting {
		s.mu.Unlock()
		cancel()
		conn.Close()
		return
	}
	s.conn = conn
	s.cancel = cancel
	s.loopDone = done
	s.status = models.StatusRunning
	s.mu.Unlock()

	s.appendLog(models.LogInfo, "bot started")
	s.emit(sessionEvent{kind: evStatus, uin: s.uin, status: models.StatusRunning})

	go s.loop(ctx, conn, done)
}

// failStart records a failed connect. The starting -> error transition is
// skipped when a concurrent stop already forced the session down.
func (s *Session) failStart(err error) {
	s.mu.Lock()
	if s.status != models.StatusStarting {
		s.mu.Unlock()
		return
	}
	s.status = models.StatusError
	s.mu.Unlock()

	s.appendLog(models.LogError, "failed to start: "+err.Error())
	s.emit(sessionEvent{kind: evStatus, uin: s.uin, status: models.StatusError})
}

func (s *Session) loop(ctx context.Context, conn GameConn, done chan struct{}) {
	defer close(done)

	s.mu.Lock()
	farmEvery := s.farmInterval
	friendEvery := s.friendInterval
	s.mu.Unlock()

	farm := time.NewTicker(farmEvery)
	friend := time.NewTicker(friendEvery)
	defer farm.Stop()
	defer friend.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close()
			return

		case <-conn.Done():
			err := conn.Err()
			s.mu.Lock()
			if s.status == models.StatusRunning {
				s.status = models.StatusError
			}
			s.mu.Unlock()
			if err != nil {
				s.appendLog(models.LogError, "connection lost: "+err.Error())
			} else {
				s.appendLog(models.LogError, "connection lost")
			}
			s.emit(sessionEvent{kind: evStatus, uin: s.uin, status: models.StatusError})
			return

		case <-farm.C:
			s.farmTick(ctx, conn)

		case <-friend.C:
			s.friendTick()

		case <-s.reload:
			s.mu.Lock()
			farm.Reset(s.farmInterval)
			friend.Reset(s.friendInterval)
			s.mu.Unlock()
		}
	}
}

func (s *Session) farmTick(ctx context.Context, conn GameConn) {
	tickCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	state, err := conn.QueryPlayerState(tickCtx)
	cancel()
	if err != nil {
		s.appendLog(models.LogWarn, "player state query failed: "+err.Error())
		return
	}

	s.mu.Lock()
	s.rollStatsLocked()
	if state.Exp > s.player.Exp && s.player.Exp > 0 {
		s.stats.ExpGained += state.Exp - s.player.Exp
	}
	s.player = *state
	// Counters track rounds performed with the toggle enabled; the
	// connection does not report per-action detail.
	if s.toggles["autoHarvest"] {
		s.stats.Harvests++
	}
	if s.toggles["autoPlant"] {
		s.stats.Plants++
	}
	if s.toggles["autoWater"] {
		s.stats.Waters++
	}
	if s.toggles["autoWeed"] {
		s.stats.Weeds++
	}
	if s.toggles["autoPest"] {
		s.stats.Pests++
	}
	harvest := s.toggles["autoHarvest"]
	s.mu.Unlock()

	s.emit(sessionEvent{kind: evProgress, uin: s.uin, player: state})
	if harvest {
		s.appendLog(models.LogInfo, "farm round finished")
	}
}

func (s *Session) friendTick() {
	s.mu.Lock()
	s.rollStatsLocked()
	steal := s.toggles["autoSteal"]
	help := s.toggles["autoHelp"]
	if steal {
		s.stats.Steals++
	}
	if help {
		s.stats.Helps++
	}
	s.mu.Unlock()

	if steal || help {
		s.appendLog(models.LogInfo, "friend round finished")
	}
}

// rollStatsLocked resets the daily counters at local midnight.
func (s *Session) rollStatsLocked() {
	if d := today(); s.stats.Date != d {
		s.stats = models.DailyStats{Date: d}
	}
}

// stop drives the session to stopped. It cancels the loop, waits up to
// timeout for graceful teardown and then forces the connection closed.
// Idempotent; after it returns no further log entries or toggle effects
// are produced by this instance.
func (s *Session) stop(timeout time.Duration) {
	s.mu.Lock()
	if s.status == models.StatusStopped {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	conn := s.conn
	done := s.loopDone
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(timeout):
			if conn != nil {
				conn.Close()
			}
			select {
			case <-done:
			case <-time.After(2 * time.Second):
				logger.Log.WithField("uin", s.uin).Warn("session loop did not exit after forced close")
			}
		}
	} else if conn != nil {
		conn.Close()
	}

	s.mu.Lock()
	s.status = models.StatusStopped
	s.conn = nil
	s.halted = true
	s.mu.Unlock()

	s.emit(sessionEvent{kind: evStatus, uin: s.uin, status: models.StatusStopped})
}

// mergeToggles merges validated booleans and returns a copy of the full set.
func (s *Session) mergeToggles(partial map[string]bool) map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, on := range partial {
		s.toggles[name] = on
	}
	out := make(map[string]bool, len(s.toggles))
	for name, on := range s.toggles {
		out[name] = on
	}
	return out
}

// setIntervals hot-reloads the automation timers without a restart.
func (s *Session) setIntervals(farm, friend time.Duration) {
	s.mu.Lock()
	if farm > 0 {
		s.farmInterval = farm
	}
	if friend > 0 {
		s.friendInterval = friend
	}
	s.mu.Unlock()

	select {
	case s.reload <- struct{}{}:
	default:
	}
}

func (s *Session) snapshot() models.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	toggles := make(map[string]bool, len(s.toggles))
	for name, on := range s.toggles {
		toggles[name] = on
	}
	stats := s.stats
	return models.Snapshot{
		UserID:         s.uin,
		Status:         s.status,
		UserState:      s.player,
		FeatureToggles: toggles,
		DailyStats:     &stats,
	}
}

func (s *Session) landStatus(ctx context.Context) (*models.LandStatus, error) {
	s.mu.Lock()
	conn := s.conn
	status := s.status
	s.mu.Unlock()

	if status != models.StatusRunning || conn == nil {
		return nil, notRunning(s.uin)
	}
	if err := s.landLimiter.Wait(ctx); err != nil {
		return nil, timeout(s.uin, err)
	}
	result, err := conn.QueryLandStatus(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, timeout(s.uin, err)
		}
		return nil, &BotError{Kind: KindNotRunning, UIN: s.uin, Err: fmt.Errorf("land query failed: %w", err)}
	}
	return result, nil
}
