package market

import (
	"fmt"
	"time"

	"marketsched/internal/domain"
)

// SessionKind classifies an instant. The set is closed; closed is the
// implicit default for any instant no window covers.
type SessionKind string

const (
	SessionPrimary   SessionKind = "primary"
	SessionSecondary SessionKind = "secondary"
	SessionClosed    SessionKind = "closed"
)

// TimeOfDay is a wall-clock time in the market's own timezone.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

func (t TimeOfDay) nanos() int64 {
	return (int64(t.Hour)*3600 + int64(t.Minute)*60) * int64(time.Second)
}

// SessionWindow is one trading session's daily time window. End before
// Start means the window crosses midnight: it belongs to the trading date it
// starts on and runs into the following calendar morning.
type SessionWindow struct {
	Name  string
	Kind  SessionKind
	Start TimeOfDay
	End   TimeOfDay
}

// CrossesMidnight reports whether the window runs past midnight.
func (w SessionWindow) CrossesMidnight() bool { return w.End.nanos() < w.Start.nanos() }

func (w SessionWindow) String() string {
	return fmt.Sprintf("%s %s-%s", w.Name, w.Start, w.End)
}

func (w SessionWindow) validate() error {
	if w.Kind != SessionPrimary && w.Kind != SessionSecondary {
		return fmt.Errorf("session %q: kind must be primary or secondary, got %q", w.Name, w.Kind)
	}
	for _, t := range []TimeOfDay{w.Start, w.End} {
		if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 {
			return fmt.Errorf("session %q: time of day %s out of range", w.Name, t)
		}
	}
	if w.Start == w.End {
		return fmt.Errorf("session %q: zero-length window", w.Name)
	}
	return nil
}

// contains tests membership of a clock offset (nanoseconds since local
// midnight). Non-crossing windows include both endpoints; crossing windows
// include the start and exclude the endpoint on the far side of midnight.
func (w SessionWindow) contains(ns int64) bool {
	start, end := w.Start.nanos(), w.End.nanos()
	if w.CrossesMidnight() {
		return ns >= start || ns < end
	}
	return ns >= start && ns <= end
}

// inMorningTail reports whether ns falls in the post-midnight part of a
// crossing window.
func (w SessionWindow) inMorningTail(ns int64) bool {
	return w.CrossesMidnight() && ns < w.End.nanos()
}

// SessionInfo describes the session containing an instant. TradingDate is
// the date the containing window started on; for the morning tail of a
// midnight-crossing window that is the previous calendar date. Window is nil
// when the market is closed.
type SessionInfo struct {
	Kind        SessionKind
	Window      *SessionWindow
	TradingDate domain.Date
	Instant     time.Time
}

// SessionInfoAt resolves the session containing t. The instant is converted
// to the market's timezone first, so callers may pass a time in any zone.
func (m *Market) SessionInfoAt(t time.Time) SessionInfo {
	local := t.In(m.loc)
	day := domain.DateOf(local)
	ns := int64(local.Hour())*int64(time.Hour) +
		int64(local.Minute())*int64(time.Minute) +
		int64(local.Second())*int64(time.Second) +
		int64(local.Nanosecond())

	for i := range m.def.Sessions {
		w := m.def.Sessions[i]
		if !w.contains(ns) {
			continue
		}
		tradingDate := day
		if w.inMorningTail(ns) {
			tradingDate = day.AddDays(-1)
		}
		return SessionInfo{Kind: w.Kind, Window: &w, TradingDate: tradingDate, Instant: local}
	}
	return SessionInfo{Kind: SessionClosed, TradingDate: day, Instant: local}
}

// SessionAt returns the kind of session containing t.
func (m *Market) SessionAt(t time.Time) SessionKind { return m.SessionInfoAt(t).Kind }

// Session returns the kind of session containing the current instant. The
// clock is read once so one logical call sees one consistent time.
func (m *Market) Session() SessionKind { return m.SessionAt(m.clock.Now()) }

// IsTradingHoursAt reports whether any session contains t.
func (m *Market) IsTradingHoursAt(t time.Time) bool { return m.SessionAt(t) != SessionClosed }

// IsTradingHours reports whether any session contains the current instant.
func (m *Market) IsTradingHours() bool { return m.IsTradingHoursAt(m.clock.Now()) }

// SessionInfoNow resolves the session containing the current instant.
func (m *Market) SessionInfoNow() SessionInfo { return m.SessionInfoAt(m.clock.Now()) }
