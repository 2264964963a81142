package lockout

import "time"

// Decision is the outcome of one authentication attempt.
type Decision int

const (
	Authenticated Decision = iota
	AccountNotFound
	PasswordIncorrect
	AccountLocked
)

func (d Decision) String() string {
	switch d {
	case Authenticated:
		return "authenticated"
	case AccountNotFound:
		return "account_not_found"
	case PasswordIncorrect:
		return "password_incorrect"
	case AccountLocked:
		return "account_locked"
	default:
		return "unknown"
	}
}

// Policy holds the tunable lockout parameters.
type Policy struct {
	MaxAttempts int
	Duration    time.Duration
}

// DefaultPolicy is five attempts and a two hour lock.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 5, Duration: 2 * time.Hour}
}

// State is the persisted lockout portion of an account. A nil LockUntil means
// no lock has been recorded.
type State struct {
	LoginAttempts int
	LockUntil     *time.Time
}

// Locked reports whether the state carries a lock that is still active at now.
func (s State) Locked(now time.Time) bool {
	return s.LockUntil != nil && s.LockUntil.After(now)
}

// Outcome is the result of Evaluate.
//
// When Write is false the stored state must be left untouched. Otherwise Next
// replaces it. LockEngaged is set when this attempt created a new lock.
type Outcome struct {
	Decision    Decision
	Write       bool
	Next        State
	LockEngaged bool
}

// Evaluate runs one attempt through the state machine. state is nil when the
// account does not exist. checkPassword is called at most once and never for
// a locked account.
func Evaluate(state *State, checkPassword func() bool, now time.Time, p Policy) Outcome {
	if state == nil {
		return Outcome{Decision: AccountNotFound}
	}

	if state.Locked(now) {
		next := State{LoginAttempts: state.LoginAttempts + 1, LockUntil: copyTime(state.LockUntil)}
		return Outcome{Decision: AccountLocked, Write: true, Next: next}
	}

	cur := State{LoginAttempts: state.LoginAttempts}
	expired := state.LockUntil != nil
	if expired {
		// Lazy expiry: the new attempt restarts the count at one.
		cur.LoginAttempts = 1
	}

	if checkPassword() {
		if !expired && state.LoginAttempts == 0 {
			return Outcome{Decision: Authenticated}
		}
		return Outcome{Decision: Authenticated, Write: true, Next: State{}}
	}

	next := cur
	if !expired {
		next.LoginAttempts++
	}
	out := Outcome{Decision: PasswordIncorrect, Write: true, Next: next}
	if p.MaxAttempts > 0 && next.LoginAttempts >= p.MaxAttempts {
		until := now.Add(p.Duration)
		out.Next.LockUntil = &until
		out.LockEngaged = true
	}
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
