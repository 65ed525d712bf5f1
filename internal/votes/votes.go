// Package votes implements the per-department vote ledger.
//
// A ledger maps calendar days to the set of users who voted for them. The
// ledger stays sparse: a day entry exists only while at least one vote is
// recorded against it, so its size is bounded by the count of days with
// votes rather than the span of the calendar.
package votes

import (
	"fmt"
	"sort"
	"sync"
)

// Day identifies a calendar day. Month is 1-12 and Day is 1-31 as sent by
// clients; no calendar validation happens here.
type Day struct {
	Year  int
	Month int
	Day   int
}

// Key renders the day as a zero-padded date key, e.g. "2025-06-10".
func (d Day) Key() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Before reports whether d falls earlier in the calendar than other.
func (d Day) Before(other Day) bool {
	if d.Year != other.Year {
		return d.Year < other.Year
	}
	if d.Month != other.Month {
		return d.Month < other.Month
	}
	return d.Day < other.Day
}

// Ledger holds one department's votes. The zero value is not usable; create
// instances with NewLedger.
type Ledger struct {
	mu    sync.Mutex
	votes map[Day]map[string]struct{}
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{votes: make(map[Day]map[string]struct{})}
}

// Record adds userID's vote for day. Voting twice is idempotent.
func (l *Ledger) Record(day Day, userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	voters, ok := l.votes[day]
	if !ok {
		voters = make(map[string]struct{})
		l.votes[day] = voters
	}
	voters[userID] = struct{}{}
}

// Withdraw removes userID's vote for day. Withdrawing a vote that was never
// recorded is a no-op. The day entry is deleted when its last vote goes.
func (l *Ledger) Withdraw(day Day, userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	voters, ok := l.votes[day]
	if !ok {
		return
	}
	delete(voters, userID)
	if len(voters) == 0 {
		delete(l.votes, day)
	}
}

// Toggle records the vote when absent and withdraws it when present. It
// reports whether the vote is present after the call.
func (l *Ledger) Toggle(day Day, userID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	voters, ok := l.votes[day]
	if ok {
		if _, voted := voters[userID]; voted {
			delete(voters, userID)
			if len(voters) == 0 {
				delete(l.votes, day)
			}
			return false
		}
	} else {
		voters = make(map[string]struct{})
		l.votes[day] = voters
	}
	voters[userID] = struct{}{}
	return true
}

// All returns a snapshot of the ledger keyed by date key. Voter ids are
// sorted; the internal sets carry no meaningful order. Mutating the result
// never affects the ledger.
func (l *Ledger) All() map[string][]string {
	l.mu.Lock()
	defer l.mu.Unlock()

	snapshot := make(map[string][]string, len(l.votes))
	for day, voters := range l.votes {
		ids := make([]string, 0, len(voters))
		for id := range voters {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		snapshot[day.Key()] = ids
	}
	return snapshot
}

// MostVoted returns the day within the given calendar month holding the most
// votes and that vote count. Ties break toward the earliest day. ok is false
// when no day in the month has votes.
func (l *Ledger) MostVoted(year, month int) (best Day, count int, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for day, voters := range l.votes {
		if day.Year != year || day.Month != month {
			continue
		}
		if len(voters) > count || (len(voters) == count && ok && day.Before(best)) {
			best = day
			count = len(voters)
			ok = true
		}
	}
	return best, count, ok
}

// UniqueVoters counts distinct users holding at least one vote.
func (l *Ledger) UniqueVoters() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	seen := make(map[string]struct{})
	for _, voters := range l.votes {
		for id := range voters {
			seen[id] = struct{}{}
		}
	}
	return len(seen)
}

// Clear drops every entry. Restricting who may clear is the caller's
// responsibility.
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.votes = make(map[Day]map[string]struct{})
}
