// Package department tracks departments: named groups of users sharing one
// vote ledger and at most one owner.
//
// Departments are created lazily on first reference and live for the
// process lifetime. Users who never join a department implicitly belong to
// the default department.
package department

import (
	"sort"
	"strings"
	"sync"

	"github.com/kangpj/activeCal/internal/votes"
)

// DefaultID is the department for users with no explicit assignment.
const DefaultID = "floating"

type record struct {
	owner   string
	members map[string]struct{}
	ledger  *votes.Ledger
}

// Registry owns every department record and its vote ledger. The zero value
// is not usable; create instances with NewRegistry.
type Registry struct {
	mu          sync.Mutex
	departments map[string]*record
}

// NewRegistry creates a registry holding only the default department.
func NewRegistry() *Registry {
	r := &Registry{departments: make(map[string]*record)}
	r.GetOrCreate(DefaultID)
	return r
}

// Normalize maps blank department ids to the default department.
func Normalize(departmentID string) string {
	departmentID = strings.TrimSpace(departmentID)
	if departmentID == "" {
		return DefaultID
	}
	return departmentID
}

// GetOrCreate ensures the department exists and returns its id after
// normalization. New departments start ownerless with no members.
func (r *Registry) GetOrCreate(departmentID string) string {
	departmentID = Normalize(departmentID)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.getOrCreateLocked(departmentID)
	return departmentID
}

func (r *Registry) getOrCreateLocked(departmentID string) *record {
	dept, ok := r.departments[departmentID]
	if !ok {
		dept = &record{
			members: make(map[string]struct{}),
			ledger:  votes.NewLedger(),
		}
		r.departments[departmentID] = dept
	}
	return dept
}

// Ledger returns the department's vote ledger, creating the department when
// absent.
func (r *Registry) Ledger(departmentID string) *votes.Ledger {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getOrCreateLocked(Normalize(departmentID)).ledger
}

// AssignOwnerIfAbsent makes userID the owner only when the department has
// none. The first member to claim an ownerless department keeps ownership
// until removed from it.
func (r *Registry) AssignOwnerIfAbsent(departmentID, userID string) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	dept := r.getOrCreateLocked(Normalize(departmentID))
	if dept.owner != "" {
		return
	}
	// Owner must be a member.
	dept.members[userID] = struct{}{}
	dept.owner = userID
}

// IsOwner reports whether userID owns the department. Absent departments and
// ownerless departments yield false.
func (r *Registry) IsOwner(departmentID, userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	dept, ok := r.departments[Normalize(departmentID)]
	return ok && dept.owner != "" && dept.owner == userID
}

// AddMember adds userID to the department, creating it when absent.
func (r *Registry) AddMember(departmentID, userID string) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.getOrCreateLocked(Normalize(departmentID)).members[userID] = struct{}{}
}

// RemoveMember drops userID from the department. Removing the owner clears
// ownership so a later member can claim the department.
func (r *Registry) RemoveMember(departmentID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	dept, ok := r.departments[Normalize(departmentID)]
	if !ok {
		return
	}
	delete(dept.members, userID)
	if dept.owner == userID {
		dept.owner = ""
	}
}

// Members returns a sorted snapshot of member ids, empty when the
// department does not exist.
func (r *Registry) Members(departmentID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	dept, ok := r.departments[Normalize(departmentID)]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(dept.members))
	for id := range dept.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
