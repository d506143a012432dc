// ABOUTME: In-memory Guilds implementation for handler tests
// ABOUTME: Supports per-call failure injection keyed by role or user id

package platform

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// Fake is an in-memory workspace. Fail maps a role or user id to the error
// returned by any call that touches it.
type Fake struct {
	mu      sync.Mutex
	owner   string
	roles   []Role
	members []Member
	nextID  int

	Fail map[string]error
	// Deleted and Assigned record successful mutations.
	Deleted  []string
	Assigned [][2]string // user id, role id

	// OnCreate, when set, runs at the start of CreateRole.
	OnCreate func(spec RoleSpec)
}

// NewFake creates a workspace owned by ownerID.
func NewFake(ownerID string) *Fake {
	return &Fake{owner: ownerID, Fail: map[string]error{}, nextID: 1000}
}

// AddRole seeds a role.
func (f *Fake) AddRole(r Role) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roles = append(f.roles, r)
}

// AddMember seeds a member.
func (f *Fake) AddMember(m Member) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members = append(f.members, m)
}

func (f *Fake) Roles(ctx context.Context, workspaceID string) ([]Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.Fail[workspaceID]; err != nil {
		return nil, err
	}
	return slices.Clone(f.roles), nil
}

func (f *Fake) Members(ctx context.Context, workspaceID string) ([]Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.Fail[workspaceID]; err != nil {
		return nil, err
	}
	return slices.Clone(f.members), nil
}

func (f *Fake) CreateRole(ctx context.Context, workspaceID string, spec RoleSpec, reason string) (*Role, error) {
	if f.OnCreate != nil {
		f.OnCreate(spec)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.Fail[spec.Name]; err != nil {
		return nil, err
	}
	f.nextID++
	r := Role{ID: fmt.Sprintf("role-%d", f.nextID), Name: spec.Name, Color: spec.Color, Hoist: spec.Hoist}
	f.roles = append(f.roles, r)
	return &r, nil
}

func (f *Fake) DeleteRole(ctx context.Context, workspaceID, roleID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.Fail[roleID]; err != nil {
		return err
	}
	idx := slices.IndexFunc(f.roles, func(r Role) bool { return r.ID == roleID })
	if idx < 0 {
		return ErrUnknownRole
	}
	f.roles = slices.Delete(f.roles, idx, idx+1)
	f.Deleted = append(f.Deleted, roleID)
	return nil
}

func (f *Fake) AddMemberRole(ctx context.Context, workspaceID, userID, roleID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.Fail[userID]; err != nil {
		return err
	}
	for i := range f.members {
		if f.members[i].UserID == userID {
			f.members[i].RoleIDs = append(f.members[i].RoleIDs, roleID)
		}
	}
	f.Assigned = append(f.Assigned, [2]string{userID, roleID})
	return nil
}

func (f *Fake) OwnerID(ctx context.Context, workspaceID string) (string, error) {
	return f.owner, nil
}

var _ Guilds = (*Fake)(nil)
