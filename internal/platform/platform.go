// ABOUTME: Workspace API the handlers call: roles, members and ownership
// ABOUTME: Implemented by the Discord REST client and by Fake for tests

package platform

import (
	"context"
	"errors"
)

// ErrUnsupported is returned by frontends that cannot manage workspaces.
var ErrUnsupported = errors.New("operation not supported by this frontend")

// ErrUnknownRole is returned when a role id does not exist in the workspace.
var ErrUnknownRole = errors.New("unknown role")

// Role is a workspace role.
type Role struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Color    int    `json:"color"`
	Position int    `json:"position"`
	Hoist    bool   `json:"hoist"`
	Managed  bool   `json:"managed"`
}

// RoleSpec describes a role to create.
type RoleSpec struct {
	Name        string `json:"name"`
	Color       int    `json:"color"`
	Hoist       bool   `json:"hoist"`
	Mentionable bool   `json:"mentionable"`
}

// Member is a workspace member and the roles they hold.
type Member struct {
	UserID   string
	Username string
	RoleIDs  []string
}

// Guilds is the workspace API.
type Guilds interface {
	Roles(ctx context.Context, workspaceID string) ([]Role, error)
	Members(ctx context.Context, workspaceID string) ([]Member, error)
	CreateRole(ctx context.Context, workspaceID string, spec RoleSpec, reason string) (*Role, error)
	DeleteRole(ctx context.Context, workspaceID, roleID, reason string) error
	AddMemberRole(ctx context.Context, workspaceID, userID, roleID, reason string) error
	OwnerID(ctx context.Context, workspaceID string) (string, error)
}

// Holders counts, for every role, how many members hold it.
func Holders(members []Member) map[string][]string {
	out := make(map[string][]string)
	for _, m := range members {
		for _, id := range m.RoleIDs {
			out[id] = append(out[id], m.UserID)
		}
	}
	return out
}
