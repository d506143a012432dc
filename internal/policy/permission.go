// ABOUTME: Capability tokens and the platform permission bitset they map onto
// ABOUTME: Parses tokens case-insensitively and renders them in the server UI's wording

package policy

import (
	"sort"
	"strings"
	"unicode"
)

// Permission is a canonical camelCase capability token such as "manageRoles".
// The empty Permission means no requirement.
type Permission string

// Capability tokens. Bit positions follow the platform's permission bitfield.
const (
	CreateInstantInvite     Permission = "createInstantInvite"
	KickMembers             Permission = "kickMembers"
	BanMembers              Permission = "banMembers"
	Administrator           Permission = "administrator"
	ManageChannels          Permission = "manageChannels"
	ManageGuild             Permission = "manageGuild"
	AddReactions            Permission = "addReactions"
	ViewAuditLog            Permission = "viewAuditLog"
	ViewChannel             Permission = "viewChannel"
	SendMessages            Permission = "sendMessages"
	ManageMessages          Permission = "manageMessages"
	EmbedLinks              Permission = "embedLinks"
	AttachFiles             Permission = "attachFiles"
	ReadMessageHistory      Permission = "readMessageHistory"
	MentionEveryone         Permission = "mentionEveryone"
	UseExternalEmojis       Permission = "useExternalEmojis"
	MuteMembers             Permission = "muteMembers"
	DeafenMembers           Permission = "deafenMembers"
	MoveMembers             Permission = "moveMembers"
	ChangeNickname          Permission = "changeNickname"
	ManageNicknames         Permission = "manageNicknames"
	ManageRoles             Permission = "manageRoles"
	ManageWebhooks          Permission = "manageWebhooks"
	ManageEmojisAndStickers Permission = "manageEmojisAndStickers"
	UseApplicationCommands  Permission = "useApplicationCommands"
	ManageEvents            Permission = "manageEvents"
	ManageThreads           Permission = "manageThreads"
	ModerateMembers         Permission = "moderateMembers"
)

var permissionBits = map[Permission]uint{
	CreateInstantInvite:     0,
	KickMembers:             1,
	BanMembers:              2,
	Administrator:           3,
	ManageChannels:          4,
	ManageGuild:             5,
	AddReactions:            6,
	ViewAuditLog:            7,
	ViewChannel:             10,
	SendMessages:            11,
	ManageMessages:          13,
	EmbedLinks:              14,
	AttachFiles:             15,
	ReadMessageHistory:      16,
	MentionEveryone:         17,
	UseExternalEmojis:       18,
	MuteMembers:             22,
	DeafenMembers:           23,
	MoveMembers:             24,
	ChangeNickname:          26,
	ManageNicknames:         27,
	ManageRoles:             28,
	ManageWebhooks:          29,
	ManageEmojisAndStickers: 30,
	UseApplicationCommands:  31,
	ManageEvents:            33,
	ManageThreads:           34,
	ModerateMembers:         40,
}

// aliases maps normalized alternate spellings to canonical tokens.
var aliases = map[string]Permission{
	"manageserver":           ManageGuild,
	"admin":                  Administrator,
	"timeoutmembers":         ModerateMembers,
	"manageexpressions":      ManageEmojisAndStickers,
	"manageguildexpressions": ManageEmojisAndStickers,
}

var byNormalized = func() map[string]Permission {
	m := make(map[string]Permission, len(permissionBits)+len(aliases))
	for p := range permissionBits {
		m[normalize(string(p))] = p
	}
	for k, p := range aliases {
		m[k] = p
	}
	return m
}()

func normalize(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == ' ' || r == '_' || r == '-' {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// ParsePermission accepts "manageRoles", "MANAGE_ROLES", "Manage Roles" and
// friends and returns the canonical token.
func ParsePermission(s string) (Permission, bool) {
	p, ok := byNormalized[normalize(s)]
	return p, ok
}

// KnownPermissions lists every canonical token, sorted.
func KnownPermissions() []Permission {
	out := make([]Permission, 0, len(permissionBits))
	for p := range permissionBits {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Bit returns the permission's flag, or 0 for unknown tokens.
func (p Permission) Bit() PermissionSet {
	n, ok := permissionBits[p]
	if !ok {
		return 0
	}
	return PermissionSet(1) << n
}

// Readable renders the token the way the server settings UI names it,
// e.g. manageGuild -> "Manage Server".
func (p Permission) Readable() string {
	if p == "" {
		return "Everyone"
	}
	var b strings.Builder
	for i, r := range string(p) {
		if i == 0 {
			b.WriteRune(unicode.ToUpper(r))
			continue
		}
		if unicode.IsUpper(r) {
			b.WriteRune(' ')
		}
		b.WriteRune(r)
	}
	return strings.Replace(b.String(), "Guild", "Server", 1)
}

// PermissionSet is the platform permission bitfield of a member in a channel.
type PermissionSet uint64

// Has reports whether the set grants p. Administrator grants everything.
func (s PermissionSet) Has(p Permission) bool {
	if p == "" {
		return true
	}
	if s&Administrator.Bit() != 0 {
		return true
	}
	bit := p.Bit()
	return bit != 0 && s&bit == bit
}

// IsAdministrator reports whether the administrator flag is set.
func (s PermissionSet) IsAdministrator() bool {
	return s&Administrator.Bit() != 0
}

// NewPermissionSet builds a set from tokens.
func NewPermissionSet(perms ...Permission) PermissionSet {
	var s PermissionSet
	for _, p := range perms {
		s |= p.Bit()
	}
	return s
}
