// ABOUTME: Tests for routing key parsing, building and event classification
// ABOUTME: Covers both key forms, missing owners and malformed input

package interaction

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoutingKey(t *testing.T) {
	tests := []struct {
		raw      string
		family   string
		owner    string
		hasOwner bool
		args     []string
	}{
		{"confirm_role_create|111", "confirm_role_create", "111", true, []string{}},
		{"help_nav|222|3", "help_nav", "222", true, []string{"3"}},
		{"config_page|333|2|extra", "config_page", "333", true, []string{"2", "extra"}},
		{"cancel|444", "cancel", "444", true, []string{}},
		{"dashboard_select|", "dashboard_select", "", false, []string{}},
		{"audit_confirm_delete", "audit", "", false, []string{"confirm_delete"}},
		{"dangeru_page_2", "dangeru", "", false, []string{"page_2"}},
		{"custom_cancel", "custom", "", false, []string{"cancel"}},
		{"ping", "ping", "", false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			key, err := ParseRoutingKey(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.raw, key.Raw)
			assert.Equal(t, tt.family, key.Family)
			assert.Equal(t, tt.owner, key.OwnerID)
			assert.Equal(t, tt.hasOwner, key.HasOwner)
			assert.Equal(t, tt.args, key.Args)
		})
	}
}

func TestParseRoutingKey_Malformed(t *testing.T) {
	for _, raw := range []string{"", "|123", "_action", strings.Repeat("x", MaxKeyLength+1)} {
		_, err := ParseRoutingKey(raw)
		assert.ErrorIs(t, err, ErrMalformedKey, raw)
	}
}

func TestRoutingKeyBuilders(t *testing.T) {
	raw := OwnedKey("help_nav", "u1", "4")
	assert.Equal(t, "help_nav|u1|4", raw)

	key, err := ParseRoutingKey(raw)
	require.NoError(t, err)
	assert.Equal(t, "4", key.Action())
	assert.Equal(t, "", key.Arg(5))

	key, err = ParseRoutingKey(ActionKey("audit", "home"))
	require.NoError(t, err)
	assert.Equal(t, "audit", key.Family)
	assert.Equal(t, "home", key.Action())
}

func TestClassify(t *testing.T) {
	c, err := Classify(&Event{Kind: KindCommand, CommandName: "role"})
	require.NoError(t, err)
	assert.Equal(t, KindCommand, c.Kind)
	assert.Equal(t, "role", c.CommandName)

	c, err = Classify(&Event{Kind: KindAutocomplete, CommandName: "config"})
	require.NoError(t, err)
	assert.Equal(t, KindAutocomplete, c.Kind)

	c, err = Classify(&Event{Kind: KindComponent, CustomID: "cancel|42"})
	require.NoError(t, err)
	assert.Equal(t, "cancel", c.Key.Family)
	assert.Equal(t, "42", c.Key.OwnerID)

	_, err = Classify(&Event{Kind: KindComponent})
	assert.True(t, errors.Is(err, ErrMalformedKey))

	_, err = Classify(&Event{Kind: "ping"})
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, err = Classify(&Event{Kind: KindCommand})
	assert.ErrorIs(t, err, ErrUnknownKind)
}
