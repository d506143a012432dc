// ABOUTME: The ping command
// ABOUTME: Latency is measured from the snowflake timestamp of the interaction id

package handlers

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/2389/stingray-gateway/internal/command"
	"github.com/2389/stingray-gateway/internal/interaction"
)

// snowflakeEpoch is the platform epoch in unix milliseconds.
const snowflakeEpoch = 1420070400000

// Ping answers with round-trip latency.
type Ping struct {
	now func() time.Time
}

// NewPing creates the ping command.
func NewPing() *Ping {
	return &Ping{now: time.Now}
}

func (p *Ping) Spec() command.Spec {
	return command.Spec{Name: "ping", Description: "Check that the gateway is alive."}
}

func (p *Ping) Execute(ctx context.Context, req *command.Request) error {
	msg := "I'm here. Don't worry."
	if sent, ok := snowflakeTime(req.Event.ID); ok {
		latency := max(p.now().Sub(sent).Milliseconds(), 0)
		msg = fmt.Sprintf("I'm here. Don't worry. (Latency: **%dms**)", latency)
	}
	return req.Reply(ctx, interaction.Text(msg))
}

// snowflakeTime extracts the creation time of a platform id. Ids from
// frontends that do not use snowflakes report false.
func snowflakeTime(id string) (time.Time, bool) {
	v, err := strconv.ParseUint(id, 10, 64)
	if err != nil || v>>22 == 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(v>>22) + snowflakeEpoch), true
}
