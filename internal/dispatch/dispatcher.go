// ABOUTME: Dispatcher: routes classified events to handlers after policy, ownership and session checks
// ABOUTME: Also owns the built-in cancel transition of the confirmation state machine

package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/2389/stingray-gateway/internal/command"
	"github.com/2389/stingray-gateway/internal/interaction"
	"github.com/2389/stingray-gateway/internal/metrics"
	"github.com/2389/stingray-gateway/internal/platform"
	"github.com/2389/stingray-gateway/internal/policy"
	"github.com/2389/stingray-gateway/internal/session"
	"github.com/2389/stingray-gateway/internal/supervisor"
)

// DefaultAutocompleteTimeout bounds an autocomplete handler. The platform
// drops suggestions that arrive after roughly three seconds.
const DefaultAutocompleteTimeout = 2500 * time.Millisecond

// Config configures a Dispatcher.
type Config struct {
	Registry            *command.Registry
	Resolver            *policy.Resolver
	Sessions            session.Store
	Supervisor          *supervisor.Supervisor
	AutocompleteTimeout time.Duration
	Logger              *slog.Logger

	// Platforms maps a frontend name to its workspace API.
	Platforms map[string]platform.Guilds
}

// Dispatcher routes events to handlers.
type Dispatcher struct {
	registry            *command.Registry
	resolver            *policy.Resolver
	sessions            session.Store
	supervisor          *supervisor.Supervisor
	autocompleteTimeout time.Duration
	platforms           map[string]platform.Guilds
	logger              *slog.Logger
}

// New creates a Dispatcher.
func New(cfg Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sup := cfg.Supervisor
	if sup == nil {
		sup = supervisor.New(logger)
	}
	timeout := cfg.AutocompleteTimeout
	if timeout <= 0 {
		timeout = DefaultAutocompleteTimeout
	}
	return &Dispatcher{
		registry:            cfg.Registry,
		resolver:            cfg.Resolver,
		sessions:            cfg.Sessions,
		supervisor:          sup,
		autocompleteTimeout: timeout,
		platforms:           cfg.Platforms,
		logger:              logger.With("component", "dispatcher"),
	}
}

// Registry returns the command registry.
func (d *Dispatcher) Registry() *command.Registry {
	return d.registry
}

// Handle dispatches ev under the top-level guard. Transports call it once
// per inbound event.
func (d *Dispatcher) Handle(ctx context.Context, ev *interaction.Event, respond interaction.Responder) {
	d.supervisor.Run("dispatch", func() {
		d.Dispatch(ctx, ev, respond)
	})
}

// Dispatch classifies ev, runs the checks for its kind and invokes the
// handler. It returns the outcome recorded in metrics.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *interaction.Event, respond interaction.Responder) string {
	cls, err := interaction.Classify(ev)
	if err != nil {
		d.logger.Debug("unroutable event", "event_id", ev.ID, "kind", ev.Kind, "error", err)
		if ev.Kind == interaction.KindComponent {
			d.replyEphemeral(ctx, respond, msgStaleComponent)
		}
		d.record(ev.Kind, metrics.OutcomeUnknown)
		return metrics.OutcomeUnknown
	}

	var outcome string
	switch cls.Kind {
	case interaction.KindCommand:
		outcome = d.dispatchCommand(ctx, ev, respond, cls.CommandName)
	case interaction.KindAutocomplete:
		outcome = d.dispatchAutocomplete(ctx, ev, respond, cls.CommandName)
	case interaction.KindComponent:
		outcome = d.dispatchComponent(ctx, ev, respond, cls.Key)
	}
	d.record(cls.Kind, outcome)
	return outcome
}

func (d *Dispatcher) record(kind interaction.Kind, outcome string) {
	metrics.Interactions.WithLabelValues(string(kind), outcome).Inc()
}

func (d *Dispatcher) newRequest(ev *interaction.Event, respond interaction.Responder, logger *slog.Logger) *command.Request {
	return &command.Request{
		Event:    ev,
		Respond:  respond,
		Sessions: d.sessions,
		Guilds:   d.platforms[ev.Frontend],
		Logger:   logger,
	}
}

func (d *Dispatcher) dispatchCommand(ctx context.Context, ev *interaction.Event, respond interaction.Responder, name string) string {
	cmd, ok := d.registry.Command(name)
	if !ok {
		d.logger.Debug("unknown command", "command", name)
		d.replyEphemeral(ctx, respond, msgUnknownCommand)
		return metrics.OutcomeUnknown
	}

	res := d.resolver.Resolve(ctx, ev.WorkspaceID, name)
	decision := res.Evaluate(ev.ChannelID, ev.Member.Invoker())
	if !decision.Allowed {
		metrics.PolicyDenials.WithLabelValues(string(decision.Reason)).Inc()
		d.logger.Info("command denied",
			"command", name,
			"user_id", ev.Member.ID,
			"workspace_id", ev.WorkspaceID,
			"channel_id", ev.ChannelID,
			"reason", decision.Reason,
		)
		d.replyEphemeral(ctx, respond, denialMessage(name, decision))
		return metrics.OutcomeDenied
	}

	spec := cmd.Spec()
	if spec.Deferred {
		if err := respond.Defer(ctx, spec.Ephemeral); err != nil {
			d.logger.Warn("failed to defer command", "command", name, "error", err)
		}
	}

	logger := d.logger.With("command", name, "user_id", ev.Member.ID, "workspace_id", ev.WorkspaceID)
	req := d.newRequest(ev, respond, logger)
	task := supervisor.Task{Label: name, Kind: interaction.KindCommand, UserID: ev.Member.ID, WorkspaceID: ev.WorkspaceID}
	if err := d.supervisor.Guard(ctx, task, respond, func(ctx context.Context) error {
		return cmd.Execute(ctx, req)
	}); err != nil {
		return metrics.OutcomeFault
	}
	return metrics.OutcomeHandled
}

func (d *Dispatcher) dispatchAutocomplete(ctx context.Context, ev *interaction.Event, respond interaction.Responder, name string) string {
	cmd, ok := d.registry.Command(name)
	if !ok {
		d.suggest(ctx, respond, nil)
		return metrics.OutcomeUnknown
	}
	ac, ok := cmd.(command.Autocompleter)
	if !ok {
		d.suggest(ctx, respond, nil)
		return metrics.OutcomeHandled
	}

	ctx, cancel := context.WithTimeout(ctx, d.autocompleteTimeout)
	defer cancel()

	var choices []interaction.Choice
	req := d.newRequest(ev, respond, d.logger.With("command", name))
	task := supervisor.Task{Label: name, Kind: interaction.KindAutocomplete, UserID: ev.Member.ID, WorkspaceID: ev.WorkspaceID}
	err := d.supervisor.Guard(ctx, task, respond, func(ctx context.Context) error {
		var err error
		choices, err = ac.Autocomplete(ctx, req)
		return err
	})
	if err != nil {
		choices = nil
	}
	if len(choices) > interaction.MaxChoices {
		choices = choices[:interaction.MaxChoices]
	}
	d.suggest(ctx, respond, choices)
	if err != nil {
		return metrics.OutcomeFault
	}
	return metrics.OutcomeHandled
}

// bypassRole returns the workspace's manager role, or "" when settings
// cannot be read.
func (d *Dispatcher) bypassRole(ctx context.Context, workspaceID string) string {
	ws, err := d.resolver.Settings(ctx, workspaceID)
	if err != nil {
		d.logger.Warn("could not read manager role", "workspace_id", workspaceID, "error", err)
		return ""
	}
	return ws.BypassRoleID
}

func (d *Dispatcher) suggest(ctx context.Context, respond interaction.Responder, choices []interaction.Choice) {
	if choices == nil {
		choices = []interaction.Choice{}
	}
	if err := respond.Suggest(ctx, choices); err != nil && !errors.Is(err, interaction.ErrAlreadyResponded) {
		d.logger.Debug("failed to send suggestions", "error", err)
	}
}

func (d *Dispatcher) dispatchComponent(ctx context.Context, ev *interaction.Event, respond interaction.Responder, key interaction.RoutingKey) string {
	userID := ev.Member.ID

	if key.Family == command.CancelFamily {
		return d.cancel(ctx, ev, respond, key)
	}

	family, handler, ok := d.registry.Family(key.Family)
	if !ok {
		d.logger.Debug("unknown component family", "family", key.Family, "custom_id", key.Raw)
		d.replyEphemeral(ctx, respond, msgStaleComponent)
		return metrics.OutcomeUnknown
	}

	if family.RequiredPermission != "" {
		inv := ev.Member.Invoker()
		if !inv.Permissions.Has(family.RequiredPermission) && !policy.IsBypass(inv, d.bypassRole(ctx, ev.WorkspaceID)) {
			metrics.PolicyDenials.WithLabelValues(string(policy.ReasonMissingPermission)).Inc()
			d.logger.Info("component denied",
				"family", family.Name,
				"user_id", userID,
				"required", family.RequiredPermission,
			)
			d.replyEphemeral(ctx, respond, familyPermissionMessage(family))
			return metrics.OutcomeDenied
		}
	}

	if family.Ownership == command.OwnerEmbedded && (!key.HasOwner || key.OwnerID != userID) {
		d.logger.Info("component owner mismatch",
			"family", family.Name,
			"user_id", userID,
			"owner_id", key.OwnerID,
		)
		d.replyEphemeral(ctx, respond, msgNotYours)
		return metrics.OutcomeNotOwner
	}

	var sess *session.Session
	if family.Flow != "" {
		var err error
		sess, err = d.sessions.Get(ctx, userID)
		switch {
		case errors.Is(err, session.ErrNotFound):
			sess = nil
		case err != nil:
			d.logger.Warn("session store unavailable", "family", family.Name, "user_id", userID, "error", err)
			sess = nil
		case sess.Kind != family.Flow:
			d.logger.Debug("session kind mismatch", "family", family.Name, "want", family.Flow, "have", sess.Kind)
			sess = nil
		}
		if sess == nil && family.NeedsSession(key.Action()) {
			d.expired(ctx, respond, family)
			return metrics.OutcomeExpired
		}
	}

	if family.Deferred {
		if err := respond.Defer(ctx, false); err != nil {
			d.logger.Warn("failed to defer component", "family", family.Name, "error", err)
		}
	}

	logger := d.logger.With("family", family.Name, "user_id", userID, "workspace_id", ev.WorkspaceID)
	req := d.newRequest(ev, respond, logger)
	req.Key = key
	req.Family = family
	req.Session = sess
	task := supervisor.Task{Label: family.Name, Kind: interaction.KindComponent, UserID: userID, WorkspaceID: ev.WorkspaceID}
	if err := d.supervisor.Guard(ctx, task, respond, func(ctx context.Context) error {
		return handler.HandleComponent(ctx, req)
	}); err != nil {
		return metrics.OutcomeFault
	}
	return metrics.OutcomeHandled
}

// cancel is the awaiting_confirmation -> cancelled transition shared by
// every confirmation flow.
func (d *Dispatcher) cancel(ctx context.Context, ev *interaction.Event, respond interaction.Responder, key interaction.RoutingKey) string {
	userID := ev.Member.ID
	if !key.HasOwner || key.OwnerID != userID {
		d.replyEphemeral(ctx, respond, msgNotYours)
		return metrics.OutcomeNotOwner
	}
	if err := d.sessions.Delete(ctx, userID); err != nil {
		d.logger.Warn("failed to delete session on cancel", "user_id", userID, "error", err)
	}
	if err := respond.Update(ctx, interaction.Final(msgCancelled)); err != nil {
		d.logger.Warn("failed to update cancelled flow", "user_id", userID, "error", err)
	}
	return metrics.OutcomeHandled
}

// expired tells the user to start over. Owner-bearing confirmation UIs are
// neutralised in place; other families get an ephemeral hint.
func (d *Dispatcher) expired(ctx context.Context, respond interaction.Responder, f command.Family) {
	if f.Ownership == command.OwnerEmbedded && f.ExpiredHint == "" {
		if err := respond.Update(ctx, interaction.Final(msgExpired)); err != nil {
			d.logger.Warn("failed to update expired flow", "family", f.Name, "error", err)
		}
		return
	}
	d.replyEphemeral(ctx, respond, expiredHintMessage(f))
}

func (d *Dispatcher) replyEphemeral(ctx context.Context, respond interaction.Responder, content string) {
	if err := respond.Reply(ctx, interaction.Ephemeral(content)); err != nil {
		d.logger.Warn("failed to send reply", "error", err)
	}
}
