// Package discord is the HTTP interactions transport.
//
// The platform POSTs every slash command, autocomplete request, button press
// and modal submit to one endpoint, signed with the application's Ed25519
// key. Server verifies the signature, decodes the payload into an
// interaction.Event and runs the dispatcher on a separate goroutine.
//
// The first response travels back on the open HTTP request. If the handler
// has not produced one within the defer window, Server acknowledges with a
// deferred callback and every later response becomes a webhook edit or
// follow-up through Client:
//
//	command / modal   -> DEFERRED_CHANNEL_MESSAGE (5), first Reply fills it
//	component         -> DEFERRED_UPDATE_MESSAGE (6), Update edits the message
//	autocomplete      -> empty choice list
//
// Client is also the platform.Guilds implementation used by the role
// handlers. Requests share one token bucket and honour 429 retry hints.
package discord
