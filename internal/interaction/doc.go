// Package interaction defines the platform-neutral event model.
//
// Transports (the Discord HTTP endpoint, the Matrix frontend) decode their
// wire formats into Event, classify it with Classify and hand it to the
// dispatcher together with a Responder that knows how to answer on that
// platform. Interactive elements carry a RoutingKey in their custom id so a
// later click can be routed back to the flow that rendered it.
package interaction
