// Package irc owns the per-server session protocol engine.
//
// Ownership boundary:
// - connection supervisor (dial/TLS, CAP negotiation, reconnect, inbound batching)
// - session state machine (membership, label/batch correlation, event derivation)
// - session registry (server -> session routing and read access)
//
// Wire parsing/serialization is delegated to github.com/ergochat/irc-go/ircmsg;
// this package never frames raw lines itself beyond reading them off the socket.
package irc
