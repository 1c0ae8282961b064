// Package server implements a multi-tenant realtime relay over websockets.
//
// Every connection presents a signed bearer token during the HTTP
// handshake. The verified identity determines the broadcast groups the
// connection joins, all of them scoped under its tenant, and every inbound
// event passes a per-connection rate limiter before being dispatched.
// Message routing authorizes the requested target against the sender's
// grants and fans the message out to a single destination group, excluding
// the sender.
package server
