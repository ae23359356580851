// ABOUTME: Conference bridge wire protocol package
// ABOUTME: JSON control messages and binary relay framing
// Package protocol defines what travels over a bridge WebSocket.
//
// Binary messages from an admitted client carry raw 8 kHz mu-law audio;
// binary messages from the server carry that client's personalized mix.
// Text messages are JSON control objects relayed between clients and the
// master connection.
//
// Example:
//
//	ctl, err := protocol.ParseControl(data)
//	if ctl.Type == protocol.TypeAdmit {
//		engine.Admit(ctl.Addr)
//	}
package protocol
