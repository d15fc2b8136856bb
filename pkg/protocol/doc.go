// ABOUTME: Aaxion bridge protocol package
// ABOUTME: Defines protocol messages and WebSocket client
// Package protocol implements the discovery bridge protocol.
//
// UI shells connect to a local bridge over WebSocket and request a scan;
// the bridge answers with the servers it found.
//
// Example:
//
//	client, err := protocol.Dial(ctx, "127.0.0.1:8931")
//	result, err := client.Discover(ctx)
package protocol
