// Package websocket pushes batch snapshots to browser clients.
//
// A Hub owns the connected clients and fans out every message given to
// Broadcast. Handler upgrades HTTP requests and runs one read and one write
// pump per connection.
package websocket
