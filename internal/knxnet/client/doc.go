// Package client implements a KNXnet/IP tunneling and routing client.
//
// # Lifecycle
//
// A Client moves through the states Idle, Discovering, Connecting, Connected,
// Disconnecting, Disconnected and Error. The allowed transitions are a static
// table (see CanTransition); anything else is rejected with
// ErrInvalidTransition.
//
//	c, err := client.New(client.Config{Gateway: netip.MustParseAddrPort("192.168.1.10:3671")})
//	if err != nil { ... }
//	if err := c.Start(ctx); err != nil { ... }
//	defer c.Close(context.Background())
//	err = c.Write(ctx, address.MustGroup(1, 2, 3), []byte{0x01})
//
// Start opens the sockets, discovers a gateway when none is configured and
// runs the connect handshake. Close must be called even when Start fails; it
// releases the sockets.
//
// # Tunneling
//
// Requests are sent one at a time. A request that is not acknowledged within
// AckTimeout is resent once with the same sequence number; a second timeout
// returns ErrAckTimeout and the session is re-established. Inbound requests
// are acknowledged before their cEMI is processed.
//
// A heartbeat (CONNECTIONSTATE_REQUEST) runs every HeartbeatInterval. Two
// consecutive failures end the session, which reconnects to the same gateway.
// A DISCONNECT_REQUEST from the gateway is answered and, with AutoReconnect,
// followed by a fresh session.
//
// # Routing
//
// In routing mode the client joins the routing multicast group and is
// connected without a handshake. ROUTING_BUSY pauses sends for the announced
// wait time.
//
// # Observation
//
// Every frame in and out reaches queue.Hooks; hooks implementing
// StateObserver also see lifecycle changes. Group values received from the
// bus are kept in the status pool returned by Status.
package client
