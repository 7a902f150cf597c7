// Package queue moves KNXnet/IP frames between sockets and the client.
//
// # Inbox
//
// One Inbox runs per socket (control, data, discovery, multicast). Its
// goroutine blocks in ReadFrom bounded by a read deadline, which doubles as
// the shutdown polling cycle. Each datagram is decoded, checked by the
// ChannelVerifier, passed to the handler registered for its service type,
// then announced to Hooks.OnIncomingBody.
//
// Malformed frames and channel mismatches are counted and dropped. A read
// failure streak is reported once through Hooks.OnError. A panic in a
// handler only loses that datagram.
//
// # Outbox
//
// One Outbox drains an unbounded FIFO on a single goroutine, so frames hit
// the wire in submission order. A Router picks the socket and destination
// for each body. Successful writes are announced to Hooks.OnOutgoingBody,
// failures to Hooks.OnError; the loop keeps running either way.
//
// # Shutdown
//
// Close on either queue signals the goroutine and waits for it to exit.
// Closing a socket out from under an inbox also ends its loop; unless the
// inbox was closed first this is reported as an error.
package queue
