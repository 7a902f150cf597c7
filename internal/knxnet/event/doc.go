// Package event correlates outgoing requests with the responses they
// provoke.
//
// A caller records its request in the Pool before handing the frame to the
// outbox, then blocks on the slot with a bounded Wait. The inbox goroutine
// delivers decoded responses into the same slot. Each slot has its own
// mutex; callers never see the pool's internal maps.
//
// Slots:
//
//	search, description       Multi (several gateways may answer)
//	connect, connection-state Single
//	disconnect                Single
//	tunneling, device config  Single per sequence number
//	confirmations             Single per destination address (L_Data.con)
//
// Responses that arrive without a recorded request are dropped.
package event
