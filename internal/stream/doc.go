// Package stream provides the minimal push-based stream primitives the
// store is built on: multicast subjects, replay-latest behaviors and a
// handful of operators.
//
// Delivery is synchronous. Next calls every active observer on the
// calling goroutine, in subscription order, before returning. The
// observer list is snapshotted at emit time, so observers may subscribe
// or unsubscribe (themselves or others) during delivery without
// corrupting iteration. An observer unsubscribed mid-delivery receives
// nothing further, including the value currently being delivered.
package stream
