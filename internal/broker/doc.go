// Package broker implements the topic-prefix publish/subscribe bus that
// sits on top of transport.Transport: publisher and subscriber handles, a
// per-subscriber worker goroutine, and an explicit
// Connected/Running/Stopping/Stopped lifecycle guarded by one mutex per
// handle.
//
// Subscribe matching is byte-prefix: a subscription to "foo" receives
// frames whose topic starts with "foo", including "foobar", not just exact
// matches. This is deliberate and is not silently narrowed to exact match
// anywhere in this package.
//
// Only the full variant is implemented here - a publisher and a subscriber
// both built from the same transport address, with a worker thread driving
// delivery. A publish-only broker (bind a socket, send frames, no
// subscription or worker at all) would be a strict subset of this one and
// is not provided as a separate type; a caller that only needs to publish
// simply never calls Subscribe.
package broker
