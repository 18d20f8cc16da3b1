// Package motion converts operator pointer input into a bounded stream of
// relay commands.
//
// A Smoother owns the numeric model: SpringDamper steps a damped spring once
// per frame, SampledMomentum measures speed over a sample window and keeps
// moving with decaying momentum after release. Engine gates emission on the
// relay's session state, applies the stroke range and speed clamp, frames
// steps for the wire, and records ack latency. Engine does no I/O; the
// controller runtime drives it from a single event loop.
package motion
