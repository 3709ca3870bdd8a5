// Package dispatch routes typed messages from a channel to registered
// handlers. It is the core of the bus: a per-worker handler registry, a
// non-blocking drain sweep, and a blocking type-filtered rendezvous wait.
//
// Key behaviors:
//   - Registry is built once at worker construction and frozen; no runtime
//     registration. Multiple handlers per type run in registration order.
//   - Drain pulls frames with TryReceive until the channel reports empty.
//     Undecodable frames and frames with no registered handler are consumed
//     and dropped; the sweep continues.
//   - A handler error aborts the sweep immediately. Frames still buffered
//     behind the failing message stay on the channel for the next drain.
//     The caller owns the retry/log/crash decision.
//   - WaitFor blocks until a message of the requested type arrives. Every
//     non-matching frame read along the way is consumed and permanently
//     discarded, including from later drains. This is deliberate: rendezvous
//     is a synchronization primitive, and protocols using it must not expect
//     unrelated messages to survive a pending wait.
//   - Channel closure surfaces as channel.ErrClosed, distinct from empty, so
//     control loops can terminate instead of spinning.
//
// Handlers must be short-running and non-blocking: a stalled handler stalls
// the entire drain and with it the worker's message responsiveness. A
// handler may itself call WaitFor on the same channel to block for a reply.
package dispatch
