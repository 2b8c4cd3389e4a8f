// Package dynamo provides the primitives shared by the spring simulation
// packages:
//
//   - [Params]: per-chain simulation parameters (delay, recursion, strength,
//     twist, tension, inertia, extend, sub-steps)
//   - [ChainError] and [Report]: per-chain failures collected during a bake
//     and surfaced once at the end
//   - [Metric] and [Observer]: per-frame hooks used for metrics and progress
//   - [ParallelFor]: chunked fan-out for independent chains
//
// # Thread Safety
//
// Params and Report values are plain data. A Report is filled by a single
// goroutine (the bake driver) after each frame's parallel section completes;
// it is never written concurrently.
package dynamo
