// Package physics simulates spring follow-through on bone chains.
//
// A [Chain] owns the dynamic state of its bones and moves through three
// phases: [Uninitialized] until [Chain.Start] seeds it from the base pose,
// [Running] while [Chain.Step] advances it one frame at a time, and
// [Finished] once the bake range is done or the state diverged.
//
// Each frame is split into equal sub-steps. In every sub-step the bones are
// visited root to tip:
//
//   - the driving target is the simulated parent followed by the bone's
//     posed local transform, interpolated between the previous and the
//     current frame
//   - recursion shifts the target by the parent's velocity
//   - a damped spring pulls the tip particle toward the target, with
//     external forces added as acceleration
//   - tension pulls the result back toward the target and small moves
//     below the threshold are dropped
//   - the tip is resolved against self, plane and collection colliders and
//     the velocity loses its component along every correction normal
//
// Delay zero makes the spring rigid: without collisions the simulated pose is
// the driving target.
package physics
