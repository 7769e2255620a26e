// Package agents implements the three model-backed pipeline stages: the
// Planner that selects applicable requirements, the Reasoner that judges a
// requirement against retrieved evidence, and the Verifier that re-checks a
// judgment and may only tighten it.
//
// Every agent absorbs its own failures. Model output crosses a strict
// validation boundary before it is trusted: unparseable or schema-invalid
// output is discarded and replaced with the stage's fail-safe value, and
// quotes that cannot be traced back to the supplied evidence invalidate the
// whole assessment. The downgrade-only clamp on verifier output is enforced
// here unconditionally, independent of what the model computed.
package agents
