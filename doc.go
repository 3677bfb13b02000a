// Package auth provides session-scoped identity primitives for multi-role
// web applications: identity resolution, adapter-based authentication,
// nested masquerade delegation, and a status-change workflow with ordered
// event dispatch.
//
// Request scope:
//   - Every component operates on a Scope, a request-scoped bundle of
//     {session store, dispatcher, repositories, current user, redirect}.
//     Scopes are built per request and passed explicitly; there is no
//     package-level singleton.
//
// Masquerade:
//   - MasqueradeHandler keeps a LIFO stack of delegation frames in the
//     session. A privileged user can assume another identity, nest further
//     delegations, and unwind them one frame at a time. The bottom frame
//     always identifies the real actor.
//
// Status workflow:
//   - StatusWorkflow records immutable status entries against any Tracked
//     entity and publishes status-change events exactly once per genuine
//     transition. Repeating the current status name is a no-op: nothing is
//     persisted or published.
package auth
