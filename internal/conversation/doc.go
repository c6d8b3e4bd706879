// ABOUTME: Package doc for the conversation synchronization engine
// ABOUTME: Store, reconciler, coordinator, and change broadcasting

// Package conversation implements the client-side conversation
// synchronization engine.
//
// The engine keeps a locally-consistent model of the active conversation
// while reconciling it against asynchronous updates from the server:
//
//   - Store is the single source of truth for the active conversation:
//     ordered exchanges, branching response version sets, and active-version
//     pointers. Every mutation leaves the store invariants intact.
//
//   - Reconciler translates inbound server envelopes into store mutations,
//     handling out-of-order delivery, duplicate delivery, and envelopes whose
//     target has been superseded locally.
//
//   - Coordinator is the only entry point UI collaborators call to mutate
//     conversation state. Every user action is applied optimistically, issued
//     to the server, and confirmed or rolled back based on the outcome. At
//     most one operation may be in flight per target message.
//
//   - Broadcaster fans out change notifications so UI collaborators can
//     re-read the store and render without polling.
//
// The engine never treats a failure as fatal: every error path resolves to a
// consistent, previously-valid store state.
package conversation
