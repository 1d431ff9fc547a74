// Package timeline holds the optimistic timeline store.
//
// Items authored on the device are inserted immediately with a temporary id
// and uploaded in the background. Each item carries a lifecycle status that
// subscribers observe through full state snapshots. Retryable failures are
// queued with exponential backoff and retried by a periodic cycle; voice
// memos are polled until transcription reaches a terminal state.
//
// Items and the retry queue are persisted as two independent keys of a
// domain.KVStore, each rewritten wholesale after every mutation, and are
// reconciled by id when the store starts.
package timeline
