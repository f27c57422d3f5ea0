// Package pipeline orchestrates notification processing.
//
// One inbound notification is expanded into repeated notifications (one
// per configured context array entry), and each repetition runs through
// the same sequence: resolve the context id to an item, apply the
// configured metadata changes inside one transaction, commit, then run
// the configured action chain.
//
// Repetitions are independent. A resolution, persistence or action
// failure in one repetition is recorded in its Result and never blocks
// the siblings. Actions run strictly after commit, so they may rely on
// persisted metadata; their side effects are not rolled back when a later
// action aborts.
package pipeline
