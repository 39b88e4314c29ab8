// Package events moves permission change events from the components that
// mutate grants to the caches that must drop stale entries.
//
// Within a process the Bus delivers synchronously. Across instances the
// Relay broadcasts over redis pub/sub, tagging each message with the
// publishing instance so nobody reacts to its own broadcast.
package events
