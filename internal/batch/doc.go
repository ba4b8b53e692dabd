// Package batch keeps a local mirror of the backend batch queue. A
// Synchronizer polls the queue on a fixed cadence, replaces its snapshot
// wholesale on every successful poll and hands each newly completed item to a
// download Trigger exactly once per session. Mutations (add, start, cancel,
// pause, resume, clear) go through the same type so every user action ends in
// one notification and a fresh snapshot.
package batch
