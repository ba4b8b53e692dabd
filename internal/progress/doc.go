// Package progress implements the per-download push channel. A Channel dials
// the backend WebSocket for one session token, tracks the latest stage and
// fires a completion or error callback once the backend reports a terminal
// stage and the display delay has elapsed.
package progress
