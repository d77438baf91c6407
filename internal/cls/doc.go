// Package cls implements the Cumulative Layout Shift session-window algorithm.
//
// Shifts with recent user input are ignored. A shift joins the open session
// when it starts less than 1s after the session's last shift and less than 5s
// after its first; otherwise it opens a new session. The published CLS value
// is the largest session total observed, not the sum of every shift.
package cls
