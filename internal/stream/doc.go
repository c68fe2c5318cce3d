// Package stream pushes field simulations to socket.io clients step by step.
//
// A client emits EventRun with a Params payload. The server answers with one
// EventStep per step and a closing EventDone, or with EventError when the
// parameters are rejected or the run fails. Keys missing from the payload
// take the server's configured defaults. Disconnecting cancels the client's
// runs.
//
// Watch is the matching client.
package stream
