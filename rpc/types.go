// Package rpc exposes the control API spec.md §6 names: a thin HTTP GET
// surface for starting the miner, staker, synthetic transaction generator,
// and light-client driver, plus a peer ping and read-only ledger dumps. It
// has no stop endpoints.
// Deliberately thin — the control API is an explicit external
// collaborator (spec.md §1), not a consensus component.
package rpc

// Response is the plain JSON envelope spec.md §6 specifies for every
// endpoint: {success, message}. There is no JSON-RPC 2.0 request/id
// wrapping here unlike the teacher's original envelope — this API is
// GET-only and carries no method dispatch payload beyond query params.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func ok(msg string) Response {
	return Response{Success: true, Message: msg}
}

func fail(msg string) Response {
	return Response{Success: false, Message: msg}
}
