// Package provider defines the inference collaborator contract for
// response agents. A Generator turns a prompt into a single completed
// response; implementations wrap external model APIs or canned output.
//
// Design decisions:
//   - Completion only: agents publish whole responses as events, so the
//     contract is one prompt in, one response out. Token streaming stays
//     an implementation detail of a backend.
//   - Context first: Generate takes a context so a stopping agent can
//     abandon an in-flight call.
//   - Static lives here, not in a test package: offline deployments use
//     it as a real backend, not just a fixture.
package provider
