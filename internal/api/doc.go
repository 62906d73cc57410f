// Package api exposes the REST surface of the orchestration layer: full
// routed execution, direct specialist dispatch, async analysis jobs, the
// knowledge base, token issuance and operational endpoints.
package api
