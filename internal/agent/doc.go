// Package agent implements the specialist responders of the assistant. Each
// specialist binds one role-specific instruction template to a single chat
// model call and returns a structured result. Specialists are stateless per
// invocation and can be executed standalone or from the routing graph.
package agent
