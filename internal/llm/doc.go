// Package llm contains adapters for invoking large language models. It
// abstracts away provider-specific APIs behind a single chat interface and
// normalizes request/response lifecycles for the routing and specialist
// layers.
package llm
