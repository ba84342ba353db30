// Package types holds the wire envelopes shared by every API response.
package types

// SuccessEnvelope wraps every 2xx body so clients always unmarshal the same
// {"data": ...} shape regardless of endpoint.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the public face of a failed request. Code carries the stable
// machine-readable code from pkg/errors; Details is populated only for codes
// whose metadata allows surfacing them.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorEnvelope nests the error under its own key so success and failure
// bodies never share fields.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
