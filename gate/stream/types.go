package stream

// QueryFrame is a client-to-server message carrying one request line.
type QueryFrame struct {
	Payload string `json:"payload"`
}

// ReplyFrame answers one QueryFrame with either a result line or an error
// string, never both.
type ReplyFrame struct {
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}
