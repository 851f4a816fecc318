package websocket

// Outbox exposes the queued messages of a client.
func (c *Client) Outbox() <-chan []byte {
	return c.out
}
