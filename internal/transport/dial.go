package transport

import (
	"context"
	"fmt"
	"net"
)

// Dial opens an outbound TCP connection to addr, honoring ctx's deadline
// and cancellation.
func Dial(ctx context.Context, addr string) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	return conn, nil
}
