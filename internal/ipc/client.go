package ipc

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/inoli/internal/groutine"
)

// Client is the counterpart of a Broker used by local tools.
type Client struct {
	conn   net.Conn
	logger *logrus.Logger

	writeMu sync.Mutex
}

// Dial connects to the broker socket at path.
func Dial(ctx context.Context, path string, logger *logrus.Logger) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", path, err)
	}
	return NewClient(conn, logger), nil
}

// NewClient wraps an established connection.
func NewClient(conn net.Conn, logger *logrus.Logger) *Client {
	return &Client{conn: conn, logger: logger}
}

// Send writes one command frame.
func (c *Client) Send(cmd Command) error {
	frame, err := cmd.MarshalBinary()
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	n, err := c.conn.Write(frame)
	if err != nil {
		return fmt.Errorf("send %s: %w", cmd, err)
	}
	if n != len(frame) {
		return fmt.Errorf("send %s: short write %d of %d bytes", cmd, n, len(frame))
	}
	return nil
}

// Messages decodes the broker's message stream. The channel is closed when
// the connection ends or ctx is done; malformed frames are skipped.
func (c *Client) Messages(ctx context.Context) <-chan Message {
	out := make(chan Message, 16)

	groutine.Go(ctx, "ipc-client-messages", func(ctx context.Context) {
		defer close(out)
		stop := context.AfterFunc(ctx, func() { _ = c.conn.Close() })
		defer stop()

		scanner := NewMessageScanner(DefaultFrameLimit)
		buf := make([]byte, readChunk)
		for {
			n, err := c.conn.Read(buf)
			if n > 0 {
				scanner.Write(buf[:n])
				for {
					m, ok, perr := scanner.Next()
					if !ok {
						break
					}
					if perr != nil {
						c.logger.WithError(perr).Debug("Skipped malformed message frame")
						continue
					}
					select {
					case out <- m:
					case <-ctx.Done():
						return
					}
				}
			}
			if err != nil || n == 0 {
				return
			}
		}
	})
	return out
}

func (c *Client) Close() error {
	return c.conn.Close()
}
