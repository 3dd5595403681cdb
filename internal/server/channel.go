package server

import (
	"net"
	"sync"
	"time"
)

// tcpChannel session.Channel 的 TCP 实现
// Writes are serialized so command pushes never interleave with acks.
type tcpChannel struct {
	conn         net.Conn
	writeTimeout time.Duration
	mu           sync.Mutex
}

func newTCPChannel(conn net.Conn, writeTimeout time.Duration) *tcpChannel {
	return &tcpChannel{conn: conn, writeTimeout: writeTimeout}
}

func (c *tcpChannel) Write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	_, err := c.conn.Write(data)
	return err
}

func (c *tcpChannel) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *tcpChannel) Close() error {
	return c.conn.Close()
}
