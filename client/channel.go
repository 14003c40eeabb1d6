package client

import (
	"fmt"
	"time"

	"github.com/dermesser/lbbroker/log"

	"github.com/google/uuid"
	zmq "github.com/pebbe/zmq4"
)

const DEFAULT_TIMEOUT = 10 * time.Second

// The address of a broker frontend.
type PeerAddress struct {
	host string
	port uint

	path string
	url  string
}

// A TCP/IP address
func Peer(host string, port uint) PeerAddress {
	return PeerAddress{host: host, port: port}
}

// A unix socket path
func IPCPeer(path string) PeerAddress {
	return PeerAddress{path: path}
}

// Any ZeroMQ endpoint, e.g. "inproc://frontend"
func URL(url string) PeerAddress {
	return PeerAddress{url: url}
}

func (pa PeerAddress) ToUrl() string {
	if pa.host != "" {
		return fmt.Sprintf("tcp://%s:%d", pa.host, pa.port)
	} else if pa.path != "" {
		return fmt.Sprintf("ipc://%s", pa.path)
	} else {
		return pa.url
	}
}

func (pa PeerAddress) String() string {
	if pa.host != "" {
		return fmt.Sprintf("%s:%d", pa.host, pa.port)
	} else if pa.path != "" {
		return pa.path
	} else {
		return pa.url
	}
}

func (pa PeerAddress) equals(pa2 PeerAddress) bool {
	return pa.ToUrl() != "" && pa.ToUrl() == pa2.ToUrl()
}

/*
A channel to a broker frontend, over a REQ socket.

After a request has timed out, the REQ socket waits for a reply that may never come. Instead of
relaxing the REQ state machine, Reconnect() throws the socket away and creates a new one with a
new identity; a reply to the old request is then undeliverable and dropped by the broker.

A channel is not safe for concurrent use.
*/
type Channel struct {
	sock     *zmq.Socket
	peer     PeerAddress
	identity string
	timeout  time.Duration
}

// Create a new channel connected to addr.
func NewChannel(addr PeerAddress) (*Channel, error) {
	c := &Channel{peer: addr, timeout: DEFAULT_TIMEOUT}

	if addr.ToUrl() == "" {
		return nil, fmt.Errorf("empty peer address")
	}

	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Channel) connect() error {
	sock, err := zmq.NewSocket(zmq.REQ)

	if err != nil {
		log.LB_log(log.LOGLEVEL_ERRORS, "Error when creating Req socket:", err.Error())
		return err
	}

	identity := "client-" + uuid.NewString()

	if err = sock.SetIdentity(identity); err != nil {
		sock.Close()
		return err
	}

	sock.SetIpv6(true)
	sock.SetLinger(0)
	sock.SetReconnectIvl(100 * time.Millisecond)
	sock.SetImmediate(true)
	sock.SetSndtimeo(c.timeout)
	sock.SetRcvtimeo(c.timeout)

	err = sock.Connect(c.peer.ToUrl())

	if err != nil {
		log.LB_log(log.LOGLEVEL_ERRORS, "Could not connect to", c.peer.String(), ":", err.Error())
		sock.Close()
		return err
	}

	c.sock = sock
	c.identity = identity
	return nil
}

// Replace the socket with a new one, discarding whatever the old one was waiting for.
func (c *Channel) Reconnect() error {
	if c.sock != nil {
		c.sock.Close()
		c.sock = nil
	}

	log.LB_log(log.LOGLEVEL_DEBUG, "Reconnecting channel to", c.peer.String())
	return c.connect()
}

func (c *Channel) Peer() PeerAddress {
	return c.peer
}

// The identity the broker sees; it changes with every Reconnect().
func (c *Channel) Identity() string {
	return c.identity
}

func (c *Channel) SetTimeout(d time.Duration) {
	c.timeout = d

	if c.sock != nil {
		c.sock.SetSndtimeo(d)
		c.sock.SetRcvtimeo(d)
	}
}

func (c *Channel) Timeout() time.Duration {
	return c.timeout
}

func (c *Channel) destroy() {
	if c.sock != nil {
		c.sock.Close()
		c.sock = nil
	}
}

func (c *Channel) sendMessage(request []byte) error {
	if c.sock == nil {
		return ErrClosed
	}
	_, err := c.sock.SendBytes(request, 0)
	return err
}

func (c *Channel) receiveMessage() ([]byte, error) {
	if c.sock == nil {
		return nil, ErrClosed
	}
	return c.sock.RecvBytes(0)
}
