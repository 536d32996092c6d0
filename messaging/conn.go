package messaging

import (
	"bufio"
	"io"
	"net"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/marsleezm/spec-calvin/configs"
)

// Connection is the inbound/outbound transport a node uses to exchange
// Messages with its peers: one TCP listener accepting readers, and a pool
// of dialed writers reused by destination address.
type Connection struct {
	nodeID   string
	listener net.Listener
	inbox    chan *Message

	done    chan struct{}
	sem     chan struct{}
	outConn sync.Map // address -> net.Conn
}

// Listen starts accepting connections on address; inbound messages are
// delivered on the returned Connection's GetMessage method.
func Listen(nodeID, address string) (*Connection, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp4", address)
	if err != nil {
		return nil, err
	}
	ln, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return nil, err
	}
	c := &Connection{
		nodeID:   nodeID,
		listener: ln,
		inbox:    make(chan *Message, configs.MaxPending),
		done:     make(chan struct{}),
		sem:      make(chan struct{}, configs.MaxConnectionHandler),
	}
	go c.acceptLoop()
	return c, nil
}

func (c *Connection) acceptLoop() {
	for {
		conn, err := c.listener.Accept()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
				configs.Warn(false, "accept failed: "+err.Error())
				continue
			}
		}
		c.sem <- struct{}{}
		go func() {
			defer func() { <-c.sem }()
			c.handleConn(conn)
		}()
	}
}

func (c *Connection) handleConn(conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			var msg Message
			if jerr := json.Unmarshal(line, &msg); jerr != nil {
				configs.Warn(false, "malformed message: "+jerr.Error())
			} else {
				select {
				case c.inbox <- &msg:
				default:
					configs.Warn(false, "inbox full, dropping message from "+msg.From)
				}
			}
		}
		if err == io.EOF {
			return
		}
		if err != nil {
			configs.Warn(false, "connection read failed: "+err.Error())
			return
		}
	}
}

// GetMessage pops one received message into *msg, reporting whether one
// was available. It never blocks, matching the no-wait polling style the
// worker pool and dispatch loop use everywhere else.
func (c *Connection) GetMessage(msg *Message) bool {
	select {
	case m := <-c.inbox:
		*msg = *m
		return true
	default:
		return false
	}
}

// Send serialises msg and writes it to its destination, dialing and
// caching the connection on first use.
func (c *Connection) Send(msg *Message) error {
	conn, err := c.dial(msg.To)
	if err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if err := conn.SetWriteDeadline(time.Now().Add(time.Second)); err != nil {
		configs.Warn(false, err.Error())
	}
	_, err = conn.Write(data)
	return err
}

func (c *Connection) dial(address string) (net.Conn, error) {
	if cur, ok := c.outConn.Load(address); ok {
		return cur.(net.Conn), nil
	}
	tcpAddr, err := net.ResolveTCPAddr("tcp4", address)
	if err != nil {
		return nil, err
	}
	newConn, err := net.DialTCP("tcp", nil, tcpAddr)
	if err != nil {
		return nil, err
	}
	fin, _ := c.outConn.LoadOrStore(address, net.Conn(newConn))
	return fin.(net.Conn), nil
}

// Close stops accepting new connections and closes every cached outbound
// connection.
func (c *Connection) Close() error {
	close(c.done)
	c.outConn.Range(func(_, value interface{}) bool {
		value.(net.Conn).Close()
		return true
	})
	return c.listener.Close()
}
