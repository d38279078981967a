package p2p

import (
	"bufio"
	"net"
	"time"

	"github.com/hashicorp/go-msgpack/codec"
)

// outConn writes frames to one target. Pooled connections only send, the
// target dials this node to answer. An inbound connection is wrapped in one
// to answer a status request.
type outConn struct {
	target string
	conn   net.Conn
	w      *bufio.Writer
	enc    *codec.Encoder
}

func dial(target string, timeout time.Duration) (*outConn, error) {
	conn, err := net.DialTimeout("tcp", target, timeout)
	if err != nil {
		return nil, err
	}

	return newOutConn(target, conn), nil
}

func newOutConn(target string, conn net.Conn) *outConn {
	oc := outConn{
		target: target,
		conn:   conn,
		w:      bufio.NewWriter(conn),
	}
	oc.enc = codec.NewEncoder(oc.w, &codec.MsgpackHandle{})

	return &oc
}

// send writes the frame type followed by the msgpack encoded body.
func (oc *outConn) send(frame uint8, body any, timeout time.Duration) error {
	if timeout > 0 {
		if err := oc.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return err
		}
	}

	if err := oc.w.WriteByte(frame); err != nil {
		return err
	}

	if err := oc.enc.Encode(body); err != nil {
		return err
	}

	return oc.w.Flush()
}

func (oc *outConn) release() error {
	return oc.conn.Close()
}
