// SPDX-License-Identifier: MIT

// Package hostport implements the host-port transport (C6): a
// connectionless datagram channel translating a fixed-size request
// envelope into inb/outb effects on the controller, per §4.5. Framing,
// binding, and short-deadline polling are modeled directly against
// net.PacketConn; only the envelope shape and dispatch are specified.
package hostport

import (
	"net"
	"time"

	"github.com/system76/ecsim/internal/ec"
	"github.com/system76/ecsim/internal/trace"
)

// Framing selects the request envelope shape. The 8-bit variant is the
// older revision's framing (still supported behind this selection); the
// 16-bit variant is current.
type Framing int

const (
	Framing16 Framing = iota // 4 bytes: op, port_lo, port_hi, value
	Framing8                 // 3 bytes: op, port, value
)

const (
	opInit = 0x00
	opInb  = 0x01
	opOutb = 0x02
)

// Server answers host-port datagrams against a Controller.
type Server struct {
	conn    net.PacketConn
	framing Framing
	ctrl    *ec.Controller
	tracer  *trace.Tracer
}

// NewServer wraps an already-bound PacketConn.
func NewServer(conn net.PacketConn, framing Framing, ctrl *ec.Controller, tracer *trace.Tracer) *Server {
	return &Server{conn: conn, framing: framing, ctrl: ctrl, tracer: tracer}
}

func (s *Server) requestSize() int {
	if s.framing == Framing8 {
		return 3
	}
	return 4
}

// pollWait bounds how long PollOnce waits when no datagram is pending. A
// deadline that has already passed when ReadFrom starts makes it fail
// without reading, even with a datagram queued, so the deadline is set
// slightly in the future.
const pollWait = time.Millisecond

// PollOnce drains at most one pending datagram, waiting no longer than
// pollWait when none is pending, per §5's rule that the servicer is
// polled once per outer iteration rather than run concurrently with
// instruction stepping. A short read or any other I/O condition is
// treated as "nothing pending" and is not an error the caller needs to
// act on.
func (s *Server) PollOnce() {
	if err := s.conn.SetReadDeadline(time.Now().Add(pollWait)); err != nil {
		return
	}

	buf := make([]byte, s.requestSize())
	n, addr, err := s.conn.ReadFrom(buf)
	if err != nil {
		return
	}
	if n != len(buf) {
		// Short envelope: drop it per §7.
		return
	}

	resp := s.handle(buf)
	_, _ = s.conn.WriteTo(resp, addr)
}

func (s *Server) handle(req []byte) []byte {
	op := req[0]

	var port uint16
	var value byte
	if s.framing == Framing8 {
		port = uint16(req[1])
		value = req[2]
	} else {
		port = uint16(req[1]) | uint16(req[2])<<8
		value = req[3]
	}

	switch op {
	case opInit:
		return []byte{0}
	case opInb:
		return []byte{s.ctrl.HostPortRead(port)}
	case opOutb:
		s.ctrl.HostPortWrite(port, value)
		return []byte{value}
	default:
		return []byte{0}
	}
}
