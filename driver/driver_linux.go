//go:build linux
// +build linux

// File: driver/driver_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux epoll driver. One polling goroutine multiplexes every descriptor
// and translates readiness into api.Event values; API calls only mutate
// registration state and the outbound backlog, so they never block on
// network progress. Epoll registration changes from caller goroutines are
// safe while the loop is parked in EpollWait; only Stop needs the eventfd
// kick. All emissions go through the eventPump, which keeps production
// order and never blocks a caller that may hold higher-level locks.

package driver

import (
	"fmt"
	"log"
	"net"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-sock/api"
)

// connState tracks where a descriptor is in its lifetime.
type connState uint8

const (
	stateIdle       connState = iota // created/accepted, not armed
	stateConnecting                  // non-blocking connect in flight
	stateArmed                       // registered for read events
	stateListening
	stateClosing // close requested, draining the backlog
)

type conn struct {
	fd    int
	id    api.ConnID
	state connState
	udp   bool
	addr  string
	out   *sendQueue
	// wantWrite mirrors whether EPOLLOUT is currently registered.
	wantWrite bool
}

type epollDriver struct {
	cfg    *Config
	epfd   int
	wakefd int
	pump   *eventPump

	mu      sync.Mutex
	conns   map[api.ConnID]*conn
	byFD    map[int]*conn
	nextID  api.ConnID
	stopped bool
}

var _ api.Driver = (*epollDriver)(nil)

func newDriver(cfg *Config) (api.Driver, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, "epoll create")
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, errors.Wrap(err, "eventfd create")
	}
	d := &epollDriver{
		cfg:    cfg,
		epfd:   epfd,
		wakefd: wakefd,
		pump:   newEventPump(cfg.EventQueueSize),
		conns:  make(map[api.ConnID]*conn),
		byFD:   make(map[int]*conn),
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakefd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &ev); err != nil {
		unix.Close(wakefd)
		unix.Close(epfd)
		return nil, errors.Wrap(err, "epoll ctl wakefd")
	}
	go d.loop()
	return d, nil
}

func (d *epollDriver) allocID() api.ConnID {
	d.nextID++
	return d.nextID
}

// register installs a conn in both maps. Caller holds d.mu.
func (d *epollDriver) register(c *conn) {
	d.conns[c.id] = c
	d.byFD[c.fd] = c
}

// teardown removes a conn and closes its descriptor. Caller holds d.mu.
func (d *epollDriver) teardown(c *conn) {
	if c.state != stateIdle {
		_ = unix.EpollCtl(d.epfd, unix.EPOLL_CTL_DEL, c.fd, nil)
	}
	_ = unix.Close(c.fd)
	delete(d.conns, c.id)
	delete(d.byFD, c.fd)
}

// arm registers the descriptor for read events. Caller holds d.mu.
func (d *epollDriver) arm(c *conn) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLRDHUP, Fd: int32(c.fd)}
	if err := unix.EpollCtl(d.epfd, unix.EPOLL_CTL_ADD, c.fd, &ev); err != nil {
		return errors.Wrap(err, "epoll ctl add")
	}
	return nil
}

// setWrite toggles EPOLLOUT registration. Caller holds d.mu.
func (d *epollDriver) setWrite(c *conn, on bool) {
	if c.wantWrite == on {
		return
	}
	events := uint32(unix.EPOLLIN | unix.EPOLLRDHUP)
	if on {
		events |= unix.EPOLLOUT
	}
	ev := unix.EpollEvent{Events: events, Fd: int32(c.fd)}
	if err := unix.EpollCtl(d.epfd, unix.EPOLL_CTL_MOD, c.fd, &ev); err != nil {
		log.Printf("[driver] epoll mod fd %d: %v", c.fd, err)
		return
	}
	c.wantWrite = on
}

// Connect starts a non-blocking TCP connect. The outcome arrives as
// EventConnect or EventError once the handshake settles.
func (d *epollDriver) Connect(addr string, port int) (api.ConnID, error) {
	sa, family, err := resolveSockaddr(addr, port)
	if err != nil {
		return 0, err
	}
	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return 0, errors.Wrap(err, "socket create")
	}
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		unix.Close(fd)
		return 0, api.ErrDriverStopped
	}
	err = unix.Connect(fd, sa)
	switch err {
	case nil, unix.EINPROGRESS:
	default:
		unix.Close(fd)
		return 0, errors.Wrap(err, "connect")
	}
	c := &conn{fd: fd, id: d.allocID(), state: stateConnecting, out: newSendQueue(),
		addr: fmt.Sprintf("%s:%d", addr, port)}
	// EPOLLOUT fires once the handshake settles, success or failure.
	ev := unix.EpollEvent{Events: unix.EPOLLOUT | unix.EPOLLIN | unix.EPOLLRDHUP, Fd: int32(fd)}
	if err := unix.EpollCtl(d.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		unix.Close(fd)
		return 0, errors.Wrap(err, "epoll ctl add")
	}
	c.wantWrite = true
	d.register(c)
	return c.id, nil
}

// Bind adopts an externally created descriptor. It stays unarmed until
// Start; the confirmation event fires immediately.
func (d *epollDriver) Bind(fd uintptr) (api.ConnID, error) {
	if err := unix.SetNonblock(int(fd), true); err != nil {
		return 0, errors.Wrap(err, "set nonblock")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return 0, api.ErrDriverStopped
	}
	c := &conn{fd: int(fd), id: d.allocID(), state: stateIdle, out: newSendQueue(),
		addr: fmt.Sprintf("fd:%d", fd)}
	d.register(c)
	d.pump.emit(api.Event{Kind: api.EventConnect, ID: c.id, Addr: c.addr})
	return c.id, nil
}

// Start arms a descriptor for event delivery and confirms it.
func (d *epollDriver) Start(id api.ConnID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := d.conns[id]
	if c == nil {
		return api.ErrUnknownSession
	}
	switch c.state {
	case stateIdle:
		if err := d.arm(c); err != nil {
			return err
		}
		if c.listenerFD() {
			c.state = stateListening
		} else {
			c.state = stateArmed
		}
	case stateArmed, stateListening:
		// Adopted from another dispatcher; already armed.
	default:
		return errors.Wrapf(api.ErrNotSupported, "start in state %d", c.state)
	}
	d.pump.emit(api.Event{Kind: api.EventConnect, ID: c.id, Addr: c.addr})
	return nil
}

// listenerFD probes whether the descriptor is a listening socket.
func (c *conn) listenerFD() bool {
	v, err := unix.GetsockoptInt(c.fd, unix.SOL_SOCKET, unix.SO_ACCEPTCONN)
	return err == nil && v != 0
}

// Listen creates a listening descriptor, silent until Start.
func (d *epollDriver) Listen(host string, port, backlog int) (api.ConnID, error) {
	sa, family, err := resolveSockaddr(host, port)
	if err != nil {
		return 0, err
	}
	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return 0, errors.Wrap(err, "socket create")
	}
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return 0, errors.Wrapf(err, "bind %s:%d", host, port)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return 0, errors.Wrap(err, "listen")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		unix.Close(fd)
		return 0, api.ErrDriverStopped
	}
	c := &conn{fd: fd, id: d.allocID(), state: stateIdle,
		addr: fmt.Sprintf("%s:%d", host, port)}
	d.register(c)
	return c.id, nil
}

// UDP creates a datagram descriptor, armed immediately.
func (d *epollDriver) UDP(host string, port int) (api.ConnID, error) {
	family := unix.AF_INET
	var sa unix.Sockaddr
	if host != "" {
		resolved, fam, err := resolveSockaddr(host, port)
		if err != nil {
			return 0, err
		}
		sa, family = resolved, fam
	}
	fd, err := unix.Socket(family, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return 0, errors.Wrap(err, "socket create")
	}
	if sa != nil {
		if err := unix.Bind(fd, sa); err != nil {
			unix.Close(fd)
			return 0, errors.Wrapf(err, "bind %s:%d", host, port)
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		unix.Close(fd)
		return 0, api.ErrDriverStopped
	}
	c := &conn{fd: fd, id: d.allocID(), udp: true, state: stateArmed}
	if err := d.arm(c); err != nil {
		unix.Close(fd)
		return 0, err
	}
	d.register(c)
	return c.id, nil
}

// UDPConnect pins the default destination for unaddressed sends.
func (d *epollDriver) UDPConnect(id api.ConnID, addr string, port int) error {
	d.mu.Lock()
	c := d.conns[id]
	d.mu.Unlock()
	if c == nil || !c.udp {
		return api.ErrUnknownSession
	}
	sa, _, err := resolveSockaddr(addr, port)
	if err != nil {
		return err
	}
	if err := unix.Connect(c.fd, sa); err != nil {
		return errors.Wrapf(err, "udp connect %s:%d", addr, port)
	}
	return nil
}

// Send queues data at normal priority and flushes opportunistically.
func (d *epollDriver) Send(id api.ConnID, data []byte) error {
	return d.send(id, data, false)
}

// LowPrioritySend queues data behind all normal-priority traffic.
func (d *epollDriver) LowPrioritySend(id api.ConnID, data []byte) error {
	return d.send(id, data, true)
}

func (d *epollDriver) send(id api.ConnID, data []byte, lowPriority bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return api.ErrDriverStopped
	}
	c := d.conns[id]
	if c == nil {
		return api.ErrUnknownSession
	}
	if c.udp {
		// Fire-and-forget: datagrams are never backlogged.
		if _, err := unix.Write(c.fd, data); err != nil && err != unix.EAGAIN {
			return errors.Wrap(err, "udp send")
		}
		return nil
	}
	c.out.push(append([]byte(nil), data...), lowPriority)
	if c.state == stateArmed {
		d.flushConn(c)
		if d.conns[id] == nil {
			// The flush hit a write error and reclaimed the conn.
			return nil
		}
	}
	if !c.out.empty() {
		d.setWrite(c, true)
		d.pump.emit(api.Event{Kind: api.EventWarning, ID: c.id, Size: c.out.pending()})
	}
	return nil
}

// flushConn drains the backlog as far as the kernel allows. Caller holds
// d.mu.
func (d *epollDriver) flushConn(c *conn) {
	done, err := c.out.flush(func(p []byte) (int, error) {
		n, err := unix.Write(c.fd, p)
		if n < 0 {
			n = 0
		}
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return n, nil
		}
		return n, err
	})
	if err != nil {
		log.Printf("[driver] write fd %d: %v", c.fd, err)
		d.failConn(c, err.Error())
		return
	}
	if done {
		d.setWrite(c, false)
		if c.state == stateClosing {
			d.finishClose(c)
		}
	}
}

// failConn reports a descriptor failure and reclaims it. Caller holds
// d.mu.
func (d *epollDriver) failConn(c *conn, msg string) {
	d.pump.emit(api.Event{Kind: api.EventError, ID: c.id, Err: msg})
	d.teardown(c)
}

// finishClose completes a requested close once the backlog drained.
// Caller holds d.mu.
func (d *epollDriver) finishClose(c *conn) {
	d.teardown(c)
	d.pump.emit(api.Event{Kind: api.EventClosed, ID: c.id})
}

// Close requests teardown; pending outbound bytes are flushed first.
func (d *epollDriver) Close(id api.ConnID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := d.conns[id]
	if c == nil {
		return
	}
	if c.udp || c.state != stateArmed || c.out.empty() {
		d.finishClose(c)
		return
	}
	c.state = stateClosing
	d.setWrite(c, true)
}

// Shutdown forces the descriptor down without draining the backlog.
func (d *epollDriver) Shutdown(id api.ConnID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := d.conns[id]
	if c == nil {
		return
	}
	_ = unix.Shutdown(c.fd, unix.SHUT_RDWR)
	d.teardown(c)
}

// Events returns the event stream consumed by the dispatcher.
func (d *epollDriver) Events() <-chan api.Event {
	return d.pump.out
}

// Stop closes every descriptor and ends the loop; the events channel is
// closed once the backlog settles.
func (d *epollDriver) Stop() error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	d.mu.Unlock()
	var one [8]byte
	one[7] = 1
	_, err := unix.Write(d.wakefd, one[:])
	return errors.Wrap(err, "wake poll loop")
}

// loop is the single polling goroutine.
func (d *epollDriver) loop() {
	defer d.pump.close()
	evs := make([]unix.EpollEvent, d.cfg.MaxEpollEvents)
	readBuf := make([]byte, d.cfg.ReadBufferSize)
	for {
		n, err := unix.EpollWait(d.epfd, evs, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			log.Printf("[driver] epoll wait: %v", err)
			return
		}
		for i := 0; i < n; i++ {
			fd := int(evs[i].Fd)
			if fd == d.wakefd {
				if d.drainWake() {
					return
				}
				continue
			}
			d.handleFD(fd, evs[i].Events, readBuf)
		}
	}
}

// drainWake consumes the eventfd and performs final cleanup when the
// driver is stopping. It reports whether the loop should exit.
func (d *epollDriver) drainWake() bool {
	var buf [8]byte
	_, _ = unix.Read(d.wakefd, buf[:])
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.stopped {
		return false
	}
	for _, c := range d.conns {
		d.teardown(c)
	}
	unix.Close(d.wakefd)
	unix.Close(d.epfd)
	return true
}

// handleFD routes one readiness notification.
func (d *epollDriver) handleFD(fd int, events uint32, readBuf []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := d.byFD[fd]
	if c == nil {
		return
	}
	switch {
	case c.state == stateConnecting:
		d.handleConnecting(c, events)
	case c.state == stateListening:
		d.handleAccept(c)
	case c.udp:
		d.handleUDPRead(c, readBuf)
	default:
		d.handleStream(c, events, readBuf)
	}
}

// handleConnecting resolves a pending non-blocking connect. Caller holds
// d.mu.
func (d *epollDriver) handleConnecting(c *conn, events uint32) {
	soerr, err := unix.GetsockoptInt(c.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		d.failConn(c, err.Error())
		return
	}
	if soerr != 0 {
		d.failConn(c, unix.Errno(soerr).Error())
		return
	}
	if events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
		d.failConn(c, "connection failed")
		return
	}
	c.state = stateArmed
	d.setWrite(c, false)
	if sa, err := unix.Getpeername(c.fd); err == nil {
		c.addr = sockaddrString(sa)
	}
	d.pump.emit(api.Event{Kind: api.EventConnect, ID: c.id, Addr: c.addr})
}

// handleAccept drains the accept backlog. Accepted descriptors stay
// unarmed until the owner starts them. Caller holds d.mu.
func (d *epollDriver) handleAccept(c *conn) {
	for {
		nfd, sa, err := unix.Accept4(c.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if err != unix.EAGAIN && err != unix.EWOULDBLOCK {
				log.Printf("[driver] accept on fd %d: %v", c.fd, err)
			}
			return
		}
		_ = unix.SetsockoptInt(nfd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
		nc := &conn{fd: nfd, id: d.allocID(), state: stateIdle, out: newSendQueue(),
			addr: sockaddrString(sa)}
		d.register(nc)
		d.pump.emit(api.Event{Kind: api.EventAccept, ID: c.id, NewID: nc.id, Addr: nc.addr})
	}
}

// handleUDPRead drains inbound datagrams. Caller holds d.mu.
func (d *epollDriver) handleUDPRead(c *conn, readBuf []byte) {
	for {
		n, sa, err := unix.Recvfrom(c.fd, readBuf, 0)
		if err != nil {
			if err != unix.EAGAIN && err != unix.EWOULDBLOCK {
				log.Printf("[driver] recvfrom fd %d: %v", c.fd, err)
			}
			return
		}
		data := append([]byte(nil), readBuf[:n]...)
		d.pump.emit(api.Event{Kind: api.EventUDPData, ID: c.id, Data: data, Addr: sockaddrString(sa)})
	}
}

// handleStream services read/write readiness on an established
// connection. Caller holds d.mu.
func (d *epollDriver) handleStream(c *conn, events uint32, readBuf []byte) {
	if events&unix.EPOLLOUT != 0 {
		d.flushConn(c)
		if d.byFD[c.fd] == nil {
			return // the flush tore the conn down
		}
	}
	if events&(unix.EPOLLIN|unix.EPOLLRDHUP) == 0 {
		if events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			d.failConn(c, "descriptor error")
		}
		return
	}
	for {
		n, err := unix.Read(c.fd, readBuf)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			d.failConn(c, err.Error())
			return
		}
		if n == 0 {
			// Peer closed the stream.
			d.teardown(c)
			d.pump.emit(api.Event{Kind: api.EventClosed, ID: c.id})
			return
		}
		data := append([]byte(nil), readBuf[:n]...)
		d.pump.emit(api.Event{Kind: api.EventData, ID: c.id, Data: data})
	}
}

// resolveSockaddr turns host/port into a stream or datagram sockaddr.
func resolveSockaddr(host string, port int) (unix.Sockaddr, int, error) {
	if host == "" {
		return &unix.SockaddrInet4{Port: port}, unix.AF_INET, nil
	}
	addr, err := net.ResolveIPAddr("ip", host)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "resolve %s", host)
	}
	return ipSockaddr(addr.IP, port)
}

func ipSockaddr(ip net.IP, port int) (unix.Sockaddr, int, error) {
	if ip4 := ip.To4(); ip4 != nil {
		sa := &unix.SockaddrInet4{Port: port}
		copy(sa.Addr[:], ip4)
		return sa, unix.AF_INET, nil
	}
	ip6 := ip.To16()
	if ip6 == nil {
		return nil, 0, errors.Errorf("unsupported address %s", ip)
	}
	sa := &unix.SockaddrInet6{Port: port}
	copy(sa.Addr[:], ip6)
	return sa, unix.AF_INET6, nil
}

// sockaddrString renders a sockaddr as host:port for events.
func sockaddrString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return fmt.Sprintf("%s:%d", net.IP(a.Addr[:]).String(), a.Port)
	case *unix.SockaddrInet6:
		return fmt.Sprintf("[%s]:%d", net.IP(a.Addr[:]).String(), a.Port)
	}
	return ""
}
