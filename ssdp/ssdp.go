// Package ssdp implements the SSDP announcer/responder: multicast group
// join on 239.255.255.250:1900, periodic NOTIFY ssdp:alive announcements,
// M-SEARCH response, and ssdp:byebye on shutdown.
//
// IPv4 only: the server this package serves has no IPv6 requirement.
package ssdp

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/anacrolix/log"
	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"
)

// AddrString is the SSDP multicast group and port, IPv4 only.
const AddrString = "239.255.255.250:1900"

// DefaultNotifyInterval is how often ssdp:alive NOTIFYs repeat, per the
// 180 second cadence the source uses.
const DefaultNotifyInterval = 180 * time.Second

// Server runs the SSDP announcer/responder for a single network interface.
type Server struct {
	Interface net.Interface
	// Devices and Services are the values sent as NT/USN tuples, in
	// addition to the implicit "upnp:rootdevice" and "uuid:{UUID}" tuples.
	Devices  []string
	Services []string
	// Location returns the device description URL to advertise for the
	// given outbound IP.
	Location func(ip net.IP) string
	// Server is the HTTP Server header value to advertise.
	Server string
	// UUID is the server's root device UUID (without the "uuid:" prefix).
	UUID string
	// NotifyInterval overrides DefaultNotifyInterval if non-zero.
	NotifyInterval time.Duration
	Logger         log.Logger

	conn     *net.UDPConn
	pc       *ipv4.PacketConn
	addr     *net.UDPAddr
	ownIP    net.IP
	closed   chan struct{}
	closeMu  sync.Once
}

// usnTuples returns the notification-type/USN pairs announced for every
// alive/byebye/M-SEARCH-matching round, in the fixed order the protocol
// requires.
func (s *Server) usnTuples() []struct{ NT, USN string } {
	uuid := "uuid:" + s.UUID
	tuples := []struct{ NT, USN string }{
		{"upnp:rootdevice", uuid + "::upnp:rootdevice"},
		{uuid, uuid},
	}
	for _, d := range s.Devices {
		tuples = append(tuples, struct{ NT, USN string }{d, uuid + "::" + d})
	}
	for _, svc := range s.Services {
		tuples = append(tuples, struct{ NT, USN string }{svc, uuid + "::" + svc})
	}
	return tuples
}

// Init binds the multicast socket and joins the SSDP group on s.Interface.
// It must be called before Serve.
func (s *Server) Init() error {
	addr, err := net.ResolveUDPAddr("udp4", AddrString)
	if err != nil {
		return err
	}
	s.addr = addr

	ip, err := interfaceIPv4(s.Interface)
	if err != nil {
		return err
	}
	s.ownIP = ip

	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}
	pconn, err := lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf(":%d", addr.Port))
	if err != nil {
		return err
	}
	conn := pconn.(*net.UDPConn)
	s.conn = conn

	p := ipv4.NewPacketConn(conn)
	if err := p.JoinGroup(&s.Interface, &net.UDPAddr{IP: addr.IP}); err != nil {
		conn.Close()
		return fmt.Errorf("joining multicast group on %s: %w", s.Interface.Name, err)
	}
	if err := p.SetMulticastLoopback(false); err != nil {
		s.Logger.Levelf(log.Debug, "could not disable multicast loopback: %s", err)
	}
	if err := p.SetMulticastInterface(&s.Interface); err != nil {
		s.Logger.Levelf(log.Debug, "could not set multicast interface: %s", err)
	}
	s.pc = p
	s.closed = make(chan struct{})
	return nil
}

// Serve runs the alive-notify loop and the M-SEARCH responder loop until
// Close is called. It blocks.
func (s *Server) Serve() error {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.aliveLoop()
	}()
	errCh := make(chan error, 1)
	go func() {
		defer wg.Done()
		errCh <- s.responderLoop()
	}()
	wg.Wait()
	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

func (s *Server) interval() time.Duration {
	if s.NotifyInterval > 0 {
		return s.NotifyInterval
	}
	return DefaultNotifyInterval
}

func (s *Server) aliveLoop() {
	s.sendNotify("ssdp:alive")
	t := time.NewTicker(s.interval())
	defer t.Stop()
	for {
		select {
		case <-t.C:
			s.sendNotify("ssdp:alive")
		case <-s.closed:
			return
		}
	}
}

func (s *Server) sendNotify(nts string) {
	location := s.Location(s.ownIP)
	for _, tuple := range s.usnTuples() {
		pkt := s.notifyPacket(tuple.NT, tuple.USN, nts, location)
		if _, err := s.conn.WriteToUDP(pkt, s.addr); err != nil {
			s.Logger.Levelf(log.Debug, "notify send failed on %s: %s", s.Interface.Name, err)
		}
	}
}

func (s *Server) notifyPacket(nt, usn, nts, location string) []byte {
	var b bytes.Buffer
	b.WriteString("NOTIFY * HTTP/1.1\r\n")
	fmt.Fprintf(&b, "HOST: %s\r\n", AddrString)
	fmt.Fprintf(&b, "CACHE-CONTROL: max-age=1800\r\n")
	fmt.Fprintf(&b, "LOCATION: %s\r\n", location)
	fmt.Fprintf(&b, "NT: %s\r\n", nt)
	fmt.Fprintf(&b, "NTS: %s\r\n", nts)
	fmt.Fprintf(&b, "SERVER: %s\r\n", s.Server)
	fmt.Fprintf(&b, "USN: %s\r\n", usn)
	b.WriteString("\r\n")
	return b.Bytes()
}

func (s *Server) searchResponsePacket(usn, location string) []byte {
	var b bytes.Buffer
	b.WriteString("HTTP/1.1 200 OK\r\n")
	fmt.Fprintf(&b, "CACHE-CONTROL: max-age=1800\r\n")
	fmt.Fprintf(&b, "DATE: %s\r\n", time.Now().UTC().Format(http11Date))
	fmt.Fprintf(&b, "EXT:\r\n")
	fmt.Fprintf(&b, "LOCATION: %s\r\n", location)
	fmt.Fprintf(&b, "SERVER: %s\r\n", s.Server)
	st := usn
	if idx := strings.Index(usn, "::"); idx >= 0 {
		st = usn[idx+2:]
	}
	fmt.Fprintf(&b, "ST: %s\r\n", st)
	fmt.Fprintf(&b, "USN: %s\r\n", usn)
	b.WriteString("\r\n")
	return b.Bytes()
}

const http11Date = "Mon, 02 Jan 2006 15:04:05 GMT"

// responderLoop reads inbound datagrams and answers M-SEARCH requests.
func (s *Server) responderLoop() error {
	buf := make([]byte, 2048)
	for {
		n, _, from, err := s.pc.ReadFrom(buf)
		if err != nil {
			select {
			case <-s.closed:
				return nil
			default:
				return err
			}
		}
		udpFrom, ok := from.(*net.UDPAddr)
		if !ok {
			continue
		}
		s.handleDatagram(buf[:n], udpFrom)
	}
}

func (s *Server) handleDatagram(data []byte, from *net.UDPAddr) {
	text := string(data)
	if !strings.HasPrefix(strings.ToUpper(text), "M-SEARCH") {
		return
	}
	st := ""
	for _, line := range strings.Split(text, "\r\n") {
		if idx := strings.Index(strings.ToUpper(line), "ST:"); idx == 0 {
			st = strings.TrimSpace(line[3:])
			break
		}
	}
	if st == "" {
		return
	}
	location := s.Location(s.ownIP)
	for _, tuple := range s.matchingTuples(st) {
		pkt := s.searchResponsePacket(tuple.USN, location)
		if _, err := s.conn.WriteToUDP(pkt, from); err != nil {
			s.Logger.Levelf(log.Debug, "search response send failed: %s", err)
		}
	}
}

// matchingTuples returns the USN tuples that should answer a given ST
// value, in priority order: ssdp:all matches everything, an exact NT match
// matches only that tuple, a bare UUID search matches the device UUID
// tuple, and the Microsoft MediaReceiverRegistrar service type is answered
// even though it isn't advertised in NOTIFY, for compatibility.
func (s *Server) matchingTuples(st string) (ret []struct{ NT, USN string }) {
	uuid := "uuid:" + s.UUID
	if st == "ssdp:all" {
		return s.usnTuples()
	}
	if st == uuid {
		return []struct{ NT, USN string }{{uuid, uuid}}
	}
	if st == "urn:microsoft.com:service:X_MS_MediaReceiverRegistrar:1" {
		return []struct{ NT, USN string }{{st, uuid + "::" + st}}
	}
	for _, tuple := range s.usnTuples() {
		if tuple.NT == st {
			return []struct{ NT, USN string }{tuple}
		}
	}
	return nil
}

// Close sends ssdp:byebye and releases the socket.
func (s *Server) Close() (err error) {
	s.closeMu.Do(func() {
		s.sendNotify("ssdp:byebye")
		close(s.closed)
		err = s.conn.Close()
	})
	return
}

func interfaceIPv4(iface net.Interface) (net.IP, error) {
	addrs, err := iface.Addrs()
	if err != nil {
		return nil, err
	}
	for _, a := range addrs {
		var ip net.IP
		switch v := a.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip4 := ip.To4(); ip4 != nil {
			return ip4, nil
		}
	}
	return nil, fmt.Errorf("no IPv4 address on interface %s", iface.Name)
}
