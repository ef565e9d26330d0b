/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package probe

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"

	"github.com/stratalink/netdiscover/pkg/logger"
	"github.com/stratalink/netdiscover/pkg/models"
)

const (
	defaultICMPTimeout   = 2 * time.Second
	defaultIdentifierMod = 65536
	icmpProtocolNumber   = 1
	echoPayload          = "netdiscover-probe"
)

// ICMPPinger sends one echo request per Ping call. It prefers an
// unprivileged datagram ICMP socket (udp4) and falls back to a raw socket
// when the kernel does not allow unprivileged ping for this process.
type ICMPPinger struct {
	timeout    time.Duration
	identifier int
	sequence   atomic.Uint32
	logger     logger.Logger
}

var _ Pinger = (*ICMPPinger)(nil)

// NewICMPPinger creates a pinger with the given per-probe timeout.
func NewICMPPinger(timeout time.Duration, log logger.Logger) *ICMPPinger {
	if timeout == 0 {
		timeout = defaultICMPTimeout
	}

	return &ICMPPinger{
		timeout:    timeout,
		identifier: int(time.Now().UnixNano() % defaultIdentifierMod),
		logger:     log,
	}
}

// Ping issues a bounded-timeout echo request. An unanswered request is a
// valid unreachable result, not an error.
func (p *ICMPPinger) Ping(ctx context.Context, ip string) (*models.ICMPResult, error) {
	target := net.ParseIP(ip)
	if target == nil || target.To4() == nil {
		return nil, ErrInvalidAddress
	}

	conn, dst, err := p.listen(target)
	if err != nil {
		return nil, err
	}

	defer func() {
		if cerr := conn.Close(); cerr != nil {
			p.logger.Debug().Err(cerr).Msg("Failed to close ICMP socket")
		}
	}()

	pc := conn.IPv4PacketConn()
	if pc != nil {
		if cmErr := pc.SetControlMessage(ipv4.FlagTTL, true); cmErr != nil {
			p.logger.Debug().Err(cmErr).Msg("TTL control message unavailable")
		}
	}

	seq := int(p.sequence.Add(1) % defaultIdentifierMod)

	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{
			ID:   p.identifier,
			Seq:  seq,
			Data: []byte(echoPayload),
		},
	}

	wb, err := msg.Marshal(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal echo request: %w", err)
	}

	deadline := time.Now().Add(p.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("failed to set read deadline: %w", err)
	}

	start := time.Now()

	if _, err := conn.WriteTo(wb, dst); err != nil {
		return nil, fmt.Errorf("failed to send echo request: %w", err)
	}

	return p.awaitReply(conn, pc, target, seq, start)
}

// listen opens the ICMP socket, preferring the unprivileged datagram variant.
func (p *ICMPPinger) listen(target net.IP) (*icmp.PacketConn, net.Addr, error) {
	conn, err := icmp.ListenPacket("udp4", "0.0.0.0")
	if err == nil {
		return conn, &net.UDPAddr{IP: target}, nil
	}

	conn, rawErr := icmp.ListenPacket("ip4:icmp", "0.0.0.0")
	if rawErr != nil {
		return nil, nil, fmt.Errorf("failed to open ICMP socket (udp4: %v): %w", err, rawErr)
	}

	return conn, &net.IPAddr{IP: target}, nil
}

// awaitReply reads until the matching echo reply arrives or the deadline
// expires. Replies from other probes sharing the address space are skipped.
func (p *ICMPPinger) awaitReply(
	conn *icmp.PacketConn, pc *ipv4.PacketConn, target net.IP, seq int, start time.Time,
) (*models.ICMPResult, error) {
	rb := make([]byte, 1500)

	for {
		n, ttl, peer, err := readReply(conn, pc, rb)
		if err != nil {
			if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
				return &models.ICMPResult{Reachable: false}, nil
			}

			if os.IsTimeout(err) {
				return &models.ICMPResult{Reachable: false}, nil
			}

			return nil, fmt.Errorf("failed to read echo reply: %w", err)
		}

		if !peerMatches(peer, target) {
			continue
		}

		msg, err := icmp.ParseMessage(icmpProtocolNumber, rb[:n])
		if err != nil {
			continue
		}

		echo, ok := msg.Body.(*icmp.Echo)
		if msg.Type != ipv4.ICMPTypeEchoReply || !ok {
			continue
		}

		// The kernel rewrites the identifier on datagram sockets, so only
		// the sequence number is matched.
		if echo.Seq != seq {
			continue
		}

		return &models.ICMPResult{
			Reachable: true,
			RTT:       time.Since(start),
			TTL:       ttl,
		}, nil
	}
}

func readReply(conn *icmp.PacketConn, pc *ipv4.PacketConn, rb []byte) (n, ttl int, peer net.Addr, err error) {
	if pc != nil {
		var cm *ipv4.ControlMessage

		n, cm, peer, err = pc.ReadFrom(rb)
		if cm != nil {
			ttl = cm.TTL
		}

		return n, ttl, peer, err
	}

	n, peer, err = conn.ReadFrom(rb)

	return n, 0, peer, err
}

func peerMatches(peer net.Addr, target net.IP) bool {
	switch a := peer.(type) {
	case *net.UDPAddr:
		return a.IP.Equal(target)
	case *net.IPAddr:
		return a.IP.Equal(target)
	default:
		return false
	}
}
