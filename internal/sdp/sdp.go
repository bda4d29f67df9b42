// SPDX-License-Identifier: MIT

// Package sdp generates the session description the decoder consumes for the
// RTP/H.264 uplink from the classroom devices.
package sdp

import (
	"fmt"
	"net"

	"github.com/google/renameio/v2"
)

// Describe renders the SDP document for an H.264/RTP/UDP session terminating
// at ip:port (payload type 96, 90 kHz clock).
func Describe(ip string, port int) string {
	return fmt.Sprintf(`v=0
o=- 0 0 IN IP4 %[1]s
s=H264 Low-Latency Stream
c=IN IP4 %[1]s
t=0 0
a=type:broadcast
m=video %[2]d RTP/AVP 96
a=rtpmap:96 H264/90000
a=fmtp:96 profile-level-id=42001f;packetization-mode=1
a=control:track0
`, ip, port)
}

// WriteFile atomically writes the session description to path. The decoder
// may already be watching the path, so a torn write is never acceptable.
func WriteFile(path, ip string, port int) error {
	if err := renameio.WriteFile(path, []byte(Describe(ip, port)), 0o644); err != nil {
		return fmt.Errorf("sdp: write %s: %w", path, err)
	}
	return nil
}

// LocalIP discovers the outbound IPv4 address of this host. No packet is
// sent; the connected UDP socket only resolves the route.
func LocalIP() string {
	conn, err := net.Dial("udp4", "10.255.255.255:1")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return "127.0.0.1"
}
