package main

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"github.com/haolipeng/gopacket/layers"
	"github.com/haolipeng/gopacket/pcapgo"
	"github.com/spf13/cobra"

	"github.com/haolipeng/pwospf_router/pkg/protocol"
	"github.com/haolipeng/pwospf_router/pkg/types"
)

func newDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <file.pcap>",
		Short: "逐帧打印 pcap 文件中的 ARP/IPv4/PWOSPF 摘要",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			return decodePcap(f, cmd.OutOrStdout())
		},
	}
}

func decodePcap(r io.Reader, w io.Writer) error {
	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return fmt.Errorf("failed to read pcap header: %w", err)
	}

	dec := protocol.NewDecoder()
	for n := 1; ; n++ {
		data, ci, err := reader.ReadPacketData()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("frame %d: %w", n, err)
		}
		fmt.Fprintf(w, "%d %s %s\n", n, ci.Timestamp.UTC().Format("15:04:05.000000"), describeFrame(dec, data))
	}
}

func describeFrame(dec *protocol.Decoder, data []byte) string {
	d, err := dec.Decode(data)
	if err != nil {
		return fmt.Sprintf("undecodable (%d bytes): %v", len(data), err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s > %s", d.Ethernet.SrcMAC, d.Ethernet.DstMAC)

	switch {
	case d.HasARP:
		op := "request"
		if d.ARP.Operation == layers.ARPReply {
			op = "reply"
		}
		fmt.Fprintf(&b, " arp %s %s (%s) > %s",
			op, ipString(d.ARP.SourceProtAddress), net.HardwareAddr(d.ARP.SourceHwAddress), ipString(d.ARP.DstProtAddress))
	case d.HasIPv4:
		ip := &d.IPv4
		fmt.Fprintf(&b, " ip %s > %s ttl %d", ip.SrcIP, ip.DstIP, ip.TTL)
		switch {
		case d.HasICMPv4:
			fmt.Fprintf(&b, " icmp %s", d.ICMPv4.TypeCode)
		case ip.Protocol == protocol.IPProtocol:
			b.WriteString(" ")
			b.WriteString(describePWOSPF(ip.Payload))
		default:
			fmt.Fprintf(&b, " proto %s len %d", ip.Protocol, len(ip.Payload))
		}
	default:
		fmt.Fprintf(&b, " ethertype %s len %d", d.Ethernet.EthernetType, len(data))
	}
	return b.String()
}

func describePWOSPF(payload []byte) string {
	p, err := protocol.DecodePWOSPF(payload)
	if err != nil {
		return fmt.Sprintf("pwospf invalid: %v", err)
	}

	var b strings.Builder
	rid := types.Uint32ToIP(p.RouterID)
	switch p.Type {
	case protocol.TypeHello:
		fmt.Fprintf(&b, "pwospf hello rid %s mask %s interval %d",
			rid, types.Uint32ToIP(p.Hello.NetworkMask), p.Hello.HelloInterval)
	case protocol.TypeLSU:
		fmt.Fprintf(&b, "pwospf lsu rid %s seq %d ttl %d ads %d",
			rid, p.LSU.Sequence, p.LSU.TTL, len(p.LSU.Advertisements))
		for _, a := range p.LSU.Advertisements {
			fmt.Fprintf(&b, " [%s/%s %s]",
				types.Uint32ToIP(a.Subnet), types.Uint32ToIP(a.Mask), types.Uint32ToIP(a.RouterID))
		}
	default:
		fmt.Fprintf(&b, "pwospf type %d rid %s", p.Type, rid)
	}
	if err := p.Validate(payload); err != nil {
		fmt.Fprintf(&b, " (%v)", err)
	}
	return b.String()
}

func ipString(b []byte) string {
	if len(b) != 4 {
		return fmt.Sprintf("%x", b)
	}
	return fmt.Sprintf("%d.%d.%d.%d", b[0], b[1], b[2], b[3])
}
