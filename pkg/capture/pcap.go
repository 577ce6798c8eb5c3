// Package capture records the link frames of outstation sessions as a pcap
// file that Wireshark's DNP3 dissector can read.
package capture

import (
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"go.uber.org/atomic"
	"k8s.io/klog/v2"
)

const snapLen = 65535

var (
	fallbackLocal  = &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 20000}
	fallbackRemote = &net.TCPAddr{IP: net.IPv4(127, 0, 0, 2), Port: 50000}

	localMAC  = net.HardwareAddr{0x00, 0x00, 0x00, 0x00, 0x00, 0x01}
	remoteMAC = net.HardwareAddr{0x00, 0x00, 0x00, 0x00, 0x00, 0x02}
)

type flow struct {
	localSeq  uint32
	remoteSeq uint32
}

// Writer is a channel.FrameTap that wraps every frame in synthetic
// Ethernet/IP/TCP headers. Frames from non-IP channels (serial, pipes) are
// written as 127.0.0.2:50000 -> 127.0.0.1:20000.
type Writer struct {
	mu     sync.Mutex
	w      *pcapgo.Writer
	closer io.Closer
	flows  map[string]*flow
	now    func() time.Time

	packets atomic.Uint64
	errors  atomic.Uint64
}

// NewWriter writes the pcap file header to w
func NewWriter(w io.Writer) (*Writer, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(snapLen, layers.LinkTypeEthernet); err != nil {
		return nil, fmt.Errorf("write pcap header: %w", err)
	}
	return &Writer{w: pw, flows: make(map[string]*flow), now: time.Now}, nil
}

// Create opens path for writing and returns a Writer that closes it
func Create(path string) (*Writer, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create pcap: %w", err)
	}
	w, err := NewWriter(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	w.closer = file
	return w, nil
}

// RecordFrame writes one frame; inbound frames go from remote to local
func (w *Writer) RecordFrame(inbound bool, local, remote net.Addr, frame []byte) {
	l := endpoint(local, fallbackLocal)
	r := endpoint(remote, fallbackRemote)

	w.mu.Lock()
	defer w.mu.Unlock()

	key := l.String() + "|" + r.String()
	f, ok := w.flows[key]
	if !ok {
		f = &flow{localSeq: 1, remoteSeq: 1}
		w.flows[key] = f
	}

	src, dst := l, r
	srcMAC, dstMAC := localMAC, remoteMAC
	seq, ack := f.localSeq, f.remoteSeq
	if inbound {
		src, dst = r, l
		srcMAC, dstMAC = remoteMAC, localMAC
		seq, ack = f.remoteSeq, f.localSeq
	}

	data, err := serialize(src, dst, srcMAC, dstMAC, seq, ack, frame)
	if err == nil {
		err = w.w.WritePacket(gopacket.CaptureInfo{
			Timestamp:     w.now(),
			CaptureLength: len(data),
			Length:        len(data),
		}, data)
	}
	if err != nil {
		w.errors.Inc()
		klog.V(2).InfoS("Failed to write capture packet", "err", err)
		return
	}

	if inbound {
		f.remoteSeq += uint32(len(frame))
	} else {
		f.localSeq += uint32(len(frame))
	}
	w.packets.Inc()
}

// Packets returns the number of frames written
func (w *Writer) Packets() uint64 { return w.packets.Load() }

// Errors returns the number of frames that could not be written
func (w *Writer) Errors() uint64 { return w.errors.Load() }

// Close closes the underlying file when the writer owns it
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closer == nil {
		return nil
	}
	err := w.closer.Close()
	w.closer = nil
	return err
}

func serialize(src, dst *net.TCPAddr, srcMAC, dstMAC net.HardwareAddr, seq, ack uint32, payload []byte) ([]byte, error) {
	buffer := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		FixLengths:       true,
		ComputeChecksums: true,
	}

	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(src.Port),
		DstPort: layers.TCPPort(dst.Port),
		ACK:     true,
		PSH:     true,
		Seq:     seq,
		Ack:     ack,
		Window:  snapLen,
	}

	var err error
	if src4, dst4 := src.IP.To4(), dst.IP.To4(); src4 != nil && dst4 != nil {
		ip := &layers.IPv4{
			Version:  4,
			TTL:      64,
			Protocol: layers.IPProtocolTCP,
			SrcIP:    src4,
			DstIP:    dst4,
		}
		_ = tcp.SetNetworkLayerForChecksum(ip)
		eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv4}
		err = gopacket.SerializeLayers(buffer, opts, eth, ip, tcp, gopacket.Payload(payload))
	} else {
		ip := &layers.IPv6{
			Version:    6,
			HopLimit:   64,
			NextHeader: layers.IPProtocolTCP,
			SrcIP:      src.IP.To16(),
			DstIP:      dst.IP.To16(),
		}
		_ = tcp.SetNetworkLayerForChecksum(ip)
		eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv6}
		err = gopacket.SerializeLayers(buffer, opts, eth, ip, tcp, gopacket.Payload(payload))
	}
	if err != nil {
		return nil, fmt.Errorf("serialize packet: %w", err)
	}
	return buffer.Bytes(), nil
}

// endpoint maps an address onto an IP and port. QUIC sessions keep their
// UDP endpoints.
func endpoint(addr net.Addr, fallback *net.TCPAddr) *net.TCPAddr {
	switch a := addr.(type) {
	case *net.TCPAddr:
		if a.IP != nil {
			return a
		}
	case *net.UDPAddr:
		if a.IP != nil {
			return &net.TCPAddr{IP: a.IP, Port: a.Port}
		}
	}
	return fallback
}
