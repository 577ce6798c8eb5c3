package outstation

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"avaneesh/dnp3-outstation/pkg/app"
	"avaneesh/dnp3-outstation/pkg/channel"
	"avaneesh/dnp3-outstation/pkg/link"
	"avaneesh/dnp3-outstation/pkg/transport"
)

const ioTimeout = 2 * time.Second

type pipeAddr string

func (a pipeAddr) Network() string { return "pipe" }
func (a pipeAddr) String() string  { return string(a) }

// pipeListener hands out in-memory connections created by dial
type pipeListener struct {
	conns  chan net.Conn
	closed chan struct{}
	once   sync.Once
}

func newPipeListener() *pipeListener {
	return &pipeListener{conns: make(chan net.Conn), closed: make(chan struct{})}
}

func (l *pipeListener) Accept(ctx context.Context) (channel.PhysicalChannel, error) {
	select {
	case c := <-l.conns:
		return channel.NewStreamChannel(c, channel.StreamConfig{
			Local:  pipeAddr("outstation"),
			Remote: pipeAddr("master"),
		}), nil
	case <-l.closed:
		return nil, net.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *pipeListener) Addr() net.Addr { return pipeAddr("outstation") }

func (l *pipeListener) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}

func (l *pipeListener) dial(t *testing.T) net.Conn {
	server, client := net.Pipe()
	select {
	case l.conns <- server:
	case <-time.After(ioTimeout):
		t.Fatal("outstation did not accept")
	}
	return client
}

// testMaster speaks just enough DNP3 to drive an outstation in tests
type testMaster struct {
	t      *testing.T
	conn   net.Conn
	reader *link.FrameReader
	reasm  *transport.Reassembler
	txSeq  uint8
	cfg    Config
}

func newTestMaster(t *testing.T, conn net.Conn, cfg Config) *testMaster {
	t.Cleanup(func() { conn.Close() })
	return &testMaster{
		t:      t,
		conn:   conn,
		reader: link.NewFrameReader(conn),
		reasm:  transport.NewReassembler(0),
		cfg:    cfg,
	}
}

func (m *testMaster) send(apdu *app.APDU) {
	m.t.Helper()
	for _, seg := range transport.SegmentData(apdu.Serialize(), m.txSeq, transport.MaxSegmentSize) {
		m.txSeq = (m.txSeq + 1) & transport.TransportSeqMask
		frame, err := link.NewFrame(link.DirectionMasterToOutstation, link.PrimaryFrame, link.FuncUserDataUnconfirmed,
			m.cfg.LocalAddress, m.cfg.MasterAddress, seg.Serialize()).Encode()
		require.NoError(m.t, err)
		require.NoError(m.t, m.conn.SetWriteDeadline(time.Now().Add(ioTimeout)))
		_, err = m.conn.Write(frame)
		require.NoError(m.t, err)
	}
}

func (m *testMaster) receive() *app.Message {
	m.t.Helper()
	require.NoError(m.t, m.conn.SetReadDeadline(time.Now().Add(ioTimeout)))
	for {
		frame, _, err := m.reader.ReadFrame()
		require.NoError(m.t, err)
		require.Equal(m.t, link.DirectionOutstationToMaster, frame.Dir)
		require.Equal(m.t, m.cfg.MasterAddress, frame.Destination)

		seg, err := transport.ParseSegment(frame.UserData)
		require.NoError(m.t, err)
		fragment, err := m.reasm.Process(seg)
		require.NoError(m.t, err)
		if fragment == nil {
			continue
		}
		msg, err := app.ParseResponse(fragment)
		require.NoError(m.t, err)
		return msg
	}
}

// request sends apdu and returns the response
func (m *testMaster) request(apdu *app.APDU) *app.Message {
	m.t.Helper()
	m.send(apdu)
	resp := m.receive()
	require.Equal(m.t, app.FuncResponse, resp.Function())
	require.Equal(m.t, apdu.Sequence, resp.APDU.Sequence)
	return resp
}

// expectNothing fails if a frame arrives within d
func (m *testMaster) expectNothing(d time.Duration) {
	m.t.Helper()
	require.NoError(m.t, m.conn.SetReadDeadline(time.Now().Add(d)))
	_, _, err := m.reader.ReadFrame()
	require.Error(m.t, err)
	var ne net.Error
	require.ErrorAs(m.t, err, &ne)
	require.True(m.t, ne.Timeout(), "expected timeout, got %v", err)
}

func findBlock(msg *app.Message, group uint8) *app.ObjectBlock {
	for i := range msg.Blocks {
		if msg.Blocks[i].Header.Group == group {
			return &msg.Blocks[i]
		}
	}
	return nil
}
