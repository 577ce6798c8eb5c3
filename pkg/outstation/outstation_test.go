package outstation

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"avaneesh/dnp3-outstation/pkg/app"
	"avaneesh/dnp3-outstation/pkg/channel"
	"avaneesh/dnp3-outstation/pkg/types"
)

func startOutstation(t *testing.T, cfg Config, handler CommandHandler) (*Outstation, *pipeListener) {
	t.Helper()
	l := newPipeListener()
	o, err := New(cfg, handler, nil, WithListener(func(Config) (channel.Listener, error) { return l, nil }))
	require.NoError(t, err)
	require.NoError(t, o.Start())
	t.Cleanup(func() { o.Shutdown() })
	return o, l
}

func connect(t *testing.T, cfg Config, l *pipeListener) *testMaster {
	return newTestMaster(t, l.dial(t), cfg)
}

func TestOutstation_ExampleScenario(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Points = map[types.PointClass]PointConfig{
		types.PointClassAnalog: {Count: 5, EventClass: 1},
	}
	o, l := startOutstation(t, cfg, nil)

	snap, err := o.ApplyUpdate(types.PointClassAnalog, 2, 3.14)
	require.NoError(t, err)
	assert.Equal(t, 3.14, snap["Analog"]["2"])
	assert.Equal(t, 3.14, o.DBSnapshot()["Analog"]["2"])
	assert.Len(t, o.DBSnapshot(), 1)

	m := connect(t, cfg, l)
	assert.False(t, o.IsConnected())

	resp := m.request(app.BuildReadRequest(0, app.BuildClassRead(app.Class0)))
	assert.True(t, o.IsConnected())

	require.Len(t, resp.Blocks, 1)
	block := resp.Blocks[0]
	assert.Equal(t, app.GroupAnalogInput, block.Header.Group)
	assert.Equal(t, app.AnalogInputFloat, block.Header.Variation)
	require.Len(t, block.Objects, 5)
	for i, obj := range block.Objects {
		assert.Equal(t, uint32(i), obj.Index)
		p, err := app.DecodePoint(block.Header.Group, block.Header.Variation, obj.Data)
		require.NoError(t, err)
		if i == 2 {
			assert.InDelta(t, 3.14, p.Value, 1e-6)
			assert.True(t, p.Flags.IsOnline())
		} else {
			assert.Equal(t, 0.0, p.Value)
			assert.True(t, p.Flags.HasRestart())
		}
	}

	assert.True(t, resp.APDU.IIN.HasDeviceRestart())
	assert.NotZero(t, resp.APDU.IIN.IIN1&types.IIN1Class1Events)
	assert.False(t, resp.APDU.CON)
}

func TestOutstation_RangeRead(t *testing.T) {
	cfg := DefaultConfig()
	o, l := startOutstation(t, cfg, nil)
	_, err := o.ApplyUpdate(types.PointClassCounter, 4, uint32(77))
	require.NoError(t, err)

	m := connect(t, cfg, l)
	resp := m.request(app.BuildReadRequest(0, app.BuildRangeRead(app.GroupCounter, 0, 3, 5)))
	block := findBlock(resp, app.GroupCounter)
	require.NotNil(t, block)
	require.Len(t, block.Objects, 3)
	assert.Equal(t, uint32(4), block.Objects[1].Index)
	p, err := app.DecodePoint(app.GroupCounter, block.Header.Variation, block.Objects[1].Data)
	require.NoError(t, err)
	assert.Equal(t, uint32(77), p.Value)

	resp = m.request(app.BuildReadRequest(1, app.BuildRangeRead(app.GroupCounter, 0, 8, 12)))
	assert.True(t, resp.APDU.IIN.HasParameterError())
	assert.Empty(t, resp.Blocks)
}

func TestOutstation_ZeroCountRead(t *testing.T) {
	cfg := DefaultConfig()
	_, l := startOutstation(t, cfg, nil)
	m := connect(t, cfg, l)

	// g30v0, qualifier 0x07, count 0
	resp := m.request(app.BuildReadRequest(0, []byte{app.GroupAnalogInput, 0x00, 0x07, 0x00}))
	assert.Empty(t, resp.Blocks)
	assert.Empty(t, resp.APDU.Objects)
	assert.False(t, resp.APDU.IIN.HasParameterError())
}

func TestOutstation_UnsupportedRequests(t *testing.T) {
	cfg := DefaultConfig()
	_, l := startOutstation(t, cfg, nil)
	m := connect(t, cfg, l)

	resp := m.request(app.NewRequestAPDU(app.FuncImmediateFreeze, 0, nil))
	assert.NotZero(t, resp.APDU.IIN.IIN2&types.IIN2NoFuncCodeSupport)

	resp = m.request(app.BuildReadRequest(1, []byte{0x63, 0x01, 0x06}))
	assert.NotZero(t, resp.APDU.IIN.IIN2&types.IIN2ObjectUnknown)

	// the session survives malformed requests
	resp = m.request(app.BuildReadRequest(2, app.BuildClassRead(app.Class0)))
	assert.Zero(t, resp.APDU.IIN.IIN2&(types.IIN2ObjectUnknown|types.IIN2NoFuncCodeSupport))
}

func TestOutstation_RestartAndTimeSync(t *testing.T) {
	cfg := DefaultConfig()
	o, l := startOutstation(t, cfg, nil)
	m := connect(t, cfg, l)

	resp := m.request(app.BuildClearRestartRequest(0))
	assert.False(t, resp.APDU.IIN.HasDeviceRestart())
	assert.NotZero(t, resp.APDU.IIN.IIN1&types.IIN1NeedTime)

	synced := time.Now().Add(time.Hour)
	resp = m.request(app.BuildTimeSyncRequest(1, synced))
	assert.Zero(t, resp.APDU.IIN.IIN1&types.IIN1NeedTime)
	assert.InDelta(t, synced.UnixMilli(), int64(o.now()), float64(time.Second.Milliseconds()))

	resp = m.request(app.BuildColdRestartRequest(2))
	assert.True(t, resp.APDU.IIN.HasDeviceRestart())
	block := findBlock(resp, app.GroupTimeDelay)
	require.NotNil(t, block)
	require.Len(t, block.Objects, 1)
	delay, err := app.DecodeTimeDelay(block.Objects[0].Data)
	require.NoError(t, err)
	assert.Equal(t, uint16(restartDelayMs), delay)
}

func crobStatus(t *testing.T, resp *app.Message) types.CommandStatus {
	t.Helper()
	block := findBlock(resp, app.GroupBinaryOutputCommand)
	require.NotNil(t, block)
	require.Len(t, block.Objects, 1)
	crob, err := app.DecodeCROB(block.Objects[0].Data)
	require.NoError(t, err)
	return crob.Status
}

func TestOutstation_SelectOperate(t *testing.T) {
	cfg := DefaultConfig()
	o, l := startOutstation(t, cfg, nil)
	m := connect(t, cfg, l)

	sel, op := app.BuildSelectOperateRequest(3, 4, app.NewLatchOn())
	assert.Equal(t, types.CommandStatusSuccess, crobStatus(t, m.request(sel)))

	p, err := o.Database().Get(types.PointClassBinaryOutputStatus, 4)
	require.NoError(t, err)
	assert.Equal(t, false, p.Value, "select must not operate")

	assert.Equal(t, types.CommandStatusSuccess, crobStatus(t, m.request(op)))
	p, err = o.Database().Get(types.PointClassBinaryOutputStatus, 4)
	require.NoError(t, err)
	assert.Equal(t, true, p.Value)
	assert.True(t, p.Event)

	// the selection was consumed
	_, again := app.BuildSelectOperateRequest(5, 4, app.NewLatchOn())
	assert.Equal(t, types.CommandStatusNoSelect, crobStatus(t, m.request(again)))
}

func TestOutstation_OperateWithoutSelect(t *testing.T) {
	cfg := DefaultConfig()
	o, l := startOutstation(t, cfg, nil)
	m := connect(t, cfg, l)

	_, op := app.BuildSelectOperateRequest(0, 2, app.NewLatchOn())
	assert.Equal(t, types.CommandStatusNoSelect, crobStatus(t, m.request(op)))

	p, err := o.Database().Get(types.PointClassBinaryOutputStatus, 2)
	require.NoError(t, err)
	assert.Equal(t, false, p.Value)
	assert.False(t, p.Event)
}

func TestOutstation_OperateAfterSelectTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SelectTimeout = metav1.Duration{Duration: 20 * time.Millisecond}
	o, l := startOutstation(t, cfg, nil)
	m := connect(t, cfg, l)

	sel, op := app.BuildSelectOperateRequest(0, 1, app.NewLatchOn())
	assert.Equal(t, types.CommandStatusSuccess, crobStatus(t, m.request(sel)))
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, types.CommandStatusNoSelect, crobStatus(t, m.request(op)))

	p, err := o.Database().Get(types.PointClassBinaryOutputStatus, 1)
	require.NoError(t, err)
	assert.Equal(t, false, p.Value)
}

func TestOutstation_SupersededSelect(t *testing.T) {
	cfg := DefaultConfig()
	o, l := startOutstation(t, cfg, nil)
	m := connect(t, cfg, l)

	first, firstOp := app.BuildSelectOperateRequest(0, 1, app.NewLatchOn())
	assert.Equal(t, types.CommandStatusSuccess, crobStatus(t, m.request(first)))

	second, _ := app.BuildSelectOperateRequest(1, 2, app.NewLatchOn())
	assert.Equal(t, types.CommandStatusSuccess, crobStatus(t, m.request(second)))

	firstOp.SetSequence(2)
	assert.Equal(t, types.CommandStatusNoSelect, crobStatus(t, m.request(firstOp)))

	for _, idx := range []uint16{1, 2} {
		p, err := o.Database().Get(types.PointClassBinaryOutputStatus, idx)
		require.NoError(t, err)
		assert.Equal(t, false, p.Value)
	}
}

func TestOutstation_SelectHeldByOtherSession(t *testing.T) {
	cfg := DefaultConfig()
	_, l := startOutstation(t, cfg, nil)
	a := connect(t, cfg, l)
	b := connect(t, cfg, l)

	sel, _ := app.BuildSelectOperateRequest(0, 6, app.NewLatchOff())
	assert.Equal(t, types.CommandStatusSuccess, crobStatus(t, a.request(sel)))
	assert.Equal(t, types.CommandStatusAlreadyActive, crobStatus(t, b.request(sel)))
}

func TestOutstation_DirectOperate(t *testing.T) {
	cfg := DefaultConfig()
	o, l := startOutstation(t, cfg, nil)
	m := connect(t, cfg, l)

	resp := m.request(app.BuildDirectOperateAnalogRequest(0, 3, types.AnalogOutput{Value: 12.5, Variation: app.AnalogOutputFloat}))
	block := findBlock(resp, app.GroupAnalogOutputCommand)
	require.NotNil(t, block)
	ao, err := app.DecodeAnalogOutput(block.Header.Variation, block.Objects[0].Data)
	require.NoError(t, err)
	assert.Equal(t, types.CommandStatusSuccess, ao.Status)
	assert.Equal(t, 12.5, o.DBSnapshot()["AnalogOutputStatus"]["3"])

	// index outside the configured outputs
	assert.Equal(t, types.CommandStatusNotSupported,
		crobStatus(t, m.request(app.BuildDirectOperateCROBRequest(1, 50, app.NewLatchOn()))))
}

func TestOutstation_DirectOperateNoAck(t *testing.T) {
	cfg := DefaultConfig()
	o, l := startOutstation(t, cfg, nil)
	m := connect(t, cfg, l)

	m.send(app.NewRequestAPDU(app.FuncDirectOperateNoAck, 0, app.BuildCROBRequest(app.NewLatchOn(), 5)))
	m.expectNothing(100 * time.Millisecond)
	require.Eventually(t, func() bool {
		return o.DBSnapshot()["BinaryOutputStatus"]["5"] == true
	}, time.Second, 10*time.Millisecond)
}

func TestOutstation_TooManyControls(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxControlsPerRequest = 2
	o, l := startOutstation(t, cfg, nil)
	m := connect(t, cfg, l)

	resp := m.request(app.NewRequestAPDU(app.FuncDirectOperate, 0, app.BuildCROBRequest(app.NewLatchOn(), 0, 1, 2)))
	block := findBlock(resp, app.GroupBinaryOutputCommand)
	require.NotNil(t, block)
	require.Len(t, block.Objects, 3)
	for _, obj := range block.Objects {
		crob, err := app.DecodeCROB(obj.Data)
		require.NoError(t, err)
		assert.Equal(t, types.CommandStatusTooManyOps, crob.Status)
	}
	assert.Equal(t, false, o.DBSnapshot()["BinaryOutputStatus"]["0"])
}

type rejectingHandler struct {
	DefaultCommandHandler
	selected int
}

func (h *rejectingHandler) SelectCROB(crob types.CROB, index uint16) types.CommandStatus {
	h.selected++
	return types.CommandStatusOutOfRange
}

func TestOutstation_CustomHandler(t *testing.T) {
	cfg := DefaultConfig()
	h := &rejectingHandler{}
	_, l := startOutstation(t, cfg, h)
	m := connect(t, cfg, l)

	sel, op := app.BuildSelectOperateRequest(0, 0, app.NewLatchOn())
	assert.Equal(t, types.CommandStatusOutOfRange, crobStatus(t, m.request(sel)))
	assert.Equal(t, types.CommandStatusNoSelect, crobStatus(t, m.request(op)))
	assert.Equal(t, 1, h.selected)
}

func TestOutstation_EventPollConfirm(t *testing.T) {
	cfg := DefaultConfig()
	o, l := startOutstation(t, cfg, nil)
	m := connect(t, cfg, l)

	_, err := o.ApplyUpdate(types.PointClassAnalog, 1, 42.0)
	require.NoError(t, err)
	_, err = o.ApplyUpdate(types.PointClassBinary, 0, true)
	require.NoError(t, err)

	resp := m.request(app.BuildEventPollRequest(0))
	assert.True(t, resp.APDU.CON)
	require.Len(t, resp.Blocks, 2)
	assert.Equal(t, app.GroupAnalogInputEvent, resp.Blocks[0].Header.Group)
	assert.Equal(t, app.GroupBinaryInputEvent, resp.Blocks[1].Header.Group)
	assert.Equal(t, uint32(1), resp.Blocks[0].Objects[0].Index)
	// the reported events no longer count as pending
	assert.Zero(t, resp.APDU.IIN.IIN1&types.IIN1Class1Events)

	m.send(app.NewConfirmAPDU(0, false))
	require.Eventually(t, func() bool {
		return !o.events.HasEvents()
	}, time.Second, 10*time.Millisecond)

	p, err := o.Database().Get(types.PointClassAnalog, 1)
	require.NoError(t, err)
	assert.False(t, p.Event)

	resp = m.request(app.BuildEventPollRequest(1))
	assert.Empty(t, resp.Blocks)
	assert.False(t, resp.APDU.CON)
}

func TestOutstation_EventsReleasedWithoutConfirm(t *testing.T) {
	cfg := DefaultConfig()
	o, l := startOutstation(t, cfg, nil)
	m := connect(t, cfg, l)

	_, err := o.ApplyUpdate(types.PointClassCounter, 0, uint32(5))
	require.NoError(t, err)

	resp := m.request(app.BuildEventPollRequest(0))
	require.Len(t, resp.Blocks, 1)

	// a new request abandons the unconfirmed response, so the event is sent again
	resp = m.request(app.BuildEventPollRequest(1))
	require.Len(t, resp.Blocks, 1)
	assert.Equal(t, app.GroupCounterEvent, resp.Blocks[0].Header.Group)
}

func TestOutstation_UnsolicitedConfirmed(t *testing.T) {
	cfg := DefaultConfig()
	o, l := startOutstation(t, cfg, nil)
	m := connect(t, cfg, l)

	resp := m.request(app.BuildEnableUnsolicitedRequest(0, app.Class1, app.Class2, app.Class3))
	assert.Zero(t, resp.APDU.IIN.IIN2)

	_, err := o.ApplyUpdate(types.PointClassAnalog, 0, 7.5)
	require.NoError(t, err)

	unsol := m.receive()
	assert.Equal(t, app.FuncUnsolicitedResponse, unsol.Function())
	assert.True(t, unsol.APDU.UNS)
	assert.True(t, unsol.APDU.CON)
	assert.Equal(t, uint8(0), unsol.APDU.Sequence)
	require.NotNil(t, findBlock(unsol, app.GroupAnalogInputEvent))

	m.send(app.NewConfirmAPDU(unsol.APDU.Sequence, true))
	require.Eventually(t, func() bool { return !o.events.HasEvents() }, time.Second, 10*time.Millisecond)

	_, err = o.ApplyUpdate(types.PointClassAnalog, 0, 8.5)
	require.NoError(t, err)
	next := m.receive()
	assert.Equal(t, uint8(1), next.APDU.Sequence)
}

func TestOutstation_UnsolicitedRetriesThenCloses(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UnsolicitedConfirmTimeout = metav1.Duration{Duration: 30 * time.Millisecond}
	cfg.UnsolicitedRetries = 2
	o, l := startOutstation(t, cfg, nil)
	m := connect(t, cfg, l)

	m.request(app.BuildEnableUnsolicitedRequest(0, app.Class1))
	require.True(t, o.IsConnected())

	_, err := o.ApplyUpdate(types.PointClassBinary, 3, true)
	require.NoError(t, err)

	var sent []*app.Message
	for i := 0; i < 1+cfg.UnsolicitedRetries; i++ {
		sent = append(sent, m.receive())
	}
	for _, msg := range sent {
		assert.Equal(t, app.FuncUnsolicitedResponse, msg.Function())
		assert.Equal(t, sent[0].APDU.Sequence, msg.APDU.Sequence)
	}

	require.NoError(t, m.conn.SetReadDeadline(time.Now().Add(ioTimeout)))
	_, _, err = m.reader.ReadFrame()
	assert.ErrorIs(t, err, io.EOF)

	require.Eventually(t, func() bool {
		return !o.IsConnected() && len(o.Sessions()) == 0
	}, time.Second, 10*time.Millisecond)
	// events survive the session for the next master
	assert.True(t, o.events.HasEvents())
	assert.NotZero(t, o.events.Pending()&app.Class1)
}

func TestOutstation_UnsolicitedNotAllowed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowUnsolicited = false
	_, l := startOutstation(t, cfg, nil)
	m := connect(t, cfg, l)

	resp := m.request(app.BuildEnableUnsolicitedRequest(0, app.Class1))
	assert.NotZero(t, resp.APDU.IIN.IIN2&types.IIN2NoFuncCodeSupport)
}

func TestOutstation_RepeatedRequest(t *testing.T) {
	cfg := DefaultConfig()
	o, l := startOutstation(t, cfg, nil)
	m := connect(t, cfg, l)

	var ops atomic.Int32
	o.Database().OnChange(func() { ops.Inc() })

	req := app.BuildDirectOperateCROBRequest(4, 0, app.NewLatchOn())
	first := m.request(req)
	second := m.request(req)
	assert.Equal(t, first.APDU.Objects, second.APDU.Objects)
	require.Eventually(t, func() bool { return ops.Load() == 1 }, time.Second, 10*time.Millisecond)
}

func TestOutstation_WrongMasterIgnored(t *testing.T) {
	cfg := DefaultConfig()
	_, l := startOutstation(t, cfg, nil)

	other := cfg
	other.MasterAddress = 99
	m := connect(t, other, l)
	m.send(app.BuildReadRequest(0, app.BuildClassRead(app.Class0)))
	m.expectNothing(100 * time.Millisecond)
}

func TestOutstation_SessionsListing(t *testing.T) {
	cfg := DefaultConfig()
	o, l := startOutstation(t, cfg, nil)
	m := connect(t, cfg, l)
	m.request(app.BuildReadRequest(0, app.BuildClassRead(app.Class0)))

	sessions := o.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, SessionActive, sessions[0].State)
	assert.Equal(t, "master", sessions[0].Remote)
	assert.Equal(t, cfg.MasterAddress, sessions[0].Master)
	assert.NotZero(t, sessions[0].Link.LinkFramesRx)
	assert.NotZero(t, sessions[0].Transport.TxFragments)
}

func TestOutstation_Lifecycle(t *testing.T) {
	l := newPipeListener()
	o, err := New(DefaultConfig(), nil, nil, WithListener(func(Config) (channel.Listener, error) { return l, nil }))
	require.NoError(t, err)
	assert.Equal(t, StateIdle, o.State())

	_, err = o.ApplyUpdate(types.PointClassAnalog, 0, 1.0)
	require.NoError(t, err, "updates are accepted before start")

	require.NoError(t, o.Start())
	assert.ErrorIs(t, o.Start(), ErrAlreadyStarted)
	assert.Equal(t, pipeAddr("outstation"), o.Addr())

	conn := l.dial(t)
	require.NoError(t, o.Shutdown())
	require.NoError(t, o.Shutdown())
	assert.Equal(t, StateStopped, o.State())
	assert.Empty(t, o.Sessions())

	// the session's connection was closed
	_, err = conn.Read(make([]byte, 1))
	assert.True(t, errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe), "read after shutdown: %v", err)

	_, err = o.ApplyUpdate(types.PointClassAnalog, 0, 2.0)
	assert.ErrorIs(t, err, ErrNotRunning)
	assert.ErrorIs(t, o.Apply(NewUpdateBuilder().UpdateAnalog(0, 1).Build()), ErrNotRunning)
}

func TestOutstation_BindError(t *testing.T) {
	boom := errors.New("address in use")
	o, err := New(DefaultConfig(), nil, nil, WithListener(func(Config) (channel.Listener, error) { return nil, boom }))
	require.NoError(t, err)

	err = o.Start()
	var bindErr *BindError
	require.ErrorAs(t, err, &bindErr)
	assert.Equal(t, "0.0.0.0:20000", bindErr.Addr)
	assert.ErrorIs(t, err, boom)
	assert.False(t, o.IsConnected())
}

func TestOutstation_TCP(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ListenAddress = "127.0.0.1"
	cfg.Port = 0
	o, err := New(cfg, nil, nil)
	require.NoError(t, err)
	require.NoError(t, o.Start())
	defer o.Shutdown()
	require.NotNil(t, o.Addr())
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MasterAddress = cfg.LocalAddress
	cfg.EventBufferSize = 0

	_, err := New(cfg, nil, nil)
	require.Error(t, err)
	agg, ok := err.(utilerrors.Aggregate)
	require.True(t, ok, "expected aggregate, got %T", err)
	require.Len(t, agg.Errors(), 2)

	fields := map[string]bool{}
	for _, e := range agg.Errors() {
		var ce *ConfigError
		require.ErrorAs(t, e, &ce)
		fields[ce.Field] = true
	}
	assert.True(t, fields["masterAddress"])
	assert.True(t, fields["eventBufferSize"])
}
