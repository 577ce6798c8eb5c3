package outstation

import (
	"fmt"
	"time"

	"avaneesh/dnp3-outstation/pkg/app"
	"avaneesh/dnp3-outstation/pkg/types"
)

// result is what a request handler hands back for the response
type result struct {
	blocks []app.ResponseBlock
	iin    types.IIN
	events bool // events were selected and need a confirm
}

func (r *result) fail(iin2 uint8) {
	r.iin.IIN2 |= iin2
}

// handle dispatches a parsed request by function code
func (s *session) handle(msg *app.Message) result {
	switch fc := msg.Function(); fc {
	case app.FuncRead:
		return s.handleRead(msg)
	case app.FuncWrite:
		return s.handleWrite(msg)
	case app.FuncSelect, app.FuncOperate, app.FuncDirectOperate, app.FuncDirectOperateNoAck:
		return s.handleControl(msg)
	case app.FuncEnableUnsolicited, app.FuncDisableUnsolicited:
		return s.handleUnsolicitedMask(msg)
	case app.FuncColdRestart, app.FuncWarmRestart:
		s.log.Info("Session %s: %s requested", s.id, fc)
		s.o.restart.Store(true)
		return result{blocks: []app.ResponseBlock{
			app.NewCountBlock(app.GroupTimeDelay, 2, app.EncodeTimeDelay(restartDelayMs)),
		}}
	case app.FuncDelayMeasurement:
		return result{blocks: []app.ResponseBlock{
			app.NewCountBlock(app.GroupTimeDelay, 2, app.EncodeTimeDelay(0)),
		}}
	default:
		s.log.Debug("Session %s: unsupported function %s", s.id, fc)
		return result{iin: types.IIN{IIN2: types.IIN2NoFuncCodeSupport}}
	}
}

// restartDelayMs is the delay reported in answer to a restart request
const restartDelayMs = 1000

func (s *session) handleRead(msg *app.Message) result {
	var (
		res          result
		static       []app.ResponseBlock
		eventClasses app.ClassField
		eventPoints  []eventRead
	)

	s.o.db.View(func(tables [][]Point) {
		for _, b := range msg.Blocks {
			h := b.Header
			switch h.Group {
			case app.GroupClassData:
				class := app.ClassFromVariation(h.Variation)
				if class == app.Class0 {
					for _, c := range types.AllPointClasses() {
						if len(tables[c]) > 0 {
							static = append(static, staticRange(c, app.VariationAny, tables[c], 0)...)
						}
					}
				} else {
					eventClasses |= class
				}

			case app.GroupTimeDate:
				if h.Variation != 1 && h.Variation != app.VariationAny {
					res.fail(types.IIN2ObjectUnknown)
					continue
				}
				static = append(static, app.NewCountBlock(app.GroupTimeDate, 1, app.EncodeTimeAndDate(s.o.now())))

			default:
				class, event, ok := app.ClassForGroup(h.Group)
				if !ok {
					res.fail(types.IIN2ObjectUnknown)
					continue
				}
				if event {
					enc := app.EventEncoding(class)
					if h.Variation != app.VariationAny && h.Variation != enc.Variation {
						res.fail(types.IIN2ObjectUnknown)
						continue
					}
					limit := 0
					if r, ok := h.Range.(app.CountRange); ok {
						limit = int(r.Count)
					}
					eventPoints = append(eventPoints, eventRead{class: class, limit: limit})
					continue
				}

				blocks, iin2 := readStatic(class, b, tables[class])
				if iin2 != 0 {
					res.fail(iin2)
					continue
				}
				static = append(static, blocks...)
			}
		}
	})

	// events go first so a master sees changes before the integrity data
	var events []*Event
	limit := s.eventLimit()
	if eventClasses != 0 {
		events = s.o.events.Select(s.id, eventClasses, limit)
	}
	for _, r := range eventPoints {
		n := limit - len(events)
		if n <= 0 {
			break
		}
		if r.limit > 0 && r.limit < n {
			n = r.limit
		}
		events = append(events, s.o.events.SelectPoints(s.id, r.class, n)...)
	}
	if len(events) > 0 {
		res.events = true
		res.blocks = append(res.blocks, eventBlocks(events)...)
	}
	res.blocks = append(res.blocks, static...)
	return res
}

type eventRead struct {
	class types.PointClass
	limit int
}

// readStatic answers a static object header of class c
func readStatic(c types.PointClass, b app.ObjectBlock, points []Point) ([]app.ResponseBlock, uint8) {
	h := b.Header
	if !app.SupportsStaticVariation(c, h.Variation) {
		return nil, types.IIN2ObjectUnknown
	}
	if len(points) == 0 {
		return nil, types.IIN2ParameterError
	}

	switch r := h.Range.(type) {
	case app.NoRange:
		return staticRange(c, h.Variation, points, 0), 0

	case app.StartStopRange:
		if r.Start > r.Stop || int(r.Stop) >= len(points) {
			return nil, types.IIN2ParameterError
		}
		return staticRange(c, h.Variation, points[r.Start:r.Stop+1], r.Start), 0

	case app.CountRange:
		if !h.Qualifier.IsIndexed() {
			if int(r.Count) > len(points) {
				return nil, types.IIN2ParameterError
			}
			return staticRange(c, h.Variation, points[:r.Count], 0), 0
		}
		objs := make([]app.Object, 0, len(b.Objects))
		for _, o := range b.Objects {
			if int(o.Index) >= len(points) {
				return nil, types.IIN2ParameterError
			}
			p := points[o.Index]
			data, err := app.EncodeStatic(c, h.Variation, p.Flags, p.Value)
			if err != nil {
				return nil, types.IIN2ObjectUnknown
			}
			objs = append(objs, app.Object{Index: o.Index, Data: data})
		}
		enc := app.StaticEncoding(c)
		return []app.ResponseBlock{app.NewIndexedBlock(enc.Group, variationOr(h.Variation, enc.Variation), objs)}, 0
	}
	return nil, types.IIN2ParameterError
}

// staticRange encodes contiguous points starting at index start
func staticRange(c types.PointClass, variation uint8, points []Point, start uint32) []app.ResponseBlock {
	if len(points) == 0 {
		return nil
	}
	enc := app.StaticEncoding(c)
	values := make([][]byte, 0, len(points))
	for _, p := range points {
		data, err := app.EncodeStatic(c, variation, p.Flags, p.Value)
		if err != nil {
			return nil
		}
		values = append(values, data)
	}
	return []app.ResponseBlock{app.NewRangeBlock(enc.Group, variationOr(variation, enc.Variation), start, values)}
}

func variationOr(v, def uint8) uint8 {
	if v == app.VariationAny {
		return def
	}
	return v
}

// eventBlocks encodes events in order, starting a new block whenever the
// point class changes
func eventBlocks(events []*Event) []app.ResponseBlock {
	var blocks []app.ResponseBlock
	for _, ev := range events {
		enc := app.EventEncoding(ev.Class)
		if n := len(blocks); n == 0 || blocks[n-1].Group != enc.Group {
			blocks = append(blocks, app.NewIndexedBlock(enc.Group, enc.Variation, nil))
		}
		last := &blocks[len(blocks)-1]
		last.Objects = append(last.Objects, app.Object{
			Index: uint32(ev.Index),
			Data:  app.EncodeEvent(ev.Class, ev.Flags, ev.Value, ev.Time),
		})
	}
	return blocks
}

func (s *session) handleWrite(msg *app.Message) result {
	var res result
	for _, b := range msg.Blocks {
		h := b.Header
		switch {
		case h.Group == app.GroupInternalIndications && h.Variation == 1:
			for _, o := range b.Objects {
				if o.Index != app.IINRestartIndex || len(o.Data) == 0 || o.Data[0] != 0 {
					res.fail(types.IIN2ParameterError)
					continue
				}
				s.log.Debug("Session %s: restart indication cleared", s.id)
				s.o.restart.Store(false)
			}

		case h.Group == app.GroupTimeDate && h.Variation == 1:
			if len(b.Objects) != 1 {
				res.fail(types.IIN2ParameterError)
				continue
			}
			t, err := app.DecodeTimeAndDate(b.Objects[0].Data)
			if err != nil {
				res.fail(types.IIN2ParameterError)
				continue
			}
			s.o.setTime(t)
			s.log.Info("Session %s: time synchronized to %s", s.id, t.ToTime().UTC().Format(time.RFC3339Nano))

		default:
			res.fail(types.IIN2ObjectUnknown)
		}
	}
	return res
}

func (s *session) handleUnsolicitedMask(msg *app.Message) result {
	if !s.o.cfg.AllowUnsolicited {
		return result{iin: types.IIN{IIN2: types.IIN2NoFuncCodeSupport}}
	}

	var (
		res  result
		mask app.ClassField
	)
	for _, b := range msg.Blocks {
		class := app.ClassFromVariation(b.Header.Variation)
		if b.Header.Group != app.GroupClassData || class == app.ClassNone || class == app.Class0 {
			res.fail(types.IIN2ObjectUnknown)
			continue
		}
		mask |= class
	}
	if res.iin.IIN2 != 0 {
		return res
	}

	cur := app.ClassField(s.unsolMask.Load())
	if msg.Function() == app.FuncEnableUnsolicited {
		cur |= mask
	} else {
		cur &^= mask
	}
	s.unsolMask.Store(uint32(cur))
	s.log.Info("Session %s: unsolicited classes %s", s.id, cur)
	return res
}

// control is one command object of a control request
type control struct {
	block int
	obj   int
	key   pointKey

	crob *types.CROB
	ao   *types.AnalogOutput
}

func (s *session) handleControl(msg *app.Message) result {
	fc := msg.Function()
	var (
		res      result
		controls []control
	)

	echo := make([]app.ResponseBlock, len(msg.Blocks))
	for i, b := range msg.Blocks {
		h := b.Header
		echo[i] = app.ResponseBlock{Group: h.Group, Variation: h.Variation, Qualifier: h.Qualifier}
		echo[i].Objects = make([]app.Object, len(b.Objects))

		for j, o := range b.Objects {
			echo[i].Objects[j] = app.Object{Index: o.Index, Data: o.Data}
			c := control{block: i, obj: j}
			switch {
			case h.Group == app.GroupBinaryOutputCommand && h.Variation == 1:
				crob, err := app.DecodeCROB(o.Data)
				if err != nil {
					res.fail(types.IIN2ParameterError)
					return res
				}
				c.crob = &crob
				c.key = pointKey{class: types.PointClassBinaryOutputStatus, index: uint16(o.Index)}
			case h.Group == app.GroupAnalogOutputCommand:
				ao, err := app.DecodeAnalogOutput(h.Variation, o.Data)
				if err != nil {
					res.fail(types.IIN2ObjectUnknown)
					return res
				}
				c.ao = &ao
				c.key = pointKey{class: types.PointClassAnalogOutputStatus, index: uint16(o.Index)}
			default:
				res.fail(types.IIN2ObjectUnknown)
				return res
			}
			if o.Index > 0xFFFF {
				c.key.index = 0xFFFF
			}
			controls = append(controls, c)
		}
	}
	if len(controls) == 0 {
		res.fail(types.IIN2ParameterError)
		return res
	}

	statuses := s.executeControls(fc, msg, controls)

	for i, c := range controls {
		obj := &echo[c.block].Objects[c.obj]
		if c.crob != nil {
			crob := *c.crob
			crob.Status = statuses[i]
			obj.Data = app.EncodeCROB(crob)
		} else {
			ao := *c.ao
			ao.Status = statuses[i]
			obj.Data = app.EncodeAnalogOutput(ao)
		}
	}
	res.blocks = echo
	return res
}

// executeControls runs the command handler and returns one status per
// control
func (s *session) executeControls(fc app.FunctionCode, msg *app.Message, controls []control) []types.CommandStatus {
	statuses := make([]types.CommandStatus, len(controls))

	if len(controls) > s.o.cfg.MaxControlsPerRequest {
		for i := range statuses {
			statuses[i] = types.CommandStatusTooManyOps
		}
		return statuses
	}

	seq := msg.APDU.Sequence
	objects := msg.APDU.Objects
	if fc == app.FuncOperate && !s.o.selects.Operate(s.id, seq, objects) {
		s.log.Debug("Session %s: OPERATE seq=%d without matching SELECT", s.id, seq)
		for i := range statuses {
			statuses[i] = types.CommandStatusNoSelect
		}
		return statuses
	}

	opType := OperateTypeDirectOperate
	switch fc {
	case app.FuncOperate:
		opType = OperateTypeSelectBeforeOperate
	case app.FuncDirectOperateNoAck:
		opType = OperateTypeDirectOperateNoAck
	}

	h := s.o.handler
	h.Begin()
	defer h.End()

	for i, c := range controls {
		switch {
		case int(c.key.index) >= s.o.db.Count(c.key.class):
			statuses[i] = types.CommandStatusNotSupported
		case fc != app.FuncOperate && s.o.selects.Busy(s.id, c.key):
			statuses[i] = types.CommandStatusAlreadyActive
		case fc == app.FuncSelect && c.crob != nil:
			statuses[i] = h.SelectCROB(*c.crob, c.key.index)
		case fc == app.FuncSelect:
			statuses[i] = h.SelectAnalogOutput(*c.ao, c.key.index)
		case c.crob != nil:
			statuses[i] = h.OperateCROB(*c.crob, c.key.index, opType, s.o.db)
		default:
			statuses[i] = h.OperateAnalogOutput(*c.ao, c.key.index, opType, s.o.db)
		}
	}

	if fc == app.FuncSelect {
		for _, st := range statuses {
			if st != types.CommandStatusSuccess {
				return statuses
			}
		}
		points := make([]pointKey, len(controls))
		for i, c := range controls {
			points[i] = c.key
		}
		s.o.selects.Arm(s.id, seq, objects, points)
	}

	s.log.Info("Session %s: %s %s", s.id, fc, formatStatuses(statuses))
	return statuses
}

func formatStatuses(statuses []types.CommandStatus) string {
	if len(statuses) == 1 {
		return statuses[0].String()
	}
	return fmt.Sprint(statuses)
}
