package app

// MinFragmentSize is the smallest fragment a FragmentWriter accepts
const MinFragmentSize = 64

// ResponseBlock is one object header worth of response data. Objects under a
// start-stop qualifier must have ascending contiguous indices; the writer
// splits a block across fragments when it does not fit.
type ResponseBlock struct {
	Group     uint8
	Variation uint8
	Qualifier QualifierCode
	Objects   []Object
}

// NewRangeBlock builds a start-stop block of contiguous objects beginning at
// index start.
func NewRangeBlock(group, variation uint8, start uint32, values [][]byte) ResponseBlock {
	q := Qualifier8BitStartStop
	if start+uint32(len(values)) > 0x100 {
		q = Qualifier16BitStartStop
	}
	objs := make([]Object, len(values))
	for i, v := range values {
		objs[i] = Object{Index: start + uint32(i), Data: v}
	}
	return ResponseBlock{Group: group, Variation: variation, Qualifier: q, Objects: objs}
}

// NewIndexedBlock builds a block whose objects each carry a 16-bit index
func NewIndexedBlock(group, variation uint8, objs []Object) ResponseBlock {
	return ResponseBlock{Group: group, Variation: variation, Qualifier: Qualifier16BitCountIndex16, Objects: objs}
}

// NewCountBlock builds a block of un-indexed objects such as g52 or g50
func NewCountBlock(group, variation uint8, values ...[]byte) ResponseBlock {
	objs := make([]Object, len(values))
	for i, v := range values {
		objs[i] = Object{Index: uint32(i), Data: v}
	}
	return ResponseBlock{Group: group, Variation: variation, Qualifier: Qualifier8BitCount, Objects: objs}
}

// ResponseData is the typed result set of one response
type ResponseData struct {
	Function FunctionCode // FuncResponse or FuncUnsolicitedResponse
	Sequence uint8        // sequence of the first fragment
	IIN      IIN
	Confirm  bool // request confirmation of the final fragment
	Blocks   []ResponseBlock
}

// FragmentWriter packs response blocks into fragment bodies no larger than
// a fixed size.
type FragmentWriter struct {
	max       int
	cur       *ObjectBuilder
	fragments [][]byte
}

// NewFragmentWriter creates a writer for object bodies of at most limit bytes
func NewFragmentWriter(limit int) *FragmentWriter {
	if limit < MinFragmentSize {
		limit = MinFragmentSize
	}
	return &FragmentWriter{max: limit, cur: NewObjectBuilder()}
}

func rangeWidth(q QualifierCode) int {
	switch q {
	case Qualifier8BitStartStop:
		return 2
	case Qualifier16BitStartStop:
		return 4
	case Qualifier32BitStartStop:
		return 8
	case Qualifier8BitCount, Qualifier8BitCountIndex8:
		return 1
	case Qualifier16BitCount, Qualifier16BitCountIndex16:
		return 2
	case Qualifier32BitCount, Qualifier32BitCountIndex32:
		return 4
	}
	return 0
}

// Write appends a block, splitting it over as many fragments as needed
func (w *FragmentWriter) Write(b ResponseBlock) {
	hdr := 3 + rangeWidth(b.Qualifier)
	prefix := b.Qualifier.IndexSize()

	if len(b.Objects) == 0 {
		if _, ok := rangeFor(b.Qualifier, nil).(StartStopRange); ok {
			// a start-stop header cannot describe zero objects
			return
		}
		if w.cur.Len()+hdr > w.max {
			w.flush()
		}
		w.cur.AddHeader(b.Group, b.Variation, b.Qualifier, rangeFor(b.Qualifier, nil))
		return
	}

	objs := b.Objects
	for len(objs) > 0 {
		room := w.max - w.cur.Len() - hdr
		n, used := 0, 0
		for n < len(objs) && used+prefix+len(objs[n].Data) <= room {
			used += prefix + len(objs[n].Data)
			n++
		}
		if n == 0 {
			if w.cur.Len() > 0 {
				w.flush()
				continue
			}
			n = 1
		}

		chunk := objs[:n]
		w.cur.AddHeader(b.Group, b.Variation, b.Qualifier, rangeFor(b.Qualifier, chunk))
		for _, o := range chunk {
			if prefix > 0 {
				w.cur.AddIndexed(b.Qualifier, o.Index, o.Data)
			} else {
				w.cur.AddRawData(o.Data)
			}
		}

		objs = objs[n:]
		if len(objs) > 0 {
			w.flush()
		}
	}
}

func rangeFor(q QualifierCode, objs []Object) Range {
	switch q {
	case Qualifier8BitStartStop, Qualifier16BitStartStop, Qualifier32BitStartStop:
		if len(objs) == 0 {
			return StartStopRange{}
		}
		return StartStopRange{Start: objs[0].Index, Stop: objs[len(objs)-1].Index}
	case QualifierNoRange:
		return NoRange{}
	}
	return CountRange{Count: uint32(len(objs))}
}

func (w *FragmentWriter) flush() {
	w.fragments = append(w.fragments, w.cur.Build())
	w.cur.Reset()
}

// Fragments returns the packed bodies. There is always at least one,
// possibly empty.
func (w *FragmentWriter) Fragments() [][]byte {
	out := append([][]byte(nil), w.fragments...)
	if w.cur.Len() > 0 || len(out) == 0 {
		out = append(out, w.cur.Build())
	}
	return out
}

// Build encodes data into one or more response APDUs of at most
// maxFragmentSize bytes each. The first fragment has FIR and the last FIN.
// Every fragment but the last requests confirmation so the master paces the
// transfer, and the last does when data.Confirm is set. Sequence numbers
// increase by one per fragment.
func Build(data ResponseData, maxFragmentSize int) []*APDU {
	w := NewFragmentWriter(maxFragmentSize - ResponseHeaderSize)
	for _, b := range data.Blocks {
		w.Write(b)
	}
	bodies := w.Fragments()

	fn := data.Function
	if fn == 0 {
		fn = FuncResponse
	}

	apdus := make([]*APDU, len(bodies))
	seq := data.Sequence & AppCtrlSeqMask
	for i, body := range bodies {
		last := i == len(bodies)-1
		apdus[i] = &APDU{
			FunctionCode: fn,
			Sequence:     seq,
			FIR:          i == 0,
			FIN:          last,
			CON:          !last || data.Confirm,
			UNS:          fn == FuncUnsolicitedResponse,
			IIN:          data.IIN,
			Objects:      body,
		}
		seq = NextSequence(seq)
	}
	return apdus
}
