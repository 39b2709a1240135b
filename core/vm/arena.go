package vm

import (
	"fmt"
	"math/big"
)

// Handle addresses a value inside the current arena frame. Negative handles
// are reserved; fresh handles start at 0.
type Handle int32

// Reserved handles, present in every frame.
const (
	HandleZero               Handle = -10
	HandleCallValueMOAX      Handle = -11
	HandleCallValueMultiDCT  Handle = -12
	HandleCallValueSingleDCT Handle = -13
	HandleTempBuffer1        Handle = -20
	HandleTempBuffer2        Handle = -21
)

// Kind tags the variant stored behind a handle.
type Kind uint8

const (
	KindBigInt Kind = iota + 1
	KindBuffer
	KindVector
)

func (k Kind) String() string {
	switch k {
	case KindBigInt:
		return "bigint"
	case KindBuffer:
		return "buffer"
	case KindVector:
		return "vector"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Value is a tagged union over the arena variants. Values are copied on the
// way in and out of the arena.
type Value struct {
	kind   Kind
	bigInt *big.Int
	buffer []byte
	vector []Handle
}

func BigIntValue(x *big.Int) Value {
	v := Value{kind: KindBigInt, bigInt: new(big.Int)}
	if x != nil {
		v.bigInt.Set(x)
	}
	return v
}

func BufferValue(b []byte) Value {
	return Value{kind: KindBuffer, buffer: append([]byte{}, b...)}
}

func VectorValue(items []Handle) Value {
	return Value{kind: KindVector, vector: append([]Handle{}, items...)}
}

func zeroValue(kind Kind) Value {
	switch kind {
	case KindBigInt:
		return BigIntValue(nil)
	case KindBuffer:
		return BufferValue(nil)
	case KindVector:
		return VectorValue(nil)
	}
	panic(&Fault{Op: "allocate", Reason: fmt.Sprintf("unknown kind %s", kind)})
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) copy() Value {
	switch v.kind {
	case KindBigInt:
		return BigIntValue(v.bigInt)
	case KindBuffer:
		return BufferValue(v.buffer)
	case KindVector:
		return VectorValue(v.vector)
	}
	return v
}

// Fault signals misuse of the arena by contract code: an invalid handle, a
// kind mismatch or an operation without an open frame. Faults are raised
// with panic and never surface as a transaction status.
type Fault struct {
	Op     string
	Handle Handle
	Reason string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("arena fault: %s handle %d: %s", f.Op, f.Handle, f.Reason)
}

// AsFault extracts a fault from a recovered panic value.
func AsFault(r any) (*Fault, bool) {
	f, ok := r.(*Fault)
	return f, ok
}

func fault(op string, h Handle, format string, args ...any) {
	panic(&Fault{Op: op, Handle: h, Reason: fmt.Sprintf(format, args...)})
}

type frame struct {
	next   Handle
	values map[Handle]Value
}

func newFrame() *frame {
	f := &frame{values: make(map[Handle]Value)}
	f.values[HandleZero] = BigIntValue(nil)
	f.values[HandleCallValueMOAX] = BigIntValue(nil)
	f.values[HandleCallValueMultiDCT] = VectorValue(nil)
	f.values[HandleCallValueSingleDCT] = BigIntValue(nil)
	f.values[HandleTempBuffer1] = BufferValue(nil)
	f.values[HandleTempBuffer2] = BufferValue(nil)
	return f
}

// Arena is a stack of frames, one per active call. Handles issued in a frame
// are only meaningful in that frame: a nested call cannot observe or
// overwrite its caller's values.
type Arena struct {
	frames []*frame
}

// NewArena returns an arena without open frames.
func NewArena() *Arena {
	return &Arena{}
}

// PushFrame opens a frame for a new call and returns the resulting depth.
func (a *Arena) PushFrame() int {
	a.frames = append(a.frames, newFrame())
	return len(a.frames)
}

// PopFrame discards the innermost frame and every value it holds.
func (a *Arena) PopFrame() {
	if len(a.frames) == 0 {
		fault("pop", 0, "no open frame")
	}
	a.frames[len(a.frames)-1] = nil
	a.frames = a.frames[:len(a.frames)-1]
}

// Depth returns the number of open frames.
func (a *Arena) Depth() int { return len(a.frames) }

// Allocated returns the number of fresh handles issued in the current frame.
func (a *Arena) Allocated() int {
	if len(a.frames) == 0 {
		return 0
	}
	return int(a.frames[len(a.frames)-1].next)
}

func (a *Arena) current(op string, h Handle) *frame {
	if len(a.frames) == 0 {
		fault(op, h, "no open frame")
	}
	return a.frames[len(a.frames)-1]
}

func (a *Arena) lookup(op string, h Handle) (*frame, Value) {
	f := a.current(op, h)
	v, ok := f.values[h]
	if !ok {
		fault(op, h, "invalid handle")
	}
	return f, v
}

func (a *Arena) expect(op string, h Handle, kind Kind) Value {
	_, v := a.lookup(op, h)
	if v.kind != kind {
		fault(op, h, "expected %s, found %s", kind, v.kind)
	}
	return v
}

// Allocate issues a fresh handle holding the zero value of kind.
func (a *Arena) Allocate(kind Kind) Handle {
	return a.insert("allocate", zeroValue(kind))
}

func (a *Arena) insert(op string, v Value) Handle {
	f := a.current(op, 0)
	h := f.next
	f.next++
	f.values[h] = v
	return h
}

// Read returns a copy of the value behind h.
func (a *Arena) Read(h Handle) Value {
	_, v := a.lookup("read", h)
	return v.copy()
}

// Write replaces the value behind an existing handle. The zero constant is
// read-only.
func (a *Arena) Write(h Handle, v Value) {
	f, _ := a.lookup("write", h)
	if h == HandleZero {
		fault("write", h, "constant handle is read-only")
	}
	if v.kind == KindVector {
		a.checkItems("write", f, h, v.vector)
	}
	f.values[h] = v.copy()
}

// Duplicate copies the value behind h into a fresh handle.
func (a *Arena) Duplicate(h Handle) Handle {
	_, v := a.lookup("duplicate", h)
	return a.insert("duplicate", v.copy())
}

func (a *Arena) NewBigInt(x *big.Int) Handle {
	return a.insert("new bigint", BigIntValue(x))
}

func (a *Arena) NewBuffer(b []byte) Handle {
	return a.insert("new buffer", BufferValue(b))
}

// NewVector stores a vector of handles. Every item must be valid in the
// current frame.
func (a *Arena) NewVector(items ...Handle) Handle {
	f := a.current("new vector", 0)
	a.checkItems("new vector", f, f.next, items)
	return a.insert("new vector", VectorValue(items))
}

func (a *Arena) checkItems(op string, f *frame, owner Handle, items []Handle) {
	for _, item := range items {
		if _, ok := f.values[item]; !ok {
			fault(op, owner, "vector item %d is not a valid handle", item)
		}
	}
}

// BigInt returns a copy of the big integer behind h.
func (a *Arena) BigInt(h Handle) *big.Int {
	return new(big.Int).Set(a.expect("bigint", h, KindBigInt).bigInt)
}

// Buffer returns a copy of the byte buffer behind h.
func (a *Arena) Buffer(h Handle) []byte {
	return append([]byte{}, a.expect("buffer", h, KindBuffer).buffer...)
}

// Vector returns a copy of the handle list behind h.
func (a *Arena) Vector(h Handle) []Handle {
	return append([]Handle{}, a.expect("vector", h, KindVector).vector...)
}

func (a *Arena) SetBigInt(h Handle, x *big.Int) {
	a.expect("set bigint", h, KindBigInt)
	a.Write(h, BigIntValue(x))
}

func (a *Arena) SetBuffer(h Handle, b []byte) {
	a.expect("set buffer", h, KindBuffer)
	a.Write(h, BufferValue(b))
}

// VectorPush appends item to the vector behind vec.
func (a *Arena) VectorPush(vec, item Handle) {
	v := a.expect("vector push", vec, KindVector)
	f := a.current("vector push", vec)
	a.checkItems("vector push", f, vec, []Handle{item})
	v.vector = append(append([]Handle{}, v.vector...), item)
	f.values[vec] = v
}
