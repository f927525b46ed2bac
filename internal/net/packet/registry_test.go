package packet

import (
	"errors"
	"testing"

	"go.uber.org/zap/zaptest"
)

func TestRegistryDispatch(t *testing.T) {
	reg := NewRegistry(zaptest.NewLogger(t))
	var gotSeq uint32
	reg.Register(C_OPCODE_ACK, []SessionState{StateSynced}, func(_ any, r *Reader) error {
		gotSeq = r.ReadDU()
		return r.Err()
	})

	w := NewWriterWithOpcode(C_OPCODE_ACK)
	w.WriteDU(42)
	if err := reg.Dispatch(nil, StateSynced, w.Bytes()); err != nil {
		t.Fatal(err)
	}
	if gotSeq != 42 {
		t.Fatalf("seq = %d", gotSeq)
	}
	if err := reg.Dispatch(nil, StateHandshake, w.Bytes()); err == nil {
		t.Fatal("ack accepted during handshake")
	}
	if err := reg.Dispatch(nil, StateSynced, []byte{0xEE}); err != nil {
		t.Fatalf("unknown opcode: %v", err)
	}
	if reg.Unknown() != 1 {
		t.Fatalf("unknown count %d", reg.Unknown())
	}
	if err := reg.Dispatch(nil, StateSynced, []byte{C_OPCODE_ACK, 1, 2}); !errors.Is(err, ErrShortRead) {
		t.Fatalf("truncated ack: %v", err)
	}
	if err := reg.Dispatch(nil, StateSynced, nil); err == nil {
		t.Fatal("empty packet accepted")
	}
}

func TestRegistryRecoversPanics(t *testing.T) {
	reg := NewRegistry(zaptest.NewLogger(t))
	reg.Register(C_OPCODE_BYE, []SessionState{StateSynced}, func(any, *Reader) error {
		panic("boom")
	})
	if err := reg.Dispatch(nil, StateSynced, []byte{C_OPCODE_BYE}); err == nil {
		t.Fatal("panic not reported")
	}
}

func TestHeaderFields(t *testing.T) {
	w := NewWriterWithOpcode(C_OPCODE_HELLO)
	w.WriteS("觀察者")
	w.WriteH(ProtocolVersion)
	w.WriteF(1.5)
	r := NewReader(w.Bytes())
	if r.Opcode() != C_OPCODE_HELLO {
		t.Fatal("opcode")
	}
	if s := r.ReadS(); s != "觀察者" {
		t.Fatalf("name = %q", s)
	}
	if v := r.ReadH(); v != ProtocolVersion {
		t.Fatalf("version = %d", v)
	}
	if f := r.ReadF(); f != 1.5 {
		t.Fatalf("float = %v", f)
	}
	if r.Remaining() != 0 || r.Err() != nil {
		t.Fatalf("%d bytes left, err %v", r.Remaining(), r.Err())
	}
	r.ReadH()
	if !errors.Is(r.Err(), ErrShortRead) {
		t.Fatalf("read past end: %v", r.Err())
	}
}

func TestUnterminatedString(t *testing.T) {
	r := NewReader([]byte{C_OPCODE_HELLO, 'a', 'b'})
	if s := r.ReadS(); s != "" || !errors.Is(r.Err(), ErrShortRead) {
		t.Fatalf("got %q, err %v", s, r.Err())
	}
}
