// program/borsh.go
package program

import (
	"bytes"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
)

// borshReader keeps the first error and turns every later read into a no-op,
// so layouts read top to bottom without an error check per field.
type borshReader struct {
	dec *bin.Decoder
	err error
}

func newReader(data []byte) *borshReader {
	return &borshReader{dec: bin.NewBorshDecoder(data)}
}

func (r *borshReader) fail(err error) {
	if r.err == nil && err != nil {
		r.err = err
	}
}

func (r *borshReader) u8() uint8 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.ReadUint8()
	r.fail(err)
	return v
}

func (r *borshReader) boolean() bool {
	if r.err != nil {
		return false
	}
	v, err := r.dec.ReadBool()
	r.fail(err)
	return v
}

func (r *borshReader) u32() uint32 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.ReadUint32(bin.LE)
	r.fail(err)
	return v
}

func (r *borshReader) u64() uint64 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.ReadUint64(bin.LE)
	r.fail(err)
	return v
}

func (r *borshReader) i64() int64 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.ReadInt64(bin.LE)
	r.fail(err)
	return v
}

func (r *borshReader) bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || n > r.dec.Remaining() {
		r.fail(errors.Errorf("length %d exceeds remaining %d bytes", n, r.dec.Remaining()))
		return nil
	}
	b, err := r.dec.ReadNBytes(n)
	r.fail(err)
	return b
}

func (r *borshReader) str() string {
	n := r.u32()
	return string(r.bytes(int(n)))
}

func (r *borshReader) pubkey() solana.PublicKey {
	b := r.bytes(solana.PublicKeyLength)
	if r.err != nil {
		return solana.PublicKey{}
	}
	return solana.PublicKeyFromBytes(b)
}

func (r *borshReader) pubkeys() []solana.PublicKey {
	n := r.u32()
	if r.err != nil {
		return nil
	}
	if int(n)*solana.PublicKeyLength > r.dec.Remaining() {
		r.fail(errors.Errorf("vec of %d keys exceeds remaining %d bytes", n, r.dec.Remaining()))
		return nil
	}
	out := make([]solana.PublicKey, 0, n)
	for i := uint32(0); i < n; i++ {
		out = append(out, r.pubkey())
	}
	return out
}

func (r *borshReader) optionI64() *int64 {
	switch r.u8() {
	case 0:
		return nil
	case 1:
		v := r.i64()
		return &v
	default:
		r.fail(errors.New("invalid option tag"))
		return nil
	}
}

type borshWriter struct {
	buf bytes.Buffer
	enc *bin.Encoder
	err error
}

func newWriter() *borshWriter {
	w := &borshWriter{}
	w.enc = bin.NewBorshEncoder(&w.buf)
	return w
}

func (w *borshWriter) fail(err error) {
	if w.err == nil && err != nil {
		w.err = err
	}
}

func (w *borshWriter) raw(b []byte) {
	if w.err == nil {
		w.fail(w.enc.WriteBytes(b, false))
	}
}

func (w *borshWriter) u8(v uint8) {
	if w.err == nil {
		w.fail(w.enc.WriteUint8(v))
	}
}

func (w *borshWriter) boolean(v bool) {
	if w.err == nil {
		w.fail(w.enc.WriteBool(v))
	}
}

func (w *borshWriter) u32(v uint32) {
	if w.err == nil {
		w.fail(w.enc.WriteUint32(v, bin.LE))
	}
}

func (w *borshWriter) u64(v uint64) {
	if w.err == nil {
		w.fail(w.enc.WriteUint64(v, bin.LE))
	}
}

func (w *borshWriter) i64(v int64) {
	if w.err == nil {
		w.fail(w.enc.WriteInt64(v, bin.LE))
	}
}

func (w *borshWriter) str(s string) {
	w.u32(uint32(len(s)))
	w.raw([]byte(s))
}

func (w *borshWriter) optionI64(v *int64) {
	if v == nil {
		w.u8(0)
		return
	}
	w.u8(1)
	w.i64(*v)
}

func (w *borshWriter) bytes() ([]byte, error) {
	return w.buf.Bytes(), w.err
}
