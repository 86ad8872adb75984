package engine

import (
	"bytes"
	"encoding/binary"
	"io"
	"math/big"

	"github.com/holiman/uint256"
)

// snapshotMagic guards against loading a buffer from an incompatible
// layout version.
const snapshotMagic uint32 = 0x504b5231 // "PKR1"

var mod128 = new(big.Int).Lsh(big.NewInt(1), 128)
var half128 = new(big.Int).Lsh(big.NewInt(1), 127)

func writeU256(buf *bytes.Buffer, v *uint256.Int) {
	b := v.Bytes32()
	buf.Write(b[:])
}

func readU256(r io.Reader) (*uint256.Int, error) {
	var b [32]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return nil, err
	}
	return new(uint256.Int).SetBytes32(b[:]), nil
}

// writeI128 encodes a signed 128-bit value as 16 bytes, two's complement,
// big-endian.
func writeI128(buf *bytes.Buffer, v *big.Int) {
	var b [16]byte
	t := v
	if v.Sign() < 0 {
		t = new(big.Int).Add(mod128, v)
	}
	raw := t.Bytes()
	copy(b[16-len(raw):], raw)
	buf.Write(b[:])
}

func readI128(r io.Reader) (*big.Int, error) {
	var b [16]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return nil, err
	}
	v := new(big.Int).SetBytes(b[:])
	if v.Cmp(half128) >= 0 {
		v.Sub(v, mod128)
	}
	return v, nil
}

func writeBool(buf *bytes.Buffer, b bool) {
	if b {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}

func readBool(r io.Reader) (bool, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return false, err
	}
	return b[0] != 0, nil
}

// Snapshot encodes the engine's persisted state (§6): risk parameters,
// global scalars, the slab's occupancy bitmap and freelist, and every live
// account record, in a fixed binary layout the storage layer writes
// verbatim. The layout is big-endian, not little-endian: a magic header,
// then every integer in big-endian order, unsigned 128-bit fields as
// 32-byte words and signed ones as 16-byte two's complement.
func (e *Engine) Snapshot() ([]byte, error) {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.BigEndian, snapshotMagic)

	p := e.Params
	binary.Write(buf, binary.BigEndian, uint32(p.N))
	binary.Write(buf, binary.BigEndian, p.WarmupSlots)
	binary.Write(buf, binary.BigEndian, p.MaintenanceMarginBps)
	binary.Write(buf, binary.BigEndian, p.InitialMarginBps)
	binary.Write(buf, binary.BigEndian, p.TradingFeeBps)
	binary.Write(buf, binary.BigEndian, p.LiquidationFeeBps)
	binary.Write(buf, binary.BigEndian, p.InsuranceFeeShareBps)
	binary.Write(buf, binary.BigEndian, p.AccountCreationFeeBps)
	writeU256(buf, p.MaintenanceFeePerSlot)
	writeU256(buf, p.MaxDeposit)
	writeU256(buf, p.MaxWithdrawal)
	binary.Write(buf, binary.BigEndian, p.FundingDtMin)
	binary.Write(buf, binary.BigEndian, p.FundingRatePerSlot.Value)
	binary.Write(buf, binary.BigEndian, p.CrankDefaultBudget)

	writeU256(buf, e.V)
	writeU256(buf, e.I)
	writeU256(buf, e.IFloor)
	binary.Write(buf, binary.BigEndian, e.CurrentSlot)
	writeI128(buf, e.FundingIndex)
	binary.Write(buf, binary.BigEndian, e.LastFundingSlot)
	writeU256(buf, e.LossAccum)
	writeBool(buf, e.WithdrawalOnly)
	writeBool(buf, e.WarmupPaused)
	binary.Write(buf, binary.BigEndian, e.WarmupPauseSlot)
	writeU256(buf, e.CTot)
	writeU256(buf, e.PNLPosTot)
	binary.Write(buf, binary.BigEndian, e.crankCursor)

	for _, word := range e.slab.used {
		binary.Write(buf, binary.BigEndian, word)
	}
	for _, nf := range e.slab.nextFree {
		binary.Write(buf, binary.BigEndian, nf)
	}
	binary.Write(buf, binary.BigEndian, e.slab.freeHead)

	var count uint32
	e.slab.forEachUsed(func(i uint16) error { count++; return nil })
	binary.Write(buf, binary.BigEndian, count)

	err := e.slab.forEachUsed(func(i uint16) error {
		a, _ := e.slab.get(i)
		binary.Write(buf, binary.BigEndian, i)
		buf.WriteByte(byte(a.Kind))
		writeU256(buf, a.Capital)
		writeI128(buf, a.PNL)
		writeU256(buf, a.ReservedPNL)
		binary.Write(buf, binary.BigEndian, a.WarmupStartedAtSlot)
		writeU256(buf, a.WarmupSlopePerStep)
		writeI128(buf, a.PositionSize)
		binary.Write(buf, binary.BigEndian, a.EntryPrice)
		writeI128(buf, a.FundingIndexSnapshot)
		writeI128(buf, a.FeeCredits)
		buf.Write(a.MatcherProgram[:])
		buf.Write(a.MatcherContext[:])
		return nil
	})
	if err != nil {
		return nil, newErr("Snapshot", ErrKindInvariantCorrupt, err)
	}
	return buf.Bytes(), nil
}

// Load reconstructs an Engine from a buffer produced by Snapshot. The slab
// is rebuilt from the persisted bitmap and freelist directly rather than
// replayed through alloc/free, so crank cursor position and freelist order
// survive a restart byte-for-byte.
func Load(data []byte) (*Engine, error) {
	const op = "Load"
	r := bytes.NewReader(data)

	var magic uint32
	if err := binary.Read(r, binary.BigEndian, &magic); err != nil {
		return nil, newErr(op, ErrKindInvalidInput, err)
	}
	if magic != snapshotMagic {
		return nil, newErr(op, ErrKindInvalidInput, nil)
	}

	var p Params
	var n32 uint32
	if err := binary.Read(r, binary.BigEndian, &n32); err != nil {
		return nil, newErr(op, ErrKindInvalidInput, err)
	}
	p.N = int(n32)
	if err := binary.Read(r, binary.BigEndian, &p.WarmupSlots); err != nil {
		return nil, newErr(op, ErrKindInvalidInput, err)
	}
	if err := binary.Read(r, binary.BigEndian, &p.MaintenanceMarginBps); err != nil {
		return nil, newErr(op, ErrKindInvalidInput, err)
	}
	if err := binary.Read(r, binary.BigEndian, &p.InitialMarginBps); err != nil {
		return nil, newErr(op, ErrKindInvalidInput, err)
	}
	if err := binary.Read(r, binary.BigEndian, &p.TradingFeeBps); err != nil {
		return nil, newErr(op, ErrKindInvalidInput, err)
	}
	if err := binary.Read(r, binary.BigEndian, &p.LiquidationFeeBps); err != nil {
		return nil, newErr(op, ErrKindInvalidInput, err)
	}
	if err := binary.Read(r, binary.BigEndian, &p.InsuranceFeeShareBps); err != nil {
		return nil, newErr(op, ErrKindInvalidInput, err)
	}
	if err := binary.Read(r, binary.BigEndian, &p.AccountCreationFeeBps); err != nil {
		return nil, newErr(op, ErrKindInvalidInput, err)
	}
	var err error
	if p.MaintenanceFeePerSlot, err = readU256(r); err != nil {
		return nil, newErr(op, ErrKindInvalidInput, err)
	}
	if p.MaxDeposit, err = readU256(r); err != nil {
		return nil, newErr(op, ErrKindInvalidInput, err)
	}
	if p.MaxWithdrawal, err = readU256(r); err != nil {
		return nil, newErr(op, ErrKindInvalidInput, err)
	}
	if err := binary.Read(r, binary.BigEndian, &p.FundingDtMin); err != nil {
		return nil, newErr(op, ErrKindInvalidInput, err)
	}
	var rate int64
	if err := binary.Read(r, binary.BigEndian, &rate); err != nil {
		return nil, newErr(op, ErrKindInvalidInput, err)
	}
	p.FundingRatePerSlot = &ScaledInt{Value: rate}
	if err := binary.Read(r, binary.BigEndian, &p.CrankDefaultBudget); err != nil {
		return nil, newErr(op, ErrKindInvalidInput, err)
	}

	e, err := NewEngine(p)
	if err != nil {
		return nil, newErr(op, ErrKindInvalidInput, err)
	}

	if e.V, err = readU256(r); err != nil {
		return nil, newErr(op, ErrKindInvalidInput, err)
	}
	if e.I, err = readU256(r); err != nil {
		return nil, newErr(op, ErrKindInvalidInput, err)
	}
	if e.IFloor, err = readU256(r); err != nil {
		return nil, newErr(op, ErrKindInvalidInput, err)
	}
	if err := binary.Read(r, binary.BigEndian, &e.CurrentSlot); err != nil {
		return nil, newErr(op, ErrKindInvalidInput, err)
	}
	if e.FundingIndex, err = readI128(r); err != nil {
		return nil, newErr(op, ErrKindInvalidInput, err)
	}
	if err := binary.Read(r, binary.BigEndian, &e.LastFundingSlot); err != nil {
		return nil, newErr(op, ErrKindInvalidInput, err)
	}
	if e.LossAccum, err = readU256(r); err != nil {
		return nil, newErr(op, ErrKindInvalidInput, err)
	}
	if e.WithdrawalOnly, err = readBool(r); err != nil {
		return nil, newErr(op, ErrKindInvalidInput, err)
	}
	if e.WarmupPaused, err = readBool(r); err != nil {
		return nil, newErr(op, ErrKindInvalidInput, err)
	}
	if err := binary.Read(r, binary.BigEndian, &e.WarmupPauseSlot); err != nil {
		return nil, newErr(op, ErrKindInvalidInput, err)
	}
	if e.CTot, err = readU256(r); err != nil {
		return nil, newErr(op, ErrKindInvalidInput, err)
	}
	if e.PNLPosTot, err = readU256(r); err != nil {
		return nil, newErr(op, ErrKindInvalidInput, err)
	}
	if err := binary.Read(r, binary.BigEndian, &e.crankCursor); err != nil {
		return nil, newErr(op, ErrKindInvalidInput, err)
	}

	for i := range e.slab.used {
		if err := binary.Read(r, binary.BigEndian, &e.slab.used[i]); err != nil {
			return nil, newErr(op, ErrKindInvalidInput, err)
		}
	}
	for i := range e.slab.nextFree {
		if err := binary.Read(r, binary.BigEndian, &e.slab.nextFree[i]); err != nil {
			return nil, newErr(op, ErrKindInvalidInput, err)
		}
	}
	if err := binary.Read(r, binary.BigEndian, &e.slab.freeHead); err != nil {
		return nil, newErr(op, ErrKindInvalidInput, err)
	}

	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, newErr(op, ErrKindInvalidInput, err)
	}
	for k := uint32(0); k < count; k++ {
		var idx uint16
		if err := binary.Read(r, binary.BigEndian, &idx); err != nil {
			return nil, newErr(op, ErrKindInvalidInput, err)
		}
		var kindByte [1]byte
		if _, err := io.ReadFull(r, kindByte[:]); err != nil {
			return nil, newErr(op, ErrKindInvalidInput, err)
		}
		a := newAccount(AccountKind(kindByte[0]))
		if a.Capital, err = readU256(r); err != nil {
			return nil, newErr(op, ErrKindInvalidInput, err)
		}
		if a.PNL, err = readI128(r); err != nil {
			return nil, newErr(op, ErrKindInvalidInput, err)
		}
		if a.ReservedPNL, err = readU256(r); err != nil {
			return nil, newErr(op, ErrKindInvalidInput, err)
		}
		if err := binary.Read(r, binary.BigEndian, &a.WarmupStartedAtSlot); err != nil {
			return nil, newErr(op, ErrKindInvalidInput, err)
		}
		if a.WarmupSlopePerStep, err = readU256(r); err != nil {
			return nil, newErr(op, ErrKindInvalidInput, err)
		}
		if a.PositionSize, err = readI128(r); err != nil {
			return nil, newErr(op, ErrKindInvalidInput, err)
		}
		if err := binary.Read(r, binary.BigEndian, &a.EntryPrice); err != nil {
			return nil, newErr(op, ErrKindInvalidInput, err)
		}
		if a.FundingIndexSnapshot, err = readI128(r); err != nil {
			return nil, newErr(op, ErrKindInvalidInput, err)
		}
		if a.FeeCredits, err = readI128(r); err != nil {
			return nil, newErr(op, ErrKindInvalidInput, err)
		}
		if _, err := io.ReadFull(r, a.MatcherProgram[:]); err != nil {
			return nil, newErr(op, ErrKindInvalidInput, err)
		}
		if _, err := io.ReadFull(r, a.MatcherContext[:]); err != nil {
			return nil, newErr(op, ErrKindInvalidInput, err)
		}
		if int(idx) >= len(e.slab.accounts) {
			return nil, newErr(op, ErrKindInvalidInput, nil)
		}
		e.slab.accounts[idx] = a
	}

	if err := e.CheckInvariants(); err != nil {
		return nil, newErr(op, ErrKindInvariantCorrupt, err)
	}
	return e, nil
}
