package host

import (
	"errors"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"perpkernel/engine"
)

// ErrReentrant is returned when a second external call arrives while the
// adapter is still unwinding a prior one.
var ErrReentrant = errors.New("host: re-entrant call rejected")

// Ledger moves vault tokens in and out on the kernel's behalf. The kernel
// package never imports a token representation; real deployments back
// this with an on-chain or custodial transfer.
type Ledger interface {
	TransferIn(account uint16, amount *uint256.Int) error
	TransferOut(account uint16, amount *uint256.Int) error
}

// MemLedger is a trivial in-memory Ledger for tests and local runs.
type MemLedger struct {
	balances map[uint16]*uint256.Int
}

func NewMemLedger() *MemLedger {
	return &MemLedger{balances: make(map[uint16]*uint256.Int)}
}

func (l *MemLedger) TransferIn(account uint16, amount *uint256.Int) error {
	bal, ok := l.balances[account]
	if !ok {
		bal = new(uint256.Int)
	}
	l.balances[account] = new(uint256.Int).Add(bal, amount)
	return nil
}

func (l *MemLedger) TransferOut(account uint16, amount *uint256.Int) error {
	bal, ok := l.balances[account]
	if !ok || bal.Cmp(amount) < 0 {
		return errors.New("host: insufficient ledger balance")
	}
	l.balances[account] = new(uint256.Int).Sub(bal, amount)
	return nil
}

// Adapter is the reference host named in the kernel's external-interface
// section: it sequences calls through a Session, moves tokens through a
// Ledger in the order each operation's host obligations require, and
// rejects re-entrant calls with a single in-flight latch.
type Adapter struct {
	session  *Session
	ledger   Ledger
	inFlight int32
}

func NewAdapter(session *Session, ledger Ledger) *Adapter {
	return &Adapter{session: session, ledger: ledger}
}

func (a *Adapter) enter() (func(), error) {
	if !atomic.CompareAndSwapInt32(&a.inFlight, 0, 1) {
		return nil, ErrReentrant
	}
	return func() { atomic.StoreInt32(&a.inFlight, 0) }, nil
}

// Deposit transfers amount in from the caller, then credits it to account
// i inside the engine. A failed engine call reverses the transfer.
func (a *Adapter) Deposit(i uint16, amount *uint256.Int) error {
	done, err := a.enter()
	if err != nil {
		return err
	}
	defer done()

	if err := a.ledger.TransferIn(i, amount); err != nil {
		return err
	}
	if err := a.session.Do(func(e *engine.Engine) error {
		return e.Deposit(i, amount)
	}); err != nil {
		_ = a.ledger.TransferOut(i, amount)
		return err
	}
	return nil
}

// Withdraw debits account i inside the engine first; only once that
// commits does the adapter release tokens back to the caller.
func (a *Adapter) Withdraw(i uint16, amount *uint256.Int, oraclePrice uint64, nowSlot uint64) error {
	done, err := a.enter()
	if err != nil {
		return err
	}
	defer done()

	if err := a.session.Do(func(e *engine.Engine) error {
		return e.Withdraw(i, amount, oraclePrice, nowSlot)
	}); err != nil {
		return err
	}
	return a.ledger.TransferOut(i, amount)
}

// CorrelationID returns a fresh request-tracing identifier for the host's
// structured logs and trace spans.
func CorrelationID() string {
	return uuid.NewString()
}
