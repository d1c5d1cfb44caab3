package ledger

import (
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"launchpool/internal/model"
	"launchpool/internal/types"
)

// Ledger is the single serialization point of the engine. Every component
// keeps its state behind the ledger lock and writes it through a Tx, so a
// failed call unwinds all of its effects, across every pool it touched.
type Ledger struct {
	mu     sync.Mutex
	clock  Clock
	logger *zap.Logger

	balances map[common.Address]map[common.Address]*big.Int
	supply   map[common.Address]*big.Int

	txIndex uint64
	logs    []model.LogRecord
}

// New builds an empty ledger.
func New(clock Clock, logger *zap.Logger) *Ledger {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		clock:    clock,
		logger:   logger,
		balances: make(map[common.Address]map[common.Address]*big.Int),
		supply:   make(map[common.Address]*big.Int),
	}
}

// Clock returns the clock the ledger stamps transactions with.
func (l *Ledger) Clock() Clock {
	return l.clock
}

// Update runs fn as one atomic mutation. If fn returns an error or panics,
// every write recorded in the transaction journal is undone in reverse order
// and the events it emitted are discarded.
func (l *Ledger) Update(fn func(tx *Tx) error) (err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx := l.begin(true)
	defer func() {
		if r := recover(); r != nil {
			tx.rollback()
			panic(r)
		}
	}()

	if err = fn(tx); err != nil {
		tx.rollback()
		return err
	}
	l.commit(tx)
	return nil
}

// View runs fn against a consistent read-only view.
func (l *Ledger) View(fn func(tx *Tx) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(l.begin(false))
}

// Drain returns and clears the committed event logs.
func (l *Ledger) Drain() []model.LogRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.logs
	l.logs = nil
	return out
}

// TxIndex returns the number of committed transactions.
func (l *Ledger) TxIndex() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.txIndex
}

// Transfer moves the caller's own balance. It is the deposit step callers
// use before invoking pool entry points directly.
func (l *Ledger) Transfer(caller, asset, to common.Address, amount *big.Int) error {
	return l.Update(func(tx *Tx) error {
		return tx.Transfer(asset, caller, to, amount)
	})
}

// Deposit credits externally sourced funds to a holder.
func (l *Ledger) Deposit(asset, to common.Address, amount *big.Int) error {
	return l.Update(func(tx *Tx) error {
		return tx.Mint(asset, to, amount)
	})
}

// BalanceOf returns the holder's balance of asset.
func (l *Ledger) BalanceOf(asset, holder common.Address) *big.Int {
	var out *big.Int
	_ = l.View(func(tx *Tx) error {
		out = tx.BalanceOf(asset, holder)
		return nil
	})
	return out
}

// TotalSupply returns the outstanding supply of asset.
func (l *Ledger) TotalSupply(asset common.Address) *big.Int {
	var out *big.Int
	_ = l.View(func(tx *Tx) error {
		out = tx.TotalSupply(asset)
		return nil
	})
	return out
}

// Balances exports every non-zero balance and supply, sorted for stable output.
func (l *Ledger) Balances() (balances, supplies []model.BalanceEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for asset, holders := range l.balances {
		for holder, amount := range holders {
			if amount.Sign() == 0 {
				continue
			}
			balances = append(balances, model.BalanceEntry{Asset: asset.Hex(), Holder: holder.Hex(), Amount: amount.String()})
		}
	}
	for asset, amount := range l.supply {
		if amount.Sign() == 0 {
			continue
		}
		supplies = append(supplies, model.BalanceEntry{Asset: asset.Hex(), Amount: amount.String()})
	}
	sort.Slice(balances, func(i, j int) bool {
		if balances[i].Asset != balances[j].Asset {
			return balances[i].Asset < balances[j].Asset
		}
		return balances[i].Holder < balances[j].Holder
	})
	sort.Slice(supplies, func(i, j int) bool { return supplies[i].Asset < supplies[j].Asset })
	return balances, supplies
}

// RestoreBalances replaces all balances and supplies. It is only meant for
// loading a snapshot into a fresh ledger.
func (l *Ledger) RestoreBalances(balances, supplies []model.BalanceEntry, txIndex uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.balances = make(map[common.Address]map[common.Address]*big.Int)
	l.supply = make(map[common.Address]*big.Int)
	for _, entry := range balances {
		amount, ok := new(big.Int).SetString(entry.Amount, 10)
		if !ok {
			return fmt.Errorf("invalid balance %q for %s", entry.Amount, entry.Holder)
		}
		asset := common.HexToAddress(entry.Asset)
		if l.balances[asset] == nil {
			l.balances[asset] = make(map[common.Address]*big.Int)
		}
		l.balances[asset][common.HexToAddress(entry.Holder)] = amount
	}
	for _, entry := range supplies {
		amount, ok := new(big.Int).SetString(entry.Amount, 10)
		if !ok {
			return fmt.Errorf("invalid supply %q for %s", entry.Amount, entry.Asset)
		}
		l.supply[common.HexToAddress(entry.Asset)] = amount
	}
	l.txIndex = txIndex
	return nil
}

func (l *Ledger) begin(writable bool) *Tx {
	return &Tx{
		ledger:   l,
		writable: writable,
		now:      l.clock.Now(),
		round:    l.clock.Round(),
		index:    l.txIndex,
	}
}

func (l *Ledger) commit(tx *Tx) {
	l.txIndex++
	l.logs = append(l.logs, tx.logs...)
	for _, fn := range tx.onCommit {
		fn()
	}
	if len(tx.logs) > 0 {
		l.logger.Debug("tx committed",
			zap.Uint64("tx_index", tx.index),
			zap.Uint64("round", tx.round),
			zap.Int("logs", len(tx.logs)),
		)
	}
}

// Tx is a single atomic unit of work against the ledger.
type Tx struct {
	ledger   *Ledger
	writable bool
	now      time.Time
	round    uint64
	index    uint64
	journal  []func()
	onCommit []func()
	logs     []model.LogRecord
}

// Now is the wall time fixed at the start of the transaction.
func (tx *Tx) Now() time.Time {
	return tx.now
}

// Round is the settlement round fixed at the start of the transaction.
func (tx *Tx) Round() uint64 {
	return tx.round
}

// Journal records an undo step. Steps run in reverse order on rollback.
func (tx *Tx) Journal(undo func()) error {
	if !tx.writable {
		return types.ErrReadOnly
	}
	tx.journal = append(tx.journal, undo)
	return nil
}

// OnCommit registers fn to run once the transaction has committed.
func (tx *Tx) OnCommit(fn func()) {
	tx.onCommit = append(tx.onCommit, fn)
}

// Emit buffers an event log, published only if the transaction commits.
func (tx *Tx) Emit(emitter common.Address, topics []common.Hash, data []byte) {
	hexTopics := make([]string, 0, len(topics))
	for _, topic := range topics {
		hexTopics = append(hexTopics, topic.Hex())
	}
	tx.logs = append(tx.logs, model.LogRecord{
		Round:     tx.round,
		TxIndex:   tx.index,
		LogIndex:  uint64(len(tx.logs)),
		Address:   emitter.Hex(),
		Topics:    hexTopics,
		Data:      hexutil.Encode(data),
		Timestamp: uint64(tx.now.Unix()),
	})
}

func (tx *Tx) rollback() {
	for i := len(tx.journal) - 1; i >= 0; i-- {
		tx.journal[i]()
	}
	tx.journal = nil
	tx.onCommit = nil
	tx.logs = nil
}

// BalanceOf returns a copy of the holder's balance.
func (tx *Tx) BalanceOf(asset, holder common.Address) *big.Int {
	if bal, ok := tx.ledger.balances[asset][holder]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

// TotalSupply returns a copy of the asset's outstanding supply.
func (tx *Tx) TotalSupply(asset common.Address) *big.Int {
	if supply, ok := tx.ledger.supply[asset]; ok {
		return new(big.Int).Set(supply)
	}
	return new(big.Int)
}

// Transfer moves amount of asset between holders. Zero transfers are no-ops.
func (tx *Tx) Transfer(asset, from, to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return types.ErrZeroAddress.Wrap("transfer to the zero address")
	}
	if amount.Sign() == 0 || from == to {
		return nil
	}
	bal := tx.BalanceOf(asset, from)
	if bal.Cmp(amount) < 0 {
		return types.ErrInsufficientBalance.Wrapf("%s holds %s of %s, needs %s", from.Hex(), bal, asset.Hex(), amount)
	}
	if err := tx.setBalance(asset, from, bal.Sub(bal, amount)); err != nil {
		return err
	}
	return tx.setBalance(asset, to, new(big.Int).Add(tx.BalanceOf(asset, to), amount))
}

// Mint creates amount of asset for holder.
func (tx *Tx) Mint(asset, to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return types.ErrZeroAddress.Wrap("mint to the zero address")
	}
	if amount.Sign() == 0 {
		return types.ErrZeroAmount.Wrap("mint amount")
	}
	if err := tx.setSupply(asset, new(big.Int).Add(tx.TotalSupply(asset), amount)); err != nil {
		return err
	}
	return tx.setBalance(asset, to, new(big.Int).Add(tx.BalanceOf(asset, to), amount))
}

// Burn destroys amount of asset held by from.
func (tx *Tx) Burn(asset, from common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return types.ErrZeroAmount.Wrap("burn amount")
	}
	bal := tx.BalanceOf(asset, from)
	if bal.Cmp(amount) < 0 {
		return types.ErrInsufficientBalance.Wrapf("%s holds %s of %s, burning %s", from.Hex(), bal, asset.Hex(), amount)
	}
	if err := tx.setSupply(asset, new(big.Int).Sub(tx.TotalSupply(asset), amount)); err != nil {
		return err
	}
	return tx.setBalance(asset, from, bal.Sub(bal, amount))
}

func (tx *Tx) setBalance(asset, holder common.Address, amount *big.Int) error {
	holders, ok := tx.ledger.balances[asset]
	if !ok {
		holders = make(map[common.Address]*big.Int)
		tx.ledger.balances[asset] = holders
	}
	return SetKey(tx, holders, holder, amount)
}

func (tx *Tx) setSupply(asset common.Address, amount *big.Int) error {
	return SetKey(tx, tx.ledger.supply, asset, amount)
}

// Set assigns v to *ptr and journals the previous value.
func Set[T any](tx *Tx, ptr *T, v T) error {
	old := *ptr
	if err := tx.Journal(func() { *ptr = old }); err != nil {
		return err
	}
	*ptr = v
	return nil
}

// SetKey assigns m[k] = v and journals the previous entry, including its absence.
func SetKey[K comparable, V any](tx *Tx, m map[K]V, k K, v V) error {
	old, existed := m[k]
	err := tx.Journal(func() {
		if existed {
			m[k] = old
		} else {
			delete(m, k)
		}
	})
	if err != nil {
		return err
	}
	m[k] = v
	return nil
}

// Append appends v to *s and journals the previous length.
func Append[T any](tx *Tx, s *[]T, v T) error {
	old := *s
	if err := tx.Journal(func() { *s = old }); err != nil {
		return err
	}
	*s = append(*s, v)
	return nil
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return types.ErrInvalidAmount.Wrapf("amount %v", amount)
	}
	return nil
}
