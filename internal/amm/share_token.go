package amm

import (
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"launchpool/internal/dex"
	"launchpool/internal/ledger"
	"launchpool/internal/model"
	"launchpool/internal/types"
)

// ShareToken is the fungible claim on one pool's reserves. Only the bound
// pool may mint or burn it.
type ShareToken struct {
	address  common.Address
	deployer common.Address
	ledger   *ledger.Ledger

	pool        common.Address
	initialized bool
	totalSupply *big.Int
	balances    map[common.Address]*big.Int
	allowances  map[common.Address]map[common.Address]*big.Int
}

func newShareToken(l *ledger.Ledger, address, deployer common.Address) *ShareToken {
	return &ShareToken{
		address:     address,
		deployer:    deployer,
		ledger:      l,
		totalSupply: new(big.Int),
		balances:    make(map[common.Address]*big.Int),
		allowances:  make(map[common.Address]map[common.Address]*big.Int),
	}
}

// Address returns the token's identifier.
func (s *ShareToken) Address() common.Address {
	return s.address
}

// Initialize binds the token to its pool. Only the deployer may call it, once.
func (s *ShareToken) Initialize(caller, pool common.Address) error {
	return s.ledger.Update(func(tx *ledger.Tx) error {
		return s.initialize(tx, caller, pool)
	})
}

// Mint issues shares; caller must be the bound pool.
func (s *ShareToken) Mint(caller, to common.Address, amount *big.Int) error {
	return s.ledger.Update(func(tx *ledger.Tx) error {
		return s.mint(tx, caller, to, amount)
	})
}

// Burn destroys shares held by from; caller must be the bound pool.
func (s *ShareToken) Burn(caller, from common.Address, amount *big.Int) error {
	return s.ledger.Update(func(tx *ledger.Tx) error {
		return s.burn(tx, caller, from, amount)
	})
}

// Transfer moves the caller's shares to to.
func (s *ShareToken) Transfer(caller, to common.Address, amount *big.Int) error {
	return s.ledger.Update(func(tx *ledger.Tx) error {
		return s.transfer(tx, caller, to, amount)
	})
}

// TransferFrom moves from's shares using the caller's allowance.
func (s *ShareToken) TransferFrom(caller, from, to common.Address, amount *big.Int) error {
	return s.ledger.Update(func(tx *ledger.Tx) error {
		if err := s.spendAllowance(tx, from, caller, amount); err != nil {
			return err
		}
		return s.transfer(tx, from, to, amount)
	})
}

// Approve sets the spender's allowance over the caller's shares.
func (s *ShareToken) Approve(caller, spender common.Address, amount *big.Int) error {
	return s.ledger.Update(func(tx *ledger.Tx) error {
		return s.approve(tx, caller, spender, amount)
	})
}

// IncreaseAllowance raises the spender's allowance by delta.
func (s *ShareToken) IncreaseAllowance(caller, spender common.Address, delta *big.Int) error {
	return s.ledger.Update(func(tx *ledger.Tx) error {
		if err := checkNonNegative(delta); err != nil {
			return err
		}
		current := s.allowance(caller, spender)
		return s.approve(tx, caller, spender, current.Add(current, delta))
	})
}

// DecreaseAllowance lowers the spender's allowance by delta; it never goes below zero.
func (s *ShareToken) DecreaseAllowance(caller, spender common.Address, delta *big.Int) error {
	return s.ledger.Update(func(tx *ledger.Tx) error {
		if err := checkNonNegative(delta); err != nil {
			return err
		}
		current := s.allowance(caller, spender)
		if current.Cmp(delta) < 0 {
			return types.ErrInsufficientAllowance.Wrapf("decreased allowance below zero: %s - %s", current, delta)
		}
		return s.approve(tx, caller, spender, current.Sub(current, delta))
	})
}

// BalanceOf returns the holder's shares.
func (s *ShareToken) BalanceOf(holder common.Address) *big.Int {
	var out *big.Int
	_ = s.ledger.View(func(*ledger.Tx) error {
		out = s.balanceOf(holder)
		return nil
	})
	return out
}

// Allowance returns what spender may still move on behalf of owner.
func (s *ShareToken) Allowance(owner, spender common.Address) *big.Int {
	var out *big.Int
	_ = s.ledger.View(func(*ledger.Tx) error {
		out = s.allowance(owner, spender)
		return nil
	})
	return out
}

// TotalSupply returns the outstanding shares.
func (s *ShareToken) TotalSupply() *big.Int {
	var out *big.Int
	_ = s.ledger.View(func(*ledger.Tx) error {
		out = new(big.Int).Set(s.totalSupply)
		return nil
	})
	return out
}

func (s *ShareToken) initialize(tx *ledger.Tx, caller, pool common.Address) error {
	if s.initialized {
		return types.ErrAlreadyInitialized.Wrapf("share token %s", s.address.Hex())
	}
	if caller != s.deployer {
		return types.ErrForbidden.Wrapf("FORBIDDEN: %s is not the deployer", caller.Hex())
	}
	if pool == (common.Address{}) {
		return types.ErrZeroAddress.Wrap("pool")
	}
	if err := ledger.Set(tx, &s.pool, pool); err != nil {
		return err
	}
	return ledger.Set(tx, &s.initialized, true)
}

func (s *ShareToken) onlyPool(caller common.Address) error {
	if !s.initialized {
		return types.ErrNotInitialized.Wrapf("share token %s", s.address.Hex())
	}
	if caller != s.pool {
		return types.ErrForbidden.Wrapf("%s is not the bound pool", caller.Hex())
	}
	return nil
}

func (s *ShareToken) mint(tx *ledger.Tx, caller, to common.Address, amount *big.Int) error {
	if err := s.onlyPool(caller); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return types.ErrZeroAddress.Wrap("mint to")
	}
	if !positive(amount) {
		return types.ErrZeroAmount.Wrapf("mint amount %v", amount)
	}
	if err := ledger.Set(tx, &s.totalSupply, new(big.Int).Add(s.totalSupply, amount)); err != nil {
		return err
	}
	if err := s.setBalance(tx, to, new(big.Int).Add(s.balanceOf(to), amount)); err != nil {
		return err
	}
	return Emit(tx, s.address, dex.EventTransfer, common.Address{}, to, amount)
}

func (s *ShareToken) burn(tx *ledger.Tx, caller, from common.Address, amount *big.Int) error {
	if err := s.onlyPool(caller); err != nil {
		return err
	}
	if from == (common.Address{}) {
		return types.ErrZeroAddress.Wrap("burn from")
	}
	if !positive(amount) {
		return types.ErrZeroAmount.Wrapf("burn amount %v", amount)
	}
	bal := s.balanceOf(from)
	if bal.Cmp(amount) < 0 {
		return types.ErrInsufficientBalance.Wrapf("%s holds %s shares, burning %s", from.Hex(), bal, amount)
	}
	if err := ledger.Set(tx, &s.totalSupply, new(big.Int).Sub(s.totalSupply, amount)); err != nil {
		return err
	}
	if err := s.setBalance(tx, from, bal.Sub(bal, amount)); err != nil {
		return err
	}
	return Emit(tx, s.address, dex.EventTransfer, from, common.Address{}, amount)
}

func (s *ShareToken) transfer(tx *ledger.Tx, from, to common.Address, amount *big.Int) error {
	if err := checkNonNegative(amount); err != nil {
		return err
	}
	if from == (common.Address{}) || to == (common.Address{}) {
		return types.ErrZeroAddress.Wrap("share transfer")
	}
	bal := s.balanceOf(from)
	if bal.Cmp(amount) < 0 {
		return types.ErrInsufficientBalance.Wrapf("%s holds %s shares, sending %s", from.Hex(), bal, amount)
	}
	if from != to {
		if err := s.setBalance(tx, from, bal.Sub(bal, amount)); err != nil {
			return err
		}
		if err := s.setBalance(tx, to, new(big.Int).Add(s.balanceOf(to), amount)); err != nil {
			return err
		}
	}
	return Emit(tx, s.address, dex.EventTransfer, from, to, amount)
}

func (s *ShareToken) approve(tx *ledger.Tx, owner, spender common.Address, amount *big.Int) error {
	if err := checkNonNegative(amount); err != nil {
		return err
	}
	if owner == (common.Address{}) || spender == (common.Address{}) {
		return types.ErrZeroAddress.Wrap("approve")
	}
	spenders, ok := s.allowances[owner]
	if !ok {
		spenders = make(map[common.Address]*big.Int)
		if err := ledger.SetKey(tx, s.allowances, owner, spenders); err != nil {
			return err
		}
	}
	if err := ledger.SetKey(tx, spenders, spender, new(big.Int).Set(amount)); err != nil {
		return err
	}
	return Emit(tx, s.address, dex.EventApproval, owner, spender, amount)
}

func (s *ShareToken) spendAllowance(tx *ledger.Tx, owner, spender common.Address, amount *big.Int) error {
	if err := checkNonNegative(amount); err != nil {
		return err
	}
	current := s.allowance(owner, spender)
	if current.Cmp(amount) < 0 {
		return types.ErrInsufficientAllowance.Wrapf("allowance %s, spending %s", current, amount)
	}
	spenders := s.allowances[owner]
	return ledger.SetKey(tx, spenders, spender, current.Sub(current, amount))
}

func (s *ShareToken) balanceOf(holder common.Address) *big.Int {
	if bal, ok := s.balances[holder]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

func (s *ShareToken) allowance(owner, spender common.Address) *big.Int {
	if amount, ok := s.allowances[owner][spender]; ok {
		return new(big.Int).Set(amount)
	}
	return new(big.Int)
}

func (s *ShareToken) setBalance(tx *ledger.Tx, holder common.Address, amount *big.Int) error {
	return ledger.SetKey(tx, s.balances, holder, amount)
}

func (s *ShareToken) state() model.ShareState {
	out := model.ShareState{
		Address:     s.address.Hex(),
		Pool:        s.pool.Hex(),
		TotalSupply: s.totalSupply.String(),
	}
	for holder, amount := range s.balances {
		if amount.Sign() == 0 {
			continue
		}
		out.Balances = append(out.Balances, model.BalanceEntry{Holder: holder.Hex(), Amount: amount.String()})
	}
	for owner, spenders := range s.allowances {
		for spender, amount := range spenders {
			if amount.Sign() == 0 {
				continue
			}
			out.Allowances = append(out.Allowances, model.Allowance{Owner: owner.Hex(), Spender: spender.Hex(), Amount: amount.String()})
		}
	}
	sort.Slice(out.Balances, func(i, j int) bool { return out.Balances[i].Holder < out.Balances[j].Holder })
	sort.Slice(out.Allowances, func(i, j int) bool {
		if out.Allowances[i].Owner != out.Allowances[j].Owner {
			return out.Allowances[i].Owner < out.Allowances[j].Owner
		}
		return out.Allowances[i].Spender < out.Allowances[j].Spender
	})
	return out
}

func (s *ShareToken) restore(state model.ShareState) error {
	supply, err := parseAmount(state.TotalSupply)
	if err != nil {
		return err
	}
	s.totalSupply = supply
	s.pool = common.HexToAddress(state.Pool)
	s.initialized = true
	for _, entry := range state.Balances {
		amount, err := parseAmount(entry.Amount)
		if err != nil {
			return err
		}
		s.balances[common.HexToAddress(entry.Holder)] = amount
	}
	for _, entry := range state.Allowances {
		amount, err := parseAmount(entry.Amount)
		if err != nil {
			return err
		}
		owner := common.HexToAddress(entry.Owner)
		if s.allowances[owner] == nil {
			s.allowances[owner] = make(map[common.Address]*big.Int)
		}
		s.allowances[owner][common.HexToAddress(entry.Spender)] = amount
	}
	return nil
}

func checkNonNegative(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return types.ErrInvalidAmount.Wrapf("amount %v", amount)
	}
	return nil
}

func parseAmount(value string) (*big.Int, error) {
	if value == "" {
		return new(big.Int), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok || parsed.Sign() < 0 {
		return nil, types.ErrInvalidAmount.Wrapf("invalid amount: %s", value)
	}
	return parsed, nil
}
