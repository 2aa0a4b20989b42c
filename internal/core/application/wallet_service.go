package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-btc-wallet/internal/core/domain"
	"github.com/tdex-network/tdex-btc-wallet/internal/core/ports"
	"github.com/tdex-network/tdex-btc-wallet/pkg/explorer"
	"github.com/tdex-network/tdex-btc-wallet/pkg/stats"
	"github.com/tdex-network/tdex-btc-wallet/pkg/wallet"
	"golang.org/x/sync/errgroup"
)

const (
	PlanKindPayment = "payment"
	PlanKindSweep   = "sweep"
	PlanKindBumpFee = "bumpfee"

	maxIndexConflictRetries = 3
)

type SendPaymentRequest struct {
	Address string
	Amount  int64
	// FeeRate in sats/vbyte, the default one is used if zero
	FeeRate float64
}

type SweepRequest struct {
	Address string
	FeeRate float64
}

type BumpFeeRequest struct {
	TxID    string
	NewFee  int64
	IsFinal bool
}

// SendResult is returned by all spending operations. If the plan could not
// be computed, PlanResult carries the reason and TxID is empty.
type SendResult struct {
	domain.PlanResult
	TxID  string
	TxHex string
}

type WalletService interface {
	Sync(ctx context.Context) ([]domain.DerivedAddress, error)
	DeriveReceiveAddress(ctx context.Context) (string, error)
	ListAddresses(ctx context.Context) ([]domain.DerivedAddress, error)
	ListTransactions(ctx context.Context) ([]domain.Transaction, error)
	ListUtxos(ctx context.Context) (domain.Utxos, error)
	GetBalance(ctx context.Context) (*domain.UtxoClassification, error)
	GetFeeRates(ctx context.Context) ([]domain.FeeRate, error)
	SendPayment(ctx context.Context, req SendPaymentRequest) (*SendResult, error)
	Sweep(ctx context.Context, req SweepRequest) (*SendResult, error)
	BumpFee(ctx context.Context, req BumpFeeRequest) (*SendResult, error)
	EstimateBumpFees(ctx context.Context, txid string) ([]domain.RateFee, error)
}

type WalletServiceOpts struct {
	WalletID         string
	KeyRing          ports.KeyRing
	Repository       domain.AddressIndexRepository
	Explorer         explorer.Service
	Cache            ports.BalanceCache
	Account          uint32
	MinConfirmations int64
	DefaultFeeRate   float64
	// ReceiveScheme is the scheme of the receive and change addresses,
	// native segwit if nil
	ReceiveScheme *wallet.Scheme
}

func (o WalletServiceOpts) validate() error {
	if len(o.WalletID) <= 0 {
		return ErrMissingWalletID
	}
	if o.KeyRing == nil {
		return ErrNullKeyRing
	}
	if o.Repository == nil {
		return ErrNullRepository
	}
	if o.Explorer == nil {
		return ErrNullExplorer
	}
	if o.Cache == nil {
		return ErrNullBalanceCache
	}
	if o.MinConfirmations <= 0 {
		return ErrInvalidMinConfirmations
	}
	if o.DefaultFeeRate <= 0 {
		return ErrInvalidDefaultFeeRate
	}
	return nil
}

type walletService struct {
	walletID         string
	keyRing          ports.KeyRing
	repository       domain.AddressIndexRepository
	explorer         explorer.Service
	cache            ports.BalanceCache
	account          uint32
	minConfirmations int64
	defaultFeeRate   float64
	receiveScheme    *wallet.Scheme
	network          wallet.Network

	scanner *Scanner
	oracle  UsageOracle
}

func NewWalletService(opts WalletServiceOpts) (WalletService, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	receiveScheme := opts.ReceiveScheme
	if receiveScheme == nil {
		receiveScheme = wallet.NativeSegwit
	}
	network := opts.KeyRing.Network()

	return &walletService{
		walletID:         opts.WalletID,
		keyRing:          opts.KeyRing,
		repository:       opts.Repository,
		explorer:         opts.Explorer,
		cache:            opts.Cache,
		account:          opts.Account,
		minConfirmations: opts.MinConfirmations,
		defaultFeeRate:   opts.DefaultFeeRate,
		receiveScheme:    receiveScheme,
		network:          network,
		scanner:          NewScanner(opts.Repository, network, opts.Account),
		oracle:           newExplorerOracle(opts.Explorer),
	}, nil
}

// Sync scans both branches of every scheme and returns all discovered
// addresses.
func (w *walletService) Sync(ctx context.Context) ([]domain.DerivedAddress, error) {
	discovered := make([]domain.DerivedAddress, 0)

	for _, scheme := range wallet.Schemes {
		for _, branch := range []uint32{wallet.ExternalBranch, wallet.InternalBranch} {
			addresses, err := w.scanBranch(ctx, scheme, branch)
			if err != nil {
				return nil, err
			}
			discovered = append(discovered, addresses...)
		}
	}

	if err := w.cache.Invalidate(ctx, w.walletID); err != nil {
		log.WithError(err).Warn("failed to invalidate balance cache")
	}

	log.Debugf("wallet %s synced, discovered %d addresses", w.walletID, len(discovered))
	return discovered, nil
}

func (w *walletService) scanBranch(
	ctx context.Context, scheme *wallet.Scheme, branch uint32,
) ([]domain.DerivedAddress, error) {
	branchKey, err := w.keyRing.BranchKey(scheme, w.account, branch)
	if err != nil {
		return nil, err
	}
	path := domain.BranchPath(scheme, w.network, w.account, branch)

	for attempt := 0; ; attempt++ {
		indexes, err := w.repository.GetIndexes(ctx, w.walletID)
		if err != nil {
			return nil, err
		}

		start := time.Now()
		addresses, err := w.scanner.Scan(
			ctx, w.walletID, scheme, branchKey, branch,
			domain.NextUnusedIndex(indexes, path), w.oracle,
		)
		if errors.Is(err, domain.ErrIndexConflict) &&
			attempt < maxIndexConflictRetries {
			log.Debugf("index of %s changed while scanning, retrying", path)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", path, err)
		}

		stats.ObserveScan(scheme.Name, start, len(addresses))
		return addresses, nil
	}
}

func (w *walletService) DeriveReceiveAddress(ctx context.Context) (string, error) {
	path := domain.BranchPath(
		w.receiveScheme, w.network, w.account, wallet.ExternalBranch,
	)

	for attempt := 0; ; attempt++ {
		indexes, err := w.repository.GetIndexes(ctx, w.walletID)
		if err != nil {
			return "", err
		}

		addr, err := w.nextAddress(indexes, wallet.ExternalBranch)
		if err != nil {
			return "", err
		}

		err = w.repository.IncrementIndexAndStoreAddresses(
			ctx, w.walletID, path, []domain.DerivedAddress{*addr},
			int(addr.Index)-1,
		)
		if errors.Is(err, domain.ErrIndexConflict) &&
			attempt < maxIndexConflictRetries {
			continue
		}
		if err != nil {
			return "", err
		}
		return addr.Address, nil
	}
}

func (w *walletService) ListAddresses(
	ctx context.Context,
) ([]domain.DerivedAddress, error) {
	return w.repository.GetAddresses(ctx, w.walletID)
}

func (w *walletService) ListTransactions(
	ctx context.Context,
) ([]domain.Transaction, error) {
	state, err := w.loadState(ctx)
	if err != nil {
		return nil, err
	}
	return state.txs, nil
}

func (w *walletService) ListUtxos(ctx context.Context) (domain.Utxos, error) {
	return w.cache.GetUtxos(ctx, w.walletID, w.loadUtxos)
}

func (w *walletService) GetBalance(
	ctx context.Context,
) (*domain.UtxoClassification, error) {
	classification, _, _, err := w.classify(ctx)
	return classification, err
}

// GetFeeRates returns the fee estimates of the explorer sorted by target,
// followed by a floor rate equal to the lowest one.
func (w *walletService) GetFeeRates(ctx context.Context) ([]domain.FeeRate, error) {
	estimates, err := w.explorer.GetFeeEstimates(ctx)
	if err != nil {
		return nil, err
	}

	targets := make([]int, 0, len(estimates))
	for blocks, rate := range estimates {
		if rate > 0 {
			targets = append(targets, blocks)
		}
	}
	sort.Ints(targets)

	floor := w.defaultFeeRate
	rates := make([]domain.FeeRate, 0, len(targets)+1)
	for i, blocks := range targets {
		blocks := blocks
		rate := estimates[blocks]
		if i == 0 || rate < floor {
			floor = rate
		}
		rates = append(rates, domain.FeeRate{
			Network:      w.network.Key,
			BlocksCount:  &blocks,
			SatsPerVByte: rate,
		})
	}
	rates = append(rates, domain.FeeRate{
		Network:      w.network.Key,
		SatsPerVByte: floor,
	})
	return rates, nil
}

func (w *walletService) SendPayment(
	ctx context.Context, req SendPaymentRequest,
) (*SendResult, error) {
	classification, indexes, book, err := w.classify(ctx)
	if err != nil {
		return nil, err
	}
	change, err := w.nextAddress(indexes, wallet.InternalBranch)
	if err != nil {
		return nil, err
	}

	plan, perr := domain.PlanPayment(domain.PaymentOpts{
		Amount:        req.Amount,
		TargetAddress: req.Address,
		ChangeAddress: change.Address,
		FeeRate:       w.feeRateOrDefault(req.FeeRate),
		Candidates:    classification.Signable,
		Network:       w.network,
	})
	if perr != nil {
		return w.planFailed(PlanKindPayment, perr), nil
	}
	return w.signAndBroadcast(ctx, PlanKindPayment, plan, book, change, nil)
}

func (w *walletService) Sweep(
	ctx context.Context, req SweepRequest,
) (*SendResult, error) {
	classification, _, book, err := w.classify(ctx)
	if err != nil {
		return nil, err
	}

	plan, perr := domain.PlanSweep(domain.SweepOpts{
		TargetAddress: req.Address,
		FeeRate:       w.feeRateOrDefault(req.FeeRate),
		Candidates:    classification.Signable,
		Network:       w.network,
	})
	if perr != nil {
		return w.planFailed(PlanKindSweep, perr), nil
	}
	return w.signAndBroadcast(ctx, PlanKindSweep, plan, book, nil, nil)
}

func (w *walletService) BumpFee(
	ctx context.Context, req BumpFeeRequest,
) (*SendResult, error) {
	oldTx, state, err := w.findTransaction(ctx, req.TxID)
	if err != nil {
		return nil, err
	}
	classification, err := w.classifyState(ctx, state)
	if err != nil {
		return nil, err
	}
	change, err := w.nextAddress(state.indexes, wallet.InternalBranch)
	if err != nil {
		return nil, err
	}

	plan, perr := domain.ComputeReplacement(domain.ReplacementOpts{
		OldTx:         *oldTx,
		NewFee:        req.NewFee,
		ChangeAddress: change.Address,
		Candidates:    classification.Signable,
		Book:          state.book,
		IsFinal:       req.IsFinal,
		Network:       w.network,
	})
	if perr != nil {
		return w.planFailed(PlanKindBumpFee, perr), nil
	}
	return w.signAndBroadcast(ctx, PlanKindBumpFee, plan, state.book, change, oldTx)
}

func (w *walletService) EstimateBumpFees(
	ctx context.Context, txid string,
) ([]domain.RateFee, error) {
	oldTx, state, err := w.findTransaction(ctx, txid)
	if err != nil {
		return nil, err
	}
	classification, err := w.classifyState(ctx, state)
	if err != nil {
		return nil, err
	}
	change, err := w.nextAddress(state.indexes, wallet.InternalBranch)
	if err != nil {
		return nil, err
	}
	rates, err := w.GetFeeRates(ctx)
	if err != nil {
		return nil, err
	}

	table, perr := domain.EstimateFeesForRates(domain.FeeTableOpts{
		OldTx:         *oldTx,
		ChangeAddress: change.Address,
		Rates:         rates,
		Candidates:    classification.Signable,
		Book:          state.book,
		Network:       w.network,
	})
	if perr != nil {
		return nil, perr
	}
	return table, nil
}

// walletState is a consistent snapshot of the wallet
type walletState struct {
	indexes []domain.AddressIndexRecord
	book    domain.AddressBook
	txs     []domain.Transaction
}

// loadState fetches the history of all wallet addresses together with the
// chain tip, and returns the reconciled list of transactions.
func (w *walletService) loadState(ctx context.Context) (*walletState, error) {
	indexes, err := w.repository.GetIndexes(ctx, w.walletID)
	if err != nil {
		return nil, err
	}
	addresses, err := w.repository.GetAddresses(ctx, w.walletID)
	if err != nil {
		return nil, err
	}
	book := domain.NewAddressBook(addresses)

	state := &walletState{
		indexes: indexes,
		book:    book,
		txs:     make([]domain.Transaction, 0),
	}
	if len(addresses) <= 0 {
		return state, nil
	}

	var (
		history []explorer.Transaction
		tip     int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		history, err = w.explorer.GetTransactionsForAddresses(gctx, book.Addresses())
		return err
	})
	g.Go(func() error {
		var err error
		tip, err = w.explorer.GetBlockHeight(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	txs := domain.UpdateConfirmations(toDomainTransactions(history), tip)
	state.txs = domain.ReconcileTransactions(txs)
	return state, nil
}

func (w *walletService) loadUtxos(ctx context.Context) (domain.Utxos, error) {
	state, err := w.loadState(ctx)
	if err != nil {
		return nil, err
	}
	return domain.UtxosFromTransactions(state.txs, state.book), nil
}

func (w *walletService) classify(ctx context.Context) (
	*domain.UtxoClassification, []domain.AddressIndexRecord,
	domain.AddressBook, error,
) {
	indexes, err := w.repository.GetIndexes(ctx, w.walletID)
	if err != nil {
		return nil, nil, nil, err
	}
	addresses, err := w.repository.GetAddresses(ctx, w.walletID)
	if err != nil {
		return nil, nil, nil, err
	}
	state := &walletState{
		indexes: indexes,
		book:    domain.NewAddressBook(addresses),
	}

	classification, err := w.classifyState(ctx, state)
	if err != nil {
		return nil, nil, nil, err
	}
	return classification, state.indexes, state.book, nil
}

func (w *walletService) classifyState(
	ctx context.Context, state *walletState,
) (*domain.UtxoClassification, error) {
	utxos, err := w.ListUtxos(ctx)
	if err != nil {
		return nil, err
	}

	return domain.ClassifyUtxos(domain.ClassifyOpts{
		Utxos:            utxos,
		Indexes:          state.indexes,
		Book:             state.book,
		Deriver:          w.keyRing,
		Account:          w.account,
		MinConfirmations: w.minConfirmations,
		Network:          w.network,
	})
}

func (w *walletService) findTransaction(
	ctx context.Context, txid string,
) (*domain.Transaction, *walletState, error) {
	state, err := w.loadState(ctx)
	if err != nil {
		return nil, nil, err
	}
	for _, tx := range state.txs {
		if tx.TxID == txid {
			tx := tx
			return &tx, state, nil
		}
	}
	return nil, nil, ErrTransactionNotFound
}

// nextAddress derives the first unallocated address of the given branch of
// the receive scheme, without allocating it.
func (w *walletService) nextAddress(
	indexes []domain.AddressIndexRecord, branch uint32,
) (*domain.DerivedAddress, error) {
	path := domain.BranchPath(w.receiveScheme, w.network, w.account, branch)
	index := domain.NextUnusedIndex(indexes, path)

	addresses, err := w.keyRing.DeriveAddresses(
		w.receiveScheme, w.account, branch, index, index+1,
	)
	if err != nil {
		return nil, err
	}
	return &domain.DerivedAddress{
		Address: addresses[0],
		Scheme:  w.receiveScheme,
		Branch:  branch,
		Index:   index,
	}, nil
}

func (w *walletService) feeRateOrDefault(feeRate float64) float64 {
	if feeRate > 0 {
		return feeRate
	}
	return w.defaultFeeRate
}

func (w *walletService) planFailed(kind string, err *domain.PlanningError) *SendResult {
	log.Debugf("%s plan failed: %s", kind, err)
	stats.ObservePlan(kind, err.Kind.String())
	return &SendResult{PlanResult: domain.NewPlanResult(nil, err)}
}

// signAndBroadcast signs the transaction described by plan with the keys of
// the wallet and broadcasts it. The change address, if used, is allocated
// and the balance cache is updated once the transaction is accepted.
func (w *walletService) signAndBroadcast(
	ctx context.Context, kind string, plan *domain.TxPlan,
	book domain.AddressBook, change *domain.DerivedAddress,
	replaced *domain.Transaction,
) (*SendResult, error) {
	stats.ObservePlan(kind, "")

	keys := make(map[string]wallet.KeyMaterial, len(plan.Utxos))
	for _, u := range plan.Utxos {
		if _, ok := keys[u.Address]; ok {
			continue
		}
		derived, ok := book[u.Address]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownUtxoAddress, u.Address)
		}
		key, err := w.keyRing.KeyMaterial(
			derived.Scheme, w.account, derived.Branch, derived.Index,
		)
		if err != nil {
			return nil, err
		}
		keys[u.Address] = key
	}

	opts := plan.BuildTxOpts()
	opts.Keys = keys
	tx, err := wallet.BuildTx(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to build transaction: %w", err)
	}
	txHex, err := wallet.SerializeTx(tx)
	if err != nil {
		return nil, err
	}

	txid, err := w.explorer.BroadcastTransaction(ctx, txHex)
	if err != nil {
		return nil, fmt.Errorf("failed to broadcast transaction: %w", err)
	}
	stats.ObserveBroadcast(kind, plan.Fee)
	log.Infof("broadcasted %s transaction %s", kind, txid)

	if change != nil && plan.HasChange() && plan.ChangeAddress == change.Address {
		path := domain.BranchPath(change.Scheme, w.network, w.account, change.Branch)
		if err := w.repository.IncrementIndexAndStoreAddresses(
			ctx, w.walletID, path, []domain.DerivedAddress{*change},
			int(change.Index)-1,
		); err != nil {
			log.WithError(err).Warnf("failed to allocate change address %s", change.Address)
		}
		book[change.Address] = *change
	}

	delta := domain.ComputeUtxoDelta(plan, txid, book)
	if replaced != nil {
		delta = delta.WithReplaced(*replaced)
	}
	if err := w.cache.ApplyDelta(ctx, w.walletID, delta); err != nil {
		log.WithError(err).Warn("failed to update balance cache, invalidating")
		if err := w.cache.Invalidate(ctx, w.walletID); err != nil {
			log.WithError(err).Warn("failed to invalidate balance cache")
		}
	}

	return &SendResult{
		PlanResult: domain.NewPlanResult(plan, nil),
		TxID:       txid,
		TxHex:      txHex,
	}, nil
}
