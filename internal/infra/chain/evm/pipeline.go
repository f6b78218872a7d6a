package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/vietddude/blessbot/internal/core/domain"
	"github.com/vietddude/blessbot/internal/infra/storage"
	"github.com/vietddude/blessbot/internal/metrics"
)

const (
	DefaultGasFallback         = 80_000
	DefaultPriorityFeeGwei     = 2
	DefaultConfirmations       = 2
	DefaultReceiptTimeout      = 180 * time.Second
	DefaultReceiptPoll         = 2 * time.Second
	DefaultConfirmationTimeout = 180 * time.Second

	fallbackDecimals = 18
	fallbackSymbol   = "CIK"
)

// Config holds the transfer pipeline settings.
type Config struct {
	RPCURL              string        `yaml:"rpc_url"`
	TokenAddress        string        `yaml:"token_address"`
	TokenDecimals       *uint8        `yaml:"token_decimals"`
	TokenSymbol         string        `yaml:"token_symbol"`
	PriorityFeeGwei     float64       `yaml:"priority_fee_gwei"`
	GasFallback         uint64        `yaml:"gas_fallback"`
	Confirmations       uint64        `yaml:"confirmations"`
	ReceiptTimeout      time.Duration `yaml:"receipt_timeout"`
	ReceiptPollInterval time.Duration `yaml:"receipt_poll_interval"`
	ConfirmationTimeout time.Duration `yaml:"confirmation_timeout"`
	Retry               RetryConfig   `yaml:"retry"`
}

func (c *Config) applyDefaults() {
	if c.PriorityFeeGwei <= 0 {
		c.PriorityFeeGwei = DefaultPriorityFeeGwei
	}
	if c.GasFallback == 0 {
		c.GasFallback = DefaultGasFallback
	}
	if c.Confirmations == 0 {
		c.Confirmations = DefaultConfirmations
	}
	if c.ReceiptTimeout <= 0 {
		c.ReceiptTimeout = DefaultReceiptTimeout
	}
	if c.ReceiptPollInterval <= 0 {
		c.ReceiptPollInterval = DefaultReceiptPoll
	}
	if c.ConfirmationTimeout <= 0 {
		c.ConfirmationTimeout = DefaultConfirmationTimeout
	}
	c.Retry.applyDefaults()
}

// TokenInfo describes the ERC-20 token the pipeline pays out.
type TokenInfo struct {
	Address  string
	Symbol   string
	Decimals uint8
}

// TransferRequest asks for amount tokens to be sent to To on behalf of an event.
type TransferRequest struct {
	EventID int64
	To      string
	Amount  decimal.Decimal
}

// TransferResult describes a confirmed transfer.
type TransferResult struct {
	TxHash      string
	Nonce       uint64
	BlockNumber uint64
	Units       *big.Int
}

// Pipeline sends ERC-20 transfers from a single funder account. It owns the
// funder nonce: seeded from the chain once and advanced only after a
// successful broadcast. Sends are serialized.
type Pipeline struct {
	client    Client
	journal   storage.TransferJournal
	key       *ecdsa.PrivateKey
	from      common.Address
	tokenAddr common.Address
	token     TokenInfo
	chainID   *big.Int
	signer    types.Signer
	tip       *big.Int
	cfg       Config
	log       *slog.Logger

	mu     sync.Mutex
	nonce  uint64
	resync bool
}

// NewPipeline loads chain id, token metadata and the starting nonce.
func NewPipeline(
	ctx context.Context,
	client Client,
	key *ecdsa.PrivateKey,
	journal storage.TransferJournal,
	cfg Config,
) (*Pipeline, error) {
	if key == nil {
		return nil, fmt.Errorf("funder key required")
	}
	if !common.IsHexAddress(cfg.TokenAddress) {
		return nil, fmt.Errorf("invalid token address %q", cfg.TokenAddress)
	}
	cfg.applyDefaults()

	p := &Pipeline{
		client:    client,
		journal:   journal,
		key:       key,
		from:      crypto.PubkeyToAddress(key.PublicKey),
		tokenAddr: common.HexToAddress(cfg.TokenAddress),
		tip:       GweiToWei(decimal.NewFromFloat(cfg.PriorityFeeGwei)),
		cfg:       cfg,
		log:       slog.Default().With("component", "pipeline"),
	}

	chainID, err := withRetry(ctx, cfg.Retry, client.ChainID)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}
	p.chainID = chainID
	p.signer = types.LatestSignerForChainID(chainID)

	p.token = p.loadToken(ctx)

	nonce, err := p.pendingNonce(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending nonce: %w", err)
	}
	p.nonce = nonce
	metrics.FunderNonce.Set(float64(nonce))

	p.log.Info("Transfer pipeline ready",
		"funder", p.from.Hex(),
		"token", p.token.Symbol,
		"token_address", p.token.Address,
		"decimals", p.token.Decimals,
		"chain_id", chainID.String(),
		"nonce", nonce,
	)
	return p, nil
}

func (p *Pipeline) loadToken(ctx context.Context) TokenInfo {
	t := token{client: p.client, address: p.tokenAddr}
	info := TokenInfo{Address: p.tokenAddr.Hex()}

	if p.cfg.TokenDecimals != nil {
		info.Decimals = *p.cfg.TokenDecimals
	} else if d, err := t.decimals(ctx); err == nil {
		info.Decimals = d
	} else {
		p.log.Warn("Could not read token decimals, using fallback", "error", err, "fallback", fallbackDecimals)
		info.Decimals = fallbackDecimals
	}

	if p.cfg.TokenSymbol != "" {
		info.Symbol = p.cfg.TokenSymbol
	} else if s, err := t.symbol(ctx); err == nil && s != "" {
		info.Symbol = s
	} else {
		p.log.Warn("Could not read token symbol, using fallback", "error", err, "fallback", fallbackSymbol)
		info.Symbol = fallbackSymbol
	}
	return info
}

// Token returns the payout token metadata.
func (p *Pipeline) Token() TokenInfo {
	return p.token
}

// Funder returns the sending account.
func (p *Pipeline) Funder() string {
	return p.from.Hex()
}

// ChainID returns the chain id the pipeline signs for.
func (p *Pipeline) ChainID() int64 {
	return p.chainID.Int64()
}

// Nonce returns the next nonce the pipeline will use.
func (p *Pipeline) Nonce() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nonce
}

// Balance returns the funder's token balance.
func (p *Pipeline) Balance(ctx context.Context) (decimal.Decimal, error) {
	t := token{client: p.client, address: p.tokenAddr}
	units, err := t.balanceOf(ctx, p.from)
	if err != nil {
		return decimal.Zero, err
	}
	bal := UintToTokens(units, p.token.Decimals)
	metrics.FunderBalance.Set(bal.InexactFloat64())
	return bal, nil
}

// FeeEstimate is the expected cost of a transfer.
type FeeEstimate struct {
	Gas       uint64
	MaxFee    *big.Int // per gas, wei
	TotalCost *big.Int // gas * max fee, wei
}

// EstimateFee prices a transfer without sending it.
func (p *Pipeline) EstimateFee(ctx context.Context, to string, amount decimal.Decimal) (*FeeEstimate, error) {
	if !common.IsHexAddress(to) {
		return nil, fmt.Errorf("invalid recipient address %q", to)
	}
	data, err := packTransfer(common.HexToAddress(to), TokensToUint(amount, p.token.Decimals))
	if err != nil {
		return nil, fmt.Errorf("failed to pack transfer: %w", err)
	}
	maxFee, err := p.maxFee(ctx)
	if err != nil {
		return nil, err
	}
	gas := p.estimateGas(ctx, data, maxFee)
	return &FeeEstimate{
		Gas:       gas,
		MaxFee:    maxFee,
		TotalCost: new(big.Int).Mul(new(big.Int).SetUint64(gas), maxFee),
	}, nil
}

// nativeTransferGas is the intrinsic gas of a plain value transfer.
const nativeTransferGas = 21000

// EstimateNativeFee prices a plain ETH transfer.
func (p *Pipeline) EstimateNativeFee(ctx context.Context) (*FeeEstimate, error) {
	maxFee, err := p.maxFee(ctx)
	if err != nil {
		return nil, err
	}
	return &FeeEstimate{
		Gas:       nativeTransferGas,
		MaxFee:    maxFee,
		TotalCost: new(big.Int).Mul(big.NewInt(nativeTransferGas), maxFee),
	}, nil
}

// Send transfers tokens and blocks until the transaction is mined.
//
// Every signed transaction is journaled before broadcast. A failure before
// broadcast leaves the nonce untouched. A broadcast the node did not
// explicitly reject, or whose receipt does not arrive in time, yields an
// ambiguous TransferError.
func (p *Pipeline) Send(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	log := p.log.With("event_id", req.EventID)

	if !common.IsHexAddress(req.To) {
		return nil, p.fail(&TransferError{Stage: StageBuild, Err: fmt.Errorf("invalid recipient address %q", req.To)})
	}
	to := common.HexToAddress(req.To)

	units := TokensToUint(req.Amount, p.token.Decimals)
	if units.Sign() <= 0 {
		return nil, p.fail(&TransferError{Stage: StageBuild, Err: fmt.Errorf("amount %s rounds to zero units", req.Amount)})
	}

	data, err := packTransfer(to, units)
	if err != nil {
		return nil, p.fail(&TransferError{Stage: StageBuild, Err: err})
	}

	if p.resync {
		nonce, err := p.pendingNonce(ctx)
		if err != nil {
			return nil, p.fail(&TransferError{Stage: StageBuild, Err: fmt.Errorf("failed to resync nonce: %w", err)})
		}
		log.Info("Resynced nonce from chain", "old", p.nonce, "new", nonce)
		p.nonce = nonce
		p.resync = false
	}

	maxFee, err := p.maxFee(ctx)
	if err != nil {
		return nil, p.fail(&TransferError{Stage: StageEstimate, Err: err})
	}
	gas := p.estimateGas(ctx, data, maxFee)

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   p.chainID,
		Nonce:     p.nonce,
		GasTipCap: p.tip,
		GasFeeCap: maxFee,
		Gas:       gas,
		To:        &p.tokenAddr,
		Value:     big.NewInt(0),
		Data:      data,
	})
	signed, err := types.SignTx(tx, p.signer, p.key)
	if err != nil {
		return nil, p.fail(&TransferError{Stage: StageSign, Err: err})
	}
	hash := signed.Hash().Hex()

	entry := &domain.OutboundTransfer{
		TxHash:    hash,
		EventID:   req.EventID,
		Nonce:     p.nonce,
		ToAddress: to.Hex(),
		Amount:    req.Amount,
		Status:    domain.OutboundSigned,
	}
	if err := p.journal.Record(ctx, entry); err != nil {
		return nil, p.fail(&TransferError{Stage: StageJournal, TxHash: hash, Err: err})
	}

	if err := p.client.SendTransaction(ctx, signed); err != nil {
		// Read the nonce back from the chain before the next send.
		p.resync = true
		if rejectedByNode(err) {
			p.journalStatus(ctx, hash, domain.OutboundFailed, 0)
			return nil, p.fail(&TransferError{Stage: StageBroadcast, TxHash: hash, Err: err})
		}
		// The node may have accepted it; only reconcile can tell.
		p.journalStatus(context.WithoutCancel(ctx), hash, domain.OutboundUnconfirmed, 0)
		return nil, p.fail(&TransferError{Stage: StageBroadcast, TxHash: hash, Ambiguous: true, Err: err})
	}

	usedNonce := p.nonce
	p.nonce++
	metrics.FunderNonce.Set(float64(p.nonce))
	p.journalStatus(ctx, hash, domain.OutboundBroadcast, 0)

	log.Info("Broadcast transfer",
		"amount", FormatAmount(req.Amount, p.token.Decimals),
		"symbol", p.token.Symbol,
		"to", to.Hex(),
		"nonce", usedNonce,
		"gas", gas,
		"tip_wei", p.tip.String(),
		"max_fee_wei", maxFee.String(),
		"tx", hash,
	)

	receipt, err := p.waitReceipt(ctx, signed.Hash())
	if err != nil {
		p.journalStatus(context.WithoutCancel(ctx), hash, domain.OutboundUnconfirmed, 0)
		return nil, p.fail(&TransferError{Stage: StageReceipt, TxHash: hash, Ambiguous: true, Err: err})
	}

	block := receipt.BlockNumber.Uint64()
	if receipt.Status != types.ReceiptStatusSuccessful {
		p.journalStatus(ctx, hash, domain.OutboundReverted, block)
		return nil, p.fail(&TransferError{
			Stage:  StageReceipt,
			TxHash: hash,
			Err:    fmt.Errorf("%w: status %d in block %d", ErrReverted, receipt.Status, block),
		})
	}
	p.journalStatus(ctx, hash, domain.OutboundConfirmed, block)

	p.waitConfirmations(ctx, block)

	metrics.TransfersTotal.WithLabelValues("confirmed").Inc()
	metrics.TransferLatency.Observe(time.Since(start).Seconds())
	log.Info("Transfer finalized", "tx", hash, "block", block, "confirmations", p.cfg.Confirmations)

	return &TransferResult{
		TxHash:      hash,
		Nonce:       usedNonce,
		BlockNumber: block,
		Units:       units,
	}, nil
}

func (p *Pipeline) fail(err *TransferError) error {
	outcome := string(err.Stage)
	if err.Ambiguous {
		outcome = "ambiguous"
	}
	metrics.TransfersTotal.WithLabelValues(outcome).Inc()
	p.log.Error("Transfer failed", "stage", err.Stage, "tx", err.TxHash, "ambiguous", err.Ambiguous, "error", err.Err)
	return err
}

func (p *Pipeline) pendingNonce(ctx context.Context) (uint64, error) {
	return withRetry(ctx, p.cfg.Retry, func(ctx context.Context) (uint64, error) {
		return p.client.PendingNonceAt(ctx, p.from)
	})
}

func (p *Pipeline) maxFee(ctx context.Context) (*big.Int, error) {
	header, err := withRetry(ctx, p.cfg.Retry, func(ctx context.Context) (*types.Header, error) {
		return p.client.HeaderByNumber(ctx, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get latest header: %w", err)
	}
	if header == nil || header.BaseFee == nil {
		return nil, ErrNoBaseFee
	}
	return new(big.Int).Add(header.BaseFee, new(big.Int).Mul(p.tip, big.NewInt(2))), nil
}

func (p *Pipeline) estimateGas(ctx context.Context, data []byte, maxFee *big.Int) uint64 {
	gas, err := p.client.EstimateGas(ctx, ethereum.CallMsg{
		From:      p.from,
		To:        &p.tokenAddr,
		GasFeeCap: maxFee,
		GasTipCap: p.tip,
		Value:     big.NewInt(0),
		Data:      data,
	})
	if err != nil || gas == 0 {
		p.log.Warn("Gas estimation failed, using fallback", "error", err, "fallback", p.cfg.GasFallback)
		return p.cfg.GasFallback
	}
	return gas
}

func (p *Pipeline) journalStatus(ctx context.Context, hash string, status domain.OutboundStatus, block uint64) {
	if err := p.journal.UpdateStatus(ctx, hash, status, block); err != nil {
		p.log.Error("Failed to update transfer journal", "tx", hash, "status", status, "error", err)
	}
}

func (p *Pipeline) waitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	deadline := time.NewTimer(p.cfg.ReceiptTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(p.cfg.ReceiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := p.client.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			p.log.Debug("Receipt lookup failed", "tx", hash.Hex(), "error", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, ErrReceiptTimeout
		case <-ticker.C:
		}
	}
}

// waitConfirmations blocks until the inclusion block has the configured
// depth, counting the inclusion block itself. A timeout is only logged.
func (p *Pipeline) waitConfirmations(ctx context.Context, block uint64) {
	if p.cfg.Confirmations <= 1 {
		return
	}
	target := block + p.cfg.Confirmations - 1

	deadline := time.NewTimer(p.cfg.ConfirmationTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(p.cfg.ReceiptPollInterval)
	defer ticker.Stop()

	var latest uint64
	for {
		n, err := p.client.BlockNumber(ctx)
		if err == nil {
			latest = n
			if latest >= target {
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			p.log.Warn("Timed out waiting for confirmations",
				"confirmations", p.cfg.Confirmations, "latest", latest, "target", target)
			return
		case <-ticker.C:
		}
	}
}
