package app

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/log"
	abci "github.com/cometbft/cometbft/abci/types"
	"github.com/ethereum/go-ethereum/common"

	"obscuraplay/internal/codec"
	"obscuraplay/internal/fhe"
	"obscuraplay/internal/ledger"
	"obscuraplay/internal/ledger/types"
	"obscuraplay/internal/state"
)

const (
	AppVersion uint64 = 1
)

// GridApp is the ABCI application hosting the grid ledger. CometBFT delivers blocks in
// order and the app applies each tx under mu on a staged copy of state.
type GridApp struct {
	*abci.BaseApplication

	home     string
	contract common.Address
	engine   fhe.Evaluator
	logger   log.Logger

	mu       sync.RWMutex
	st       *state.State
	lastHash []byte
}

func New(home string, contract common.Address, engine fhe.Evaluator, logger log.Logger) (*GridApp, error) {
	if engine == nil {
		return nil, fmt.Errorf("app: engine is nil")
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	st, err := state.Load(filepath.Join(home, "app"))
	if err != nil {
		return nil, err
	}
	return &GridApp{
		BaseApplication: abci.NewBaseApplication(),
		home:            home,
		contract:        contract,
		engine:          engine,
		logger:          logger.With("module", "app"),
		st:              st,
		lastHash:        st.AppHash(),
	}, nil
}

func (a *GridApp) Info(_ context.Context, _ *abci.InfoRequest) (*abci.InfoResponse, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return &abci.InfoResponse{
		Data:             "obscuraplay grid",
		Version:          "v1",
		AppVersion:       AppVersion,
		LastBlockHeight:  a.st.Height,
		LastBlockAppHash: a.lastHash,
	}, nil
}

// CheckTx rejects txs that can never succeed: bad encoding, bad signature, stale nonce
// or malformed input proofs. Ledger preconditions are left to FinalizeBlock.
func (a *GridApp) CheckTx(_ context.Context, req *abci.CheckTxRequest) (*abci.CheckTxResponse, error) {
	env, err := codec.DecodeTxEnvelope(req.Tx)
	if err != nil {
		return checkErr(types.ErrInvalidRequest.Wrap(err.Error())), nil
	}
	tx, err := decodeGridTx(env)
	if err != nil {
		return checkErr(err), nil
	}

	a.mu.RLock()
	_, err = requirePlayerAuth(a.st, a.signDomain(), env, tx.player)
	a.mu.RUnlock()
	if err != nil {
		return checkErr(err), nil
	}

	if tx.move != nil {
		for _, in := range []fhe.EncryptedInput{tx.move.X, tx.move.Y} {
			if err := fhe.VerifyInputProof(in, tx.player, a.contract); err != nil {
				return checkErr(types.ErrInvalidProof.Wrap(err.Error())), nil
			}
		}
	}
	return &abci.CheckTxResponse{Code: 0}, nil
}

func (a *GridApp) InitChain(_ context.Context, req *abci.InitChainRequest) (*abci.InitChainResponse, error) {
	if req.ChainId == "" {
		return nil, fmt.Errorf("init chain: empty chain id")
	}
	a.mu.Lock()
	a.st.ChainID = req.ChainId
	a.mu.Unlock()

	a.logger.Info("init chain", "chain_id", req.ChainId, "contract", a.contract.Hex())
	return &abci.InitChainResponse{}, nil
}

// signDomain is the deployment every tx signature must be bound to. Callers hold mu.
func (a *GridApp) signDomain() codec.SignDomain {
	return codec.SignDomain{ChainID: a.st.ChainID, Contract: a.contract}
}

func (a *GridApp) FinalizeBlock(ctx context.Context, req *abci.FinalizeBlockRequest) (*abci.FinalizeBlockResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.st.Height = req.Height

	txResults := make([]*abci.ExecTxResult, 0, len(req.Txs))
	for i, txBytes := range req.Txs {
		res := a.deliverTx(ctx, txBytes, req.Height, i)
		if res.Code != 0 {
			a.logger.Debug("tx rejected", "height", req.Height, "index", i, "codespace", res.Codespace, "code", res.Code, "log", res.Log)
		}
		txResults = append(txResults, res)
	}

	a.lastHash = a.st.AppHash()

	return &abci.FinalizeBlockResponse{
		TxResults: txResults,
		AppHash:   a.lastHash,
	}, nil
}

func (a *GridApp) Commit(_ context.Context, _ *abci.CommitRequest) (*abci.CommitResponse, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if err := a.st.Save(filepath.Join(a.home, "app")); err != nil {
		// Returning the error halts the node instead of diverging from the block store.
		return nil, err
	}
	return &abci.CommitResponse{}, nil
}

type gridTx struct {
	player   common.Address
	move     *codec.GridMoveTx
	disclose bool
}

func decodeGridTx(env codec.TxEnvelope) (gridTx, error) {
	switch env.Type {
	case types.TxJoin:
		var msg codec.GridJoinTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return gridTx{}, types.ErrInvalidRequest.Wrapf("bad %s value", env.Type)
		}
		p, err := parsePlayer(msg.Player)
		return gridTx{player: p}, err

	case types.TxMove:
		var msg codec.GridMoveTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return gridTx{}, types.ErrInvalidRequest.Wrapf("bad %s value", env.Type)
		}
		p, err := parsePlayer(msg.Player)
		return gridTx{player: p, move: &msg}, err

	case types.TxDisclose:
		var msg codec.GridDiscloseTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return gridTx{}, types.ErrInvalidRequest.Wrapf("bad %s value", env.Type)
		}
		p, err := parsePlayer(msg.Player)
		return gridTx{player: p, disclose: true}, err

	default:
		return gridTx{}, types.ErrUnknownTx.Wrap(env.Type)
	}
}

func (a *GridApp) deliverTx(ctx context.Context, txBytes []byte, height int64, txIndex int) *abci.ExecTxResult {
	env, err := codec.DecodeTxEnvelope(txBytes)
	if err != nil {
		return errResult(types.ErrInvalidRequest.Wrap(err.Error()))
	}
	tx, err := decodeGridTx(env)
	if err != nil {
		return errResult(err)
	}
	nonce, err := requirePlayerAuth(a.st, a.signDomain(), env, tx.player)
	if err != nil {
		return errResult(err)
	}

	// Stage on a clone; player records and grants change only when the transition succeeds.
	next, err := a.st.Clone()
	if err != nil {
		return errResult(err)
	}
	k := ledger.NewKeeper(next, a.engine, a.contract, a.logger)

	var events []abci.Event
	switch {
	case tx.move != nil:
		events, err = k.Move(ctx, tx.player, tx.move.X, tx.move.Y)
	case tx.disclose:
		events, err = k.Disclose(tx.player)
	default:
		events, err = k.Join(ctx, tx.player, a.joinSeed(height, txIndex, tx.player))
	}
	if err != nil {
		// Authenticated but rejected: the nonce is still spent, so these bytes never
		// apply later.
		a.st.NonceMax[tx.player] = nonce
		return errResult(err)
	}

	next.NonceMax[tx.player] = nonce
	a.st = next
	return &abci.ExecTxResult{Code: 0, Events: events}
}

// joinSeed = sha256(lastAppHash || u64be(height) || u32be(txIndex) || player).
// Every node computes the same value and no player can pick it.
func (a *GridApp) joinSeed(height int64, txIndex int, player common.Address) []byte {
	buf := make([]byte, 0, len(a.lastHash)+8+4+common.AddressLength)
	buf = append(buf, a.lastHash...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(height))
	buf = binary.BigEndian.AppendUint32(buf, uint32(txIndex))
	buf = append(buf, player.Bytes()...)
	sum := sha256.Sum256(buf)
	return sum[:]
}

func parsePlayer(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, types.ErrInvalidRequest.Wrapf("invalid player address %q", s)
	}
	return common.HexToAddress(s), nil
}

func errResult(err error) *abci.ExecTxResult {
	codespace, code, _ := errorsmod.ABCIInfo(err, false)
	return &abci.ExecTxResult{Codespace: codespace, Code: code, Log: err.Error()}
}

func checkErr(err error) *abci.CheckTxResponse {
	codespace, code, _ := errorsmod.ABCIInfo(err, false)
	return &abci.CheckTxResponse{Codespace: codespace, Code: code, Log: err.Error()}
}
