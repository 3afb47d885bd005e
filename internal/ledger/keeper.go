package ledger

import (
	"context"
	"errors"
	"fmt"

	"cosmossdk.io/log"
	abci "github.com/cometbft/cometbft/abci/types"
	"github.com/ethereum/go-ethereum/common"

	"obscuraplay/internal/fhe"
	"obscuraplay/internal/ledger/types"
	"obscuraplay/internal/state"
)

// Keeper applies grid transitions to one state snapshot. The app builds a Keeper per tx
// over a staged clone, so a failed transition never reaches committed state.
type Keeper struct {
	st       *state.State
	engine   fhe.Evaluator
	contract common.Address
	logger   log.Logger
}

func NewKeeper(st *state.State, engine fhe.Evaluator, contract common.Address, logger log.Logger) Keeper {
	if st == nil {
		panic("grid keeper: state is nil")
	}
	if engine == nil {
		panic("grid keeper: engine is nil")
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return Keeper{
		st:       st,
		engine:   engine,
		contract: contract,
		logger:   logger.With("module", "x/"+types.ModuleName),
	}
}

func (k Keeper) Contract() common.Address { return k.contract }

// GridSize is the side length of the board.
func (k Keeper) GridSize() uint8 { return types.GridSize }

func (k Keeper) HasJoined(player common.Address) bool {
	_, ok := k.st.Player(player)
	return ok
}

// Position returns the current coordinate handles, or zero handles when player has not
// joined.
func (k Keeper) Position(player common.Address) (x, y fhe.Handle) {
	p, ok := k.st.Player(player)
	if !ok {
		return fhe.ZeroHandle, fhe.ZeroHandle
	}
	return p.X, p.Y
}

func (k Keeper) IdentityHandle(player common.Address) fhe.Handle {
	p, ok := k.st.Player(player)
	if !ok {
		return fhe.ZeroHandle
	}
	return p.Identity
}

func (k Keeper) PlayerCount() uint64 {
	return uint64(len(k.st.PlayerOrder))
}

func (k Keeper) IdentityHandleAt(index uint64) (fhe.Handle, error) {
	if index >= uint64(len(k.st.PlayerOrder)) {
		return fhe.ZeroHandle, types.ErrIndexOutOfRange.Wrapf("index %d, count %d", index, len(k.st.PlayerOrder))
	}
	return k.IdentityHandle(k.st.PlayerOrder[index]), nil
}

// Join places player at a uniformly random cell and stores its identity encrypted.
// seed must be unique per tx and agreed by every node; the app derives it from the
// block.
func (k Keeper) Join(ctx context.Context, player common.Address, seed []byte) ([]abci.Event, error) {
	if player == (common.Address{}) {
		return nil, types.ErrInvalidRequest.Wrap("missing player")
	}
	if k.HasJoined(player) {
		return nil, types.ErrAlreadyJoined.Wrap(player.Hex())
	}

	x, err := k.randomCoordinate(ctx, seed, "x")
	if err != nil {
		return nil, err
	}
	y, err := k.randomCoordinate(ctx, seed, "y")
	if err != nil {
		return nil, err
	}
	id := k.st.AllocHandle(k.contract, fhe.TypeAddress)
	if err := k.engine.TrivialEncrypt(ctx, id, fhe.AddressValue(player)); err != nil {
		return nil, err
	}

	k.st.Players[player] = &state.Player{
		Joined:   true,
		X:        x,
		Y:        y,
		Identity: id,
	}
	index := len(k.st.PlayerOrder)
	k.st.PlayerOrder = append(k.st.PlayerOrder, player)
	for _, h := range []fhe.Handle{x, y, id} {
		k.st.Allow(h, player, k.contract)
	}

	k.logger.Info("player joined", "player", player.Hex(), "index", index)
	return []abci.Event{newEvent(types.EventTypePlayerJoined, map[string]string{
		types.AttributeKeyPlayer:   player.Hex(),
		types.AttributeKeyIndex:    fmt.Sprintf("%d", index),
		types.AttributeKeyX:        x.Hex(),
		types.AttributeKeyY:        y.Hex(),
		types.AttributeKeyIdentity: id.Hex(),
	})}, nil
}

// Move maps the supplied encrypted coordinates onto the board as (v mod 9) + 1 and
// replaces both position handles. The previous handles keep their grants.
func (k Keeper) Move(ctx context.Context, player common.Address, xIn, yIn fhe.EncryptedInput) ([]abci.Event, error) {
	p, ok := k.st.Player(player)
	if !ok {
		return nil, types.ErrNotJoined.Wrap(player.Hex())
	}

	xRaw, err := k.verifyCoordinate(ctx, xIn, player, "x")
	if err != nil {
		return nil, err
	}
	yRaw, err := k.verifyCoordinate(ctx, yIn, player, "y")
	if err != nil {
		return nil, err
	}

	x, err := k.canonicalize(ctx, xRaw)
	if err != nil {
		return nil, err
	}
	y, err := k.canonicalize(ctx, yRaw)
	if err != nil {
		return nil, err
	}

	p.X, p.Y = x, y
	k.st.Allow(x, player, k.contract)
	k.st.Allow(y, player, k.contract)

	k.logger.Info("player moved", "player", player.Hex())
	return []abci.Event{newEvent(types.EventTypePlayerMoved, map[string]string{
		types.AttributeKeyPlayer: player.Hex(),
		types.AttributeKeyX:      x.Hex(),
		types.AttributeKeyY:      y.Hex(),
	})}, nil
}

// Disclose makes player's identity handle publicly decryptable. Repeating it is a no-op.
func (k Keeper) Disclose(player common.Address) ([]abci.Event, error) {
	p, ok := k.st.Player(player)
	if !ok {
		return nil, types.ErrNotJoined.Wrap(player.Hex())
	}
	if !p.PubliclyDisclosed {
		k.st.AllowPublic(p.Identity, k.contract)
		p.PubliclyDisclosed = true
		k.logger.Info("identity disclosed", "player", player.Hex())
	}
	return []abci.Event{newEvent(types.EventTypeIdentityDisclosed, map[string]string{
		types.AttributeKeyPlayer:   player.Hex(),
		types.AttributeKeyIdentity: p.Identity.Hex(),
	})}, nil
}

func (k Keeper) randomCoordinate(ctx context.Context, seed []byte, axis string) (fhe.Handle, error) {
	r := k.st.AllocHandle(k.contract, fhe.TypeUint8)
	if err := k.engine.RandBounded(ctx, r, types.GridSize, append(append([]byte(nil), seed...), axis...)); err != nil {
		return fhe.ZeroHandle, err
	}
	out := k.st.AllocHandle(k.contract, fhe.TypeUint8)
	if err := k.engine.AddScalar(ctx, out, r, 1); err != nil {
		return fhe.ZeroHandle, err
	}
	return out, nil
}

func (k Keeper) verifyCoordinate(ctx context.Context, in fhe.EncryptedInput, player common.Address, axis string) (fhe.Handle, error) {
	h, err := k.engine.VerifyInput(ctx, in, player, k.contract, fhe.TypeUint8)
	switch {
	case err == nil:
		return h, nil
	case errors.Is(err, fhe.ErrInvalidProof),
		errors.Is(err, fhe.ErrTypeMismatch),
		errors.Is(err, fhe.ErrInvalidCiphertext):
		return fhe.ZeroHandle, types.ErrInvalidProof.Wrapf("%s: %v", axis, err)
	default:
		return fhe.ZeroHandle, err
	}
}

func (k Keeper) canonicalize(ctx context.Context, in fhe.Handle) (fhe.Handle, error) {
	rem := k.st.AllocHandle(k.contract, fhe.TypeUint8)
	if err := k.engine.RemScalar(ctx, rem, in, types.GridSize); err != nil {
		return fhe.ZeroHandle, err
	}
	out := k.st.AllocHandle(k.contract, fhe.TypeUint8)
	if err := k.engine.AddScalar(ctx, out, rem, 1); err != nil {
		return fhe.ZeroHandle, err
	}
	return out, nil
}
