package ledger

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"cosmossdk.io/log"
	dbm "github.com/cosmos/cosmos-db"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"obscuraplay/internal/coprocessor"
	"obscuraplay/internal/fhe"
	"obscuraplay/internal/gcrypto"
	"obscuraplay/internal/ledger/types"
	"obscuraplay/internal/state"
)

var (
	contract = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	alice    = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob      = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

type fixture struct {
	st     *state.State
	engine *coprocessor.Coprocessor
	k      Keeper
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	kp, err := gcrypto.GenerateKeyPair(rand.Reader)
	require.NoError(t, err)
	engine, err := coprocessor.New(dbm.NewMemDB(), kp, log.NewNopLogger())
	require.NoError(t, err)
	st := state.NewState()
	return &fixture{st: st, engine: engine, k: NewKeeper(st, engine, contract, log.NewNopLogger())}
}

func (f *fixture) join(t require.TestingT, player common.Address) {
	_, err := f.k.Join(context.Background(), player, []byte("seed|"+player.Hex()))
	require.NoError(t, err)
}

func (f *fixture) inputs(t require.TestingT, player common.Address, x, y uint8) (fhe.EncryptedInput, fhe.EncryptedInput) {
	in, err := fhe.NewInputBuilder(f.engine.NetworkKey(), contract, player).Add8(x).Add8(y).Encrypt()
	require.NoError(t, err)
	return in[0], in[1]
}

func (f *fixture) decrypt(t require.TestingT, h fhe.Handle) fhe.Plaintext {
	pt, err := f.engine.Decrypt(context.Background(), h)
	require.NoError(t, err)
	return pt
}

func (f *fixture) position(t require.TestingT, player common.Address) (uint64, uint64) {
	xh, yh := f.k.Position(player)
	x, err := f.decrypt(t, xh).Uint64()
	require.NoError(t, err)
	y, err := f.decrypt(t, yh).Uint64()
	require.NoError(t, err)
	return x, y
}

func TestJoin_PlacesPlayerOnBoard(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 40; i++ {
		player := common.BigToAddress(big.NewInt(int64(1000 + i)))
		f.join(t, player)

		x, y := f.position(t, player)
		require.GreaterOrEqual(t, x, uint64(1))
		require.LessOrEqual(t, x, uint64(types.GridSize))
		require.GreaterOrEqual(t, y, uint64(1))
		require.LessOrEqual(t, y, uint64(types.GridSize))

		id, err := f.decrypt(t, f.k.IdentityHandle(player)).Address()
		require.NoError(t, err)
		require.Equal(t, player, id)

		xh, yh := f.k.Position(player)
		for _, h := range []fhe.Handle{xh, yh, f.k.IdentityHandle(player)} {
			require.True(t, f.st.CanDecrypt(h, player, contract))
			require.False(t, f.st.IsPublic(h))
		}
	}
}

func TestJoin_Twice(t *testing.T) {
	f := newFixture(t)
	f.join(t, alice)
	xh, yh := f.k.Position(alice)

	_, err := f.k.Join(context.Background(), alice, []byte("other seed"))
	require.True(t, errors.Is(err, types.ErrAlreadyJoined))

	x2, y2 := f.k.Position(alice)
	require.Equal(t, xh, x2)
	require.Equal(t, yh, y2)
	require.Equal(t, uint64(1), f.k.PlayerCount())
}

func TestReads_BeforeJoin(t *testing.T) {
	f := newFixture(t)
	require.False(t, f.k.HasJoined(alice))
	xh, yh := f.k.Position(alice)
	require.True(t, xh.IsZero())
	require.True(t, yh.IsZero())
	require.True(t, f.k.IdentityHandle(alice).IsZero())
	require.Equal(t, uint64(0), f.k.PlayerCount())
	require.Equal(t, uint8(9), f.k.GridSize())

	_, err := f.k.IdentityHandleAt(0)
	require.True(t, errors.Is(err, types.ErrIndexOutOfRange))
}

func TestMove_Vectors(t *testing.T) {
	cases := []struct {
		inX, inY     uint8
		wantX, wantY uint64
	}{
		{0, 10, 1, 2},
		{255, 255, 4, 4},
		{8, 9, 9, 1},
		{1, 17, 2, 9},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%d_%d", tc.inX, tc.inY), func(t *testing.T) {
			f := newFixture(t)
			f.join(t, alice)
			oldX, oldY := f.k.Position(alice)

			xIn, yIn := f.inputs(t, alice, tc.inX, tc.inY)
			_, err := f.k.Move(context.Background(), alice, xIn, yIn)
			require.NoError(t, err)

			x, y := f.position(t, alice)
			require.Equal(t, tc.wantX, x)
			require.Equal(t, tc.wantY, y)

			newX, newY := f.k.Position(alice)
			require.NotEqual(t, oldX, newX)
			require.NotEqual(t, oldY, newY)
			require.True(t, f.st.CanDecrypt(newX, alice, contract))
			require.True(t, f.st.CanDecrypt(newY, alice, contract))
			// Old grants stay in place.
			require.True(t, f.st.CanDecrypt(oldX, alice, contract))
		})
	}
}

func TestMove_CanonicalizationLaw(t *testing.T) {
	f := newFixture(t)
	f.join(t, alice)

	rapid.Check(t, func(rt *rapid.T) {
		vx := rapid.Uint8().Draw(rt, "x")
		vy := rapid.Uint8().Draw(rt, "y")

		xIn, yIn := f.inputs(rt, alice, vx, vy)
		_, err := f.k.Move(context.Background(), alice, xIn, yIn)
		require.NoError(rt, err)

		x, y := f.position(rt, alice)
		if x != uint64(vx)%9+1 || y != uint64(vy)%9+1 {
			rt.Fatalf("move(%d,%d) landed on (%d,%d)", vx, vy, x, y)
		}
	})
}

func TestMove_BeforeJoin(t *testing.T) {
	f := newFixture(t)
	xIn, yIn := f.inputs(t, alice, 1, 1)
	_, err := f.k.Move(context.Background(), alice, xIn, yIn)
	require.True(t, errors.Is(err, types.ErrNotJoined))
	require.False(t, f.k.HasJoined(alice))
}

func TestMove_RejectsForeignInput(t *testing.T) {
	f := newFixture(t)
	f.join(t, alice)
	f.join(t, bob)
	before := f.st.AppHash()

	// bob's inputs replayed by alice.
	xIn, yIn := f.inputs(t, bob, 3, 3)
	_, err := f.k.Move(context.Background(), alice, xIn, yIn)
	require.True(t, errors.Is(err, types.ErrInvalidProof))
	require.Equal(t, before, f.st.AppHash())

	// A valid x cannot carry an invalid y.
	goodX, _ := f.inputs(t, alice, 3, 3)
	_, err = f.k.Move(context.Background(), alice, goodX, yIn)
	require.True(t, errors.Is(err, types.ErrInvalidProof))
	require.Equal(t, before, f.st.AppHash())
}

func TestDisclose(t *testing.T) {
	f := newFixture(t)

	_, err := f.k.Disclose(alice)
	require.True(t, errors.Is(err, types.ErrNotJoined))

	f.join(t, alice)
	id := f.k.IdentityHandle(alice)
	require.False(t, f.st.CanDecrypt(id, bob, contract))

	_, err = f.k.Disclose(alice)
	require.NoError(t, err)
	require.True(t, f.st.IsPublic(id))
	require.True(t, f.st.CanDecrypt(id, bob, contract))
	require.True(t, f.st.Players[alice].PubliclyDisclosed)

	afterFirst := f.st.AppHash()
	_, err = f.k.Disclose(alice)
	require.NoError(t, err)
	require.Equal(t, afterFirst, f.st.AppHash())

	// Position stays private.
	xh, _ := f.k.Position(alice)
	require.False(t, f.st.IsPublic(xh))
}

func TestPlayerDirectory_Monotonic(t *testing.T) {
	f := newFixture(t)
	players := []common.Address{alice, bob, common.HexToAddress("0xca7")}

	var prev uint64
	for i, p := range players {
		f.join(t, p)
		n := f.k.PlayerCount()
		require.Equal(t, prev+1, n)
		prev = n

		h, err := f.k.IdentityHandleAt(uint64(i))
		require.NoError(t, err)
		require.Equal(t, f.k.IdentityHandle(p), h)

		// Failed operations do not change the count.
		_, _ = f.k.Join(context.Background(), p, []byte("again"))
		_, _ = f.k.Disclose(p)
		require.Equal(t, n, f.k.PlayerCount())
	}
}
