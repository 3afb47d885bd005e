package app

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/json"
	"reflect"
	"testing"

	"cosmossdk.io/log"
	abci "github.com/cometbft/cometbft/abci/types"
	dbm "github.com/cosmos/cosmos-db"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"obscuraplay/internal/codec"
	"obscuraplay/internal/coprocessor"
	"obscuraplay/internal/fhe"
	"obscuraplay/internal/gcrypto"
	"obscuraplay/internal/ledger/types"
	"obscuraplay/internal/relay"
)

var testContract = common.HexToAddress("0x00000000000000000000000000000000000000c0")

const testChainID = "grid-test-1"

var testDomain = codec.SignDomain{ChainID: testChainID, Contract: testContract}

func testKey(t *testing.T, name string) (*ecdsa.PrivateKey, common.Address) {
	t.Helper()
	key, err := crypto.ToECDSA(crypto.Keccak256([]byte("obscuraplay-test-key|" + name)))
	if err != nil {
		t.Fatalf("ToECDSA: %v", err)
	}
	return key, crypto.PubkeyToAddress(key.PublicKey)
}

func txBytesSigned(t *testing.T, key *ecdsa.PrivateKey, typ string, value any, nonce uint64) []byte {
	t.Helper()
	return txBytesFor(t, testDomain, key, typ, value, nonce)
}

func txBytesFor(t *testing.T, d codec.SignDomain, key *ecdsa.PrivateKey, typ string, value any, nonce uint64) []byte {
	t.Helper()
	env, err := codec.NewTxEnvelope(typ, value)
	if err != nil {
		t.Fatalf("NewTxEnvelope: %v", err)
	}
	b, err := codec.SignTx(env, d, key, nonce)
	if err != nil {
		t.Fatalf("SignTx: %v", err)
	}
	return b
}

func findEvent(events []abci.Event, typ string) *abci.Event {
	for i := range events {
		if events[i].Type == typ {
			return &events[i]
		}
	}
	return nil
}

func attr(ev *abci.Event, key string) string {
	if ev == nil {
		return ""
	}
	for _, a := range ev.Attributes {
		if a.Key == key {
			return a.Value
		}
	}
	return ""
}

type testEnv struct {
	home   string
	app    *GridApp
	engine *coprocessor.Coprocessor
}

func newTestApp(t *testing.T) *testEnv {
	t.Helper()
	kp, err := gcrypto.GenerateKeyPair(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	engine, err := coprocessor.New(dbm.NewMemDB(), kp, log.NewNopLogger())
	if err != nil {
		t.Fatalf("coprocessor.New: %v", err)
	}
	home := t.TempDir()
	a, err := New(home, testContract, engine, log.NewNopLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := a.InitChain(context.Background(), &abci.InitChainRequest{ChainId: testChainID}); err != nil {
		t.Fatalf("InitChain: %v", err)
	}
	return &testEnv{home: home, app: a, engine: engine}
}

func mustOk(t *testing.T, res *abci.ExecTxResult) *abci.ExecTxResult {
	t.Helper()
	if res.Code != 0 {
		t.Fatalf("expected ok, got codespace=%s code=%d log=%q", res.Codespace, res.Code, res.Log)
	}
	return res
}

func mustFail(t *testing.T, res *abci.ExecTxResult, want interface {
	Codespace() string
	ABCICode() uint32
}) {
	t.Helper()
	if res.Codespace != want.Codespace() || res.Code != want.ABCICode() {
		t.Fatalf("expected %s/%d, got codespace=%s code=%d log=%q", want.Codespace(), want.ABCICode(), res.Codespace, res.Code, res.Log)
	}
}

func (e *testEnv) moveInputs(t *testing.T, player common.Address, x, y uint8) codec.GridMoveTx {
	t.Helper()
	in, err := fhe.NewInputBuilder(e.engine.NetworkKey(), testContract, player).Add8(x).Add8(y).Encrypt()
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	return codec.GridMoveTx{Player: player.Hex(), X: in[0], Y: in[1]}
}

func (e *testEnv) decryptU64(t *testing.T, h fhe.Handle) uint64 {
	t.Helper()
	pt, err := e.engine.Decrypt(context.Background(), h)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	v, err := pt.Uint64()
	if err != nil {
		t.Fatalf("Uint64: %v", err)
	}
	return v
}

func (e *testEnv) query(t *testing.T, path string, out any) *abci.QueryResponse {
	t.Helper()
	res, err := e.app.Query(context.Background(), &abci.QueryRequest{Path: path})
	if err != nil {
		t.Fatalf("Query(%s): %v", path, err)
	}
	if out != nil && res.Code == 0 {
		if err := json.Unmarshal(res.Value, out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return res
}

func TestJoinMoveDisclose(t *testing.T) {
	ctx := context.Background()
	e := newTestApp(t)
	key, alice := testKey(t, "alice")

	res := mustOk(t, e.app.deliverTx(ctx, txBytesSigned(t, key, types.TxJoin, codec.GridJoinTx{Player: alice.Hex()}, 1), 1, 0))
	ev := findEvent(res.Events, types.EventTypePlayerJoined)
	if ev == nil || attr(ev, types.AttributeKeyPlayer) != alice.Hex() || attr(ev, types.AttributeKeyIndex) != "0" {
		t.Fatalf("unexpected PlayerJoined event: %+v", ev)
	}

	mustOk(t, e.app.deliverTx(ctx, txBytesSigned(t, key, types.TxMove, e.moveInputs(t, alice, 0, 10), 2), 1, 1))

	var view PlayerView
	e.query(t, "/player/"+alice.Hex(), &view)
	if !view.Joined || view.PubliclyDisclosed {
		t.Fatalf("unexpected player view: %+v", view)
	}
	if x, y := e.decryptU64(t, view.X), e.decryptU64(t, view.Y); x != 1 || y != 2 {
		t.Fatalf("move(0,10) landed on (%d,%d), want (1,2)", x, y)
	}

	res = mustOk(t, e.app.deliverTx(ctx, txBytesSigned(t, key, types.TxDisclose, codec.GridDiscloseTx{Player: alice.Hex()}, 3), 1, 2))
	if findEvent(res.Events, types.EventTypeIdentityDisclosed) == nil {
		t.Fatalf("expected IdentityDisclosed event")
	}

	var grants GrantsView
	e.query(t, "/grants/"+view.Identity.Hex(), &grants)
	if !grants.Issued || !grants.Public {
		t.Fatalf("identity should be public after disclose: %+v", grants)
	}
	e.query(t, "/grants/"+view.X.Hex(), &grants)
	if !grants.Issued || grants.Public {
		t.Fatalf("position must stay private: %+v", grants)
	}
}

func TestDeliverTx_Errors(t *testing.T) {
	ctx := context.Background()
	e := newTestApp(t)
	aliceKey, alice := testKey(t, "alice")
	bobKey, _ := testKey(t, "bob")

	mustFail(t, e.app.deliverTx(ctx, txBytesSigned(t, aliceKey, types.TxMove, e.moveInputs(t, alice, 1, 1), 1), 1, 0), types.ErrNotJoined)
	mustFail(t, e.app.deliverTx(ctx, txBytesSigned(t, aliceKey, types.TxDisclose, codec.GridDiscloseTx{Player: alice.Hex()}, 2), 1, 0), types.ErrNotJoined)

	// bob signing a tx on alice's behalf.
	mustFail(t, e.app.deliverTx(ctx, txBytesSigned(t, bobKey, types.TxJoin, codec.GridJoinTx{Player: alice.Hex()}, 1), 1, 0), types.ErrUnauthenticated)

	mustOk(t, e.app.deliverTx(ctx, txBytesSigned(t, aliceKey, types.TxJoin, codec.GridJoinTx{Player: alice.Hex()}, 5), 1, 0))
	mustFail(t, e.app.deliverTx(ctx, txBytesSigned(t, aliceKey, types.TxJoin, codec.GridJoinTx{Player: alice.Hex()}, 6), 1, 1), types.ErrAlreadyJoined)
	mustFail(t, e.app.deliverTx(ctx, txBytesSigned(t, aliceKey, types.TxDisclose, codec.GridDiscloseTx{Player: alice.Hex()}, 5), 1, 2), types.ErrReplayedNonce)

	mustFail(t, e.app.deliverTx(ctx, txBytesSigned(t, aliceKey, "grid/jump", codec.GridJoinTx{Player: alice.Hex()}, 7), 1, 3), types.ErrUnknownTx)
	mustFail(t, e.app.deliverTx(ctx, []byte("{not json"), 1, 4), types.ErrInvalidRequest)
}

func TestAtomicity_FailedMoveLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	e := newTestApp(t)
	aliceKey, alice := testKey(t, "alice")
	_, bob := testKey(t, "bob")

	mustOk(t, e.app.deliverTx(ctx, txBytesSigned(t, aliceKey, types.TxJoin, codec.GridJoinTx{Player: alice.Hex()}, 1), 1, 0))
	var before PlayerView
	e.query(t, "/player/"+alice.Hex(), &before)
	grantsBefore := e.app.st.GrantsFor(before.X)
	seqBefore := e.app.st.NextSeq

	// Inputs bound to bob cannot be used by alice.
	mv := e.moveInputs(t, bob, 4, 4)
	mv.Player = alice.Hex()
	mustFail(t, e.app.deliverTx(ctx, txBytesSigned(t, aliceKey, types.TxMove, mv, 2), 1, 1), types.ErrInvalidProof)

	var after PlayerView
	e.query(t, "/player/"+alice.Hex(), &after)
	if after != before {
		t.Fatalf("failed move changed the record: %+v -> %+v", before, after)
	}
	if got := e.app.st.GrantsFor(before.X); !reflect.DeepEqual(got, grantsBefore) {
		t.Fatalf("failed move changed grants: %+v -> %+v", grantsBefore, got)
	}
	if e.app.st.NextSeq != seqBefore {
		t.Fatalf("failed move allocated handles")
	}

	// The rejected tx spent nonce 2.
	mustFail(t, e.app.deliverTx(ctx, txBytesSigned(t, aliceKey, types.TxMove, e.moveInputs(t, alice, 255, 255), 2), 1, 2), types.ErrReplayedNonce)
	mustOk(t, e.app.deliverTx(ctx, txBytesSigned(t, aliceKey, types.TxMove, e.moveInputs(t, alice, 255, 255), 3), 1, 3))

	var view PlayerView
	e.query(t, "/player/"+alice.Hex(), &view)
	if x, y := e.decryptU64(t, view.X), e.decryptU64(t, view.Y); x != 4 || y != 4 {
		t.Fatalf("move(255,255) landed on (%d,%d), want (4,4)", x, y)
	}
}

func TestReplay_FailedDiscloseStaysDead(t *testing.T) {
	ctx := context.Background()
	e := newTestApp(t)
	aliceKey, alice := testKey(t, "alice")

	// Signed before joining, so it fails; anyone who saw it still holds the bytes.
	early := txBytesSigned(t, aliceKey, types.TxDisclose, codec.GridDiscloseTx{Player: alice.Hex()}, 5)
	mustFail(t, e.app.deliverTx(ctx, early, 1, 0), types.ErrNotJoined)

	mustFail(t, e.app.deliverTx(ctx, txBytesSigned(t, aliceKey, types.TxJoin, codec.GridJoinTx{Player: alice.Hex()}, 1), 2, 0), types.ErrReplayedNonce)
	mustOk(t, e.app.deliverTx(ctx, txBytesSigned(t, aliceKey, types.TxJoin, codec.GridJoinTx{Player: alice.Hex()}, 6), 2, 1))

	mustFail(t, e.app.deliverTx(ctx, early, 3, 0), types.ErrReplayedNonce)

	var view PlayerView
	e.query(t, "/player/"+alice.Hex(), &view)
	if view.PubliclyDisclosed || e.app.st.IsPublic(view.Identity) {
		t.Fatalf("rebroadcast disclose made the identity public")
	}
}

func TestDeliverTx_RejectsOtherDeployments(t *testing.T) {
	ctx := context.Background()
	e := newTestApp(t)
	aliceKey, alice := testKey(t, "alice")
	join := codec.GridJoinTx{Player: alice.Hex()}

	otherChain := codec.SignDomain{ChainID: "grid-test-2", Contract: testContract}
	otherContract := codec.SignDomain{ChainID: testChainID, Contract: common.HexToAddress("0x00000000000000000000000000000000000000c1")}
	for _, d := range []codec.SignDomain{otherChain, otherContract} {
		mustFail(t, e.app.deliverTx(ctx, txBytesFor(t, d, aliceKey, types.TxJoin, join, 1), 1, 0), types.ErrUnauthenticated)
		res, err := e.app.CheckTx(ctx, &abci.CheckTxRequest{Tx: txBytesFor(t, d, aliceKey, types.TxJoin, join, 1)})
		if err != nil || res.Code != types.ErrUnauthenticated.ABCICode() {
			t.Fatalf("CheckTx under %+v: err=%v res=%+v", d, err, res)
		}
	}
	mustOk(t, e.app.deliverTx(ctx, txBytesSigned(t, aliceKey, types.TxJoin, join, 1), 1, 0))
}

func TestCheckTx(t *testing.T) {
	ctx := context.Background()
	e := newTestApp(t)
	aliceKey, alice := testKey(t, "alice")
	_, bob := testKey(t, "bob")

	res, err := e.app.CheckTx(ctx, &abci.CheckTxRequest{Tx: txBytesSigned(t, aliceKey, types.TxJoin, codec.GridJoinTx{Player: alice.Hex()}, 1)})
	if err != nil || res.Code != 0 {
		t.Fatalf("CheckTx join: err=%v res=%+v", err, res)
	}

	mv := e.moveInputs(t, bob, 1, 1)
	mv.Player = alice.Hex()
	res, err = e.app.CheckTx(ctx, &abci.CheckTxRequest{Tx: txBytesSigned(t, aliceKey, types.TxMove, mv, 2)})
	if err != nil {
		t.Fatalf("CheckTx: %v", err)
	}
	if res.Codespace != types.ModuleName || res.Code != types.ErrInvalidProof.ABCICode() {
		t.Fatalf("expected invalid proof, got %+v", res)
	}
}

func TestFinalizeCommit_Reload(t *testing.T) {
	ctx := context.Background()
	e := newTestApp(t)
	aliceKey, alice := testKey(t, "alice")
	bobKey, bob := testKey(t, "bob")

	fin, err := e.app.FinalizeBlock(ctx, &abci.FinalizeBlockRequest{
		Height: 1,
		Txs: [][]byte{
			txBytesSigned(t, aliceKey, types.TxJoin, codec.GridJoinTx{Player: alice.Hex()}, 1),
			txBytesSigned(t, bobKey, types.TxJoin, codec.GridJoinTx{Player: bob.Hex()}, 1),
			txBytesSigned(t, bobKey, types.TxJoin, codec.GridJoinTx{Player: bob.Hex()}, 2),
		},
	})
	if err != nil {
		t.Fatalf("FinalizeBlock: %v", err)
	}
	if fin.TxResults[0].Code != 0 || fin.TxResults[1].Code != 0 || fin.TxResults[2].Code == 0 {
		t.Fatalf("unexpected tx results: %+v", fin.TxResults)
	}
	if _, err := e.app.Commit(ctx, &abci.CommitRequest{}); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	var count map[string]uint64
	e.query(t, "/players/count", &count)
	if count["count"] != 2 {
		t.Fatalf("playerCount=%d want 2", count["count"])
	}
	var grid GridInfo
	e.query(t, "/grid", &grid)
	if grid.GridSize != 9 || grid.PlayerCount != 2 || grid.Contract != testContract {
		t.Fatalf("unexpected grid info: %+v", grid)
	}
	var idx IndexView
	e.query(t, "/players/index/1", &idx)
	var bobView PlayerView
	e.query(t, "/player/"+bob.Hex(), &bobView)
	if idx.Identity != bobView.Identity {
		t.Fatalf("index 1 should be bob's identity handle")
	}
	if res := e.query(t, "/players/index/2", nil); res.Code != types.ErrIndexOutOfRange.ABCICode() {
		t.Fatalf("expected out of range, got code=%d", res.Code)
	}

	reloaded, err := New(e.home, testContract, e.engine, log.NewNopLogger())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	info, err := reloaded.Info(ctx, &abci.InfoRequest{})
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.LastBlockHeight != 1 || !bytes.Equal(info.LastBlockAppHash, fin.AppHash) {
		t.Fatalf("reloaded app diverged: height=%d hash=%x want %x", info.LastBlockHeight, info.LastBlockAppHash, fin.AppHash)
	}
}

func TestReadGrants(t *testing.T) {
	ctx := context.Background()
	e := newTestApp(t)
	aliceKey, alice := testKey(t, "alice")
	_, bob := testKey(t, "bob")
	mustOk(t, e.app.deliverTx(ctx, txBytesSigned(t, aliceKey, types.TxJoin, codec.GridJoinTx{Player: alice.Hex()}, 1), 1, 0))

	var view PlayerView
	e.query(t, "/player/"+alice.Hex(), &view)

	err := e.app.ReadGrants(ctx, func(acl relay.ACL) error {
		if !acl.Issued(view.X) || !acl.CanDecrypt(view.X, alice, testContract) {
			t.Fatalf("alice should hold a grant on her x handle")
		}
		if acl.CanDecrypt(view.X, bob, testContract) || acl.IsPublic(view.Identity) {
			t.Fatalf("unexpected access for bob")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ReadGrants: %v", err)
	}

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	if err := e.app.ReadGrants(cctx, func(relay.ACL) error { return nil }); err == nil {
		t.Fatalf("expected cancelled context to be reported")
	}
}

func TestReadGrants_SeesFinalizedBlockBeforeCommit(t *testing.T) {
	ctx := context.Background()
	e := newTestApp(t)
	aliceKey, alice := testKey(t, "alice")

	fin, err := e.app.FinalizeBlock(ctx, &abci.FinalizeBlockRequest{
		Height: 1,
		Txs:    [][]byte{txBytesSigned(t, aliceKey, types.TxJoin, codec.GridJoinTx{Player: alice.Hex()}, 1)},
	})
	if err != nil || fin.TxResults[0].Code != 0 {
		t.Fatalf("FinalizeBlock: err=%v res=%+v", err, fin)
	}
	var view PlayerView
	e.query(t, "/player/"+alice.Hex(), &view)

	err = e.app.ReadGrants(ctx, func(acl relay.ACL) error {
		if !acl.CanDecrypt(view.Identity, alice, testContract) {
			t.Fatalf("grant from the finalized block not visible before Commit")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ReadGrants: %v", err)
	}

	// Nothing is on disk until Commit.
	reloaded, err := New(e.home, testContract, e.engine, log.NewNopLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if reloaded.st.Height != 0 || len(reloaded.st.PlayerOrder) != 0 {
		t.Fatalf("uncommitted block reached disk: height=%d players=%d", reloaded.st.Height, len(reloaded.st.PlayerOrder))
	}
}
