package app

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	errorsmod "cosmossdk.io/errors"
	abci "github.com/cometbft/cometbft/abci/types"
	"github.com/ethereum/go-ethereum/common"

	"obscuraplay/internal/fhe"
	"obscuraplay/internal/ledger"
	"obscuraplay/internal/ledger/types"
	"obscuraplay/internal/relay"
	"obscuraplay/internal/state"
)

type GridInfo struct {
	Contract    common.Address `json:"contract"`
	GridSize    uint8          `json:"gridSize"`
	PlayerCount uint64         `json:"playerCount"`
}

type PlayerView struct {
	Player            common.Address `json:"player"`
	Joined            bool           `json:"joined"`
	X                 fhe.Handle     `json:"xHandle"`
	Y                 fhe.Handle     `json:"yHandle"`
	Identity          fhe.Handle     `json:"identityHandle"`
	PubliclyDisclosed bool           `json:"publiclyDisclosed"`
}

type IndexView struct {
	Index    uint64     `json:"index"`
	Identity fhe.Handle `json:"identityHandle"`
}

type GrantsView struct {
	Handle fhe.Handle    `json:"handle"`
	Issued bool          `json:"issued"`
	Public bool          `json:"public"`
	Grants []state.Grant `json:"grants"`
}

func (a *GridApp) Query(_ context.Context, req *abci.QueryRequest) (*abci.QueryResponse, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	// Paths:
	// - /grid
	// - /players/count
	// - /players/index/<i>
	// - /player/<addr>
	// - /grants/<handle>
	k := ledger.NewKeeper(a.st, a.engine, a.contract, a.logger)
	path := strings.TrimSpace(req.Path)
	switch {
	case path == "/grid":
		return a.queryOK(GridInfo{Contract: a.contract, GridSize: k.GridSize(), PlayerCount: k.PlayerCount()})

	case path == "/players/count":
		return a.queryOK(map[string]uint64{"count": k.PlayerCount()})

	case strings.HasPrefix(path, "/players/index/"):
		raw := strings.TrimPrefix(path, "/players/index/")
		i, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return a.queryErr(types.ErrInvalidRequest.Wrapf("invalid index %q", raw))
		}
		h, err := k.IdentityHandleAt(i)
		if err != nil {
			return a.queryErr(err)
		}
		return a.queryOK(IndexView{Index: i, Identity: h})

	case strings.HasPrefix(path, "/player/"):
		p, err := parsePlayer(strings.TrimPrefix(path, "/player/"))
		if err != nil {
			return a.queryErr(err)
		}
		x, y := k.Position(p)
		view := PlayerView{
			Player:   p,
			Joined:   k.HasJoined(p),
			X:        x,
			Y:        y,
			Identity: k.IdentityHandle(p),
		}
		if rec, ok := a.st.Player(p); ok {
			view.PubliclyDisclosed = rec.PubliclyDisclosed
		}
		return a.queryOK(view)

	case strings.HasPrefix(path, "/grants/"):
		raw := strings.TrimPrefix(path, "/grants/")
		h, err := fhe.HandleFromHex(raw)
		if err != nil {
			return a.queryErr(types.ErrInvalidRequest.Wrap(err.Error()))
		}
		return a.queryOK(GrantsView{
			Handle: h,
			Issued: a.st.Issued(h),
			Public: a.st.IsPublic(h),
			Grants: a.st.GrantsFor(h),
		})

	default:
		return a.queryErr(types.ErrInvalidRequest.Wrapf("unknown query path %q", path))
	}
}

func (a *GridApp) queryOK(v any) (*abci.QueryResponse, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil
}

func (a *GridApp) queryErr(err error) (*abci.QueryResponse, error) {
	codespace, code, _ := errorsmod.ABCIInfo(err, false)
	return &abci.QueryResponse{Codespace: codespace, Code: code, Log: err.Error(), Height: a.st.Height}, nil
}

var _ relay.GrantReader = (*GridApp)(nil)

// ReadGrants runs fn against the grants as of the last finalized block. That block may not
// be persisted yet: FinalizeBlock swaps state in and Commit only writes it out. Blocks are
// not applied while fn runs, so every check inside sees the same snapshot.
func (a *GridApp) ReadGrants(ctx context.Context, fn func(relay.ACL) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return fn(a.st)
}
