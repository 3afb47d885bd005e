package state

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"obscuraplay/internal/fhe"
)

const stateFile = "state.json"

type State struct {
	// ChainID is recorded at InitChain; tx signatures are bound to it.
	ChainID string `json:"chainId,omitempty"`
	Height  int64  `json:"height"`

	// NextSeq is the creation sequence for the next computed handle.
	NextSeq uint64 `json:"nextSeq"`

	Players     map[common.Address]*Player `json:"players"`
	PlayerOrder []common.Address           `json:"playerOrder"` // join order, append-only
	Grants      map[fhe.Handle][]Grant     `json:"grants"`
	NonceMax    map[common.Address]uint64  `json:"nonceMax,omitempty"` // signer -> last accepted nonce
}

// Player is the ledger record for one identity. Records are created on join and never
// removed.
type Player struct {
	Joined            bool       `json:"joined"`
	X                 fhe.Handle `json:"x"`
	Y                 fhe.Handle `json:"y"`
	Identity          fhe.Handle `json:"identity"`
	PubliclyDisclosed bool       `json:"publiclyDisclosed"`
}

func NewState() *State {
	return &State{
		NextSeq:  1,
		Players:  map[common.Address]*Player{},
		Grants:   map[fhe.Handle][]Grant{},
		NonceMax: map[common.Address]uint64{},
	}
}

func (s *State) normalize() {
	if s.Players == nil {
		s.Players = map[common.Address]*Player{}
	}
	if s.Grants == nil {
		s.Grants = map[fhe.Handle][]Grant{}
	}
	if s.NonceMax == nil {
		s.NonceMax = map[common.Address]uint64{}
	}
	if s.NextSeq == 0 {
		s.NextSeq = 1
	}
}

func Load(home string) (*State, error) {
	path := filepath.Join(home, stateFile)
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewState(), nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}
	var st State
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	st.normalize()
	return &st, nil
}

func (s *State) Save(home string) error {
	if err := os.MkdirAll(home, 0o755); err != nil {
		return fmt.Errorf("mkdir home: %w", err)
	}
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	// Write-then-rename: a partial write never replaces the last snapshot.
	tmp := filepath.Join(home, stateFile+".tmp")
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(home, stateFile)); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

// Clone returns a deep copy of state suitable for staged tx execution.
func (s *State) Clone() (*State, error) {
	if s == nil {
		return nil, fmt.Errorf("state is nil")
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode state clone: %w", err)
	}
	var out State
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode state clone: %w", err)
	}
	out.normalize()
	return &out, nil
}

// AllocHandle reserves the next creation sequence and returns a fresh computed handle.
func (s *State) AllocHandle(contract common.Address, typ fhe.Type) fhe.Handle {
	h := fhe.ComputedHandle(contract, s.NextSeq, typ)
	s.NextSeq++
	return h
}

func (s *State) Player(addr common.Address) (*Player, bool) {
	p, ok := s.Players[addr]
	if !ok || p == nil || !p.Joined {
		return nil, false
	}
	return p, true
}

func (s *State) AppHash() []byte {
	// encoding/json sorts map keys, but only by their text form. Normalize into slices so
	// the ordering is explicit and independent of key encoding.
	type playerKV struct {
		Addr   common.Address `json:"addr"`
		Player *Player        `json:"player"`
	}
	type grantKV struct {
		Handle fhe.Handle `json:"handle"`
		Grants []Grant    `json:"grants"`
	}
	type nonceKV struct {
		Signer common.Address `json:"signer"`
		Nonce  uint64         `json:"nonce"`
	}

	players := make([]playerKV, 0, len(s.Players))
	for k, v := range s.Players {
		players = append(players, playerKV{Addr: k, Player: v})
	}
	sort.Slice(players, func(i, j int) bool { return bytes.Compare(players[i].Addr[:], players[j].Addr[:]) < 0 })

	grants := make([]grantKV, 0, len(s.Grants))
	for k, v := range s.Grants {
		gs := append([]Grant(nil), v...)
		sortGrants(gs)
		grants = append(grants, grantKV{Handle: k, Grants: gs})
	}
	sort.Slice(grants, func(i, j int) bool { return bytes.Compare(grants[i].Handle[:], grants[j].Handle[:]) < 0 })

	nonces := make([]nonceKV, 0, len(s.NonceMax))
	for k, v := range s.NonceMax {
		nonces = append(nonces, nonceKV{Signer: k, Nonce: v})
	}
	sort.Slice(nonces, func(i, j int) bool { return bytes.Compare(nonces[i].Signer[:], nonces[j].Signer[:]) < 0 })

	normalized := struct {
		ChainID     string           `json:"chainId,omitempty"`
		Height      int64            `json:"height"`
		NextSeq     uint64           `json:"nextSeq"`
		Players     []playerKV       `json:"players"`
		PlayerOrder []common.Address `json:"playerOrder"`
		Grants      []grantKV        `json:"grants"`
		NonceMax    []nonceKV        `json:"nonceMax,omitempty"`
	}{
		ChainID:     s.ChainID,
		Height:      s.Height,
		NextSeq:     s.NextSeq,
		Players:     players,
		PlayerOrder: s.PlayerOrder,
		Grants:      grants,
		NonceMax:    nonces,
	}

	b, _ := json.Marshal(normalized)
	sum := sha256.Sum256(b)
	return sum[:]
}
