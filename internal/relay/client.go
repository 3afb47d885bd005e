package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cosmossdk.io/log"
	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"obscuraplay/internal/fhe"
	"obscuraplay/internal/relay/types"
)

// Client talks to a relay over HTTP. Only ErrRelayUnavailable is retried.
type Client struct {
	baseURL    string
	http       *http.Client
	logger     log.Logger
	now        func() time.Time
	newBackOff func() backoff.BackOff
	parallel   int
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

func WithLogger(logger log.Logger) ClientOption {
	return func(c *Client) { c.logger = logger.With("module", "relay-client") }
}

// WithBackOff replaces the retry policy. f is called once per request.
func WithBackOff(f func() backoff.BackOff) ClientOption {
	return func(c *Client) { c.newBackOff = f }
}

func WithClientClock(now func() time.Time) ClientOption {
	return func(c *Client) { c.now = now }
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  log.NewNopLogger(),
		now:     time.Now,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxElapsedTime = 15 * time.Second
			return b
		},
		parallel: 8,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UserDecrypt decrypts pairs under sess. The result holds every requested handle; any
// shortfall in the relay's answer is reported as ErrPartialResponse.
func (c *Client) UserDecrypt(ctx context.Context, sess *Session, pairs []types.HandleContractPair) (map[fhe.Handle]fhe.Plaintext, error) {
	if sess.Expired(c.now()) {
		return nil, types.ErrAuthorizationExpired.Wrap("session window has closed; start a new session")
	}
	req := types.UserDecryptRequest{
		HandleContractPairs: pairs,
		RequestValidity: types.RequestValidity{
			StartTimestamp: sess.Request.StartTimestamp,
			DurationDays:   sess.Request.DurationDays,
		},
		ContractAddresses: sess.Request.Contracts,
		UserAddress:       sess.Holder,
		PublicKey:         sess.Request.PublicKey,
		KeyProof:          sess.KeyProof,
		Signature:         sess.Signature,
		ExtraData:         sess.Request.ExtraData,
	}
	var resp types.UserDecryptResponse
	if err := c.post(ctx, types.PathUserDecrypt, req, &resp); err != nil {
		return nil, err
	}

	sealed := make(map[fhe.Handle][]byte, len(resp.Results))
	for _, r := range resp.Results {
		sealed[r.Handle] = r.Sealed
	}
	out := make(map[fhe.Handle]fhe.Plaintext, len(pairs))
	for _, p := range pairs {
		box, ok := sealed[p.Handle]
		if !ok {
			return nil, types.ErrPartialResponse.Wrapf("missing %s", p.Handle.Hex())
		}
		raw, err := sess.key.Open(box, SealAAD(p.Handle, sess.Holder))
		if err != nil {
			return nil, types.ErrPartialResponse.Wrapf("%s: %v", p.Handle.Hex(), err)
		}
		pt, err := fhe.DecodePlaintext(p.Handle.Type(), raw)
		if err != nil {
			return nil, types.ErrPartialResponse.Wrapf("%s: %v", p.Handle.Hex(), err)
		}
		out[p.Handle] = pt
	}
	return out, nil
}

// PublicDecrypt decrypts handles that carry a public grant.
func (c *Client) PublicDecrypt(ctx context.Context, handles []fhe.Handle) (map[fhe.Handle]fhe.Plaintext, error) {
	var resp types.PublicDecryptResponse
	if err := c.post(ctx, types.PathPublicDecrypt, types.PublicDecryptRequest{Handles: handles}, &resp); err != nil {
		return nil, err
	}
	values := make(map[fhe.Handle]string, len(resp.Results))
	for _, r := range resp.Results {
		values[r.Handle] = r.Value
	}
	out := make(map[fhe.Handle]fhe.Plaintext, len(handles))
	for _, h := range handles {
		v, ok := values[h]
		if !ok {
			return nil, types.ErrPartialResponse.Wrapf("missing %s", h.Hex())
		}
		pt, err := fhe.ParsePlaintext(h.Type(), v)
		if err != nil {
			return nil, types.ErrPartialResponse.Wrapf("%s: %v", h.Hex(), err)
		}
		out[h] = pt
	}
	return out, nil
}

// PublicEntry is one row of a resolved player directory. Value is set only when Public.
type PublicEntry struct {
	Handle fhe.Handle
	Public bool
	Value  fhe.Plaintext
}

// ResolvePublic looks each handle up on the public path independently, so a handle that
// is still private only marks its own entry hidden.
func (c *Client) ResolvePublic(ctx context.Context, handles []fhe.Handle) ([]PublicEntry, error) {
	out := make([]PublicEntry, len(handles))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallel)
	for i, h := range handles {
		out[i].Handle = h
		g.Go(func() error {
			vals, err := c.PublicDecrypt(gctx, []fhe.Handle{h})
			switch {
			case err == nil:
				out[i].Public = true
				out[i].Value = vals[h]
				return nil
			case errors.Is(err, types.ErrUnauthorized):
				return nil
			default:
				return err
			}
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	url := c.baseURL + path

	attempt := 0
	op := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return types.ErrRelayUnavailable.Wrap(err.Error())
		}
		defer resp.Body.Close()

		b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return types.ErrRelayUnavailable.Wrapf("read response: %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			rerr := decodeError(resp.StatusCode, b)
			if errors.Is(rerr, types.ErrRelayUnavailable) {
				c.logger.Debug("relay unavailable, retrying", "path", path, "attempt", attempt, "status", resp.StatusCode)
				return rerr
			}
			return backoff.Permanent(rerr)
		}
		if err := json.Unmarshal(b, out); err != nil {
			return backoff.Permanent(types.ErrPartialResponse.Wrapf("decode response: %v", err))
		}
		return nil
	}

	return backoff.Retry(op, backoff.WithContext(c.newBackOff(), ctx))
}

// decodeError rebuilds the relay sentinel from an error body so errors.Is works on the
// caller side.
func decodeError(status int, body []byte) error {
	var er types.ErrorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Codespace == types.ModuleName {
		if sentinel, ok := types.ErrorByCode(er.Code); ok {
			return sentinel.Wrap(er.Message)
		}
	}
	switch status {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return types.ErrRelayUnavailable.Wrapf("status %d", status)
	}
	return fmt.Errorf("relay: status %d: %s", status, strings.TrimSpace(string(body)))
}
