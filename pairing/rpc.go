package pairing

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip04"
	"go.uber.org/zap"

	"xdao.co/pwapub/errs"
	"xdao.co/pwapub/events"
	"xdao.co/pwapub/keys"
	"xdao.co/pwapub/relay"
)

// Response result announcing an out-of-band authorization challenge. The
// challenge URL travels in the error field.
const resultAuthURL = "auth_url"

type request struct {
	ID     string   `json:"id"`
	Method string   `json:"method"`
	Params []string `json:"params"`
}

// envelope decodes either direction; inbound requests are ignored.
type envelope struct {
	ID     string   `json:"id"`
	Method string   `json:"method,omitempty"`
	Params []string `json:"params,omitempty"`
	Result string   `json:"result"`
	Error  string   `json:"error,omitempty"`
}

type message struct {
	From   string
	ID     string
	Result string
	Error  string
}

// RemoteError is an error response from the remote signer.
type RemoteError struct {
	Method  string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote signer: %s: %s", e.Method, e.Message)
}

// channel is the encrypted request/response transport between the local
// ephemeral key and remote signers.
type channel struct {
	pool     *relay.Pool
	relays   []string
	local    keys.Credential
	localPub string
	inbox    <-chan *nostr.Event
	shared   map[string][]byte
	log      *zap.Logger
}

func openChannel(ctx context.Context, pool *relay.Pool, relays []string, local keys.Credential, localPub string, log *zap.Logger) (*channel, error) {
	// Small lookback so a response racing the subscription is not lost.
	since := nostr.Now() - 10
	filter := nostr.Filter{
		Kinds: []int{events.KindNostrConnect},
		Tags:  nostr.TagMap{"p": []string{localPub}},
		Since: &since,
	}
	inbox, err := pool.Subscribe(ctx, relays, filter)
	if err != nil {
		return nil, err
	}
	return &channel{
		pool:     pool,
		relays:   relays,
		local:    local,
		localPub: localPub,
		inbox:    inbox,
		shared:   make(map[string][]byte),
		log:      log,
	}, nil
}

func (c *channel) sharedKey(pub string) ([]byte, error) {
	if k, ok := c.shared[pub]; ok {
		return k, nil
	}
	k, err := nip04.ComputeSharedSecret(pub, c.local.Hex())
	if err != nil {
		return nil, err
	}
	c.shared[pub] = k
	return k, nil
}

// send publishes a request to the remote signer and returns its id.
func (c *channel) send(ctx context.Context, to, method string, params []string) (string, error) {
	if params == nil {
		params = []string{}
	}
	req := request{ID: uuid.NewString(), Method: method, Params: params}
	payload, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	key, err := c.sharedKey(to)
	if err != nil {
		return "", errs.Wrap(errs.KindInvalidCredential, "invalid remote signer key", err)
	}
	content, err := nip04.Encrypt(string(payload), key)
	if err != nil {
		return "", err
	}
	evt := nostr.Event{
		PubKey:    c.localPub,
		CreatedAt: nostr.Now(),
		Kind:      events.KindNostrConnect,
		Tags:      nostr.Tags{{"p", to}},
		Content:   content,
	}
	if err := evt.Sign(c.local.Hex()); err != nil {
		return "", err
	}
	acks := c.pool.Publish(ctx, c.relays, evt)
	if len(relay.Accepted(acks)) == 0 {
		return "", errs.Newf(errs.KindConnectionFailed, "no relay accepted the %s request", method)
	}
	c.log.Debug("rpc request sent", zap.String("method", method), zap.String("id", req.ID))
	return req.ID, nil
}

// receive returns the next decodable response addressed to the local key.
func (c *channel) receive(ctx context.Context) (message, error) {
	for {
		select {
		case <-ctx.Done():
			return message{}, ctx.Err()
		case evt, ok := <-c.inbox:
			if !ok {
				return message{}, errs.New(errs.KindConnectionFailed, "rpc channel closed")
			}
			msg, err := c.decode(evt)
			if err != nil {
				c.log.Debug("ignoring rpc event", zap.String("event", evt.ID), zap.Error(err))
				continue
			}
			return msg, nil
		}
	}
}

func (c *channel) decode(evt *nostr.Event) (message, error) {
	if err := events.Verify(evt); err != nil {
		return message{}, err
	}
	key, err := c.sharedKey(evt.PubKey)
	if err != nil {
		return message{}, err
	}
	plain, err := nip04.Decrypt(evt.Content, key)
	if err != nil {
		return message{}, err
	}
	var env envelope
	if err := json.Unmarshal([]byte(plain), &env); err != nil {
		return message{}, err
	}
	if env.Method != "" {
		return message{}, fmt.Errorf("unexpected %s request", env.Method)
	}
	return message{From: evt.PubKey, ID: env.ID, Result: env.Result, Error: env.Error}, nil
}
