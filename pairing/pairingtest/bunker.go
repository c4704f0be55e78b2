// Package pairingtest provides a fake remote signer that answers
// remote-signing requests over a relaytest network.
package pairingtest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip04"

	"xdao.co/pwapub/events"
	"xdao.co/pwapub/keys"
	"xdao.co/pwapub/relay"
)

// Bunker is a fake remote signer. SignerKey answers RPC; UserKey signs
// events. Zero keys are generated by Start.
type Bunker struct {
	SignerKey keys.Credential
	UserKey   keys.Credential

	// Secret, when set, must be the second connect parameter.
	Secret string
	// AuthURL, when set, is sent as a challenge before the first connect ack.
	AuthURL string
	// Silent drops every request.
	Silent bool
	// RefuseConnect answers connect with an error.
	RefuseConnect bool
	// RefuseSign answers sign_event with an error.
	RefuseSign bool

	pool   *relay.Pool
	relays []string

	mu       sync.Mutex
	methods  []string
	authSent bool
}

type rpcMessage struct {
	ID     string   `json:"id"`
	Method string   `json:"method,omitempty"`
	Params []string `json:"params,omitempty"`
	Result string   `json:"result,omitempty"`
	Error  string   `json:"error,omitempty"`
}

// Start listens on relays until ctx is done.
func (b *Bunker) Start(ctx context.Context, dial relay.DialFunc, relays ...string) error {
	if b.SignerKey.IsZero() {
		b.SignerKey = keys.Generate()
	}
	if b.UserKey.IsZero() {
		b.UserKey = keys.Generate()
	}
	b.pool = relay.NewPool(dial)
	b.relays = b.pool.Add(relays...)
	filter := nostr.Filter{
		Kinds: []int{events.KindNostrConnect},
		Tags:  nostr.TagMap{"p": []string{b.SignerPubkey()}},
	}
	inbox, err := b.pool.Subscribe(ctx, b.relays, filter)
	if err != nil {
		return err
	}
	go func() {
		for evt := range inbox {
			b.handle(ctx, evt)
		}
	}()
	return nil
}

func (b *Bunker) SignerPubkey() string {
	pub, _ := b.SignerKey.PublicKey()
	return pub
}

func (b *Bunker) UserPubkey() string {
	pub, _ := b.UserKey.PublicKey()
	return pub
}

// URI returns a bunker:// pairing string for this signer.
func (b *Bunker) URI() string {
	uri := "bunker://" + b.SignerPubkey() + "?"
	for i, r := range b.relays {
		if i > 0 {
			uri += "&"
		}
		uri += "relay=" + r
	}
	if b.Secret != "" {
		uri += "&secret=" + b.Secret
	}
	return uri
}

// Methods returns the request methods received so far.
func (b *Bunker) Methods() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.methods...)
}

// InitiateConnect answers a client that is waiting on a bare secret.
func (b *Bunker) InitiateConnect(ctx context.Context, clientPub, secret string) error {
	return b.reply(ctx, clientPub, rpcMessage{ID: uuid.NewString(), Result: secret})
}

func (b *Bunker) handle(ctx context.Context, evt *nostr.Event) {
	if b.Silent {
		return
	}
	key, err := nip04.ComputeSharedSecret(evt.PubKey, b.SignerKey.Hex())
	if err != nil {
		return
	}
	plain, err := nip04.Decrypt(evt.Content, key)
	if err != nil {
		return
	}
	var req rpcMessage
	if err := json.Unmarshal([]byte(plain), &req); err != nil || req.Method == "" {
		return
	}
	b.mu.Lock()
	b.methods = append(b.methods, req.Method)
	sendAuth := req.Method == "connect" && b.AuthURL != "" && !b.authSent
	if sendAuth {
		b.authSent = true
	}
	b.mu.Unlock()

	if sendAuth {
		_ = b.reply(ctx, evt.PubKey, rpcMessage{ID: req.ID, Result: "auth_url", Error: b.AuthURL})
	}
	_ = b.reply(ctx, evt.PubKey, b.answer(req))
}

func (b *Bunker) answer(req rpcMessage) rpcMessage {
	resp := rpcMessage{ID: req.ID}
	switch req.Method {
	case "connect":
		switch {
		case b.RefuseConnect:
			resp.Error = "connection refused"
		case b.Secret != "" && (len(req.Params) < 2 || req.Params[1] != b.Secret):
			resp.Error = "invalid secret"
		default:
			resp.Result = "ack"
		}
	case "get_public_key":
		resp.Result = b.UserPubkey()
	case "ping":
		resp.Result = "pong"
	case "sign_event":
		if b.RefuseSign || len(req.Params) == 0 {
			resp.Error = "signing refused"
			break
		}
		var evt nostr.Event
		if err := json.Unmarshal([]byte(req.Params[0]), &evt); err != nil {
			resp.Error = err.Error()
			break
		}
		if err := evt.Sign(b.UserKey.Hex()); err != nil {
			resp.Error = err.Error()
			break
		}
		out, _ := json.Marshal(evt)
		resp.Result = string(out)
	default:
		resp.Error = "unsupported method " + req.Method
	}
	return resp
}

func (b *Bunker) reply(ctx context.Context, to string, msg rpcMessage) error {
	key, err := nip04.ComputeSharedSecret(to, b.SignerKey.Hex())
	if err != nil {
		return err
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	content, err := nip04.Encrypt(string(payload), key)
	if err != nil {
		return err
	}
	evt := nostr.Event{
		CreatedAt: nostr.Now(),
		Kind:      events.KindNostrConnect,
		Tags:      nostr.Tags{{"p", to}},
		Content:   content,
	}
	if err := evt.Sign(b.SignerKey.Hex()); err != nil {
		return err
	}
	b.pool.Publish(ctx, b.relays, evt)
	return nil
}
