package tpm

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// Token discriminator values understood by the daemon.
const (
	TokenTypeTPM2        = "tpm2"
	TokenTypeRecoveryKey = "recoverykey"
)

// Sealer produces an opaque sealed-token blob for a device. Recovering a
// passphrase from the blob happens outside this daemon; only the blob
// contract matters here.
type Sealer interface {
	SealToken(ctx context.Context, device string, requirePIN bool) (string, error)
}

// Token is a LUKS2 token object. Fields the daemon does not recognize are
// preserved verbatim across a round-trip; only type, keyslots and the
// bookkeeping token_index are rewritten explicitly.
type Token struct {
	Type     string
	Keyslots []int
	// Index is the token slot this object lives in, -1 when not yet known.
	Index int

	extra map[string]json.RawMessage
}

// NewRecoveryToken builds the token attached to a recovery keyslot.
func NewRecoveryToken(keyslot int) *Token {
	return &Token{Type: TokenTypeRecoveryKey, Keyslots: []int{keyslot}, Index: -1}
}

// ParseToken decodes a token JSON blob.
func ParseToken(data []byte) (*Token, error) {
	t := &Token{}
	if err := t.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("could not parse token: %w", err)
	}
	return t, nil
}

// SetKeyslots repoints the token at the given keyslot indices.
func (t *Token) SetKeyslots(slots ...int) {
	t.Keyslots = slots
}

func (t *Token) UnmarshalJSON(data []byte) error {
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	t.Index = -1
	t.Keyslots = nil
	t.extra = map[string]json.RawMessage{}
	for key, raw := range fields {
		switch key {
		case "type":
			if err := json.Unmarshal(raw, &t.Type); err != nil {
				return err
			}
		case "keyslots":
			slots, err := parseKeyslots(raw)
			if err != nil {
				return err
			}
			t.Keyslots = slots
		case "token_index":
			if err := json.Unmarshal(raw, &t.Index); err != nil {
				return err
			}
		default:
			t.extra[key] = raw
		}
	}
	return nil
}

func (t *Token) MarshalJSON() ([]byte, error) {
	fields := map[string]json.RawMessage{}
	for key, raw := range t.extra {
		fields[key] = raw
	}
	typeRaw, err := json.Marshal(t.Type)
	if err != nil {
		return nil, err
	}
	fields["type"] = typeRaw
	// keyslot references are string-encoded integers on disk
	slots := make([]string, len(t.Keyslots))
	for i, s := range t.Keyslots {
		slots[i] = strconv.Itoa(s)
	}
	slotsRaw, err := json.Marshal(slots)
	if err != nil {
		return nil, err
	}
	fields["keyslots"] = slotsRaw
	if t.Index >= 0 {
		idxRaw, err := json.Marshal(t.Index)
		if err != nil {
			return nil, err
		}
		fields["token_index"] = idxRaw
	}
	return json.Marshal(fields)
}

// parseKeyslots accepts both string-encoded and numeric keyslot references.
func parseKeyslots(raw json.RawMessage) ([]int, error) {
	var asStrings []string
	if err := json.Unmarshal(raw, &asStrings); err == nil {
		slots := make([]int, 0, len(asStrings))
		for _, s := range asStrings {
			n, err := strconv.Atoi(s)
			if err != nil {
				return nil, fmt.Errorf("bad keyslot reference %q", s)
			}
			slots = append(slots, n)
		}
		return slots, nil
	}
	var asInts []int
	if err := json.Unmarshal(raw, &asInts); err != nil {
		return nil, err
	}
	return asInts, nil
}
