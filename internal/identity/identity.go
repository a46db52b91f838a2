package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Kind distinguishes registered accounts from ephemeral guests.
type Kind uint8

const (
	KindRegistered Kind = iota + 1
	KindGuest
)

func (k Kind) String() string {
	switch k {
	case KindRegistered:
		return "registered"
	case KindGuest:
		return "guest"
	default:
		return "unknown"
	}
}

// Identity is either a registered user id or a guest id. The zero value is
// "no identity". Identity is comparable and can be used as a map key.
type Identity struct {
	kind Kind
	id   string
}

// Registered returns the identity of a verified account.
func Registered(id string) Identity {
	return Identity{kind: KindRegistered, id: id}
}

// Guest returns the identity of an unauthenticated player.
func Guest(id string) Identity {
	return Identity{kind: KindGuest, id: id}
}

// NewGuestToken returns a fresh secret a guest presents to act as itself.
func NewGuestToken() string {
	return uuid.NewString()
}

// GuestFromToken returns the guest identity owned by token. The id is a
// one-way digest, so publishing it does not let others act as the guest.
func GuestFromToken(token string) Identity {
	sum := sha256.Sum256([]byte(token))
	return Guest(hex.EncodeToString(sum[:16]))
}

func (i Identity) ID() string     { return i.id }
func (i Identity) Kind() Kind     { return i.kind }
func (i Identity) IsGuest() bool  { return i.kind == KindGuest }
func (i Identity) IsZero() bool   { return i.kind == 0 || i.id == "" }
func (i Identity) String() string { return i.kind.String() + ":" + i.id }

// UserID returns the account id for registered identities and nil for
// guests, matching how score records reference users.
func (i Identity) UserID() *string {
	if i.kind != KindRegistered {
		return nil
	}
	id := i.id
	return &id
}

type wireIdentity struct {
	ID    string `json:"id"`
	Guest bool   `json:"guest"`
}

func (i Identity) MarshalJSON() ([]byte, error) {
	if i.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(wireIdentity{ID: i.id, Guest: i.IsGuest()})
}

func (i *Identity) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*i = Identity{}
		return nil
	}
	var w wireIdentity
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode identity: %w", err)
	}
	if w.ID == "" {
		return fmt.Errorf("decode identity: empty id")
	}
	if w.Guest {
		*i = Guest(w.ID)
	} else {
		*i = Registered(w.ID)
	}
	return nil
}
