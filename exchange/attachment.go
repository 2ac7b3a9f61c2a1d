package exchange

import (
	"fmt"
	"reflect"

	"github.com/YasiruR/didcomm-engine/domain"
	"github.com/YasiruR/didcomm-engine/domain/models"
	"github.com/YasiruR/didcomm-engine/domain/services"
)

// attachments are keyed by name and type so that the same name can hold
// values of different types
type attachmentKey struct {
	name string
	typ  reflect.Type
}

// Key is a typed handle to an exchange attachment
type Key[T any] struct {
	name string
}

func NewKey[T any](name string) Key[T] {
	return Key[T]{name: name}
}

func (k Key[T]) Name() string {
	return k.name
}

func (k Key[T]) id() attachmentKey {
	return attachmentKey{name: k.name, typ: reflect.TypeOf((*T)(nil)).Elem()}
}

// Bind creates an entry to be attached to an exchange
func (k Key[T]) Bind(val T) Entry {
	return Entry{key: k.id(), val: val}
}

func (k Key[T]) From(ex *Exchange) (T, bool) {
	var zero T
	if ex == nil {
		return zero, false
	}

	ex.mu.Lock()
	defer ex.mu.Unlock()

	val, ok := ex.attachments[k.id()]
	if !ok {
		return zero, false
	}

	// nil interface values are stored untyped
	v, ok := val.(T)
	if !ok {
		return zero, false
	}
	return v, true
}

type Entry struct {
	key attachmentKey
	val interface{}
}

// well-known attachments
var (
	WalletKey     = NewKey[services.Wallet](`wallet`)
	ConnectionKey = NewKey[models.Connection](`connection`)
	InvitationKey = NewKey[models.Invitation](`invitation`)
	DidKey        = NewKey[models.Did](`did`)
)

// Wallet returns the wallet the exchange acts for
func Wallet(ex *Exchange) (services.Wallet, error) {
	w, ok := WalletKey.From(ex)
	if !ok || w == nil {
		return nil, fmt.Errorf(`exchange %s has no wallet attached - %w`, ex.ID(), domain.ErrWallet)
	}
	return w, nil
}
