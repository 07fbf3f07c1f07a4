package hook

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/angstrom-labs/angstrom-core/apperr"
	"github.com/angstrom-labs/angstrom-core/sig"
)

type stubComposer struct {
	magic [4]byte
	err   error
}

func (s stubComposer) Compose(hookAddress, signer common.Address, payload []byte) ([4]byte, error) {
	return s.magic, s.err
}

func TestInvokeAcceptsCorrectMagic(t *testing.T) {
	c := stubComposer{magic: sig.HookReturnMagic}
	if err := Invoke(c, common.Address{}, common.Address{}, nil); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
}

func TestInvokeRejectsWrongMagic(t *testing.T) {
	c := stubComposer{magic: [4]byte{0, 0, 0, 0}}
	if err := Invoke(c, common.Address{}, common.Address{}, nil); err != apperr.ErrInvalidHookReturn {
		t.Errorf("err = %v, want ErrInvalidHookReturn", err)
	}
}

func TestInvokePropagatesComposerError(t *testing.T) {
	wantErr := errors.New("hook reverted")
	c := stubComposer{err: wantErr}
	if err := Invoke(c, common.Address{}, common.Address{}, nil); err != wantErr {
		t.Errorf("err = %v, want %v", err, wantErr)
	}
}
