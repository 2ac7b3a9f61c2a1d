package stores

import (
	"testing"

	"github.com/YasiruR/didcomm-engine/domain"
	"github.com/stretchr/testify/require"
)

func TestStores(t *testing.T) {
	bdg, err := NewBadger(t.TempDir())
	require.NoError(t, err)
	defer bdg.Close()

	tests := []struct {
		name  string
		store Store
	}{
		{name: `memory`, store: NewMemory()},
		{name: `badger`, store: bdg},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := require.New(t)
			s := tc.store

			_, err := s.Get(`connections`, `missing`)
			r.ErrorIs(err, domain.ErrRecordNotFound)

			r.NoError(s.Put(`connections`, `a`, []byte(`1`)))
			r.NoError(s.Put(`connections`, `b`, []byte(`2`)))
			r.NoError(s.Put(`connectionsx`, `c`, []byte(`3`)))

			val, err := s.Get(`connections`, `a`)
			r.NoError(err)
			r.Equal(`1`, string(val))

			vals, err := s.List(`connections`)
			r.NoError(err)
			r.Equal([][]byte{[]byte(`1`), []byte(`2`)}, vals)

			r.NoError(s.Delete(`connections`, `a`))
			_, err = s.Get(`connections`, `a`)
			r.ErrorIs(err, domain.ErrRecordNotFound)
		})
	}
}

func TestBadger_CloseTwice(t *testing.T) {
	bdg, err := NewBadger(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, bdg.Close())
	require.NoError(t, bdg.Close())
}
