package sodium

import (
	"encoding/json"
	"testing"

	"github.com/YasiruR/didcomm-engine/crypto"
	"github.com/YasiruR/didcomm-engine/log"
	"github.com/stretchr/testify/require"
)

// envelopes packed by one backend must open with the other
func TestEncryptor_InteropWithNacl(t *testing.T) {
	r := require.New(t)
	logger := log.NewLogger(false)
	sodiumPacker := crypto.NewPacker(NewEncryptor(), logger)
	naclPacker := crypto.NewPacker(crypto.NewEncryptor(), logger)

	senderKM, recKM := crypto.NewKeyManager(), crypto.NewKeyManager()
	sender, err := senderKM.CreateKey()
	r.NoError(err)
	rec, err := recKM.CreateKey()
	r.NoError(err)

	env, err := sodiumPacker.Pack([]byte(`from libsodium`), &sender, rec.Verkey)
	r.NoError(err)
	data, err := json.Marshal(env)
	r.NoError(err)

	out, err := naclPacker.Unpack(data, recKM)
	r.NoError(err)
	r.Equal(`from libsodium`, string(out.Message))
	r.Equal(sender.Verkey, out.SenderVerkey)

	env, err = naclPacker.Pack([]byte(`from x/crypto`), nil, rec.Verkey)
	r.NoError(err)
	data, err = json.Marshal(env)
	r.NoError(err)

	out, err = sodiumPacker.Unpack(data, recKM)
	r.NoError(err)
	r.Equal(`from x/crypto`, string(out.Message))
	r.Empty(out.SenderVerkey)
}
