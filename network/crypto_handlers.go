package network

import (
	"net/http"

	"github.com/aethercore-labs/aethercore/bridge"
	"github.com/aethercore-labs/aethercore/crypto"
	"github.com/aethercore-labs/aethercore/crypto/hash"
)

// Byte fields travel as base64, the encoding/json default for []byte.
type hashBody struct {
	Data []byte `json:"data"`
}

type verifyBody struct {
	PublicKey []byte `json:"publicKey"`
	Message   []byte `json:"message"`
	Signature []byte `json:"signature"`
}

type encryptBody struct {
	PublicKey []byte `json:"publicKey"`
	Data      []byte `json:"data"`
}

func (rt *Router) handleHash(w http.ResponseWriter, r *http.Request) {
	var body hashBody
	if err := decode(w, r, &body); err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"hash": hash.NewHash(body.Data).String()})
}

func (rt *Router) handleVerify(w http.ResponseWriter, r *http.Request) {
	var body verifyBody
	if err := decode(w, r, &body); err != nil {
		rt.writeError(w, r, err)
		return
	}
	pub, err := crypto.ParsePublicKey(body.PublicKey)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"valid":     pub.Verify(body.Message, body.Signature),
		"algorithm": pub.Level().SignatureScheme(),
	})
}

func (rt *Router) handleEncrypt(w http.ResponseWriter, r *http.Request) {
	var body encryptBody
	if err := decode(w, r, &body); err != nil {
		rt.writeError(w, r, err)
		return
	}
	if len(body.Data) == 0 {
		rt.writeError(w, r, &bridge.ValidationError{Field: "data", Reason: "is required"})
		return
	}
	env, err := crypto.Encrypt(body.Data, body.PublicKey)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, env)
}
