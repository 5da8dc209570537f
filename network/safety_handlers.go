package network

import (
	"errors"
	"net/http"
	"time"

	"github.com/aethercore-labs/aethercore/bridge"
	"github.com/aethercore-labs/aethercore/chain"
	"github.com/aethercore-labs/aethercore/consensus/certification"
	"github.com/aethercore-labs/aethercore/consensus/safety"
)

type evaluateBody struct {
	Blocks             []*chain.Block        `json:"blocks"`
	Profile            certification.Profile `json:"profile"`
	Now                time.Time             `json:"now"`
	CertificationLevel string                `json:"certificationLevel"`
}

func (rt *Router) handleEvaluateSafety(w http.ResponseWriter, r *http.Request) {
	var body evaluateBody
	if err := decode(w, r, &body); err != nil {
		rt.writeError(w, r, err)
		return
	}
	level, err := certification.ParseLevel(body.CertificationLevel)
	if err != nil {
		rt.writeError(w, r, &bridge.ValidationError{Field: "certificationLevel", Reason: err.Error()})
		return
	}
	res, err := rt.safety.EvaluateBlockchainSafety(r.Context(), safety.Params{
		Blocks:  body.Blocks,
		Profile: body.Profile,
		Now:     body.Now,
	}, level)
	if errors.Is(err, safety.ErrNoBlocks) {
		err = &bridge.ValidationError{Field: "blocks", Reason: err.Error()}
	}
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	rt.onEvaluation(res)
	writeJSON(w, http.StatusOK, res)
}
