package network

import (
	"net/http"

	"github.com/aethercore-labs/aethercore/bridge"
	"github.com/asaskevich/govalidator"
	"github.com/gorilla/mux"
)

type createBody struct {
	SourceAddress      string                 `json:"source_address"`
	DestinationAddress string                 `json:"destination_address"`
	Amount             string                 `json:"amount"`
	Direction          string                 `json:"direction"`
	Metadata           map[string]interface{} `json:"metadata,omitempty"`
}

type attachBody struct {
	SourceTxHash string `json:"source_tx_hash"`
}

type revertBody struct {
	Reason string `json:"reason"`
}

type statusBody struct {
	Status   string                 `json:"status"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

type verifyResponse struct {
	Confirmed   bool                `json:"confirmed"`
	Transaction *bridge.Transaction `json:"transaction"`
}

func (rt *Router) handleCreate(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	var body createBody
	if err := decode(w, r, &body); err != nil {
		rt.writeError(w, r, err)
		return
	}
	d, err := bridge.ParseDirection(body.Direction)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	tx, err := rt.bridge.CreateBridgeTransaction(r.Context(), bridge.CreateRequest{
		UserID:             user,
		SourceAddress:      body.SourceAddress,
		DestinationAddress: body.DestinationAddress,
		Amount:             body.Amount,
		Direction:          d,
		Metadata:           body.Metadata,
	})
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (rt *Router) handleList(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	txs, err := rt.bridge.GetUserBridgeTransactions(r.Context(), user)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if txs == nil {
		txs = []*bridge.Transaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

// owned loads the transaction named in the path and hides transactions of
// other users behind not found.
func (rt *Router) owned(w http.ResponseWriter, r *http.Request) (*bridge.Transaction, bool) {
	id := mux.Vars(r)["id"]
	if !govalidator.IsPrintableASCII(id) {
		rt.writeError(w, r, &bridge.ValidationError{Field: "id", Reason: "must be printable ascii"})
		return nil, false
	}
	tx, err := rt.bridge.GetBridgeTransaction(r.Context(), id)
	if err != nil {
		rt.writeError(w, r, err)
		return nil, false
	}
	if user, _ := UserFromContext(r.Context()); tx.UserID != user {
		rt.writeError(w, r, bridge.ErrNotFound)
		return nil, false
	}
	return tx, true
}

func (rt *Router) handleGet(w http.ResponseWriter, r *http.Request) {
	tx, ok := rt.owned(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (rt *Router) handleAttachSource(w http.ResponseWriter, r *http.Request) {
	tx, ok := rt.owned(w, r)
	if !ok {
		return
	}
	var body attachBody
	if err := decode(w, r, &body); err != nil {
		rt.writeError(w, r, err)
		return
	}
	rt.respond(w, r)(rt.bridge.AttachSourceTransaction(r.Context(), tx.ID, body.SourceTxHash))
}

func (rt *Router) handleVerifySource(w http.ResponseWriter, r *http.Request) {
	tx, ok := rt.owned(w, r)
	if !ok {
		return
	}
	confirmed, err := rt.bridge.VerifySourceTransaction(r.Context(), tx.ID)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	latest, err := rt.bridge.GetBridgeTransaction(r.Context(), tx.ID)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, verifyResponse{Confirmed: confirmed, Transaction: latest})
}

func (rt *Router) handleStartMinting(w http.ResponseWriter, r *http.Request) {
	tx, ok := rt.owned(w, r)
	if !ok {
		return
	}
	rt.respond(w, r)(rt.bridge.StartMinting(r.Context(), tx.ID))
}

func (rt *Router) handleComplete(w http.ResponseWriter, r *http.Request) {
	tx, ok := rt.owned(w, r)
	if !ok {
		return
	}
	rt.respond(w, r)(rt.bridge.CompleteBridgeTransaction(r.Context(), tx.ID))
}

func (rt *Router) handleRevert(w http.ResponseWriter, r *http.Request) {
	tx, ok := rt.owned(w, r)
	if !ok {
		return
	}
	var body revertBody
	if err := decode(w, r, &body); err != nil {
		rt.writeError(w, r, err)
		return
	}
	rt.respond(w, r)(rt.bridge.RevertBridgeTransaction(r.Context(), tx.ID, body.Reason))
}

func (rt *Router) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	tx, ok := rt.owned(w, r)
	if !ok {
		return
	}
	var body statusBody
	if err := decode(w, r, &body); err != nil {
		rt.writeError(w, r, err)
		return
	}
	status, err := bridge.ParseStatus(body.Status)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	rt.respond(w, r)(rt.bridge.UpdateBridgeTransactionStatus(r.Context(), tx.ID, status, body.Metadata))
}

func (rt *Router) respond(w http.ResponseWriter, r *http.Request) func(*bridge.Transaction, error) {
	return func(tx *bridge.Transaction, err error) {
		if err != nil {
			rt.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, tx)
	}
}

func (rt *Router) handleBridgeConfig(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	source, err := bridge.ParseNetwork(q.Get("source"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	destination, err := bridge.ParseNetwork(q.Get("destination"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	route, err := rt.bridge.GetBridgeConfig(source, destination)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, route)
}

func (rt *Router) handleBridgeFee(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	d, err := bridge.ParseDirection(q.Get("direction"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	amount := q.Get("amount")
	fee, err := rt.bridge.CalculateBridgeFee(amount, d)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"amount":    amount,
		"direction": string(d),
		"fee":       fee,
	})
}
