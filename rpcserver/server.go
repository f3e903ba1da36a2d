// Copyright (c) 2024 The franode developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rpcserver

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/franode/abcid/crypto"
	"github.com/franode/abcid/ledgerstate"
	"github.com/franode/abcid/staking"
)

// Server serves the read-only staking query surface over a websocket
// connection. It holds the ledger handle, but no command reads it. It
// holds no lock of its own: every registry it reads already serializes
// its own state.
type Server struct {
	Engine *staking.Engine
	Ledger *ledgerstate.Ledger
	Height func() int64

	upgrader websocket.Upgrader
}

// NewServer builds a Server. height reports the node's current committed
// height, used by commands whose requested height is zero.
func NewServer(engine *staking.Engine, ledger *ledgerstate.Ledger, height func() int64) *Server {
	return &Server{
		Engine: engine,
		Ledger: ledger,
		Height: height,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection and serves requests until the client
// disconnects or sends a message this server cannot parse.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("rpcserver: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	for {
		var req request
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debugf("rpcserver: connection closed: %v", err)
			}
			return
		}

		resp := s.dispatch(req)
		if err := conn.WriteJSON(resp); err != nil {
			log.Warnf("rpcserver: write failed: %v", err)
			return
		}
	}
}

// dispatch decodes req.Params according to req.Method and runs the
// matching query, never mutating any module state.
func (s *Server) dispatch(req request) response {
	switch req.Method {
	case MethodGetValidators:
		var cmd GetValidatorsCmd
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &cmd); err != nil {
				return errorResponse(req.ID, err)
			}
		}
		return response{ID: req.ID, Result: s.getValidators(cmd)}

	case MethodGetDelegation:
		var cmd GetDelegationCmd
		if err := json.Unmarshal(req.Params, &cmd); err != nil {
			return errorResponse(req.ID, err)
		}
		return s.getDelegation(req.ID, cmd)

	case MethodGetStakingSummary:
		return response{ID: req.ID, Result: s.Engine.Summary(s.Height())}

	case MethodGetCoSigRule:
		var cmd GetCoSigRuleCmd
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &cmd); err != nil {
				return errorResponse(req.ID, err)
			}
		}
		return s.getCoSigRule(req.ID, cmd)

	default:
		return response{ID: req.ID, Error: "rpcserver: unknown method " + req.Method}
	}
}

// validatorView is the wire shape of one validator record, omitting the
// runtime-only SignedLastBlock bookkeeping the registry tracks internally.
type validatorView struct {
	AppKey          crypto.PubKey `json:"app_key"`
	ConsensusPubKey crypto.PubKey `json:"consensus_pub_key"`
	Power           int64         `json:"power"`
	Memo            string        `json:"memo"`
}

func (s *Server) getValidators(cmd GetValidatorsCmd) []validatorView {
	h := cmd.Height
	if h == 0 {
		h = s.Height()
	}
	validators := s.Engine.Validators.Validators(h)
	out := make([]validatorView, 0, len(validators))
	for _, v := range validators {
		out = append(out, validatorView{
			AppKey:          v.AppKey,
			ConsensusPubKey: v.ConsensusPubKey,
			Power:           v.Power,
			Memo:            v.Memo,
		})
	}
	return out
}

func (s *Server) getDelegation(id uint64, cmd GetDelegationCmd) response {
	d, ok := s.Engine.Delegations.Get(cmd.Owner)
	if !ok {
		return response{ID: id, Error: "rpcserver: no delegation for that owner"}
	}
	return response{ID: id, Result: d}
}

// ruleView is the wire shape of a CoSigRule: a weight list rather than a
// map, matching staking.RuleSpec's deterministic wire encoding.
type ruleView struct {
	Weights      []staking.WeightEntry `json:"weights"`
	ThresholdNum int64                 `json:"threshold_num"`
	ThresholdDen int64                 `json:"threshold_den"`
}

func (s *Server) getCoSigRule(id uint64, cmd GetCoSigRuleCmd) response {
	h := cmd.Height
	if h == 0 {
		h = s.Height()
	}
	rule := s.Engine.Validators.Rule(h)
	if rule == nil {
		return response{ID: id, Error: "rpcserver: no co-signature rule effective at that height"}
	}
	weights := make([]staking.WeightEntry, 0, len(rule.Weights))
	for k, w := range rule.Weights {
		weights = append(weights, staking.WeightEntry{Key: k, Weight: w})
	}
	return response{ID: id, Result: ruleView{Weights: weights, ThresholdNum: rule.ThresholdNum, ThresholdDen: rule.ThresholdDen}}
}

func errorResponse(id uint64, err error) response {
	return response{ID: id, Error: err.Error()}
}
