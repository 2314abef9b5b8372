package server

import (
	"encoding/json"
	"math/big"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/OlympusDAO/olympus-v3-sub011/internal/escrow"
)

// Balances, multipliers and powers travel as decimal strings: they are
// 256-bit quantities and do not fit JSON numbers.

func parseAmount(s string) (*big.Int, bool) {
	if s == "" {
		return new(big.Int), true
	}
	return new(big.Int).SetString(s, 10)
}

func lockIDParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "lockID"), 10, 64)
	return id, err == nil && id > 0
}

func (s *Server) handleConfigurePool(w http.ResponseWriter, r *http.Request) {
	poolID := chi.URLParam(r, "poolID")

	var req struct {
		Multiplier      string `json:"multiplier"`
		MaxLockDuration int64  `json:"max_lock_duration"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid json")
		return
	}
	mult, ok := parseAmount(req.Multiplier)
	if !ok {
		jsonError(w, http.StatusBadRequest, "malformed multiplier")
		return
	}

	if err := s.engine.ConfigurePool(poolID, mult, req.MaxLockDuration); err != nil {
		engineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"pool_id":           poolID,
		"multiplier":        mult.String(),
		"max_lock_duration": req.MaxLockDuration,
	})
}

func (s *Server) handleGetPool(w http.ResponseWriter, r *http.Request) {
	poolID := chi.URLParam(r, "poolID")

	open, err := s.engine.IsOpenPool(poolID)
	if err != nil {
		engineError(w, err)
		return
	}
	if !open {
		writeJSON(w, http.StatusOK, map[string]any{"pool_id": poolID, "open": false})
		return
	}

	mult, err := s.engine.Multiplier(poolID)
	if err != nil {
		engineError(w, err)
		return
	}
	maxLock, err := s.engine.MaximumLockTime(poolID)
	if err != nil {
		engineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pool_id":           poolID,
		"open":              true,
		"multiplier":        mult.String(),
		"max_lock_duration": maxLock,
	})
}

func (s *Server) handleCheckpoint(w http.ResponseWriter, r *http.Request) {
	poolID := chi.URLParam(r, "poolID")

	if err := s.engine.Checkpoint(poolID); err != nil {
		engineError(w, err)
		return
	}
	point, err := s.engine.GlobalPoint(poolID)
	if err != nil {
		engineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "checkpointed",
		"point":  pointJSON(point),
	})
}

func (s *Server) handleCreateLock(w http.ResponseWriter, r *http.Request) {
	poolID := chi.URLParam(r, "poolID")

	var req struct {
		Owner      string `json:"owner"`
		Balance    string `json:"balance"`
		UnlockTime int64  `json:"unlock_time"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Owner == "" {
		jsonError(w, http.StatusBadRequest, "owner required")
		return
	}
	balance, ok := parseAmount(req.Balance)
	if !ok {
		jsonError(w, http.StatusBadRequest, "malformed balance")
		return
	}

	lockID, err := s.engine.NoteLockCreation(req.Owner, poolID, balance, req.UnlockTime)
	if err != nil {
		engineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"lock_id":     lockID,
		"owner":       req.Owner,
		"pool_id":     poolID,
		"unlock_time": req.UnlockTime,
	})
}

func (s *Server) handleBalanceChange(w http.ResponseWriter, r *http.Request) {
	poolID := chi.URLParam(r, "poolID")
	lockID, ok := lockIDParam(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "malformed lock id")
		return
	}

	var req struct {
		Owner      string `json:"owner"`
		OldBalance string `json:"old_balance"`
		NewBalance string `json:"new_balance"`
		UnlockTime int64  `json:"unlock_time"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid json")
		return
	}
	oldBalance, ok := parseAmount(req.OldBalance)
	if !ok {
		jsonError(w, http.StatusBadRequest, "malformed old_balance")
		return
	}
	newBalance, ok := parseAmount(req.NewBalance)
	if !ok {
		jsonError(w, http.StatusBadRequest, "malformed new_balance")
		return
	}

	err := s.engine.NoteLockBalanceChange(req.Owner, poolID, lockID, oldBalance, newBalance, req.UnlockTime)
	if err != nil {
		engineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "noted"})
}

func (s *Server) handleExtendLock(w http.ResponseWriter, r *http.Request) {
	poolID := chi.URLParam(r, "poolID")
	lockID, ok := lockIDParam(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "malformed lock id")
		return
	}

	var req struct {
		Owner         string `json:"owner"`
		Balance       string `json:"balance"`
		OldUnlockTime int64  `json:"old_unlock_time"`
		NewUnlockTime int64  `json:"new_unlock_time"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid json")
		return
	}
	balance, ok := parseAmount(req.Balance)
	if !ok {
		jsonError(w, http.StatusBadRequest, "malformed balance")
		return
	}

	err := s.engine.NoteLockExtension(req.Owner, poolID, lockID, balance, req.OldUnlockTime, req.NewUnlockTime)
	if err != nil {
		engineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "extended"})
}

func (s *Server) handleGlobalPower(w http.ResponseWriter, r *http.Request) {
	poolID := chi.URLParam(r, "poolID")

	power, err := s.engine.GlobalVotingPower(poolID)
	if err != nil {
		engineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pool_id": poolID,
		"power":   power.String(),
	})
}

func (s *Server) handleGlobalPoint(w http.ResponseWriter, r *http.Request) {
	poolID := chi.URLParam(r, "poolID")

	point, err := s.engine.GlobalPoint(poolID)
	if err != nil {
		engineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pointJSON(point))
}

func (s *Server) handleLockPower(w http.ResponseWriter, r *http.Request) {
	lockID, ok := lockIDParam(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "malformed lock id")
		return
	}
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		jsonError(w, http.StatusBadRequest, "owner required")
		return
	}

	power, err := s.engine.VotingPower(owner, lockID)
	if err != nil {
		engineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"owner":   owner,
		"lock_id": lockID,
		"power":   power.String(),
	})
}

func (s *Server) handleLockShare(w http.ResponseWriter, r *http.Request) {
	lockID, ok := lockIDParam(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "malformed lock id")
		return
	}
	owner := r.URL.Query().Get("owner")
	poolID := r.URL.Query().Get("pool")
	if owner == "" || poolID == "" {
		jsonError(w, http.StatusBadRequest, "owner and pool required")
		return
	}

	share, err := s.engine.VotingPowerShare(owner, poolID, lockID)
	if err != nil {
		engineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"owner":   owner,
		"lock_id": lockID,
		"pool_id": poolID,
		"share":   share.String(),
	})
}

func (s *Server) handleShares(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Pool  string `json:"pool"`
		Locks []struct {
			Owner  string `json:"owner"`
			LockID int64  `json:"lock_id"`
		} `json:"locks"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Pool == "" {
		jsonError(w, http.StatusBadRequest, "pool required")
		return
	}

	refs := make([]escrow.LockRef, len(req.Locks))
	for i, l := range req.Locks {
		refs[i] = escrow.LockRef{Owner: l.Owner, LockID: l.LockID}
	}

	shares, err := s.engine.VotingPowerShares(req.Pool, refs)
	if err != nil {
		engineError(w, err)
		return
	}
	out := make([]string, len(shares))
	for i, sh := range shares {
		out[i] = sh.String()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pool_id": req.Pool,
		"shares":  out,
	})
}

func (s *Server) handleEpoch(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"epoch": s.engine.EpochTime(),
		"week":  escrow.Week,
	})
}

func pointJSON(p escrow.Point) map[string]any {
	return map[string]any{
		"bias":        p.Bias.String(),
		"slope":       p.Slope.String(),
		"period":      p.Period,
		"last_update": p.LastUpdate,
	}
}
