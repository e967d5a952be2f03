package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/harborstake/minipoold/internal/lib/minipool"
	"github.com/harborstake/minipoold/internal/lib/misc"
)

// serveHTTP exposes the operation surface and metrics over HTTP.  Mutating
// endpoints take the acting account in the request body; authentication is
// assumed to happen upstream.
func (d *Daemon) serveHTTP(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /v1/stats", d.handleStats)
	mux.HandleFunc("GET /v1/minipools", d.handleList)
	mux.HandleFunc("GET /v1/minipools/{identity}", d.handleGet)
	mux.HandleFunc("GET /v1/minipools/index/{index}", d.handleGetByIndex)
	mux.HandleFunc("POST /v1/minipools", d.handleCreate)
	mux.HandleFunc("POST /v1/minipools/{identity}/cancel", d.handleCancel)
	mux.HandleFunc("POST /v1/minipools/{identity}/claim", d.handleClaim)
	mux.HandleFunc("POST /v1/minipools/{identity}/start", d.handleStart)
	mux.HandleFunc("POST /v1/minipools/{identity}/rewards", d.handleRewards)
	mux.HandleFunc("POST /v1/minipools/{identity}/settle", d.handleSettle)
	mux.HandleFunc("POST /v1/minipools/{identity}/error", d.handleError)
	mux.HandleFunc("POST /v1/minipools/{identity}/withdraw", d.handleWithdraw)
	mux.HandleFunc("POST /v1/minipools/{identity}/withdraw-rewards", d.handleWithdrawRewards)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()
	misc.Infof(d.logger, "http api listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		misc.Errorf(d.logger, "http server error:%v", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errResponse struct {
	Error string `json:"error"`
}

// writeOpError maps the operation error taxonomy onto HTTP statuses.
func writeOpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, minipool.ErrMinipoolNotFound):
		writeJSON(w, http.StatusNotFound, errResponse{err.Error()})
	case errors.Is(err, minipool.ErrNotOwner), errors.Is(err, minipool.ErrNotAssignedAgent):
		writeJSON(w, http.StatusForbidden, errResponse{err.Error()})
	case minipool.IsInvalidTransition(err), errors.Is(err, minipool.ErrCancelMoratorium),
		errors.Is(err, minipool.ErrRewardIntervalNotMet):
		writeJSON(w, http.StatusConflict, errResponse{err.Error()})
	default:
		writeJSON(w, http.StatusBadRequest, errResponse{err.Error()})
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errResponse{"malformed request body: " + err.Error()})
		return false
	}
	return true
}

func (d *Daemon) handleStats(w http.ResponseWriter, r *http.Request) {
	count, err := d.manager.MinipoolCount()
	if err != nil {
		writeOpError(w, err)
		return
	}
	liquid, err := d.manager.LiquidStakedTotal()
	if err != nil {
		writeOpError(w, err)
		return
	}
	held, err := d.manager.HeldFunds()
	if err != nil {
		writeOpError(w, err)
		return
	}
	cycleEnd, err := d.manager.RewardCycleEnd()
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"minipoolCount":     count,
		"liquidStakedTotal": liquid,
		"heldFunds":         held,
		"rewardCycleEnd":    cycleEnd,
	})
}

func (d *Daemon) handleList(w http.ResponseWriter, r *http.Request) {
	var filter *minipool.MinipoolStatus
	if str := r.URL.Query().Get("status"); str != "" {
		st, err := parseStatus(str)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errResponse{err.Error()})
			return
		}
		filter = &st
	}
	offset := queryUint(r, "offset")
	limit := queryUint(r, "limit")
	pools, err := d.manager.ListMinipools(filter, offset, limit)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pools)
}

func (d *Daemon) handleGet(w http.ResponseWriter, r *http.Request) {
	mp, err := d.manager.GetMinipool(r.PathValue("identity"))
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mp)
}

func (d *Daemon) handleGetByIndex(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.ParseUint(r.PathValue("index"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errResponse{"malformed index: " + err.Error()})
		return
	}
	mp, err := d.manager.GetMinipoolByIndex(index)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mp)
}

func (d *Daemon) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account       string `json:"account"`
		Identity      string `json:"identity"`
		Duration      uint64 `json:"duration"`
		DelegationFee uint64 `json:"delegationFee"`
		Sent          uint64 `json:"sent"`
		Requested     uint64 `json:"requested"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	mp, err := d.manager.CreateMinipool(req.Account, req.Identity, req.Duration, req.DelegationFee, req.Sent, req.Requested)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, mp)
}

func (d *Daemon) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account   string `json:"account"`
		ErrorCode string `json:"errorCode"`
		AsAgent   bool   `json:"asAgent"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	identity := r.PathValue("identity")
	var err error
	if req.AsAgent {
		err = d.manager.CancelMinipoolByAgent(req.Account, identity, req.ErrorCode)
	} else {
		err = d.manager.CancelMinipool(req.Account, identity)
	}
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "canceled"})
}

func (d *Daemon) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account string `json:"account"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := d.manager.ClaimAndInitiateStaking(req.Account, r.PathValue("identity")); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "launched"})
}

func (d *Daemon) handleStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account   string `json:"account"`
		StartTime int64  `json:"startTime"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := d.manager.RecordStakingStart(req.Account, r.PathValue("identity"), req.StartTime); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "staking"})
}

func (d *Daemon) handleRewards(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account   string `json:"account"`
		Reward    uint64 `json:"reward"`
		Forwarded uint64 `json:"forwarded"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := d.manager.DistributeRewards(req.Account, r.PathValue("identity"), req.Reward, req.Forwarded); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "distributed"})
}

func (d *Daemon) handleSettle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account   string `json:"account"`
		EndTime   int64  `json:"endTime"`
		Reward    uint64 `json:"reward"`
		Forwarded uint64 `json:"forwarded"`
		NoRenewal bool   `json:"noRenewal"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	identity := r.PathValue("identity")
	var err error
	if req.NoRenewal {
		err = d.manager.RecordStakingEnd(req.Account, identity, req.EndTime, req.Reward, req.Forwarded)
	} else {
		err = d.manager.RecordStakingEndThenMaybeCycle(req.Account, identity, req.EndTime, req.Reward, req.Forwarded)
	}
	if err != nil {
		writeOpError(w, err)
		return
	}
	mp, err := d.manager.GetMinipool(identity)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mp)
}

func (d *Daemon) handleError(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account   string `json:"account"`
		Forwarded uint64 `json:"forwarded"`
		ErrorCode string `json:"errorCode"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := d.manager.RecordStakingError(req.Account, r.PathValue("identity"), req.Forwarded, req.ErrorCode); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "errored"})
}

func (d *Daemon) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account string `json:"account"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	paid, err := d.manager.WithdrawFinalFunds(req.Account, r.PathValue("identity"))
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"paid": paid})
}

func (d *Daemon) handleWithdrawRewards(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account string `json:"account"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	paid, err := d.manager.WithdrawPartialRewards(req.Account, r.PathValue("identity"))
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"paid": paid})
}

func parseStatus(str string) (minipool.MinipoolStatus, error) {
	for st := minipool.StatusPrelaunch; st <= minipool.StatusError; st++ {
		if st.String() == str {
			return st, nil
		}
	}
	return 0, errors.New("unknown status: " + str)
}

func queryUint(r *http.Request, name string) uint64 {
	v, _ := strconv.ParseUint(r.URL.Query().Get(name), 10, 64)
	return v
}
