package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mailgun/holster/v4/syncutil"
	"github.com/ssgreg/repeat"

	"github.com/harborstake/minipoold/internal/lib/minipool"
	"github.com/harborstake/minipoold/internal/lib/misc"
)

// Daemon runs the background maintenance loops: reward-cycle advancement,
// metric sweeps, and collateral price refresh from the operator-maintained
// price file.
type Daemon struct {
	logger  *slog.Logger
	manager *minipool.Manager

	// embed mutex for locking state for members below the mutex
	sync.RWMutex
	lastPrice uint64
}

func newDaemon() *Daemon {
	return &Daemon{
		logger:  App.logger,
		manager: App.manager,
	}
}

func (d *Daemon) start(ctx context.Context, wg *sync.WaitGroup, listenAddr string) {
	d.logger.Info("Starting minipool daemon")

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.CycleWatcher(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.serveHTTP(ctx, listenAddr)
	}()
}

// CycleWatcher advances the global reward cycle cursor, sweeps status and
// fund gauges, and refreshes the collateral price.
func (d *Daemon) CycleWatcher(ctx context.Context) {
	defer d.logger.Info("Exiting CycleWatcher")
	d.logger.Info("Starting CycleWatcher")

	// establish price and gauges before the first tick
	d.refreshPrice()
	d.sweepMetrics()

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(1 * time.Minute):
			end, err := d.manager.AdvanceRewardCycle()
			if err != nil {
				misc.Warnf(d.logger, "reward cycle advance failed:%v", err)
				break
			}
			misc.Debugf(d.logger, "reward cycle ends at:%d", end)
			d.sweepMetrics()
		case <-time.After(30 * time.Minute):
			d.refreshPrice()
		}
	}
}

// sweepMetrics recounts minipools per status and refreshes fund gauges.  The
// per-status scans are independent so they fan out.
func (d *Daemon) sweepMetrics() {
	fanOut := syncutil.NewFanOut(4)
	for status := minipool.StatusPrelaunch; status <= minipool.StatusError; status++ {
		fanOut.Run(func(cast any) error {
			st := cast.(minipool.MinipoolStatus)
			pools, err := d.manager.ListMinipools(&st, 0, 0)
			if err != nil {
				misc.Warnf(d.logger, "status sweep failed for %s:%v", st, err)
				return err
			}
			minipool.SetStatusCount(st, float64(len(pools)))
			return nil
		}, status)
	}
	fanOut.Wait()

	liquid, err := d.manager.LiquidStakedTotal()
	if err != nil {
		misc.Warnf(d.logger, "liquid staked total fetch failed:%v", err)
		return
	}
	held, err := d.manager.HeldFunds()
	if err != nil {
		misc.Warnf(d.logger, "held funds fetch failed:%v", err)
		return
	}
	minipool.SetFundGauges(liquid, held)
}

type priceFile struct {
	CollateralPrice uint64 `json:"collateralPrice"`
}

// refreshPrice re-reads the operator-maintained price file, retrying with
// jittered backoff so a concurrent rewrite of the file doesn't wedge the
// oracle.  A missing file leaves the current price in place.
func (d *Daemon) refreshPrice() {
	path := filepath.Join(App.dataDir, "price.json")
	var pf priceFile
	err := repeat.Repeat(
		repeat.Fn(func() error {
			data, err := os.ReadFile(path)
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return repeat.HintTemporary(err)
			}
			if err := json.Unmarshal(data, &pf); err != nil {
				return repeat.HintTemporary(err)
			}
			return nil
		}),
		repeat.StopOnSuccess(),
		repeat.LimitMaxTries(10),
		repeat.FnOnError(func(err error) error {
			misc.Warnf(d.logger, "retrying price file read, error:%v", err)
			return err
		}),
		repeat.WithDelay(
			repeat.SetContextHintStop(),
			(&repeat.FullJitterBackoffBuilder{
				BaseDelay: 1 * time.Second,
				MaxDelay:  10 * time.Second,
			}).Set(),
		),
	)
	if err != nil || pf.CollateralPrice == 0 {
		return
	}
	App.oracle.SetPrice(pf.CollateralPrice)
	d.Lock()
	changed := d.lastPrice != pf.CollateralPrice
	d.lastPrice = pf.CollateralPrice
	d.Unlock()
	if changed {
		misc.Infof(d.logger, "collateral price set to:%d", pf.CollateralPrice)
	}
}
