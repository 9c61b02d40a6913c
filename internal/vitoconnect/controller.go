// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package vitoconnect drives a Viessmann controller: it turns data point
// reads and writes into scheduled requests, hands them to the Optolink one
// at a time and feeds the answers back into the data points.
//
// A Controller is single threaded. Loop and Update must be called from the
// same goroutine; Readings and Metrics may be used from anywhere.
package vitoconnect

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/ffutop/vitoconnect/internal/config"
	"github.com/ffutop/vitoconnect/internal/datapoint"
	"github.com/ffutop/vitoconnect/internal/scheduler"
	"github.com/ffutop/vitoconnect/transport"
	catrate "github.com/joeycumines/go-catrate"
	"github.com/puzpuzpuz/xsync/v3"
)

const (
	DefaultReadBatchSize   = 8
	DefaultCleanupEvery    = 10
	DefaultHeadroomPercent = 80

	// MaxDatapoints is the number of distinct source tags.
	MaxDatapoints = math.MaxUint8 + 1

	saturatedCategory = "link-saturated"
)

// ErrTooManyDatapoints is returned by Register once every source tag is used.
var ErrTooManyDatapoints = errors.New("vitoconnect: too many datapoints")

// Datapoint is a value of the heating controller as seen by the Controller.
type Datapoint interface {
	Name() string
	Address() uint16
	Length() uint8
	// LastModification returns a non-zero marker while a local change has
	// not been confirmed by the controller.
	LastModification() uint64
	// ClearModification clears the pending change if it is still marker.
	ClearModification(marker uint64) bool
	// Encode writes the current value into dst, which is Length() bytes.
	Encode(dst []byte) error
	// Decode stores a value read from the controller. It must check for a
	// pending change and store in one step, returning
	// datapoint.ErrPendingWrite instead of storing while one is pending.
	Decode(data []byte) error
}

// Reading is the last decoded value of a data point.
type Reading struct {
	Name      string
	Address   uint16
	Value     string
	UpdatedAt time.Time
}

// ErrorHandler is called for every failed request with the data point it
// was for.
type ErrorHandler func(err error, dp Datapoint)

// Controller connects the data points, the scheduler and the link.
type Controller struct {
	sched  *scheduler.Scheduler
	link   transport.Link
	logger *slog.Logger
	now    func() time.Time

	readBatch    int
	cleanupEvery int
	headroom     int

	points  []Datapoint
	cursor  int
	updates int

	// submittedSeq is the sequence number of the request last handed to the
	// link. Next keeps returning the in-flight request until it completes.
	submittedSeq uint64
	encodeBuf    [math.MaxUint8]byte
	confirmBuf   [math.MaxUint8]byte

	saturated *catrate.Limiter
	readings  *xsync.MapOf[string, Reading]
	onError   ErrorHandler
	metrics   Metrics
}

// New creates a Controller and installs its handlers on link.
func New(sched *scheduler.Scheduler, link transport.Link, cfg config.ControllerConfig, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		sched:        sched,
		link:         link,
		logger:       logger,
		now:          time.Now,
		readBatch:    cfg.ReadBatchSize,
		cleanupEvery: cfg.CleanupEvery,
		headroom:     cfg.HeadroomPercent,
		saturated:    catrate.NewLimiter(map[time.Duration]int{5 * time.Second: 1}),
		readings:     xsync.NewMapOf[string, Reading](),
	}
	if c.readBatch <= 0 {
		c.readBatch = DefaultReadBatchSize
	}
	if c.cleanupEvery <= 0 {
		c.cleanupEvery = DefaultCleanupEvery
	}
	if c.headroom <= 0 || c.headroom > 100 {
		c.headroom = DefaultHeadroomPercent
	}

	link.OnData(c.handleData)
	link.OnError(c.handleError)
	return c
}

// Register adds a data point to the polling cycle. The registration index
// becomes the source tag of its requests.
func (c *Controller) Register(dp Datapoint) error {
	if len(c.points) >= MaxDatapoints {
		return fmt.Errorf("%w: %s", ErrTooManyDatapoints, dp.Name())
	}
	c.points = append(c.points, dp)
	c.logger.Debug("datapoint registered", "datapoint", dp.Name(), "address", fmt.Sprintf("0x%04X", dp.Address()),
		"source", len(c.points)-1)
	return nil
}

// Datapoints returns the registered data points in registration order.
func (c *Controller) Datapoints() []Datapoint { return c.points }

// OnError sets the handler for failed requests.
func (c *Controller) OnError(h ErrorHandler) { c.onError = h }

// Metrics returns the controller counters.
func (c *Controller) Metrics() *Metrics { return &c.metrics }

// Loop runs the link and hands the scheduled request to it when possible.
// It is called on every tick.
func (c *Controller) Loop() {
	c.link.Loop()

	if !c.link.IsReady() {
		// A request already on the link is settled by its callback.
		if cur, ok := c.sched.Current(); ok && cur.Seq != c.submittedSeq {
			c.sched.RetryCurrent()
		}
		return
	}

	req, ok := c.sched.Next()
	if !ok || req.Seq == c.submittedSeq {
		return
	}

	limit := max(1, c.link.QueueCapacity()*c.headroom/100)
	if c.link.QueueSize() >= limit {
		c.sched.RetryCurrent()
		c.metrics.SaturatedCount.Add(1)
		if _, ok := c.saturated.Allow(saturatedCategory); ok {
			c.logger.Warn("Optolink queue saturated, delaying request", "queued", c.link.QueueSize(),
				"capacity", c.link.QueueCapacity(), "pending", c.sched.Size())
		}
		return
	}

	rec := req.Token.(*completion)
	var accepted bool
	if req.Direction == scheduler.Write {
		buf := c.encodeBuf[:req.Length]
		if err := rec.dp.Encode(buf); err != nil {
			c.logger.Error("Failed to encode write, dropping it", "datapoint", rec.dp.Name(), "req", rec.id.String(), "err", err)
			c.metrics.DroppedWriteCount.Add(1)
			c.sched.ReleaseCurrent()
			rec.release()
			return
		}
		accepted = c.link.Write(req.Address, req.Length, buf, rec)
	} else {
		accepted = c.link.Read(req.Address, req.Length, rec)
	}
	if !accepted {
		c.sched.RetryCurrent()
		return
	}

	c.submittedSeq = req.Seq
	c.metrics.SubmittedCount.Add(1)
	c.logger.Debug("request submitted", "datapoint", rec.dp.Name(), "req", rec.id.String(), "dir", req.Direction,
		"seq", req.Seq)
}

// Update schedules pending writes, each followed by a verification read,
// and the next batch of reads. It is called once per polling interval.
func (c *Controller) Update() {
	for i, dp := range c.points {
		c.scheduleWrite(dp, scheduler.SourceTag(i))
	}
	c.scheduleReads()

	c.updates++
	if c.updates >= c.cleanupEvery {
		c.updates = 0
		if n := c.sched.CleanupStale(); n > 0 {
			c.logger.Info("Removed stale requests", "count", n)
		}
	}
}

func (c *Controller) scheduleWrite(dp Datapoint, source scheduler.SourceTag) {
	marker := dp.LastModification()
	if marker == 0 {
		return
	}

	w := newCompletion(dp, true)
	w.marker = marker
	switch c.sched.Enqueue(dp.Address(), dp.Length(), scheduler.Write, w, source) {
	case scheduler.Queued:
	case scheduler.Duplicate:
		// the pending write already carries its verification read
		w.release()
		return
	default:
		w.release()
		c.logger.Warn("Failed to queue write", "datapoint", dp.Name())
		return
	}

	v := newCompletion(dp, false)
	v.verify = true
	v.marker = marker
	v.expect = grow(v.expect, int(dp.Length()))
	if err := dp.Encode(v.expect); err != nil {
		c.logger.Error("Failed to snapshot written value", "datapoint", dp.Name(), "err", err)
		v.release()
		return
	}
	switch c.sched.Enqueue(dp.Address(), dp.Length(), scheduler.Read, v, source) {
	case scheduler.Queued:
	case scheduler.Duplicate:
		// the queued plain read confirms the write instead
		v.release()
		c.logger.Debug("verification read merged with queued read", "datapoint", dp.Name())
	default:
		v.release()
		c.logger.Warn("Failed to queue verification read", "datapoint", dp.Name())
	}
}

func (c *Controller) scheduleReads() {
	n := len(c.points)
	if n == 0 {
		return
	}
	if c.cursor >= n {
		c.cursor = 0
	}

	for k := 0; k < min(c.readBatch, n); k++ {
		dp := c.points[c.cursor]
		r := newCompletion(dp, false)
		res := c.sched.Enqueue(dp.Address(), dp.Length(), scheduler.Read, r, scheduler.SourceTag(c.cursor))
		if res == scheduler.Rejected {
			r.release()
			c.logger.Debug("request queue full, read batch cut short", "datapoint", dp.Name())
			return
		}
		if res == scheduler.Duplicate {
			r.release()
		}
		c.cursor++
		if c.cursor >= n {
			c.cursor = 0
		}
	}
}

func (c *Controller) handleData(data []byte, token any) {
	rec, ok := token.(*completion)
	if !ok {
		c.logger.Error("Completion with unknown token", "token", token)
		return
	}
	defer rec.release()
	c.finish(rec)
	c.metrics.CompletedCount.Add(1)

	dp := rec.dp
	log := c.logger.With("datapoint", dp.Name(), "req", rec.id.String())
	switch {
	case rec.write:
		if len(data) > 0 && data[0] != 0x00 {
			log.Warn("Write not acknowledged", "data", hex.EncodeToString(data))
			return
		}
		log.Debug("write completed")
	case rec.verify:
		if len(data) != len(rec.expect) {
			c.metrics.MismatchCount.Add(1)
			log.Warn("Verification read length mismatch", "got", len(data), "want", len(rec.expect))
			return
		}
		if !bytes.Equal(data, rec.expect) {
			c.metrics.MismatchCount.Add(1)
			log.Warn("Written value not confirmed", "got", hex.EncodeToString(data), "want", hex.EncodeToString(rec.expect))
			return
		}
		c.metrics.VerifiedCount.Add(1)
		if dp.ClearModification(rec.marker) {
			log.Info("Write confirmed")
		} else {
			log.Debug("write confirmed, newer change pending")
		}
	default:
		err := dp.Decode(data)
		switch {
		case err == nil:
			c.store(dp, data)
		case errors.Is(err, datapoint.ErrPendingWrite):
			c.confirmPending(dp, data, log)
		default:
			log.Warn("Failed to decode value", "data", hex.EncodeToString(data), "err", err)
		}
	}
}

// confirmPending clears a pending change when a plain read returns exactly
// the value waiting to be confirmed.
func (c *Controller) confirmPending(dp Datapoint, data []byte, log *slog.Logger) {
	marker := dp.LastModification()
	if marker == 0 {
		return
	}
	want := c.confirmBuf[:dp.Length()]
	if err := dp.Encode(want); err != nil || !bytes.Equal(data, want) {
		log.Debug("waiting for write confirmation, value not updated")
		return
	}
	if dp.ClearModification(marker) {
		c.metrics.VerifiedCount.Add(1)
		log.Info("Write confirmed by regular read")
	}
}

func (c *Controller) handleError(err error, token any) {
	rec, ok := token.(*completion)
	if !ok {
		c.logger.Error("Error with unknown token", "token", token, "err", err)
		return
	}
	defer rec.release()
	c.finish(rec)
	c.metrics.ErrorCount.Add(1)

	c.logger.Warn("Request failed", "datapoint", rec.dp.Name(), "req", rec.id.String(), "write", rec.write,
		"code", transport.Code(err), "err", err)
	if c.onError != nil {
		c.onError(err, rec.dp)
	}
}

// finish releases the scheduler's in-flight request if rec is its token. A
// result for a request the scheduler already evicted releases nothing.
func (c *Controller) finish(rec *completion) {
	if cur, ok := c.sched.Current(); ok && cur.Token == rec {
		c.sched.ReleaseCurrent()
		return
	}
	c.metrics.LateResultCount.Add(1)
	c.logger.Debug("late result ignored", "datapoint", rec.dp.Name(), "req", rec.id.String())
}

// valuer is implemented by data points that keep their decoded value.
type valuer interface {
	Value() (datapoint.Value, bool)
}

func (c *Controller) store(dp Datapoint, data []byte) {
	r := Reading{Name: dp.Name(), Address: dp.Address(), UpdatedAt: c.now()}
	if v, ok := dp.(valuer); ok {
		if val, ok := v.Value(); ok {
			r.Value = val.String()
		}
	}
	if r.Value == "" {
		r.Value = hex.EncodeToString(data)
	}
	c.readings.Store(r.Name, r)
}

// Reading returns the last value read for the named data point.
func (c *Controller) Reading(name string) (Reading, bool) {
	return c.readings.Load(name)
}

// Readings returns the last value of every data point read so far, in
// registration order.
func (c *Controller) Readings() []Reading {
	out := make([]Reading, 0, c.readings.Size())
	for _, dp := range c.points {
		if r, ok := c.readings.Load(dp.Name()); ok {
			out = append(out, r)
		}
	}
	return out
}
