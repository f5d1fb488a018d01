package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/editguard/editguard/automod/countstore"
	"github.com/editguard/editguard/automod/dispatch"
	"github.com/editguard/editguard/automod/event"
	"github.com/editguard/editguard/automod/flagstore"
	"github.com/editguard/editguard/automod/ledger"
	"github.com/editguard/editguard/automod/trust"
)

const (
	TestOwnerID = 100
	TestAsset   = "https://example.com/deterrent.mp4"
)

// Engine wired to in-memory stores and a fake transport, with fast retries.
type TestFixture struct {
	Engine    *Engine
	Transport *dispatch.FakeTransport
	Trust     *trust.Registry
	Counters  *countstore.MemCountStore
	Audit     *MemAuditSink
}

func EngineTestFixture() TestFixture {
	logger := slog.Default()
	tp := dispatch.NewFakeTransport()
	reg := trust.NewRegistry(TestOwnerID, flagstore.NewMemFlagStore(), logger)
	counters := countstore.NewMemCountStore()
	audit := &MemAuditSink{}
	disp := dispatch.NewDispatcher(tp, dispatch.Config{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		ActionTimeout:   time.Second,
	}, logger)
	eng, err := NewEngine(logger, TestOwnerID, TestAsset, reg, ledger.NewLedger(nil), disp)
	if err != nil {
		panic(err)
	}
	eng.Counters = counters
	eng.Audit = audit
	return TestFixture{
		Engine:    eng,
		Transport: tp,
		Trust:     reg,
		Counters:  counters,
		Audit:     audit,
	}
}

type AuditRecord struct {
	Event    event.EditEvent
	Decision string
	Outcomes []ledger.Annotation
}

// AuditSink which keeps records in memory. Intentionally exported, for use in other packages' tests.
type MemAuditSink struct {
	lk      sync.Mutex
	Records []AuditRecord
}

func (s *MemAuditSink) RecordEdit(ctx context.Context, evt event.EditEvent, decision string, outcomes []ledger.Annotation) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	s.Records = append(s.Records, AuditRecord{Event: evt, Decision: decision, Outcomes: outcomes})
	return nil
}
