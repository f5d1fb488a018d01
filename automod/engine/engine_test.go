package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/editguard/editguard/automod/countstore"
	"github.com/editguard/editguard/automod/dispatch"
	"github.com/editguard/editguard/automod/event"
	"github.com/editguard/editguard/automod/ledger"

	"github.com/stretchr/testify/assert"
)

func editEvent(chatID, msgID, actorID int64) event.EditEvent {
	return event.EditEvent{
		ChatID:       chatID,
		MessageID:    msgID,
		ActorID:      actorID,
		ActorName:    fmt.Sprintf("user%d", actorID),
		OriginalText: "hello",
		EditedText:   "hello (edited)",
	}
}

func TestEvaluateUntrusted(t *testing.T) {
	assert := assert.New(t)
	fix := EngineTestFixture()

	// scenario A
	decision, actions := fix.Engine.Evaluate(editEvent(1, 5, 200))
	assert.Equal(Enforced, decision)
	assert.Equal(4, len(actions))
	assert.Equal(dispatch.Delete(1, 5), actions[0])
	assert.Equal(dispatch.KindNotifyGroup, actions[1].Kind)
	assert.Equal(int64(1), actions[1].ChatID)
	assert.Equal(`<a href="tg://user?id=200">user200</a> edited a message; it was removed.`, actions[1].Text)
	assert.Equal(dispatch.KindNotifyOwner, actions[2].Kind)
	assert.Equal(int64(TestOwnerID), actions[2].ChatID)
	assert.Equal(`<a href="tg://user?id=200">user200</a> edited a message in 1; original text was 'hello'; removed.`, actions[2].Text)
	assert.Equal(dispatch.KindSendMedia, actions[3].Kind)
	assert.Equal(int64(1), actions[3].ChatID)
	assert.Equal(TestAsset, actions[3].AssetRef)
	assert.Equal(`<a href="tg://user?id=200">user200</a>, please refrain from editing messages.`, actions[3].Caption)

	// nothing was executed
	assert.Empty(fix.Transport.Calls())
}

func TestEvaluateTrusted(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	fix := EngineTestFixture()

	// scenario B
	assert.NoError(fix.Trust.Add(ctx, TestOwnerID, 200))
	decision, actions := fix.Engine.Evaluate(editEvent(1, 6, 200))
	assert.Equal(Suppressed, decision)
	assert.Empty(actions)

	// owner is exempt regardless of registry contents
	decision, actions = fix.Engine.Evaluate(editEvent(1, 7, TestOwnerID))
	assert.Equal(Suppressed, decision)
	assert.Empty(actions)

	// removal takes effect for later evaluations
	assert.NoError(fix.Trust.Remove(ctx, TestOwnerID, 200))
	decision, actions = fix.Engine.Evaluate(editEvent(1, 8, 200))
	assert.Equal(Enforced, decision)
	assert.Equal(4, len(actions))
}

func TestEvaluateEscaping(t *testing.T) {
	assert := assert.New(t)
	fix := EngineTestFixture()

	evt := editEvent(1, 5, 200)
	evt.ActorName = "<b>bob</b>"
	evt.OriginalText = "a < b & 'c'"
	_, actions := fix.Engine.Evaluate(evt)
	assert.Equal(`<a href="tg://user?id=200">&lt;b&gt;bob&lt;/b&gt;</a> edited a message; it was removed.`, actions[1].Text)
	assert.Contains(actions[2].Text, "original text was 'a &lt; b &amp; &#39;c&#39;'")

	evt.ActorName = ""
	evt.OriginalText = ""
	_, actions = fix.Engine.Evaluate(evt)
	assert.Equal(`<a href="tg://user?id=200">200</a> edited a message; it was removed.`, actions[1].Text)
	assert.Contains(actions[2].Text, "original text was '(not seen)'")
}

func TestEvaluateProperties(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	fix := EngineTestFixture()

	trusted := map[int64]bool{TestOwnerID: true}
	for i := int64(300); i < 310; i += 3 {
		assert.NoError(fix.Trust.Add(ctx, TestOwnerID, i))
		trusted[i] = true
	}
	for actor := int64(295); actor < 315; actor++ {
		decision, actions := fix.Engine.Evaluate(editEvent(-1001, actor, actor))
		if trusted[actor] {
			assert.Equal(Suppressed, decision)
			assert.Empty(actions)
			continue
		}
		assert.Equal(Enforced, decision)
		if assert.Equal(4, len(actions)) {
			assert.Equal(dispatch.KindDeleteMessage, actions[0].Kind)
			assert.Equal(dispatch.KindNotifyGroup, actions[1].Kind)
			assert.Equal(dispatch.KindNotifyOwner, actions[2].Kind)
			assert.Equal(dispatch.KindSendMedia, actions[3].Kind)
		}
	}
}

func TestProcessEnforced(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	fix := EngineTestFixture()

	rep, err := fix.Engine.ProcessEditEvent(ctx, editEvent(1, 5, 200))
	assert.NoError(err)
	assert.Equal(ledger.First, rep.Prior)
	assert.Equal(Enforced, rep.Decision)
	assert.Empty(rep.Skipped)
	if assert.Equal(4, len(rep.Outcomes)) {
		for i, out := range rep.Outcomes {
			assert.True(out.OK())
			assert.Equal(rep.Actions[i], out.Action)
		}
	}

	calls := fix.Transport.Calls()
	assert.Equal(4, len(calls))
	// delete always goes first; notices run concurrently after
	assert.Equal(dispatch.Call{Op: dispatch.OpDelete, ChatID: 1, MessageID: 5}, calls[0])
	assert.Equal(2, len(fix.Transport.CallsOf(dispatch.OpText)))
	assert.Equal(1, len(fix.Transport.CallsOf(dispatch.OpMedia)))

	ent, ok := fix.Engine.Ledger.Lookup(1, 5)
	assert.True(ok)
	assert.Equal(1, ent.Edits)
	assert.Equal(4, len(ent.Outcomes))
	assert.Equal("delete_message", ent.Outcomes[0].Action)
	assert.Equal("success", ent.Outcomes[0].Status)

	assert.Equal(1, len(fix.Audit.Records))
	assert.Equal("enforced", fix.Audit.Records[0].Decision)

	c, err := fix.Counters.GetCount(ctx, CounterEditActor, "200", countstore.PeriodTotal)
	assert.NoError(err)
	assert.Equal(1, c)
	c, err = fix.Counters.GetCount(ctx, CounterEnforceActor, "200", countstore.PeriodTotal)
	assert.NoError(err)
	assert.Equal(1, c)

	// repeated edits are enforced again
	evt := editEvent(1, 5, 200)
	evt.EditedText = "second edit"
	rep, err = fix.Engine.ProcessEditEvent(ctx, evt)
	assert.NoError(err)
	assert.Equal(ledger.Repeat, rep.Prior)
	assert.Equal(Enforced, rep.Decision)
	assert.Equal(8, len(fix.Transport.Calls()))

	ent, ok = fix.Engine.Ledger.Lookup(1, 5)
	assert.True(ok)
	assert.Equal(2, ent.Edits)
	assert.Equal("second edit", ent.Event.EditedText)
	assert.Equal("hello", ent.Event.OriginalText)
	assert.Equal(8, len(ent.Outcomes))
}

func TestProcessSuppressed(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	fix := EngineTestFixture()

	assert.NoError(fix.Trust.Add(ctx, TestOwnerID, 200))
	rep, err := fix.Engine.ProcessEditEvent(ctx, editEvent(1, 6, 200))
	assert.NoError(err)
	assert.Equal(Suppressed, rep.Decision)
	assert.Empty(rep.Outcomes)
	assert.Empty(fix.Transport.Calls())

	// still recorded for audit
	ent, ok := fix.Engine.Ledger.Lookup(1, 6)
	assert.True(ok)
	assert.Empty(ent.Outcomes)
	assert.Equal(1, len(fix.Audit.Records))
	assert.Equal("suppressed", fix.Audit.Records[0].Decision)

	c, err := fix.Counters.GetCount(ctx, CounterEnforceActor, "200", countstore.PeriodTotal)
	assert.NoError(err)
	assert.Equal(0, c)
}

func TestProcessMessageNotFound(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	fix := EngineTestFixture()

	// scenario E
	fix.Transport.FailNext(dispatch.OpDelete, dispatch.Permanent(dispatch.ReasonMessageNotFound, errors.New("Bad Request: message to delete not found")))
	rep, err := fix.Engine.ProcessEditEvent(ctx, editEvent(1, 5, 200))
	assert.NoError(err)
	assert.Equal(Enforced, rep.Decision)
	assert.Equal(1, len(rep.Outcomes))
	assert.True(rep.Outcomes[0].MessageNotFound())
	assert.Equal(3, len(rep.Skipped))

	calls := fix.Transport.Calls()
	assert.Equal(1, len(calls))
	assert.Equal(dispatch.OpDelete, calls[0].Op)

	ent, ok := fix.Engine.Ledger.Lookup(1, 5)
	assert.True(ok)
	if assert.Equal(4, len(ent.Outcomes)) {
		assert.Equal("permanent_failure", ent.Outcomes[0].Status)
		assert.Equal("skipped", ent.Outcomes[1].Status)
	}
}

func TestProcessDeleteForbidden(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	fix := EngineTestFixture()

	// other permanent delete failures still send the notices
	fix.Transport.FailNext(dispatch.OpDelete, dispatch.Permanent(dispatch.ReasonForbidden, errors.New("Forbidden")))
	rep, err := fix.Engine.ProcessEditEvent(ctx, editEvent(1, 5, 200))
	assert.NoError(err)
	assert.Empty(rep.Skipped)
	assert.Equal(4, len(rep.Outcomes))
	assert.Equal(dispatch.PermanentFailure, rep.Outcomes[0].Status)
	assert.Equal(dispatch.ReasonForbidden, rep.Outcomes[0].Reason)
	assert.True(rep.Outcomes[1].OK())
	assert.Equal(4, len(fix.Transport.Calls()))
}

func TestProcessTransientNotice(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	fix := EngineTestFixture()

	fix.Transport.FailNext(dispatch.OpMedia, errors.New("connection reset"))
	rep, err := fix.Engine.ProcessEditEvent(ctx, editEvent(1, 5, 200))
	assert.NoError(err)
	media := rep.Outcomes[3]
	assert.True(media.OK())
	assert.Equal(2, media.Attempts)
	// other notices unaffected
	assert.Equal(1, rep.Outcomes[1].Attempts)
}

func TestProcessPanicRecovered(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	fix := EngineTestFixture()

	fix.Engine.Dispatcher = panicExecutor{}
	rep, err := fix.Engine.ProcessEditEvent(ctx, editEvent(1, 5, 200))
	assert.Error(err)
	assert.Nil(rep)

	// ledger state from before the panic is kept; other chats are unaffected
	_, ok := fix.Engine.Ledger.Lookup(1, 5)
	assert.True(ok)
	fix.Engine.Dispatcher = dispatch.NewDispatcher(dispatch.NewFakeTransport(), dispatch.DefaultConfig(), nil)
	rep, err = fix.Engine.ProcessEditEvent(ctx, editEvent(2, 5, 200))
	assert.NoError(err)
	assert.Equal(ledger.First, rep.Prior)
}

type panicExecutor struct{}

func (panicExecutor) Execute(ctx context.Context, act dispatch.Action) dispatch.Outcome {
	panic("executor exploded")
}

func TestProcessConcurrentChats(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	fix := EngineTestFixture()

	// chat 2's messages are already gone; that must not affect chat 1
	fix.Transport.OnCall = func(ctx context.Context, c dispatch.Call) error {
		if c.Op == dispatch.OpDelete && c.ChatID == 2 {
			return dispatch.Permanent(dispatch.ReasonMessageNotFound, nil)
		}
		return nil
	}

	var wg sync.WaitGroup
	reports := make([]*Report, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			chat := int64(1 + i%2)
			rep, err := fix.Engine.ProcessEditEvent(ctx, editEvent(chat, int64(i), 200))
			assert.NoError(err)
			reports[i] = rep
		}(i)
	}
	wg.Wait()

	for i, rep := range reports {
		if i%2 == 0 {
			assert.Equal(4, len(rep.Outcomes))
			assert.Empty(rep.Skipped)
		} else {
			assert.Equal(1, len(rep.Outcomes))
			assert.Equal(3, len(rep.Skipped))
		}
	}
	assert.Equal(20, fix.Engine.Ledger.Len())
	c, err := fix.Counters.GetCountDistinct(ctx, CounterEditChats, "200", countstore.PeriodTotal)
	assert.NoError(err)
	assert.Equal(2, c)
}

func TestSlackNotifier(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	fix := EngineTestFixture()

	var lk sync.Mutex
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lk.Lock()
		hits++
		lk.Unlock()
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	fix.Engine.Notifier = NewSlackNotifier(srv.URL, srv.Client())
	_, err := fix.Engine.ProcessEditEvent(ctx, editEvent(1, 5, 200))
	assert.NoError(err)

	// not sent for trusted actors
	_, err = fix.Engine.ProcessEditEvent(ctx, editEvent(1, 6, TestOwnerID))
	assert.NoError(err)

	lk.Lock()
	assert.Equal(1, hits)
	lk.Unlock()

	msg := SlackEnforcementMsg(editEvent(1, 5, 200), &Report{
		Prior:    ledger.Repeat,
		Outcomes: []dispatch.Outcome{{Action: dispatch.Delete(1, 5), Status: dispatch.PermanentFailure, Reason: dispatch.ReasonMessageNotFound}},
		Skipped:  []dispatch.Action{dispatch.Group(1, "x")},
	})
	assert.Contains(msg, "`delete_message`: permanent_failure (message not found)")
	assert.Contains(msg, "`notify_group`: skipped")
}

func TestNewEngineRequiresCollaborators(t *testing.T) {
	assert := assert.New(t)
	fix := EngineTestFixture()
	led := ledger.NewLedger(nil)

	_, err := NewEngine(nil, 0, TestAsset, fix.Trust, led, fix.Engine.Dispatcher)
	assert.Error(err)
	_, err = NewEngine(nil, TestOwnerID, TestAsset, nil, led, fix.Engine.Dispatcher)
	assert.Error(err)
	_, err = NewEngine(nil, TestOwnerID, TestAsset, fix.Trust, nil, fix.Engine.Dispatcher)
	assert.Error(err)
	_, err = NewEngine(nil, TestOwnerID, TestAsset, fix.Trust, led, nil)
	assert.Error(err)

	eng, err := NewEngine(nil, TestOwnerID, TestAsset, fix.Trust, led, fix.Engine.Dispatcher)
	assert.NoError(err)
	assert.NotNil(eng.Logger)

	// optional collaborators may stay unset
	rep, err := eng.ProcessEditEvent(context.Background(), editEvent(-1001, 5, 200))
	assert.NoError(err)
	assert.Equal(Enforced, rep.Decision)
}
