package dispatch

import (
	"context"
	"sync"
)

// Transport operation names, as recorded by FakeTransport
const (
	OpDelete = "delete"
	OpText   = "text"
	OpMedia  = "media"
)

// A recorded transport call
type Call struct {
	Op        string
	ChatID    int64
	MessageID int64
	Text      string
	AssetRef  string
	Caption   string
}

// In-memory Transport for tests. Calls are recorded in order; scripted per-operation errors are consumed one per call.
//
// Intentionally exported, for use in other packages' tests.
type FakeTransport struct {
	lk     sync.Mutex
	calls  []Call
	errors map[string][]error
	// optional hook run on every call, after recording. A non-nil return overrides any scripted error.
	OnCall func(ctx context.Context, c Call) error
}

var _ Transport = (*FakeTransport)(nil)

func NewFakeTransport() *FakeTransport {
	return &FakeTransport{
		errors: make(map[string][]error),
	}
}

// Queues errors to be returned by subsequent calls of the given operation. A nil entry is a successful call.
func (f *FakeTransport) FailNext(op string, errs ...error) {
	f.lk.Lock()
	defer f.lk.Unlock()
	f.errors[op] = append(f.errors[op], errs...)
}

func (f *FakeTransport) Calls() []Call {
	f.lk.Lock()
	defer f.lk.Unlock()
	return append([]Call{}, f.calls...)
}

func (f *FakeTransport) CallsOf(op string) []Call {
	out := []Call{}
	for _, c := range f.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (f *FakeTransport) record(ctx context.Context, c Call) error {
	f.lk.Lock()
	f.calls = append(f.calls, c)
	var err error
	if l := f.errors[c.Op]; len(l) > 0 {
		err = l[0]
		f.errors[c.Op] = l[1:]
	}
	hook := f.OnCall
	f.lk.Unlock()
	if hook != nil {
		if herr := hook(ctx, c); herr != nil {
			return herr
		}
	}
	return err
}

func (f *FakeTransport) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	return f.record(ctx, Call{Op: OpDelete, ChatID: chatID, MessageID: messageID})
}

func (f *FakeTransport) SendText(ctx context.Context, chatID int64, html string) error {
	return f.record(ctx, Call{Op: OpText, ChatID: chatID, Text: html})
}

func (f *FakeTransport) SendMedia(ctx context.Context, chatID int64, assetRef, caption string) error {
	return f.record(ctx, Call{Op: OpMedia, ChatID: chatID, AssetRef: assetRef, Caption: caption})
}
