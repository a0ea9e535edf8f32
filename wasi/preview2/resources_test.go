package preview2

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/wasi-hostbridge/errors"
	"github.com/wippyai/wasi-hostbridge/host"
	"github.com/wippyai/wasi-hostbridge/resource"
)

func TestResourceTable_AddGetRemove(t *testing.T) {
	table := NewResourceTable()

	r := &PollableResource{}
	handle := table.Add(r)
	if handle == resource.Invalid {
		t.Fatal("expected non-zero handle")
	}

	got, ok := table.Get(handle)
	if !ok {
		t.Fatal("resource not found")
	}
	if got != r {
		t.Error("got different resource")
	}

	if err := table.Remove(handle); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok := table.Get(handle); ok {
		t.Error("resource should not exist after removal")
	}
}

func TestResourceTable_ChildPinsParent(t *testing.T) {
	table := NewResourceTable()

	parent := table.Add(NewInputStreamResource(NewPipe(), nil))
	child, ok := table.AddChild(parent, &PollableResource{})
	if !ok {
		t.Fatal("AddChild failed")
	}

	if err := table.Remove(parent); !stderrors.Is(err, resource.ErrOutstandingBorrow) {
		t.Fatalf("Remove(parent) = %v, want ErrOutstandingBorrow", err)
	}
	if err := table.Remove(child); err != nil {
		t.Fatalf("Remove(child): %v", err)
	}
	if err := table.Remove(parent); err != nil {
		t.Fatalf("Remove(parent) after child: %v", err)
	}
}

func TestResourceTable_AddChildOfMissingParent(t *testing.T) {
	table := NewResourceTable()
	if _, ok := table.AddChild(42, &PollableResource{}); ok {
		t.Error("AddChild should fail for unknown parent")
	}
	if table.Len() != 0 {
		t.Errorf("Len = %d, want 0", table.Len())
	}
}

func TestResourceTable_ClearWithChildren(t *testing.T) {
	table := NewResourceTable()
	parent := table.Add(NewInputStreamResource(NewPipe(), nil))
	if _, ok := table.AddChild(parent, &PollableResource{}); !ok {
		t.Fatal("AddChild failed")
	}
	table.Add(&PollableResource{})

	table.Clear()
	if table.Len() != 0 {
		t.Errorf("Len after Clear = %d, want 0", table.Len())
	}
}

func TestLookup(t *testing.T) {
	table := NewResourceTable()
	h := table.Add(NewFieldsResource(nil))

	if _, ok := Lookup[*FieldsResource](table, h); !ok {
		t.Error("Lookup of fields failed")
	}
	if _, ok := Lookup[*PollableResource](table, h); ok {
		t.Error("Lookup with wrong type should fail")
	}
}

func TestResourceType_String(t *testing.T) {
	if got := ResourceOutgoingBody.String(); got != "outgoing-body" {
		t.Errorf("String = %q", got)
	}
	if got := ResourceType(200).String(); got != "unknown" {
		t.Errorf("String = %q", got)
	}
}

func TestTimerPollable(t *testing.T) {
	var now int64
	clock := NewClock(func() int64 { return now }, func(ns int64) { now += ns }, 1)
	p := NewTimerPollable(clock, 100)

	if p.Ready() {
		t.Error("timer ready before deadline")
	}
	clock.Sleep(100 * time.Nanosecond)
	if !p.Ready() {
		t.Error("timer not ready at deadline")
	}
}

func TestPipe_TryRead(t *testing.T) {
	p := NewPipe()

	if data, done, _ := p.TryRead(4); data != nil || done {
		t.Fatalf("empty open pipe: data=%q done=%v", data, done)
	}
	if p.Ready() {
		t.Error("empty open pipe reported ready")
	}

	_, _ = p.Write([]byte("hello"))
	data, done, err := p.TryRead(3)
	if err != nil || done || string(data) != "hel" {
		t.Fatalf("TryRead = %q, %v, %v", data, done, err)
	}

	_ = p.Close()
	data, done, _ = p.TryRead(10)
	if string(data) != "lo" || done {
		t.Fatalf("TryRead after close = %q, %v", data, done)
	}
	if _, done, _ = p.TryRead(10); !done {
		t.Error("drained closed pipe should be done")
	}
}

func TestPipe_WriteAfterClose(t *testing.T) {
	p := NewClosedPipe([]byte("x"))
	if _, err := p.Write([]byte("y")); !stderrors.Is(err, io.ErrClosedPipe) {
		t.Errorf("Write = %v, want ErrClosedPipe", err)
	}
}

func TestPipe_Fill(t *testing.T) {
	p := NewPipe()
	go p.Fill(strings.NewReader("streamed body"))

	got, err := io.ReadAll(p)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "streamed body" {
		t.Errorf("got %q", got)
	}
}

func TestPipe_WaitCanceled(t *testing.T) {
	p := NewPipe()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := p.Wait(ctx); !stderrors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait = %v, want DeadlineExceeded", err)
	}
}

func TestInputStream_Read(t *testing.T) {
	p := NewPipe()
	s := NewInputStreamResource(p, nil)

	data, err := s.Read(8)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if data == nil || len(data) != 0 {
		t.Errorf("Read on empty pipe = %v, want empty non-nil", data)
	}

	_, _ = p.Write([]byte("abc"))
	_ = p.Close()
	if data, _ := s.Read(8); string(data) != "abc" {
		t.Errorf("Read = %q", data)
	}

	_, err = s.Read(8)
	if !errors.IsKind(err, errors.KindStreamClosed) {
		t.Errorf("Read at end = %v, want stream closed", err)
	}
}

func TestInputStream_ProducerFailure(t *testing.T) {
	p := NewPipe()
	_ = p.CloseWithError(io.ErrUnexpectedEOF)
	s := NewInputStreamResource(p, nil)

	_, err := s.Read(1)
	var se *StreamError
	if !stderrors.As(err, &se) || !se.LastOpFailed {
		t.Fatalf("Read = %v, want last-operation-failed", err)
	}
	if !stderrors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("cause not preserved")
	}
}

func TestInputStream_DropRunsHook(t *testing.T) {
	calls := 0
	s := NewInputStreamResource(NewPipe(), func() { calls++ })
	s.Drop()
	s.Drop()
	if calls != 1 {
		t.Errorf("onDrop calls = %d, want 1", calls)
	}
}

func TestOutputStream_CapacitySchedule(t *testing.T) {
	var sink bytes.Buffer
	s := NewOutputStreamResource(&sink, NewCapacitySchedule(0, 3, 2), -1)

	if s.Ready() {
		t.Error("stream with zero capacity reported ready")
	}

	var got []uint64
	for range 4 {
		n, err := s.CheckWrite()
		if err != nil {
			t.Fatalf("CheckWrite: %v", err)
		}
		got = append(got, n)
	}
	if diff := cmp.Diff([]uint64{0, 3, 2, 2}, got); diff != "" {
		t.Errorf("capacities (-want +got):\n%s", diff)
	}
}

func TestOutputStream_WriteBeyondPermit(t *testing.T) {
	var sink bytes.Buffer
	s := NewOutputStreamResource(&sink, NewCapacitySchedule(3), -1)

	if _, err := s.CheckWrite(); err != nil {
		t.Fatal(err)
	}
	if err := s.Write([]byte("abcd")); err == nil {
		t.Fatal("expected write beyond permit to fail")
	}
	if err := s.Write([]byte("abc")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if sink.String() != "abc" {
		t.Errorf("sink = %q", sink.String())
	}
}

func TestOutputStream_DeclaredLength(t *testing.T) {
	var sink bytes.Buffer
	s := NewOutputStreamResource(&sink, nil, 2)

	if _, err := s.CheckWrite(); err != nil {
		t.Fatal(err)
	}
	if err := s.Write([]byte("abc")); err == nil {
		t.Error("write past declared length should fail")
	}
	if err := s.Write([]byte("ab")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	err := s.BlockingFlush(context.Background())
	if !errors.IsKind(err, errors.KindStreamClosed) {
		t.Errorf("flush at declared length = %v, want closed", err)
	}
}

func TestOutputStream_Closed(t *testing.T) {
	s := NewOutputStreamResource(io.Discard, nil, -1)
	dropped := false
	s.OnDrop(func() { dropped = true })
	s.Drop()

	if !dropped {
		t.Error("OnDrop hook not run")
	}
	if _, err := s.CheckWrite(); !errors.IsKind(err, errors.KindStreamClosed) {
		t.Errorf("CheckWrite after drop = %v", err)
	}
	if !s.Ready() {
		t.Error("closed stream should report ready")
	}
}

func TestFields_OrderAndCase(t *testing.T) {
	f := NewFieldsResource(host.DefaultForbiddenHeaders)

	for _, e := range []host.Field{
		{Name: []byte("X-A"), Value: []byte("1")},
		{Name: []byte("x-b"), Value: []byte("2")},
		{Name: []byte("x-a"), Value: []byte("3")},
	} {
		if err := f.Append(e.Name, e.Value); err != nil {
			t.Fatalf("Append(%s): %v", e.Name, err)
		}
	}

	got := f.Get([]byte("X-a"))
	if diff := cmp.Diff([][]byte{[]byte("1"), []byte("3")}, got); diff != "" {
		t.Errorf("Get (-want +got):\n%s", diff)
	}

	if err := f.Set([]byte("x-a"), [][]byte{[]byte("9")}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	var names []string
	for _, e := range f.Entries() {
		names = append(names, string(e.Name)+"="+string(e.Value))
	}
	if diff := cmp.Diff([]string{"x-b=2", "x-a=9"}, names); diff != "" {
		t.Errorf("Entries (-want +got):\n%s", diff)
	}
}

func TestFields_Errors(t *testing.T) {
	tests := []struct {
		name  string
		field string
		value string
		kind  errors.Kind
	}{
		{"forbidden", "Connection", "close", errors.KindForbidden},
		{"forbidden lowercase", "transfer-encoding", "chunked", errors.KindForbidden},
		{"bad name", "bad name", "v", errors.KindInvalidSyntax},
		{"bad value", "x-ok", "a\nb", errors.KindInvalidSyntax},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFieldsResource(host.DefaultForbiddenHeaders)
			err := f.Append([]byte(tt.field), []byte(tt.value))
			if !errors.IsKind(err, tt.kind) {
				t.Errorf("Append = %v, want kind %s", err, tt.kind)
			}
		})
	}
}

func TestFields_ImmutableAndClone(t *testing.T) {
	f := NewImmutableFields(host.DefaultForbiddenHeaders, []host.Field{
		{Name: []byte("host"), Value: []byte("example.com")},
	})

	if err := f.Append([]byte("x-a"), []byte("1")); !errors.IsKind(err, errors.KindImmutable) {
		t.Errorf("Append on immutable = %v", err)
	}

	c := f.Clone()
	if c.Immutable() {
		t.Error("clone should be mutable")
	}
	if !c.Has([]byte("Host")) {
		t.Error("clone lost entries")
	}
	if err := c.Append([]byte("host"), []byte("other")); !errors.IsKind(err, errors.KindForbidden) {
		t.Errorf("clone should keep the deny-list, got %v", err)
	}
}

func TestTCPSocketResource_ConnectLifecycle(t *testing.T) {
	s := NewTCPSocketResource(host.IPv4)
	if !s.Ready() {
		t.Error("unbound socket should be ready")
	}

	_, cancel := context.WithCancel(context.Background())
	defer cancel()
	if !s.BeginConnect(netip.MustParseAddrPort("127.0.0.1:80"), cancel) {
		t.Fatal("BeginConnect failed")
	}
	if s.BeginConnect(netip.MustParseAddrPort("127.0.0.1:80"), cancel) {
		t.Error("second BeginConnect should fail")
	}
	if s.Ready() {
		t.Error("socket ready before dial completes")
	}
	if _, ok, _ := s.TakeConnectResult(); ok {
		t.Error("result available before dial completes")
	}

	s.CompleteConnect(nil, io.ErrUnexpectedEOF)
	_, ok, err := s.TakeConnectResult()
	if !ok || !stderrors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("TakeConnectResult = %v, %v", ok, err)
	}
	if s.State() != TCPStateClosed {
		t.Errorf("State = %s, want closed", s.State())
	}
}
