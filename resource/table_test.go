package resource

import (
	"errors"
	"testing"
)

type testObserver struct {
	events []Event
}

func (o *testObserver) OnResourceEvent(e Event) {
	o.events = append(o.events, e)
}

type dropCounter struct {
	drops int
}

func (d *dropCounter) Drop() { d.drops++ }

func TestTable_Basic(t *testing.T) {
	table := NewTable()

	h := table.Insert(1, "fields")
	if h == Invalid {
		t.Fatal("Insert returned the invalid handle")
	}

	val, ok := table.Get(h)
	if !ok || val != "fields" {
		t.Fatalf("Get = %v, %v", val, ok)
	}
	if _, ok := table.GetTyped(h, 1); !ok {
		t.Fatal("GetTyped with correct type failed")
	}
	if _, ok := table.GetTyped(h, 2); ok {
		t.Fatal("GetTyped with wrong type should fail")
	}

	val, err := table.Remove(h)
	if err != nil || val != "fields" {
		t.Fatalf("Remove = %v, %v", val, err)
	}
	if table.Len() != 0 {
		t.Fatalf("Len = %d after Remove", table.Len())
	}
	if _, err := table.Remove(h); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Remove err = %v, want ErrNotFound", err)
	}
}

func TestTable_ReusesFreedSlots(t *testing.T) {
	table := NewTable()
	a := table.Insert(1, "a")
	table.Insert(1, "b")
	if _, err := table.Remove(a); err != nil {
		t.Fatal(err)
	}
	if c := table.Insert(1, "c"); c != a {
		t.Errorf("Insert after Remove = %d, want reused %d", c, a)
	}
}

func TestTable_Observer(t *testing.T) {
	table := NewTable()
	obs := &testObserver{}
	table.Subscribe(obs)

	h := table.Insert(3, "socket")
	if _, err := table.Remove(h); err != nil {
		t.Fatal(err)
	}

	if len(obs.events) != 2 {
		t.Fatalf("got %d events, want 2", len(obs.events))
	}
	if obs.events[0].Type != EventCreated || obs.events[0].Handle != h || obs.events[0].TypeID != 3 {
		t.Errorf("first event = %+v", obs.events[0])
	}
	if obs.events[1].Type != EventDropped || obs.events[1].Handle != h {
		t.Errorf("second event = %+v", obs.events[1])
	}
}

func TestTable_ObserverFunc(t *testing.T) {
	table := NewTable()
	var seen []EventType
	table.Subscribe(ObserverFunc(func(e Event) { seen = append(seen, e.Type) }))
	table.Insert(1, nil)
	if len(seen) != 1 || seen[0] != EventCreated {
		t.Fatalf("seen = %v", seen)
	}
}

func TestTable_BorrowPinsParent(t *testing.T) {
	table := NewTable()
	parent := table.Insert(1, "socket")
	if !table.Borrow(parent) {
		t.Fatal("Borrow failed")
	}

	if _, err := table.Remove(parent); !errors.Is(err, ErrOutstandingBorrow) {
		t.Fatalf("Remove of pinned parent err = %v, want ErrOutstandingBorrow", err)
	}
	if !table.ReturnBorrow(parent) {
		t.Fatal("ReturnBorrow failed")
	}
	if table.ReturnBorrow(parent) {
		t.Fatal("ReturnBorrow without borrow should fail")
	}
	if _, err := table.Remove(parent); err != nil {
		t.Fatalf("Remove after ReturnBorrow: %v", err)
	}
}

func TestTable_RemoveRunsDrop(t *testing.T) {
	table := NewTable()
	d := &dropCounter{}
	h := table.Insert(1, d)
	if _, err := table.Remove(h); err != nil {
		t.Fatal(err)
	}
	if d.drops != 1 {
		t.Errorf("drops = %d, want 1", d.drops)
	}
}

func TestTable_ClearAndClose(t *testing.T) {
	table := NewTable()
	d1, d2 := &dropCounter{}, &dropCounter{}
	table.Insert(1, d1)
	table.Insert(2, d2)

	table.Clear()
	if table.Len() != 0 {
		t.Fatalf("Len = %d after Clear", table.Len())
	}
	if d1.drops != 1 || d2.drops != 1 {
		t.Errorf("drops = %d, %d", d1.drops, d2.drops)
	}

	if err := table.Close(); err != nil {
		t.Fatal(err)
	}
	if h := table.Insert(1, "late"); h != Invalid {
		t.Errorf("Insert after Close = %d, want Invalid", h)
	}
}
