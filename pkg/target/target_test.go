package target_test

import (
	"testing"

	"github.com/lotlab/voxrelay/pkg/target"
)

func TestSetAndGet(t *testing.T) {
	var tbl target.Table
	tbl.Init(target.MaxSlots)
	if !tbl.Set(5, target.Entry{Users: []uint32{1, 2, 3}}) {
		t.Fatalf("Set(5) failed")
	}
	got := tbl.Get(5)
	if len(got.Users) != 3 {
		t.Fatalf("got %+v", got)
	}
}

func TestSetRejectsSlotZeroAndOutOfRange(t *testing.T) {
	var tbl target.Table
	tbl.Init(target.MaxSlots)
	if tbl.Set(0, target.Entry{Users: []uint32{1}}) {
		t.Fatalf("Set(0) should be rejected, slot 0 is reserved")
	}
	if tbl.Set(target.MaxSlots, target.Entry{Users: []uint32{1}}) {
		t.Fatalf("Set(MaxSlots) should be rejected, out of range")
	}
}

func TestClear(t *testing.T) {
	var tbl target.Table
	tbl.Init(target.MaxSlots)
	tbl.Set(1, target.Entry{HasChannel: true, Channel: 9})
	tbl.Clear(1)
	if !tbl.Get(1).Empty() {
		t.Fatalf("slot not cleared")
	}
}

func TestInitClampsAboveMaxSlots(t *testing.T) {
	var tbl target.Table
	tbl.Init(9000)
	if tbl.Set(target.MaxSlots, target.Entry{Users: []uint32{1}}) {
		t.Fatalf("Set(MaxSlots) should still be rejected after an oversized Init")
	}
	if !tbl.Set(target.MaxSlots-1, target.Entry{Users: []uint32{1}}) {
		t.Fatalf("Set(MaxSlots-1) should succeed after an oversized Init")
	}
}

func TestInitSmallerCapacityRejectsHighSlot(t *testing.T) {
	var tbl target.Table
	tbl.Init(4)
	if tbl.Set(4, target.Entry{Users: []uint32{1}}) {
		t.Fatalf("Set(4) should be rejected with a capacity of 4 (valid ids are 1..3)")
	}
	if !tbl.Set(3, target.Entry{Users: []uint32{1}}) {
		t.Fatalf("Set(3) should succeed with a capacity of 4")
	}
}

func TestEmpty(t *testing.T) {
	var e target.Entry
	if !e.Empty() {
		t.Fatalf("zero value should be empty")
	}
	e.HasChannel = true
	if e.Empty() {
		t.Fatalf("entry with channel selector should not be empty")
	}
}
