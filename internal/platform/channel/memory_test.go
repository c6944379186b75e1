package channel

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryChannel_NotReadyBeforeWrite(t *testing.T) {
	ch := NewMemoryChannel("changing")
	if _, err := ch.Read(context.Background()); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
}

func TestMemoryChannel_LastWriteWins(t *testing.T) {
	ch := NewMemoryChannel("changing")
	ctx := context.Background()
	if err := ch.Write(ctx, sampleRows(5)); err != nil {
		t.Fatal(err)
	}
	if err := ch.Write(ctx, sampleRows(2)); err != nil {
		t.Fatal(err)
	}
	rows, err := ch.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if ch.Writes() != 2 {
		t.Fatalf("expected 2 writes, got %d", ch.Writes())
	}
}

func TestMemoryChannel_FailWrites(t *testing.T) {
	ch := NewMemoryChannel("changing")
	ctx := context.Background()
	if err := ch.Write(ctx, sampleRows(3)); err != nil {
		t.Fatal(err)
	}
	boom := errors.New("disk full")
	ch.FailWrites(boom)
	if err := ch.Write(ctx, sampleRows(1)); !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}
	rows, _ := ch.Read(ctx)
	if len(rows) != 3 {
		t.Fatalf("expected failed write to leave 3 rows, got %d", len(rows))
	}
}

func TestMemoryChannel_ReadTableReturnsCopy(t *testing.T) {
	ch := NewMemoryChannel("changing")
	ctx := context.Background()
	_ = ch.Write(ctx, sampleRows(1))

	tbl, _ := ch.ReadTable(ctx)
	tbl.Rows[0][0] = "mutated"

	again, _ := ch.ReadTable(ctx)
	if again.Rows[0][0] != "1" {
		t.Fatalf("expected stored table to be isolated, got %q", again.Rows[0][0])
	}
}

func TestMemoryChannel_WriteTableAndClear(t *testing.T) {
	ch := NewMemoryChannel("changing")
	ch.WriteTable(&Table{Header: []string{"patient_id"}, Rows: [][]string{{"1"}}})
	if _, err := ch.Read(context.Background()); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for partial schema, got %v", err)
	}
	ch.Clear()
	if _, err := ch.ReadTable(context.Background()); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady after clear, got %v", err)
	}
}
