package trials

import (
	"fmt"
	"io"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

// ArrowSchema is the column-oriented layout of a trial table.
var ArrowSchema = arrow.NewSchema([]arrow.Field{
	{Name: "trial", Type: arrow.PrimitiveTypes.Int64},
	{Name: "block", Type: arrow.PrimitiveTypes.Int64},
	{Name: "stim", Type: arrow.PrimitiveTypes.Int64},
	{Name: "reference", Type: arrow.FixedWidthTypes.Boolean},
	{Name: "is_same", Type: arrow.FixedWidthTypes.Boolean},
	{Name: "in_mem", Type: arrow.PrimitiveTypes.Int64},
	{Name: "feedback", Type: arrow.FixedWidthTypes.Boolean},
	{Name: "trigger", Type: arrow.PrimitiveTypes.Int64},
	{Name: "expected", Type: arrow.BinaryTypes.String},
}, nil)

// WriteArrow writes the table as a single-record Arrow IPC stream.
// w need not be seekable.
func WriteArrow(w io.Writer, t *Table) error {
	mem := memory.NewGoAllocator()
	b := array.NewRecordBuilder(mem, ArrowSchema)
	defer b.Release()

	for _, r := range t.Rows() {
		b.Field(0).(*array.Int64Builder).Append(int64(r.Trial))
		b.Field(1).(*array.Int64Builder).Append(int64(r.Block))
		b.Field(2).(*array.Int64Builder).Append(int64(r.Stim))
		b.Field(3).(*array.BooleanBuilder).Append(r.Reference)
		b.Field(4).(*array.BooleanBuilder).Append(r.IsSame)
		b.Field(5).(*array.Int64Builder).Append(int64(r.InMem))
		b.Field(6).(*array.BooleanBuilder).Append(r.Feedback)
		b.Field(7).(*array.Int64Builder).Append(int64(r.Trigger))
		b.Field(8).(*array.StringBuilder).Append(string(r.Expected))
	}

	rec := b.NewRecord()
	defer rec.Release()

	sw := ipc.NewWriter(w, ipc.WithSchema(ArrowSchema), ipc.WithAllocator(mem))
	if err := sw.Write(rec); err != nil {
		sw.Close()
		return fmt.Errorf("writing arrow record: %w", err)
	}
	if err := sw.Close(); err != nil {
		return fmt.Errorf("closing arrow writer: %w", err)
	}
	return nil
}

// ReadArrow reads a table written by WriteArrow. Multiple records are
// concatenated in stream order.
func ReadArrow(r io.Reader) (*Table, error) {
	mem := memory.NewGoAllocator()
	rdr, err := ipc.NewReader(r, ipc.WithAllocator(mem), ipc.WithSchema(ArrowSchema))
	if err != nil {
		return nil, fmt.Errorf("opening arrow stream: %w", err)
	}
	defer rdr.Release()

	var rows []Row
	for rdr.Next() {
		rows = append(rows, recordRows(rdr.Record())...)
	}
	if err := rdr.Err(); err != nil {
		return nil, fmt.Errorf("reading arrow stream: %w", err)
	}
	return &Table{rows: rows}, nil
}

func recordRows(rec arrow.Record) []Row {
	trial := rec.Column(0).(*array.Int64)
	block := rec.Column(1).(*array.Int64)
	stim := rec.Column(2).(*array.Int64)
	reference := rec.Column(3).(*array.Boolean)
	isSame := rec.Column(4).(*array.Boolean)
	inMem := rec.Column(5).(*array.Int64)
	feedback := rec.Column(6).(*array.Boolean)
	trigger := rec.Column(7).(*array.Int64)
	expected := rec.Column(8).(*array.String)

	rows := make([]Row, rec.NumRows())
	for i := range rows {
		rows[i] = Row{
			Trial:     int(trial.Value(i)),
			Block:     int(block.Value(i)),
			Stim:      int(stim.Value(i)),
			Reference: reference.Value(i),
			IsSame:    isSame.Value(i),
			InMem:     int(inMem.Value(i)),
			Feedback:  feedback.Value(i),
			Trigger:   int(trigger.Value(i)),
			Expected:  Response(expected.Value(i)),
		}
	}
	return rows
}
