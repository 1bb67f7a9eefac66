package tools_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/agentws/agentws/tools"
	"github.com/agentws/agentws/workspace"
)

func Test_ReadLines_Trailing_Newline_Produces_Final_Empty_Line(t *testing.T) {
	t.Parallel()

	ws := workspace.New()
	f := tools.New(ws)

	if err := f.Write("/data.csv", "a,b\n1,2\n", tools.EncodingText, false); err != nil {
		t.Fatalf("Write: %v", err)
	}

	res, err := f.ReadLines("/data.csv", 1, 2, 0)
	if err != nil {
		t.Fatalf("ReadLines: %v", err)
	}

	if res.TotalLines != 3 {
		t.Fatalf("TotalLines = %d, want 3", res.TotalLines)
	}

	want := []tools.LineEntry{
		{LineNumber: 1, Content: "a,b"},
		{LineNumber: 2, Content: "1,2"},
	}

	if diff := cmp.Diff(want, res.Lines); diff != "" {
		t.Errorf("Lines mismatch (-want +got):\n%s", diff)
	}
}

func Test_ReadLines_Clamps_Out_Of_Range_Request(t *testing.T) {
	t.Parallel()

	ws := workspace.New()
	f := tools.New(ws)

	if err := f.Write("/f", "one\ntwo\n", tools.EncodingText, false); err != nil {
		t.Fatalf("Write: %v", err)
	}

	res, err := f.ReadLines("/f", 1, 100, 0)
	if err != nil {
		t.Fatalf("ReadLines: %v", err)
	}

	if res.EndLine != res.TotalLines {
		t.Errorf("EndLine = %d, want %d", res.EndLine, res.TotalLines)
	}
}

func Test_ReadLines_On_Empty_File_Returns_No_Lines(t *testing.T) {
	t.Parallel()

	ws := workspace.New()
	f := tools.New(ws)

	if err := f.Write("/empty", "", tools.EncodingText, false); err != nil {
		t.Fatalf("Write: %v", err)
	}

	res, err := f.ReadLines("/empty", 1, 10, 0)
	if err != nil {
		t.Fatalf("ReadLines: %v", err)
	}

	if res.TotalLines != 0 || len(res.Lines) != 0 {
		t.Errorf("ReadLines(empty) = %+v, want zero lines", res)
	}
}

func Test_PatchLines_Replaces_Middle_Range(t *testing.T) {
	t.Parallel()

	ws := workspace.New()
	f := tools.New(ws)

	if err := f.Write("/f", "a\nb\nc\n", tools.EncodingText, false); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if err := f.PatchLines("/f", "X\nY", 2, 2); err != nil {
		t.Fatalf("PatchLines: %v", err)
	}

	got, err := f.Read("/f", tools.EncodingText, 0)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if got != "a\nX\nY\nc\n" {
		t.Errorf("Read = %q, want %q", got, "a\nX\nY\nc\n")
	}
}

func Test_PatchLines_Past_End_Appends(t *testing.T) {
	t.Parallel()

	ws := workspace.New()
	f := tools.New(ws)

	if err := f.Write("/f", "a\nb", tools.EncodingText, false); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if err := f.PatchLines("/f", "c", 10, 20); err != nil {
		t.Fatalf("PatchLines: %v", err)
	}

	got, err := f.Read("/f", tools.EncodingText, 0)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if got != "a\nb\nc" {
		t.Errorf("Read = %q, want %q", got, "a\nb\nc")
	}
}
