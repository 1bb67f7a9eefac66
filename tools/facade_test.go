package tools_test

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/agentws/agentws/tools"
	"github.com/agentws/agentws/workspace"
)

func Test_Write_Then_Read_Round_Trips_Content(t *testing.T) {
	t.Parallel()

	ws := workspace.New()
	f := tools.New(ws)

	if err := f.Write("/a/b.txt", "hello", tools.EncodingText, false); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := f.Read("/a/b.txt", tools.EncodingText, 0)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if got != "hello" {
		t.Errorf("Read = %q, want %q", got, "hello")
	}
}

func Test_Write_Then_Read_Round_Trips_Binary_Content_Via_Base64(t *testing.T) {
	t.Parallel()

	ws := workspace.New()
	f := tools.New(ws)

	// 0xff is not valid UTF-8 text, exercising the base64 path's ability to
	// carry arbitrary binary content through a JSON-safe string.
	raw := []byte{0x00, 0xff, 0x10, 0x80}
	encoded := base64.StdEncoding.EncodeToString(raw)

	if err := f.Write("/bin.dat", encoded, tools.EncodingBase64, false); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := f.Read("/bin.dat", tools.EncodingBase64, 0)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if got != encoded {
		t.Errorf("Read = %q, want %q", got, encoded)
	}

	decoded, err := base64.StdEncoding.DecodeString(got)
	if err != nil {
		t.Fatalf("decoding result: %v", err)
	}

	if diff := cmp.Diff(raw, decoded); diff != "" {
		t.Errorf("round-tripped bytes mismatch (-want +got):\n%s", diff)
	}
}

func Test_Write_Rejects_Unsupported_Encoding(t *testing.T) {
	t.Parallel()

	ws := workspace.New()
	f := tools.New(ws)

	err := f.Write("/a.txt", "x", tools.Encoding("uuencode"), false)
	if !errors.Is(err, tools.ErrUnsupportedEncoding) {
		t.Fatalf("Write err = %v, want ErrUnsupportedEncoding", err)
	}
}

func Test_Read_Rejects_File_Over_MaxBytes(t *testing.T) {
	t.Parallel()

	ws := workspace.New()
	f := tools.New(ws)

	if err := f.Write("/big.txt", "0123456789", tools.EncodingText, false); err != nil {
		t.Fatalf("Write: %v", err)
	}

	_, err := f.Read("/big.txt", tools.EncodingText, 4)
	if !errors.Is(err, tools.ErrTooLarge) {
		t.Fatalf("Read err = %v, want ErrTooLarge", err)
	}
}

func Test_Operations_On_Reserved_Namespace_Are_Denied(t *testing.T) {
	t.Parallel()

	ws := workspace.New()
	f := tools.New(ws)

	cases := []func() error{
		func() error { return f.Write("/.time/x", "x", tools.EncodingText, true) },
		func() error { _, err := f.Read("/.time/state.json", tools.EncodingText, 0); return err },
		func() error { _, _, err := f.Stat("/.time"); return err },
		func() error { _, err := f.List("/.time"); return err },
		func() error { return f.Mkdir("/.time/sub", true) },
		func() error { return f.Delete("/.time") },
	}

	for i, op := range cases {
		if err := op(); !errors.Is(err, tools.ErrAccessDenied) {
			t.Errorf("case %d: err = %v, want ErrAccessDenied", i, err)
		}
	}
}

func Test_List_Root_Elides_Dot_Time(t *testing.T) {
	t.Parallel()

	ws := workspace.New()
	f := tools.New(ws)

	if err := f.Write("/visible.txt", "v", tools.EncodingText, false); err != nil {
		t.Fatalf("Write: %v", err)
	}

	_ = ws.Mkdir("/.time", true)

	names, err := f.List("/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}

	want := []string{"visible.txt"}

	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("List(/) mismatch (-want +got):\n%s", diff)
	}
}

func Test_Mkdir_And_Stat_Report_Directory(t *testing.T) {
	t.Parallel()

	ws := workspace.New()
	f := tools.New(ws)

	if err := f.Mkdir("/a/b", true); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}

	st, ok, err := f.Stat("/a/b")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}

	if !ok || st.Type != workspace.TypeDir {
		t.Errorf("Stat(/a/b) = %+v, ok=%v, want a directory", st, ok)
	}
}

func Test_Delete_Removes_File(t *testing.T) {
	t.Parallel()

	ws := workspace.New()
	f := tools.New(ws)

	if err := f.Write("/x", "v", tools.EncodingText, false); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if err := f.Delete("/x"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, ok, _ := f.Stat("/x"); ok {
		t.Errorf("Stat(/x) after Delete reports it still exists")
	}
}
