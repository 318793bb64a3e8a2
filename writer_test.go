package cacache

import (
	"errors"
	"io/fs"
	"testing"

	"github.com/spf13/afero"

	"github.com/gophersatwork/cacache/integrity"
)

func newTestWriter(t *testing.T, afs afero.Fs, root string, alg integrity.Algorithm) *contentWriter {
	t.Helper()

	w, err := newContentWriter(afs, root, alg, discardLogger())
	if err != nil {
		t.Fatalf("newContentWriter failed: %v", err)
	}
	return w
}

func TestContentWriterPublishes(t *testing.T) {
	memFs := afero.NewMemMapFs()
	root := "/writer"
	w := newTestWriter(t, memFs, root, integrity.SHA256)

	for _, chunk := range []string{"hello", " ", "world"} {
		if _, err := w.Write([]byte(chunk)); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	sri, err := w.Close()
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	want := integrity.FromBytes(integrity.SHA256, []byte("hello world"))
	if sri.String() != want.String() {
		t.Errorf("Close() = %s, want %s", sri, want)
	}
	assertFileContent(t, memFs, contentPath(root, sri), []byte("hello world"))
	assertStagingEmpty(t, memFs, root)
}

func TestContentWriterEmpty(t *testing.T) {
	memFs := afero.NewMemMapFs()
	w := newTestWriter(t, memFs, "/writer", integrity.SHA256)

	sri, err := w.Close()
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	_, hex := sri.ToHex()
	if hex != "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855" {
		t.Errorf("Unexpected digest for empty content: %s", hex)
	}
	assertFileContent(t, memFs, contentPath("/writer", sri), []byte{})
}

func TestContentWriterExistingContent(t *testing.T) {
	memFs := afero.NewMemMapFs()
	root := "/writer"
	data := []byte("already here")
	sri := integrity.FromBytes(integrity.SHA256, data)

	if err := memFs.MkdirAll(contentDir(root), 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := afero.WriteFile(memFs, contentPath(root, sri), data, 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	w := newTestWriter(t, memFs, root, integrity.SHA256)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	got, err := w.Close()
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if got.String() != sri.String() {
		t.Errorf("Close() = %s, want %s", got, sri)
	}
	assertFileContent(t, memFs, contentPath(root, sri), data)
	assertStagingEmpty(t, memFs, root)
}

func TestContentWriterAbort(t *testing.T) {
	memFs := afero.NewMemMapFs()
	root := "/writer"
	w := newTestWriter(t, memFs, root, integrity.SHA256)

	if _, err := w.Write([]byte("discard me")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Abort(); err != nil {
		t.Fatalf("Abort failed: %v", err)
	}

	assertStagingEmpty(t, memFs, root)
	assertNotExists(t, memFs, contentPath(root, integrity.FromBytes(integrity.SHA256, []byte("discard me"))))

	if _, err := w.Write([]byte("more")); !errors.Is(err, fs.ErrClosed) {
		t.Errorf("Write after Abort: expected fs.ErrClosed, got %v", err)
	}
	if err := w.Abort(); err != nil {
		t.Errorf("second Abort should be a no-op, got %v", err)
	}
}

func TestContentWriterCloseTwice(t *testing.T) {
	memFs := afero.NewMemMapFs()
	w := newTestWriter(t, memFs, "/writer", integrity.SHA256)

	if _, err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := w.Close(); !errors.Is(err, fs.ErrClosed) {
		t.Errorf("second Close: expected fs.ErrClosed, got %v", err)
	}
	if err := w.Abort(); err != nil {
		t.Errorf("Abort after Close should be a no-op, got %v", err)
	}
}

func TestContentWriterOpenFailure(t *testing.T) {
	failFs := &mockFailingFs{Fs: afero.NewMemMapFs(), failOnOpenFile: true}

	_, err := newContentWriter(failFs, "/writer", integrity.SHA256, discardLogger())
	if err == nil {
		t.Fatal("Expected error when the staging file cannot be created")
	}
}

func TestContentWriterRenameFailure(t *testing.T) {
	memFs := afero.NewMemMapFs()
	failFs := &mockFailingFs{Fs: memFs, failOnRename: true}
	root := "/writer"

	w := newTestWriter(t, failFs, root, integrity.SHA256)
	if _, err := w.Write([]byte("hello world")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if _, err := w.Close(); err == nil {
		t.Fatal("Expected error when rename fails")
	}

	assertNotExists(t, memFs, contentPath(root, integrity.FromBytes(integrity.SHA256, []byte("hello world"))))
	assertStagingEmpty(t, memFs, root)
}

func TestContentWriterConcurrentPublish(t *testing.T) {
	memFs := afero.NewMemMapFs()
	root := "/writer"
	data := []byte("raced")
	dst := contentPath(root, integrity.FromBytes(integrity.SHA256, data))

	// Another writer publishes the same content between the existence
	// check and the rename.
	failFs := &mockFailingFs{
		Fs:           memFs,
		failOnRename: true,
		beforeRename: func(_, newname string) {
			_ = afero.WriteFile(memFs, newname, data, 0o644)
		},
	}

	w := newTestWriter(t, failFs, root, integrity.SHA256)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := w.Close(); err != nil {
		t.Fatalf("Close should succeed when content was published concurrently: %v", err)
	}

	assertFileContent(t, memFs, dst, data)
	assertStagingEmpty(t, memFs, root)
}
