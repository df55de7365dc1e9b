package version

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dacapoday/vstore"
	"github.com/dacapoday/vstore/mem"
	"github.com/dacapoday/vstore/record"
)

type testFiles struct {
	data, log, marks mem.File
}

func (f *testFiles) files() Files {
	return Files{Data: &f.data, Log: &f.log, Marks: &f.marks}
}

func openTestStack(t *testing.T, f *testFiles, lazy bool) *Stack[uint64, uint64] {
	t.Helper()
	stack, err := Open[uint64, uint64](f.files(), record.Uint64{}, record.Uint64{}, Options{Magic: 0x7600, Lazy: lazy})
	require.NoError(t, err)
	return stack
}

func contents(t *testing.T, stack *Stack[uint64, uint64]) []uint64 {
	t.Helper()
	values := make([]uint64, stack.Len())
	require.NoError(t, stack.GetBulk(0, values))
	return values
}

func digest(s string) vstore.Digest {
	return vstore.SHA256.Sum([]byte(s))
}

func testCommitRevert(t *testing.T, lazy bool) {
	requireT := require.New(t)

	var f testFiles
	stack := openTestStack(t, &f, lazy)
	requireT.Equal(lazy, !stack.DirectWrite())

	for i := range uint64(5) {
		_, err := stack.Push(i)
		requireT.NoError(err)
	}
	requireT.NoError(stack.SetExtra(7))
	b1, err := stack.Commit(digest("one"))
	requireT.NoError(err)
	requireT.Equal(uint64(1), b1.Seq)
	requireT.Equal(b1, stack.Current())

	requireT.NoError(stack.Set(0, 100))
	requireT.NoError(stack.Swap(1, 4))
	_, err = stack.Pop()
	requireT.NoError(err)
	_, err = stack.Push(55)
	requireT.NoError(err)
	_, err = stack.Push(56)
	requireT.NoError(err)
	requireT.NoError(stack.SetExtra(8))
	requireT.Equal([]uint64{100, 4, 2, 3, 55, 56}, contents(t, stack))

	b2, err := stack.Commit(digest("two"))
	requireT.NoError(err)
	requireT.Equal(uint64(2), b2.Seq)

	requireT.NoError(stack.Set(2, 200))

	requireT.NoError(stack.RevertToHash(digest("two")))
	requireT.Equal([]uint64{100, 4, 2, 3, 55, 56}, contents(t, stack))

	requireT.NoError(stack.RevertToHash(digest("one")))
	requireT.Equal([]uint64{0, 1, 2, 3, 4}, contents(t, stack))
	requireT.Equal(uint64(7), stack.Extra())
	requireT.Equal(b1, stack.Current())

	// "two" was passed over and is gone.
	exists, err := stack.HashExists(digest("two"))
	requireT.NoError(err)
	requireT.False(exists)
	requireT.ErrorIs(stack.RevertToHash(digest("two")), ErrUnknownHash)

	// Second revert to the same target is a no-op.
	requireT.NoError(stack.RevertToHash(digest("one")))
	requireT.Equal([]uint64{0, 1, 2, 3, 4}, contents(t, stack))

	b3, err := stack.Commit(digest("three"))
	requireT.NoError(err)
	requireT.Equal(uint64(2), b3.Seq)
	requireT.NoError(stack.Close())
}

func TestCommitRevert(t *testing.T) {
	testCommitRevert(t, false)
}

func TestCommitRevertLazy(t *testing.T) {
	testCommitRevert(t, true)
}

func TestRevertBySeq(t *testing.T) {
	requireT := require.New(t)

	var f testFiles
	stack := openTestStack(t, &f, false)

	for i := range uint64(3) {
		_, err := stack.Push(i)
		requireT.NoError(err)
		_, err = stack.Commit(digest(string(rune('a' + i))))
		requireT.NoError(err)
	}
	requireT.NoError(stack.Revert(2))
	requireT.Equal([]uint64{0, 1}, contents(t, stack))
	requireT.ErrorIs(stack.Revert(3), ErrBookmarkNotFound)
	requireT.NoError(stack.Revert(1))
	requireT.Equal([]uint64{0}, contents(t, stack))
}

func TestUnknownHashLeavesStateIntact(t *testing.T) {
	requireT := require.New(t)

	var f testFiles
	stack := openTestStack(t, &f, false)
	_, err := stack.Push(1)
	requireT.NoError(err)
	_, err = stack.Commit(digest("one"))
	requireT.NoError(err)
	_, err = stack.Push(2)
	requireT.NoError(err)

	requireT.ErrorIs(stack.RevertToHash(digest("nope")), ErrUnknownHash)
	requireT.Equal([]uint64{1, 2}, contents(t, stack))
}

func TestReopen(t *testing.T) {
	requireT := require.New(t)

	var f testFiles
	stack := openTestStack(t, &f, true)
	_, err := stack.Push(9)
	requireT.NoError(err)
	b, err := stack.Commit(digest("nine"))
	requireT.NoError(err)
	_, err = stack.Push(10)
	requireT.NoError(err)
	requireT.NoError(stack.Close())

	stack = openTestStack(t, &f, false)
	requireT.Equal(b, stack.Current())
	requireT.Equal([]uint64{9, 10}, contents(t, stack))

	exists, err := stack.HashExists(digest("nine"))
	requireT.NoError(err)
	requireT.True(exists)
	requireT.NoError(stack.RevertToHash(digest("nine")))
	requireT.Equal([]uint64{9}, contents(t, stack))
}

func TestRevertCorruptedLog(t *testing.T) {
	requireT := require.New(t)

	var f testFiles
	stack := openTestStack(t, &f, false)
	_, err := stack.Commit(digest("genesis"))
	requireT.NoError(err)
	requireT.NoError(stack.Close())

	// Drop the log while keeping the bookmark index.
	f.log.Reset()
	stack = openTestStack(t, &f, false)
	requireT.ErrorIs(stack.RevertToHash(digest("genesis")), ErrBookmarkNotFound)
}

// syncRecorder notes the order in which files reach stable storage.
type syncRecorder struct {
	*mem.File
	name   string
	synced *[]string
}

func (f syncRecorder) Sync() error {
	*f.synced = append(*f.synced, f.name)
	return f.File.Sync()
}

func TestRevertSyncsLogFirst(t *testing.T) {
	requireT := require.New(t)

	var f testFiles
	var synced []string
	files := Files{
		Data:  syncRecorder{&f.data, "data", &synced},
		Log:   syncRecorder{&f.log, "log", &synced},
		Marks: syncRecorder{&f.marks, "marks", &synced},
	}
	stack, err := Open[uint64, uint64](files, record.Uint64{}, record.Uint64{}, Options{Magic: 0x7600})
	requireT.NoError(err)

	_, err = stack.Push(1)
	requireT.NoError(err)
	_, err = stack.Commit(digest("one"))
	requireT.NoError(err)
	_, err = stack.Push(2)
	requireT.NoError(err)
	requireT.NoError(stack.Set(0, 10))

	synced = nil
	requireT.NoError(stack.RevertToHash(digest("one")))
	requireT.Equal([]string{"log", "marks", "data"}, synced)
	requireT.Equal([]uint64{1}, contents(t, stack))
}
