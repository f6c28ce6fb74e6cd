package configstore

import (
	"archive/zip"
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easynet-cn/batata/internal/apierr"
	"github.com/easynet-cn/batata/internal/repository/memory"
)

type recordingNotifier struct {
	events []struct {
		key     Key
		content string
		md5     string
		deleted bool
	}
}

func (n *recordingNotifier) OnChange(key Key, content, md5 string, deleted bool) {
	n.events = append(n.events, struct {
		key     Key
		content string
		md5     string
		deleted bool
	}{key, content, md5, deleted})
}

func newTestStore() (*Store, *recordingNotifier) {
	st := memory.NewStore()
	notifier := &recordingNotifier{}
	return NewStore(st.Configs(), st.Gray(), st.Aggregates(), st.History(), notifier), notifier
}

func testKey() Key {
	return Key{Namespace: "public", Group: "DEFAULT_GROUP", DataID: "cfg1"}
}

func TestPublishThenGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, notifier := newTestStore()
	k := testKey()

	require.NoError(t, s.Publish(ctx, k, "hello=world", ""))

	e, err := s.Get(ctx, k, "")
	require.NoError(t, err)
	assert.Equal(t, "hello=world", e.Content)
	assert.Equal(t, TypeText, e.Type)
	assert.NotEmpty(t, e.MD5)
	assert.Len(t, notifier.events, 1)
	assert.False(t, notifier.events[0].deleted)
}

func TestPublishDefaultsTypeToPriorOnUpdate(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore()
	k := testKey()

	require.NoError(t, s.Publish(ctx, k, "v1", TypeYAML))
	require.NoError(t, s.Publish(ctx, k, "v2", ""))

	e, err := s.Get(ctx, k, "")
	require.NoError(t, err)
	assert.Equal(t, TypeYAML, e.Type)
	assert.Equal(t, "v2", e.Content)
}

func TestRemoveDeletesAndSubsequentGetIsNotFound(t *testing.T) {
	ctx := context.Background()
	s, notifier := newTestStore()
	k := testKey()

	require.NoError(t, s.Publish(ctx, k, "content", ""))
	require.NoError(t, s.Remove(ctx, k))

	_, err := s.Get(ctx, k, "")
	assert.Error(t, err)
	assert.Len(t, notifier.events, 2)
	assert.True(t, notifier.events[1].deleted)
}

func TestGrayVisibilityByClientIP(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore()
	k := testKey()

	require.NoError(t, s.Publish(ctx, k, "base", ""))
	require.NoError(t, s.PublishBeta(ctx, k, "gray-content", []string{"10.0.0.5"}))

	e, err := s.Get(ctx, k, "10.0.0.5")
	require.NoError(t, err)
	assert.Equal(t, "gray-content", e.Content)

	e, err = s.Get(ctx, k, "10.0.0.9")
	require.NoError(t, err)
	assert.Equal(t, "base", e.Content)
}

func TestRemoveBetaWithoutGrayEntryFails(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore()
	k := testKey()

	require.NoError(t, s.Publish(ctx, k, "base", ""))
	err := s.RemoveBeta(ctx, k)
	assert.Equal(t, apierr.KindNotFound, apierr.KindOf(err))

	require.NoError(t, s.PublishBeta(ctx, k, "gray", []string{"10.0.0.5"}))
	require.NoError(t, s.RemoveBeta(ctx, k))

	e, err := s.Get(ctx, k, "10.0.0.5")
	require.NoError(t, err)
	assert.Equal(t, "base", e.Content)
}

func TestPublishRejectsOversizedContent(t *testing.T) {
	ctx := context.Background()
	s, notifier := newTestStore()

	err := s.Publish(ctx, testKey(), strings.Repeat("x", MaxContentBytes+1), "")
	assert.Equal(t, apierr.KindResourceExhausted, apierr.KindOf(err))
	assert.Empty(t, notifier.events)
}

func TestAggregateComposesInDatumIDOrder(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore()
	k := testKey()

	require.NoError(t, s.PublishAggregate(ctx, k, "b", "B"))
	require.NoError(t, s.PublishAggregate(ctx, k, "a", "A"))

	e, err := s.Get(ctx, k, "")
	require.NoError(t, err)
	assert.Equal(t, "AB", e.Content)

	count, err := s.CountDatums(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, s.RemoveAggregate(ctx, k, "a"))
	e, err = s.Get(ctx, k, "")
	require.NoError(t, err)
	assert.Equal(t, "B", e.Content)
}

func TestHistoryMonotonicAndReadable(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore()
	k := testKey()

	require.NoError(t, s.Publish(ctx, k, "v1", ""))
	require.NoError(t, s.Publish(ctx, k, "v2", ""))

	records, total, err := s.ListHistory(ctx, k, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, HistoryOpUpdate, records[0].Op) // newest first
	assert.Equal(t, HistoryOpInsert, records[1].Op)

	prev, err := s.PreviousHistory(ctx, k, records[0].NID)
	require.NoError(t, err)
	assert.Equal(t, "v1", prev.Content)
}

func TestRevertToHistoryRecord(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore()
	k := testKey()

	require.NoError(t, s.Publish(ctx, k, "v1", ""))
	require.NoError(t, s.Publish(ctx, k, "v2", ""))

	records, _, err := s.ListHistory(ctx, k, 1, 10)
	require.NoError(t, err)
	oldest := records[len(records)-1] // the insert record carrying "v1"

	require.NoError(t, s.RevertTo(ctx, k, oldest.NID))

	e, err := s.Get(ctx, k, "")
	require.NoError(t, err)
	assert.Equal(t, "v1", e.Content)

	// the revert itself went through the publish path and left a record
	records, total, err := s.ListHistory(ctx, k, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, HistoryOpUpdate, records[0].Op)
}

func TestExportImportZipRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore()
	k := testKey()
	require.NoError(t, s.Publish(ctx, k, "exported", ""))

	data, err := s.ExportZip(ctx, "public", "")
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.NotEmpty(t, zr.File)

	s2, _ := newTestStore()
	report, err := s2.ImportZip(ctx, "public", data, ImportOverwrite)
	require.NoError(t, err)
	assert.Len(t, report.Published, 1)

	e, err := s2.Get(ctx, k, "")
	require.NoError(t, err)
	assert.Equal(t, "exported", e.Content)
}

func TestImportZipSkipPolicyKeepsExisting(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore()
	k := testKey()
	require.NoError(t, s.Publish(ctx, k, "original", ""))
	data, err := s.ExportZip(ctx, "public", "")
	require.NoError(t, err)

	require.NoError(t, s.Publish(ctx, k, "changed", ""))
	report, err := s.ImportZip(ctx, "public", data, ImportSkip)
	require.NoError(t, err)
	assert.Len(t, report.Skipped, 1)

	e, err := s.Get(ctx, k, "")
	require.NoError(t, err)
	assert.Equal(t, "changed", e.Content)
}
