//go:build integration

package docstore

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Requires a replica set, e.g. POLLEN_TEST_MONGO_URI=mongodb://localhost:27017/?replicaSet=rs0
func newTestMongoStore(t *testing.T) *MongoStore {
	t.Helper()
	uri := strings.TrimSpace(os.Getenv("POLLEN_TEST_MONGO_URI"))
	if uri == "" {
		t.Skip("POLLEN_TEST_MONGO_URI not set")
	}
	s, err := NewMongoStore(MongoConfig{
		URI:      uri,
		Database: fmt.Sprintf("pollen_test_%d", time.Now().UnixNano()),
		Timeout:  5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.coll.Database().Drop(context.Background())
		_ = s.Close()
	})
	return s
}

func TestMongoStoreReadWriteMerge(t *testing.T) {
	s := newTestMongoStore(t)
	ctx := context.Background()
	p := testForms + "/f1"

	require.NoError(t, s.Write(ctx, p, Document{"title": "A", "status": "draft"}, WriteOptions{}))
	require.NoError(t, s.Write(ctx, p, Document{"title": "B"}, WriteOptions{Merge: true}))

	snap, err := s.Read(ctx, p)
	require.NoError(t, err)
	require.True(t, snap.Exists)
	assert.Equal(t, "B", snap.Data["title"])
	assert.Equal(t, "draft", snap.Data["status"])
}

func TestMongoStoreSubscribeCollection(t *testing.T) {
	s := newTestMongoStore(t)
	ctx := context.Background()
	coll := testForms + "/f1/comments"

	ch, cancel, err := s.Subscribe(ctx, coll)
	require.NoError(t, err)
	defer cancel()

	_, err = s.Append(ctx, coll, Document{"text": "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello", receive(t, ch).Data["text"])

	snaps, err := s.List(ctx, coll, Query{})
	require.NoError(t, err)
	assert.Len(t, snaps, 1)
}
