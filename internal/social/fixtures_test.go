package social

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"backend-snapshare/internal/auth"
	"backend-snapshare/internal/docstore"
	"backend-snapshare/internal/storage"
	"backend-snapshare/internal/stream"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var errBoom = errors.New("boom")

type fakeAccounts struct {
	mu  sync.Mutex
	n   int
	err error
}

func (f *fakeAccounts) CreateAccount(_ context.Context, username, email, _ string) (auth.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return auth.Account{}, f.err
	}
	f.n++
	return auth.Account{ID: fmt.Sprintf("acct-%d", f.n), Username: username, Email: email}, nil
}

type fakeObjects struct {
	mu     sync.Mutex
	stored map[string][]byte
	err    error
}

func (f *fakeObjects) Store(_ context.Context, _ string, data []byte, contentType, name string) (storage.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return storage.Object{}, f.err
	}
	if f.stored == nil {
		f.stored = map[string][]byte{}
	}
	url := fmt.Sprintf("mem://%d_%s", len(f.stored), name)
	f.stored[url] = data
	return storage.Object{URL: url, ContentType: contentType, Size: len(data)}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []stream.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev stream.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

// failingStore fails the named operations and delegates the rest.
type failingStore struct {
	docstore.Store
	failInsert bool
	failPut    bool
	failCount  bool
}

func (s *failingStore) Insert(ctx context.Context, collection string, fields docstore.Fields) (docstore.Document, error) {
	if s.failInsert {
		return docstore.Document{}, errBoom
	}
	return s.Store.Insert(ctx, collection, fields)
}

func (s *failingStore) Put(ctx context.Context, ref docstore.Ref, fields docstore.Fields) (docstore.Document, error) {
	if s.failPut {
		return docstore.Document{}, errBoom
	}
	return s.Store.Put(ctx, ref, fields)
}

func (s *failingStore) Count(ctx context.Context, q docstore.Query) (int, error) {
	if s.failCount {
		return 0, errBoom
	}
	return s.Store.Count(ctx, q)
}

type fixture struct {
	svc      *Service
	docs     docstore.Store
	accounts *fakeAccounts
	objects  *fakeObjects
	events   *recordingPublisher
	mr       *miniredis.Miniredis
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newRedisDocs(t *testing.T) (*docstore.Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return docstore.NewRedis(rdb, IndexedFields...), mr
}

func newFixture(t *testing.T, unique bool) *fixture {
	t.Helper()
	docs, mr := newRedisDocs(t)
	f := &fixture{
		docs:     docs,
		accounts: &fakeAccounts{},
		objects:  &fakeObjects{},
		events:   &recordingPublisher{},
		mr:       mr,
	}
	f.svc = NewService(docs, f.accounts, f.objects, f.events, quietLogger(), Options{UniqueEdges: unique})
	return f
}

// withDocs rebuilds the service over a different document store.
func (f *fixture) withDocs(docs docstore.Store) *Service {
	return NewService(docs, f.accounts, f.objects, f.events, quietLogger(), f.svc.opts)
}

func (f *fixture) signup(t *testing.T, username string) User {
	t.Helper()
	u, err := f.svc.Signup(context.Background(), username, username+"@example.com", "secret123")
	if err != nil {
		t.Fatalf("signup %s: %v", username, err)
	}
	return u
}

func (f *fixture) post(t *testing.T, authorID, caption string) Post {
	t.Helper()
	p, err := f.svc.CreatePost(context.Background(), authorID, []byte{0x89, 0x50, 0x4e, 0x47}, "image/png", "pic.png", caption)
	if err != nil {
		t.Fatalf("create post: %v", err)
	}
	return p
}

func (f *fixture) feedEntry(t *testing.T, viewerID, postID string) FeedPost {
	t.Helper()
	feed, err := f.svc.ListFeed(context.Background(), viewerID)
	if err != nil {
		t.Fatalf("list feed: %v", err)
	}
	for _, fp := range feed {
		if fp.ID == postID {
			return fp
		}
	}
	t.Fatalf("post %s not in feed", postID)
	return FeedPost{}
}

func (f *fixture) profile(t *testing.T, viewerID, targetID string) Profile {
	t.Helper()
	p, err := f.svc.GetProfile(context.Background(), viewerID, targetID)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	return p
}
