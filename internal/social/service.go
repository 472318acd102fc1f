// Package social implements the social graph: accounts, posts, likes,
// comments and follows on top of a document store.
package social

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"backend-snapshare/internal/apperr"
	"backend-snapshare/internal/auth"
	"backend-snapshare/internal/docstore"
	"backend-snapshare/internal/storage"
	"backend-snapshare/internal/stream"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	ErrImageUpload  = errors.New("image upload failed")
	ErrEmptyImage   = errors.New("image required")
	ErrEmptyComment = errors.New("comment content required")
)

type AccountCreator interface {
	CreateAccount(ctx context.Context, username, email, password string) (auth.Account, error)
}

type ObjectStore interface {
	Store(ctx context.Context, ownerID string, data []byte, contentType, name string) (storage.Object, error)
}

type Publisher interface {
	Publish(ctx context.Context, ev stream.Event) error
}

// Options selects the edge policy. With UniqueEdges a like or follow is keyed
// by its two endpoints, so repeats overwrite and removal deletes every match.
// Without it each call inserts a new edge and removal deletes the oldest one.
type Options struct {
	UniqueEdges bool
}

type Service struct {
	docs     docstore.Store
	accounts AccountCreator
	objects  ObjectStore
	events   Publisher
	log      logrus.FieldLogger
	opts     Options
}

// NewService wires the graph to its stores. events may be nil.
func NewService(docs docstore.Store, accounts AccountCreator, objects ObjectStore, events Publisher, log logrus.FieldLogger, opts Options) *Service {
	return &Service{
		docs:     docs,
		accounts: accounts,
		objects:  objects,
		events:   events,
		log:      log,
		opts:     opts,
	}
}

// Signup creates the account and then its users/<id> profile document. If the
// second write fails the account is orphaned and the error says which one.
func (s *Service) Signup(ctx context.Context, username, email, password string) (User, error) {
	const op = "social.signup"
	account, err := s.accounts.CreateAccount(ctx, username, email, password)
	if err != nil {
		return User{}, err
	}

	doc, err := s.docs.Put(ctx, docstore.Ref{Collection: CollUsers, ID: account.ID}, docstore.Fields{
		"username": username,
		"email":    account.Email,
	})
	if err != nil {
		return User{}, apperr.Inconsistent(op, err, "account %s has no user document", account.ID)
	}
	return userFromDoc(doc), nil
}

// CreatePost uploads the image and only then records the post.
func (s *Service) CreatePost(ctx context.Context, authorID string, image []byte, contentType, filename, caption string) (Post, error) {
	const op = "social.create_post"
	if len(image) == 0 {
		return Post{}, apperr.E(apperr.KindInvalid, op, ErrEmptyImage)
	}

	obj, err := s.objects.Store(ctx, authorID, image, contentType, filename)
	if err != nil {
		return Post{}, fmt.Errorf("%s: %w: %w", op, ErrImageUpload, err)
	}

	doc, err := s.docs.Insert(ctx, CollPosts, docstore.Fields{
		"userId":   authorID,
		"imageUrl": obj.URL,
		"caption":  caption,
	})
	if err != nil {
		return Post{}, apperr.Inconsistent(op, err, "image %s stored without a post", obj.URL)
	}
	return postFromDoc(doc), nil
}

// ListFeed returns every post newest first, enriched for viewerID. Posts are
// enriched concurrently; the result keeps feed order.
func (s *Service) ListFeed(ctx context.Context, viewerID string) ([]FeedPost, error) {
	const op = "social.list_feed"
	docs, err := docstore.Collect(s.docs.Query(ctx, docstore.Query{Collection: CollPosts}.Newest()))
	if err != nil {
		return nil, storeErr(op, err)
	}

	feed := make([]FeedPost, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	for i, doc := range docs {
		g.Go(func() error {
			fp, err := s.enrichPost(gctx, viewerID, postFromDoc(doc))
			if err != nil {
				return err
			}
			feed[i] = fp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, storeErr(op, err)
	}
	return feed, nil
}

func (s *Service) enrichPost(ctx context.Context, viewerID string, post Post) (FeedPost, error) {
	fp := FeedPost{Post: post}

	owner, err := s.docs.Get(ctx, docstore.Ref{Collection: CollUsers, ID: post.UserID})
	if err != nil {
		return FeedPost{}, fmt.Errorf("owner of %s: %w", post.ID, err)
	}
	fp.Username = owner.Fields.String("username")

	if fp.LikeCount, err = s.docs.Count(ctx, docstore.ByField(CollLikes, "postId", post.ID)); err != nil {
		return FeedPost{}, err
	}
	liked, err := s.docs.Count(ctx, likeQuery(viewerID, post.ID))
	if err != nil {
		return FeedPost{}, err
	}
	fp.UserLiked = liked > 0
	if fp.CommentCount, err = s.docs.Count(ctx, docstore.ByField(CollComments, "postId", post.ID)); err != nil {
		return FeedPost{}, err
	}
	return fp, nil
}

func (s *Service) LikePost(ctx context.Context, viewerID, postID string) (Like, error) {
	const op = "social.like_post"
	fields := docstore.Fields{"userId": viewerID, "postId": postID}
	doc, err := s.addEdge(ctx, CollLikes, viewerID, postID, fields)
	if err != nil {
		return Like{}, storeErr(op, err)
	}
	s.publish(ctx, stream.Event{Type: stream.EventLiked, PostID: postID, UserID: viewerID})
	return likeFromDoc(doc), nil
}

// UnlikePost removes the viewer's like. It reports how many like documents
// were deleted.
func (s *Service) UnlikePost(ctx context.Context, viewerID, postID string) (int, error) {
	const op = "social.unlike_post"
	n, err := s.removeEdges(ctx, likeQuery(viewerID, postID))
	if err != nil {
		return n, storeErr(op, err)
	}
	if n > 0 {
		s.publish(ctx, stream.Event{Type: stream.EventUnliked, PostID: postID, UserID: viewerID})
	}
	return n, nil
}

func (s *Service) AddComment(ctx context.Context, viewerID, postID, content string) (Comment, error) {
	const op = "social.add_comment"
	if strings.TrimSpace(content) == "" {
		return Comment{}, apperr.E(apperr.KindInvalid, op, ErrEmptyComment)
	}

	doc, err := s.docs.Insert(ctx, CollComments, docstore.Fields{
		"userId":  viewerID,
		"postId":  postID,
		"content": content,
	})
	if err != nil {
		return Comment{}, storeErr(op, err)
	}
	s.publish(ctx, stream.Event{
		Type:      stream.EventCommented,
		PostID:    postID,
		UserID:    viewerID,
		CommentID: doc.ID,
		Content:   content,
	})
	return commentFromDoc(doc), nil
}

// ListComments returns the post's comments newest first with author names.
func (s *Service) ListComments(ctx context.Context, postID string) ([]CommentView, error) {
	const op = "social.list_comments"
	docs, err := docstore.Collect(s.docs.Query(ctx, docstore.ByField(CollComments, "postId", postID).Newest()))
	if err != nil {
		return nil, storeErr(op, err)
	}

	views := make([]CommentView, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	for i, doc := range docs {
		g.Go(func() error {
			c := commentFromDoc(doc)
			author, err := s.docs.Get(gctx, docstore.Ref{Collection: CollUsers, ID: c.UserID})
			if err != nil {
				return fmt.Errorf("author of %s: %w", c.ID, err)
			}
			views[i] = CommentView{Comment: c, Username: author.Fields.String("username")}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, storeErr(op, err)
	}
	return views, nil
}

func (s *Service) FollowUser(ctx context.Context, viewerID, targetID string) (Follow, error) {
	const op = "social.follow_user"
	fields := docstore.Fields{"followerId": viewerID, "followedId": targetID}
	doc, err := s.addEdge(ctx, CollFollows, viewerID, targetID, fields)
	if err != nil {
		return Follow{}, storeErr(op, err)
	}
	return followFromDoc(doc), nil
}

func (s *Service) UnfollowUser(ctx context.Context, viewerID, targetID string) (int, error) {
	const op = "social.unfollow_user"
	n, err := s.removeEdges(ctx, followQuery(viewerID, targetID))
	if err != nil {
		return n, storeErr(op, err)
	}
	return n, nil
}

// GetProfile resolves targetID and its counts as seen by viewerID.
func (s *Service) GetProfile(ctx context.Context, viewerID, targetID string) (Profile, error) {
	const op = "social.get_profile"
	doc, err := s.docs.Get(ctx, docstore.Ref{Collection: CollUsers, ID: targetID})
	if err != nil {
		return Profile{}, storeErr(op, err)
	}
	user := userFromDoc(doc)
	p := Profile{ID: user.ID, Username: user.Username, Email: user.Email}

	var following int
	g, gctx := errgroup.WithContext(ctx)
	count := func(dst *int, q docstore.Query) {
		g.Go(func() error {
			n, err := s.docs.Count(gctx, q)
			*dst = n
			return err
		})
	}
	count(&p.PostCount, docstore.ByField(CollPosts, "userId", targetID))
	count(&p.FollowerCount, docstore.ByField(CollFollows, "followedId", targetID))
	count(&p.FollowingCount, docstore.ByField(CollFollows, "followerId", targetID))
	count(&following, followQuery(viewerID, targetID))
	if err := g.Wait(); err != nil {
		return Profile{}, storeErr(op, err)
	}
	p.IsFollowing = following > 0
	return p, nil
}

func (s *Service) addEdge(ctx context.Context, collection, from, to string, fields docstore.Fields) (docstore.Document, error) {
	if s.opts.UniqueEdges {
		return s.docs.Put(ctx, docstore.Ref{Collection: collection, ID: edgeID(from, to)}, fields)
	}
	return s.docs.Insert(ctx, collection, fields)
}

// removeEdges deletes every match under UniqueEdges, otherwise only the oldest.
func (s *Service) removeEdges(ctx context.Context, q docstore.Query) (int, error) {
	if !s.opts.UniqueEdges {
		doc, ok, err := docstore.First(ctx, s.docs, q.Oldest())
		if err != nil || !ok {
			return 0, err
		}
		return 1, s.docs.Delete(ctx, doc.Ref)
	}

	docs, err := docstore.Collect(s.docs.Query(ctx, q))
	if err != nil {
		return 0, err
	}
	for i, doc := range docs {
		if err := s.docs.Delete(ctx, doc.Ref); err != nil {
			return i, err
		}
	}
	return len(docs), nil
}

// publish is best effort: a lost activity event never fails the write.
func (s *Service) publish(ctx context.Context, ev stream.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"event":   ev.Type,
			"post_id": ev.PostID,
		}).Warn("activity event not published")
	}
}

func likeQuery(userID, postID string) docstore.Query {
	return docstore.ByFields(CollLikes,
		docstore.Filter{Field: "userId", Value: userID},
		docstore.Filter{Field: "postId", Value: postID},
	)
}

func followQuery(followerID, followedID string) docstore.Query {
	return docstore.ByFields(CollFollows,
		docstore.Filter{Field: "followerId", Value: followerID},
		docstore.Filter{Field: "followedId", Value: followedID},
	)
}

// edgeID derives a stable document id from an edge's endpoints.
func edgeID(from, to string) string {
	sum := sha256.Sum256([]byte(from + "\x00" + to))
	return hex.EncodeToString(sum[:])
}

func storeErr(op string, err error) error {
	var ae *apperr.Error
	switch {
	case errors.As(err, &ae):
		return err
	case errors.Is(err, docstore.ErrNotFound):
		return apperr.E(apperr.KindNotFound, op, err)
	default:
		return apperr.Upstream(op, err)
	}
}
