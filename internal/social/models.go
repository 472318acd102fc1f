package social

import (
	"time"

	"backend-snapshare/internal/docstore"
)

const (
	CollUsers    = "users"
	CollPosts    = "posts"
	CollLikes    = "likes"
	CollComments = "comments"
	CollFollows  = "follows"
)

// IndexedFields are the reference fields the graph filters and counts on.
var IndexedFields = []string{"userId", "postId", "followerId", "followedId", "username"}

type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

type Post struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	ImageURL  string    `json:"imageUrl"`
	Caption   string    `json:"caption"`
	CreatedAt time.Time `json:"createdAt"`
}

type Like struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	PostID    string    `json:"postId"`
	CreatedAt time.Time `json:"createdAt"`
}

type Comment struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	PostID    string    `json:"postId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

type Follow struct {
	ID         string    `json:"id"`
	FollowerID string    `json:"followerId"`
	FollowedID string    `json:"followedId"`
	CreatedAt  time.Time `json:"createdAt"`
}

// FeedPost is a post as seen by one viewer.
type FeedPost struct {
	Post
	Username     string `json:"username"`
	LikeCount    int    `json:"likeCount"`
	UserLiked    bool   `json:"userLiked"`
	CommentCount int    `json:"commentCount"`
}

type CommentView struct {
	Comment
	Username string `json:"username"`
}

type Profile struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	Email          string `json:"email"`
	PostCount      int    `json:"postCount"`
	FollowerCount  int    `json:"followerCount"`
	FollowingCount int    `json:"followingCount"`
	IsFollowing    bool   `json:"isFollowing"`
}

func userFromDoc(doc docstore.Document) User {
	return User{
		ID:        doc.ID,
		Username:  doc.Fields.String("username"),
		Email:     doc.Fields.String("email"),
		CreatedAt: doc.CreatedAt,
	}
}

func postFromDoc(doc docstore.Document) Post {
	return Post{
		ID:        doc.ID,
		UserID:    doc.Fields.String("userId"),
		ImageURL:  doc.Fields.String("imageUrl"),
		Caption:   doc.Fields.String("caption"),
		CreatedAt: doc.CreatedAt,
	}
}

func likeFromDoc(doc docstore.Document) Like {
	return Like{
		ID:        doc.ID,
		UserID:    doc.Fields.String("userId"),
		PostID:    doc.Fields.String("postId"),
		CreatedAt: doc.CreatedAt,
	}
}

func commentFromDoc(doc docstore.Document) Comment {
	return Comment{
		ID:        doc.ID,
		UserID:    doc.Fields.String("userId"),
		PostID:    doc.Fields.String("postId"),
		Content:   doc.Fields.String("content"),
		CreatedAt: doc.CreatedAt,
	}
}

func followFromDoc(doc docstore.Document) Follow {
	return Follow{
		ID:         doc.ID,
		FollowerID: doc.Fields.String("followerId"),
		FollowedID: doc.Fields.String("followedId"),
		CreatedAt:  doc.CreatedAt,
	}
}
