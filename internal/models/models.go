package models

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a platform entity or document does not exist
var ErrNotFound = errors.New("not found")

// Event types delivered by the platform for new or edited contributions
const (
	EventPostCreate    = "PostCreate"
	EventPostUpdate    = "PostUpdate"
	EventCommentCreate = "CommentCreate"
	EventCommentUpdate = "CommentUpdate"
)

// ContributionEvent is a platform notification about a post or comment.
// Only the fields hidewatch reads are modelled.
type ContributionEvent struct {
	Type      string     `json:"type"`
	Author    *EventUser `json:"author,omitempty"`
	Post      *EventRef  `json:"post,omitempty"`
	Comment   *EventRef  `json:"comment,omitempty"`
	Subreddit *EventSub  `json:"subreddit,omitempty"`
}

// EventUser identifies the author of a contribution
type EventUser struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// EventRef identifies a post or comment by fullname (t3_/t1_)
type EventRef struct {
	ID string `json:"id"`
}

// EventSub identifies the subreddit an event happened in
type EventSub struct {
	Name string `json:"name"`
}

// IsComment reports whether the event is about a comment rather than a post
func (e *ContributionEvent) IsComment() bool {
	return e.Type == EventCommentCreate || e.Type == EventCommentUpdate
}

// ContributionID returns the id of the triggering post or comment, or "".
func (e *ContributionEvent) ContributionID() string {
	if e.IsComment() {
		if e.Comment != nil {
			return e.Comment.ID
		}
		return ""
	}
	if e.Post != nil {
		return e.Post.ID
	}
	return ""
}

// AuthorID returns the author id, or "".
func (e *ContributionEvent) AuthorID() string {
	if e.Author == nil {
		return ""
	}
	return e.Author.ID
}

// AuthorName returns the author name, or "". Callers that need a label fall
// back to the account lookup.
func (e *ContributionEvent) AuthorName() string {
	if e.Author == nil {
		return ""
	}
	return e.Author.Name
}

// SubredditName returns the subreddit name, or "".
func (e *ContributionEvent) SubredditName() string {
	if e.Subreddit == nil {
		return ""
	}
	return e.Subreddit.Name
}

// AuthorCacheEntry is the cached verdict for one author, stored under authorId-<id>
type AuthorCacheEntry struct {
	LastCheck        time.Time `json:"lastCheck"`
	IsHiding         bool      `json:"isHiding"`
	IsCalculating    bool      `json:"isCalculating"`
	EqualsInPosts    *bool     `json:"equalsInPosts,omitempty"`
	EqualsInComments *bool     `json:"equalsInComments,omitempty"`
}

// ContributionRef is a post or comment reduced to what the snapshot keeps
type ContributionRef struct {
	ID   string    `json:"id"`
	Date time.Time `json:"date"`
}

// History holds an account's visible posts and comments, newest first
type History struct {
	Posts    []ContributionRef `json:"posts"`
	Comments []ContributionRef `json:"comments"`
}

// UserAccountSnapshot is one author's visible history at a point in time.
// Snapshots are immutable once written to the daily bucket.
type UserAccountSnapshot struct {
	AccountID        string    `json:"accountId"`
	AccountName      string    `json:"accountName"`
	AppVersion       string    `json:"appVersion"`
	CurrentlyTesting bool      `json:"currentlyTesting,omitempty"`
	History          History   `json:"history"`
	Date             time.Time `json:"date"`
}

// ReportDocument is the published wiki document for one day's bucket
type ReportDocument struct {
	C    []UserAccountSnapshot `json:"c"`
	Date time.Time             `json:"date"`
}

// Equality is the externally computed comparison of two snapshots
type Equality struct {
	EqualsInPosts    *bool `json:"equalsInPosts"`
	EqualsInComments *bool `json:"equalsInComments"`
}

// ResponseUser is one account's verdict in an externally produced report
type ResponseUser struct {
	AID        string   `json:"aId"`
	Date       string   `json:"date"`
	AppVersion string   `json:"appVersion"`
	H          Equality `json:"h"`
}

// Post is a platform post as far as hidewatch needs it
type Post struct {
	ID        string
	AuthorID  string
	Title     string
	Body      string
	CreatedAt time.Time
}

// Comment is a platform comment as far as hidewatch needs it
type Comment struct {
	ID        string
	CreatedAt time.Time
}

// User is a platform account
type User struct {
	ID   string
	Name string
}

// WikiEdit describes one write to a wiki page
type WikiEdit struct {
	Subreddit string
	Page      string
	Content   string
	Reason    string
}
