// Package models contains data structures for the application's domain models.
package models

import (
	"strings"
	"time"
)

// PostType discriminates originals from reposts inside the single posts collection.
type PostType string

const (
	PostTypeImage  PostType = "image"
	PostTypeVideo  PostType = "video"
	PostTypeRepost PostType = "repost"
)

// DeletedReasonOriginalDeleted marks reposts that were soft-deleted by a cascade.
const DeletedReasonOriginalDeleted = "original_deleted"

// TextOverlay is the meme caption drawn over the media. Text is the legacy
// single-line variant kept for older documents.
type TextOverlay struct {
	Text   string `json:"text,omitempty" firestore:"text,omitempty"`
	Top    string `json:"top,omitempty" firestore:"top,omitempty"`
	Center string `json:"center,omitempty" firestore:"center,omitempty"`
	Bottom string `json:"bottom,omitempty" firestore:"bottom,omitempty"`
}

// Reposter identifies who reposted an original.
type Reposter struct {
	ID          string `json:"id" firestore:"id"`
	DisplayName string `json:"displayName,omitempty" firestore:"displayName,omitempty"`
	PhotoURL    string `json:"photoUrl,omitempty" firestore:"photoUrl,omitempty"`
}

// RepostSnapshot is the denormalised copy of an original taken at repost time.
// It is never kept in sync with later edits of the original.
type RepostSnapshot struct {
	OwnerID         string       `json:"ownerId" firestore:"ownerId"`
	Type            PostType     `json:"type" firestore:"type"`
	MediaURL        string       `json:"mediaUrl,omitempty" firestore:"mediaUrl,omitempty"`
	MediaURLs       []string     `json:"mediaUrls,omitempty" firestore:"mediaUrls,omitempty"`
	Caption         string       `json:"caption,omitempty" firestore:"caption,omitempty"`
	TextOverlay     *TextOverlay `json:"textOverlay,omitempty" firestore:"textOverlay,omitempty"`
	PetName         string       `json:"petName,omitempty" firestore:"petName,omitempty"`
	DetectedBreed   string       `json:"detectedBreed,omitempty" firestore:"detectedBreed,omitempty"`
	DetectedPetType string       `json:"detectedPetType,omitempty" firestore:"detectedPetType,omitempty"`
	CreatedAt       time.Time    `json:"createdAt" firestore:"createdAt"`
}

// Post is a user-generated content unit: an original image/video or a repost.
type Post struct {
	ID              string          `json:"id" firestore:"-"`
	OwnerID         string          `json:"ownerId" firestore:"ownerId"`
	Type            PostType        `json:"type" firestore:"type"`
	MediaURL        string          `json:"mediaUrl,omitempty" firestore:"mediaUrl,omitempty"`
	MediaURLs       []string        `json:"mediaUrls,omitempty" firestore:"mediaUrls,omitempty"`
	Caption         string          `json:"caption,omitempty" firestore:"caption,omitempty"`
	TextOverlay     *TextOverlay    `json:"textOverlay,omitempty" firestore:"textOverlay,omitempty"`
	PetName         string          `json:"petName,omitempty" firestore:"petName,omitempty"`
	Hashtags        []string        `json:"hashtags" firestore:"hashtags"`
	Behaviors       []string        `json:"behaviors" firestore:"behaviors"`
	LikeCount       int             `json:"likeCount" firestore:"likeCount"`
	CommentCount    int             `json:"commentCount" firestore:"commentCount"`
	RepostCount     int             `json:"repostCount" firestore:"repostCount"`
	LikedBy         []string        `json:"likedBy" firestore:"likedBy"`
	OriginalPostID  string          `json:"originalPostId,omitempty" firestore:"originalPostId,omitempty"`
	Original        *RepostSnapshot `json:"original,omitempty" firestore:"original,omitempty"`
	Reposter        *Reposter       `json:"reposter,omitempty" firestore:"reposter,omitempty"`
	Deleted         bool            `json:"deleted" firestore:"deleted"`
	DeletedAt       *time.Time      `json:"deletedAt,omitempty" firestore:"deletedAt,omitempty"`
	DeletedReason   string          `json:"deletedReason,omitempty" firestore:"deletedReason,omitempty"`
	DetectedBreed   string          `json:"detectedBreed,omitempty" firestore:"detectedBreed,omitempty"`
	DetectedPetType string          `json:"detectedPetType,omitempty" firestore:"detectedPetType,omitempty"`
	CreatedAt       time.Time       `json:"createdAt" firestore:"createdAt,serverTimestamp"`
}

// IsRepost reports whether the post references an original.
func (p *Post) IsRepost() bool {
	return p.Type == PostTypeRepost
}

// HasMedia reports whether the post carries its own media reference.
func (p *Post) HasMedia() bool {
	if strings.TrimSpace(p.MediaURL) != "" {
		return true
	}
	for _, u := range p.MediaURLs {
		if strings.TrimSpace(u) != "" {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can mutate the result freely.
func (p *Post) Clone() *Post {
	if p == nil {
		return nil
	}
	out := *p
	out.MediaURLs = cloneStrings(p.MediaURLs)
	out.Hashtags = cloneStrings(p.Hashtags)
	out.Behaviors = cloneStrings(p.Behaviors)
	out.LikedBy = cloneStrings(p.LikedBy)
	if p.TextOverlay != nil {
		o := *p.TextOverlay
		out.TextOverlay = &o
	}
	if p.Original != nil {
		o := *p.Original
		o.MediaURLs = cloneStrings(p.Original.MediaURLs)
		if p.Original.TextOverlay != nil {
			ov := *p.Original.TextOverlay
			o.TextOverlay = &ov
		}
		out.Original = &o
	}
	if p.Reposter != nil {
		r := *p.Reposter
		out.Reposter = &r
	}
	if p.DeletedAt != nil {
		t := *p.DeletedAt
		out.DeletedAt = &t
	}
	return &out
}

// Snapshot captures the content of an original for embedding into a repost.
func (p *Post) Snapshot() *RepostSnapshot {
	s := &RepostSnapshot{
		OwnerID:         p.OwnerID,
		Type:            p.Type,
		MediaURL:        p.MediaURL,
		MediaURLs:       cloneStrings(p.MediaURLs),
		Caption:         p.Caption,
		PetName:         p.PetName,
		DetectedBreed:   p.DetectedBreed,
		DetectedPetType: p.DetectedPetType,
		CreatedAt:       p.CreatedAt,
	}
	if p.TextOverlay != nil {
		o := *p.TextOverlay
		s.TextOverlay = &o
	}
	return s
}

// IsVisible reports whether the post should appear on normal read paths.
func IsVisible(p *Post) bool {
	return p != nil && !p.Deleted
}

// IsOriginalContent reports whether the post is a visible original carrying media.
func IsOriginalContent(p *Post) bool {
	return IsVisible(p) && !p.IsRepost() && p.HasMedia()
}

// HasLiked reports whether viewerID is in the post's likedBy set.
func HasLiked(p *Post, viewerID string) bool {
	if p == nil || viewerID == "" {
		return false
	}
	for _, id := range p.LikedBy {
		if id == viewerID {
			return true
		}
	}
	return false
}

// HasTag reports whether tags contains tag, ignoring case.
func HasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
