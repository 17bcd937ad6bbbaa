package sqlstore

import (
	"encoding/json"
	"strings"
	"time"

	"pawfeed/internal/docstore"
	"pawfeed/internal/models"

	"gorm.io/datatypes"
)

// Tag kinds in the post_tags index table.
const (
	tagHashtag  = "hashtag"
	tagBehavior = "behavior"
)

// postRow is the stored shape of a post. List fields live in JSON columns and
// are mirrored into post_tags for array-contains queries.
type postRow struct {
	ID              string                      `gorm:"primaryKey;size:64"`
	OwnerID         string                      `gorm:"size:128;not null;index"`
	Type            string                      `gorm:"size:16;not null;index"`
	MediaURL        string                      `gorm:"type:text"`
	MediaURLs       datatypes.JSONSlice[string] `gorm:"column:media_urls"`
	Caption         string                      `gorm:"type:text"`
	TextOverlay     datatypes.JSON
	PetName         string `gorm:"size:128"`
	Hashtags        datatypes.JSONSlice[string]
	Behaviors       datatypes.JSONSlice[string]
	LikeCount       int `gorm:"not null;default:0"`
	CommentCount    int `gorm:"not null;default:0"`
	RepostCount     int `gorm:"not null;default:0"`
	LikedBy         datatypes.JSONSlice[string]
	OriginalPostID  string `gorm:"size:64;index"`
	Original        datatypes.JSON
	Reposter        datatypes.JSON
	Deleted         bool `gorm:"not null;default:false;index"`
	DeletedAt       *time.Time
	DeletedReason   string `gorm:"size:32"`
	DetectedBreed   string `gorm:"size:128;index"`
	DetectedPetType string `gorm:"size:32"`
	CreatedAt       time.Time `gorm:"not null;index"`
	Version         int64     `gorm:"not null;default:1"`
}

func (postRow) TableName() string { return docstore.CollectionPosts }

type postTagRow struct {
	PostID string `gorm:"primaryKey;size:64"`
	Kind   string `gorm:"primaryKey;size:16;index:idx_post_tags_lookup,priority:1"`
	Value  string `gorm:"primaryKey;size:128;index:idx_post_tags_lookup,priority:2"`
}

func (postTagRow) TableName() string { return "post_tags" }

type commentRow struct {
	ID         string    `gorm:"primaryKey;size:64"`
	PostID     string    `gorm:"size:64;not null;index"`
	AuthorID   string    `gorm:"size:128;not null"`
	AuthorName string    `gorm:"size:128"`
	Text       string    `gorm:"type:text;not null"`
	LikeCount  int       `gorm:"not null;default:0"`
	CreatedAt  time.Time `gorm:"not null;index"`
}

func (commentRow) TableName() string { return docstore.CollectionComments }

type followRow struct {
	FollowerID string `gorm:"primaryKey;size:128"`
	FollowedID string `gorm:"primaryKey;size:128"`
	CreatedAt  time.Time
}

func (followRow) TableName() string { return docstore.CollectionFollows }

func strings2JSON(in []string) datatypes.JSONSlice[string] {
	if in == nil {
		return datatypes.JSONSlice[string]{}
	}
	return datatypes.JSONSlice[string](append([]string(nil), in...))
}

func marshalOptional(v any, present bool) datatypes.JSON {
	if !present {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}

func toPostRow(p *models.Post) *postRow {
	return &postRow{
		ID:              p.ID,
		OwnerID:         p.OwnerID,
		Type:            string(p.Type),
		MediaURL:        p.MediaURL,
		MediaURLs:       strings2JSON(p.MediaURLs),
		Caption:         p.Caption,
		TextOverlay:     marshalOptional(p.TextOverlay, p.TextOverlay != nil),
		PetName:         p.PetName,
		Hashtags:        strings2JSON(p.Hashtags),
		Behaviors:       strings2JSON(p.Behaviors),
		LikeCount:       p.LikeCount,
		CommentCount:    p.CommentCount,
		RepostCount:     p.RepostCount,
		LikedBy:         strings2JSON(p.LikedBy),
		OriginalPostID:  p.OriginalPostID,
		Original:        marshalOptional(p.Original, p.Original != nil),
		Reposter:        marshalOptional(p.Reposter, p.Reposter != nil),
		Deleted:         p.Deleted,
		DeletedAt:       p.DeletedAt,
		DeletedReason:   p.DeletedReason,
		DetectedBreed:   p.DetectedBreed,
		DetectedPetType: p.DetectedPetType,
		CreatedAt:       p.CreatedAt,
	}
}

func (r *postRow) toModel() *models.Post {
	p := &models.Post{
		ID:              r.ID,
		OwnerID:         r.OwnerID,
		Type:            models.PostType(r.Type),
		MediaURL:        r.MediaURL,
		MediaURLs:       []string(r.MediaURLs),
		Caption:         r.Caption,
		PetName:         r.PetName,
		Hashtags:        []string(r.Hashtags),
		Behaviors:       []string(r.Behaviors),
		LikeCount:       r.LikeCount,
		CommentCount:    r.CommentCount,
		RepostCount:     r.RepostCount,
		LikedBy:         []string(r.LikedBy),
		OriginalPostID:  r.OriginalPostID,
		Deleted:         r.Deleted,
		DeletedReason:   r.DeletedReason,
		DetectedBreed:   r.DetectedBreed,
		DetectedPetType: r.DetectedPetType,
		CreatedAt:       r.CreatedAt.UTC(),
	}
	if r.DeletedAt != nil {
		t := r.DeletedAt.UTC()
		p.DeletedAt = &t
	}
	if len(r.TextOverlay) > 0 && string(r.TextOverlay) != "null" {
		var o models.TextOverlay
		if json.Unmarshal(r.TextOverlay, &o) == nil {
			p.TextOverlay = &o
		}
	}
	if len(r.Original) > 0 && string(r.Original) != "null" {
		var o models.RepostSnapshot
		if json.Unmarshal(r.Original, &o) == nil {
			p.Original = &o
		}
	}
	if len(r.Reposter) > 0 && string(r.Reposter) != "null" {
		var o models.Reposter
		if json.Unmarshal(r.Reposter, &o) == nil {
			p.Reposter = &o
		}
	}
	return p
}

// tagRows builds the index rows for a post. Values are stored as written;
// exact duplicates collapse.
func tagRows(p *models.Post) []postTagRow {
	var rows []postTagRow
	seen := make(map[string]bool)
	add := func(kind string, values []string) {
		for _, v := range values {
			v = strings.TrimSpace(v)
			key := kind + "\x00" + v
			if v == "" || seen[key] {
				continue
			}
			seen[key] = true
			rows = append(rows, postTagRow{PostID: p.ID, Kind: kind, Value: v})
		}
	}
	add(tagHashtag, p.Hashtags)
	add(tagBehavior, p.Behaviors)
	return rows
}

func toCommentRow(c *models.Comment) *commentRow {
	return &commentRow{
		ID:         c.ID,
		PostID:     c.PostID,
		AuthorID:   c.AuthorID,
		AuthorName: c.AuthorName,
		Text:       c.Text,
		LikeCount:  c.LikeCount,
		CreatedAt:  c.CreatedAt,
	}
}

func (r *commentRow) toModel() *models.Comment {
	return &models.Comment{
		ID:         r.ID,
		PostID:     r.PostID,
		AuthorID:   r.AuthorID,
		AuthorName: r.AuthorName,
		Text:       r.Text,
		LikeCount:  r.LikeCount,
		CreatedAt:  r.CreatedAt.UTC(),
	}
}
