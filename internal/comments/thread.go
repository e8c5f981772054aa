package comments

import (
	"sort"

	"github.com/steemit/commentd/internal/models"
)

// CommentView is the public projection of a comment
type CommentView struct {
	ID        int64  `json:"id"`
	Author    string `json:"author"`
	HTML      string `json:"html"`
	CreatedAt int64  `json:"created_at"`
	ParentID  *int64 `json:"parent_id"`
}

// ThreadNode is a comment with its direct replies
type ThreadNode struct {
	CommentView
	Children []*ThreadNode `json:"children"`
}

// NewCommentView projects a stored comment
func NewCommentView(c *models.Comment) CommentView {
	v := CommentView{
		ID:        c.ID,
		Author:    c.Author,
		HTML:      c.BodyHTML,
		CreatedAt: c.CreatedAt,
	}
	if c.ParentID.Valid {
		id := c.ParentID.Int64
		v.ParentID = &id
	}
	return v
}

// BuildThread nests replies under their parents. Replies whose parent is not in comments are
// promoted to roots. Every sibling list is ordered oldest first.
func BuildThread(comments []models.Comment) []*ThreadNode {
	sorted := make([]models.Comment, len(comments))
	copy(sorted, comments)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].CreatedAt != sorted[j].CreatedAt {
			return sorted[i].CreatedAt < sorted[j].CreatedAt
		}
		return sorted[i].ID < sorted[j].ID
	})

	nodes := make(map[int64]*ThreadNode, len(sorted))
	for i := range sorted {
		nodes[sorted[i].ID] = &ThreadNode{
			CommentView: NewCommentView(&sorted[i]),
			Children:    []*ThreadNode{},
		}
	}

	roots := []*ThreadNode{}
	for i := range sorted {
		c := &sorted[i]
		node := nodes[c.ID]
		// a parent is always inserted before its replies, so ids only point backwards
		if c.ParentID.Valid && c.ParentID.Int64 < c.ID {
			if parent, ok := nodes[c.ParentID.Int64]; ok {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		roots = append(roots, node)
	}
	return roots
}
