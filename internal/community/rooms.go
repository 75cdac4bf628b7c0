package community

import (
	"context"
	"errors"
	"log"
	"sort"

	"astrixo/admin/internal/store"
)

// CategoriesCollection holds the course categories; each one also names a chat room.
const CategoriesCollection = "categories"

type Category struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// GeneralCategory is the synthetic room every listing starts with. It has no
// backing category document.
var GeneralCategory = Category{
	ID:          "geral",
	Name:        "Geral",
	Description: "Conversas gerais, dúvidas e networking com a comunidade",
}

// MessagesCollection is the message subcollection of a room.
func MessagesCollection(categoryID string) string {
	return store.Collection("communityMessages", categoryID, "messages")
}

// Rooms lists the chat rooms: General first, then every category. When the
// category fetch fails only General is returned.
func (s *Service) Rooms(ctx context.Context) []Category {
	docs, err := s.store.List(ctx, CategoriesCollection, store.Query{})
	if err != nil {
		log.Printf("community: list categories: %v", err)
		return []Category{GeneralCategory}
	}

	rooms := make([]Category, 0, len(docs)+1)
	rooms = append(rooms, GeneralCategory)
	others := make([]Category, 0, len(docs))
	for _, doc := range docs {
		var cat Category
		if err := doc.Decode(&cat); err != nil {
			log.Printf("community: skip %s: %v", doc.Path, err)
			continue
		}
		cat.ID = doc.ID
		if cat.ID == GeneralCategory.ID {
			continue
		}
		others = append(others, cat)
	}
	sort.SliceStable(others, func(i, j int) bool { return others[i].Name < others[j].Name })
	return append(rooms, others...)
}

// Category resolves a room's category. Unknown or unreadable categories fall
// back to a generic "Chat" title.
func (s *Service) Category(ctx context.Context, categoryID string) Category {
	if categoryID == GeneralCategory.ID {
		return GeneralCategory
	}
	doc, err := s.store.Get(ctx, store.Doc(CategoriesCollection, categoryID))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("community: load category %s: %v", categoryID, err)
		}
		return Category{ID: categoryID, Name: "Chat"}
	}
	var cat Category
	if err := doc.Decode(&cat); err != nil {
		log.Printf("community: decode category %s: %v", categoryID, err)
		return Category{ID: categoryID, Name: "Chat"}
	}
	cat.ID = doc.ID
	return cat
}
