package rest

import (
	"time"

	"github.com/athenaeum-app/athenaeum/internal/catalog"
	"github.com/athenaeum-app/athenaeum/internal/shared"
)

type authorRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type bookResource struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	Author          authorRef `json:"author"`
	PublicationYear int       `json:"publication_year"`
	Borrowed        bool      `json:"borrowed"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type authorResource struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	BookCount int       `json:"book_count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type listMeta struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

type bookList struct {
	Data []bookResource `json:"data"`
	Meta listMeta       `json:"meta"`
}

type authorList struct {
	Data []authorResource `json:"data"`
}

func newBookResource(b catalog.Book) bookResource {
	return bookResource{
		ID:              b.ID,
		Title:           b.Title,
		Author:          authorRef{ID: b.AuthorID, Name: b.AuthorName},
		PublicationYear: b.PublicationYear,
		Borrowed:        b.BorrowerID != nil,
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
}

func newBookList(page catalog.BookPage) bookList {
	data := make([]bookResource, 0, len(page.Books))
	for _, b := range page.Books {
		data = append(data, newBookResource(b))
	}
	return bookList{Data: data, Meta: newListMeta(page.Pagination)}
}

func newAuthorResource(a catalog.Author) authorResource {
	return authorResource{
		ID:        a.ID,
		Name:      a.Name,
		BookCount: a.BookCount,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func newListMeta(p shared.Pagination) listMeta {
	return listMeta{Page: p.Page, PerPage: p.PerPage, Total: p.Total, TotalPages: p.TotalPages}
}
