package handler

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"user-service/internal/usecase/user"
)

// Link relation names used in response bodies.
const (
	RelSelf       = "self"
	RelAllUsers   = "all-users"
	RelCreateUser = "create-user"
)

// Link is a single hypermedia reference.
type Link struct {
	Href string `json:"href"`
}

// Links maps a relation name to its reference.
type Links map[string]Link

// UserModel is a user record with its links.
type UserModel struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Age       int       `json:"age"`
	CreatedAt time.Time `json:"createdAt"`
	Links     Links     `json:"_links"`
}

// UserCollection is the list of users with collection-level links.
type UserCollection struct {
	Embedded struct {
		Users []UserModel `json:"users"`
	} `json:"_embedded"`
	Links Links `json:"_links"`
}

// EmailCheckModel answers an email existence check.
type EmailCheckModel struct {
	Exists bool   `json:"exists"`
	Email  string `json:"email"`
	Links  Links  `json:"_links"`
}

// LinkBuilder produces hrefs for the /users resource. With an empty base URL
// hrefs are root-relative paths.
type LinkBuilder struct {
	base string
}

// NewLinkBuilder creates a LinkBuilder rooted at baseURL.
func NewLinkBuilder(baseURL string) LinkBuilder {
	return LinkBuilder{base: strings.TrimRight(baseURL, "/")}
}

func (b LinkBuilder) users() string {
	return b.base + "/users"
}

func (b LinkBuilder) user(id int64) string {
	return b.users() + "/" + strconv.FormatInt(id, 10)
}

func (b LinkBuilder) checkEmail(email string) string {
	return b.users() + "/check-email/" + url.PathEscape(email)
}

// User wraps a single record with self and collection links.
func (b LinkBuilder) User(u user.UserResponse) UserModel {
	m := b.item(u)
	m.Links[RelAllUsers] = Link{Href: b.users()}
	return m
}

// Collection wraps records in their listing order. Each item carries a self
// link only.
func (b LinkBuilder) Collection(users []user.UserResponse) UserCollection {
	var c UserCollection
	c.Embedded.Users = make([]UserModel, 0, len(users))
	for _, u := range users {
		c.Embedded.Users = append(c.Embedded.Users, b.item(u))
	}
	c.Links = Links{
		RelSelf:       {Href: b.users()},
		RelCreateUser: {Href: b.users()},
	}
	return c
}

// EmailCheck wraps an existence answer for email.
func (b LinkBuilder) EmailCheck(email string, exists bool) EmailCheckModel {
	return EmailCheckModel{
		Exists: exists,
		Email:  email,
		Links: Links{
			RelSelf:     {Href: b.checkEmail(email)},
			RelAllUsers: {Href: b.users()},
		},
	}
}

func (b LinkBuilder) item(u user.UserResponse) UserModel {
	return UserModel{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Age:       u.Age,
		CreatedAt: u.CreatedAt,
		Links:     Links{RelSelf: {Href: b.user(u.ID)}},
	}
}
