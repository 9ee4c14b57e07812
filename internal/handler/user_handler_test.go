package handler_test

import (
	"net/http"
	"strings"

	"docvision-service/internal/model"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("User handlers", func() {
	var app *testApp

	BeforeEach(func() {
		app = newTestApp(nil)
	})

	Describe("POST /users", func() {
		It("creates the user with a Default organization", func() {
			w := app.request(http.MethodPost, "/users", map[string]string{
				"email":    "Ada@Example.com",
				"password": "s3cret",
			}, "")
			Expect(w.Code).To(Equal(http.StatusCreated), w.Body.String())

			body := decode(w)
			Expect(body["email"]).To(Equal("ada@example.com"))
			Expect(body).NotTo(HaveKey("password"))
			orgs := body["organizations"].([]any)
			Expect(orgs).To(HaveLen(1))
			Expect(orgs[0].(map[string]any)["name"]).To(Equal("Default"))

			var stored model.User
			Expect(app.db.First(&stored, "email = ?", "ada@example.com").Error).To(Succeed())
			Expect(stored.Password).NotTo(Equal("s3cret"))
		})

		It("returns 409 for a taken email", func() {
			app.seedUser("ada@example.com", "x")

			w := app.request(http.MethodPost, "/users", map[string]string{
				"email":    "ada@example.com",
				"password": "other",
			}, "")
			Expect(w.Code).To(Equal(http.StatusConflict))
			Expect(decode(w)["error"]).To(Equal("Email already exists"))
		})

		DescribeTable("validates the body",
			func(body map[string]string) {
				w := app.request(http.MethodPost, "/users", body, "")
				Expect(w.Code).To(Equal(http.StatusBadRequest))
			},
			Entry("invalid email", map[string]string{"email": "not-an-email", "password": "x"}),
			Entry("missing password", map[string]string{"email": "ada@example.com"}),
		)
	})

	Describe("authenticated routes", func() {
		var (
			ada      model.User
			adaToken string
			bob      model.User
		)

		BeforeEach(func() {
			ada, adaToken = app.seedUser("ada@example.com", "x")
			bob, _ = app.seedUser("bob@example.com", "x")
		})

		It("returns the current user", func() {
			w := app.request(http.MethodGet, "/users/me", nil, adaToken)
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(decode(w)["id"]).To(Equal(ada.ID.String()))
		})

		It("lists only users sharing an organization", func() {
			w := app.request(http.MethodGet, "/users", nil, adaToken)
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(decode(w)["users"]).To(HaveLen(1))

			Expect(app.db.Model(&ada.Organizations[0]).Association("Users").Append(&bob)).To(Succeed())

			w = app.request(http.MethodGet, "/users", nil, adaToken)
			Expect(decode(w)["users"]).To(HaveLen(2))
		})

		It("updates the caller", func() {
			w := app.request(http.MethodPut, "/users/"+ada.ID.String(), map[string]string{
				"email":    "ada.l@example.com",
				"password": "new",
			}, adaToken)
			Expect(w.Code).To(Equal(http.StatusOK), w.Body.String())
			Expect(decode(w)["email"]).To(Equal("ada.l@example.com"))
		})

		It("accepts the caller's id in upper case", func() {
			w := app.request(http.MethodPut, "/users/"+strings.ToUpper(ada.ID.String()), map[string]string{
				"email":    "ada.u@example.com",
				"password": "new",
			}, adaToken)
			Expect(w.Code).To(Equal(http.StatusOK), w.Body.String())
			Expect(decode(w)["email"]).To(Equal("ada.u@example.com"))
		})

		It("forbids malformed user ids", func() {
			w := app.request(http.MethodDelete, "/users/not-a-uuid", nil, adaToken)
			Expect(w.Code).To(Equal(http.StatusForbidden))
		})

		It("refuses to reuse another user's email", func() {
			w := app.request(http.MethodPut, "/users/"+ada.ID.String(), map[string]string{
				"email":    "bob@example.com",
				"password": "new",
			}, adaToken)
			Expect(w.Code).To(Equal(http.StatusConflict))
		})

		It("forbids changing another user", func() {
			w := app.request(http.MethodPut, "/users/"+bob.ID.String(), map[string]string{
				"email":    "x@example.com",
				"password": "new",
			}, adaToken)
			Expect(w.Code).To(Equal(http.StatusForbidden))
			Expect(decode(w)["error"]).To(Equal("Not enough permissions"))

			w = app.request(http.MethodDelete, "/users/"+bob.ID.String(), nil, adaToken)
			Expect(w.Code).To(Equal(http.StatusForbidden))
		})

		It("deletes the caller and invalidates their token", func() {
			w := app.request(http.MethodDelete, "/users/"+ada.ID.String(), nil, adaToken)
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(decode(w)["message"]).To(Equal("User deleted"))

			w = app.request(http.MethodGet, "/users/me", nil, adaToken)
			Expect(w.Code).To(Equal(http.StatusUnauthorized))
		})
	})
})
