package handler_test

import (
	"net/http"

	"docvision-service/internal/model"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Project handlers", func() {
	var (
		app      *testApp
		adaToken string
		bobToken string
		org      model.Organization
		base     string
	)

	BeforeEach(func() {
		app = newTestApp(nil)
		var ada model.User
		ada, adaToken = app.seedUser("ada@example.com", "x")
		_, bobToken = app.seedUser("bob@example.com", "x")
		org = ada.Organizations[0]
		base = "/organizations/" + org.ID.String() + "/projects"
	})

	It("creates, lists, updates and reads a project", func() {
		w := app.request(http.MethodPost, base, map[string]string{"name": "Scans", "description": "invoices"}, adaToken)
		Expect(w.Code).To(Equal(http.StatusCreated), w.Body.String())
		created := decode(w)
		Expect(created["organization_id"]).To(Equal(org.ID.String()))
		Expect(created["files"]).To(BeEmpty())
		id := created["id"].(string)

		w = app.request(http.MethodGet, base, nil, adaToken)
		Expect(decode(w)["projects"]).To(HaveLen(1))

		w = app.request(http.MethodPut, base+"/"+id, map[string]string{"name": "Receipts"}, adaToken)
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(decode(w)["name"]).To(Equal("Receipts"))

		w = app.request(http.MethodGet, base+"/"+id, nil, adaToken)
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(decode(w)["description"]).To(Equal(""))
	})

	It("requires a name", func() {
		w := app.request(http.MethodPost, base, map[string]string{"description": "x"}, adaToken)
		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})

	It("forbids creating projects in another organization", func() {
		w := app.request(http.MethodPost, base, map[string]string{"name": "Intrusion"}, bobToken)
		Expect(w.Code).To(Equal(http.StatusForbidden))
		Expect(decode(w)["error"]).To(Equal("Not a member of this organization."))
	})

	It("returns 404 for unknown projects", func() {
		w := app.request(http.MethodGet, base+"/"+uuid.NewString(), nil, adaToken)
		Expect(w.Code).To(Equal(http.StatusNotFound))
		Expect(decode(w)["error"]).To(Equal("Project not found."))
	})

	It("does not expose a project through another organization", func() {
		other := model.Organization{Name: "Other"}
		Expect(app.db.Create(&other).Error).To(Succeed())
		foreign := app.seedProject(other, "Foreign")

		w := app.request(http.MethodGet, base+"/"+foreign.ID.String(), nil, adaToken)
		Expect(w.Code).To(Equal(http.StatusNotFound))
	})

	It("soft deletes a project and removes its objects", func() {
		project := app.seedProject(org, "Scans")
		app.seedFile(project, "projects/x/a.png", "image/png", "a.png", nil)
		app.seedFile(project, "projects/x/b.pdf", "application/pdf", "b.pdf", nil)

		w := app.request(http.MethodDelete, base+"/"+project.ID.String(), nil, adaToken)
		Expect(w.Code).To(Equal(http.StatusNoContent))

		Expect(app.store.Keys()).To(BeEmpty())
		Expect(app.store.Deleted).To(ConsistOf("projects/x/a.png", "projects/x/b.pdf"))

		var remaining int64
		Expect(app.db.Model(&model.File{}).Where("project_id = ?", project.ID).Count(&remaining).Error).To(Succeed())
		Expect(remaining).To(BeZero())

		var trashed model.Project
		Expect(app.db.Unscoped().First(&trashed, "id = ?", project.ID).Error).To(Succeed())
		Expect(trashed.DeletedAt.Valid).To(BeTrue())

		w = app.request(http.MethodGet, base+"/"+project.ID.String(), nil, adaToken)
		Expect(w.Code).To(Equal(http.StatusNotFound))
	})
})
