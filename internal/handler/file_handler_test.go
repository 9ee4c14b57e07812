package handler_test

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"net/http"
	"strings"

	"docvision-service/internal/model"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func pngImage() []byte {
	var buf bytes.Buffer
	Expect(png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4)))).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("File handlers", func() {
	var (
		app      *testApp
		token    string
		project  model.Project
		base     string
		bobToken string
	)

	BeforeEach(func() {
		app = newTestApp(nil)
		var ada model.User
		ada, token = app.seedUser("ada@example.com", "x")
		_, bobToken = app.seedUser("bob@example.com", "x")
		project = app.seedProject(ada.Organizations[0], "Scans")
		base = "/organizations/" + ada.Organizations[0].ID.String() + "/projects/" + project.ID.String() + "/files"
	})

	Describe("upload", func() {
		It("stores the object, records the file and queues extraction", func() {
			w := app.upload(base, "scan one.png", pngImage(), token)
			Expect(w.Code).To(Equal(http.StatusCreated), w.Body.String())

			body := decode(w)
			Expect(body["mime_type"]).To(Equal("image/png"))
			Expect(body["original_filename"]).To(Equal("scan one.png"))
			key := body["path"].(string)
			Expect(key).To(HavePrefix("projects/" + project.ID.String() + "/"))
			Expect(key).To(HaveSuffix(".png"))

			stored, ok := app.store.Objects[key]
			Expect(ok).To(BeTrue())
			Expect(stored.ContentType).To(Equal("image/png"))
			Expect(stored.Metadata).To(HaveKeyWithValue("filename", "scan%20one.png"))

			Expect(app.queue.Jobs).To(HaveLen(1))
			Expect(app.queue.Jobs[0].FileID.String()).To(Equal(body["id"]))
		})

		It("sniffs text documents", func() {
			w := app.upload(base, "notes", []byte("plain text notes for the project"), token)
			Expect(w.Code).To(Equal(http.StatusCreated))
			Expect(decode(w)["mime_type"]).To(Equal("text/plain"))
		})

		It("rejects content without a known type", func() {
			w := app.upload(base, "blob.bin", []byte{0x00, 0x01, 0x02, 0xfe, 0xff, 0x00}, token)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(decode(w)["error"]).To(Equal("Unsupported file type."))
			Expect(app.store.Objects).To(BeEmpty())
		})

		It("rejects files over the upload limit", func() {
			w := app.upload(base, "big.txt", []byte(strings.Repeat("a", 2<<20)), token)
			Expect(w.Code).To(Equal(http.StatusRequestEntityTooLarge))
		})

		It("requires the file field", func() {
			w := app.request(http.MethodPost, base, map[string]string{}, token)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(decode(w)["error"]).To(Equal("No file uploaded."))
		})

		It("still answers 201 when the queue is down", func() {
			app.queue.Err = errors.New("redis down")
			w := app.upload(base, "a.png", pngImage(), token)
			Expect(w.Code).To(Equal(http.StatusCreated))
		})

		It("checks organization membership", func() {
			w := app.upload(base, "a.png", pngImage(), bobToken)
			Expect(w.Code).To(Equal(http.StatusForbidden))
		})
	})

	It("lists files of a project", func() {
		app.seedFile(project, "projects/p/a.png", "image/png", "a.png", nil)
		w := app.request(http.MethodGet, base, nil, token)
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(decode(w)["files"]).To(HaveLen(1))
	})

	It("returns a presigned URL for a file", func() {
		file := app.seedFile(project, "projects/p/a.png", "image/png", "a.png", nil)
		w := app.request(http.MethodGet, base+"/"+file.ID.String(), nil, token)
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(decode(w)["url"]).To(Equal("https://storage.test/projects/p/a.png?expires=600"))
	})

	It("deletes a file and its object", func() {
		file := app.seedFile(project, "projects/p/a.png", "image/png", "a.png", nil)
		w := app.request(http.MethodDelete, base+"/"+file.ID.String(), nil, token)
		Expect(w.Code).To(Equal(http.StatusNoContent))
		Expect(app.store.Objects).NotTo(HaveKey("projects/p/a.png"))

		w = app.request(http.MethodDelete, base+"/"+file.ID.String(), nil, token)
		Expect(w.Code).To(Equal(http.StatusNotFound))
		Expect(decode(w)["error"]).To(Equal("File not found."))
	})

	It("keeps the file row when the object cannot be removed", func() {
		file := app.seedFile(project, "projects/p/a.png", "image/png", "a.png", nil)
		app.store.DeleteErr = errors.New("access denied")

		w := app.request(http.MethodDelete, base+"/"+file.ID.String(), nil, token)
		Expect(w.Code).To(Equal(http.StatusBadGateway))
		Expect(app.store.Deleted).To(Equal([]string{"projects/p/a.png"}))

		var count int64
		Expect(app.db.Model(&model.File{}).Where("id = ?", file.ID).Count(&count).Error).To(Succeed())
		Expect(count).To(Equal(int64(1)))

		app.store.DeleteErr = nil
		w = app.request(http.MethodDelete, base+"/"+file.ID.String(), nil, token)
		Expect(w.Code).To(Equal(http.StatusNoContent))
		Expect(app.db.Model(&model.File{}).Where("id = ?", file.ID).Count(&count).Error).To(Succeed())
		Expect(count).To(BeZero())
	})

	It("returns 404 for unknown files", func() {
		w := app.request(http.MethodGet, base+"/"+uuid.NewString(), nil, token)
		Expect(w.Code).To(Equal(http.StatusNotFound))
	})

	It("queues extraction on demand", func() {
		file := app.seedFile(project, "projects/p/a.pdf", "application/pdf", "a.pdf", nil)
		w := app.request(http.MethodPost, base+"/"+file.ID.String()+"/extract", nil, token)
		Expect(w.Code).To(Equal(http.StatusAccepted))
		Expect(app.queue.Jobs).To(HaveLen(1))
		Expect(app.queue.Jobs[0].FileID).To(Equal(file.ID))
	})
})
