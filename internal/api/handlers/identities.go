package handlers

import (
	"context"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"iter"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/attendance/internal/gallery"
	"github.com/your-org/attendance/pkg/dto"
)

// maxUpload bounds registration photos.
const maxUpload = 10 << 20

// IdentityStore is the gallery surface used by the admin API.
type IdentityStore interface {
	Register(ctx context.Context, identity string, img image.Image, contact string) (gallery.Entry, error)
	Load(ctx context.Context, identity string) (gallery.Entry, error)
	List(ctx context.Context) iter.Seq2[string, error]
	Rename(ctx context.Context, identity, newIdentity string) (string, error)
	Delete(ctx context.Context, identity string) error
	SetContact(ctx context.Context, identity, contact string) error
}

type IdentityHandler struct {
	store IdentityStore
}

func NewIdentityHandler(store IdentityStore) *IdentityHandler {
	return &IdentityHandler{store: store}
}

func identityResponse(e gallery.Entry) dto.IdentityResponse {
	return dto.IdentityResponse{
		Identity:     e.Identity,
		Contact:      e.Contact,
		Encrypted:    e.Encrypted,
		EmbeddingDim: len(e.Embedding),
	}
}

// Register accepts a multipart form with "name", optional "contact" and an
// "image" file, and enrolls the first face found in it.
func (h *IdentityHandler) Register(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUpload)
	name := c.PostForm("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name required"})
		return
	}

	file, _, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file required"})
		return
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported image: " + err.Error()})
		return
	}

	entry, err := h.store.Register(c.Request.Context(), name, img, c.PostForm("contact"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, identityResponse(entry))
}

func (h *IdentityHandler) List(c *gin.Context) {
	names := []string{}
	for name, err := range h.store.List(c.Request.Context()) {
		if err != nil {
			writeError(c, err)
			return
		}
		names = append(names, name)
	}
	c.JSON(http.StatusOK, dto.IdentityListResponse{Identities: names, Total: len(names)})
}

func (h *IdentityHandler) Get(c *gin.Context) {
	entry, err := h.store.Load(c.Request.Context(), c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, identityResponse(entry))
}

func (h *IdentityHandler) Rename(c *gin.Context) {
	var req dto.RenameIdentityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	name, err := h.store.Rename(c.Request.Context(), c.Param("name"), req.NewName)
	if err != nil {
		writeError(c, err)
		return
	}
	entry, err := h.store.Load(c.Request.Context(), name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, identityResponse(entry))
}

func (h *IdentityHandler) UpdateContact(c *gin.Context) {
	var req dto.UpdateContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.store.SetContact(c.Request.Context(), c.Param("name"), req.Contact); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *IdentityHandler) Delete(c *gin.Context) {
	if err := h.store.Delete(c.Request.Context(), c.Param("name")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
