// Package handler exposes the gallery over HTTP.
package handler

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"facegallery/internal/auth"
	"facegallery/internal/gallery"
)

// DefaultMaxUploadBytes caps a single uploaded image.
const DefaultMaxUploadBytes = 10 << 20

// multipartSlack leaves room for the multipart envelope around the file.
const multipartSlack = 1 << 20

// Handler serves the /api routes.
type Handler struct {
	svc       *gallery.Service
	log       *logrus.Logger
	maxUpload int64
}

func New(svc *gallery.Service, log *logrus.Logger, maxUpload int64) *Handler {
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadBytes
	}
	return &Handler{svc: svc, log: log, maxUpload: maxUpload}
}

type credentials struct {
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role"`
}

type userView struct {
	ID   string       `json:"id"`
	Name string       `json:"name"`
	Role gallery.Role `json:"role"`
}

func viewOf(u gallery.User) userView {
	return userView{ID: u.ID, Name: u.Name, Role: u.Role}
}

func (h *Handler) register(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, gallery.ErrMissingCredentials, "")
		return
	}
	if _, err := h.svc.Register(c.Request.Context(), req.Name, req.Password, req.Role); err != nil {
		h.fail(c, err, "Server error during registration")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "User registered successfully"})
}

func (h *Handler) login(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, gallery.ErrMissingCredentials, "")
		return
	}
	token, u, err := h.svc.Login(c.Request.Context(), req.Name, req.Password)
	if err != nil {
		h.fail(c, err, "Server error during login")
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user": viewOf(u)})
}

func (h *Handler) uploadImage(c *gin.Context) {
	id, _ := auth.IdentityFrom(c)
	name, data, err := h.readImage(c)
	if err != nil {
		h.fail(c, err, "Server error during upload")
		return
	}
	img, err := h.svc.Upload(c.Request.Context(), id.UserID, name, data)
	if err != nil {
		h.fail(c, err, "Server error during upload")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Image uploaded successfully", "image": img})
}

func (h *Handler) verifyFace(c *gin.Context) {
	id, _ := auth.IdentityFrom(c)
	name, data, err := h.readImage(c)
	if err != nil {
		h.fail(c, err, "Face verification failed")
		return
	}
	n, err := h.svc.VerifyFace(c.Request.Context(), id.UserID, name, data)
	if err != nil {
		h.fail(c, err, "Face verification failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":        "Face verification successful",
		"isVerified":     true,
		"matchingImages": n,
	})
}

func (h *Handler) listImages(c *gin.Context) {
	id, _ := auth.IdentityFrom(c)
	images, err := h.svc.ListImages(c.Request.Context(), id.UserID)
	if err != nil {
		h.fail(c, err, "Server error while fetching images")
		return
	}
	if images == nil {
		images = []gallery.Image{}
	}
	c.JSON(http.StatusOK, images)
}

func (h *Handler) downloadImage(c *gin.Context) {
	id, _ := auth.IdentityFrom(c)
	img, rc, err := h.svc.OpenImage(c.Request.Context(), id.UserID, c.Param("id"))
	if err != nil {
		h.fail(c, err, "Server error")
		return
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(filepath.Ext(img.Name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": img.Name})
	c.DataFromReader(http.StatusOK, -1, contentType, rc, map[string]string{
		"Content-Disposition": disposition,
	})
}

func (h *Handler) deleteImage(c *gin.Context) {
	id, _ := auth.IdentityFrom(c)
	if err := h.svc.DeleteImage(c.Request.Context(), id.UserID, c.Param("id")); err != nil {
		h.fail(c, err, "Server error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Image deleted successfully"})
}

func (h *Handler) listStudents(c *gin.Context) {
	id, _ := auth.IdentityFrom(c)
	students, err := h.svc.ListStudents(c.Request.Context(), id.UserID)
	if err != nil {
		h.fail(c, err, "Server error while fetching students")
		return
	}
	if students == nil {
		students = []gallery.User{}
	}
	c.JSON(http.StatusOK, students)
}

func (h *Handler) verifyStatus(c *gin.Context) {
	id, _ := auth.IdentityFrom(c)
	u, err := h.svc.Status(c.Request.Context(), id.UserID)
	if err != nil {
		h.fail(c, err, "Failed to check verification status")
		return
	}
	c.JSON(http.StatusOK, gin.H{"isVerified": u.IsVerified, "user": viewOf(u)})
}

// readImage pulls the "image" part out of a multipart body.
func (h *Handler) readImage(c *gin.Context) (string, []byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+multipartSlack)
	fh, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return "", nil, gallery.ErrFileTooLarge
		case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
			return "", nil, gallery.ErrNoFile
		}
		return "", nil, err
	}
	if fh.Size > h.maxUpload {
		return "", nil, gallery.ErrFileTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return "", nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return "", nil, err
	}
	return fh.Filename, data, nil
}
