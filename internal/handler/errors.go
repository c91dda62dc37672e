package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"facegallery/internal/face"
	"facegallery/internal/gallery"
)

type errorMapping struct {
	target  error
	status  int
	message string
}

// errorTable is checked in order with errors.Is.
var errorTable = []errorMapping{
	{gallery.ErrMissingCredentials, http.StatusBadRequest, "Name and password are required"},
	{gallery.ErrPasswordTooShort, http.StatusBadRequest, "Password must be at least 6 characters long"},
	{gallery.ErrDuplicateName, http.StatusBadRequest, "Username already exists"},
	{gallery.ErrInvalidCredentials, http.StatusBadRequest, "Invalid credentials"},
	{gallery.ErrInvalidRole, http.StatusBadRequest, "Role must be admin or student"},
	{gallery.ErrNoFile, http.StatusBadRequest, "No file uploaded"},
	{gallery.ErrUnsupportedFile, http.StatusBadRequest, "Only image files are allowed!"},
	{gallery.ErrFileTooLarge, http.StatusBadRequest, "File too large"},
	{face.ErrMultipleFaces, http.StatusBadRequest, "More than one face detected, use an image with exactly one face"},

	{gallery.ErrUnknownUser, http.StatusUnauthorized, "Please authenticate"},

	{gallery.ErrAdminOnly, http.StatusForbidden, "Access denied"},
	{gallery.ErrStudentOnly, http.StatusForbidden, "Only students can verify their face"},
	{gallery.ErrDeleteAdminOnly, http.StatusForbidden, "Only admins can delete images"},
	{gallery.ErrNotVerified, http.StatusForbidden, "Face verification required"},
	{gallery.ErrDownloadDenied, http.StatusForbidden, "Access denied"},

	{gallery.ErrNotFound, http.StatusNotFound, "Image not found"},

	{face.ErrBusy, http.StatusServiceUnavailable, "Face service is busy, try again shortly"},
	{face.ErrTimeout, http.StatusServiceUnavailable, "Face processing timed out, try again shortly"},
	{face.ErrNotReady, http.StatusServiceUnavailable, "Face models are still loading, try again shortly"},

	{face.ErrDimensionMismatch, http.StatusInternalServerError, "Face descriptor does not match the stored model dimensions"},

	// extraction failures carry their cause after the operation's message
	{face.ErrNoFace, http.StatusInternalServerError, ""},
	{face.ErrExtractFailed, http.StatusInternalServerError, ""},
}

func lookupError(err error) (int, string, bool) {
	for _, m := range errorTable {
		if errors.Is(err, m.target) {
			return m.status, m.message, true
		}
	}
	return http.StatusInternalServerError, "", false
}

// fail answers with the mapped status and message, or 500 with fallback
// for errors that are not part of the API.
func (h *Handler) fail(c *gin.Context, err error, fallback string) {
	status, message, known := lookupError(err)
	switch {
	case !known:
		message = fallback
	case message == "":
		message = fallback + ": " + err.Error()
	}
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		h.log.WithFields(logrus.Fields{
			"path":  c.FullPath(),
			"error": err,
		}).Error(fallback)
	}
	c.AbortWithStatusJSON(status, gin.H{"message": message})
}
