package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facegallery/internal/face"
	"facegallery/internal/gallery"
)

func TestPrintStudents(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printStudents(&buf, nil))
	assert.Equal(t, "No students found.\n", buf.String())

	buf.Reset()
	require.NoError(t, printStudents(&buf, []gallery.User{
		{ID: "u1", Name: "alice", IsVerified: true, CreatedAt: time.Now()},
	}))
	assert.Contains(t, buf.String(), "alice")
	assert.Contains(t, buf.String(), "true")
}

func TestPrintMatches(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printMatches(&buf, face.Descriptor{0, 0}, []gallery.Image{
		{ID: "i1", Name: "near.jpg", FaceDescriptor: face.Descriptor{0.3, 0.4}, UploaderName: "root", UploadDate: time.Now()},
	}))
	assert.Contains(t, buf.String(), "near.jpg")
	assert.Contains(t, buf.String(), "0.5000")

	err := printMatches(&buf, face.Descriptor{0, 0}, []gallery.Image{{FaceDescriptor: face.Descriptor{1}}})
	assert.ErrorIs(t, err, face.ErrDimensionMismatch)
}

func TestRootCmd_Wiring(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"migrate", "user", "match"}, names)

	sub, _, err := root.Find([]string{"migrate", "status"})
	require.NoError(t, err)
	assert.Equal(t, "status", sub.Name())
}
