package parse

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyloom/storyloom/internal/models"
	"github.com/storyloom/storyloom/internal/pipeline"
	"github.com/storyloom/storyloom/pkg/logger"
)

func TestTextParserSplitsParagraphs(t *testing.T) {
	p := NewTextParser()

	items, err := p.Parse(context.Background(), strings.NewReader(
		"First paragraph.\n\nSecond paragraph\nstill the same block.\r\n\r\nThird.",
	))
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "First paragraph.", items[0].Text)
	assert.Equal(t, "Second paragraph\nstill the same block.", items[1].Text)
	assert.Equal(t, models.ContentText, items[2].Type)
}

func TestTextParserEmptyInput(t *testing.T) {
	p := NewTextParser()

	items, err := p.Parse(context.Background(), strings.NewReader("\n\n  \n\n"))
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestMIMEForFilename(t *testing.T) {
	assert.Equal(t, "text/plain", MIMEForFilename("notes.TXT"))
	assert.Equal(t, "application/pdf", MIMEForFilename("album.pdf"))
	assert.Equal(t, "image/jpeg", MIMEForFilename("photo.JPeG"))
	assert.Equal(t, "", MIMEForFilename("archive.zip"))
}

func TestFactoryRejectsUnknownMIME(t *testing.T) {
	f := NewFactory(logger.NewTestLogger())

	_, err := f.ForMIME("video/mp4")
	require.Error(t, err)
	assert.ErrorIs(t, err, pipeline.ErrUnsupportedContent)
}

func TestFactoryResolvesRegisteredTypes(t *testing.T) {
	f := NewFactory(logger.NewTestLogger())

	for _, mime := range []string{"text/plain", "text/markdown", "application/pdf", "image/png"} {
		p, err := f.ForMIME(mime)
		require.NoError(t, err, mime)
		assert.NotNil(t, p)
	}
}
