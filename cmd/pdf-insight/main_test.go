package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/pdf-insight/internal/config"
	"github.com/spherical/pdf-insight/internal/domain"
	"github.com/spherical/pdf-insight/internal/session"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "pdf-insight version "+version+"\n", out.String())
}

func TestAskRejectsEmptyQuestion(t *testing.T) {
	err := runAsk(askCmd, []string{"doc.pdf", "  ", ""})
	assert.ErrorIs(t, err, domain.ErrEmptyQuery)
}

func TestNewStore_Memory(t *testing.T) {
	cfg := config.DefaultConfig()

	store, err := newStore(cfg)
	require.NoError(t, err)
	defer store.Close()

	_, ok := store.(*session.MemoryStore)
	assert.True(t, ok)
}

func TestNewRasterizer_FromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.PDF.Format = "jpeg"

	r, err := newRasterizer(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", r.MIMEType())

	cfg.PDF.Format = "tiff"
	_, err = newRasterizer(cfg, nil)
	assert.True(t, domain.IsType(err, domain.ErrorTypeConfig))
}
