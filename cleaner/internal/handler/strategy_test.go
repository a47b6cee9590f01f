package handler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStrategyForSelectsByMimeType(t *testing.T) {
	require.IsType(t, htmlStrategy{}, strategyFor("text/html; charset=utf-8"))
	require.IsType(t, markdownStrategy{}, strategyFor("text/markdown"))
	require.IsType(t, plaintextStrategy{}, strategyFor("text/plain"))
	require.IsType(t, unimplementedStrategy{}, strategyFor("application/pdf"))
}

func TestPlaintextStrategyCollapsesWhitespace(t *testing.T) {
	out, err := plaintextStrategy{}.Clean([]byte("hello    world\n\n\n\nbye"))
	require.NoError(t, err)
	require.Equal(t, "hello world\n\nbye", out)
}

func TestUnimplementedStrategyReturnsNotImplemented(t *testing.T) {
	_, err := unimplementedStrategy{name: "pdf"}.Clean([]byte("whatever"))
	require.ErrorIs(t, err, errNotImplemented)
}
